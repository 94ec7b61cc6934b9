package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/arjunmenon/pygit/pkg/repo"
	"github.com/spf13/cobra"
)

func newCleanCmd() *cobra.Command {
	var dryRun bool
	var force bool
	var removeDirs bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove untracked files from the working tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dryRun == force {
				return fmt.Errorf("clean: exactly one of -n or -f is required")
			}

			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			entries, err := r.Status()
			if err != nil {
				return err
			}

			var untracked []string
			for _, e := range entries {
				if e.IndexStatus == repo.StatusUntracked {
					untracked = append(untracked, e.Path)
				}
			}
			sort.Strings(untracked)

			out := cmd.OutOrStdout()

			if dryRun {
				for _, p := range untracked {
					fmt.Fprintf(out, "would remove %s\n", p)
				}
				return nil
			}

			dirs := make(map[string]struct{})
			for _, p := range untracked {
				absPath := filepath.Join(r.RootDir, filepath.FromSlash(p))
				if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("clean: remove %q: %w", p, err)
				}
				fmt.Fprintf(out, "removed %s\n", p)
				if d := filepath.ToSlash(filepath.Dir(filepath.FromSlash(p))); d != "." {
					dirs[d] = struct{}{}
				}
			}

			if removeDirs {
				// Deepest first so nested empties collapse upward.
				sorted := make([]string, 0, len(dirs))
				for d := range dirs {
					sorted = append(sorted, d)
				}
				sort.Slice(sorted, func(i, j int) bool {
					return strings.Count(sorted[i], "/") > strings.Count(sorted[j], "/")
				})
				for _, d := range sorted {
					removeEmptyDirChain(r.RootDir, filepath.Join(r.RootDir, filepath.FromSlash(d)))
				}
			}

			return nil
		},
	}

	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "list what would be removed without removing")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "actually remove untracked files")
	cmd.Flags().BoolVarP(&removeDirs, "directories", "d", false, "also remove directories emptied by the clean")

	return cmd
}

// removeEmptyDirChain removes dir and each now-empty parent, stopping at the
// repository root.
func removeEmptyDirChain(root, dir string) {
	for {
		if dir == root || !strings.HasPrefix(dir, root) {
			return
		}
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
