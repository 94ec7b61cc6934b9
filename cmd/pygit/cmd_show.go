package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/arjunmenon/pygit/pkg/object"
	"github.com/arjunmenon/pygit/pkg/repo"
	"github.com/spf13/cobra"
)

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [object]",
		Short: "Show a commit, tag, tree, or blob",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			target := "HEAD"
			if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
				target = strings.TrimSpace(args[0])
			}

			h, err := r.ResolveObject(target)
			if err != nil {
				return fmt.Errorf("show: %w", err)
			}
			objType, payload, err := r.Store.Read(h)
			if err != nil {
				return fmt.Errorf("show: read %s: %w", h, err)
			}

			out := cmd.OutOrStdout()
			switch objType {
			case object.TypeCommit:
				return showCommit(out, r, h)
			case object.TypeTag:
				fmt.Fprintf(out, "tag %s\n", h)
				out.Write(payload)
				return nil
			case object.TypeTree:
				return showTree(out, r, h)
			case object.TypeBlob:
				out.Write(payload)
				return nil
			default:
				return fmt.Errorf("show: unknown object type %q for %s", objType, h)
			}
		},
	}
}

func showCommit(out io.Writer, r *repo.Repo, h object.Hash) error {
	commit, err := r.Store.ReadCommit(h)
	if err != nil {
		return fmt.Errorf("show: read commit %s: %w", h, err)
	}

	fmt.Fprintf(out, "commit %s\n", h)
	fmt.Fprintf(out, "Author: %s\n", commit.Author)
	fmt.Fprintf(out, "Date:   %s\n", time.Unix(commit.Timestamp, 0).Format("2006-01-02 15:04:05"))
	fmt.Fprintln(out)
	fmt.Fprintf(out, "    %s\n", commit.Message)
	fmt.Fprintln(out)

	var parent object.Hash
	if len(commit.Parents) > 0 {
		parent = commit.Parents[0]
	}
	changes, err := r.DiffCommitTrees(parent, h)
	if err != nil {
		return fmt.Errorf("show: %w", err)
	}
	if len(changes) == 0 {
		return nil
	}

	fmt.Fprintln(out, "Changes:")
	for _, c := range changes {
		switch c.Kind {
		case repo.TreeChangeAdded:
			fmt.Fprintf(out, "  A %s\n", c.Path)
		case repo.TreeChangeDeleted:
			fmt.Fprintf(out, "  D %s\n", c.Path)
		case repo.TreeChangeModified:
			fmt.Fprintf(out, "  M %s\n", c.Path)
		}
	}
	return nil
}

func showTree(out io.Writer, r *repo.Repo, h object.Hash) error {
	tree, err := r.Store.ReadTree(h)
	if err != nil {
		return fmt.Errorf("show: read tree %s: %w", h, err)
	}
	fmt.Fprintf(out, "tree %s\n", h)
	for _, e := range tree.Entries {
		if e.IsDir {
			fmt.Fprintf(out, "%s tree %s\t%s\n", e.Mode, e.SubtreeHash, e.Name)
		} else {
			fmt.Fprintf(out, "%s blob %s\t%s\n", e.Mode, e.BlobHash, e.Name)
		}
	}
	return nil
}
