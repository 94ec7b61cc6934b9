package main

import (
	"fmt"

	"github.com/arjunmenon/pygit/pkg/repo"
	"github.com/spf13/cobra"
)

func newResetCmd() *cobra.Command {
	var soft, mixed, hard bool

	cmd := &cobra.Command{
		Use:   "reset [paths...] | reset --soft|--mixed|--hard <id>",
		Short: "Unstage paths, or move HEAD (and optionally the index/working tree) to a commit",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			modeFlags := 0
			for _, set := range []bool{soft, mixed, hard} {
				if set {
					modeFlags++
				}
			}
			if modeFlags > 1 {
				return fmt.Errorf("reset: only one of --soft, --mixed, --hard may be given")
			}
			if modeFlags == 1 {
				if len(args) != 1 {
					return fmt.Errorf("reset: --soft/--mixed/--hard requires exactly one revision")
				}
				mode := repo.ResetMixed
				switch {
				case soft:
					mode = repo.ResetSoft
				case hard:
					mode = repo.ResetHard
				}
				return r.ResetTo(args[0], mode)
			}

			return r.Reset(args)
		},
	}

	cmd.Flags().BoolVar(&soft, "soft", false, "move HEAD only")
	cmd.Flags().BoolVar(&mixed, "mixed", false, "move HEAD and reset the index")
	cmd.Flags().BoolVar(&hard, "hard", false, "move HEAD, reset the index, and overwrite the working tree")

	return cmd
}
