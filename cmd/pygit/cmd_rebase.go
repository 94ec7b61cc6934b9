package main

import (
	"fmt"

	"github.com/arjunmenon/pygit/pkg/repo"
	"github.com/spf13/cobra"
)

func newRebaseCmd() *cobra.Command {
	var contFlag bool
	var abortFlag bool

	cmd := &cobra.Command{
		Use:   "rebase [<target>]",
		Short: "Replay local commits onto another base",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			if contFlag && abortFlag {
				return fmt.Errorf("rebase: --continue and --abort are mutually exclusive")
			}

			if abortFlag {
				if err := r.RebaseAbort(); err != nil {
					return err
				}
				fmt.Fprintln(out, "rebase aborted")
				return nil
			}

			var report *repo.RebaseReport
			if contFlag {
				report, err = r.RebaseContinue()
			} else {
				if len(args) != 1 {
					return fmt.Errorf("rebase: a target is required")
				}
				report, err = r.Rebase(args[0])
			}
			if err != nil {
				return err
			}

			switch {
			case report.UpToDate:
				fmt.Fprintln(out, "already up to date")
			case report.FastForward:
				fmt.Fprintln(out, "fast-forwarded")
			case report.HasConflicts:
				short := string(report.StoppedOn)
				if len(short) > 8 {
					short = short[:8]
				}
				fmt.Fprintf(out, "conflict while replaying %s\n", short)
				for _, p := range report.ConflictPaths {
					fmt.Fprintf(out, "  ! %s\n", p)
				}
				fmt.Fprintln(out, "fix conflicts, pygit add them, then run pygit rebase --continue")
				fmt.Fprintln(out, "or run pygit rebase --abort to undo")
				return &repo.MergeConflictError{Paths: report.ConflictPaths}
			default:
				fmt.Fprintf(out, "replayed %d commit", len(report.Replayed))
				if len(report.Replayed) != 1 {
					fmt.Fprint(out, "s")
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&contFlag, "continue", false, "resume after resolving conflicts")
	cmd.Flags().BoolVar(&abortFlag, "abort", false, "abandon the rebase and restore the original state")

	return cmd
}
