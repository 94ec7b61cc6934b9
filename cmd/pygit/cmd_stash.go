package main

import (
	"fmt"

	"github.com/arjunmenon/pygit/pkg/repo"
	"github.com/spf13/cobra"
)

func newStashCmd() *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "stash",
		Short: "Stash uncommitted changes",
		// A bare "pygit stash" behaves like "pygit stash push".
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStashPush(cmd, message)
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "stash message")

	cmd.AddCommand(newStashPushCmd())
	cmd.AddCommand(newStashListCmd())
	cmd.AddCommand(newStashPopCmd())

	return cmd
}

func newStashPushCmd() *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "push",
		Short: "Save local changes and revert the working tree to HEAD",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStashPush(cmd, message)
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "stash message")
	return cmd
}

func runStashPush(cmd *cobra.Command, message string) error {
	r, err := repo.Open(".")
	if err != nil {
		return err
	}

	h, err := r.StashPush(message)
	if err != nil {
		return err
	}

	short := string(h)
	if len(short) > 8 {
		short = short[:8]
	}
	fmt.Fprintf(cmd.OutOrStdout(), "saved working directory state as %s\n", short)
	return nil
}

func newStashListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved stashes",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			entries, err := r.StashList()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for i, e := range entries {
				short := string(e.Hash)
				if len(short) > 8 {
					short = short[:8]
				}
				fmt.Fprintf(out, "stash@{%d}: %s %s\n", i, short, e.Message)
			}
			return nil
		},
	}
}

func newStashPopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pop",
		Short: "Apply the most recent stash and drop it",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			if err := r.StashPop(); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "dropped stash@{0}")
			return nil
		},
	}
}
