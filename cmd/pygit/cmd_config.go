package main

import (
	"fmt"
	"strings"

	"github.com/arjunmenon/pygit/pkg/repo"
	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config <key> [<value>]",
		Short: "Get or set a repository configuration value",
		Long: `Get or set a value in .pygit/config. Keys are section.field, e.g.
user.name, user.email, core.editor, remotes.<name>.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			key := strings.TrimSpace(args[0])
			section, field, ok := strings.Cut(key, ".")
			if !ok || section == "" || field == "" {
				return fmt.Errorf("config: key must be <section>.<field>, got %q", key)
			}

			cfg, err := r.ReadConfig()
			if err != nil {
				return err
			}

			if len(args) == 1 {
				value, found := configLookup(cfg, section, field)
				if !found {
					return fmt.Errorf("config: %s is not set", key)
				}
				fmt.Fprintln(cmd.OutOrStdout(), value)
				return nil
			}

			if err := configStore(cfg, section, field, args[1]); err != nil {
				return err
			}
			return r.WriteConfig(cfg)
		},
	}
}

func configLookup(cfg *repo.Config, section, field string) (string, bool) {
	switch section {
	case "user":
		switch field {
		case "name":
			return cfg.User.Name, cfg.User.Name != ""
		case "email":
			return cfg.User.Email, cfg.User.Email != ""
		}
	case "core":
		if field == "editor" {
			return cfg.Core.Editor, cfg.Core.Editor != ""
		}
	case "remotes":
		url, ok := cfg.Remotes[field]
		return url, ok
	}
	return "", false
}

func configStore(cfg *repo.Config, section, field, value string) error {
	switch section {
	case "user":
		switch field {
		case "name":
			cfg.User.Name = value
			return nil
		case "email":
			cfg.User.Email = value
			return nil
		}
	case "core":
		if field == "editor" {
			cfg.Core.Editor = value
			return nil
		}
	case "remotes":
		cfg.Remotes[field] = value
		return nil
	}
	return fmt.Errorf("config: unknown key %s.%s", section, field)
}
