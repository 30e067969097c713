package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"psurops/internal/config"
)

func newConfigCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	var format string
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Long: `Write the default configuration to .psurops/config.<format> under the
workspace root (or to --config). Existing files are kept unless --force is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := g.configPath
			if path == "" {
				root, err := g.workspace()
				if err != nil {
					return err
				}
				switch format {
				case "json", "yaml", "toml":
				default:
					return fmt.Errorf("unsupported format %q (want json, yaml or toml)", format)
				}
				path = filepath.Join(root, config.DirName, "config."+format)
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.DefaultConfig().Save(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().StringVar(&format, "format", "json", "File format: json, yaml or toml")
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long:  `Print the configuration after defaults, the config file and PSUROPS_* overrides are applied. Secrets are masked.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := g.loadConfig()
			if err != nil {
				return err
			}
			masked := *cfg
			if masked.Server.AuthTokenHash != "" {
				masked.Server.AuthTokenHash = "********"
			}
			if masked.Notify.Redis.Password != "" {
				masked.Notify.Redis.Password = "********"
			}
			if masked.Notify.MQTT.Password != "" {
				masked.Notify.MQTT.Password = "********"
			}
			masked.Notify.Webhooks = make([]config.WebhookConfig, len(cfg.Notify.Webhooks))
			for i, w := range cfg.Notify.Webhooks {
				if w.Secret != "" {
					w.Secret = "********"
				}
				masked.Notify.Webhooks[i] = w
			}
			return printJSON(cmd.OutOrStdout(), masked)
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}
