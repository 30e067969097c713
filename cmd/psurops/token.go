package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"psurops/internal/auth"
	"psurops/internal/config"
)

func newTokenCmd(g *globalOptions) *cobra.Command {
	var save bool
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Generate an API token for the HTTP server",
		Long: `Generate a random bearer token and its bcrypt hash. Only the hash is
stored in configuration (server.authTokenHash); the token itself is shown once.

Examples:
  psurops token
  psurops token --save
  psurops token hash psur_sk_...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := auth.GenerateToken()
			if err != nil {
				return err
			}
			hash, err := auth.HashToken(token)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Token: %s\n", token)
			fmt.Fprintf(out, "Hash:  %s\n", hash)

			if !save {
				fmt.Fprintln(out, "\nSet server.authTokenHash to the hash (or PSUROPS_SERVER_AUTHTOKENHASH) to require it.")
				return nil
			}
			path, err := saveTokenHash(g, hash)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\nSaved hash to %s. Store the token now; it cannot be recovered.\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "Write the hash into the config file")

	cmd.AddCommand(&cobra.Command{
		Use:   "hash <token>",
		Short: "Print the bcrypt hash of an existing token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !auth.IsValidTokenFormat(args[0]) {
				return fmt.Errorf("not a psurops token: %s", auth.MaskToken(args[0]))
			}
			hash, err := auth.HashToken(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	})
	return cmd
}

// saveTokenHash updates the config file in place, creating it when missing.
func saveTokenHash(g *globalOptions, hash string) (string, error) {
	cfg, root, err := g.loadConfig()
	if err != nil {
		return "", err
	}
	path := g.configPath
	if path == "" {
		path = filepath.Join(root, config.DirName, "config.json")
	}
	cfg.Server.AuthTokenHash = hash
	if err := cfg.Save(path); err != nil {
		return "", fmt.Errorf("save config: %w", err)
	}
	return path, nil
}
