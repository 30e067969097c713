package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"psurops/internal/dispatch"
	"psurops/internal/storage"
)

func newToolsCmd(g *globalOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the operation vocabulary",
		Long: `List every operation the dispatcher accepts. Mutating operations are
marked with *. With --json the input schemas are included, in the same shape
served by GET /tools and the MCP tools/list method.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// The vocabulary does not depend on storage.
			store := storage.NewStore(storage.NewMemoryBackend(), storage.Options{})
			defer store.Close()
			ops := dispatch.New(store, dispatch.Options{}).Operations()

			if asJSON {
				return printJSON(cmd.OutOrStdout(), map[string]interface{}{
					"tools":              ops,
					"count":              len(ops),
					"vocabulary_version": dispatch.VocabularyVersion,
				})
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, op := range ops {
				mark := " "
				if op.Mutating {
					mark = "*"
				}
				fmt.Fprintf(tw, "%s %s\t%s\n", mark, op.Name, op.Description)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d operations (vocabulary v%d)\n", len(ops), dispatch.VocabularyVersion)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print operations with input schemas as JSON")
	return cmd
}
