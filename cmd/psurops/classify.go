package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"psurops/internal/intent"
)

func newClassifyCmd(g *globalOptions) *cobra.Command {
	var execute bool
	cmd := &cobra.Command{
		Use:   "classify <text...>",
		Short: "Map a free-text request to an operation",
		Long: `Classify a short request ("when is td 45 due", "what's overdue for Jeff")
into an intent and the operation that serves it. Rules are evaluated in a
fixed order and the first match wins.

With --execute the suggested operation is run with the identifiers found in
the text.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res := intent.NewRouter(nil).Classify(strings.Join(args, " "))
			if !execute {
				return printJSON(cmd.OutOrStdout(), res)
			}
			if res.Operation == "" {
				return fmt.Errorf("no operation for intent %s", res.Label)
			}

			a, err := openApp(cmd.Context(), g, true)
			if err != nil {
				return err
			}
			defer a.Close()

			resp := a.dispatcher.Call(cmd.Context(), res.Operation, res.Args())
			resp["classification"] = res
			if err := printJSON(cmd.OutOrStdout(), resp); err != nil {
				return err
			}
			return responseError(res.Operation, resp)
		},
	}
	cmd.Flags().BoolVar(&execute, "execute", false, "Run the suggested operation")
	return cmd
}
