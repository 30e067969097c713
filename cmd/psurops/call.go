package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

func newCallCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "call <operation> [json-args]",
		Short: "Run one operation and print its response",
		Long: `Run a single dispatcher operation. Arguments are a JSON object; pass "-"
to read them from stdin. The full response is printed as JSON, and the command
exits non-zero when the operation fails.

Examples:
  psurops call get_report '{"row_id": "td 45"}'
  psurops call update_status '{"row_id": "TD045", "status": "Drafting"}'
  echo '{"filters": {"writer": "Jeff"}}' | psurops call list_reports -`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			callArgs, err := parseArgs(cmd.InOrStdin(), args[1:])
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), g, true)
			if err != nil {
				return err
			}
			defer a.Close()

			resp := a.dispatcher.Call(cmd.Context(), args[0], callArgs)
			if err := printJSON(cmd.OutOrStdout(), resp); err != nil {
				return err
			}
			return responseError(args[0], resp)
		},
	}
}

// parseArgs decodes the optional JSON argument object.
func parseArgs(stdin io.Reader, args []string) (map[string]interface{}, error) {
	if len(args) == 0 {
		return map[string]interface{}{}, nil
	}
	raw := args[0]
	if raw == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read arguments: %w", err)
		}
		raw = string(data)
	}
	out := map[string]interface{}{}
	if strings.TrimSpace(raw) == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("arguments must be a JSON object: %w", err)
	}
	return out, nil
}
