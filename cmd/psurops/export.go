package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

// exportOps maps format names and aliases to export operations.
var exportOps = map[string]string{
	"csv":      "export_csv",
	"xlsx":     "export_excel",
	"excel":    "export_excel",
	"ics":      "export_calendar",
	"calendar": "export_calendar",
	"json":     "export_snapshot",
	"snapshot": "export_snapshot",
}

type exportOptions struct {
	filename   string
	filters    map[string]string
	withinDays int
}

func newExportCmd(g *globalOptions) *cobra.Command {
	opts := &exportOptions{}
	cmd := &cobra.Command{
		Use:   "export <csv|xlsx|ics|json>",
		Short: "Export rows to the configured export sink",
		Long: `Render matching rows as CSV, an Excel workbook, an iCalendar file with one
all-day event per due date, or a JSON snapshot, and write the result to the
export sink (a local directory or an S3 bucket). The stored location is
printed.

Examples:
  psurops export csv
  psurops export ics --within-days 90
  psurops export xlsx --filter writer=Jeff --filter status=Drafting`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, ok := exportOps[strings.ToLower(args[0])]
			if !ok {
				names := make([]string, 0, len(exportOps))
				for k := range exportOps {
					names = append(names, k)
				}
				sort.Strings(names)
				return fmt.Errorf("unknown export format %q (valid: %s)", args[0], strings.Join(names, ", "))
			}

			callArgs := map[string]interface{}{}
			if opts.filename != "" {
				callArgs["filename"] = opts.filename
			}
			if len(opts.filters) > 0 {
				filter := make(map[string]interface{}, len(opts.filters))
				for k, v := range opts.filters {
					filter[k] = v
				}
				callArgs["filter"] = filter
			}
			if opts.withinDays > 0 {
				callArgs["within_days"] = opts.withinDays
			}

			a, err := openApp(cmd.Context(), g, false)
			if err != nil {
				return err
			}
			defer a.Close()

			resp := a.dispatcher.Call(cmd.Context(), op, callArgs)
			if err := responseError(op, resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %v records to %v\n", resp["count"], resp["file_url"])
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.filename, "filename", "", "Output file name (default depends on format)")
	cmd.Flags().StringToStringVar(&opts.filters, "filter", nil, "Filter as key=value (writer, class, status, type, product, overdue_only, due_year)")
	cmd.Flags().IntVar(&opts.withinDays, "within-days", 0, "Calendar only: items due within N days")
	return cmd
}
