package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"psurops/internal/notify"
)

type importOptions struct {
	columns string
	sheet   string
	dryRun  bool
}

func newImportCmd(g *globalOptions) *cobra.Command {
	opts := &importOptions{}
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Replace every row with the contents of a workbook",
		Long: `Load a schedule from an .xlsx workbook, a .csv file or a JSON snapshot
(.json or .json.gz) and replace the stored rows with it. Due dates in the file
are ignored and re-derived from each row's period end.

With --dry-run the file is parsed and summarized but nothing is written.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), g, true)
			if err != nil {
				return err
			}
			defer a.Close()

			ic := a.cfg.Ingest
			if opts.columns != "" {
				ic.ColumnsFile = opts.columns
			}
			if opts.sheet != "" {
				ic.Sheet = opts.sheet
			}
			src := newRecordsFile(a.root, args[0], ic, a.logger)
			rs, err := src.Load(cmd.Context())
			if err != nil {
				return err
			}
			if opts.dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d records (dry run, nothing written)\n", args[0], len(rs))
				return nil
			}
			n, err := a.store.Reload(cmd.Context(), rs)
			if err != nil {
				return err
			}
			a.notifier.Publish(notify.EventReload, map[string]interface{}{"count": n, "source": src.path})
			a.metrics.SetRecords(n)
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d records from %s\n", n, args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.columns, "columns", "", "TOML column map overriding the default headers")
	cmd.Flags().StringVar(&opts.sheet, "sheet", "", "Workbook sheet to read (default: best matching sheet)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Parse and count without writing")
	return cmd
}
