package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"psurops/internal/projection"
)

func newStatsCmd(g *globalOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show schedule statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), g, false)
			if err != nil {
				return err
			}
			defer a.Close()

			resp := a.dispatcher.Call(cmd.Context(), "get_stats", nil)
			if err := responseError("get_stats", resp); err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			var s projection.Stats
			if err := decode(resp, &s); err != nil {
				return err
			}
			printStats(cmd.OutOrStdout(), s)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw JSON payload")
	return cmd
}

func printStats(w io.Writer, s projection.Stats) {
	fmt.Fprintf(w, "Reports:        %d\n", s.Total)
	fmt.Fprintf(w, "Overdue:        %d\n", s.Overdue)
	fmt.Fprintf(w, "Due in 30 days: %d\n", s.DueWithin30)
	fmt.Fprintf(w, "Missing due:    %d\n", s.MissingDue)
	fmt.Fprintf(w, "Duplicate TDs:  %d\n", len(s.Duplicates))
	if len(s.Duplicates) > 0 {
		fmt.Fprintf(w, "                %s\n", strings.Join(s.Duplicates, ", "))
	}
	printCounts(w, "By status", s.ByStatus)
	printCounts(w, "By class", s.ByClass)
	printCounts(w, "By writer", s.ByWriter)
}

// printCounts lists counts largest first, ties by name.
func printCounts(w io.Writer, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	fmt.Fprintf(w, "\n%s:\n", title)
	for _, k := range keys {
		label := k
		if label == "" {
			label = "(blank)"
		}
		fmt.Fprintf(w, "  %-24s %d\n", label, counts[k])
	}
}
