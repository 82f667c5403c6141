package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/sells-group/caseaudit/internal/report"
)

var ledgerPath string

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Summarize the case report ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ledgerPath
		if path == "" {
			if err := cfg.Validate("report"); err != nil {
				return err
			}
			path = cfg.Report.Path
		}

		totals, err := report.ReadTotals(cmd.Context(), path)
		if err != nil {
			return err
		}
		printTotals(cmd.OutOrStdout(), path, totals)
		return nil
	},
}

func printTotals(w io.Writer, path string, t *report.Totals) {
	fmt.Fprintf(w, "%s: %d cases\n", path, t.Rows)
	actions := make([]string, 0, len(t.ByAction))
	for a := range t.ByAction {
		actions = append(actions, a)
	}
	sort.Strings(actions)
	for _, a := range actions {
		fmt.Fprintf(w, "  %-12s %d\n", a, t.ByAction[a])
	}
}

func init() {
	ledgerCmd.Flags().StringVar(&ledgerPath, "path", "", "ledger file (default from config)")
	rootCmd.AddCommand(ledgerCmd)
}
