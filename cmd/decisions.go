package main

import (
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/caseaudit/internal/model"
	"github.com/sells-group/caseaudit/internal/report"
	"github.com/sells-group/caseaudit/internal/store"
)

var (
	decisionsCase  string
	decisionsLimit int
	decisionsJSON  bool
)

var decisionsCmd = &cobra.Command{
	Use:   "decisions",
	Short: "List persisted case decisions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return err
		}
		if st == nil {
			return eris.New("decision store is disabled (store.driver=none)")
		}
		defer st.Close() //nolint:errcheck

		recs, err := st.ListDecisions(ctx, store.DecisionFilter{CaseID: decisionsCase, Limit: decisionsLimit})
		if err != nil {
			return err
		}
		if decisionsJSON {
			return writeJSON(cmd.OutOrStdout(), recs)
		}
		printDecisions(cmd.OutOrStdout(), recs)
		return nil
	},
}

func printDecisions(w io.Writer, recs []model.DecisionRecord) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "no decisions")
		return
	}
	for _, r := range recs {
		fmt.Fprintf(w, "%s  %-22s %-8s %d reasons  %s\n",
			r.FinishedAt.Local().Format(report.TimeLayout), r.Case.CaseID, r.Action, len(r.Decision.Reasons), r.ID)
	}
}

func init() {
	decisionsCmd.Flags().StringVar(&decisionsCase, "case", "", "only decisions for this case ID")
	decisionsCmd.Flags().IntVar(&decisionsLimit, "limit", 20, "max decisions to list")
	decisionsCmd.Flags().BoolVar(&decisionsJSON, "json", false, "print records as JSON")
	rootCmd.AddCommand(decisionsCmd)
}
