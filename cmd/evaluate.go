package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/caseaudit/internal/manifest"
)

var (
	evaluateManifest string
	evaluateJSON     bool
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate one case from its manifest",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		m, err := manifest.Load(evaluateManifest)
		if err != nil {
			return err
		}

		env, err := initAudit(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		out, err := env.evaluateCase(ctx, m)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if evaluateJSON {
			return writeJSON(w, out)
		}
		printOutcome(w, out)
		return nil
	},
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "encode output")
}

func printOutcome(w io.Writer, out *caseOutcome) {
	fmt.Fprintf(w, "Case %s (contract %s): %s\n", out.Case.CaseID, out.Case.ContractCode, out.Plan.Action)
	for _, r := range out.Decision.Reasons {
		fmt.Fprintf(w, "  [%s] %s\n", r.RuleID, r.Message)
	}
	for _, f := range out.Plan.Flags {
		fmt.Fprintf(w, "  flag %q: %s\n", f.Label, f.Justification)
	}
	for _, warn := range out.Decision.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warn)
	}
	fmt.Fprintf(w, "  %s\n", out.Plan.Observation)
}

func init() {
	evaluateCmd.Flags().StringVar(&evaluateManifest, "manifest", "", "case manifest (YAML)")
	evaluateCmd.Flags().BoolVar(&evaluateJSON, "json", false, "print the full outcome as JSON")
	_ = evaluateCmd.MarkFlagRequired("manifest")
	rootCmd.AddCommand(evaluateCmd)
}
