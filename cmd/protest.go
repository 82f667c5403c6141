package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/caseaudit/internal/compliance"
	"github.com/sells-group/caseaudit/internal/ocr"
)

var (
	protestPath   string
	protestAmount string
	protestMemo   string
	protestJSON   bool
)

var protestCmd = &cobra.Command{
	Use:   "protest",
	Short: "Check that a debt amount appears in a protest document",
	Long:  "Searches the protest document for the amount, falling back to the calculation memo when one is given.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ext, err := ocr.NewExtractor(cfg.OCR)
		if err != nil {
			return err
		}

		check := compliance.ValidateProtestAmount(cmd.Context(), ext, protestPath, protestAmount, protestMemo)
		if protestJSON {
			return writeJSON(cmd.OutOrStdout(), check)
		}

		status := "FAIL"
		if check.OK {
			status = "OK"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", status, check.Message)
		if !check.OK {
			cmd.SilenceUsage = true
			return eris.New("protest amount not validated")
		}
		return nil
	},
}

func init() {
	protestCmd.Flags().StringVar(&protestPath, "protest", "", "protest document")
	protestCmd.Flags().StringVar(&protestAmount, "amount", "", `expected amount, e.g. "R$ 1.234,56"`)
	protestCmd.Flags().StringVar(&protestMemo, "memo", "", "calculation memo (optional)")
	protestCmd.Flags().BoolVar(&protestJSON, "json", false, "print the result as JSON")
	_ = protestCmd.MarkFlagRequired("protest")
	_ = protestCmd.MarkFlagRequired("amount")
	rootCmd.AddCommand(protestCmd)
}
