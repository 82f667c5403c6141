package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/caseaudit/internal/manifest"
)

var (
	batchDir   string
	batchLimit int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Evaluate every case manifest in a directory",
	Long:  "Evaluates manifests one at a time in name order. A failing case is logged and skipped.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		paths, err := manifest.Glob(batchDir)
		if err != nil {
			return err
		}
		if batchLimit > 0 && len(paths) > batchLimit {
			paths = paths[:batchLimit]
		}

		env, err := initAudit(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		sum := runBatch(ctx, env, paths)
		fmt.Fprintf(cmd.OutOrStdout(), "processed %d, approved %d, adjust %d, failed %d\n",
			sum.Processed, sum.Approved, sum.Adjust, sum.Failed)
		return nil
	},
}

type batchSummary struct {
	Processed int
	Approved  int
	Adjust    int
	Failed    int
}

type caseEvaluator interface {
	evaluateCase(ctx context.Context, m *manifest.Manifest) (*caseOutcome, error)
}

// runBatch evaluates each manifest start to finish before the next.
func runBatch(ctx context.Context, ev caseEvaluator, paths []string) batchSummary {
	var sum batchSummary
	for _, p := range paths {
		if ctx.Err() != nil {
			zap.L().Warn("batch: cancelled", zap.Int("remaining", len(paths)-sum.Processed))
			break
		}
		sum.Processed++

		m, err := manifest.Load(p)
		if err != nil {
			sum.Failed++
			zap.L().Error("batch: manifest skipped", zap.String("path", p), zap.Error(err))
			continue
		}
		out, err := ev.evaluateCase(ctx, m)
		if err != nil {
			sum.Failed++
			zap.L().Error("batch: case failed", zap.String("path", p), zap.String("case_id", m.CaseID), zap.Error(err))
			continue
		}
		if out.Decision.Approved {
			sum.Approved++
		} else {
			sum.Adjust++
		}
	}
	return sum
}

func init() {
	batchCmd.Flags().StringVar(&batchDir, "dir", ".", "directory of case manifests")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max manifests to process (0 = all)")
	rootCmd.AddCommand(batchCmd)
}
