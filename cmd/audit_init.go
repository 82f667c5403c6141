package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/caseaudit/internal/compliance"
	"github.com/sells-group/caseaudit/internal/config"
	"github.com/sells-group/caseaudit/internal/evidence"
	"github.com/sells-group/caseaudit/internal/lookup"
	"github.com/sells-group/caseaudit/internal/manifest"
	"github.com/sells-group/caseaudit/internal/model"
	"github.com/sells-group/caseaudit/internal/ocr"
	"github.com/sells-group/caseaudit/internal/report"
	"github.com/sells-group/caseaudit/internal/resilience"
	"github.com/sells-group/caseaudit/internal/store"
)

// auditEnv holds everything the evaluate/batch/serve commands need.
type auditEnv struct {
	Engine    *compliance.Engine
	Extractor ocr.Extractor
	Lookup    *lookup.Resilient
	Ledger    report.Sink
	Store     store.Store // may be nil
}

// Close releases resources held by the environment.
func (ae *auditEnv) Close() {
	if ae.Store != nil {
		_ = ae.Store.Close()
	}
}

// initAudit builds the extractor, lookup, engine, ledger and store from
// cfg. Callers should defer env.Close().
func initAudit(ctx context.Context, c *config.Config) (*auditEnv, error) {
	if err := c.Validate("evaluate"); err != nil {
		return nil, err
	}

	ext, err := ocr.NewExtractor(c.OCR)
	if err != nil {
		return nil, err
	}

	retry, breaker := resilience.FromLookupConfig(c.Lookup)
	port := lookup.NewResilient(lookup.NewWorkbook(c.Spreadsheet), retry, breaker)

	table := evidence.DefaultTable().WithCadinEmail(c.Compliance.CadinEmail)
	engine, err := compliance.NewEngine(port, ext, evidence.NewClassifier(table, ext), compliance.OptionsFromConfig(c.Compliance))
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, c.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open decision store")
	}

	return &auditEnv{
		Engine:    engine,
		Extractor: ext,
		Lookup:    port,
		Ledger:    report.NewCSVLedger(c.Report.Path),
		Store:     st,
	}, nil
}

// caseOutcome is what evaluate prints and the API returns.
type caseOutcome struct {
	Case     model.CaseData            `json:"case"`
	Decision *model.DecisionResult     `json:"decision"`
	Plan     compliance.SubmissionPlan `json:"plan"`
	Evidence *model.Classification     `json:"evidence,omitempty"`
	Ledger   *report.Row               `json:"ledger,omitempty"`
	RecordID string                    `json:"record_id,omitempty"`
}

// evaluateCase runs one case start to finish: pre-extract evidence text,
// classify, evaluate, then append the ledger row and persist the decision.
// Ledger and store failures are logged; the decision still stands.
func (ae *auditEnv) evaluateCase(ctx context.Context, m *manifest.Manifest) (*caseOutcome, error) {
	log := zap.L().With(zap.String("case_id", m.CaseID), zap.String("contract", m.ContractCode))

	tr := report.NewTracker(ae.Ledger)
	tr.Start(m.CaseID)
	tr.Update(m.CaseData)

	if cache, ok := ae.Extractor.(*ocr.Cache); ok {
		defer cache.Reset()
		if err := cache.Warm(ctx, m.Paths()); err != nil {
			log.Warn("evidence pre-extraction incomplete", zap.Error(err))
		}
	}

	abort := func(err error) (*caseOutcome, error) {
		tr.LogDoc("ERROR", err.Error())
		if _, ferr := tr.Finalize(context.WithoutCancel(ctx), "Erro"); ferr != nil {
			log.Warn("ledger write failed", zap.Error(ferr))
		}
		return nil, eris.Wrap(err, "evaluate case")
	}

	cls, err := ae.Engine.Classifier().Classify(ctx, m.Evidence)
	if err != nil {
		return abort(err)
	}
	d := ae.Engine.EvaluateClassified(ctx, m.CaseData, cls)
	// rules cut short by cancellation fail, and that is not a decision
	if err := ctx.Err(); err != nil {
		return abort(err)
	}
	plan := compliance.PlanSubmission(d)

	out := &caseOutcome{Case: m.CaseData, Decision: d, Plan: plan, Evidence: cls}

	tr.LogDecision(d)
	started := tr.StartedAt()
	row, err := tr.Finalize(ctx, plan.Action)
	if err != nil {
		log.Warn("ledger write failed", zap.Error(err))
	} else {
		out.Ledger = &row
	}

	if ae.Store != nil {
		rec := &model.DecisionRecord{
			Case:       m.CaseData,
			Decision:   *d,
			Action:     plan.Action,
			StartedAt:  started,
			FinishedAt: time.Now(),
		}
		if err := ae.Store.SaveDecision(ctx, rec); err != nil {
			log.Warn("decision not persisted", zap.Error(err))
		} else {
			out.RecordID = rec.ID
		}
	}

	log.Info("case finished",
		zap.String("action", plan.Action),
		zap.Int("flags", len(plan.Flags)),
	)
	return out, nil
}
