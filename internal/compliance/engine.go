// Package compliance decides whether a case satisfies the RES 1125
// checklist and explains every failure it finds.
package compliance

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/caseaudit/internal/config"
	"github.com/sells-group/caseaudit/internal/evidence"
	"github.com/sells-group/caseaudit/internal/lookup"
	"github.com/sells-group/caseaudit/internal/model"
	"github.com/sells-group/caseaudit/internal/money"
	"github.com/sells-group/caseaudit/internal/ocr"
)

// Options tunes the engine.
type Options struct {
	// Tolerance is the accepted difference between spreadsheet sum and
	// portal amount. Zero means money.DefaultTolerance.
	Tolerance decimal.Decimal
	// EnforceProtestAmount adds the protest_amount rule.
	EnforceProtestAmount bool
}

// OptionsFromConfig maps the compliance config section to Options.
func OptionsFromConfig(cfg config.ComplianceConfig) Options {
	opts := Options{EnforceProtestAmount: cfg.EnforceProtestAmount}
	if cfg.AmountTolerance > 0 {
		opts.Tolerance = decimal.NewFromFloat(cfg.AmountTolerance)
	}
	return opts
}

// docFlag is the portal documents-table row a failed rule points at.
type docFlag struct {
	Label string
	Text  string
}

// failedDocFlags maps rules to their row flag. The financial cross-check is
// a case-level defect and flags no row.
var failedDocFlags = map[model.RuleID]docFlag{
	model.RuleCadinEvidence:        {"Inscrição no cadastro de inadimplentes", "Ausência de evidências de inscrição no CADIN (Rule 2.1)"},
	model.RuleProtestProof:         {"Comprovante de Protesto", "Comprovante de protesto não encontrado ou inválido (Rule 3.1)"},
	model.RuleCommitmentTerm:       {"Termo de Compromisso", "Termo de compromisso ausente ou sem assinatura (Rule 4.1)"},
	model.RuleRegularityCert:       {"Regularidade do CNPJ", "Certidão de regularidade ausente (Rule 6.1)"},
	model.RuleImpossibilityExclude: {"Impossibilidade", "Campo não deve conter documentos (Rule 7.0)"},
	model.RuleProtestAmount:        {"Protesto", "Valor divergente"},
}

// Engine evaluates cases against the rule set. It holds no per-case state
// and may be reused for any number of cases.
type Engine struct {
	lookup     lookup.Port
	extractor  ocr.Extractor
	classifier *evidence.Classifier
	rules      []Rule
}

// NewEngine wires an engine from its collaborators.
func NewEngine(port lookup.Port, extractor ocr.Extractor, classifier *evidence.Classifier, opts Options) (*Engine, error) {
	if port == nil || extractor == nil || classifier == nil {
		return nil, eris.New("compliance: lookup port, extractor and classifier are required")
	}
	tolerance := opts.Tolerance
	if !tolerance.IsPositive() {
		tolerance = money.DefaultTolerance
	}

	e := &Engine{lookup: port, extractor: extractor, classifier: classifier}
	e.rules = []Rule{
		financialCrossCheck{port: port, tolerance: tolerance},
		anyCategory{
			id:         model.RuleCadinEvidence,
			categories: []model.Category{model.CategoryRelatorio, model.CategoryComunicacao, model.CategoryMemorial},
			msg:        "Ausência de evidências de inscrição no CADIN (Rule 2.1).",
		},
		documentKeywords{
			id:         model.RuleProtestProof,
			category:   model.CategoryComprovanteProtesto,
			keywords:   ProtestKeywords,
			missingMsg: "Comprovante de protesto não encontrado (Rule 3.1).",
			invalidMsg: "Comprovante de protesto parece inválido ou ilegível (Rule 3.1).",
			extractor:  extractor,
		},
		documentKeywords{
			id:         model.RuleCommitmentTerm,
			category:   model.CategoryTermoCompromisso,
			keywords:   SignatureKeywords,
			missingMsg: "Termo de compromisso ausente (Rule 4.1).",
			invalidMsg: "Termo de compromisso ausente ou sem assinatura (Rule 4.1).",
			extractor:  extractor,
		},
		requiredDocument{
			id:       model.RuleRegularityCert,
			category: model.CategoryCertidaoRegularidade,
			msg:      "Certidão de regularidade ausente (Rule 6.1).",
		},
		forbiddenDocument{
			id:       model.RuleImpossibilityExclude,
			category: model.CategoryImpossibilidadeProtesto,
			msg:      "Campo 'Impossibilidade do Protesto' não deve conter documentos (Rule 7.0).",
		},
	}
	if opts.EnforceProtestAmount {
		e.rules = append(e.rules, protestAmount{validate: e.ValidateProtestAmount})
	}
	return e, nil
}

// Rules returns the rule IDs in evaluation order.
func (e *Engine) Rules() []model.RuleID {
	ids := make([]model.RuleID, len(e.rules))
	for i, r := range e.rules {
		ids[i] = r.ID()
	}
	return ids
}

// Classifier returns the evidence classifier the engine uses.
func (e *Engine) Classifier() *evidence.Classifier {
	return e.classifier
}

// Evaluate classifies the evidence and runs every rule. An error means the
// input was malformed or ctx ended first, and no decision was made.
func (e *Engine) Evaluate(ctx context.Context, c model.CaseData, items []model.EvidenceItem) (*model.DecisionResult, error) {
	cls, err := e.classifier.Classify(ctx, items)
	if err != nil {
		return nil, eris.Wrap(err, "compliance: classify evidence")
	}
	d := e.EvaluateClassified(ctx, c, cls)
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "compliance: evaluation interrupted")
	}
	return d, nil
}

// EvaluateClassified runs every rule against already classified evidence.
// Rules never short-circuit each other; reasons come out in rule order.
func (e *Engine) EvaluateClassified(ctx context.Context, c model.CaseData, cls *model.Classification) *model.DecisionResult {
	if cls == nil {
		cls = &model.Classification{Present: map[model.Category]bool{}}
	}
	in := &Input{Case: c, Evidence: cls}

	result := &model.DecisionResult{
		Approved:   true,
		FailedDocs: map[string]string{},
		Reasons:    []model.ValidationReason{},
		Warnings:   append([]string(nil), cls.Warnings...),
	}
	docTexts := make(map[model.RuleID]string)

	for _, r := range e.rules {
		out := e.run(ctx, r, in)
		result.Warnings = append(result.Warnings, out.Warnings...)
		if !out.Failed {
			continue
		}
		result.Approved = false
		result.Reasons = append(result.Reasons, model.ValidationReason{RuleID: r.ID(), Message: out.Message})
		docTexts[r.ID()] = out.DocText
	}

	for _, reason := range result.Reasons {
		flag, ok := failedDocFlags[reason.RuleID]
		if !ok {
			continue
		}
		text := flag.Text
		if override := docTexts[reason.RuleID]; override != "" {
			text = override
		}
		result.FailedDocs[flag.Label] = text
	}

	zap.L().Info("compliance: case evaluated",
		zap.String("case_id", c.CaseID),
		zap.String("contract", c.ContractCode),
		zap.Bool("approved", result.Approved),
		zap.Int("reasons", len(result.Reasons)),
		zap.Int("warnings", len(result.Warnings)),
	)
	return result
}

// run isolates one rule: a panic becomes that rule's reason.
func (e *Engine) run(ctx context.Context, r Rule, in *Input) (out Outcome) {
	defer func() {
		if p := recover(); p != nil {
			zap.L().Error("compliance: rule panicked",
				zap.String("rule", string(r.ID())),
				zap.Any("panic", p),
			)
			out = fail(fmt.Sprintf("Erro interno na regra %s (rule panicked): %v", r.ID(), p))
		}
	}()
	return r.Check(ctx, in)
}

// ValidateProtestAmount runs the package-level check with the engine's
// extractor.
func (e *Engine) ValidateProtestAmount(ctx context.Context, protestPath, expected, memoPath string) ProtestCheck {
	return ValidateProtestAmount(ctx, e.extractor, protestPath, expected, memoPath)
}
