package compliance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sells-group/caseaudit/internal/fold"
	"github.com/sells-group/caseaudit/internal/lookup"
	"github.com/sells-group/caseaudit/internal/model"
	"github.com/sells-group/caseaudit/internal/money"
	"github.com/sells-group/caseaudit/internal/ocr"
)

// Input is what every rule sees for one case.
type Input struct {
	Case     model.CaseData
	Evidence *model.Classification
}

// Outcome is a rule's verdict. A passing outcome may still carry warnings.
type Outcome struct {
	Failed   bool
	Message  string
	Warnings []string
	// DocText overrides the fixed failedDocs justification for the rule.
	DocText string
}

func pass(warnings ...string) Outcome { return Outcome{Warnings: warnings} }

func fail(msg string) Outcome { return Outcome{Failed: true, Message: msg} }

// Rule is one independent checklist predicate producing zero or one reason.
type Rule interface {
	ID() model.RuleID
	Check(ctx context.Context, in *Input) Outcome
}

// Keyword sets searched in document text. Matching is accent-insensitive.
var (
	ProtestKeywords   = []string{"protesto", "efetivado", "intimação", "tabelião", "cartório"}
	SignatureKeywords = []string{"assinado", "assinatura", "testemunha", "firmado"}
)

const msgIncompleteCase = "Dados do caso incompletos (Contrato, CNPJ ou Valor) para validação cruzada."

// financialCrossCheck compares the portal debt with the AVD spreadsheet sum.
type financialCrossCheck struct {
	port      lookup.Port
	tolerance decimal.Decimal
}

func (financialCrossCheck) ID() model.RuleID { return model.RuleFinancialCrossCheck }

func (r financialCrossCheck) Check(ctx context.Context, in *Input) Outcome {
	c := in.Case
	if !c.HasFinancialFields() {
		return fail(msgIncompleteCase)
	}
	code := strings.TrimSpace(c.ContractCode)

	ref, ok, err := r.port.FindReference(ctx, code)
	if err != nil {
		return fail(lookupFailedMessage(err))
	}
	if !ok {
		return fail(fmt.Sprintf("Contrato %s não encontrado na planilha mestre (Rule 1.1).", code))
	}

	sum, err := r.port.SumDebt(ctx, ref, c.CNPJ)
	if err != nil {
		return fail(lookupFailedMessage(err))
	}

	cmp := money.Compare(sum.Total, c.DebtAmount, r.tolerance)
	if !cmp.Within {
		return fail("Divergência de valores (Rule 1.1): " + cmp.Message())
	}
	if cmp.ParseErr != nil {
		return pass(fmt.Sprintf("Valor do portal %q ilegível, considerado 0 (Rule 1.1)", c.DebtAmount))
	}
	return pass()
}

// lookupFailedMessage describes a spreadsheet that could not be queried.
// It never reads as a missing contract.
func lookupFailedMessage(err error) string {
	kind := "erro na planilha"
	if errors.Is(err, lookup.ErrLookupFailed) {
		kind = "planilha indisponível"
	}
	return fmt.Sprintf("Falha na consulta à planilha (Rule 1.1): %s (%v). Repetir a consulta ou validar manualmente.", kind, err)
}

// anyCategory passes when at least one of the categories is present.
type anyCategory struct {
	id         model.RuleID
	categories []model.Category
	msg        string
}

func (r anyCategory) ID() model.RuleID { return r.id }

func (r anyCategory) Check(_ context.Context, in *Input) Outcome {
	for _, cat := range r.categories {
		if in.Evidence.Has(cat) {
			return pass()
		}
	}
	return fail(r.msg)
}

// requiredDocument fails when the category is absent.
type requiredDocument struct {
	id       model.RuleID
	category model.Category
	msg      string
}

func (r requiredDocument) ID() model.RuleID { return r.id }

func (r requiredDocument) Check(_ context.Context, in *Input) Outcome {
	if !in.Evidence.Has(r.category) {
		return fail(r.msg)
	}
	return pass()
}

// forbiddenDocument fails when the category is present.
type forbiddenDocument struct {
	id       model.RuleID
	category model.Category
	msg      string
}

func (r forbiddenDocument) ID() model.RuleID { return r.id }

func (r forbiddenDocument) Check(_ context.Context, in *Input) Outcome {
	if in.Evidence.Has(r.category) {
		return fail(r.msg)
	}
	return pass()
}

// documentKeywords requires the category and at least one keyword in the
// text of one of its documents. A document whose text cannot be extracted
// passes with a warning.
type documentKeywords struct {
	id         model.RuleID
	category   model.Category
	keywords   []string
	missingMsg string
	invalidMsg string
	extractor  ocr.Extractor
}

func (r documentKeywords) ID() model.RuleID { return r.id }

func (r documentKeywords) Check(ctx context.Context, in *Input) Outcome {
	if !in.Evidence.Has(r.category) {
		return fail(r.missingMsg)
	}

	var (
		unreadable []string
		readErr    error
	)
	for _, it := range in.Evidence.Items {
		if !it.Exists || !it.Is(r.category) {
			continue
		}
		text, err := ocr.SearchText(ctx, r.extractor, it.FilePath)
		if err != nil {
			if errors.Is(err, ocr.ErrExtractionFailed) {
				unreadable = append(unreadable, it.DisplayName)
			} else if readErr == nil {
				readErr = err
			}
			continue
		}
		if _, ok := fold.ContainsAny(text, r.keywords); ok {
			return pass()
		}
	}

	if err := ctx.Err(); err != nil {
		return fail(fmt.Sprintf("%s Avaliação interrompida: %v", r.invalidMsg, err))
	}
	if readErr != nil {
		return fail(fmt.Sprintf("%s Erro ao ler documento: %v", r.invalidMsg, readErr))
	}
	if len(unreadable) > 0 {
		warnings := make([]string, len(unreadable))
		for i, name := range unreadable {
			warnings[i] = fmt.Sprintf("Benefício da dúvida (%s): texto de %q não pôde ser extraído", r.id, name)
		}
		return pass(warnings...)
	}
	return fail(r.invalidMsg)
}

// protestAmount requires the portal debt amount to appear in the protest
// document, or in the calculation memo when the protest covers several
// contracts. It defers to other rules when the protest or the amount is
// missing.
type protestAmount struct {
	validate func(ctx context.Context, protestPath, expected, memoPath string) ProtestCheck
}

func (protestAmount) ID() model.RuleID { return model.RuleProtestAmount }

func (r protestAmount) Check(ctx context.Context, in *Input) Outcome {
	protest, ok := in.Evidence.First(model.CategoryComprovanteProtesto)
	if !ok || strings.TrimSpace(in.Case.DebtAmount) == "" {
		return pass()
	}
	var memoPath string
	if memo, ok := in.Evidence.First(model.CategoryMemorial); ok {
		memoPath = memo.FilePath
	}

	check := r.validate(ctx, protest.FilePath, in.Case.DebtAmount, memoPath)
	if !check.OK {
		out := fail("Valor do protesto divergente (Rule 3.1): " + check.Message)
		out.DocText = "Valor divergente: " + check.Message
		return out
	}
	if check.Source == SourceMemo {
		return pass(check.Message)
	}
	return pass()
}
