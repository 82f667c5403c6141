package evidence

import "github.com/sells-group/caseaudit/internal/model"

// CategoryRule lists the display-name keywords that put an item into a
// category. An item matching any Exclude keyword is kept out of it.
type CategoryRule struct {
	Category model.Category
	Keywords []string
	Exclude  []string
}

// SectionHint maps a portal documents-table section to a category.
type SectionHint struct {
	Contains string
	Category model.Category
}

// Table is the classification policy. Matching is case- and
// accent-insensitive substring search.
type Table struct {
	Rules        []CategoryRule
	SectionHints []SectionHint
	// ContentTokens are searched in document text when comunicacao is not
	// found by name.
	ContentTokens []string
}

// DefaultCadinEmail is the registry mailbox whose presence in a document
// proves the communication history.
const DefaultCadinEmail = "inadimplentes.saf@aneel.gov.br"

// DefaultTable returns the RES 1125 classification policy.
func DefaultTable() Table {
	return Table{
		Rules: []CategoryRule{
			{Category: model.CategoryRelatorio, Keywords: []string{"relatório", "aneel", "débito", "geradora", "1 1", "1 2"}},
			{Category: model.CategoryComunicacao, Keywords: []string{"comunicação", "email", "e-mail", "histórico", "solicitação", "resposta"}},
			{Category: model.CategoryMemorial, Keywords: []string{"memorial", "descritivo", "memória", "cálculo", "contratos"}},
			{
				Category: model.CategoryComprovanteProtesto,
				Keywords: []string{"protesto", "cartório", "tabelião", "tabelionato", "intimação"},
				Exclude:  []string{"impossibilidade"},
			},
			{Category: model.CategoryTermoCompromisso, Keywords: []string{"termo de compromisso", "compromisso"}},
			{Category: model.CategoryCertidaoRegularidade, Keywords: []string{"certidão", "regularidade", "cnd"}},
			{Category: model.CategoryImpossibilidadeProtesto, Keywords: []string{"impossibilidade"}},
		},
		SectionHints: []SectionHint{
			{Contains: "impossibilidade", Category: model.CategoryImpossibilidadeProtesto},
			{Contains: "protesto extrajudicial", Category: model.CategoryComprovanteProtesto},
			{Contains: "termo de compromisso", Category: model.CategoryTermoCompromisso},
			{Contains: "regularidade", Category: model.CategoryCertidaoRegularidade},
		},
		ContentTokens: []string{DefaultCadinEmail, "inadimplentes.saf"},
	}
}

// WithCadinEmail returns a copy of t whose content tokens target email.
func (t Table) WithCadinEmail(email string) Table {
	if email == "" {
		return t
	}
	t.ContentTokens = []string{email, "inadimplentes.saf"}
	return t
}
