package model

import (
	"strings"
	"time"
)

// Category is an evidence category required by the RES 1125 checklist.
type Category string

const (
	CategoryRelatorio               Category = "relatorio"
	CategoryComunicacao             Category = "comunicacao"
	CategoryMemorial                Category = "memorial"
	CategoryComprovanteProtesto     Category = "comprovante_protesto"
	CategoryTermoCompromisso        Category = "termo_compromisso"
	CategoryCertidaoRegularidade    Category = "certidao_regularidade"
	CategoryImpossibilidadeProtesto Category = "impossibilidade_protesto"
	CategoryUnknown                 Category = "unknown"
)

// Categories lists every known category in checklist order. Unknown is last.
var Categories = []Category{
	CategoryRelatorio,
	CategoryComunicacao,
	CategoryMemorial,
	CategoryComprovanteProtesto,
	CategoryTermoCompromisso,
	CategoryCertidaoRegularidade,
	CategoryImpossibilidadeProtesto,
	CategoryUnknown,
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, k := range Categories {
		if k == c {
			return true
		}
	}
	return false
}

// CaseData is the scraped snapshot of a portal case. Empty strings mean the
// field was not found on the form.
type CaseData struct {
	CaseID       string `json:"case_id,omitempty" yaml:"case_id"`
	ContractCode string `json:"contract_code,omitempty" yaml:"contract_code"`
	CNPJ         string `json:"cnpj,omitempty" yaml:"cnpj"`
	DebtAmount   string `json:"debt_amount,omitempty" yaml:"debt_amount"`
}

// HasFinancialFields reports whether contract code, CNPJ and debt amount are
// all present. Blank values count as absent.
func (c CaseData) HasFinancialFields() bool {
	return strings.TrimSpace(c.ContractCode) != "" &&
		strings.TrimSpace(c.CNPJ) != "" &&
		strings.TrimSpace(c.DebtAmount) != ""
}

// EvidenceItem is one downloaded document attached to a case.
type EvidenceItem struct {
	DisplayName string `json:"display_name" yaml:"name"`
	FilePath    string `json:"file_path" yaml:"path"`
	Section     string `json:"section,omitempty" yaml:"section"` // portal documents-table row, optional
}

// ClassifiedItem is an evidence item with the categories inferred for it.
type ClassifiedItem struct {
	EvidenceItem
	Categories []Category `json:"categories"`
	Exists     bool       `json:"exists"`
}

// Is reports whether the item was classified into c.
func (ci ClassifiedItem) Is(c Category) bool {
	for _, k := range ci.Categories {
		if k == c {
			return true
		}
	}
	return false
}

// Classification is the outcome of classifying a case's evidence set.
type Classification struct {
	Present map[Category]bool `json:"present"`
	Items   []ClassifiedItem  `json:"items"`
	// ContentMatched is set when comunicacao was only found via document content.
	ContentMatched bool `json:"content_matched,omitempty"`
	// Warnings lists benefit-of-doubt grants made while classifying.
	Warnings []string `json:"warnings,omitempty"`
}

// Has reports whether category c is present.
func (c *Classification) Has(cat Category) bool {
	if c == nil {
		return false
	}
	return c.Present[cat]
}

// First returns the first existing item classified into cat.
func (c *Classification) First(cat Category) (ClassifiedItem, bool) {
	if c == nil {
		return ClassifiedItem{}, false
	}
	for _, it := range c.Items {
		if it.Exists && it.Is(cat) {
			return it, true
		}
	}
	return ClassifiedItem{}, false
}

// RuleID identifies a compliance rule. Values are stable and appear in reports.
type RuleID string

const (
	RuleFinancialCrossCheck  RuleID = "financial_crosscheck"
	RuleCadinEvidence        RuleID = "cadin_evidence"
	RuleProtestProof         RuleID = "protest_proof"
	RuleCommitmentTerm       RuleID = "commitment_term"
	RuleRegularityCert       RuleID = "regularity_certificate"
	RuleImpossibilityExclude RuleID = "impossibility_exclusion"
	RuleProtestAmount        RuleID = "protest_amount"
)

// ValidationReason explains one compliance failure.
type ValidationReason struct {
	RuleID  RuleID `json:"rule_id"`
	Message string `json:"message"`
}

// DecisionResult is the engine's verdict for one case.
type DecisionResult struct {
	Approved   bool               `json:"approved"`
	FailedDocs map[string]string  `json:"failed_docs"`
	Reasons    []ValidationReason `json:"reasons"`
	Warnings   []string           `json:"warnings,omitempty"`
}

// CorrectionNeeded is the inverse of Approved.
func (d *DecisionResult) CorrectionNeeded() bool {
	return !d.Approved
}

// Failed reports whether the given rule produced a reason.
func (d *DecisionResult) Failed(id RuleID) bool {
	for _, r := range d.Reasons {
		if r.RuleID == id {
			return true
		}
	}
	return false
}

// DecisionRecord is a persisted decision for one case evaluation.
type DecisionRecord struct {
	ID         string         `json:"id"`
	Case       CaseData       `json:"case"`
	Decision   DecisionResult `json:"decision"`
	Action     string         `json:"action"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}
