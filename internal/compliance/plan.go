package compliance

import (
	"sort"

	"github.com/sells-group/caseaudit/internal/model"
)

// Portal actions.
const (
	ActionApprove = "Aprovar"
	ActionAdjust  = "Ajustar"
)

const (
	observationApprove = "Documentação validada com sucesso conforme RES 1125."
	observationAdjust  = "Solicitação devolvida para ajustes. Veja detalhes nos campos específicos acima."
)

// RowFlag marks one documents-table row for correction.
type RowFlag struct {
	Label         string `json:"label"`
	Justification string `json:"justification"`
}

// SubmissionPlan is what the portal-driving layer submits for a decision.
type SubmissionPlan struct {
	Action      string    `json:"action"`
	Observation string    `json:"observation"`
	Flags       []RowFlag `json:"flags,omitempty"`
}

// PlanSubmission maps a decision to the portal action, its observation and
// the rows to flag, sorted by label.
func PlanSubmission(d *model.DecisionResult) SubmissionPlan {
	if d == nil || d.Approved {
		return SubmissionPlan{Action: ActionApprove, Observation: observationApprove}
	}

	flags := make([]RowFlag, 0, len(d.FailedDocs))
	for label, text := range d.FailedDocs {
		flags = append(flags, RowFlag{Label: label, Justification: text})
	}
	sort.Slice(flags, func(i, j int) bool { return flags[i].Label < flags[j].Label })

	return SubmissionPlan{Action: ActionAdjust, Observation: observationAdjust, Flags: flags}
}
