package report

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/caseaudit/internal/model"
)

const (
	statusNone       = "N/A"
	actionProcessing = "Processing"
)

// Tracker accumulates the ledger row for the case being processed. One
// case is tracked at a time; Finalize writes the row and resets.
type Tracker struct {
	sink Sink
	now  func() time.Time

	started time.Time
	row     Row
	active  bool
}

// NewTracker creates a tracker writing to sink.
func NewTracker(sink Sink) *Tracker {
	return &Tracker{sink: sink, now: time.Now}
}

// Start begins tracking a case. Any unfinished case is discarded.
func (t *Tracker) Start(caseID string) {
	t.started = t.now()
	t.row = Row{
		CaseID:       caseID,
		Start:        t.started.Format(TimeLayout),
		VisualStatus: statusNone,
		DocStatus:    statusNone,
		FinalAction:  actionProcessing,
	}
	t.active = true
}

// Active reports whether a case is being tracked.
func (t *Tracker) Active() bool {
	return t.active
}

// Update records the scraped case fields. Empty fields leave previous
// values untouched.
func (t *Tracker) Update(c model.CaseData) {
	if c.ContractCode != "" {
		t.row.ContractCode = c.ContractCode
	}
	if c.CNPJ != "" {
		t.row.CNPJ = c.CNPJ
	}
	if c.DebtAmount != "" {
		t.row.DebtAmount = c.DebtAmount
	}
}

// LogVisual records the visual validation status.
func (t *Tracker) LogVisual(status, msg string) {
	t.row.VisualStatus = joinStatus(status, msg)
}

// LogDoc records the document validation status.
func (t *Tracker) LogDoc(status, details string) {
	t.row.DocStatus = joinStatus(status, details)
}

// LogStep appends a processing step to the document status.
func (t *Tracker) LogStep(step, status string) {
	t.row.DocStatus += fmt.Sprintf(" | %s: %s", step, status)
}

// LogDecision records a compliance decision as the document status.
func (t *Tracker) LogDecision(d *model.DecisionResult) {
	if d.Approved {
		t.LogDoc("OK", "")
		return
	}
	details := ""
	for i, r := range d.Reasons {
		if i > 0 {
			details += " "
		}
		details += r.Message
	}
	t.LogDoc("FAIL", details)
}

// Finalize stamps the end time, writes the row and resets the tracker.
// It returns the row written.
func (t *Tracker) Finalize(ctx context.Context, action string) (Row, error) {
	if !t.active {
		return Row{}, eris.New("report: finalize without start")
	}
	t.row.FinalAction = action
	t.row.End = t.now().Format(TimeLayout)
	row := t.row

	t.row = Row{}
	t.active = false

	if err := t.sink.Record(ctx, row); err != nil {
		return row, err
	}
	return row, nil
}

// StartedAt returns when the current case started.
func (t *Tracker) StartedAt() time.Time {
	return t.started
}

func joinStatus(status, msg string) string {
	if msg == "" {
		return status
	}
	return status + " - " + msg
}
