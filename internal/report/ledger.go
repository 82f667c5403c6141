// Package report keeps the per-case audit ledger: one semicolon-delimited
// row per finalized case, appended to a flat file.
package report

import (
	"context"
	"encoding/csv"
	"os"
	"sync"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/caseaudit/internal/fetcher"
)

// TimeLayout is the timestamp format used in ledger rows.
const TimeLayout = "2006-01-02 15:04:05"

// Row is one ledger line. Field order is the column order.
type Row struct {
	CaseID       string `csv:"CaseID"`
	Start        string `csv:"Timestamp_Start"`
	ContractCode string `csv:"Contract_Code"`
	CNPJ         string `csv:"CNPJ"`
	DebtAmount   string `csv:"Debt_Amount"`
	VisualStatus string `csv:"Visual_Validation_Status"`
	DocStatus    string `csv:"Doc_Validation_Status"`
	FinalAction  string `csv:"Final_Action"`
	End          string `csv:"Timestamp_End"`
}

// Sink persists finalized case rows.
type Sink interface {
	Record(ctx context.Context, row Row) error
}

// CSVLedger appends rows to a semicolon-delimited file. The header is
// written only when the file is new or empty. Safe for sequential reuse
// across cases and for concurrent callers within one process.
type CSVLedger struct {
	path string
	mu   sync.Mutex
}

// NewCSVLedger creates a ledger writing to path.
func NewCSVLedger(path string) *CSVLedger {
	return &CSVLedger{path: path}
}

// Path returns the ledger file path.
func (l *CSVLedger) Path() string {
	return l.path
}

// Record appends one row.
func (l *CSVLedger) Record(ctx context.Context, row Row) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "report: record")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return eris.Wrapf(err, "report: open ledger %s", l.path)
	}
	defer f.Close() //nolint:errcheck

	info, err := f.Stat()
	if err != nil {
		return eris.Wrapf(err, "report: stat ledger %s", l.path)
	}

	w := csv.NewWriter(f)
	w.Comma = ';'
	enc := csvutil.NewEncoder(w)
	enc.AutoHeader = info.Size() == 0

	if err := enc.Encode(row); err != nil {
		return eris.Wrap(err, "report: encode row")
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "report: write row")
	}

	zap.L().Debug("report: row appended",
		zap.String("case_id", row.CaseID),
		zap.String("action", row.FinalAction),
	)
	return nil
}

// Totals summarizes a ledger by final action.
type Totals struct {
	Rows     int            `json:"rows"`
	ByAction map[string]int `json:"by_action"`
}

const colFinalAction = "Final_Action"

// ReadTotals streams the ledger at path and counts rows per final action.
func ReadTotals(ctx context.Context, path string) (*Totals, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "report: open ledger %s", path)
	}
	defer f.Close() //nolint:errcheck

	recCh, errCh := fetcher.StreamCSV(ctx, f, fetcher.CSVOptions{
		Delimiter: ';',
		HasHeader: true,
		TrimSpace: true,
	})

	totals := &Totals{ByAction: make(map[string]int)}
	for rec := range recCh {
		if !rec.HasColumn(colFinalAction) {
			// drain so the reader goroutine can exit
			for range recCh {
			}
			return nil, eris.Errorf("report: ledger %s has no %s column", path, colFinalAction)
		}
		totals.Rows++
		totals.ByAction[rec.Get(colFinalAction)]++
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrap(err, "report: read ledger")
	}
	return totals, nil
}
