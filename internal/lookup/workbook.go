package lookup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/caseaudit/internal/cnpj"
	"github.com/sells-group/caseaudit/internal/config"
	"github.com/sells-group/caseaudit/internal/fetcher"
)

// Workbook implements Port over the master contract list and the per
// reference AVD workbooks on disk.
type Workbook struct {
	cfg config.SpreadsheetConfig

	mu       sync.Mutex
	master   map[string]string // contract code -> reference
	masterAt time.Time         // mod time of the loaded master list
}

// NewWorkbook creates a Workbook reader.
func NewWorkbook(cfg config.SpreadsheetConfig) *Workbook {
	return &Workbook{cfg: cfg}
}

// FindReference looks the contract code up in the first sheet of the
// master list. The list is parsed once and re-read only when the file
// changes on disk.
func (w *Workbook) FindReference(ctx context.Context, contractCode string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, failed("find reference", err)
	}
	code := strings.TrimSpace(contractCode)
	if code == "" {
		return "", false, nil
	}

	master, err := w.loadMaster()
	if err != nil {
		return "", false, err
	}

	ref, ok := master[code]
	zap.L().Debug("lookup: master list search",
		zap.String("contract", code),
		zap.String("reference", ref),
		zap.Bool("found", ok),
	)
	return ref, ok, nil
}

func (w *Workbook) loadMaster() (map[string]string, error) {
	info, err := os.Stat(w.cfg.MasterListPath)
	if err != nil {
		return nil, failed("stat master list", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.master != nil && info.ModTime().Equal(w.masterAt) {
		return w.master, nil
	}

	rows, err := fetcher.ReadXLSX(w.cfg.MasterListPath, fetcher.XLSXOptions{SkipRows: 1})
	if err != nil {
		return nil, failed("read master list", err)
	}

	master := make(map[string]string, len(rows))
	for _, row := range rows {
		code := row.At(w.cfg.MasterContractCol).String()
		ref := row.At(w.cfg.MasterReferenceCol).String()
		if code == "" || ref == "" {
			continue
		}
		if _, dup := master[code]; !dup {
			master[code] = ref
		}
	}

	w.master = master
	w.masterAt = info.ModTime()
	zap.L().Info("lookup: master list loaded",
		zap.String("path", w.cfg.MasterListPath),
		zap.Int("contracts", len(master)),
	)
	return master, nil
}

// SumDebt opens the AVD workbook named after reference, finds the header
// row by its CNPJ cell and sums the numeric totals of every row whose CNPJ
// matches. Non-numeric totals are skipped.
func (w *Workbook) SumDebt(ctx context.Context, reference, taxID string) (DebtSum, error) {
	path, err := w.avdPath(reference)
	if err != nil {
		return DebtSum{}, err
	}

	rowCh, errCh := fetcher.StreamXLSX(ctx, path, fetcher.XLSXOptions{})

	var (
		sum       DebtSum
		headerRow = -1
		cnpjCol   int
		totalCol  int
		i         int
	)
	for row := range rowCh {
		i++
		if headerRow < 0 {
			if col, ok := findCell(row, "cnpj"); ok {
				headerRow = i
				cnpjCol = col
				totalCol = w.cfg.AVDTotalColDefault
				if col, ok := findCell(row, "total"); ok {
					totalCol = col
				}
			}
			continue
		}

		if !cnpj.Equal(cellCNPJ(row.At(cnpjCol)), taxID) {
			continue
		}
		sum.Rows++
		total := row.At(totalCol)
		if !total.Numeric {
			zap.L().Warn("lookup: non-numeric total skipped",
				zap.String("path", path),
				zap.Int("row", i),
				zap.String("value", total.Text),
			)
			continue
		}
		sum.Total += total.Number
	}
	for err := range errCh {
		if err != nil {
			return DebtSum{}, failed("read AVD workbook", err)
		}
	}

	if headerRow < 0 {
		return DebtSum{}, failed("read AVD workbook", eris.Errorf("no CNPJ header in %s", filepath.Base(path)))
	}

	zap.L().Debug("lookup: AVD sum",
		zap.String("reference", reference),
		zap.String("file", filepath.Base(path)),
		zap.Int("header_row", headerRow),
		zap.Int("rows", sum.Rows),
		zap.Float64("total", sum.Total),
	)
	return sum, nil
}

// avdPath returns the first workbook, in name order, whose name contains
// the reference. Office lock files (~$name.xlsx) are ignored.
func (w *Workbook) avdPath(reference string) (string, error) {
	ref := strings.TrimSpace(reference)
	if ref == "" {
		return "", failed("find AVD workbook", eris.New("empty reference"))
	}

	entries, err := os.ReadDir(w.cfg.AVDDir)
	if err != nil {
		return "", failed("list AVD directory", err)
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, "~$") {
			continue
		}
		if strings.EqualFold(filepath.Ext(name), ".xlsx") && strings.Contains(name, ref) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "", failed("find AVD workbook", eris.Errorf("no workbook for reference %q in %s", ref, w.cfg.AVDDir))
	}
	sort.Strings(names)
	return filepath.Join(w.cfg.AVDDir, names[0]), nil
}

func findCell(row fetcher.Row, needle string) (int, bool) {
	for j, c := range row {
		if strings.Contains(strings.ToLower(c.String()), needle) {
			return j, true
		}
	}
	return 0, false
}

// cellCNPJ restores leading zeros lost when a CNPJ was typed as a number.
func cellCNPJ(c fetcher.Cell) string {
	if c.Numeric && c.Number >= 0 {
		return fmt.Sprintf("%014.0f", c.Number)
	}
	return c.String()
}
