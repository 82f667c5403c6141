package fetcher

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func createTestXLSX(t *testing.T, sheets map[string][][]any) string {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, v := range rowData {
				cell := row.AddCell()
				switch val := v.(type) {
				case float64:
					cell.SetFloat(val)
				case int:
					cell.SetInt(val)
				default:
					cell.SetString(val.(string))
				}
			}
		}
	}
	path := filepath.Join(t.TempDir(), "test.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadXLSX_Basic(t *testing.T) {
	path := createTestXLSX(t, map[string][][]any{
		"Sheet1": {
			{"ID", "Empresa", "Contrato"},
			{1234.0, "Geradora A", "CT-001"},
			{"5678", "Geradora B", "CT-002"},
		},
	})

	rows, err := ReadXLSX(path, XLSXOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"ID", "Empresa", "Contrato"}, rows[0].Strings())
	assert.Equal(t, []string{"1234", "Geradora A", "CT-001"}, rows[1].Strings())
	assert.True(t, rows[1].At(0).Numeric)
	assert.False(t, rows[2].At(0).Numeric)
	assert.Equal(t, "5678", rows[2].At(0).String())
}

func TestReadXLSX_NumericCells(t *testing.T) {
	path := createTestXLSX(t, map[string][][]any{
		"Sheet1": {{"CNPJ", "Total"}, {"12.345.678/0001-90", 4846.53}},
	})

	rows, err := ReadXLSX(path, XLSXOptions{SkipRows: 1})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	total := rows[0].At(1)
	assert.True(t, total.Numeric)
	assert.InDelta(t, 4846.53, total.Number, 0.0001)
	assert.Equal(t, "4846.53", total.String())
}

func TestRow_AtOutOfRange(t *testing.T) {
	r := Row{{Text: "a"}}
	assert.Equal(t, Cell{}, r.At(5))
	assert.Equal(t, Cell{}, r.At(-1))
	assert.Equal(t, "a", r.At(0).String())
}

func TestReadXLSX_SheetName(t *testing.T) {
	path := createTestXLSX(t, map[string][][]any{
		"First":  {{"a", "b"}},
		"Second": {{"x", "y"}, {"1", "2"}},
	})

	rows, err := ReadXLSX(path, XLSXOptions{SheetName: "Second"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"x", "y"}, rows[0].Strings())
}

func TestReadXLSX_SheetNameNotFound(t *testing.T) {
	path := createTestXLSX(t, map[string][][]any{"Sheet1": {{"a"}}})

	_, err := ReadXLSX(path, XLSXOptions{SheetName: "Missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestReadXLSX_SheetIndexOutOfRange(t *testing.T) {
	path := createTestXLSX(t, map[string][][]any{"Sheet1": {{"a"}}})

	_, err := ReadXLSX(path, XLSXOptions{SheetIndex: 5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestReadXLSX_MissingFile(t *testing.T) {
	_, err := ReadXLSX(filepath.Join(t.TempDir(), "nope.xlsx"), XLSXOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xlsx: open file")
}

func TestStreamXLSX_SkipRows(t *testing.T) {
	path := createTestXLSX(t, map[string][][]any{
		"Sheet1": {
			{"Header", "Row"},
			{"data", 2},
		},
	})

	rowCh, errCh := StreamXLSX(context.Background(), path, XLSXOptions{SkipRows: 1})

	var rows []Row
	for row := range rowCh {
		rows = append(rows, row)
	}
	for err := range errCh {
		require.NoError(t, err)
	}

	require.Len(t, rows, 1)
	assert.Equal(t, []string{"data", "2"}, rows[0].Strings())
}

func TestStreamXLSX_ContextCancellation(t *testing.T) {
	sheetData := make([][]any, 1000)
	for i := range sheetData {
		sheetData[i] = []any{"a", "b", "c"}
	}
	path := createTestXLSX(t, map[string][][]any{"Sheet1": sheetData})

	ctx, cancel := context.WithCancel(context.Background())
	rowCh, errCh := StreamXLSX(ctx, path, XLSXOptions{})

	count := 0
	for range rowCh {
		count++
		if count >= 5 {
			cancel()
			break
		}
	}
	for range rowCh { //nolint:revive // drain
	}
	for range errCh { //nolint:revive // drain
	}
	cancel()
}
