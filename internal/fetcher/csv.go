// Package fetcher parses the spreadsheet and delimited-text sources the
// case audit reads: XLSX contract lists and CSV ledgers.
package fetcher

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// CSVOptions configures StreamCSV.
type CSVOptions struct {
	Delimiter  rune // default ','
	HasHeader  bool // first row names the columns and is not emitted
	Comment    rune // 0 = none
	LazyQuotes bool
	TrimSpace  bool
}

// Record is one data row. Header is shared by every record of a stream and
// is nil when the stream has no header row.
type Record struct {
	Row    int // 1-based position in the file, header included
	Fields []string
	Header []string
}

// Get returns the field under the named column, or "" when the column is
// unknown or the row is short.
func (r Record) Get(column string) string {
	for i, h := range r.Header {
		if h == column {
			if i < len(r.Fields) {
				return r.Fields[i]
			}
			return ""
		}
	}
	return ""
}

// HasColumn reports whether the header names column.
func (r Record) HasColumn(column string) bool {
	for _, h := range r.Header {
		if h == column {
			return true
		}
	}
	return false
}

// StreamCSV parses r in a goroutine and sends each data row on the first
// channel. A UTF-8 byte order mark written by spreadsheet tools is skipped.
// The caller must drain the record channel; the error channel then yields
// at most one error. Both channels are closed when parsing stops.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan Record, <-chan error) {
	out := make(chan Record, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		defer close(out)

		cr := csv.NewReader(skipBOM(r))
		if opts.Delimiter != 0 {
			cr.Comma = opts.Delimiter
		}
		cr.Comment = opts.Comment
		cr.LazyQuotes = opts.LazyQuotes
		cr.FieldsPerRecord = -1

		var header []string
		for row := 1; ; row++ {
			if err := ctx.Err(); err != nil {
				errCh <- eris.Wrap(err, "csv: stream cancelled")
				return
			}
			fields, err := cr.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				errCh <- eris.Wrapf(err, "csv: read row %d", row)
				return
			}
			if opts.TrimSpace {
				for i := range fields {
					fields[i] = strings.TrimSpace(fields[i])
				}
			}
			if opts.HasHeader && header == nil {
				header = fields
				continue
			}

			select {
			case out <- Record{Row: row, Fields: fields, Header: header}:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: stream cancelled")
				return
			}
		}
	}()

	return out, errCh
}

func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if b, err := br.Peek(3); err == nil && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		_, _ = br.Discard(3) //nolint:errcheck
	}
	return br
}
