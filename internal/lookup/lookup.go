// Package lookup resolves contract references and debt sums from the
// contract spreadsheets.
package lookup

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
)

// ErrLookupFailed marks a spreadsheet source that could not be read or
// queried. A reference that simply is not listed is not an error.
var ErrLookupFailed = eris.New("lookup: spreadsheet lookup failed")

// Error carries the failed operation and its cause.
// errors.Is(err, ErrLookupFailed) holds for every Error.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("lookup: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes every Error match ErrLookupFailed.
func (e *Error) Is(target error) bool {
	return target == ErrLookupFailed
}

func failed(op string, err error) error {
	return &Error{Op: op, Err: err}
}

// DebtSum is the total debt of one taxpayer under a contract reference.
type DebtSum struct {
	Total float64 `json:"total"`
	Rows  int     `json:"rows"`
}

// Port is the spreadsheet collaborator the compliance engine depends on.
// Implementations must be safe for sequential reuse across many cases.
type Port interface {
	// FindReference maps a contract code to its reference ID. A code that
	// is not listed returns ("", false, nil).
	FindReference(ctx context.Context, contractCode string) (string, bool, error)

	// SumDebt adds up the debt rows of cnpj under reference.
	SumDebt(ctx context.Context, reference, cnpj string) (DebtSum, error)
}
