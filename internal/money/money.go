// Package money parses and matches Brazilian-real amounts across the
// different textual shapes they take in spreadsheets, portal forms and PDFs.
package money

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

// DefaultTolerance is the accepted absolute difference, in reais, between a
// spreadsheet sum and the amount declared on the portal.
var DefaultTolerance = decimal.NewFromInt(1)

var nonDigits = regexp.MustCompile(`\D+`)

// Raw strips the currency marker and every space from an amount string,
// leaving only digits and punctuation ("R$ 4.846,53" -> "4.846,53").
func Raw(amount string) string {
	s := strings.ReplaceAll(amount, "R$", "")
	s = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\u00a0' || r == '\t' {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

// Pattern builds the flexible matcher for amount: its digit groups in order,
// joined by any run of '.', ',' or whitespace, optionally preceded by R$.
// It returns nil when the amount carries no digits.
func Pattern(amount string) *regexp.Regexp {
	var groups []string
	for _, g := range nonDigits.Split(Raw(amount), -1) {
		if g != "" {
			groups = append(groups, g)
		}
	}
	if len(groups) == 0 {
		return nil
	}
	return regexp.MustCompile(`(?i)(?:R\$)?\s*` + strings.Join(groups, `[\.,\s]*`))
}

// MatchKind tells which tier of AmountPresent found the value.
type MatchKind int

const (
	NoMatch MatchKind = iota
	ExactMatch
	FlexibleMatch
)

func (k MatchKind) String() string {
	switch k {
	case ExactMatch:
		return "exact"
	case FlexibleMatch:
		return "flexible"
	default:
		return "none"
	}
}

// Find looks for expected in text, first verbatim and then through the
// flexible digit-group pattern.
func Find(text, expected string) MatchKind {
	target := strings.TrimSpace(expected)
	re := Pattern(target)
	if re == nil {
		return NoMatch
	}
	if strings.Contains(text, target) {
		return ExactMatch
	}
	if re.MatchString(text) {
		return FlexibleMatch
	}
	return NoMatch
}

// AmountPresent reports whether expected appears in text in any tolerated
// representation.
func AmountPresent(text, expected string) bool {
	return Find(text, expected) != NoMatch
}

// ParseBRL converts a locale-formatted amount ("R$ 4.846,53") to a decimal.
// Thousands dots are dropped and the decimal comma becomes the separator.
func ParseBRL(amount string) (decimal.Decimal, error) {
	s := strings.ReplaceAll(amount, "R$", "")
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")
	s = strings.TrimSpace(s)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, eris.Wrapf(err, "money: parse %q", amount)
	}
	return d, nil
}

// Comparison is the outcome of checking a spreadsheet sum against the portal
// amount.
type Comparison struct {
	SheetSum float64
	Portal   float64
	Diff     float64
	Within   bool
	// ParseErr is set when the portal amount could not be parsed and was
	// taken as zero.
	ParseErr error
}

// Message renders the comparison the way analysts read it in the ledger.
func (c Comparison) Message() string {
	return fmt.Sprintf("Soma Planilha: %.2f | Portal: %.2f | Diferença: %.2f", c.SheetSum, c.Portal, c.Diff)
}

// Compare parses portalAmount and checks |sheetSum - parsed| < tolerance.
// An unparseable amount counts as zero rather than failing.
func Compare(sheetSum float64, portalAmount string, tolerance decimal.Decimal) Comparison {
	parsed, err := ParseBRL(portalAmount)
	if err != nil {
		parsed = decimal.Zero
	}
	sum := decimal.NewFromFloat(sheetSum)
	diff := sum.Sub(parsed).Abs()
	return Comparison{
		SheetSum: sheetSum,
		Portal:   parsed.InexactFloat64(),
		Diff:     diff.InexactFloat64(),
		Within:   diff.LessThan(tolerance),
		ParseErr: err,
	}
}

// SumMatchesWithinTolerance applies Compare with DefaultTolerance.
func SumMatchesWithinTolerance(sheetSum float64, portalAmount string) bool {
	return Compare(sheetSum, portalAmount, DefaultTolerance).Within
}

// FormatBRL renders v as "R$ 1.234,56".
func FormatBRL(v decimal.Decimal) string {
	neg := v.IsNegative()
	s := v.Abs().StringFixed(2)
	intPart, frac := s[:len(s)-3], s[len(s)-2:]

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	out := "R$ " + b.String() + "," + frac
	if neg {
		out = "-" + out
	}
	return out
}
