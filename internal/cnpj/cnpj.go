// Package cnpj normalizes Brazilian taxpayer identifiers.
package cnpj

import "strings"

// Digits strips everything except ASCII digits.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Format renders a CNPJ as XX.XXX.XXX/XXXX-XX. Inputs that do not carry
// exactly 14 digits are returned unchanged.
func Format(s string) string {
	d := Digits(s)
	if len(d) != 14 {
		return s
	}
	return d[:2] + "." + d[2:5] + "." + d[5:8] + "/" + d[8:12] + "-" + d[12:]
}

// Equal compares two CNPJs by their digits. Empty values never match.
func Equal(a, b string) bool {
	da, db := Digits(a), Digits(b)
	return da != "" && da == db
}
