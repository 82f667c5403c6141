// Package fold normalizes text for keyword search: lower case with
// diacritics removed, so "Relatório" and "RELATORIO" compare equal.
package fold

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// String lower-cases s and strips combining marks.
func String(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// ContainsAny reports whether folded text contains any of the keywords,
// which are folded as well. It returns the first keyword that matched.
func ContainsAny(text string, keywords []string) (string, bool) {
	ft := String(text)
	for _, kw := range keywords {
		fk := String(kw)
		if fk != "" && strings.Contains(ft, fk) {
			return kw, true
		}
	}
	return "", false
}
