// Package normalize holds the string equivalence rules shared by alias
// lookup, search and citation verification.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

func fold(s string) string {
	return strings.ToLower(norm.NFKC.String(width.Fold.String(s)))
}

func isNoise(r rune) bool {
	return unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r)
}

// Name returns the lookup key of a law name or alias. It is total: every
// input maps to exactly one key, and "民法典", "民法典 " and "《民法典》"
// share one.
func Name(s string) string {
	var b strings.Builder
	for _, r := range fold(s) {
		if !isNoise(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Terms splits a search query into normalized terms at whitespace and
// punctuation.
func Terms(s string) []string {
	return strings.FieldsFunc(fold(s), isNoise)
}

// Text prepares article text for comparison: width and compatibility forms
// are folded, whitespace is removed and enclosing punctuation is stripped.
// Punctuation inside the text is kept.
func Text(s string) string {
	var b strings.Builder
	for _, r := range norm.NFKC.String(width.Fold.String(s)) {
		if !unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.TrimFunc(b.String(), func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
}

// StripPunct removes all punctuation and whitespace from comparison text
func StripPunct(s string) string {
	var b strings.Builder
	for _, r := range s {
		if !isNoise(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
