// Package model defines the typed records flowing between the gather,
// batch-file, and warehouse layers. Raw provider JSON is adapted into these
// types exactly once, at the client boundary.
package model

import "strings"

// NormalizeTicker upper-cases a symbol and strips surrounding whitespace.
// Tickers are case-insensitive everywhere in the warehouse.
func NormalizeTicker(sym string) string {
	return strings.ToUpper(strings.TrimSpace(sym))
}

// TickerForms returns the lookup forms for a symbol. Some providers use a
// period where the canonical class-share ticker uses a hyphen (BRK.B vs
// BRK-B), so every lookup tries both spellings. The first form is the
// normalized input; the second is omitted when identical.
func TickerForms(sym string) []string {
	sym = NormalizeTicker(sym)
	var alt string
	switch {
	case strings.Contains(sym, "."):
		alt = strings.ReplaceAll(sym, ".", "-")
	case strings.Contains(sym, "-"):
		alt = strings.ReplaceAll(sym, "-", ".")
	}
	if alt == "" || alt == sym {
		return []string{sym}
	}
	return []string{sym, alt}
}
