// Package unicodenorm implements the NFC-normalization pipeline stage
// (spec.md §4.D).
//
// It never maps Cyrillic to Latin — that policy lives entirely in
// internal/validator's script-aware homoglyph rules, which run before
// this stage. This package's only job is canonical composition plus,
// optionally, control/zero-width stripping identical to validator's set,
// with a diagnostic record of what changed.
package unicodenorm

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

var zeroWidthRunes = map[rune]bool{
	'​': true, // ZERO WIDTH SPACE
	'‌': true, // ZERO WIDTH NON-JOINER
	'‍': true, // ZERO WIDTH JOINER
	'⁠': true, // WORD JOINER
	0xFEFF: true, // ZERO WIDTH NO-BREAK SPACE / BOM
}

// Change is a single diagnostic record of what this stage altered.
type Change struct {
	Kind string // "nfc", "control_or_zero_width_stripped"
	From string
	To   string
}

// Result is the normalizer's output.
type Result struct {
	NormalizedText string
	Changed        bool
	Changes        []Change
}

// Options controls optional stripping behavior.
type Options struct {
	StripControlAndZeroWidth bool
}

// Normalize NFC-normalizes text and, if requested, strips control and
// zero-width characters using the same set validator uses. It never
// fails; when stripping is enabled, invalid UTF-8 bytes come out as
// U+FFFD.
func Normalize(text string, opts Options) Result {
	res := Result{NormalizedText: text}

	if opts.StripControlAndZeroWidth {
		stripped := stripControlAndZeroWidth(text)
		if stripped != text {
			res.Changes = append(res.Changes, Change{Kind: "control_or_zero_width_stripped", From: text, To: stripped})
			res.Changed = true
		}
		text = stripped
	}

	if !norm.NFC.IsNormalString(text) {
		composed := norm.NFC.String(text)
		res.Changes = append(res.Changes, Change{Kind: "nfc", From: text, To: composed})
		res.Changed = true
		text = composed
	}

	res.NormalizedText = text
	return res
}

func stripControlAndZeroWidth(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if zeroWidthRunes[r] {
			continue
		}
		if r == '\n' || r == '\r' || r == '\t' {
			b.WriteRune(r)
			continue
		}
		if isC0OrC1Control(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isC0OrC1Control(r rune) bool {
	return (r <= 0x1F) || r == 0x7F || (r >= 0x80 && r <= 0x9F)
}
