// Package validator implements the first pipeline stage: input
// sanitization and anomaly flagging (spec.md §4.A).
//
// Rules run in a fixed order — length bound, suspicious-pattern scan,
// control/zero-width stripping, script-aware homoglyph policy, whitespace
// collapse + NFC normalize — and never panic on malformed input; anything
// that cannot be sanitized degrades to a risk-level bump rather than a
// hard failure, except in strict mode where a blocked pattern or
// oversized input is rejected outright.
package validator

import (
	"strings"
	"unicode"

	"github.com/dlclark/regexp2"
	"golang.org/x/text/unicode/norm"

	"github.com/dariapavlova/sanctions-screen/internal/dictionaries"
	"github.com/dariapavlova/sanctions-screen/internal/reason"
)

// MaxInputLen is the default maximum accepted input length, in runes.
const MaxInputLen = 10000

// RiskLevel classifies how suspicious the sanitized input looks.
type RiskLevel string

// Risk levels, ascending.
const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Options controls validator behavior per spec.md §4.A.
type Options struct {
	StrictMode       bool
	RemoveHomoglyphs bool
	// MaxInputLen overrides MaxInputLen when > 0.
	MaxInputLen int
}

// Result is the validator's output.
type Result struct {
	IsValid         bool
	SanitizedText   string
	Warnings        []string
	BlockedPatterns []string
	RiskLevel       RiskLevel
	ReasonCodes     []reason.Code
}

// zero-width characters stripped alongside control characters.
var zeroWidthRunes = map[rune]bool{
	'​': true, // ZERO WIDTH SPACE
	'‌': true, // ZERO WIDTH NON-JOINER
	'‍': true, // ZERO WIDTH JOINER
	'⁠': true, // WORD JOINER
	0xFEFF: true, // ZERO WIDTH NO-BREAK SPACE / BOM
}

// cyrillicToLatinHighRisk is the small high-risk confusable set applied only to
// mixed-script text (spec.md §4.A rule 4); pure Cyrillic text is left
// untouched so language detection downstream sees the original script.
var cyrillicToLatinHighRisk = map[rune]rune{
	'а': 'a',
	'о': 'o',
	'р': 'p',
	'е': 'e',
}

var latinDigitConfusables = map[rune]rune{
	'0': 'o',
	'1': 'l',
	'3': 'e',
	'5': 's',
}

// Validator scans and sanitizes raw input text.
type Validator struct {
	suspicious []*regexp2.Regexp
}

// New constructs a Validator. dict is currently unused by the scan rules
// themselves (the confusable tables are small and fixed per spec.md §4.A)
// but is accepted so callers can pass the shared dictionary bundle for
// future rule additions without an API break.
func New(_ *dictionaries.Bundle) *Validator {
	patterns := []string{
		`(?i)<script[^>]*>`,
		`(?i)javascript:`,
		`(?i)data:[a-z0-9/+.-]*;?\s*base64`,
		`(?i)on\w+\s*=\s*["']`, // inline event handlers, e.g. onerror="..."
		`%[0-9a-fA-F]{2}`,      // URL-encoded escape
		`&#x?[0-9a-fA-F]+;`,    // HTML entity escape
		`\\x[0-9a-fA-F]{2}`,    // hex escape
	}
	compiled := make([]*regexp2.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp2.MustCompile(p, regexp2.None))
	}
	return &Validator{suspicious: compiled}
}

// Validate runs the full sanitization pipeline over text.
func (v *Validator) Validate(text string, opts Options) Result {
	res := Result{IsValid: true, RiskLevel: RiskLow}

	if strings.TrimSpace(text) == "" {
		res.IsValid = false
		res.Warnings = append(res.Warnings, "empty input")
		return res
	}

	maxLen := MaxInputLen
	if opts.MaxInputLen > 0 {
		maxLen = opts.MaxInputLen
	}

	runes := []rune(text)
	if len(runes) > maxLen {
		if opts.StrictMode {
			res.IsValid = false
			res.Warnings = append(res.Warnings, "input exceeds maximum length")
			return res
		}
		runes = runes[:maxLen]
		text = string(runes)
		res.Warnings = append(res.Warnings, "input truncated to maximum length")
		res.RiskLevel = raiseRisk(res.RiskLevel, RiskMedium)
	}

	for _, re := range v.suspicious {
		m, _ := re.FindStringMatch(text)
		if m == nil {
			continue
		}
		if opts.StrictMode {
			res.IsValid = false
			res.Warnings = append(res.Warnings, "blocked pattern present: "+m.String())
			return res
		}
		res.BlockedPatterns = append(res.BlockedPatterns, m.String())
		res.RiskLevel = raiseRisk(res.RiskLevel, RiskHigh)
	}

	hasZeroWidth := false
	for _, r := range text {
		if zeroWidthRunes[r] {
			hasZeroWidth = true
			break
		}
	}
	if hasZeroWidth {
		res.ReasonCodes = append(res.ReasonCodes, reason.ZWSP)
	}

	hasLatin, hasCyrillic := scriptsPresent(text)
	if hasLatin && hasCyrillic {
		res.ReasonCodes = append(res.ReasonCodes, reason.MixedScript)
	}

	stripped := stripControlAndZeroWidth(text)

	homoglyphApplied := false
	switch {
	case hasLatin && !hasCyrillic:
		stripped, homoglyphApplied = replaceRunes(stripped, latinDigitConfusables)
	case hasLatin && hasCyrillic:
		stripped, homoglyphApplied = replaceRunes(stripped, cyrillicToLatinHighRisk)
	default:
		// pure Cyrillic (or neither script): leave alone.
	}
	if homoglyphApplied && hasLatin && hasCyrillic {
		res.ReasonCodes = append(res.ReasonCodes, reason.Homoglyph)
	}

	collapsed := collapseWhitespace(strings.TrimSpace(stripped))
	res.SanitizedText = norm.NFC.String(collapsed)

	return res
}

func raiseRisk(current, candidate RiskLevel) RiskLevel {
	rank := map[RiskLevel]int{RiskLow: 0, RiskMedium: 1, RiskHigh: 2}
	if rank[candidate] > rank[current] {
		return candidate
	}
	return current
}

func scriptsPresent(s string) (hasLatin, hasCyrillic bool) {
	for _, r := range s {
		if unicode.Is(unicode.Latin, r) {
			hasLatin = true
		}
		if unicode.Is(unicode.Cyrillic, r) {
			hasCyrillic = true
		}
	}
	return hasLatin, hasCyrillic
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

// isC0OrC1Control reports whether r is a C0 (U+0000-U+001F, U+007F) or C1
// (U+0080-U+009F) control character.
func isC0OrC1Control(r rune) bool {
	return (r <= 0x1F) || r == 0x7F || (r >= 0x80 && r <= 0x9F)
}

func replaceRunes(s string, table map[rune]rune) (string, bool) {
	applied := false
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if repl, ok := table[r]; ok {
			b.WriteRune(repl)
			applied = true
			continue
		}
		b.WriteRune(r)
	}
	return b.String(), applied
}

func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}
