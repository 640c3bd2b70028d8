// Package langdetect implements the language-detection pipeline stage
// (spec.md §4.C): a five-step decision cascade where the first matching
// step wins. Language must be decided before any transliteration of the
// payload, so this package only ever reads text — it never rewrites it.
package langdetect

import (
	"strings"
	"unicode"

	"github.com/dlclark/regexp2"

	"github.com/dariapavlova/sanctions-screen/internal/dictionaries"
)

// Language is a detected language code.
type Language string

// Supported languages.
const (
	LangUK Language = "uk"
	LangRU Language = "ru"
	LangEN Language = "en"
)

// Method records which cascade step produced the result.
type Method string

const (
	MethodDictionary Method = "dictionary_probe"
	MethodCyrillic   Method = "cyrillic_priority"
	MethodPattern    Method = "pattern_heuristic"
	MethodExternal   Method = "external_detector"
	MethodFallback   Method = "fallback"
)

// Result is the detector's output.
type Result struct {
	Language   Language
	Confidence float64
	Method     Method
}

// ExternalDetector is an optional, pluggable language detector (e.g. a
// statistical model). Its label is mapped through labelMap before being
// trusted; Detect returning ok=false means "no opinion", not "error".
type ExternalDetector interface {
	Detect(text string) (label string, ok bool)
}

// labelMap normalizes third-party language labels onto this package's
// three supported codes. Per spec.md §4.C step 4, several Slavic/Cyrillic
// labels collapse onto ru.
var labelMap = map[string]Language{
	"uk": LangUK,
	"ru": LangRU,
	"be": LangRU,
	"bg": LangRU,
	"en": LangEN,
}

// ukrainianOnlyChars and russianOnlyChars are letters that exist in one
// Slavic alphabet's standard orthography but not the other.
var ukrainianOnlyChars = map[rune]bool{
	'і': true, 'ї': true, 'є': true, 'ґ': true,
	'І': true, 'Ї': true, 'Є': true, 'Ґ': true,
}

var russianOnlyChars = map[rune]bool{
	'ё': true, 'ъ': true, 'ы': true, 'э': true,
	'Ё': true, 'Ъ': true, 'Ы': true, 'Э': true,
}

type patternRule struct {
	lang    Language
	pattern *regexp2.Regexp
	weight  float64
}

// Detector runs the spec.md §4.C decision cascade.
type Detector struct {
	dict     *dictionaries.Bundle
	patterns []patternRule
	external ExternalDetector
}

// New constructs a Detector. external may be nil — step 4 is then skipped.
func New(dict *dictionaries.Bundle, external ExternalDetector) *Detector {
	rules := []struct {
		lang   Language
		expr   string
		weight float64
	}{
		{LangUK, `(?i)\b(та|і|для|від|згідно|переказ|платіж)\b`, 0.10},
		{LangUK, `(?i)(ський|цький|енко|юк|чук)\b`, 0.08},
		{LangRU, `(?i)\b(и|от|для|согласно|перевод|платеж)\b`, 0.10},
		{LangRU, `(?i)(ович|евич|овна|евна)\b`, 0.08},
		{LangEN, `(?i)\b(the|and|for|from|payment|transfer)\b`, 0.10},
	}
	patterns := make([]patternRule, 0, len(rules))
	for _, r := range rules {
		patterns = append(patterns, patternRule{
			lang:    r.lang,
			pattern: regexp2.MustCompile(r.expr, regexp2.None),
			weight:  r.weight,
		})
	}
	return &Detector{dict: dict, patterns: patterns, external: external}
}

// Detect runs the full cascade over text.
func (d *Detector) Detect(text string) Result {
	if res, ok := d.dictionaryProbe(text); ok {
		return res
	}
	if res, ok := d.cyrillicPriority(text); ok {
		return res
	}
	if res, ok := d.patternHeuristic(text); ok {
		return res
	}
	if res, ok := d.externalDetector(text); ok {
		return res
	}
	return d.fallback(text)
}

// dictionaryProbe is cascade step 1.
func (d *Detector) dictionaryProbe(text string) (Result, bool) {
	tokens := wordLikeRuns(text)
	if len(tokens) == 0 {
		return Result{}, false
	}

	var ukHits, ruHits, enHits int
	for _, tok := range tokens {
		if d.dict.IsGiven(dictionaries.LangUK, tok) || d.dict.IsSurname(dictionaries.LangUK, tok) || d.dict.IsPatronymic(dictionaries.LangUK, tok) {
			ukHits++
		}
		if d.dict.IsGiven(dictionaries.LangRU, tok) || d.dict.IsSurname(dictionaries.LangRU, tok) || d.dict.IsPatronymic(dictionaries.LangRU, tok) {
			ruHits++
		}
		if d.dict.IsGiven(dictionaries.LangEN, tok) || d.dict.IsSurname(dictionaries.LangEN, tok) {
			enHits++
		}
	}

	switch {
	case ukHits > 0:
		return Result{Language: LangUK, Confidence: 0.95, Method: MethodDictionary}, true
	case ruHits > enHits && ruHits > 0:
		return Result{Language: LangRU, Confidence: 0.90, Method: MethodDictionary}, true
	case enHits > 0:
		return Result{Language: LangEN, Confidence: 0.85, Method: MethodDictionary}, true
	}
	return Result{}, false
}

// cyrillicPriority is cascade step 2.
func (d *Detector) cyrillicPriority(text string) (Result, bool) {
	var ukCount, ruCount int
	var hasCyrillic bool
	for _, r := range text {
		if unicode.Is(unicode.Cyrillic, r) {
			hasCyrillic = true
		}
		if ukrainianOnlyChars[r] {
			ukCount++
		}
		if russianOnlyChars[r] {
			ruCount++
		}
	}

	if ukCount > 0 {
		conf := 0.80 + 0.10*float64(ukCount)
		if conf > 0.98 {
			conf = 0.98
		}
		return Result{Language: LangUK, Confidence: conf, Method: MethodCyrillic}, true
	}
	if ruCount > 0 {
		return Result{Language: LangRU, Confidence: 0.90, Method: MethodCyrillic}, true
	}
	if hasCyrillic {
		// General Cyrillic without alphabet-specific letters: tiebreak by
		// stop-word pattern density rather than declaring a winner here —
		// fall through to the pattern-heuristic step.
		return Result{}, false
	}
	return Result{}, false
}

// patternHeuristic is cascade step 3.
func (d *Detector) patternHeuristic(text string) (Result, bool) {
	scores := map[Language]float64{}
	for _, rule := range d.patterns {
		m, _ := rule.pattern.FindStringMatch(text)
		if m != nil {
			scores[rule.lang] += rule.weight
		}
	}

	var best Language
	var bestScore float64
	for lang, score := range scores {
		if score > bestScore {
			best, bestScore = lang, score
		}
	}
	if bestScore <= 0 {
		return Result{}, false
	}
	conf := 0.5 + bestScore
	if conf > 0.85 {
		conf = 0.85
	}
	return Result{Language: best, Confidence: conf, Method: MethodPattern}, true
}

// externalDetector is cascade step 4.
func (d *Detector) externalDetector(text string) (Result, bool) {
	if d.external == nil {
		return Result{}, false
	}
	label, ok := d.external.Detect(text)
	if !ok {
		return Result{}, false
	}
	lang, mapped := labelMap[strings.ToLower(label)]
	if !mapped {
		return Result{}, false
	}
	return Result{Language: lang, Confidence: 0.75, Method: MethodExternal}, true
}

// fallback is cascade step 5: always succeeds.
func (d *Detector) fallback(text string) Result {
	hasCyrillic := false
	hasLatin := false
	for _, r := range text {
		if unicode.Is(unicode.Cyrillic, r) {
			hasCyrillic = true
		}
		if unicode.Is(unicode.Latin, r) {
			hasLatin = true
		}
	}
	switch {
	case hasCyrillic:
		return Result{Language: LangRU, Confidence: 0.5, Method: MethodFallback}
	case hasLatin:
		return Result{Language: LangEN, Confidence: 0.5, Method: MethodFallback}
	default:
		return Result{Language: LangEN, Confidence: 0.5, Method: MethodFallback}
	}
}

// wordLikeRuns splits text into maximal runs of Unicode letters, lower-cased.
func wordLikeRuns(text string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, strings.ToLower(cur.String()))
			cur.Reset()
		}
	}
	for _, r := range text {
		if unicode.IsLetter(r) {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}
