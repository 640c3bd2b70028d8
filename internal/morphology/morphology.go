// Package morphology implements the morphological normalizer (spec.md
// §4.E), the heart of the pipeline: it turns sanitized text into a
// canonical name phrase plus a per-token role/lemma trace used by every
// downstream screening stage.
package morphology

import (
	"strings"
	"unicode"

	"github.com/dariapavlova/sanctions-screen/internal/dictionaries"
	"github.com/dariapavlova/sanctions-screen/internal/langdetect"
	"github.com/dariapavlova/sanctions-screen/internal/reason"
)

// Role is a token's morphological role in a name phrase.
type Role string

// Roles, per spec.md §3.
const (
	RoleGiven      Role = "given"
	RolePatronymic Role = "patronymic"
	RoleSurname    Role = "surname"
	RoleInitial    Role = "initial"
	RoleLegalForm  Role = "legal_form"
	RoleOrgCore    Role = "org_core"
	RoleUnknown    Role = "unknown"
)

// Token is a single surface-form word with its assigned role and lemma.
type Token struct {
	Surface  string
	Role     Role
	MorphTag string
	Lemma    string
}

// TokenTrace is one explainability record: which rule assigned which role.
type TokenTrace struct {
	Token       string
	Role        Role
	RuleApplied string
	Output      string
}

// NameAnalysis is the per-name-token morphological summary (spec.md §3).
// Declensions/transliterations are populated downstream by
// internal/variants; this package only fills Lemma/Gender/Diminutive.
type NameAnalysis struct {
	Lemma      string
	Gender     string // "m", "f", "" (unknown)
	Diminutive string // canonical given name if Surface was a diminutive
}

// Result is the normalizer's output.
type Result struct {
	CanonicalPhrase string
	Tokens          []Token
	Traces          []TokenTrace
	Analyses        map[string]NameAnalysis // keyed by token surface form
	IsPerson        bool
	IsOrg           bool
	IEMarkerFound   bool
	ReasonCodes     []reason.Code
}

// Options controls routing and stop-word behavior.
type Options struct {
	// PreferCompany routes ambiguous person+company text to the company
	// interpretation when both are detected; default (false) prefers person.
	PreferCompany   bool
	RemoveStopWords bool
	// PreserveNames skips diminutive-to-canonical given-name resolution,
	// keeping the surface form the caller typed as the token's Lemma.
	PreserveNames bool
}

var ukSurnameSuffixes = []string{"енко", "ук", "юк", "чук", "ський", "цький"}
var patronymicSuffixes = []string{"ович", "евич", "івна", "овна"}

// reverseTransliterationCues maps a romanized payment-context cue to the
// Slavic language it indicates (spec.md §4.E).
var reverseTransliterationCues = map[string]langdetect.Language{
	"vid":      langdetect.LangUK,
	"perekaz":  langdetect.LangUK,
	"ot":       langdetect.LangRU,
	"perevod":  langdetect.LangRU,
	"platezh":  langdetect.LangRU,
	"platizh":  langdetect.LangUK,
}

// Normalizer runs the morphological analysis pipeline.
type Normalizer struct {
	dict *dictionaries.Bundle
}

// New constructs a Normalizer backed by dict.
func New(dict *dictionaries.Bundle) *Normalizer {
	return &Normalizer{dict: dict}
}

// Normalize tokenizes text, role-tags and lemmatizes each token, and
// assembles the canonical name phrase. lang is the language already
// decided by internal/langdetect (must run before this stage, per
// spec.md §4.C).
func (n *Normalizer) Normalize(lang langdetect.Language, text string, opts Options) Result {
	res := Result{Analyses: make(map[string]NameAnalysis)}

	working := text
	if cue, detectedLang, ok := detectReverseTransliterationCue(working); ok {
		_ = cue
		if detectedLang != "" {
			lang = detectedLang
		}
	}

	rawTokens := tokenize(working)
	rawTokens = stripStopWordsAtBoundaries(rawTokens, n.dict, opts.RemoveStopWords)

	tokens := make([]Token, 0, len(rawTokens))
	traces := make([]TokenTrace, 0, len(rawTokens))

	for _, surface := range rawTokens {
		role, rule := n.classify(lang, surface)
		lemma, analysis := n.lemmatize(lang, surface, role, opts.PreserveNames)
		tok := Token{Surface: surface, Role: role, MorphTag: string(role), Lemma: lemma}
		tokens = append(tokens, tok)
		traces = append(traces, TokenTrace{Token: surface, Role: role, RuleApplied: rule, Output: lemma})
		if role == RoleGiven || role == RoleSurname || role == RolePatronymic {
			res.Analyses[surface] = analysis
		}
		if isIEMarker(n.dict, surface) {
			res.IEMarkerFound = true
		}
	}

	res.Tokens = tokens
	res.Traces = traces
	res.IsPerson, res.IsOrg = detectPersonOrOrg(tokens)

	if res.IsPerson && res.IsOrg {
		if opts.PreferCompany {
			res.IsPerson = false
		} else {
			res.IsOrg = false
		}
	}

	if res.IEMarkerFound {
		// An IE marker always resolves to a person, per spec.md §4.E.
		res.IsOrg = false
		res.IsPerson = true
		tokens = stripIEMarkerTokens(n.dict, tokens)
		res.Tokens = tokens
	}

	phrase, found := buildCanonicalPhrase(tokens)
	hasGiven := false
	for _, t := range tokens {
		if t.Role == RoleGiven {
			hasGiven = true
			break
		}
	}
	if !hasGiven {
		// Fallback: initial + surname extraction when no full name is present.
		if fb, ok := initialSurnameFallback(tokens); ok {
			phrase, found = fb, true
		}
	}

	if !found {
		res.CanonicalPhrase = text
		res.ReasonCodes = append(res.ReasonCodes, reason.NoName)
		return res
	}

	res.CanonicalPhrase = phrase
	return res
}

// classify assigns a role to a single token surface form.
func (n *Normalizer) classify(lang langdetect.Language, surface string) (Role, string) {
	lower := strings.ToLower(surface)
	dlang := toDictLang(lang)

	if isInitial(surface) {
		return RoleInitial, "initial_shape"
	}
	if n.dict.IsLegalForm(lower) {
		return RoleLegalForm, "dictionary_legal_form"
	}
	if n.dict.IsSurname(dlang, lower) {
		return RoleSurname, "dictionary_surname"
	}
	if n.dict.IsPatronymic(dlang, lower) {
		return RolePatronymic, "dictionary_patronymic"
	}
	if n.dict.IsGiven(dlang, lower) {
		return RoleGiven, "dictionary_given"
	}
	if _, ok := n.dict.CanonicalGivenName(dlang, lower); ok {
		return RoleGiven, "dictionary_diminutive"
	}
	if hasSuffix(lower, patronymicSuffixes) {
		return RolePatronymic, "suffix_patronymic"
	}
	if hasSuffix(lower, ukSurnameSuffixes) {
		return RoleSurname, "suffix_surname"
	}
	if unicode.IsUpper([]rune(surface)[0]) {
		// Capitalized but unrecognized: treat as an org-core candidate so
		// legal-form-adjacent tokens still assemble into a phrase.
		return RoleOrgCore, "capitalized_unknown"
	}
	return RoleUnknown, "unrecognized"
}

// lemmatize returns the token's canonical form plus a NameAnalysis.
// Surnames keep their nominative surface form (never collapsed to an
// unrelated generic "normal form"); given names resolve diminutives
// unless preserveNames asks to keep the surface form as typed.
func (n *Normalizer) lemmatize(lang langdetect.Language, surface string, role Role, preserveNames bool) (string, NameAnalysis) {
	dlang := toDictLang(lang)
	lower := strings.ToLower(surface)

	switch role {
	case RoleGiven:
		if preserveNames {
			return surface, NameAnalysis{Lemma: lower}
		}
		if canon, ok := n.dict.CanonicalGivenName(dlang, lower); ok {
			return applyCaseClass(surface, canon), NameAnalysis{Lemma: canon, Diminutive: lower}
		}
		return surface, NameAnalysis{Lemma: lower}
	case RoleSurname:
		return surface, NameAnalysis{Lemma: lower}
	case RolePatronymic:
		gender := genderFromPatronymicSuffix(lower)
		return surface, NameAnalysis{Lemma: lower, Gender: gender}
	default:
		return surface, NameAnalysis{Lemma: lower}
	}
}

func genderFromPatronymicSuffix(lower string) string {
	switch {
	case strings.HasSuffix(lower, "ович"), strings.HasSuffix(lower, "евич"):
		return "m"
	case strings.HasSuffix(lower, "івна"), strings.HasSuffix(lower, "овна"):
		return "f"
	default:
		return ""
	}
}

func toDictLang(lang langdetect.Language) dictionaries.Lang {
	switch lang {
	case langdetect.LangUK:
		return dictionaries.LangUK
	case langdetect.LangRU:
		return dictionaries.LangRU
	case langdetect.LangEN:
		return dictionaries.LangEN
	default:
		return dictionaries.LangUnknown
	}
}

func isInitial(surface string) bool {
	runes := []rune(strings.TrimSuffix(surface, "."))
	return len(runes) == 1 && unicode.IsUpper(runes[0])
}

func hasSuffix(lower string, suffixes []string) bool {
	for _, s := range suffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}
	return false
}

func isIEMarker(dict *dictionaries.Bundle, surface string) bool {
	return dict.IsIEMarker(strings.ToLower(surface))
}

func stripIEMarkerTokens(dict *dictionaries.Bundle, tokens []Token) []Token {
	out := make([]Token, 0, len(tokens))
	for _, t := range tokens {
		if dict.IsIEMarker(strings.ToLower(t.Surface)) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func detectPersonOrOrg(tokens []Token) (isPerson, isOrg bool) {
	var hasGiven, hasSurname, hasLegalForm, hasOrgCore bool
	for _, t := range tokens {
		switch t.Role {
		case RoleGiven:
			hasGiven = true
		case RoleSurname:
			hasSurname = true
		case RoleLegalForm:
			hasLegalForm = true
		case RoleOrgCore:
			hasOrgCore = true
		}
	}
	isPerson = hasGiven || hasSurname
	isOrg = hasLegalForm && hasOrgCore
	return isPerson, isOrg
}

// buildCanonicalPhrase assembles surname-given-patronymic order from
// role-tagged tokens, or a plausible org phrase. found is false if no
// name-shaped token sequence could be assembled.
func buildCanonicalPhrase(tokens []Token) (string, bool) {
	var surname, given, patronymic string
	var orgParts []string
	for _, t := range tokens {
		switch t.Role {
		case RoleSurname:
			if surname == "" {
				surname = t.Lemma
			}
		case RoleGiven:
			if given == "" {
				given = t.Lemma
			}
		case RolePatronymic:
			if patronymic == "" {
				patronymic = t.Lemma
			}
		case RoleLegalForm, RoleOrgCore:
			orgParts = append(orgParts, t.Surface)
		}
	}

	var parts []string
	if surname != "" {
		parts = append(parts, surname)
	}
	if given != "" {
		parts = append(parts, given)
	}
	if patronymic != "" {
		parts = append(parts, patronymic)
	}
	if len(parts) > 0 {
		return strings.Join(parts, " "), true
	}
	if len(orgParts) > 0 {
		return strings.Join(orgParts, " "), true
	}
	return "", false
}

// initialSurnameFallback implements spec.md §4.E's "P. Poroshenko" fallback.
func initialSurnameFallback(tokens []Token) (string, bool) {
	var initial, surname string
	for _, t := range tokens {
		if t.Role == RoleInitial && initial == "" {
			initial = t.Surface
		}
		if t.Role == RoleSurname && surname == "" {
			surname = t.Lemma
		}
	}
	if initial != "" && surname != "" {
		return surname + " " + initial, true
	}
	return "", false
}

// applyCaseClass reapplies the case class (Capitalized vs UPPER vs lower)
// of original onto replacement.
func applyCaseClass(original, replacement string) string {
	if original == strings.ToUpper(original) {
		return strings.ToUpper(replacement)
	}
	if original == strings.ToLower(original) {
		return strings.ToLower(replacement)
	}
	runes := []rune(replacement)
	if len(runes) == 0 {
		return replacement
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// tokenize splits text into Unicode-letter runs, keeping an internal
// apostrophe or hyphen as part of the surrounding token (spec.md §4.E
// step 1).
func tokenize(text string) []string {
	var tokens []string
	var cur []rune
	runes := []rune(text)
	flush := func() {
		if len(cur) > 0 {
			tokens = append(tokens, string(cur))
			cur = cur[:0]
		}
	}
	for i, r := range runes {
		switch {
		case unicode.IsLetter(r):
			cur = append(cur, r)
		case (r == '\'' || r == '-') && len(cur) > 0 && i+1 < len(runes) && unicode.IsLetter(runes[i+1]):
			cur = append(cur, r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}

// stripStopWordsAtBoundaries removes leading/trailing stop words, but
// never interior ones, per spec.md §4.E.
func stripStopWordsAtBoundaries(tokens []string, dict *dictionaries.Bundle, enabled bool) []string {
	if !enabled || len(tokens) == 0 {
		return tokens
	}
	start, end := 0, len(tokens)
	for start < end && dict.IsStopWord(tokens[start]) {
		start++
	}
	for end > start && dict.IsStopWord(tokens[end-1]) {
		end--
	}
	return tokens[start:end]
}

// detectReverseTransliterationCue scans for a romanized payment-context
// cue word and returns the Slavic language it indicates.
func detectReverseTransliterationCue(text string) (cue string, lang langdetect.Language, ok bool) {
	lower := strings.ToLower(text)
	for _, tok := range strings.Fields(lower) {
		tok = strings.Trim(tok, ".,;:")
		if l, found := reverseTransliterationCues[tok]; found {
			return tok, l, true
		}
	}
	return "", "", false
}
