// Package blocking computes cheap candidate-bucket keys from a
// normalized name (spec.md §4.H) and turns each present key into a
// synthetic screening candidate with an indicative confidence. Blocking
// keys are never a final verdict — they narrow the pool the vector
// index and reranker work over.
package blocking

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/dariapavlova/sanctions-screen/internal/dictionaries"
	"github.com/dariapavlova/sanctions-screen/internal/morphology"
	"github.com/dariapavlova/sanctions-screen/internal/reason"
)

// Keys holds the set of blocking keys computed for one entity, per
// spec.md §3. A zero-value field means that key was not derivable from
// the input.
type Keys struct {
	SurnameNormalized   string
	PhoneticSurname     string
	FirstInitialSurname string
	BirthDecadeSurname  string
	BirthYear           int
	CountryCode         string
	EDRPOU              string
	TaxID               string
	OrgCoreStem         string
	LegalFormKey        string
}

// Metadata is the per-request side information blocking keys can
// derive from (dates, codes) alongside the morphology result.
type Metadata struct {
	BirthYear   int
	CountryCode string
	EDRPOU      string
	TaxID       string
}

// Candidate is a synthetic, blocking-key-derived screening candidate
// (spec.md §3 ScreeningCandidate, restricted to the fields blocking can
// populate; entity_id is left for the caller to fill once the key is
// joined against the watchlist index).
type Candidate struct {
	Key         string // the blocking key text itself, used as a join key
	KeyType     string
	Confidence  float64
	ReasonCodes []reason.Code
}

// confidence by key type, per spec.md §4.H ("0.58-0.85 by key type").
const (
	confSurnameNormalized   = 0.70
	confPhoneticSurname     = 0.60
	confFirstInitialSurname = 0.65
	confBirthDecadeSurname  = 0.58
	confCountryCode         = 0.58
	confEDRPOU              = 0.85
	confTaxID               = 0.85
	confOrgCoreStem         = 0.62
	confLegalFormKey        = 0.60
)

// birthYearWindow is the join tolerance for birth_year matching
// (spec.md §4.H: "±5 window for joins").
const birthYearWindow = 5

// Computer derives blocking keys and synthetic candidates from a
// morphology result and request metadata.
type Computer struct {
	dict *dictionaries.Bundle
}

// New constructs a Computer backed by dict's phonetic alternation
// tables.
func New(dict *dictionaries.Bundle) *Computer {
	return &Computer{dict: dict}
}

// Compute derives every blocking key that the morphology result and md
// support.
func (c *Computer) Compute(morph morphology.Result, md Metadata) Keys {
	var keys Keys

	surname, given := surnameAndGiven(morph)
	if surname != "" {
		keys.SurnameNormalized = normalizeSurname(surname)
		keys.PhoneticSurname = c.phoneticKey(keys.SurnameNormalized)
	}
	if surname != "" && given != "" {
		keys.FirstInitialSurname = firstRune(given) + "_" + keys.SurnameNormalized
	}

	if md.BirthYear > 0 {
		keys.BirthYear = md.BirthYear
		if keys.SurnameNormalized != "" {
			keys.BirthDecadeSurname = decade(md.BirthYear) + "_" + keys.SurnameNormalized
		}
	}
	keys.CountryCode = strings.ToUpper(md.CountryCode)
	keys.EDRPOU = md.EDRPOU
	keys.TaxID = md.TaxID

	if orgCore := orgCoreStem(morph); orgCore != "" {
		keys.OrgCoreStem = orgCore
	}
	if legalForm := legalFormKey(morph, c.dict); legalForm != "" {
		keys.LegalFormKey = legalForm
	}

	return keys
}

// confidenceByKeyType backs both Candidates and ConfidenceFor.
var confidenceByKeyType = map[string]float64{
	"surname_normalized":    confSurnameNormalized,
	"phonetic_surname":      confPhoneticSurname,
	"first_initial_surname": confFirstInitialSurname,
	"birth_decade_surname":  confBirthDecadeSurname,
	"country_code":          confCountryCode,
	"edrpou":                confEDRPOU,
	"tax_id":                confTaxID,
	"org_core_stem":         confOrgCoreStem,
	"legal_form_key":        confLegalFormKey,
}

// ConfidenceFor returns the indicative confidence for a blocking key
// type, for callers joining against a blocking index with a key they
// derived outside of Compute (e.g. orchestrator matching a generated
// name variant against the surname_normalized index).
func ConfidenceFor(keyType string) float64 {
	return confidenceByKeyType[keyType]
}

// Candidates converts a non-empty Keys into the synthetic candidates
// each present key produces.
func Candidates(k Keys) []Candidate {
	var out []Candidate
	add := func(key, keyType string, conf float64, codes ...reason.Code) {
		if key == "" {
			return
		}
		out = append(out, Candidate{Key: key, KeyType: keyType, Confidence: conf, ReasonCodes: codes})
	}

	add(k.SurnameNormalized, "surname_normalized", confSurnameNormalized, reason.Exact)
	add(k.PhoneticSurname, "phonetic_surname", confPhoneticSurname, reason.Phonetic)
	add(k.FirstInitialSurname, "first_initial_surname", confFirstInitialSurname, reason.Initials)
	add(k.BirthDecadeSurname, "birth_decade_surname", confBirthDecadeSurname, reason.MetadataDOB)
	add(k.CountryCode, "country_code", confCountryCode)
	add(k.EDRPOU, "edrpou", confEDRPOU, reason.MetadataEDRPOU)
	add(k.TaxID, "tax_id", confTaxID, reason.MetadataTaxID)
	add(k.OrgCoreStem, "org_core_stem", confOrgCoreStem, reason.LegalForm)
	add(k.LegalFormKey, "legal_form_key", confLegalFormKey, reason.LegalForm)

	return out
}

// BirthYearMatches reports whether a and b fall within the ±5-year join
// window spec.md §4.H specifies for birth_year.
func BirthYearMatches(a, b int) bool {
	if a == 0 || b == 0 {
		return false
	}
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff <= birthYearWindow
}

func surnameAndGiven(morph morphology.Result) (surname, given string) {
	for _, t := range morph.Tokens {
		if t.Role == morphology.RoleSurname && surname == "" {
			surname = t.Lemma
		}
		if t.Role == morphology.RoleGiven && given == "" {
			given = t.Lemma
		}
	}
	return surname, given
}

func orgCoreStem(morph morphology.Result) string {
	for _, t := range morph.Tokens {
		if t.Role == morphology.RoleOrgCore {
			return normalizeSurname(t.Lemma)
		}
	}
	return ""
}

func legalFormKey(morph morphology.Result, dict *dictionaries.Bundle) string {
	for _, t := range morph.Tokens {
		if t.Role == morphology.RoleLegalForm {
			return strings.ToLower(t.Surface)
		}
		if dict != nil && dict.IsLegalForm(t.Surface) {
			return strings.ToLower(t.Surface)
		}
	}
	return ""
}

// normalizeSurname lowercases and strips combining diacritics, per
// spec.md §4.H ("lowercased surname stripped of diacritics").
func normalizeSurname(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

func firstRune(s string) string {
	for _, r := range s {
		return strings.ToLower(string(r))
	}
	return ""
}

func decade(year int) string {
	d := (year / 10) * 10
	return itoa(d)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// phoneticKey derives a coarse phonetic key by applying the
// dictionary's phonetic-alternation groups: every surface form within
// the same alternation group canonicalizes to that group's first
// (lowest-index) member, so that surnames differing only by a known
// spelling alternation collapse to the same key. This substitutes for
// a Double-Metaphone/Soundex implementation (see DESIGN.md) using data
// already grounded in internal/dictionaries.
func (c *Computer) phoneticKey(normalizedSurname string) string {
	if c.dict == nil {
		return normalizedSurname
	}
	runesOf := []rune(normalizedSurname)
	for i, r := range runesOf {
		for _, group := range c.dict.PhoneticAlternations {
			if len(group) == 0 {
				continue
			}
			canon := []rune(group[0])
			for _, alt := range group[1:] {
				altRunes := []rune(alt)
				if matchesAt(runesOf, i, altRunes) {
					runesOf = spliceRunes(runesOf, i, len(altRunes), canon)
					break
				}
			}
		}
	}
	return string(runesOf)
}

func matchesAt(haystack []rune, pos int, needle []rune) bool {
	if pos+len(needle) > len(haystack) {
		return false
	}
	for j, r := range needle {
		if haystack[pos+j] != r {
			return false
		}
	}
	return true
}

func spliceRunes(src []rune, pos, oldLen int, replacement []rune) []rune {
	out := make([]rune, 0, len(src)-oldLen+len(replacement))
	out = append(out, src[:pos]...)
	out = append(out, replacement...)
	out = append(out, src[pos+oldLen:]...)
	return out
}
