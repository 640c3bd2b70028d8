// Package acpattern implements the tiered Aho-Corasick pattern builder
// and matcher (spec.md §4.G): the builder emits patterns into four
// precision tiers, and the matcher scans input text against the
// corresponding automaton per tier, honoring per-pattern context
// requirements.
package acpattern

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/coregx/ahocorasick"
	"github.com/dlclark/regexp2"

	"github.com/dariapavlova/sanctions-screen/internal/morphology"
	"github.com/dariapavlova/sanctions-screen/internal/reason"
)

// Tier is a pattern's precision tier.
type Tier int

// Tiers, per spec.md §4.G.
const (
	TierExact      Tier = 0 // document numbers, ID-shaped tokens — confidence 0.97
	TierHighRecall Tier = 1 // contextual full names, company-with-legal-form — 0.80-0.90
	TierMedium     Tier = 2 // structured-name forms, standalone dictionary names — ~0.65
	TierBroad      Tier = 3 // aggressive broad patterns — ~0.55
)

// Pattern is a single builder-emitted pattern (spec.md §3).
type Pattern struct {
	Text             string
	Tier             Tier
	PrecisionHint    float64
	SourceConfidence float64
	Language         string
	ContextRequired  bool
	ReasonCode       reason.Code
}

// Hit is a matcher result: a pattern that fired against the input.
type Hit struct {
	Pattern    Pattern
	Start, End int
}

// contextTriggerWords are payment/recipient cue words that satisfy a
// context-required pattern's trigger-word window check.
var contextTriggerWords = []string{
	"оплата", "переказ", "платіж", "перевод", "платеж", "recipient", "payment", "transfer", "отримувач", "получатель",
}

// contextWindowChars is the radius (spec.md §4.G: "20-character window")
// around a match within which a trigger word must appear.
const contextWindowChars = 20

// documentNumberPatterns are regexp2 shapes for tier-0 ID-shaped tokens.
var documentNumberPatterns = []struct {
	name string
	expr string
}{
	{"edrpou", `\b\d{8}\b`},
	{"tax_id", `\b\d{10}\b`},
	{"iban", `(?i)\b[A-Z]{2}\d{2}[A-Z0-9]{10,30}\b`},
	{"passport", `(?i)\b[A-Z]{2}\d{6}\b`},
}

// Builder constructs tiered patterns from a morphology result and a raw
// document-number scan of the original text.
type Builder struct {
	entityConfig EntityConfig
	docPatterns  []*regexp2.Regexp
}

// EntityConfig is the per-entity pattern filter (spec.md §4.G).
type EntityConfig struct {
	MinConfidence             float64
	MaxPatternsPerEntity      int
	RequireContextForSurnames bool
}

func (c EntityConfig) withDefaults() EntityConfig {
	if c.MaxPatternsPerEntity <= 0 {
		c.MaxPatternsPerEntity = 20
	}
	return c
}

// NewBuilder constructs a Builder with entityConfig's filter applied by
// Build.
func NewBuilder(entityConfig EntityConfig) *Builder {
	compiled := make([]*regexp2.Regexp, 0, len(documentNumberPatterns))
	for _, p := range documentNumberPatterns {
		compiled = append(compiled, regexp2.MustCompile(p.expr, regexp2.None))
	}
	return &Builder{entityConfig: entityConfig.withDefaults(), docPatterns: compiled}
}

// Build emits the full, filtered pattern set for one entity's canonical
// name phrase, morphology result, and the original (pre-normalization)
// text, where tier-0 document-number shapes are scanned.
func (b *Builder) Build(originalText string, morph morphology.Result, lang string) []Pattern {
	var all []Pattern

	all = append(all, b.tier0DocumentPatterns(originalText, lang)...)
	all = append(all, b.tier1ContextualNamePatterns(morph, lang)...)
	all = append(all, b.tier2StructuredNamePatterns(morph, lang)...)
	all = append(all, b.tier3BroadPatterns(morph, lang)...)

	return b.filter(all)
}

func (b *Builder) tier0DocumentPatterns(text string, lang string) []Pattern {
	var out []Pattern
	for i, re := range b.docPatterns {
		m, _ := re.FindStringMatch(text)
		if m == nil {
			continue
		}
		out = append(out, Pattern{
			Text:             m.String(),
			Tier:             TierExact,
			PrecisionHint:    0.97,
			SourceConfidence: 0.97,
			Language:         lang,
			ContextRequired:  false,
			ReasonCode:       docReasonCode(documentNumberPatterns[i].name),
		})
	}
	return out
}

func docReasonCode(name string) reason.Code {
	switch name {
	case "edrpou":
		return reason.MetadataEDRPOU
	case "tax_id":
		return reason.MetadataTaxID
	default:
		return reason.DocNum
	}
}

func (b *Builder) tier1ContextualNamePatterns(morph morphology.Result, lang string) []Pattern {
	var out []Pattern
	if morph.IsPerson && morph.CanonicalPhrase != "" && strings.Contains(morph.CanonicalPhrase, " ") {
		out = append(out, Pattern{
			Text: morph.CanonicalPhrase, Tier: TierHighRecall, PrecisionHint: 0.85,
			SourceConfidence: 0.85, Language: lang, ContextRequired: true, ReasonCode: reason.Exact,
		})
	}
	if morph.IsOrg && morph.CanonicalPhrase != "" {
		out = append(out, Pattern{
			Text: morph.CanonicalPhrase, Tier: TierHighRecall, PrecisionHint: 0.80,
			SourceConfidence: 0.80, Language: lang, ContextRequired: false, ReasonCode: reason.LegalForm,
		})
	}
	return out
}

func (b *Builder) tier2StructuredNamePatterns(morph morphology.Result, lang string) []Pattern {
	var out []Pattern
	var initial, surname string
	for _, t := range morph.Tokens {
		if t.Role == morphology.RoleInitial && initial == "" {
			initial = t.Surface
		}
		if t.Role == morphology.RoleSurname && surname == "" {
			surname = t.Lemma
		}
	}
	if initial != "" && surname != "" {
		out = append(out,
			Pattern{Text: surname + " " + initial, Tier: TierMedium, PrecisionHint: 0.65, SourceConfidence: 0.65, Language: lang, ContextRequired: b.entityConfig.RequireContextForSurnames, ReasonCode: reason.Initials},
			Pattern{Text: initial + " " + surname, Tier: TierMedium, PrecisionHint: 0.65, SourceConfidence: 0.65, Language: lang, ContextRequired: b.entityConfig.RequireContextForSurnames, ReasonCode: reason.Initials},
		)
	}
	if surname != "" && initial == "" {
		out = append(out, Pattern{
			Text: surname, Tier: TierMedium, PrecisionHint: 0.65, SourceConfidence: 0.65,
			Language: lang, ContextRequired: b.entityConfig.RequireContextForSurnames, ReasonCode: reason.Exact,
		})
	}
	return out
}

func (b *Builder) tier3BroadPatterns(morph morphology.Result, lang string) []Pattern {
	var out []Pattern
	for _, t := range morph.Tokens {
		if t.Role == morphology.RoleGiven || t.Role == morphology.RoleSurname {
			out = append(out, Pattern{
				Text: t.Lemma, Tier: TierBroad, PrecisionHint: 0.55, SourceConfidence: 0.55,
				Language: lang, ContextRequired: true, ReasonCode: reason.Phonetic,
			})
		}
	}
	return out
}

// filter applies the per-entity min-confidence / max-patterns filter,
// always keeping at least 3 fallback patterns (spec.md §4.G).
func (b *Builder) filter(all []Pattern) []Pattern {
	var kept []Pattern
	var below []Pattern
	for _, p := range all {
		if p.SourceConfidence >= b.entityConfig.MinConfidence {
			kept = append(kept, p)
		} else {
			below = append(below, p)
		}
	}
	if len(kept) < 3 {
		need := 3 - len(kept)
		// Prefer the shortest, most specific of the below-threshold patterns.
		sort.SliceStable(below, func(i, j int) bool {
			return utf8.RuneCountInString(below[i].Text) < utf8.RuneCountInString(below[j].Text)
		})
		for i := 0; i < len(below) && i < need; i++ {
			kept = append(kept, below[i])
		}
	}
	if len(kept) > b.entityConfig.MaxPatternsPerEntity {
		kept = kept[:b.entityConfig.MaxPatternsPerEntity]
	}
	return kept
}

// Matcher scans input text against a per-tier Aho-Corasick automaton.
type Matcher struct {
	tierAutomata map[Tier]*ahocorasick.Automaton
	tierPatterns map[Tier]map[string]Pattern // lowercased pattern text -> Pattern
}

// BuildMatcher compiles one automaton per tier present in patterns.
func BuildMatcher(patterns []Pattern) *Matcher {
	byTier := map[Tier][]string{}
	lookup := map[Tier]map[string]Pattern{}
	for _, p := range patterns {
		lower := strings.ToLower(p.Text)
		byTier[p.Tier] = append(byTier[p.Tier], lower)
		if lookup[p.Tier] == nil {
			lookup[p.Tier] = map[string]Pattern{}
		}
		lookup[p.Tier][lower] = p
	}
	automata := map[Tier]*ahocorasick.Automaton{}
	for tier, texts := range byTier {
		automata[tier] = ahocorasick.NewAutomaton(texts)
	}
	return &Matcher{tierAutomata: automata, tierPatterns: lookup}
}

// Match scans text against every compiled tier automaton and returns all
// hits, honoring each pattern's context-required trigger-word window.
func (m *Matcher) Match(text string) []Hit {
	lower := strings.ToLower(text)
	var hits []Hit
	for tier, automaton := range m.tierAutomata {
		matches := automaton.FindAll(lower)
		for _, mm := range matches {
			p, ok := m.tierPatterns[tier][strings.ToLower(mm.Pattern)]
			if !ok {
				continue
			}
			if p.ContextRequired && !hasContextTrigger(lower, mm.Start, mm.End) {
				continue
			}
			hits = append(hits, Hit{Pattern: p, Start: mm.Start, End: mm.End})
		}
	}
	return hits
}

func hasContextTrigger(lower string, start, end int) bool {
	// start/end are byte offsets; widen the window one rune at a time so
	// the radius is counted in characters, not bytes.
	winStart := start
	for n := 0; n < contextWindowChars && winStart > 0; n++ {
		_, size := utf8.DecodeLastRuneInString(lower[:winStart])
		winStart -= size
	}
	winEnd := end
	for n := 0; n < contextWindowChars && winEnd < len(lower); n++ {
		_, size := utf8.DecodeRuneInString(lower[winEnd:])
		winEnd += size
	}
	window := lower[winStart:winEnd]
	for _, trig := range contextTriggerWords {
		if strings.Contains(window, trig) {
			return true
		}
	}
	return false
}
