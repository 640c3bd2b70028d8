// Package variants implements the variant generator (spec.md §4.F): for
// each canonical name token, produce a bounded, deduplicated, priority-
// ranked set of transliteration / morphological / phonetic / visual /
// typo / word-order variants, time-boxed and capped.
package variants

import (
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/dariapavlova/sanctions-screen/internal/dictionaries"
)

// Category is a variant's generation family.
type Category string

// Categories, per spec.md §4.F.
const (
	CategoryTransliteration Category = "transliteration"
	CategoryMorphological   Category = "morphological"
	CategoryPhonetic        Category = "phonetic"
	CategoryVisual          Category = "visual"
	CategoryTypo            Category = "typo"
	CategoryWordOrder       Category = "word_order"
)

// categoryWeight is the relative priority of each category used by the
// proportional slot-allocation step.
var categoryWeight = map[Category]float64{
	CategoryTransliteration: 0.30,
	CategoryMorphological:   0.20,
	CategoryPhonetic:        0.20,
	CategoryVisual:          0.10,
	CategoryTypo:            0.10,
	CategoryWordOrder:       0.10,
}

// Variant is a single generated name variant.
type Variant struct {
	Text     string
	Category Category
}

// Options bounds variant generation.
type Options struct {
	MaxVariants      int // default 50
	MaxTimeMs        int // default 100
	MaxTyposPerToken int // default 3
}

func (o Options) withDefaults() Options {
	if o.MaxVariants <= 0 {
		o.MaxVariants = 50
	}
	if o.MaxTimeMs <= 0 {
		o.MaxTimeMs = 100
	}
	if o.MaxTyposPerToken <= 0 {
		o.MaxTyposPerToken = 3
	}
	return o
}

// Generator produces variants for canonical tokens.
type Generator struct {
	dict *dictionaries.Bundle
	now  func() time.Time
}

// New constructs a Generator.
func New(dict *dictionaries.Bundle) *Generator {
	return &Generator{dict: dict, now: time.Now}
}

// Generate produces a bounded, deduplicated set of variants for the
// given canonical tokens (e.g. surname + given name, in order).
func (g *Generator) Generate(tokens []string, opts Options) []Variant {
	opts = opts.withDefaults()
	deadline := g.now().Add(time.Duration(opts.MaxTimeMs) * time.Millisecond)

	byCategory := map[Category][]Variant{}

	for _, tok := range tokens {
		if g.now().After(deadline) {
			break
		}
		byCategory[CategoryTransliteration] = append(byCategory[CategoryTransliteration], transliterations(tok)...)
		byCategory[CategoryPhonetic] = append(byCategory[CategoryPhonetic], phoneticVariants(tok, g.dict)...)
		byCategory[CategoryMorphological] = append(byCategory[CategoryMorphological], morphologicalVariants(tok, g.dict)...)
		byCategory[CategoryVisual] = append(byCategory[CategoryVisual], visualVariants(tok)...)
		byCategory[CategoryTypo] = append(byCategory[CategoryTypo], typoVariants(tok, opts.MaxTyposPerToken)...)
	}

	if !g.now().After(deadline) {
		byCategory[CategoryWordOrder] = append(byCategory[CategoryWordOrder], wordOrderVariants(tokens, g.dict)...)
	}

	return allocateSlots(byCategory, tokens, opts.MaxVariants)
}

// allocateSlots implements spec.md §4.F's weighted proportional slot
// allocation across categories, then deduplicates (case-insensitive,
// excluding the original tokens themselves).
func allocateSlots(byCategory map[Category][]Variant, originals []string, maxVariants int) []Variant {
	origSet := make(map[string]bool, len(originals))
	for _, o := range originals {
		origSet[strings.ToLower(o)] = true
	}

	var totalWeight float64
	for cat, vs := range byCategory {
		if len(vs) > 0 {
			totalWeight += categoryWeight[cat]
		}
	}
	if totalWeight == 0 {
		return nil
	}

	var result []Variant
	seen := map[string]bool{}
	order := []Category{CategoryTransliteration, CategoryMorphological, CategoryPhonetic, CategoryVisual, CategoryTypo, CategoryWordOrder}
	sort.Slice(order, func(i, j int) bool {
		return categoryWeight[order[i]] > categoryWeight[order[j]]
	})

	for _, cat := range order {
		vs := byCategory[cat]
		if len(vs) == 0 {
			continue
		}
		slot := int(float64(maxVariants) * categoryWeight[cat] / totalWeight)
		if slot < 1 {
			slot = 1
		}
		added := 0
		for _, v := range vs {
			if added >= slot || len(result) >= maxVariants {
				break
			}
			key := strings.ToLower(v.Text)
			if origSet[key] || seen[key] {
				continue
			}
			seen[key] = true
			result = append(result, v)
			added++
		}
	}

	// Fill any remaining slots (weighted allocation rounds down) from
	// whatever categories still have unused candidates, highest weight first.
	for _, cat := range order {
		if len(result) >= maxVariants {
			break
		}
		for _, v := range byCategory[cat] {
			if len(result) >= maxVariants {
				break
			}
			key := strings.ToLower(v.Text)
			if origSet[key] || seen[key] {
				continue
			}
			seen[key] = true
			result = append(result, v)
		}
	}

	return result
}

// --- Transliteration ---------------------------------------------------

// translitStandard names a published romanization standard.
type translitStandard string

const (
	standardICAO       translitStandard = "icao"
	standardISO9        translitStandard = "iso9"
	standardGOST2002    translitStandard = "gost2002"
	standardUkrainianNatl translitStandard = "ua_national"
)

// translitTables gives, for the Cyrillic letters where standards diverge,
// the Latin rendering each standard prescribes. Letters not listed share
// a common base mapping (translitBase).
var translitTables = map[translitStandard]map[rune]string{
	standardICAO: {
		'г': "h", 'и': "y", 'й': "i", 'х': "kh", 'ц': "ts", 'ч': "ch", 'ш': "sh", 'щ': "shch", 'ь': "", 'ю': "iu", 'я': "ia",
	},
	standardISO9: {
		'г': "g", 'и': "i", 'й': "j", 'х': "h", 'ц': "c", 'ч': "č", 'ш': "š", 'щ': "ŝ", 'ь': "'", 'ю': "û", 'я': "â",
	},
	standardGOST2002: {
		'г': "g", 'и': "i", 'й': "j", 'х': "x", 'ц': "c", 'ч': "ch", 'ш': "sh", 'щ': "shh", 'ь': "'", 'ю': "yu", 'я': "ya",
	},
	standardUkrainianNatl: {
		'г': "h", 'и': "y", 'й': "i", 'х': "kh", 'ц': "ts", 'ч': "ch", 'ш': "sh", 'щ': "shch", 'ь': "", 'ю': "iu", 'я': "ia",
	},
}

var translitBase = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'д': "d", 'е': "e", 'є': "ie", 'ж': "zh",
	'з': "z", 'і': "i", 'ї': "i", 'к': "k", 'л': "l", 'м': "m", 'н': "n",
	'о': "o", 'п': "p", 'р': "r", 'с': "s", 'т': "t", 'у': "u", 'ф': "f",
	'ы': "y", 'э': "e", 'ё': "e", 'ъ': "", 'ґ': "g",
}

func transliterations(token string) []Variant {
	var out []Variant
	for _, std := range []translitStandard{standardICAO, standardISO9, standardGOST2002, standardUkrainianNatl} {
		rendered := renderTranslit(token, translitTables[std])
		if rendered != "" && !strings.EqualFold(rendered, token) {
			out = append(out, Variant{Text: rendered, Category: CategoryTransliteration})
		}
	}
	return out
}

func renderTranslit(token string, overrides map[rune]string) string {
	var b strings.Builder
	for _, r := range token {
		lower := unicode.ToLower(r)
		var rendered string
		if v, ok := overrides[lower]; ok {
			rendered = v
		} else if v, ok := translitBase[lower]; ok {
			rendered = v
		} else {
			rendered = string(r)
		}
		if unicode.IsUpper(r) && len(rendered) > 0 {
			rendered = strings.ToUpper(rendered[:1]) + rendered[1:]
		}
		b.WriteString(rendered)
	}
	return b.String()
}

// --- Phonetic ------------------------------------------------------------

func phoneticVariants(token string, dict *dictionaries.Bundle) []Variant {
	var out []Variant
	lower := strings.ToLower(token)
	for _, group := range dict.PhoneticAlternations {
		for _, from := range group {
			if !strings.Contains(lower, from) {
				continue
			}
			for _, to := range group {
				if to == from {
					continue
				}
				candidate := strings.Replace(lower, from, to, 1)
				if candidate != lower {
					out = append(out, Variant{Text: candidate, Category: CategoryPhonetic})
				}
			}
		}
	}
	return out
}

// --- Morphological (declensions + diminutives) ---------------------------

// ukDeclensionSuffixes and ruDeclensionSuffixes are representative case
// endings applied to a nominative surname/given-name stem (spec.md §4.F:
// "ru 6 cases, uk 7 cases"). These are a simplified approximation, not a
// full declension engine.
var ukDeclensionSuffixes = []string{"а", "у", "ом", "і", "ою", "ів", "о"}
var ruDeclensionSuffixes = []string{"а", "у", "ом", "е", "ы", "ой"}

func morphologicalVariants(token string, dict *dictionaries.Bundle) []Variant {
	var out []Variant
	lower := strings.ToLower(token)
	stem := strings.TrimSuffix(lower, "о")
	if r := []rune(lower); stem == lower && len(r) > 2 {
		stem = string(r[:len(r)-1])
	}
	for _, suf := range ukDeclensionSuffixes {
		out = append(out, Variant{Text: stem + suf, Category: CategoryMorphological})
	}
	for _, suf := range ruDeclensionSuffixes {
		out = append(out, Variant{Text: stem + suf, Category: CategoryMorphological})
	}

	for _, lang := range []dictionaries.Lang{dictionaries.LangUK, dictionaries.LangRU, dictionaries.LangEN} {
		table := dict.Diminutives[lang]
		for dim, canon := range table {
			if canon == lower {
				out = append(out, Variant{Text: dim, Category: CategoryMorphological})
			}
		}
	}
	return out
}

// --- Visual / homoglyph ---------------------------------------------------

// latinToCyrillicConfusables is the forward direction of validator's
// confusable policy: generating attack-surface patterns rather than
// neutralizing them.
var latinToCyrillicConfusables = map[rune]rune{
	'a': 'а', 'o': 'о', 'p': 'р', 'e': 'е', 'c': 'с', 'x': 'х', 'y': 'у', 'k': 'к', 'm': 'м', 't': 'т',
}

func visualVariants(token string) []Variant {
	runes := []rune(token)
	var produced []string
	for i, r := range runes {
		lower := unicode.ToLower(r)
		repl, ok := latinToCyrillicConfusables[lower]
		if !ok {
			continue
		}
		cp := append([]rune(nil), runes...)
		if unicode.IsUpper(r) {
			repl = unicode.ToUpper(repl)
		}
		cp[i] = repl
		produced = append(produced, string(cp))
	}
	out := make([]Variant, 0, len(produced))
	for _, p := range produced {
		out = append(out, Variant{Text: p, Category: CategoryVisual})
	}
	return out
}

// --- Typos -----------------------------------------------------------------

// keyboardAdjacency is a small common-keyboard-adjacency table (QWERTY +
// ЙЦУКЕН) covering the most frequent letters in Slavic/Latin names.
var keyboardAdjacency = map[rune]string{
	'a': "qsz", 'e': "wrd", 'i': "uoj", 'o': "iklp", 'n': "bhjm",
	'в': "аисд", 'о': "ироьл", 'е': "укнг", 'а': "пврсы", 'н': "гертшоб",
}

func typoVariants(token string, maxTypos int) []Variant {
	runes := []rune(token)
	var out []Variant
	count := 0
	for i, r := range runes {
		if count >= maxTypos {
			break
		}
		lower := unicode.ToLower(r)
		adj, ok := keyboardAdjacency[lower]
		if !ok {
			continue
		}
		for _, sub := range adj {
			cp := append([]rune(nil), runes...)
			cp[i] = sub
			out = append(out, Variant{Text: string(cp), Category: CategoryTypo})
			count++
			break // one substitution per position keeps the set small
		}
	}
	// Repeated-letter pattern: double the token's first letter once, if
	// the per-token typo cap still has room.
	if len(runes) > 1 && count < maxTypos {
		cp := append([]rune(nil), runes...)
		cp = append(cp[:1], append([]rune{runes[0]}, cp[1:]...)...)
		out = append(out, Variant{Text: string(cp), Category: CategoryTypo})
	}
	return out
}

// --- Word order --------------------------------------------------------

func wordOrderVariants(tokens []string, dict *dictionaries.Bundle) []Variant {
	var capitalized []string
	for _, t := range tokens {
		r := []rune(t)
		if len(r) == 0 || !unicode.IsUpper(r[0]) {
			return nil
		}
		if dict.IsStopWord(t) {
			return nil
		}
		capitalized = append(capitalized, t)
	}
	if len(capitalized) < 2 || len(capitalized) > 4 {
		return nil
	}

	var out []Variant
	n := len(capitalized)
	swapped := append([]string(nil), capitalized...)
	swapped[0], swapped[1] = swapped[1], swapped[0]
	out = append(out, Variant{Text: strings.Join(swapped, " "), Category: CategoryWordOrder})

	if n >= 2 {
		lastFirstMiddle := append([]string{capitalized[n-1]}, capitalized[:n-1]...)
		out = append(out, Variant{Text: strings.Join(lastFirstMiddle, " "), Category: CategoryWordOrder})
	}

	commaFormal := capitalized[0] + ", " + strings.Join(capitalized[1:], " ")
	out = append(out, Variant{Text: commaFormal, Category: CategoryWordOrder})

	return out
}
