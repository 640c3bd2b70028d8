// Package dictionaries loads the engine's word lists and phonetic tables
// from embedded YAML assets.
//
// Per spec.md §1 Non-goals ("dictionary content is data, not code"), every
// name list, stop-word set, legal-form marker, diminutive table, and
// phonetic alternation table lives as a YAML file under data/ and is
// parsed once at init via go:embed + gopkg.in/yaml.v3. The shipped tables
// are small representative samples; a production deployment would swap in
// a real word list without touching Go code.
package dictionaries

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed data/*.yaml
var dataFS embed.FS

// Lang is an ISO-639-1-ish language code this package recognizes.
type Lang string

// Supported languages.
const (
	LangUK      Lang = "uk"
	LangRU      Lang = "ru"
	LangEN      Lang = "en"
	LangUnknown Lang = "unknown"
)

// NameLists holds per-language given/surname/patronymic word sets.
type NameLists struct {
	Given      map[string]bool
	Surname    map[string]bool
	Patronymic map[string]bool
}

type namesFile struct {
	UK namesLangBlock `yaml:"uk"`
	RU namesLangBlock `yaml:"ru"`
	EN namesLangBlock `yaml:"en"`
}

type namesLangBlock struct {
	Given      []string `yaml:"given"`
	Surname    []string `yaml:"surname"`
	Patronymic []string `yaml:"patronymic"`
}

type stopwordsFile struct {
	RU      []string `yaml:"ru"`
	UK      []string `yaml:"uk"`
	EN      []string `yaml:"en"`
	Phrases []string `yaml:"phrases"`
}

type legalFormsFile struct {
	OrgLegalForms struct {
		UK []string `yaml:"uk"`
		RU []string `yaml:"ru"`
		EN []string `yaml:"en"`
	} `yaml:"org_legal_forms"`
	IndividualEntrepreneurMarkers []string `yaml:"individual_entrepreneur_markers"`
}

type phoneticFile struct {
	Alternations               [][]string        `yaml:"alternations"`
	CyrillicToLatinConfusables map[string]string `yaml:"cyrillic_to_latin_confusables"`
	LatinDigitConfusables      map[string]string `yaml:"latin_digit_confusables"`
}

// Bundle is the immutable, process-wide set of all dictionaries. Loaded
// once at init via Load(); safe for concurrent read-only access from every
// stage (spec.md §5: "Dictionaries ... read-only after init -> no
// locking").
type Bundle struct {
	Names map[Lang]NameLists

	StopWords       map[Lang]map[string]bool
	StopPhrases     []string
	unionStopWords  map[string]bool
	unionStopWordsO sync.Once

	LegalForms       map[Lang]map[string]bool
	IEMarkers        map[string]bool
	allLegalFormsSet map[string]bool

	Diminutives map[Lang]map[string]string // diminutive -> canonical given name

	PhoneticAlternations       [][]string
	CyrillicToLatinConfusables map[string]string
	LatinDigitConfusables      map[string]string
}

// Load parses every embedded YAML asset into a Bundle. It only fails if an
// asset is malformed; the assets are bundled at compile time so this
// should never happen outside of development on this package itself.
func Load() (*Bundle, error) {
	b := &Bundle{
		Names:       make(map[Lang]NameLists),
		StopWords:   make(map[Lang]map[string]bool),
		LegalForms:  make(map[Lang]map[string]bool),
		IEMarkers:   make(map[string]bool),
		Diminutives: make(map[Lang]map[string]string),
	}

	var nf namesFile
	if err := readYAML("data/names.yaml", &nf); err != nil {
		return nil, fmt.Errorf("dictionaries: names.yaml: %w", err)
	}
	b.Names[LangUK] = toNameLists(nf.UK)
	b.Names[LangRU] = toNameLists(nf.RU)
	b.Names[LangEN] = toNameLists(nf.EN)

	var sf stopwordsFile
	if err := readYAML("data/stopwords.yaml", &sf); err != nil {
		return nil, fmt.Errorf("dictionaries: stopwords.yaml: %w", err)
	}
	b.StopWords[LangRU] = toSet(sf.RU)
	b.StopWords[LangUK] = toSet(sf.UK)
	b.StopWords[LangEN] = toSet(sf.EN)
	b.StopPhrases = sf.Phrases

	var lf legalFormsFile
	if err := readYAML("data/legal_forms.yaml", &lf); err != nil {
		return nil, fmt.Errorf("dictionaries: legal_forms.yaml: %w", err)
	}
	b.LegalForms[LangUK] = toSet(lf.OrgLegalForms.UK)
	b.LegalForms[LangRU] = toSet(lf.OrgLegalForms.RU)
	b.LegalForms[LangEN] = toSet(lf.OrgLegalForms.EN)
	b.IEMarkers = toSet(lf.IndividualEntrepreneurMarkers)
	b.allLegalFormsSet = make(map[string]bool)
	for _, set := range b.LegalForms {
		for w := range set {
			b.allLegalFormsSet[w] = true
		}
	}

	var df map[string]map[string]string
	if err := readYAML("data/diminutives.yaml", &df); err != nil {
		return nil, fmt.Errorf("dictionaries: diminutives.yaml: %w", err)
	}
	for lang, table := range df {
		b.Diminutives[Lang(lang)] = table
	}

	var pf phoneticFile
	if err := readYAML("data/phonetic.yaml", &pf); err != nil {
		return nil, fmt.Errorf("dictionaries: phonetic.yaml: %w", err)
	}
	b.PhoneticAlternations = pf.Alternations
	b.CyrillicToLatinConfusables = pf.CyrillicToLatinConfusables
	b.LatinDigitConfusables = pf.LatinDigitConfusables

	return b, nil
}

// MustLoad is a convenience wrapper for call sites (e.g. wiring code in
// cmd/screenctl) that treat a malformed embedded asset as fatal.
func MustLoad() *Bundle {
	b, err := Load()
	if err != nil {
		panic(err)
	}
	return b
}

func readYAML(path string, v any) error {
	data, err := dataFS.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, v)
}

func toNameLists(block namesLangBlock) NameLists {
	return NameLists{
		Given:      toSet(block.Given),
		Surname:    toSet(block.Surname),
		Patronymic: toSet(block.Patronymic),
	}
}

func toSet(words []string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[strings.ToLower(w)] = true
	}
	return m
}

// IsGiven reports whether word is a known given name in lang.
func (b *Bundle) IsGiven(lang Lang, word string) bool {
	nl, ok := b.Names[lang]
	return ok && nl.Given[strings.ToLower(word)]
}

// IsSurname reports whether word is a known surname in lang.
func (b *Bundle) IsSurname(lang Lang, word string) bool {
	nl, ok := b.Names[lang]
	return ok && nl.Surname[strings.ToLower(word)]
}

// IsPatronymic reports whether word is a known patronymic in lang.
func (b *Bundle) IsPatronymic(lang Lang, word string) bool {
	nl, ok := b.Names[lang]
	return ok && nl.Patronymic[strings.ToLower(word)]
}

// IsStopWord reports whether word is a stop word in the union of all
// languages' stop-word sets (per spec.md §4.E: "union of ru+uk stop
// words").
func (b *Bundle) IsStopWord(word string) bool {
	b.unionStopWordsO.Do(func() {
		b.unionStopWords = make(map[string]bool)
		for _, set := range b.StopWords {
			for w := range set {
				b.unionStopWords[w] = true
			}
		}
	})
	return b.unionStopWords[strings.ToLower(word)]
}

// IsLegalForm reports whether word is a known org legal-form marker in any
// language (e.g. "тов", "ооо", "llc").
func (b *Bundle) IsLegalForm(word string) bool {
	if b.allLegalFormsSet == nil {
		b.allLegalFormsSet = make(map[string]bool)
		for _, set := range b.LegalForms {
			for w := range set {
				b.allLegalFormsSet[w] = true
			}
		}
	}
	return b.allLegalFormsSet[strings.ToLower(word)]
}

// IsIEMarker reports whether word marks individual-entrepreneur status
// (ФОП/ИП/FOP/IE).
func (b *Bundle) IsIEMarker(word string) bool {
	return b.IEMarkers[strings.ToLower(word)]
}

// CanonicalGivenName resolves a diminutive to its canonical given name in
// lang. Returns the input unchanged (and false) if it is not a known
// diminutive.
func (b *Bundle) CanonicalGivenName(lang Lang, word string) (string, bool) {
	table, ok := b.Diminutives[lang]
	if !ok {
		return word, false
	}
	canon, ok := table[strings.ToLower(word)]
	if !ok {
		return word, false
	}
	return canon, true
}
