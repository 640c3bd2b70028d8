// Package signals extracts structured entities (persons, organizations,
// documents, dates, financial amounts, locations) from the original
// sanitized text (spec.md §4.K). Its output feeds both the screening
// cascade and the final audit trail.
package signals

import (
	"strconv"
	"strings"

	"github.com/dlclark/regexp2"
	"github.com/shopspring/decimal"

	"github.com/dariapavlova/sanctions-screen/internal/dictionaries"
)

// PersonSignal is a detected person-name mention.
type PersonSignal struct {
	Text  string
	Start int
}

// OrgSignal is a detected organization mention (legal form + adjacent
// core tokens).
type OrgSignal struct {
	Text      string
	LegalForm string
	Start     int
}

// DocumentSignal is a detected document-number-shaped token.
type DocumentSignal struct {
	Text string
	Kind string // "edrpou", "tax_id", "iban", "passport"
}

// DateSignal is a detected calendar date.
type DateSignal struct {
	Text string
	Year, Month, Day int
}

// AmountSignal is a detected financial amount, parsed to an exact
// decimal.Decimal to avoid float rounding on money.
type AmountSignal struct {
	Text     string
	Amount   decimal.Decimal
	Currency string
}

// LocationSignal is a gazetteer hit.
type LocationSignal struct {
	Text    string
	Country string
}

// Result is the full bundle of signals extracted from one text.
type Result struct {
	Persons   []PersonSignal
	Orgs      []OrgSignal
	Documents []DocumentSignal
	Dates     []DateSignal
	Amounts   []AmountSignal
	Locations []LocationSignal
}

var documentPatterns = []struct {
	kind string
	re   *regexp2.Regexp
}{
	{"edrpou", regexp2.MustCompile(`\b\d{8}\b`, regexp2.None)},
	{"tax_id", regexp2.MustCompile(`\b\d{10}\b`, regexp2.None)},
	{"iban", regexp2.MustCompile(`(?i)\b[A-Z]{2}\d{2}[A-Z0-9]{10,30}\b`, regexp2.None)},
	{"passport", regexp2.MustCompile(`(?i)\b[A-Z]{2}\d{6}\b`, regexp2.None)},
}

var (
	datePattern = regexp2.MustCompile(`\b(\d{1,2})[./-](\d{1,2})[./-](\d{4})\b`, regexp2.None)
	// amountPattern captures a decimal number immediately followed by a
	// currency code/symbol, e.g. "1 250.50 USD", "500грн", "€99.99".
	amountPattern = regexp2.MustCompile(`(?i)([€$₴]|\b)(\d[\d\s,]*(?:\.\d+)?)\s*(usd|eur|uah|грн|usd\$|\$|€|₴)\b`, regexp2.None)
)

// gazetteer is a small, fixed country/city -> country-code table. Not
// sourced from internal/dictionaries' YAML assets since it is a short,
// closed, non-linguistic reference list rather than name/stopword data.
var gazetteer = map[string]string{
	"україна": "UA", "ukraine": "UA", "київ": "UA", "kyiv": "UA", "kiev": "UA",
	"росія": "RU", "russia": "RU", "москва": "RU", "moscow": "RU",
	"польща": "PL", "poland": "PL", "варшава": "PL", "warsaw": "PL",
	// Genitive city forms, as in "з Києва", "до Варшави".
	"києва": "UA", "москви": "RU", "варшави": "PL",
}

// Extractor detects structured signals from text, optionally informed
// by dictionary person/org-name data for higher-precision person/org
// detection.
type Extractor struct {
	dict *dictionaries.Bundle
}

// New constructs an Extractor.
func New(dict *dictionaries.Bundle) *Extractor {
	return &Extractor{dict: dict}
}

// Extract runs every detector over text and returns the combined
// result.
func (e *Extractor) Extract(text string) Result {
	return Result{
		Persons:   e.detectPersons(text),
		Orgs:      e.detectOrgs(text),
		Documents: detectDocuments(text),
		Dates:     detectDates(text),
		Amounts:   detectAmounts(text),
		Locations: detectLocations(text),
	}
}

// detectPersons finds dictionary-hit tokens and adjacent capitalized
// bigrams, per spec.md §4.K ("persons (from dictionary hits +
// capitalized bigrams)").
func (e *Extractor) detectPersons(text string) []PersonSignal {
	var out []PersonSignal
	words, offsets := tokenizeWithOffsets(text)

	for i, w := range words {
		isNameWord := isCapitalized(w) && (e.dict != nil && (e.dict.IsGiven(dictionaries.LangUK, w) ||
			e.dict.IsGiven(dictionaries.LangRU, w) || e.dict.IsSurname(dictionaries.LangUK, w) ||
			e.dict.IsSurname(dictionaries.LangRU, w)))
		if !isNameWord {
			continue
		}
		phrase := w
		if i+1 < len(words) && isCapitalized(words[i+1]) {
			phrase = w + " " + words[i+1]
		}
		out = append(out, PersonSignal{Text: phrase, Start: offsets[i]})
	}
	return out
}

// detectOrgs finds a legal-form token plus its adjacent capitalized
// core token(s), per spec.md §4.K ("organizations (legal form +
// adjacent tokens)").
func (e *Extractor) detectOrgs(text string) []OrgSignal {
	if e.dict == nil {
		return nil
	}
	var out []OrgSignal
	words, offsets := tokenizeWithOffsets(text)

	for i, w := range words {
		if !e.dict.IsLegalForm(w) {
			continue
		}
		var core []string
		for j := i + 1; j < len(words) && j < i+4 && isCapitalized(words[j]); j++ {
			core = append(core, words[j])
		}
		if len(core) == 0 && i > 0 && isCapitalized(words[i-1]) {
			core = append(core, words[i-1])
		}
		if len(core) == 0 {
			continue
		}
		out = append(out, OrgSignal{
			Text:      w + " " + strings.Join(core, " "),
			LegalForm: w,
			Start:     offsets[i],
		})
	}
	return out
}

func detectDocuments(text string) []DocumentSignal {
	var out []DocumentSignal
	for _, p := range documentPatterns {
		m, _ := p.re.FindStringMatch(text)
		for m != nil {
			out = append(out, DocumentSignal{Text: m.String(), Kind: p.kind})
			m, _ = p.re.FindNextMatch(m)
		}
	}
	return out
}

func detectDates(text string) []DateSignal {
	var out []DateSignal
	m, _ := datePattern.FindStringMatch(text)
	for m != nil {
		groups := m.Groups()
		if len(groups) >= 4 {
			d, _ := strconv.Atoi(groups[1].String())
			mo, _ := strconv.Atoi(groups[2].String())
			y, _ := strconv.Atoi(groups[3].String())
			out = append(out, DateSignal{Text: m.String(), Year: y, Month: mo, Day: d})
		}
		m, _ = datePattern.FindNextMatch(m)
	}
	return out
}

func detectAmounts(text string) []AmountSignal {
	var out []AmountSignal
	m, _ := amountPattern.FindStringMatch(text)
	for m != nil {
		groups := m.Groups()
		if len(groups) < 4 {
			m, _ = amountPattern.FindNextMatch(m)
			continue
		}
		numeric := strings.ReplaceAll(strings.TrimSpace(groups[2].String()), " ", "")
		numeric = strings.ReplaceAll(numeric, ",", "")
		amt, err := decimal.NewFromString(numeric)
		if err == nil {
			currency := strings.ToUpper(groups[3].String())
			if currency == "ГРН" {
				currency = "UAH"
			}
			out = append(out, AmountSignal{Text: m.String(), Amount: amt, Currency: currency})
		}
		m, _ = amountPattern.FindNextMatch(m)
	}
	return out
}

func detectLocations(text string) []LocationSignal {
	var out []LocationSignal
	words, _ := tokenizeWithOffsets(text)
	for _, w := range words {
		if code, ok := gazetteer[strings.ToLower(w)]; ok {
			out = append(out, LocationSignal{Text: w, Country: code})
		}
	}
	return out
}

func isCapitalized(w string) bool {
	r := []rune(w)
	if len(r) == 0 {
		return false
	}
	return strings.ToUpper(string(r[0])) == string(r[0]) && strings.ToLower(string(r[0])) != string(r[0])
}

func tokenizeWithOffsets(text string) (words []string, offsets []int) {
	start := -1
	for i, r := range text {
		if r == ' ' || r == '\t' || r == '\n' || r == ',' || r == '.' {
			if start >= 0 {
				words = append(words, text[start:i])
				offsets = append(offsets, start)
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		words = append(words, text[start:])
		offsets = append(offsets, start)
	}
	return words, offsets
}
