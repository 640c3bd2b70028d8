package morphology

import (
	"testing"

	"github.com/dariapavlova/sanctions-screen/internal/dictionaries"
	"github.com/dariapavlova/sanctions-screen/internal/langdetect"
	"github.com/dariapavlova/sanctions-screen/internal/reason"
)

func newTestNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	dict, err := dictionaries.Load()
	if err != nil {
		t.Fatalf("dictionaries.Load: %v", err)
	}
	return New(dict)
}

func TestNormalize_FullNameAssemblesSurnameGivenPatronymic(t *testing.T) {
	n := newTestNormalizer(t)
	res := n.Normalize(langdetect.LangUK, "Тарас Григорович Шевченко", Options{})
	if !res.IsPerson {
		t.Fatal("expected a person to be detected")
	}
	if res.CanonicalPhrase != "Шевченко Тарас Григорович" {
		t.Fatalf("expected surname-given-patronymic order, got %q", res.CanonicalPhrase)
	}
	if len(res.ReasonCodes) != 0 {
		t.Errorf("did not expect RC_NO_NAME, got %v", res.ReasonCodes)
	}
}

func TestNormalize_NoNameReturnsReasonCode(t *testing.T) {
	n := newTestNormalizer(t)
	res := n.Normalize(langdetect.LangEN, "xqz vbk qrs", Options{})
	if len(res.ReasonCodes) == 0 || res.ReasonCodes[0] != reason.NoName {
		t.Fatalf("expected RC_NO_NAME for text with no name-shaped tokens, got %v", res.ReasonCodes)
	}
	if res.CanonicalPhrase != "xqz vbk qrs" {
		t.Errorf("expected sanitized text returned unchanged on failure, got %q", res.CanonicalPhrase)
	}
}

func TestNormalize_InitialSurnameFallback(t *testing.T) {
	n := newTestNormalizer(t)
	res := n.Normalize(langdetect.LangUK, "П. Шевченко", Options{})
	if len(res.ReasonCodes) != 0 {
		t.Fatalf("expected fallback extraction to succeed, got reason codes %v", res.ReasonCodes)
	}
	if res.CanonicalPhrase == "" {
		t.Error("expected a non-empty canonical phrase from initial+surname fallback")
	}
}

func TestNormalize_IEMarkerStrippedAndRoutedAsPerson(t *testing.T) {
	n := newTestNormalizer(t)
	res := n.Normalize(langdetect.LangUK, "ФОП Шевченко Тарас", Options{})
	if !res.IEMarkerFound {
		t.Fatal("expected IE marker to be detected")
	}
	if !res.IsPerson || res.IsOrg {
		t.Errorf("expected IE-marked text to route as person, got isPerson=%v isOrg=%v", res.IsPerson, res.IsOrg)
	}
	for _, tok := range res.Tokens {
		if tok.Surface == "ФОП" {
			t.Error("expected the IE marker token to be stripped from the token list")
		}
	}
}

func TestNormalize_SurnameSuffixHeuristic(t *testing.T) {
	n := newTestNormalizer(t)
	res := n.Normalize(langdetect.LangUK, "Ковальченко", Options{})
	found := false
	for _, tok := range res.Tokens {
		if tok.Role == RoleSurname {
			found = true
		}
	}
	if !found {
		t.Error("expected -енко suffix to classify as surname via heuristic")
	}
}

func TestNormalize_PatronymicSuffixHeuristicAndGender(t *testing.T) {
	n := newTestNormalizer(t)
	res := n.Normalize(langdetect.LangRU, "Сергеевич", Options{})
	var analysis NameAnalysis
	found := false
	for surface, a := range res.Analyses {
		if surface == "Сергеевич" {
			analysis = a
			found = true
		}
	}
	if !found {
		t.Fatal("expected patronymic token to be analyzed")
	}
	if analysis.Gender != "m" {
		t.Errorf("expected masculine gender from -евич suffix, got %q", analysis.Gender)
	}
}

func TestNormalize_DiminutiveResolvedToCanonicalGivenName(t *testing.T) {
	n := newTestNormalizer(t)
	res := n.Normalize(langdetect.LangUK, "Ваня Шевченко", Options{})
	a, ok := res.Analyses["Ваня"]
	if !ok {
		t.Fatal("expected diminutive token to be analyzed")
	}
	if a.Diminutive == "" {
		t.Error("expected Diminutive to be recorded")
	}
}

func TestNormalize_StopWordsStrippedOnlyAtBoundaries(t *testing.T) {
	n := newTestNormalizer(t)
	res := n.Normalize(langdetect.LangRU, "оплата Иванов Петров согласно", Options{RemoveStopWords: true})
	for _, tok := range res.Tokens {
		if tok.Surface == "оплата" || tok.Surface == "согласно" {
			t.Errorf("expected boundary stop words stripped, found %q", tok.Surface)
		}
	}
}

func TestNormalize_CompanyAndPersonRoutingPrefersPersonByDefault(t *testing.T) {
	n := newTestNormalizer(t)
	res := n.Normalize(langdetect.LangUK, "ТОВ Іваненко Петро", Options{})
	if !res.IsPerson {
		t.Error("expected person to win when both person and company signals present and PreferCompany is false")
	}
}

func TestTokenize_KeepsApostropheAndHyphenInsideToken(t *testing.T) {
	tokens := tokenize("О'Коннор Петрова-Іваненко")
	if len(tokens) != 2 {
		t.Fatalf("expected 2 tokens, got %d: %v", len(tokens), tokens)
	}
}
