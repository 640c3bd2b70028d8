package blocking

import (
	"testing"

	"github.com/dariapavlova/sanctions-screen/internal/dictionaries"
	"github.com/dariapavlova/sanctions-screen/internal/morphology"
)

func mustDict(t *testing.T) *dictionaries.Bundle {
	t.Helper()
	dict, err := dictionaries.Load()
	if err != nil {
		t.Fatalf("dictionaries.Load: %v", err)
	}
	return dict
}

func personResult(tokens ...morphology.Token) morphology.Result {
	return morphology.Result{Tokens: tokens, IsPerson: true}
}

func TestCompute_SurnameNormalizedStripsDiacritics(t *testing.T) {
	c := New(mustDict(t))
	morph := personResult(
		// Stress-marked form: U+0301 COMBINING ACUTE ACCENT after the second "е".
		morphology.Token{Surface: "Шевче́нко", Role: morphology.RoleSurname, Lemma: "Шевче́нко"},
	)
	keys := c.Compute(morph, Metadata{})
	if keys.SurnameNormalized != "шевченко" {
		t.Errorf("expected lowercased surname with the combining accent stripped, got %q", keys.SurnameNormalized)
	}
}

func TestCompute_FirstInitialSurnameCombinesGivenInitialAndSurname(t *testing.T) {
	c := New(mustDict(t))
	morph := personResult(
		morphology.Token{Surface: "Тарас", Role: morphology.RoleGiven, Lemma: "Тарас"},
		morphology.Token{Surface: "Шевченко", Role: morphology.RoleSurname, Lemma: "Шевченко"},
	)
	keys := c.Compute(morph, Metadata{})
	want := "т_шевченко"
	if keys.FirstInitialSurname != want {
		t.Errorf("expected %q, got %q", want, keys.FirstInitialSurname)
	}
}

func TestCompute_BirthDecadeSurnameDerivedFromBirthYear(t *testing.T) {
	c := New(mustDict(t))
	morph := personResult(
		morphology.Token{Surface: "Шевченко", Role: morphology.RoleSurname, Lemma: "Шевченко"},
	)
	keys := c.Compute(morph, Metadata{BirthYear: 1987})
	if keys.BirthDecadeSurname != "1980_шевченко" {
		t.Errorf("unexpected birth decade key: %q", keys.BirthDecadeSurname)
	}
	if keys.BirthYear != 1987 {
		t.Errorf("expected birth year preserved, got %d", keys.BirthYear)
	}
}

func TestCompute_EDRPOUAndTaxIDPassThrough(t *testing.T) {
	c := New(mustDict(t))
	keys := c.Compute(morphology.Result{}, Metadata{EDRPOU: "12345678", TaxID: "1234567890"})
	if keys.EDRPOU != "12345678" || keys.TaxID != "1234567890" {
		t.Errorf("expected EDRPOU/TaxID to pass through unchanged, got %+v", keys)
	}
}

func TestCandidates_OnlyNonEmptyKeysProduceCandidates(t *testing.T) {
	keys := Keys{SurnameNormalized: "шевченко", EDRPOU: "12345678"}
	cands := Candidates(keys)
	if len(cands) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(cands))
	}
	for _, c := range cands {
		if c.Confidence < 0.58 || c.Confidence > 0.85 {
			t.Errorf("confidence %f out of spec range [0.58, 0.85]", c.Confidence)
		}
	}
}

func TestCandidates_EDRPOUHasHighestConfidence(t *testing.T) {
	keys := Keys{EDRPOU: "12345678", BirthDecadeSurname: "1980_x"}
	cands := Candidates(keys)
	var edrpouConf, decadeConf float64
	for _, c := range cands {
		if c.KeyType == "edrpou" {
			edrpouConf = c.Confidence
		}
		if c.KeyType == "birth_decade_surname" {
			decadeConf = c.Confidence
		}
	}
	if edrpouConf <= decadeConf {
		t.Error("expected EDRPOU key confidence to exceed birth-decade key confidence")
	}
}

func TestBirthYearMatches_WithinWindow(t *testing.T) {
	if !BirthYearMatches(1987, 1990) {
		t.Error("expected years within +-5 window to match")
	}
	if BirthYearMatches(1987, 1999) {
		t.Error("expected years outside +-5 window to not match")
	}
}

func TestBirthYearMatches_ZeroNeverMatches(t *testing.T) {
	if BirthYearMatches(0, 1990) {
		t.Error("expected zero year to never match")
	}
}

func TestPhoneticKey_AlternationGroupsCollapse(t *testing.T) {
	c := New(mustDict(t))
	if len(c.dict.PhoneticAlternations) == 0 {
		t.Skip("no phonetic alternation groups loaded")
	}
	group := c.dict.PhoneticAlternations[0]
	if len(group) < 2 {
		t.Skip("first alternation group has no alternates")
	}
	got := c.phoneticKey(group[1])
	if got != group[0] && got != group[1] {
		t.Errorf("expected phonetic key to canonicalize within its alternation group, got %q", got)
	}
}
