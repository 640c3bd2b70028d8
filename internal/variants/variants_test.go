package variants

import (
	"strings"
	"testing"
	"time"

	"github.com/dariapavlova/sanctions-screen/internal/dictionaries"
)

func newTestGenerator(t *testing.T) *Generator {
	t.Helper()
	dict, err := dictionaries.Load()
	if err != nil {
		t.Fatalf("dictionaries.Load: %v", err)
	}
	return New(dict)
}

func TestGenerate_ProducesVariantsUnderCap(t *testing.T) {
	g := newTestGenerator(t)
	vs := g.Generate([]string{"Шевченко", "Тарас"}, Options{MaxVariants: 20})
	if len(vs) == 0 {
		t.Fatal("expected at least one variant")
	}
	if len(vs) > 20 {
		t.Errorf("expected at most 20 variants, got %d", len(vs))
	}
}

func TestGenerate_NoDuplicateText(t *testing.T) {
	g := newTestGenerator(t)
	vs := g.Generate([]string{"Шевченко"}, Options{MaxVariants: 50})
	seen := map[string]bool{}
	for _, v := range vs {
		key := strings.ToLower(v.Text)
		if seen[key] {
			t.Errorf("duplicate variant text: %q", v.Text)
		}
		seen[key] = true
	}
}

func TestGenerate_ExcludesOriginalTokens(t *testing.T) {
	g := newTestGenerator(t)
	vs := g.Generate([]string{"Шевченко"}, Options{MaxVariants: 50})
	for _, v := range vs {
		if strings.EqualFold(v.Text, "Шевченко") {
			t.Error("did not expect the original token among generated variants")
		}
	}
}

func TestGenerate_TransliterationProducesLatinForm(t *testing.T) {
	g := newTestGenerator(t)
	vs := g.Generate([]string{"Шевченко"}, Options{MaxVariants: 50})
	found := false
	for _, v := range vs {
		if v.Category == CategoryTransliteration {
			found = true
		}
	}
	if !found {
		t.Error("expected at least one transliteration variant")
	}
}

func TestGenerate_WordOrderSwapForTwoCapitalizedTokens(t *testing.T) {
	g := newTestGenerator(t)
	vs := g.Generate([]string{"Шевченко", "Тарас"}, Options{MaxVariants: 50})
	found := false
	for _, v := range vs {
		if v.Category == CategoryWordOrder && v.Text == "Тарас Шевченко" {
			found = true
		}
	}
	if !found {
		t.Error("expected a given<->surname swap word-order variant")
	}
}

func TestGenerate_WordOrderSkippedForLowercaseTokens(t *testing.T) {
	out := wordOrderVariants([]string{"shevchenko", "taras"}, mustLoadDict(t))
	if out != nil {
		t.Error("expected no word-order variants for non-capitalized tokens")
	}
}

func TestGenerate_TimeBudgetRespected(t *testing.T) {
	dict := mustLoadDict(t)
	g := New(dict)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	calls := 0
	g.now = func() time.Time {
		calls++
		if calls > 2 {
			return start.Add(time.Second) // far past any deadline
		}
		return start
	}
	vs := g.Generate([]string{"Шевченко", "Тарас", "Петренко"}, Options{MaxTimeMs: 10})
	_ = vs // should not panic or hang regardless of how many tokens got processed
}

func TestGenerate_TypoVariantsRespectMaxTypos(t *testing.T) {
	out := typoVariants("Петренко", 2)
	count := 0
	for _, v := range out {
		if v.Category == CategoryTypo {
			count++
		}
	}
	if count == 0 {
		t.Error("expected at least one typo variant")
	}
	if count > 2 {
		t.Errorf("expected at most 2 typo variants (maxTypos), got %d", count)
	}
}

func mustLoadDict(t *testing.T) *dictionaries.Bundle {
	t.Helper()
	dict, err := dictionaries.Load()
	if err != nil {
		t.Fatalf("dictionaries.Load: %v", err)
	}
	return dict
}
