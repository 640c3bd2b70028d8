package langdetect

import (
	"testing"

	"github.com/dariapavlova/sanctions-screen/internal/dictionaries"
)

func newTestDetector(t *testing.T) *Detector {
	t.Helper()
	dict, err := dictionaries.Load()
	if err != nil {
		t.Fatalf("dictionaries.Load: %v", err)
	}
	return New(dict, nil)
}

func TestDetect_DictionaryProbe_Ukrainian(t *testing.T) {
	d := newTestDetector(t)
	res := d.Detect("Шевченко Тарас Григорович")
	if res.Language != LangUK {
		t.Errorf("expected uk, got %s (method=%s)", res.Language, res.Method)
	}
}

func TestDetect_UkrainianSpecificCharNeverClassifiedRussian(t *testing.T) {
	d := newTestDetector(t)
	// "їжак" contains ї, a Ukrainian-only letter, alongside otherwise
	// ambiguous Cyrillic text.
	res := d.Detect("їжак на дорозі")
	if res.Language == LangRU {
		t.Fatalf("a Ukrainian-specific character must never classify as ru, got %s", res.Language)
	}
	if res.Language != LangUK {
		t.Errorf("expected uk, got %s", res.Language)
	}
}

func TestDetect_RussianOnlyChar(t *testing.T) {
	d := newTestDetector(t)
	res := d.Detect("съешь ещё этих мягких французских булок")
	if res.Language != LangRU {
		t.Errorf("expected ru for text containing ъ/э, got %s (method=%s)", res.Language, res.Method)
	}
}

func TestDetect_EnglishFallback(t *testing.T) {
	d := newTestDetector(t)
	res := d.Detect("the quick brown fox jumps over the lazy dog")
	if res.Language != LangEN {
		t.Errorf("expected en, got %s", res.Language)
	}
}

func TestDetect_EmptyTextFallsBackGracefully(t *testing.T) {
	d := newTestDetector(t)
	res := d.Detect("")
	if res.Method != MethodFallback {
		t.Errorf("expected fallback method for empty input, got %s", res.Method)
	}
	if res.Confidence != 0.5 {
		t.Errorf("expected fallback confidence 0.5, got %v", res.Confidence)
	}
}

func TestDetect_ConfidenceFloorsHold(t *testing.T) {
	d := newTestDetector(t)
	res := d.Detect("Шевченко")
	if res.Confidence < 0.85 {
		t.Errorf("expected a high-confidence result for a known surname, got %v", res.Confidence)
	}
}

type stubExternal struct {
	label string
	ok    bool
}

func (s stubExternal) Detect(string) (string, bool) { return s.label, s.ok }

func TestDetect_ExternalDetectorMapsLabel(t *testing.T) {
	dict, err := dictionaries.Load()
	if err != nil {
		t.Fatalf("dictionaries.Load: %v", err)
	}
	d := New(dict, stubExternal{label: "be", ok: true})
	// Use gibberish with no dictionary/cyrillic/pattern signal so the
	// external step actually gets to fire.
	res := d.Detect("xqzvbk")
	if res.Method != MethodExternal {
		t.Fatalf("expected external detector to fire, got method=%s lang=%s", res.Method, res.Language)
	}
	if res.Language != LangRU {
		t.Errorf("expected be to map to ru, got %s", res.Language)
	}
}

func TestDetect_ExternalDetectorDeclinesFallsBackFurther(t *testing.T) {
	dict, err := dictionaries.Load()
	if err != nil {
		t.Fatalf("dictionaries.Load: %v", err)
	}
	d := New(dict, stubExternal{ok: false})
	res := d.Detect("xqzvbk")
	if res.Method != MethodFallback {
		t.Errorf("expected fallback when external detector declines, got %s", res.Method)
	}
}
