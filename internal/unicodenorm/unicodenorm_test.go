package unicodenorm

import "testing"

func TestNormalize_AlreadyNormalizedIsUnchanged(t *testing.T) {
	res := Normalize("Иван Петров", Options{})
	if res.Changed {
		t.Error("expected no changes for already-NFC text")
	}
	if res.NormalizedText != "Иван Петров" {
		t.Errorf("unexpected text: %q", res.NormalizedText)
	}
}

func TestNormalize_ComposesDecomposedForm(t *testing.T) {
	decomposed := "école" // e + combining acute accent
	res := Normalize(decomposed, Options{})
	want := "école" // precomposed é + cole
	if res.NormalizedText != want {
		t.Errorf("expected composed form %q, got %q", want, res.NormalizedText)
	}
	if !res.Changed {
		t.Error("expected Changed to be true after composition")
	}
	if len(res.Changes) == 0 {
		t.Error("expected a diagnostic change record")
	}
}

func TestNormalize_NeverMapsCyrillicToLatin(t *testing.T) {
	res := Normalize("Петренко", Options{})
	if res.NormalizedText != "Петренко" {
		t.Errorf("expected Cyrillic text untouched, got %q", res.NormalizedText)
	}
}

func TestNormalize_StripsControlAndZeroWidthWhenRequested(t *testing.T) {
	res := Normalize("a\x00b​c", Options{StripControlAndZeroWidth: true})
	if res.NormalizedText != "abc" {
		t.Errorf("expected control and zero-width chars stripped, got %q", res.NormalizedText)
	}
	if !res.Changed {
		t.Error("expected Changed to be true")
	}
}

func TestNormalize_PreservesNewlineTabWhenStripping(t *testing.T) {
	res := Normalize("a\tb\nc", Options{StripControlAndZeroWidth: true})
	if res.NormalizedText != "a\tb\nc" {
		t.Errorf("expected newline/tab preserved, got %q", res.NormalizedText)
	}
}

func TestNormalize_NoStrippingByDefault(t *testing.T) {
	res := Normalize("a\x00b", Options{})
	if res.NormalizedText != "a\x00b" {
		t.Errorf("expected control char preserved when stripping disabled, got %q", res.NormalizedText)
	}
}
