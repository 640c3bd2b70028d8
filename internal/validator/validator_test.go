package validator

import (
	"strings"
	"testing"

	"github.com/dariapavlova/sanctions-screen/internal/dictionaries"
	"github.com/dariapavlova/sanctions-screen/internal/reason"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	dict, err := dictionaries.Load()
	if err != nil {
		t.Fatalf("dictionaries.Load: %v", err)
	}
	return New(dict)
}

func TestValidate_PlainTextPassesThrough(t *testing.T) {
	v := newTestValidator(t)
	res := v.Validate("Иванов Иван Иванович", Options{})
	if !res.IsValid {
		t.Fatal("expected plain text to be valid")
	}
	if res.RiskLevel != RiskLow {
		t.Errorf("expected low risk, got %s", res.RiskLevel)
	}
	if res.SanitizedText != "Иванов Иван Иванович" {
		t.Errorf("unexpected sanitized text: %q", res.SanitizedText)
	}
}

func TestValidate_LengthTruncatedInNonStrictMode(t *testing.T) {
	v := newTestValidator(t)
	long := strings.Repeat("a", 20)
	res := v.Validate(long, Options{MaxInputLen: 10})
	if !res.IsValid {
		t.Fatal("expected non-strict oversized input to remain valid")
	}
	if len([]rune(res.SanitizedText)) != 10 {
		t.Errorf("expected truncation to 10 runes, got %d", len([]rune(res.SanitizedText)))
	}
	if res.RiskLevel != RiskMedium {
		t.Errorf("expected medium risk after truncation, got %s", res.RiskLevel)
	}
}

func TestValidate_LengthRejectedInStrictMode(t *testing.T) {
	v := newTestValidator(t)
	long := strings.Repeat("a", 20)
	res := v.Validate(long, Options{MaxInputLen: 10, StrictMode: true})
	if res.IsValid {
		t.Fatal("expected strict-mode oversized input to be rejected")
	}
}

func TestValidate_SuspiciousPatternNonStrict(t *testing.T) {
	v := newTestValidator(t)
	res := v.Validate("hello <script>alert(1)</script> world", Options{})
	if !res.IsValid {
		t.Fatal("expected non-strict mode to keep request valid")
	}
	if res.RiskLevel != RiskHigh {
		t.Errorf("expected high risk for a blocked pattern, got %s", res.RiskLevel)
	}
	if len(res.BlockedPatterns) == 0 {
		t.Error("expected at least one blocked pattern recorded")
	}
}

func TestValidate_SuspiciousPatternStrict(t *testing.T) {
	v := newTestValidator(t)
	res := v.Validate("javascript:alert(1)", Options{StrictMode: true})
	if res.IsValid {
		t.Fatal("expected strict mode to reject a blocked pattern")
	}
}

func TestValidate_ZeroWidthCharsStrippedAndFlagged(t *testing.T) {
	v := newTestValidator(t)
	res := v.Validate("Іван​Петренко", Options{})
	if strings.Contains(res.SanitizedText, "​") {
		t.Error("expected zero-width space to be stripped")
	}
	if !containsCode(res.ReasonCodes, reason.ZWSP) {
		t.Error("expected RC_ZWSP to be emitted")
	}
}

func TestValidate_ControlCharsStripped(t *testing.T) {
	v := newTestValidator(t)
	res := v.Validate("abc\x00\x01def", Options{})
	if strings.ContainsAny(res.SanitizedText, "\x00\x01") {
		t.Error("expected control characters to be stripped")
	}
}

func TestValidate_NewlineTabPreservedThroughStrip(t *testing.T) {
	v := newTestValidator(t)
	// Collapse-whitespace still folds these to spaces at the end, but the
	// control-strip step itself must not discard them outright.
	res := v.Validate("a\tb\nc", Options{})
	if res.SanitizedText != "a b c" {
		t.Errorf("unexpected sanitized text: %q", res.SanitizedText)
	}
}

func TestValidate_PureLatinAppliesDigitConfusables(t *testing.T) {
	v := newTestValidator(t)
	res := v.Validate("J0hn Wi1son", Options{})
	if res.SanitizedText != "John Wilson" {
		t.Errorf("expected digit confusables replaced in pure-Latin text, got %q", res.SanitizedText)
	}
}

func TestValidate_MixedScriptAppliesHighRiskConfusablesAndFlags(t *testing.T) {
	v := newTestValidator(t)
	res := v.Validate("Ivan Петренко", Options{})
	if !containsCode(res.ReasonCodes, reason.MixedScript) {
		t.Error("expected RC_MIXED_SCRIPT for mixed Latin+Cyrillic input")
	}
	if !containsCode(res.ReasonCodes, reason.Homoglyph) {
		t.Error("expected RC_HOMOGLYPH when mixed-script confusables are replaced")
	}
}

func TestValidate_PureCyrillicLeftAlone(t *testing.T) {
	v := newTestValidator(t)
	res := v.Validate("Петренко Олена Андріївна", Options{})
	if res.SanitizedText != "Петренко Олена Андріївна" {
		t.Errorf("expected pure Cyrillic text untouched, got %q", res.SanitizedText)
	}
	if containsCode(res.ReasonCodes, reason.MixedScript) {
		t.Error("did not expect RC_MIXED_SCRIPT for pure Cyrillic input")
	}
}

func TestValidate_WhitespaceCollapsedAndTrimmed(t *testing.T) {
	v := newTestValidator(t)
	res := v.Validate("  Иван    Петров  ", Options{})
	if res.SanitizedText != "Иван Петров" {
		t.Errorf("expected collapsed/trimmed text, got %q", res.SanitizedText)
	}
}

func TestValidate_NFCNormalizes(t *testing.T) {
	v := newTestValidator(t)
	// decomposed spells e-acute as 'e' + U+0301 COMBINING ACUTE ACCENT (NFD form).
	decomposed := "école"
	want := "école" // precomposed U+00E9 (é) + "cole"
	res := v.Validate(decomposed, Options{})
	if res.SanitizedText != want {
		t.Errorf("expected NFC-normalized text %q, got %q", want, res.SanitizedText)
	}
}

func containsCode(codes []reason.Code, target reason.Code) bool {
	for _, c := range codes {
		if c == target {
			return true
		}
	}
	return false
}
