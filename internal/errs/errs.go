// Package errs defines the engine's error taxonomy (spec §7).
//
// Go has no exception hierarchy to model; per the rearchitecture guidance,
// every recoverable condition in the pipeline is represented by a single
// Error sum type discriminated by Kind, carrying structured context. The
// orchestrator's recovery-strategy table (see internal/orchestrator) is
// keyed by Kind, not by Go type, so callers compare via Is/As against a
// sentinel Kind rather than type-switching.
package errs

import (
	"errors"
	"fmt"
)

// Kind discriminates the error taxonomy from spec §7.
type Kind string

// Error kinds, matching spec §7 exactly.
const (
	KindValidation        Kind = "ValidationFailure"
	KindLanguageDetection Kind = "LanguageDetectionFailure"
	KindNormalization     Kind = "NormalizationFailure"
	KindVariant           Kind = "VariantFailure"
	KindEmbedding         Kind = "EmbeddingFailure"
	KindTimeout           Kind = "Timeout"
	KindWatchlistDown     Kind = "WatchlistUnavailable"
	KindSystem            Kind = "SystemError"
)

// Severity mirrors the orchestrator's error-rule table (spec §4.L).
type Severity string

// Severity levels, low to critical.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Error is the engine's single error type. Stage-boundary code wraps any
// failure in one of these before handing it to the orchestrator's recovery
// logic.
type Error struct {
	Kind        Kind
	Severity    Severity
	Stage       string // name of the stage that raised the error, if any
	Message     string
	Recoverable bool
	Cause       error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s[%s]: %s: %v", e.Kind, e.Stage, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s[%s]: %s", e.Kind, e.Stage, e.Message)
}

// Unwrap exposes the wrapped cause to errors.Is / errors.As.
func (e *Error) Unwrap() error { return e.Cause }

// New constructs an Error of the given kind with a default severity derived
// from the kind's entry in the recovery table (see defaultSeverity).
func New(kind Kind, stage, message string, cause error) *Error {
	return &Error{
		Kind:        kind,
		Severity:    defaultSeverity[kind],
		Stage:       stage,
		Message:     message,
		Recoverable: defaultRecoverable[kind],
		Cause:       cause,
	}
}

var defaultSeverity = map[Kind]Severity{
	KindValidation:        SeverityHigh,
	KindLanguageDetection: SeverityMedium,
	KindNormalization:     SeverityMedium,
	KindVariant:           SeverityLow,
	KindEmbedding:         SeverityLow,
	KindTimeout:           SeverityMedium,
	KindWatchlistDown:     SeverityMedium,
	KindSystem:            SeverityCritical,
}

var defaultRecoverable = map[Kind]bool{
	KindValidation:        false,
	KindLanguageDetection: true,
	KindNormalization:     true,
	KindVariant:           true,
	KindEmbedding:         true,
	KindTimeout:           true,
	KindWatchlistDown:     true,
	KindSystem:            false,
}

// Is reports whether err is an *Error of the given kind. Supports
// errors.Is-style chained wrapping.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// As extracts the *Error from err, if any, following wrapped chains.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
