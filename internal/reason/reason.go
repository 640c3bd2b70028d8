// Package reason holds the stable reason-code identifiers surfaced on the
// wire in a ScreeningResult's audit trail (spec.md §6). Every component
// that contributes to match evidence or anomaly flags imports this
// package rather than declaring its own string literals, so the wire
// vocabulary stays centralized and typo-proof.
package reason

// Code is a stable reason-code identifier.
type Code string

const (
	// Match-evidence codes, emitted by internal/acpattern, internal/blocking,
	// internal/vectorindex, and internal/rerank.
	Exact     Code = "RC_EXACT"
	Alias     Code = "RC_ALIAS"
	Initials  Code = "RC_INITIALS"
	Typo      Code = "RC_TYPO"
	Phonetic  Code = "RC_PHONETIC"
	Spacing   Code = "RC_SPACING"
	DocNum    Code = "RC_DOCNUM"
	LegalForm Code = "RC_LEGALFORM"

	// Metadata-gating codes, emitted by internal/blocking and internal/orchestrator.
	MetadataDOB    Code = "RC_METADATA_DOB"
	MetadataEDRPOU Code = "RC_METADATA_EDRPOU"
	MetadataTaxID  Code = "RC_METADATA_TAXID"

	// Anomaly codes, emitted by internal/validator.
	MixedScript Code = "RC_MIXED_SCRIPT"
	Homoglyph   Code = "RC_HOMOGLYPH"
	ZWSP        Code = "RC_ZWSP"

	// NoName is emitted by internal/morphology when no name-shaped token
	// survives extraction.
	NoName Code = "RC_NO_NAME"
)

// All lists every known reason code, in the order spec.md §6 enumerates
// them. Useful for wire-schema validation and exhaustiveness tests.
var All = []Code{
	Exact, Alias, Initials, Typo, Phonetic, Spacing, DocNum, LegalForm,
	MetadataDOB, MetadataEDRPOU, MetadataTaxID,
	MixedScript, Homoglyph, ZWSP, NoName,
}

// Valid reports whether c is one of the known reason codes.
func Valid(c Code) bool {
	for _, known := range All {
		if known == c {
			return true
		}
	}
	return false
}
