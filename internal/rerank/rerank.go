// Package rerank implements the feature-ensemble reranker (spec.md
// §4.J): it takes the union of candidates produced by the earlier
// screening tiers, scores each with a weighted feature vector, and
// calibrates the weighted sum to [0,1] with a Platt-style sigmoid.
package rerank

import (
	"math"
	"sort"

	"github.com/xrash/smetrics"

	"github.com/dariapavlova/sanctions-screen/internal/reason"
)

// Feature weights, per spec.md §4.J.
const (
	weightCosine      = 0.35
	weightJaroWinkler = 0.25
	weightRuleBundle  = 0.40
)

// jaroWinklerBoostThreshold/PrefixSize mirror smetrics.JaroWinkler's
// conventional defaults (Winkler's own paper: boost above 0.7, 4-char
// common-prefix bonus).
const (
	jaroWinklerBoostThreshold = 0.7
	jaroWinklerPrefixSize     = 4
)

// RuleInputs are the discrete rule-bundle checks spec.md §4.J lists
// (each contributes to the rule-bundle score if true).
type RuleInputs struct {
	ExactSurnameMatch      bool
	InitialSurnameMatch    bool
	DOBMatch               bool
	CountryMatch           bool
	EDRPOUOrTaxIDMatch     bool
	UkrainianSurnameSuffix bool
}

// ruleWeight is each rule's share of the 0.40 rule-bundle weight,
// evenly split across the six named rules.
const ruleWeight = weightRuleBundle / 6

// Candidate is one entity under consideration, carrying the raw
// feature inputs the reranker needs (spec.md §3 ScreeningCandidate,
// extended with the per-pair inputs §4.J requires).
type Candidate struct {
	EntityID    string
	Name        string
	InputName   string
	Cosine      float64 // fasttext_subword_cos, or fallback cosine from kNN
	Rules       RuleInputs
	TierScores  map[string]float64
	ReasonCodes []reason.Code
}

// Scored is a Candidate after reranking: FinalScore is the calibrated
// [0,1] score, and ReasonCodes has the winning rules' codes appended.
type Scored struct {
	Candidate
	RawScore   float64
	FinalScore float64
}

// Rerank scores, calibrates, sorts descending by FinalScore, and
// deduplicates by entity_id (keeping the max per-tier score for each
// duplicate, per spec.md's open-question resolution in DESIGN.md).
func Rerank(candidates []Candidate) []Scored {
	deduped := dedupeByEntityID(candidates)

	scored := make([]Scored, 0, len(deduped))
	for _, c := range deduped {
		raw := score(c)
		scored = append(scored, Scored{
			Candidate:  c,
			RawScore:   raw,
			FinalScore: calibrate(raw),
		})
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].FinalScore > scored[j].FinalScore })
	return scored
}

func score(c Candidate) float64 {
	cosineTerm := weightCosine * clip01(c.Cosine)

	jw := smetrics.JaroWinkler(c.InputName, c.Name, jaroWinklerBoostThreshold, jaroWinklerPrefixSize)
	jwTerm := weightJaroWinkler * clip01(jw)

	ruleTerm := ruleBundleScore(c.Rules)

	return cosineTerm + jwTerm + ruleTerm
}

func ruleBundleScore(r RuleInputs) float64 {
	var total float64
	if r.ExactSurnameMatch {
		total += ruleWeight
	}
	if r.InitialSurnameMatch {
		total += ruleWeight
	}
	if r.DOBMatch {
		total += ruleWeight
	}
	if r.CountryMatch {
		total += ruleWeight
	}
	if r.EDRPOUOrTaxIDMatch {
		total += ruleWeight
	}
	if r.UkrainianSurnameSuffix {
		total += ruleWeight
	}
	return total
}

// WinningReasonCodes returns the reason codes attached to the rules
// that actually fired for r, per spec.md §4.J ("Reason codes from the
// winning rules are attached to the candidate").
func WinningReasonCodes(r RuleInputs) []reason.Code {
	var codes []reason.Code
	if r.ExactSurnameMatch {
		codes = append(codes, reason.Exact)
	}
	if r.InitialSurnameMatch {
		codes = append(codes, reason.Initials)
	}
	if r.DOBMatch {
		codes = append(codes, reason.MetadataDOB)
	}
	if r.EDRPOUOrTaxIDMatch {
		codes = append(codes, reason.MetadataEDRPOU, reason.MetadataTaxID)
	}
	if r.UkrainianSurnameSuffix {
		codes = append(codes, reason.Phonetic)
	}
	return codes
}

// calibrate applies a Platt-style logistic calibration to map a raw
// weighted-sum score (already in [0,1] by construction, but calibrated
// to correct for the ensemble's miscalibration) into a probability-like
// [0,1] confidence. sigmoid(4.0*raw - 2.0) centers raw=0.5 at 0.5 and
// saturates toward the extremes.
func calibrate(raw float64) float64 {
	return sigmoid(4.0*raw - 2.0)
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// dedupeByEntityID collapses candidates sharing an entity_id, keeping
// the maximum value for each named tier score (spec.md §7's
// resolution for candidates arriving from more than one tier) and the
// union of reason codes.
func dedupeByEntityID(candidates []Candidate) []Candidate {
	byID := make(map[string]*Candidate, len(candidates))
	var order []string

	for _, c := range candidates {
		existing, ok := byID[c.EntityID]
		if !ok {
			cp := c
			if cp.TierScores == nil {
				cp.TierScores = map[string]float64{}
			}
			byID[c.EntityID] = &cp
			order = append(order, c.EntityID)
			continue
		}
		mergeTierScores(existing, c)
		mergeReasonCodes(existing, c)
		if c.Cosine > existing.Cosine {
			existing.Cosine = c.Cosine
		}
		existing.Rules = mergeRules(existing.Rules, c.Rules)
	}

	out := make([]Candidate, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out
}

func mergeTierScores(dst *Candidate, src Candidate) {
	for tier, score := range src.TierScores {
		if existing, ok := dst.TierScores[tier]; !ok || score > existing {
			dst.TierScores[tier] = score
		}
	}
}

func mergeReasonCodes(dst *Candidate, src Candidate) {
	seen := map[reason.Code]bool{}
	for _, c := range dst.ReasonCodes {
		seen[c] = true
	}
	for _, c := range src.ReasonCodes {
		if !seen[c] {
			dst.ReasonCodes = append(dst.ReasonCodes, c)
			seen[c] = true
		}
	}
}

func mergeRules(a, b RuleInputs) RuleInputs {
	return RuleInputs{
		ExactSurnameMatch:      a.ExactSurnameMatch || b.ExactSurnameMatch,
		InitialSurnameMatch:    a.InitialSurnameMatch || b.InitialSurnameMatch,
		DOBMatch:               a.DOBMatch || b.DOBMatch,
		CountryMatch:           a.CountryMatch || b.CountryMatch,
		EDRPOUOrTaxIDMatch:     a.EDRPOUOrTaxIDMatch || b.EDRPOUOrTaxIDMatch,
		UkrainianSurnameSuffix: a.UkrainianSurnameSuffix || b.UkrainianSurnameSuffix,
	}
}
