// Package orchestrator implements the staged processing pipeline and
// screening cascade (spec.md §4.L): it wires every other internal
// package into the public engine API (spec.md §6) — process,
// process_batch, screen_entity, search_similar_names,
// get_processing_stats, reload_watchlist, get_watchlist_status,
// clear_cache, reset_stats, health_check.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/dariapavlova/sanctions-screen/internal/acpattern"
	"github.com/dariapavlova/sanctions-screen/internal/blocking"
	"github.com/dariapavlova/sanctions-screen/internal/cache"
	"github.com/dariapavlova/sanctions-screen/internal/config"
	"github.com/dariapavlova/sanctions-screen/internal/dictionaries"
	"github.com/dariapavlova/sanctions-screen/internal/embeddings"
	"github.com/dariapavlova/sanctions-screen/internal/errs"
	"github.com/dariapavlova/sanctions-screen/internal/langdetect"
	"github.com/dariapavlova/sanctions-screen/internal/logger"
	"github.com/dariapavlova/sanctions-screen/internal/management"
	"github.com/dariapavlova/sanctions-screen/internal/metrics"
	"github.com/dariapavlova/sanctions-screen/internal/morphology"
	"github.com/dariapavlova/sanctions-screen/internal/reason"
	"github.com/dariapavlova/sanctions-screen/internal/rerank"
	"github.com/dariapavlova/sanctions-screen/internal/signals"
	"github.com/dariapavlova/sanctions-screen/internal/unicodenorm"
	"github.com/dariapavlova/sanctions-screen/internal/validator"
	"github.com/dariapavlova/sanctions-screen/internal/variants"
	"github.com/dariapavlova/sanctions-screen/internal/vectorindex"
	"github.com/dariapavlova/sanctions-screen/internal/watchlist"
)

// RiskLevel is the final screening verdict, per spec.md §4.L step 4.
type RiskLevel string

// Risk levels, ascending severity.
const (
	RiskAutoClear  RiskLevel = "AUTO_CLEAR"
	RiskReviewLow  RiskLevel = "REVIEW_LOW"
	RiskReviewHigh RiskLevel = "REVIEW_HIGH"
	RiskAutoHit    RiskLevel = "AUTO_HIT"
)

// State is the request-level pipeline state machine, per spec.md §4.L.
type State string

// States.
const (
	StateRunning   State = "running"
	StateDegraded  State = "degraded"
	StateAborted   State = "aborted"
	StateCompleted State = "completed"
)

// Options configures a single Process/ProcessBatch call, per spec.md
// §6's process Options contract. The zero value is not a usable
// default — callers should start from DefaultOptions().
type Options struct {
	GenerateVariants       bool
	GenerateEmbeddings     bool
	CacheResult            bool
	ForceReprocess         bool
	LanguageHint           langdetect.Language // empty = auto-detect
	TimeoutMs              int                 // 0 = use cfg.ProcessingTimeoutMs
	RemoveStopWords        bool
	PreserveNames          bool
	EnableAdvancedFeatures bool // gates tier2_vector/tier3_rerank
}

// DefaultOptions returns the engine's default per-call Options: variant
// generation and the advanced (vector/rerank) cascade tiers on,
// embeddings off (mirrors cfg.EnableEmbeddings's own default), results
// cached, stop words kept, diminutives resolved.
func DefaultOptions() Options {
	return Options{
		GenerateVariants:       true,
		GenerateEmbeddings:     false,
		CacheResult:            true,
		EnableAdvancedFeatures: true,
	}
}

// ScreeningCandidate is one entity match surfaced by the cascade
// (spec.md §3).
type ScreeningCandidate struct {
	EntityID    string
	Name        string
	Tier        config.ScreeningTier
	Confidence  float64
	ReasonCodes []reason.Code
}

// Result is the full public output of Process (spec.md §6's process /
// ScreeningResult).
type Result struct {
	OriginalText       string
	NormalizedText     string
	CanonicalPhrase    string
	Language           langdetect.Language
	LanguageConfidence float64
	Signals            signals.Result
	Candidates         []ScreeningCandidate
	RiskLevel          RiskLevel
	FinalConfidence    float64
	State              State
	// Success is true iff no abort-class error occurred (spec.md §4.L:
	// "success is true iff no ABORT-class error occurred"); false for
	// an aborted request (e.g. empty input). Validation runs in non-strict
	// mode, so oversized input is truncated rather than aborted.
	Success bool
	Errors           []*errs.Error
	StageTimingsMs   map[string]float64
	TiersExecuted    []config.ScreeningTier
	EarlyStopped     bool
	ProcessingTimeMs float64
}

// recoveryAction is one row of spec.md §4.L's per-stage error-rule table.
type recoveryAction struct {
	name           string
	maxRetries     int
	continuePipeline bool
}

// recoveryTable maps an errs.Kind to its recovery strategy. Kinds not
// listed fall back to the generic retry-once-and-continue row.
var recoveryTable = map[errs.Kind]recoveryAction{
	errs.KindValidation:        {"abort", 0, false},
	errs.KindLanguageDetection: {"fallback", 0, true},
	errs.KindNormalization:     {"retry", 2, true},
	errs.KindVariant:           {"skip_stage", 0, true},
	errs.KindEmbedding:         {"skip_stage", 0, true},
	errs.KindSystem:            {"abort", 0, false},
}

var genericRecovery = recoveryAction{"retry", 1, true}

func recoveryFor(kind errs.Kind) recoveryAction {
	if a, ok := recoveryTable[kind]; ok {
		return a
	}
	return genericRecovery
}

// watchlistIndex is the tier-0/tier-1 lookup structure rebuilt every time
// the watchlist reloads: a pattern automaton over every watchlist
// entity's morphology-derived patterns, plus a blocking-key join table,
// both keyed back to doc_id.
type watchlistIndex struct {
	matcher         *acpattern.Matcher
	patternEntities map[string][]string            // lowercased pattern text -> doc IDs
	blockingIndex   map[string]map[string][]string // key type -> key text -> doc IDs
	names           map[string]string               // doc ID -> display text
}

func emptyWatchlistIndex() *watchlistIndex {
	return &watchlistIndex{
		matcher:         acpattern.BuildMatcher(nil),
		patternEntities: make(map[string][]string),
		blockingIndex:   make(map[string]map[string][]string),
		names:           make(map[string]string),
	}
}

// Engine wires every screening-pipeline component into the staged
// process described in spec.md §4.L.
type Engine struct {
	cfg     *config.Config
	log     *logger.Logger
	metrics *metrics.Metrics
	dict    *dictionaries.Bundle

	validator  *validator.Validator
	langDetect *langdetect.Detector
	morph      *morphology.Normalizer
	variantGen *variants.Generator
	acBuilder  *acpattern.Builder
	blockComp  *blocking.Computer
	sigExtract *signals.Extractor

	watchlistStore *watchlist.Store
	embedDispatch  *embeddings.Dispatcher
	resultCache    *cache.Cache[Result]

	wiMu sync.RWMutex
	wi   *watchlistIndex
}

// New constructs an Engine from its already-constructed dependencies.
// embedDispatch and resultCache may be nil (embeddings / caching
// disabled).
func New(
	cfg *config.Config,
	log *logger.Logger,
	m *metrics.Metrics,
	dict *dictionaries.Bundle,
	wl *watchlist.Store,
	embedDispatch *embeddings.Dispatcher,
	resultCache *cache.Cache[Result],
) *Engine {
	return &Engine{
		cfg:            cfg,
		log:            log,
		metrics:        m,
		dict:           dict,
		validator:      validator.New(dict),
		langDetect:     langdetect.New(dict, nil),
		morph:          morphology.New(dict),
		variantGen:     variants.New(dict),
		acBuilder:      acpattern.NewBuilder(acpattern.EntityConfig{}),
		blockComp:      blocking.New(dict),
		sigExtract:     signals.New(dict),
		watchlistStore: wl,
		embedDispatch:  embedDispatch,
		resultCache:    resultCache,
		wi:             emptyWatchlistIndex(),
	}
}

// RefreshWatchlistIndex rebuilds the tier-0 pattern automaton and the
// tier-1 blocking-key join table from every document currently held by
// the watchlist store. Call after Open/LoadPersisted and after every
// Reload.
func (e *Engine) RefreshWatchlistIndex() error {
	if e.watchlistStore == nil {
		return nil
	}
	docs, err := e.watchlistStore.Docs()
	if err != nil {
		return fmt.Errorf("list watchlist docs: %w", err)
	}

	next := emptyWatchlistIndex()
	var allPatterns []acpattern.Pattern

	for _, d := range docs {
		lang := e.langDetect.Detect(d.Text)
		mr := e.morph.Normalize(lang.Language, d.Text, morphology.Options{})

		next.names[d.DocID] = d.Text

		for _, p := range e.acBuilder.Build(d.Text, mr, string(lang.Language)) {
			allPatterns = append(allPatterns, p)
			key := strings.ToLower(p.Text)
			next.patternEntities[key] = appendUnique(next.patternEntities[key], d.DocID)
		}

		md := blocking.Metadata{
			BirthYear:   parseIntMeta(d.Metadata["birthYear"]),
			CountryCode: d.Metadata["countryCode"],
			EDRPOU:      d.Metadata["edrpou"],
			TaxID:       d.Metadata["taxId"],
		}
		keys := e.blockComp.Compute(mr, md)
		for _, c := range blocking.Candidates(keys) {
			if next.blockingIndex[c.KeyType] == nil {
				next.blockingIndex[c.KeyType] = make(map[string][]string)
			}
			next.blockingIndex[c.KeyType][c.Key] = appendUnique(next.blockingIndex[c.KeyType][c.Key], d.DocID)
		}
	}

	next.matcher = acpattern.BuildMatcher(allPatterns)

	e.wiMu.Lock()
	e.wi = next
	e.wiMu.Unlock()
	return nil
}

func (e *Engine) index() *watchlistIndex {
	e.wiMu.RLock()
	defer e.wiMu.RUnlock()
	return e.wi
}

func appendUnique(ss []string, v string) []string {
	for _, s := range ss {
		if s == v {
			return ss
		}
	}
	return append(ss, v)
}

func parseIntMeta(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}

// processingContext tracks a single request's state as it flows through
// the pipeline, per spec.md §3's ProcessingContext.
type processingContext struct {
	opts               Options
	originalText       string
	currentText        string
	language           langdetect.Language
	languageConfidence float64
	morph              morphology.Result
	variantsList       []variants.Variant
	sig                signals.Result
	candidates         []ScreeningCandidate
	tiersExecuted      []config.ScreeningTier
	earlyStopped       bool
	errorsAcc          []*errs.Error
	stageTimings       map[string]float64
	degraded           bool
	aborted            bool
}

// Process runs the full staged pipeline over one piece of text
// (spec.md §6's process operation). opts controls per-call behavior;
// pass DefaultOptions() absent a caller-specific override.
func (e *Engine) Process(ctx context.Context, text string, md blocking.Metadata, opts Options) (*Result, error) {
	start := time.Now()
	e.metrics.RequestsTotal.Add(1)

	if e.resultCache != nil && !opts.ForceReprocess {
		if cached, ok := e.resultCache.Get(cacheKey(text, md)); ok {
			e.metrics.CacheHits.Add(1)
			return &cached, nil
		}
		e.metrics.CacheMisses.Add(1)
	}

	timeoutMs := e.cfg.ProcessingTimeoutMs
	if opts.TimeoutMs > 0 {
		timeoutMs = opts.TimeoutMs
	}
	overallCtx := ctx
	var cancel context.CancelFunc
	if timeoutMs > 0 {
		overallCtx, cancel = context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
		defer cancel()
	}

	pc := &processingContext{opts: opts, originalText: text, currentText: text, stageTimings: make(map[string]float64)}

	e.runStage(overallCtx, pc, config.StageValidation, func() *errs.Error { return e.stageValidation(pc) })
	if !pc.aborted {
		e.runStage(overallCtx, pc, config.StageUnicode, func() *errs.Error { return e.stageUnicode(pc) })
	}
	if !pc.aborted {
		e.runStage(overallCtx, pc, config.StageLanguage, func() *errs.Error { return e.stageLanguage(pc) })
	}
	if !pc.aborted {
		e.runStage(overallCtx, pc, config.StageMorphology, func() *errs.Error { return e.stageMorphology(pc) })
	}
	if !pc.aborted {
		e.runStage(overallCtx, pc, config.StageVariants, func() *errs.Error { return e.stageVariants(pc) })
	}
	if !pc.aborted {
		e.runStage(overallCtx, pc, config.StageEmbeddings, func() *errs.Error { return e.stageEmbeddings(overallCtx, pc) })
	}
	if !pc.aborted {
		e.runStage(overallCtx, pc, config.StageSignals, func() *errs.Error { return e.stageSignals(pc) })
	}
	if !pc.aborted {
		e.runStage(overallCtx, pc, config.StageScreening, func() *errs.Error { return e.stageScreening(overallCtx, pc, md) })
	}

	res := e.buildResult(pc, start)

	switch res.State {
	case StateCompleted:
		e.metrics.RequestsCompleted.Add(1)
	case StateDegraded:
		e.metrics.RequestsCompleted.Add(1)
		e.metrics.RequestsDegraded.Add(1)
	case StateAborted:
		e.metrics.RequestsAborted.Add(1)
	}
	if overallCtx.Err() != nil {
		e.metrics.RequestsTimeout.Add(1)
	}
	e.metrics.RecordRiskLevel(strings.ToLower(string(res.RiskLevel)))
	if res.EarlyStopped {
		e.metrics.EarlyStops.Add(1)
	}

	if e.resultCache != nil && opts.CacheResult && res.State != StateAborted {
		e.resultCache.Set(cacheKey(text, md), *res, time.Duration(e.cfg.CacheTTLSeconds)*time.Second)
	}

	return res, nil
}

func cacheKey(text string, md blocking.Metadata) string {
	return fmt.Sprintf("%s|%d|%s|%s|%s", text, md.BirthYear, md.CountryCode, md.EDRPOU, md.TaxID)
}

// runStage enforces the stage's configured enabled/timeout/retry
// settings and applies spec.md §4.L's error-rule table on failure.
func (e *Engine) runStage(ctx context.Context, pc *processingContext, name config.StageName, fn func() *errs.Error) {
	sc, ok := e.cfg.Stages[name]
	if ok && !sc.Enabled {
		return
	}

	started := time.Now()
	var stageErr *errs.Error
	attempts := 1

	for {
		select {
		case <-ctx.Done():
			stageErr = errs.New(errs.KindTimeout, string(name), "stage context canceled", ctx.Err())
		default:
			stageErr = fn()
		}
		if stageErr == nil {
			break
		}

		explicit, isNamed := recoveryTable[stageErr.Kind]
		action := explicit
		if !isNamed {
			action = genericRecovery
		}
		maxRetries := action.maxRetries
		if !isNamed && ok {
			// Kinds with no named row fall back to the stage's own
			// configured retry_count rather than genericRecovery's fixed
			// default; a kind named explicitly in recoveryTable always
			// uses the table's count (e.g. Normalization's 2 retries).
			maxRetries = sc.RetryCount
		}
		if attempts > maxRetries || action.name != "retry" {
			break
		}
		attempts++
	}

	pc.stageTimings[string(name)] = float64(time.Since(started).Microseconds()) / 1000.0
	e.metrics.RecordStageLatency(string(name), time.Since(started))

	if stageErr == nil {
		return
	}

	e.metrics.RecordError(string(stageErr.Kind))
	pc.errorsAcc = append(pc.errorsAcc, stageErr)

	action := recoveryFor(stageErr.Kind)
	if !action.continuePipeline {
		pc.aborted = true
		return
	}
	pc.degraded = true
}

func (e *Engine) stageValidation(pc *processingContext) *errs.Error {
	res := e.validator.Validate(pc.currentText, validator.Options{})
	if !res.IsValid {
		return errs.New(errs.KindValidation, string(config.StageValidation), strings.Join(res.Warnings, "; "), nil)
	}
	pc.currentText = res.SanitizedText
	return nil
}

func (e *Engine) stageUnicode(pc *processingContext) *errs.Error {
	res := unicodenorm.Normalize(pc.currentText, unicodenorm.Options{StripControlAndZeroWidth: true})
	pc.currentText = res.NormalizedText
	return nil
}

func (e *Engine) stageLanguage(pc *processingContext) *errs.Error {
	if pc.opts.LanguageHint != "" {
		pc.language = pc.opts.LanguageHint
		pc.languageConfidence = 1.0
		return nil
	}
	res := e.langDetect.Detect(pc.currentText)
	if res.Language == "" {
		return errs.New(errs.KindLanguageDetection, string(config.StageLanguage), "no language detected", nil)
	}
	pc.language = res.Language
	pc.languageConfidence = res.Confidence
	return nil
}

func (e *Engine) stageMorphology(pc *processingContext) *errs.Error {
	res := e.morph.Normalize(pc.language, pc.currentText, morphology.Options{
		RemoveStopWords: pc.opts.RemoveStopWords,
		PreserveNames:   pc.opts.PreserveNames,
	})
	if len(res.Tokens) == 0 {
		return errs.New(errs.KindNormalization, string(config.StageMorphology), "no tokens produced", nil)
	}
	pc.morph = res
	return nil
}

func (e *Engine) stageVariants(pc *processingContext) *errs.Error {
	if !pc.opts.GenerateVariants {
		return nil
	}
	tokens := make([]string, 0, len(pc.morph.Tokens))
	for _, t := range pc.morph.Tokens {
		tokens = append(tokens, t.Surface)
	}
	pc.variantsList = e.variantGen.Generate(tokens, variants.Options{})
	return nil
}

func (e *Engine) stageEmbeddings(ctx context.Context, pc *processingContext) *errs.Error {
	if !pc.opts.GenerateEmbeddings || !e.cfg.EnableEmbeddings || e.embedDispatch == nil {
		return nil
	}
	if _, err := e.embedDispatch.Dispatch(ctx, []string{pc.morph.CanonicalPhrase}); err != nil {
		return errs.New(errs.KindEmbedding, string(config.StageEmbeddings), "embedding dispatch failed", err)
	}
	return nil
}

func (e *Engine) stageSignals(pc *processingContext) *errs.Error {
	pc.sig = e.sigExtract.Extract(pc.originalText)
	return nil
}

// stageScreening runs the tiered cascade over pc.morph/pc.currentText,
// honoring per-tier enablement, confidence thresholds, candidate caps,
// timeouts, and spec.md §4.L step 2's early-stop thresholds.
func (e *Engine) stageScreening(ctx context.Context, pc *processingContext, md blocking.Metadata) *errs.Error {
	wi := e.index()
	var all []ScreeningCandidate

	tierOrder := []config.ScreeningTier{config.TierACExact, config.TierBlocking, config.TierVectorKNN, config.TierReranker}

	advancedTier := func(t config.ScreeningTier) bool {
		return t == config.TierVectorKNN || t == config.TierReranker
	}

	for _, tier := range tierOrder {
		tc, ok := e.cfg.Tiers[tier]
		if !ok || !tc.Enabled {
			continue
		}
		if !pc.opts.EnableAdvancedFeatures && advancedTier(tier) {
			continue
		}

		tierStart := time.Now()
		tierCtx := ctx
		var cancel context.CancelFunc
		if tc.TimeoutMs > 0 {
			tierCtx, cancel = context.WithTimeout(ctx, time.Duration(tc.TimeoutMs)*time.Millisecond)
		}

		var produced []ScreeningCandidate
		switch tier {
		case config.TierACExact:
			produced = e.tier0(wi, pc.currentText)
		case config.TierBlocking:
			produced = e.tier1(wi, pc.morph, pc.variantsList, md)
		case config.TierVectorKNN:
			produced = e.tier2(tierCtx, tc, pc.currentText)
		case config.TierReranker:
			produced = e.tier3(all, pc.morph, md, inputNameFor(pc.morph, pc.currentText))
		}
		if cancel != nil {
			cancel()
		}

		produced = filterByConfidence(produced, tc.ConfidenceThreshold)
		produced = capCandidates(produced, tc.MaxCandidates)

		pc.stageTimings["tier:"+string(tier)] = float64(time.Since(tierStart).Microseconds()) / 1000.0
		e.metrics.RecordStageLatency(string(tier), time.Since(tierStart))

		if tier == config.TierReranker {
			all = produced // the reranker replaces, rather than extends, the union
		} else {
			all = append(all, produced...)
		}
		pc.tiersExecuted = append(pc.tiersExecuted, tier)

		if max := maxConfidence(all); max >= e.cfg.Thresholds.EarlyStopAutoHit || max <= e.cfg.Thresholds.EarlyStopAutoClear {
			pc.earlyStopped = true
			break
		}
	}

	pc.candidates = dedupeCandidatesByEntity(all)
	return nil
}

func (e *Engine) tier0(wi *watchlistIndex, text string) []ScreeningCandidate {
	if wi == nil || wi.matcher == nil {
		return nil
	}
	var out []ScreeningCandidate
	for _, hit := range wi.matcher.Match(text) {
		ids := wi.patternEntities[strings.ToLower(hit.Pattern.Text)]
		for _, id := range ids {
			out = append(out, ScreeningCandidate{
				EntityID:    id,
				Name:        wi.names[id],
				Tier:        config.TierACExact,
				Confidence:  hit.Pattern.SourceConfidence,
				ReasonCodes: []reason.Code{hit.Pattern.ReasonCode},
			})
		}
	}
	return out
}

func (e *Engine) tier1(wi *watchlistIndex, morph morphology.Result, variantsList []variants.Variant, md blocking.Metadata) []ScreeningCandidate {
	if wi == nil {
		return nil
	}
	keys := e.blockComp.Compute(morph, md)
	var out []ScreeningCandidate
	for _, c := range blocking.Candidates(keys) {
		for _, id := range wi.blockingIndex[c.KeyType][c.Key] {
			out = append(out, ScreeningCandidate{
				EntityID:    id,
				Name:        wi.names[id],
				Tier:        config.TierBlocking,
				Confidence:  c.Confidence,
				ReasonCodes: c.ReasonCodes,
			})
		}
	}

	// Variant surnames (transliteration/phonetic) widen the join beyond
	// what the canonical surname alone would hit, at a lower indicative
	// confidence than a direct surname_normalized match.
	for _, v := range variantsList {
		if v.Category != variants.CategoryTransliteration && v.Category != variants.CategoryPhonetic {
			continue
		}
		lower := strings.ToLower(v.Text)
		for _, keyType := range []string{"surname_normalized", "phonetic_surname"} {
			for _, id := range wi.blockingIndex[keyType][lower] {
				out = append(out, ScreeningCandidate{
					EntityID:    id,
					Name:        wi.names[id],
					Tier:        config.TierBlocking,
					Confidence:  blocking.ConfidenceFor(keyType) * 0.85,
					ReasonCodes: []reason.Code{reason.Phonetic},
				})
			}
		}
	}
	return out
}

func (e *Engine) tier2(ctx context.Context, tc config.TierConfig, text string) []ScreeningCandidate {
	if e.watchlistStore == nil {
		return nil
	}
	k := 10
	if kv, ok := tc.Parameters["k"]; ok {
		if kf, ok := kv.(float64); ok {
			k = int(kf)
		} else if ki, ok := kv.(int); ok {
			k = ki
		}
	}
	hits := e.watchlistStore.Search(text, k)
	out := make([]ScreeningCandidate, 0, len(hits))
	for _, h := range hits {
		out = append(out, ScreeningCandidate{
			EntityID:    h.DocID,
			Tier:        config.TierVectorKNN,
			Confidence:  h.Confidence,
			ReasonCodes: []reason.Code{h.ReasonCode},
		})
	}
	_ = ctx
	return out
}

// inputNameFor returns the query-side name the reranker should compare
// candidates against: the morphology stage's canonical surname-given-
// patronymic phrase when available, falling back to the raw normalized
// text so tier3 never runs Jaro-Winkler against an empty string.
func inputNameFor(morph morphology.Result, currentText string) string {
	if morph.CanonicalPhrase != "" {
		return morph.CanonicalPhrase
	}
	return currentText
}

func (e *Engine) tier3(union []ScreeningCandidate, morph morphology.Result, md blocking.Metadata, inputName string) []ScreeningCandidate {
	if len(union) == 0 {
		return nil
	}
	keys := e.blockComp.Compute(morph, md)
	byEntity := make(map[string]*rerank.Candidate)
	for _, c := range union {
		rc, ok := byEntity[c.EntityID]
		if !ok {
			rc = &rerank.Candidate{
				EntityID:   c.EntityID,
				Name:       c.Name,
				InputName:  inputName,
				TierScores: make(map[string]float64),
				Rules: rerank.RuleInputs{
					DOBMatch:               md.BirthYear != 0 && blocking.BirthYearMatches(md.BirthYear, keys.BirthYear),
					CountryMatch:           keys.CountryCode != "" && keys.CountryCode == md.CountryCode,
					EDRPOUOrTaxIDMatch:     keys.EDRPOU != "" || keys.TaxID != "",
					UkrainianSurnameSuffix: keys.PhoneticSurname != "",
				},
			}
			byEntity[c.EntityID] = rc
		}
		rc.TierScores[string(c.Tier)] = c.Confidence
		rc.ReasonCodes = append(rc.ReasonCodes, c.ReasonCodes...)
		if c.Tier == config.TierACExact {
			rc.Rules.ExactSurnameMatch = true
		}
		if c.Tier == config.TierBlocking {
			rc.Rules.InitialSurnameMatch = true
		}
		if c.Tier == config.TierVectorKNN && c.Confidence > rc.Cosine {
			rc.Cosine = c.Confidence
		}
	}

	candidates := make([]rerank.Candidate, 0, len(byEntity))
	for _, rc := range byEntity {
		candidates = append(candidates, *rc)
	}

	scored := rerank.Rerank(candidates)
	out := make([]ScreeningCandidate, 0, len(scored))
	for _, s := range scored {
		out = append(out, ScreeningCandidate{
			EntityID:    s.EntityID,
			Name:        s.Name,
			Tier:        config.TierReranker,
			Confidence:  s.FinalScore,
			ReasonCodes: s.ReasonCodes,
		})
	}
	return out
}

func filterByConfidence(cands []ScreeningCandidate, threshold float64) []ScreeningCandidate {
	if threshold <= 0 {
		return cands
	}
	out := cands[:0]
	for _, c := range cands {
		if c.Confidence >= threshold {
			out = append(out, c)
		}
	}
	return out
}

func capCandidates(cands []ScreeningCandidate, max int) []ScreeningCandidate {
	if max <= 0 || len(cands) <= max {
		return cands
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].Confidence > cands[j].Confidence })
	return cands[:max]
}

func maxConfidence(cands []ScreeningCandidate) float64 {
	var max float64
	for _, c := range cands {
		if c.Confidence > max {
			max = c.Confidence
		}
	}
	return max
}

func dedupeCandidatesByEntity(cands []ScreeningCandidate) []ScreeningCandidate {
	byEntity := make(map[string]*ScreeningCandidate)
	order := make([]string, 0, len(cands))
	for _, c := range cands {
		existing, ok := byEntity[c.EntityID]
		if !ok {
			cc := c
			byEntity[c.EntityID] = &cc
			order = append(order, c.EntityID)
			continue
		}
		if c.Confidence > existing.Confidence {
			existing.Confidence = c.Confidence
			existing.Tier = c.Tier
		}
		existing.ReasonCodes = append(existing.ReasonCodes, c.ReasonCodes...)
	}
	out := make([]ScreeningCandidate, 0, len(order))
	for _, id := range order {
		out = append(out, *byEntity[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

// buildResult maps a finished processingContext to the public Result,
// applying spec.md §4.L step 4's risk mapping and metadata-gating rule
// (an AUTO_HIT verdict with no corroborating metadata signal downgrades
// to REVIEW_HIGH).
func (e *Engine) buildResult(pc *processingContext, start time.Time) *Result {
	res := &Result{
		OriginalText:       pc.originalText,
		NormalizedText:      pc.currentText,
		Language:            pc.language,
		LanguageConfidence:  pc.languageConfidence,
		Signals:             pc.sig,
		Candidates:          pc.candidates,
		Errors:              pc.errorsAcc,
		StageTimingsMs:      pc.stageTimings,
		TiersExecuted:       pc.tiersExecuted,
		EarlyStopped:        pc.earlyStopped,
		ProcessingTimeMs:    float64(time.Since(start).Microseconds()) / 1000.0,
	}
	if pc.morph.CanonicalPhrase != "" {
		res.CanonicalPhrase = pc.morph.CanonicalPhrase
	}

	switch {
	case pc.aborted:
		res.State = StateAborted
	case pc.degraded:
		res.State = StateDegraded
	default:
		res.State = StateCompleted
	}
	res.Success = res.State != StateAborted

	maxConf := maxConfidence(pc.candidates)
	res.FinalConfidence = maxConf

	t := e.cfg.Thresholds
	switch {
	case maxConf < t.AutoClearBelow:
		res.RiskLevel = RiskAutoClear
	case maxConf < t.ReviewLowBelow:
		res.RiskLevel = RiskReviewLow
	case maxConf < t.ReviewHighBelow:
		res.RiskLevel = RiskReviewHigh
	default:
		res.RiskLevel = RiskAutoHit
		if !hasStrongMetadataSignal(pc.candidates) {
			res.RiskLevel = RiskReviewHigh
		}
	}

	return res
}

func hasStrongMetadataSignal(cands []ScreeningCandidate) bool {
	for _, c := range cands {
		for _, rc := range c.ReasonCodes {
			if rc == reason.MetadataDOB || rc == reason.MetadataEDRPOU || rc == reason.MetadataTaxID || rc == reason.DocNum {
				return true
			}
		}
	}
	return false
}

// ProcessBatch runs Process over every text in texts, bounded by
// cfg.MaxConcurrentBatch concurrent in-flight requests (spec.md §6's
// process_batch). opts applies uniformly to every item in the batch.
func (e *Engine) ProcessBatch(ctx context.Context, texts []string, mds []blocking.Metadata, opts Options) ([]*Result, error) {
	results := make([]*Result, len(texts))
	sem := semaphore.NewWeighted(int64(maxInt(e.cfg.MaxConcurrentBatch, 1)))
	var wg sync.WaitGroup
	var firstErr error
	var mu sync.Mutex

	for i, text := range texts {
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
			break
		}
		wg.Add(1)
		go func(i int, text string) {
			defer wg.Done()
			defer sem.Release(1)
			var md blocking.Metadata
			if i < len(mds) {
				md = mds[i]
			}
			res, err := e.Process(ctx, text, md, opts)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			results[i] = res
		}(i, text)
	}
	wg.Wait()
	return results, firstErr
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// ScreenEntity runs only the screening cascade over an already
// normalized canonical phrase, skipping validation/unicode/language/
// morphology — used when a caller already holds a morphology.Result
// (e.g. re-screening after a watchlist reload).
func (e *Engine) ScreenEntity(ctx context.Context, morph morphology.Result, md blocking.Metadata) ([]ScreeningCandidate, error) {
	pc := &processingContext{morph: morph, currentText: morph.CanonicalPhrase, stageTimings: make(map[string]float64)}
	if err := e.stageScreening(ctx, pc, md); err != nil {
		return nil, err
	}
	return pc.candidates, nil
}

// SearchSimilarNames delegates to the watchlist's vector index
// (spec.md §6's search_similar_names).
func (e *Engine) SearchSimilarNames(text string, k int) []vectorindex.Hit {
	if e.watchlistStore == nil {
		return nil
	}
	return e.watchlistStore.Search(text, k)
}

// GetProcessingStats returns a point-in-time metrics snapshot
// (spec.md §6's get_processing_stats).
func (e *Engine) GetProcessingStats() metrics.Snapshot {
	return e.metrics.Snapshot()
}

// ReloadWatchlist reloads the watchlist store and rebuilds the derived
// tier-0/tier-1 indexes (spec.md §6's reload_watchlist).
func (e *Engine) ReloadWatchlist(ctx context.Context) error {
	if e.watchlistStore == nil {
		return errs.New(errs.KindWatchlistDown, "watchlist", "no watchlist store configured", nil)
	}
	if err := e.watchlistStore.Reload(ctx); err != nil {
		return errs.New(errs.KindWatchlistDown, "watchlist", "reload failed", err)
	}
	return e.RefreshWatchlistIndex()
}

// GetWatchlistStatus reports the watchlist's current load state
// (spec.md §6's get_watchlist_status).
func (e *Engine) GetWatchlistStatus() management.WatchlistStatus {
	if e.watchlistStore == nil {
		return management.WatchlistStatus{}
	}
	return e.watchlistStore.Status()
}

// ClearCache clears the result cache (spec.md §6's clear_cache).
func (e *Engine) ClearCache() {
	if e.resultCache != nil {
		e.resultCache.Clear()
	}
}

// ResetStats resets every metrics counter (spec.md §6's reset_stats).
func (e *Engine) ResetStats() {
	e.metrics.Reset()
}

// HealthCheck reports liveness plus watchlist readiness
// (spec.md §6's health_check).
func (e *Engine) HealthCheck() map[string]any {
	status := "ok"
	wl := e.GetWatchlistStatus()
	if e.watchlistStore != nil && !wl.Loaded {
		status = "degraded"
	}
	return map[string]any{
		"status":          status,
		"watchlistLoaded": wl.Loaded,
		"watchlistCount":  wl.EntryCount,
	}
}
