// Package config loads and holds all screening engine configuration.
// Settings are layered: defaults → screen-config.json → environment
// variables (env vars win).
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
)

// StageName identifies one orchestrator pipeline stage for per-stage config
// and the AI_STAGE_<NAME>_* environment variable convention.
type StageName string

// Pipeline stage names, in execution order (§4.L).
const (
	StageValidation StageName = "validation"
	StageUnicode    StageName = "unicode"
	StageLanguage   StageName = "language"
	StageMorphology StageName = "morphology"
	StageVariants   StageName = "variants"
	StageEmbeddings StageName = "embeddings"
	StageSignals    StageName = "signals"
	StageScreening  StageName = "screening"
)

// allStages lists every stage name config iterates/validates over.
var allStages = []StageName{
	StageValidation, StageUnicode, StageLanguage, StageMorphology,
	StageVariants, StageEmbeddings, StageSignals, StageScreening,
}

// ScreeningTier identifies one cascade tier (§4.G–§4.J).
type ScreeningTier string

// Screening cascade tiers, in execution order.
const (
	TierACExact   ScreeningTier = "tier0_ac"
	TierBlocking  ScreeningTier = "tier1_blocking"
	TierVectorKNN ScreeningTier = "tier2_vector"
	TierReranker  ScreeningTier = "tier3_rerank"
)

var allTiers = []ScreeningTier{TierACExact, TierBlocking, TierVectorKNN, TierReranker}

// StageConfig holds per-stage settings (§6: "Per stage: {enabled,
// timeout_ms, retry_count, cache_results, specific_params{...}}").
type StageConfig struct {
	Enabled        bool           `json:"enabled"`
	TimeoutMs      int            `json:"timeoutMs"`
	RetryCount     int            `json:"retryCount"`
	CacheResults   bool           `json:"cacheResults"`
	SpecificParams map[string]any `json:"specificParams,omitempty"`
}

// TierConfig holds per-tier cascade settings, ported from
// screening_tiers.py's TierConfig dataclass.
type TierConfig struct {
	Enabled             bool           `json:"enabled"`
	ConfidenceThreshold float64        `json:"confidenceThreshold"`
	MaxCandidates       int            `json:"maxCandidates"`
	TimeoutMs           int            `json:"timeoutMs"`
	Parameters          map[string]any `json:"parameters,omitempty"`
}

// DecisionThresholds holds the ascending risk-level boundaries (§4.L step 4)
// and the distinct early-stop thresholds (§4.L step 2). These are kept
// separate per the Open Question resolution in SPEC_FULL.md: the source's
// tier config names an inconsistent 0.59 auto-clear boundary, while the
// early-stopper uses 0.1/0.95. The ascending thresholds are authoritative
// for risk_level; the early-stop pair is an independent short-circuit check.
type DecisionThresholds struct {
	AutoClearBelow  float64 `json:"autoClearBelow"`  // risk_level = AUTO_CLEAR if final_confidence < this
	ReviewLowBelow  float64 `json:"reviewLowBelow"`  // REVIEW_LOW if in [AutoClearBelow, this)
	ReviewHighBelow float64 `json:"reviewHighBelow"` // REVIEW_HIGH if in [ReviewLowBelow, this); AUTO_HIT otherwise

	EarlyStopAutoHit   float64 `json:"earlyStopAutoHit"`   // short-circuit if max_confidence >= this after any tier
	EarlyStopAutoClear float64 `json:"earlyStopAutoClear"` // short-circuit if max_confidence <= this after any tier
}

// Config holds the full engine configuration.
type Config struct {
	ManagementPort  int    `json:"managementPort"`
	BindAddress     string `json:"bindAddress"`
	ManagementToken string `json:"managementToken"`
	LogLevel        string `json:"logLevel"`

	// Pipeline-level settings (§6 "Pipeline: {...}")
	MaxConcurrentStages int  `json:"maxConcurrentStages"`
	EnableCaching       bool `json:"enableCaching"`
	CacheTTLSeconds     int  `json:"cacheTtlSeconds"`
	EnableMetrics       bool `json:"enableMetrics"`
	EnableErrorRecovery bool `json:"enableErrorRecovery"`
	ProcessingTimeoutMs int  `json:"processingTimeoutMs"`
	BatchSize           int  `json:"batchSize"`
	MaxConcurrentBatch  int  `json:"maxConcurrentBatch"` // process_batch's max_concurrent, default 10

	Stages map[StageName]StageConfig    `json:"stages"`
	Tiers  map[ScreeningTier]TierConfig `json:"tiers"`

	Thresholds DecisionThresholds `json:"thresholds"`

	// Watchlist persistence (bbolt doc store + snapshot directory, see
	// internal/watchlist).
	WatchlistSnapshotDir string `json:"watchlistSnapshotDir"`
	WatchlistCacheFile   string `json:"watchlistCacheFile"`
	WatchlistAutoReload  bool   `json:"watchlistAutoReload"`

	// Optional embedding provider (see internal/embeddings).
	EnableEmbeddings         bool    `json:"enableEmbeddings"`
	EmbeddingEndpoint        string  `json:"embeddingEndpoint"`
	EmbeddingModel           string  `json:"embeddingModel"`
	EmbeddingMaxConcurrent   int     `json:"embeddingMaxConcurrent"`
	EmbeddingRateLimitPerSec float64 `json:"embeddingRateLimitPerSec"`
}

// Load returns config with defaults overridden by screen-config.json and
// then environment variables.
func Load() *Config {
	cfg := defaults()
	loadFile(cfg, "screen-config.json")
	loadEnv(cfg)
	return cfg
}

func defaults() *Config {
	return &Config{
		ManagementPort: 8081,
		BindAddress:    "127.0.0.1",
		LogLevel:       "info",

		MaxConcurrentStages: 4,
		EnableCaching:       true,
		CacheTTLSeconds:     3600,
		EnableMetrics:       true,
		EnableErrorRecovery: true,
		ProcessingTimeoutMs: 30000,
		BatchSize:           50,
		MaxConcurrentBatch:  10,

		Stages: defaultStages(),
		Tiers:  defaultTiers(),

		Thresholds: DecisionThresholds{
			AutoClearBelow:     0.60,
			ReviewLowBelow:     0.74,
			ReviewHighBelow:    0.86,
			EarlyStopAutoHit:   0.95,
			EarlyStopAutoClear: 0.1,
		},

		WatchlistSnapshotDir: "watchlist-snapshots",
		WatchlistCacheFile:   "watchlist.db",
		WatchlistAutoReload:  true,

		EnableEmbeddings:         false,
		EmbeddingEndpoint:        "https://api.openai.com/v1",
		EmbeddingModel:           "text-embedding-3-small",
		EmbeddingMaxConcurrent:   2,
		EmbeddingRateLimitPerSec: 5,
	}
}

func defaultStages() map[StageName]StageConfig {
	m := make(map[StageName]StageConfig, len(allStages))
	for _, s := range allStages {
		m[s] = StageConfig{Enabled: true, TimeoutMs: 5000, RetryCount: 1, CacheResults: true}
	}
	m[StageMorphology] = StageConfig{
		Enabled: true, TimeoutMs: 5000, RetryCount: 1, CacheResults: true,
		SpecificParams: map[string]any{"preserve_names": true, "remove_extra_whitespace": true},
	}
	m[StageLanguage] = StageConfig{
		Enabled: true, TimeoutMs: 2000, RetryCount: 1, CacheResults: true,
		SpecificParams: map[string]any{"confidence_threshold": 0.6, "default_language": "en"},
	}
	m[StageEmbeddings] = StageConfig{
		Enabled: false, TimeoutMs: 10000, RetryCount: 0, CacheResults: false,
	}
	return m
}

func defaultTiers() map[ScreeningTier]TierConfig {
	return map[ScreeningTier]TierConfig{
		TierACExact:   {Enabled: true, ConfidenceThreshold: 0.95, MaxCandidates: 20, TimeoutMs: 500},
		TierBlocking:  {Enabled: true, ConfidenceThreshold: 0.70, MaxCandidates: 50, TimeoutMs: 1000},
		TierVectorKNN: {Enabled: true, ConfidenceThreshold: 0.55, MaxCandidates: 30, TimeoutMs: 2000, Parameters: map[string]any{"k": 10}},
		TierReranker:  {Enabled: true, ConfidenceThreshold: 0.0, MaxCandidates: 10, TimeoutMs: 1500},
	}
}

// ValidateConfig ports screening_tiers.py's validate_config(): it flags
// non-ascending decision thresholds and a tier budget that would blow the
// overall processing timeout if every enabled tier ran serially at its
// configured timeout. It returns human-readable problems; an empty slice
// means the config is valid.
func (c *Config) ValidateConfig() []string {
	var problems []string

	t := c.Thresholds
	if !(t.AutoClearBelow < t.ReviewLowBelow && t.ReviewLowBelow < t.ReviewHighBelow) {
		problems = append(problems, fmt.Sprintf(
			"decision thresholds must be strictly ascending: autoClearBelow=%v reviewLowBelow=%v reviewHighBelow=%v",
			t.AutoClearBelow, t.ReviewLowBelow, t.ReviewHighBelow))
	}
	if t.EarlyStopAutoClear >= t.AutoClearBelow {
		problems = append(problems, fmt.Sprintf(
			"earlyStopAutoClear (%v) should be below autoClearBelow (%v)", t.EarlyStopAutoClear, t.AutoClearBelow))
	}
	if t.EarlyStopAutoHit <= t.ReviewHighBelow {
		problems = append(problems, fmt.Sprintf(
			"earlyStopAutoHit (%v) should be above reviewHighBelow (%v)", t.EarlyStopAutoHit, t.ReviewHighBelow))
	}

	var tierBudget int
	for _, tier := range allTiers {
		tc, ok := c.Tiers[tier]
		if !ok {
			problems = append(problems, fmt.Sprintf("tier %q has no configuration", tier))
			continue
		}
		if tc.Enabled {
			tierBudget += tc.TimeoutMs
		}
		if tc.ConfidenceThreshold < 0 || tc.ConfidenceThreshold > 1 {
			problems = append(problems, fmt.Sprintf("tier %q confidenceThreshold out of [0,1]: %v", tier, tc.ConfidenceThreshold))
		}
	}
	if tierBudget > c.ProcessingTimeoutMs {
		problems = append(problems, fmt.Sprintf(
			"sum of enabled tier timeouts (%dms) exceeds processingTimeoutMs (%dms)", tierBudget, c.ProcessingTimeoutMs))
	}

	for _, stage := range allStages {
		sc, ok := c.Stages[stage]
		if !ok {
			problems = append(problems, fmt.Sprintf("stage %q has no configuration", stage))
			continue
		}
		if sc.RetryCount < 0 {
			problems = append(problems, fmt.Sprintf("stage %q retryCount must be >= 0", stage))
		}
	}

	return problems
}

func loadFile(cfg *Config, path string) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is a controlled config file path, not user input
	if err != nil {
		return // file is optional
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		log.Printf("[CONFIG] Warning: could not parse %s: %v", path, err)
	} else {
		log.Printf("[CONFIG] Loaded %s", path)
	}
}

func loadEnv(cfg *Config) {
	if v := os.Getenv("MANAGEMENT_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ManagementPort = n
		}
	}
	if v := os.Getenv("BIND_ADDRESS"); v != "" {
		cfg.BindAddress = v
	}
	if v := os.Getenv("MANAGEMENT_TOKEN"); v != "" {
		cfg.ManagementToken = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	if v := os.Getenv("AI_PIPELINE_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxConcurrentStages = n
		}
	}
	if v := os.Getenv("AI_PIPELINE_ENABLE_CACHING"); v != "" {
		cfg.EnableCaching = v != "false"
	}
	if v := os.Getenv("AI_PIPELINE_CACHE_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CacheTTLSeconds = n
		}
	}
	if v := os.Getenv("AI_PIPELINE_ENABLE_METRICS"); v != "" {
		cfg.EnableMetrics = v != "false"
	}
	if v := os.Getenv("AI_PIPELINE_ENABLE_ERROR_RECOVERY"); v != "" {
		cfg.EnableErrorRecovery = v != "false"
	}
	if v := os.Getenv("AI_PIPELINE_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ProcessingTimeoutMs = n
		}
	}
	if v := os.Getenv("AI_PIPELINE_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.BatchSize = n
		}
	}
	if v := os.Getenv("AI_PIPELINE_MAX_CONCURRENT_BATCH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxConcurrentBatch = n
		}
	}

	for _, stage := range allStages {
		loadStageEnv(cfg, stage)
	}

	if v := os.Getenv("AI_WATCHLIST_SNAPSHOT_DIR"); v != "" {
		cfg.WatchlistSnapshotDir = v
	}
	if v := os.Getenv("AI_WATCHLIST_CACHE_FILE"); v != "" {
		cfg.WatchlistCacheFile = v
	}
	if v := os.Getenv("AI_WATCHLIST_AUTO_RELOAD"); v != "" {
		cfg.WatchlistAutoReload = v != "false"
	}

	if v := os.Getenv("AI_EMBEDDINGS_ENABLED"); v != "" {
		cfg.EnableEmbeddings = v == "true"
	}
	if v := os.Getenv("AI_EMBEDDINGS_ENDPOINT"); v != "" {
		cfg.EmbeddingEndpoint = v
	}
	if v := os.Getenv("AI_EMBEDDINGS_MODEL"); v != "" {
		cfg.EmbeddingModel = v
	}
	if v := os.Getenv("AI_EMBEDDINGS_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.EmbeddingMaxConcurrent = n
		}
	}
}

// loadStageEnv applies the AI_STAGE_<NAME>_{ENABLED,TIMEOUT_MS,RETRY_COUNT}
// convention for one stage, e.g. AI_STAGE_LANGUAGE_ENABLED=false.
func loadStageEnv(cfg *Config, stage StageName) {
	prefix := "AI_STAGE_" + strings.ToUpper(string(stage)) + "_"
	sc := cfg.Stages[stage]

	if v := os.Getenv(prefix + "ENABLED"); v != "" {
		sc.Enabled = v != "false"
	}
	if v := os.Getenv(prefix + "TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			sc.TimeoutMs = n
		}
	}
	if v := os.Getenv(prefix + "RETRY_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			sc.RetryCount = n
		}
	}

	cfg.Stages[stage] = sc
}
