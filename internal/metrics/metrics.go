// Package metrics provides lightweight, lock-minimal performance counters
// for the screening engine.
//
// Counters use sync/atomic so hot paths (stage dispatch, tier scoring)
// incur no mutex contention. Per-stage latency statistics use one shared
// mutex guarding a map, updated at most once per stage execution — the same
// lock-per-dimension pattern used elsewhere in this codebase, generalized
// from a fixed pair of dimensions to the open set of pipeline stages and
// screening tiers named in get_processing_stats.
package metrics

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds all runtime counters for a running engine instance.
// The zero value is not ready to use; call New().
type Metrics struct {
	// Request-level counters
	RequestsTotal     atomic.Int64
	RequestsCompleted atomic.Int64
	RequestsAborted   atomic.Int64
	RequestsTimeout   atomic.Int64
	RequestsDegraded  atomic.Int64

	// Risk-level distribution (final screening decisions)
	AutoClears  atomic.Int64
	ReviewLows  atomic.Int64
	ReviewHighs atomic.Int64
	AutoHits    atomic.Int64
	EarlyStops  atomic.Int64

	// Bounded cache counters (internal/cache)
	CacheHits        atomic.Int64
	CacheMisses      atomic.Int64
	CacheEvictions   atomic.Int64
	CacheExpirations atomic.Int64

	// Embedding provider dispatch counters
	EmbeddingDispatches atomic.Int64
	EmbeddingErrors     atomic.Int64
	EmbeddingFallbacks  atomic.Int64

	errMu stageMap
	stage stageMap

	startTime time.Time
}

// stageMap is a mutex-guarded map keyed by name, shared between the error
// counter and the latency-stats counter so both follow the same locking
// discipline.
type stageMap struct {
	mu     sync.Mutex
	counts map[string]int64
	stats  map[string]*latencyStats
}

// New returns a new Metrics with the start time recorded.
func New() *Metrics {
	return &Metrics{
		startTime: time.Now(),
		errMu:     stageMap{counts: make(map[string]int64)},
		stage:     stageMap{stats: make(map[string]*latencyStats)},
	}
}

// Reset zeroes every counter and discards accumulated latency statistics.
// Used by the management API's reset_stats admin operation; uptime is not
// reset since it reflects process lifetime, not accumulated work.
func (m *Metrics) Reset() {
	m.RequestsTotal.Store(0)
	m.RequestsCompleted.Store(0)
	m.RequestsAborted.Store(0)
	m.RequestsTimeout.Store(0)
	m.RequestsDegraded.Store(0)
	m.AutoClears.Store(0)
	m.ReviewLows.Store(0)
	m.ReviewHighs.Store(0)
	m.AutoHits.Store(0)
	m.EarlyStops.Store(0)
	m.CacheHits.Store(0)
	m.CacheMisses.Store(0)
	m.CacheEvictions.Store(0)
	m.CacheExpirations.Store(0)
	m.EmbeddingDispatches.Store(0)
	m.EmbeddingErrors.Store(0)
	m.EmbeddingFallbacks.Store(0)

	m.errMu.mu.Lock()
	m.errMu.counts = make(map[string]int64)
	m.errMu.mu.Unlock()

	m.stage.mu.Lock()
	m.stage.stats = make(map[string]*latencyStats)
	m.stage.mu.Unlock()
}

// RecordStageLatency records the duration of one stage or tier execution
// under the given name (e.g. "validation", "tier0_ac", "reranker").
func (m *Metrics) RecordStageLatency(stage string, d time.Duration) {
	m.stage.mu.Lock()
	if m.stage.stats == nil {
		m.stage.stats = make(map[string]*latencyStats)
	}
	s, ok := m.stage.stats[stage]
	if !ok {
		s = &latencyStats{}
		m.stage.stats[stage] = s
	}
	s.record(float64(d.Microseconds()) / 1000.0)
	m.stage.mu.Unlock()
}

// RecordError increments the counter for the given errs.Kind string value.
func (m *Metrics) RecordError(kind string) {
	m.errMu.mu.Lock()
	if m.errMu.counts == nil {
		m.errMu.counts = make(map[string]int64)
	}
	m.errMu.counts[kind]++
	m.errMu.mu.Unlock()
}

// RecordRiskLevel increments the counter matching the given risk level
// string ("auto_clear", "review_low", "review_high", "auto_hit"); unknown
// values are ignored.
func (m *Metrics) RecordRiskLevel(level string) {
	switch level {
	case "auto_clear":
		m.AutoClears.Add(1)
	case "review_low":
		m.ReviewLows.Add(1)
	case "review_high":
		m.ReviewHighs.Add(1)
	case "auto_hit":
		m.AutoHits.Add(1)
	}
}

// Snapshot returns a point-in-time copy of all metrics, safe for JSON encoding.
func (m *Metrics) Snapshot() Snapshot {
	m.stage.mu.Lock()
	stagePerf := make(map[string]LatencySnapshot, len(m.stage.stats))
	for name, s := range m.stage.stats {
		stagePerf[name] = s.snapshot()
	}
	m.stage.mu.Unlock()

	m.errMu.mu.Lock()
	errByKind := make(map[string]int64, len(m.errMu.counts))
	for k, v := range m.errMu.counts {
		errByKind[k] = v
	}
	m.errMu.mu.Unlock()

	return Snapshot{
		Requests: RequestSnapshot{
			Total:     m.RequestsTotal.Load(),
			Completed: m.RequestsCompleted.Load(),
			Aborted:   m.RequestsAborted.Load(),
			Timeout:   m.RequestsTimeout.Load(),
			Degraded:  m.RequestsDegraded.Load(),
		},
		RiskLevels: RiskLevelSnapshot{
			AutoClear:  m.AutoClears.Load(),
			ReviewLow:  m.ReviewLows.Load(),
			ReviewHigh: m.ReviewHighs.Load(),
			AutoHit:    m.AutoHits.Load(),
			EarlyStops: m.EarlyStops.Load(),
		},
		Cache: CacheSnapshot{
			Hits:        m.CacheHits.Load(),
			Misses:      m.CacheMisses.Load(),
			Evictions:   m.CacheEvictions.Load(),
			Expirations: m.CacheExpirations.Load(),
		},
		Embeddings: EmbeddingSnapshot{
			Dispatches: m.EmbeddingDispatches.Load(),
			Errors:     m.EmbeddingErrors.Load(),
			Fallbacks:  m.EmbeddingFallbacks.Load(),
		},
		ErrorsByKind:     errByKind,
		StagePerformance: stagePerf,
		UptimeSecs:       time.Since(m.startTime).Seconds(),
	}
}

// --- JSON-serialisable snapshot types ---

// Snapshot is a point-in-time view of all metrics, returned from
// get_processing_stats.
type Snapshot struct {
	Requests         RequestSnapshot            `json:"requests"`
	RiskLevels       RiskLevelSnapshot          `json:"riskLevels"`
	Cache            CacheSnapshot              `json:"cache"`
	Embeddings       EmbeddingSnapshot          `json:"embeddings"`
	ErrorsByKind     map[string]int64           `json:"errorsByKind"`
	StagePerformance map[string]LatencySnapshot `json:"stagePerformance"`
	UptimeSecs       float64                    `json:"uptimeSecs"`
}

// RequestSnapshot holds request-level counters.
type RequestSnapshot struct {
	Total     int64 `json:"total"`
	Completed int64 `json:"completed"`
	Aborted   int64 `json:"aborted"`
	Timeout   int64 `json:"timeout"`
	Degraded  int64 `json:"degraded"`
}

// RiskLevelSnapshot holds the distribution of final risk levels.
type RiskLevelSnapshot struct {
	AutoClear  int64 `json:"autoClear"`
	ReviewLow  int64 `json:"reviewLow"`
	ReviewHigh int64 `json:"reviewHigh"`
	AutoHit    int64 `json:"autoHit"`
	EarlyStops int64 `json:"earlyStops"`
}

// CacheSnapshot holds bounded-cache counters.
type CacheSnapshot struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Evictions   int64 `json:"evictions"`
	Expirations int64 `json:"expirations"`
}

// EmbeddingSnapshot holds optional embedding-provider dispatch counters.
type EmbeddingSnapshot struct {
	Dispatches int64 `json:"dispatches"`
	Errors     int64 `json:"errors"`
	Fallbacks  int64 `json:"fallbacks"`
}

// LatencySnapshot is a min/mean/max summary for one latency dimension.
type LatencySnapshot struct {
	Count  int64   `json:"count"`
	MinMs  float64 `json:"minMs"`
	MeanMs float64 `json:"meanMs"`
	MaxMs  float64 `json:"maxMs"`
}

// --- internal accumulator ---

type latencyStats struct {
	count int64
	sum   float64
	min   float64
	max   float64
}

func (s *latencyStats) record(ms float64) {
	s.count++
	s.sum += ms
	if s.count == 1 || ms < s.min {
		s.min = ms
	}
	if ms > s.max {
		s.max = ms
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func (s *latencyStats) snapshot() LatencySnapshot {
	if s.count == 0 {
		return LatencySnapshot{}
	}
	return LatencySnapshot{
		Count:  s.count,
		MinMs:  round2(s.min),
		MeanMs: round2(s.sum / float64(s.count)),
		MaxMs:  round2(s.max),
	}
}
