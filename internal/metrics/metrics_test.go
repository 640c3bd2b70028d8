package metrics

import (
	"testing"
	"time"
)

func TestNew_StartTimeSet(t *testing.T) {
	before := time.Now()
	m := New()
	after := time.Now()

	if m.startTime.Before(before) || m.startTime.After(after) {
		t.Errorf("startTime %v not in expected range [%v, %v]", m.startTime, before, after)
	}
}

func TestRequestCounters(t *testing.T) {
	m := New()
	m.RequestsTotal.Add(10)
	m.RequestsCompleted.Add(7)
	m.RequestsAborted.Add(1)
	m.RequestsTimeout.Add(1)
	m.RequestsDegraded.Add(1)

	s := m.Snapshot()
	if s.Requests.Total != 10 {
		t.Errorf("Total: got %d, want 10", s.Requests.Total)
	}
	if s.Requests.Completed != 7 {
		t.Errorf("Completed: got %d, want 7", s.Requests.Completed)
	}
	if s.Requests.Aborted != 1 {
		t.Errorf("Aborted: got %d, want 1", s.Requests.Aborted)
	}
	if s.Requests.Timeout != 1 {
		t.Errorf("Timeout: got %d, want 1", s.Requests.Timeout)
	}
	if s.Requests.Degraded != 1 {
		t.Errorf("Degraded: got %d, want 1", s.Requests.Degraded)
	}
}

func TestRecordRiskLevel(t *testing.T) {
	m := New()
	m.RecordRiskLevel("auto_clear")
	m.RecordRiskLevel("auto_clear")
	m.RecordRiskLevel("review_low")
	m.RecordRiskLevel("review_high")
	m.RecordRiskLevel("auto_hit")
	m.RecordRiskLevel("not_a_real_level")
	m.EarlyStops.Add(2)

	s := m.Snapshot()
	if s.RiskLevels.AutoClear != 2 {
		t.Errorf("AutoClear: got %d, want 2", s.RiskLevels.AutoClear)
	}
	if s.RiskLevels.ReviewLow != 1 {
		t.Errorf("ReviewLow: got %d, want 1", s.RiskLevels.ReviewLow)
	}
	if s.RiskLevels.ReviewHigh != 1 {
		t.Errorf("ReviewHigh: got %d, want 1", s.RiskLevels.ReviewHigh)
	}
	if s.RiskLevels.AutoHit != 1 {
		t.Errorf("AutoHit: got %d, want 1", s.RiskLevels.AutoHit)
	}
	if s.RiskLevels.EarlyStops != 2 {
		t.Errorf("EarlyStops: got %d, want 2", s.RiskLevels.EarlyStops)
	}
}

func TestCacheCounters(t *testing.T) {
	m := New()
	m.CacheHits.Add(4)
	m.CacheMisses.Add(2)
	m.CacheEvictions.Add(1)
	m.CacheExpirations.Add(3)

	s := m.Snapshot()
	if s.Cache.Hits != 4 || s.Cache.Misses != 2 || s.Cache.Evictions != 1 || s.Cache.Expirations != 3 {
		t.Errorf("unexpected cache snapshot: %+v", s.Cache)
	}
}

func TestEmbeddingCounters(t *testing.T) {
	m := New()
	m.EmbeddingDispatches.Add(9)
	m.EmbeddingErrors.Add(1)
	m.EmbeddingFallbacks.Add(2)

	s := m.Snapshot()
	if s.Embeddings.Dispatches != 9 || s.Embeddings.Errors != 1 || s.Embeddings.Fallbacks != 2 {
		t.Errorf("unexpected embedding snapshot: %+v", s.Embeddings)
	}
}

func TestRecordError_GroupsByKind(t *testing.T) {
	m := New()
	m.RecordError("Timeout")
	m.RecordError("Timeout")
	m.RecordError("ValidationFailure")

	s := m.Snapshot()
	if s.ErrorsByKind["Timeout"] != 2 {
		t.Errorf("Timeout errors: got %d, want 2", s.ErrorsByKind["Timeout"])
	}
	if s.ErrorsByKind["ValidationFailure"] != 1 {
		t.Errorf("ValidationFailure errors: got %d, want 1", s.ErrorsByKind["ValidationFailure"])
	}
	if _, present := s.ErrorsByKind["SystemError"]; present {
		t.Error("SystemError should be absent when never recorded")
	}
}

func TestRecordStageLatency_SingleSample(t *testing.T) {
	m := New()
	m.RecordStageLatency("validation", 100*time.Millisecond)

	s := m.Snapshot()
	ls := s.StagePerformance["validation"]
	if ls.Count != 1 {
		t.Errorf("Count: got %d, want 1", ls.Count)
	}
	if ls.MinMs < 90 || ls.MinMs > 110 {
		t.Errorf("MinMs: got %f, want ~100", ls.MinMs)
	}
}

func TestRecordStageLatency_MinMaxMeanAcrossStages(t *testing.T) {
	m := New()
	m.RecordStageLatency("tier0_ac", 50*time.Millisecond)
	m.RecordStageLatency("tier0_ac", 150*time.Millisecond)
	m.RecordStageLatency("tier0_ac", 100*time.Millisecond)
	m.RecordStageLatency("reranker", 5*time.Millisecond)

	s := m.Snapshot()
	ac := s.StagePerformance["tier0_ac"]
	if ac.Count != 3 {
		t.Errorf("Count: got %d, want 3", ac.Count)
	}
	if ac.MinMs > 60 {
		t.Errorf("MinMs too high: %f", ac.MinMs)
	}
	if ac.MaxMs < 140 {
		t.Errorf("MaxMs too low: %f", ac.MaxMs)
	}
	if ac.MeanMs < 90 || ac.MeanMs > 110 {
		t.Errorf("MeanMs: got %f, want ~100", ac.MeanMs)
	}

	rr := s.StagePerformance["reranker"]
	if rr.Count != 1 {
		t.Errorf("reranker should have its own independent counter, got %+v", rr)
	}
}

func TestSnapshot_StagesAbsentUntilRecorded(t *testing.T) {
	m := New()
	s := m.Snapshot()
	if len(s.StagePerformance) != 0 {
		t.Errorf("expected no stage entries before any RecordStageLatency call, got %v", s.StagePerformance)
	}
}

func TestSnapshot_UptimePositive(t *testing.T) {
	m := New()
	time.Sleep(5 * time.Millisecond)
	s := m.Snapshot()
	if s.UptimeSecs <= 0 {
		t.Errorf("UptimeSecs should be positive, got %f", s.UptimeSecs)
	}
}

func TestRound2(t *testing.T) {
	cases := []struct {
		input float64
		want  float64
	}{
		{1.236, 1.24},
		{1.234, 1.23},
		{100.0, 100.0},
		{0.0, 0.0},
	}
	for _, c := range cases {
		got := round2(c.input)
		if got != c.want {
			t.Errorf("round2(%f) = %f, want %f", c.input, got, c.want)
		}
	}
}

func TestLatencyStats_Record(t *testing.T) {
	var s latencyStats
	s.record(10)
	s.record(20)
	s.record(15)

	snap := s.snapshot()
	if snap.Count != 3 {
		t.Errorf("Count: got %d, want 3", snap.Count)
	}
	if snap.MinMs != 10 {
		t.Errorf("MinMs: got %f, want 10", snap.MinMs)
	}
	if snap.MaxMs != 20 {
		t.Errorf("MaxMs: got %f, want 20", snap.MaxMs)
	}
	if snap.MeanMs != 15 {
		t.Errorf("MeanMs: got %f, want 15", snap.MeanMs)
	}
}

func TestLatencyStats_Empty(t *testing.T) {
	var s latencyStats
	snap := s.snapshot()
	if snap.Count != 0 || snap.MinMs != 0 || snap.MaxMs != 0 || snap.MeanMs != 0 {
		t.Errorf("empty stats snapshot should be zero, got %+v", snap)
	}
}

func TestReset_ClearsAllCounters(t *testing.T) {
	m := New()
	m.RequestsTotal.Add(5)
	m.RecordRiskLevel("auto_hit")
	m.CacheHits.Add(3)
	m.EmbeddingDispatches.Add(2)
	m.RecordError("Timeout")
	m.RecordStageLatency("validation", 10*time.Millisecond)

	m.Reset()

	s := m.Snapshot()
	if s.Requests.Total != 0 {
		t.Errorf("Total: got %d, want 0 after Reset", s.Requests.Total)
	}
	if s.RiskLevels.AutoHit != 0 {
		t.Errorf("AutoHit: got %d, want 0 after Reset", s.RiskLevels.AutoHit)
	}
	if s.Cache.Hits != 0 {
		t.Errorf("CacheHits: got %d, want 0 after Reset", s.Cache.Hits)
	}
	if s.Embeddings.Dispatches != 0 {
		t.Errorf("EmbeddingDispatches: got %d, want 0 after Reset", s.Embeddings.Dispatches)
	}
	if len(s.ErrorsByKind) != 0 {
		t.Errorf("ErrorsByKind should be empty after Reset, got %v", s.ErrorsByKind)
	}
	if len(s.StagePerformance) != 0 {
		t.Errorf("StagePerformance should be empty after Reset, got %v", s.StagePerformance)
	}
}

func TestConcurrentRecording(t *testing.T) {
	m := New()
	done := make(chan struct{})
	for i := 0; i < 20; i++ {
		go func(n int) {
			m.RecordStageLatency("tier1_blocking", time.Duration(n+1)*time.Millisecond)
			m.RecordError("Timeout")
			m.RequestsTotal.Add(1)
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < 20; i++ {
		<-done
	}

	s := m.Snapshot()
	if s.Requests.Total != 20 {
		t.Errorf("Total: got %d, want 20", s.Requests.Total)
	}
	if s.ErrorsByKind["Timeout"] != 20 {
		t.Errorf("Timeout errors: got %d, want 20", s.ErrorsByKind["Timeout"])
	}
	if s.StagePerformance["tier1_blocking"].Count != 20 {
		t.Errorf("tier1_blocking count: got %d, want 20", s.StagePerformance["tier1_blocking"].Count)
	}
}
