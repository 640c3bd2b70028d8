package orchestrator

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dariapavlova/sanctions-screen/internal/blocking"
	"github.com/dariapavlova/sanctions-screen/internal/cache"
	"github.com/dariapavlova/sanctions-screen/internal/config"
	"github.com/dariapavlova/sanctions-screen/internal/dictionaries"
	"github.com/dariapavlova/sanctions-screen/internal/logger"
	"github.com/dariapavlova/sanctions-screen/internal/metrics"
	"github.com/dariapavlova/sanctions-screen/internal/watchlist"
)

func newTestEngine(t *testing.T, docs []watchlist.Doc) *Engine {
	t.Helper()
	dir := t.TempDir()
	snapshotDir := filepath.Join(dir, "snapshots")
	if err := os.MkdirAll(snapshotDir, 0o755); err != nil {
		t.Fatalf("mkdir snapshots: %v", err)
	}
	if len(docs) > 0 {
		raw, err := json.Marshal(docs)
		if err != nil {
			t.Fatalf("marshal docs: %v", err)
		}
		if err := os.WriteFile(filepath.Join(snapshotDir, "seed.json"), raw, 0o644); err != nil {
			t.Fatalf("write snapshot: %v", err)
		}
	}

	log := logger.New("orchestrator-test", "error")
	wl, err := watchlist.Open(filepath.Join(dir, "watchlist.db"), snapshotDir, log)
	if err != nil {
		t.Fatalf("watchlist.Open: %v", err)
	}
	t.Cleanup(func() { _ = wl.Close() })
	if err := wl.Reload(context.Background()); err != nil {
		t.Fatalf("wl.Reload: %v", err)
	}

	cfg := config.Load()
	dict := dictionaries.MustLoad()
	m := metrics.New()
	resultCache := cache.New[Result](16)

	e := New(cfg, log, m, dict, wl, nil, resultCache)
	if err := e.RefreshWatchlistIndex(); err != nil {
		t.Fatalf("RefreshWatchlistIndex: %v", err)
	}
	return e
}

func TestProcess_NoWatchlistMatchIsAutoClear(t *testing.T) {
	e := newTestEngine(t, nil)
	res, err := e.Process(context.Background(), "completely unrelated transfer narrative", blocking.Metadata{}, DefaultOptions())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.State != StateCompleted {
		t.Errorf("expected completed state, got %v", res.State)
	}
	if res.RiskLevel != RiskAutoClear {
		t.Errorf("expected AUTO_CLEAR with no candidates, got %v", res.RiskLevel)
	}
}

func TestProcess_DocumentNumberMatchesWatchlistEntry(t *testing.T) {
	e := newTestEngine(t, []watchlist.Doc{
		{DocID: "entity-1", Text: "Іванов Петро Сергійович, ЄДРПОУ 12345678", EntityType: "person"},
	})

	res, err := e.Process(context.Background(), "Оплата за договором, отримувач ЄДРПОУ 12345678", blocking.Metadata{}, DefaultOptions())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	found := false
	for _, c := range res.Candidates {
		if c.EntityID == "entity-1" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected entity-1 among candidates, got %+v", res.Candidates)
	}
}

func TestProcess_ValidationFailureAbortsPipeline(t *testing.T) {
	e := newTestEngine(t, nil)
	huge := make([]byte, 20000)
	for i := range huge {
		huge[i] = 'a'
	}
	res, err := e.Process(context.Background(), string(huge), blocking.Metadata{}, DefaultOptions())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.State != StateAborted {
		t.Errorf("expected aborted state for oversized input, got %v", res.State)
	}
	if res.Success {
		t.Errorf("expected Success=false for oversized input, got true")
	}
}

func TestProcess_EmptyInputAbortsPipeline(t *testing.T) {
	e := newTestEngine(t, nil)
	res, err := e.Process(context.Background(), "   ", blocking.Metadata{}, DefaultOptions())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.State != StateAborted {
		t.Errorf("expected aborted state for whitespace-only input, got %v", res.State)
	}
	if res.Success {
		t.Errorf("expected Success=false for whitespace-only input, got true")
	}
	if len(res.Candidates) != 0 {
		t.Errorf("expected no candidates for aborted request, got %d", len(res.Candidates))
	}
	found := false
	for _, pe := range res.Errors {
		if strings.Contains(pe.Message, "empty input") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an error mentioning %q, got %v", "empty input", res.Errors)
	}
}

func TestProcessBatch_ReturnsOneResultPerInput(t *testing.T) {
	e := newTestEngine(t, nil)
	texts := []string{"first narrative", "second narrative", "third narrative"}
	results, err := e.ProcessBatch(context.Background(), texts, nil, DefaultOptions())
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if len(results) != len(texts) {
		t.Fatalf("expected %d results, got %d", len(texts), len(results))
	}
	for i, r := range results {
		if r == nil {
			t.Errorf("result %d is nil", i)
		}
	}
}

func TestGetWatchlistStatus_ReflectsLoadedState(t *testing.T) {
	e := newTestEngine(t, []watchlist.Doc{{DocID: "1", Text: "a", EntityType: "person"}})
	status := e.GetWatchlistStatus()
	if !status.Loaded {
		t.Error("expected watchlist status Loaded=true")
	}
	if status.EntryCount != 1 {
		t.Errorf("expected 1 entry, got %d", status.EntryCount)
	}
}

func TestHealthCheck_OkWhenWatchlistLoaded(t *testing.T) {
	e := newTestEngine(t, []watchlist.Doc{{DocID: "1", Text: "a", EntityType: "person"}})
	h := e.HealthCheck()
	if h["status"] != "ok" {
		t.Errorf("expected status ok, got %v", h["status"])
	}
}

func TestResetStats_ZeroesRequestCounters(t *testing.T) {
	e := newTestEngine(t, nil)
	if _, err := e.Process(context.Background(), "some narrative", blocking.Metadata{}, DefaultOptions()); err != nil {
		t.Fatalf("Process: %v", err)
	}
	e.ResetStats()
	snap := e.GetProcessingStats()
	if snap.Requests.Total != 0 {
		t.Errorf("expected 0 total requests after reset, got %d", snap.Requests.Total)
	}
}

func TestClearCache_RemovesCachedResult(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	if _, err := e.Process(ctx, "cached narrative", blocking.Metadata{}, DefaultOptions()); err != nil {
		t.Fatalf("Process: %v", err)
	}
	e.ClearCache()
	stats := e.resultCache.Stats()
	if stats.Size != 0 {
		t.Errorf("expected empty cache after ClearCache, got size %d", stats.Size)
	}
}
