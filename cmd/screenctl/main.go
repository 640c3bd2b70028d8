// Command screenctl is the thin process wrapper around the screening
// engine: it wires config, dictionaries, the watchlist store, and the
// orchestrator together, serves the management API, and — when given
// a name/narrative on argv — runs it through the pipeline once and
// prints the result as JSON.
//
// HTTP/CLI front ends for bulk screening are out of scope (spec.md);
// this binary exists to host the admin surface (§6: health, stats,
// watchlist status/reload, cache clear) and to exercise the engine
// directly for ad hoc checks.
//
// Usage:
//
//	# Serve the management API only
//	./screenctl
//
//	# Screen one line of text and exit
//	./screenctl "Петров Іван Сергійович"
//
//	# Custom management port
//	MANAGEMENT_PORT=9090 ./screenctl
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dariapavlova/sanctions-screen/internal/blocking"
	"github.com/dariapavlova/sanctions-screen/internal/cache"
	"github.com/dariapavlova/sanctions-screen/internal/config"
	"github.com/dariapavlova/sanctions-screen/internal/dictionaries"
	"github.com/dariapavlova/sanctions-screen/internal/embeddings"
	"github.com/dariapavlova/sanctions-screen/internal/logger"
	"github.com/dariapavlova/sanctions-screen/internal/management"
	"github.com/dariapavlova/sanctions-screen/internal/metrics"
	"github.com/dariapavlova/sanctions-screen/internal/orchestrator"
	"github.com/dariapavlova/sanctions-screen/internal/watchlist"
)

func main() {
	cfg := config.Load()
	if problems := cfg.ValidateConfig(); len(problems) > 0 {
		for _, p := range problems {
			log.Printf("[CONFIG] problem: %s", p)
		}
	}

	log_ := logger.New("screenctl", cfg.LogLevel)
	printBanner(cfg)

	dict := dictionaries.MustLoad()
	m := metrics.New()

	wl, err := watchlist.Open(cfg.WatchlistCacheFile, cfg.WatchlistSnapshotDir, log_)
	if err != nil {
		log_.Fatalf("watchlist_open_failed", "could not open watchlist store: %v", err)
	}
	defer func() { _ = wl.Close() }()

	if err := wl.LoadPersisted(); err != nil {
		log_.Errorf("watchlist_load_persisted_failed", "could not restore persisted watchlist: %v", err)
	}
	if err := wl.Reload(context.Background()); err != nil {
		log_.Errorf("watchlist_reload_failed", "initial snapshot reload failed: %v", err)
	}
	if cfg.WatchlistAutoReload {
		if err := wl.StartAutoReload(); err != nil {
			log_.Errorf("watchlist_autoreload_failed", "could not start snapshot watcher: %v", err)
		}
	}

	var embedDispatch *embeddings.Dispatcher
	if cfg.EnableEmbeddings {
		provider := embeddings.NewOpenAIProvider(
			embeddings.WithModel(cfg.EmbeddingModel),
			embeddings.WithBaseURL(cfg.EmbeddingEndpoint),
		)
		embedDispatch = embeddings.NewDispatcher(provider, cfg.EmbeddingRateLimitPerSec, int(cfg.EmbeddingRateLimitPerSec)+1, cfg.EmbeddingMaxConcurrent, m)
	}

	var resultCache *cache.Cache[orchestrator.Result]
	if cfg.EnableCaching {
		resultCache = cache.New[orchestrator.Result](cfg.BatchSize * 100)
	}

	engine := orchestrator.New(cfg, log_, m, dict, wl, embedDispatch, resultCache)
	if err := engine.RefreshWatchlistIndex(); err != nil {
		log_.Errorf("watchlist_index_build_failed", "could not build screening index: %v", err)
	}

	if text := strings.TrimSpace(strings.Join(os.Args[1:], " ")); text != "" {
		runOnce(engine, text)
		return
	}

	var cacheClearer management.CacheClearer
	if resultCache != nil {
		cacheClearer = resultCache
	}
	mgmt := management.New(cfg, m, wl, cacheClearer, log_)
	serveManagement(mgmt, log_)
}

// runOnce screens a single narrative/name and prints the result as
// JSON to stdout, for ad hoc use without standing up the management
// server.
func runOnce(engine *orchestrator.Engine, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := engine.Process(ctx, text, blocking.Metadata{}, orchestrator.DefaultOptions())
	if err != nil {
		log.Fatalf("[SCREENCTL] screening failed: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		log.Fatalf("[SCREENCTL] could not encode result: %v", err)
	}
}

// serveManagement starts the management HTTP server and blocks until
// SIGINT/SIGTERM, then shuts it down gracefully.
func serveManagement(mgmt *management.Server, log_ *logger.Logger) {
	errCh := make(chan error, 1)
	go func() {
		errCh <- mgmt.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log_.Fatalf("management_server_failed", "management API fatal: %v", err)
	case <-quit:
		log_.Info("shutdown", "shutting down")
	}
}

func printBanner(cfg *config.Config) {
	fmt.Printf(`
╔══════════════════════════════════════════════════════╗
║          Sanctions Screening Engine  (Go)            ║
╚══════════════════════════════════════════════════════╝
  Management port   : %d
  Watchlist snapshot : %s
  Watchlist db       : %s
  Auto-reload        : %v
  Embeddings enabled : %v
  Caching enabled    : %v

  Check status:
    curl http://localhost:%d/health
    curl http://localhost:%d/stats
`, cfg.ManagementPort,
		cfg.WatchlistSnapshotDir, cfg.WatchlistCacheFile,
		cfg.WatchlistAutoReload, cfg.EnableEmbeddings, cfg.EnableCaching,
		cfg.ManagementPort, cfg.ManagementPort)
}
