// Package management provides a lightweight HTTP API for runtime inspection
// and administration of a running screening engine.
//
// Endpoints:
//
//	GET  /health            - liveness/readiness probe
//	GET  /stats             - get_processing_stats (rate-limited; recomputing
//	                           latency snapshots under load is not free)
//	POST /stats/reset       - reset_stats
//	GET  /watchlist/status  - get_watchlist_status
//	POST /watchlist/reload  - reload_watchlist
//	POST /cache/clear       - clear_cache
//
// Authorization follows the teacher's bearer-token middleware exactly;
// token is empty by default (no auth), set via ManagementToken/
// MANAGEMENT_TOKEN for production deployments.
package management

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dariapavlova/sanctions-screen/internal/config"
	"github.com/dariapavlova/sanctions-screen/internal/logger"
	"github.com/dariapavlova/sanctions-screen/internal/metrics"
)

// WatchlistStatus reports the state of the loaded watchlist snapshot, as
// surfaced by get_watchlist_status.
type WatchlistStatus struct {
	Loaded         bool      `json:"loaded"`
	EntryCount     int       `json:"entryCount"`
	Version        string    `json:"version"`
	SnapshotPath   string    `json:"snapshotPath"`
	LastReloadedAt time.Time `json:"lastReloadedAt"`
}

// WatchlistReloader is the subset of internal/watchlist's Store the
// management API depends on. Kept as an interface here so this package
// never imports internal/watchlist directly, avoiding an import cycle
// through internal/orchestrator.
type WatchlistReloader interface {
	Reload(ctx context.Context) error
	Status() WatchlistStatus
}

// CacheClearer is the subset of internal/cache's Cache the management API
// depends on.
type CacheClearer interface {
	Clear()
}

// Server is the management API server.
type Server struct {
	cfg          *config.Config
	startTime    time.Time
	metrics      *metrics.Metrics
	watchlist    WatchlistReloader // nil = watchlist endpoints return 503
	cache        CacheClearer      // nil = clear_cache returns 503
	token        string            // bearer token for auth; empty = no auth
	statsLimiter *rate.Limiter
	log          *logger.Logger
}

// New creates a management server.
func New(cfg *config.Config, m *metrics.Metrics, watchlist WatchlistReloader, cache CacheClearer, log *logger.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		startTime: time.Now(),
		metrics:   m,
		watchlist: watchlist,
		cache:     cache,
		token:     cfg.ManagementToken,
		// /stats recomputes min/mean/max latency across every stage/tier;
		// cap it well below anything a health-check loop would trip.
		statsLimiter: rate.NewLimiter(rate.Limit(5), 10),
		log:          log,
	}
	if s.token != "" {
		s.log.Info("auth_enabled", "bearer token authentication enabled")
	}
	return s
}

// Handler returns the HTTP handler for the management API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/stats/reset", s.handleResetStats)
	mux.HandleFunc("/watchlist/status", s.handleWatchlistStatus)
	mux.HandleFunc("/watchlist/reload", s.handleWatchlistReload)
	mux.HandleFunc("/cache/clear", s.handleCacheClear)
	return s.authMiddleware(mux)
}

// authMiddleware checks for a valid Bearer token if one is configured.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			next.ServeHTTP(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(auth, prefix) ||
			subtle.ConstantTimeCompare([]byte(strings.TrimSpace(auth[len(prefix):])), []byte(s.token)) != 1 {
			s.log.Warn("unauthorized", fmt.Sprintf("rejected request from %s to %s", r.RemoteAddr, r.URL.Path))
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	type response struct {
		Status string `json:"status"`
		Uptime string `json:"uptime"`
	}
	status := "ok"
	if s.watchlist != nil && !s.watchlist.Status().Loaded {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, response{
		Status: status,
		Uptime: time.Since(s.startTime).Round(time.Second).String(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil {
		http.Error(w, "metrics not enabled", http.StatusServiceUnavailable)
		return
	}
	if !s.statsLimiter.Allow() {
		http.Error(w, "rate limit exceeded, retry shortly", http.StatusTooManyRequests)
		return
	}
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

func (s *Server) handleResetStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	if s.metrics == nil {
		http.Error(w, "metrics not enabled", http.StatusServiceUnavailable)
		return
	}
	s.metrics.Reset()
	s.log.Info("stats_reset", "processing statistics reset via admin API")
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleWatchlistStatus(w http.ResponseWriter, _ *http.Request) {
	if s.watchlist == nil {
		http.Error(w, "watchlist not configured", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.watchlist.Status())
}

func (s *Server) handleWatchlistReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	if s.watchlist == nil {
		http.Error(w, "watchlist not configured", http.StatusServiceUnavailable)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()
	if err := s.watchlist.Reload(ctx); err != nil {
		s.log.Errorf("watchlist_reload_failed", "reload failed: %v", err)
		http.Error(w, fmt.Sprintf("reload failed: %v", err), http.StatusInternalServerError)
		return
	}
	s.log.Info("watchlist_reloaded", "watchlist reloaded via admin API")
	writeJSON(w, http.StatusOK, s.watchlist.Status())
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	if s.cache == nil {
		http.Error(w, "cache not configured", http.StatusServiceUnavailable)
		return
	}
	s.cache.Clear()
	s.log.Info("cache_cleared", "bounded cache cleared via admin API")
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort; client disconnects are not actionable
}

// ListenAndServe starts the management HTTP server.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.BindAddress, s.cfg.ManagementPort)
	s.log.Infof("listening", "management API listening on %s", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}
