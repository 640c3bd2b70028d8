// Package watchlist owns the process-wide WatchlistDoc store and its
// backing vector index: a bbolt-persisted document set, snapshot
// reload (atomic-replace or overlay), and an fsnotify-driven
// auto-reload watcher over the configured snapshot directory.
package watchlist

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.etcd.io/bbolt"

	"github.com/dariapavlova/sanctions-screen/internal/logger"
	"github.com/dariapavlova/sanctions-screen/internal/management"
	"github.com/dariapavlova/sanctions-screen/internal/vectorindex"
)

// docsBucket is the bbolt bucket holding every persisted WatchlistDoc,
// keyed by doc_id.
var docsBucket = []byte("docs")

// Doc mirrors spec.md §3's WatchlistDoc entity.
type Doc struct {
	DocID      string            `json:"docId"`
	Text       string            `json:"text"`
	EntityType string            `json:"entityType"` // person, org, document
	Metadata   map[string]string `json:"metadata"`
}

// ReloadMode selects spec.md §4.I's two snapshot reload strategies.
type ReloadMode int

// Reload modes.
const (
	ModeAtomicReplace ReloadMode = iota
	ModeOverlay
)

// Store is the process-wide watchlist: a bbolt-backed document store
// plus the vector index built over it. Satisfies
// internal/management's WatchlistReloader interface.
type Store struct {
	db  *bbolt.DB
	ix  *vectorindex.Index
	log *logger.Logger

	snapshotDir string

	mu             sync.RWMutex
	loaded         bool
	version        string
	versionCounter int64
	lastReloadedAt time.Time

	watcher  *fsnotify.Watcher
	stopOnce sync.Once
	stopCh   chan struct{}
}

// Open opens (creating if absent) the bbolt doc store at dbPath and
// returns a Store ready for Reload. snapshotDir is where reload scans
// for snapshot files.
func Open(dbPath, snapshotDir string, log *logger.Logger) (*Store, error) {
	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open watchlist db %s: %w", dbPath, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(docsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init watchlist bucket: %w", err)
	}

	return &Store{
		db:          db,
		ix:          vectorindex.New(),
		log:         log,
		snapshotDir: snapshotDir,
		stopCh:      make(chan struct{}),
	}, nil
}

// Close releases the bbolt handle and stops the auto-reload watcher if
// one is running.
func (s *Store) Close() error {
	s.StopAutoReload()
	return s.db.Close()
}

// LoadFromDisk persists docs into bbolt (one transaction) and installs
// them into the vector index per mode, then marks the store loaded.
// This is the shared body behind Reload and initial startup load.
func (s *Store) LoadFromDisk(docs []Doc, mode ReloadMode) error {
	if err := s.persist(docs); err != nil {
		return err
	}

	vdocs := make([]vectorindex.Doc, 0, len(docs))
	for _, d := range docs {
		vdocs = append(vdocs, vectorindex.Doc{ID: d.DocID, Text: d.Text})
	}

	switch mode {
	case ModeOverlay:
		s.ix.Overlay(vdocs)
	default:
		s.ix.Load(vdocs)
	}

	s.mu.Lock()
	s.loaded = true
	s.version = s.newVersionLocked()
	s.lastReloadedAt = nowFunc()
	s.mu.Unlock()
	return nil
}

func (s *Store) persist(docs []Doc) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(docsBucket)
		for _, d := range docs {
			raw, err := json.Marshal(d)
			if err != nil {
				return fmt.Errorf("marshal doc %s: %w", d.DocID, err)
			}
			if err := b.Put([]byte(d.DocID), raw); err != nil {
				return fmt.Errorf("put doc %s: %w", d.DocID, err)
			}
		}
		return nil
	})
}

// Reload reads every *.json snapshot file in the configured snapshot
// directory, decodes its []Doc payload, and loads it via
// LoadFromDisk using atomic-replace semantics. Satisfies
// internal/management's WatchlistReloader interface.
func (s *Store) Reload(ctx context.Context) error {
	files, err := snapshotFiles(s.snapshotDir)
	if err != nil {
		return fmt.Errorf("list snapshot files: %w", err)
	}

	var all []Doc
	for _, f := range files {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		docs, err := readSnapshotFile(f)
		if err != nil {
			return fmt.Errorf("read snapshot %s: %w", f, err)
		}
		all = append(all, docs...)
	}

	if err := s.LoadFromDisk(all, ModeAtomicReplace); err != nil {
		return err
	}
	s.log.Infof("watchlist_reloaded", "reloaded %d documents from %d snapshot file(s)", len(all), len(files))
	return nil
}

// LoadPersisted restores the vector index from bbolt's on-disk docs
// without requiring a snapshot directory scan — used at process
// startup before any Reload has run.
func (s *Store) LoadPersisted() error {
	var docs []Doc
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(docsBucket)
		return b.ForEach(func(k, v []byte) error {
			var d Doc
			if err := json.Unmarshal(v, &d); err != nil {
				return fmt.Errorf("unmarshal doc %s: %w", k, err)
			}
			docs = append(docs, d)
			return nil
		})
	})
	if err != nil {
		return err
	}

	vdocs := make([]vectorindex.Doc, 0, len(docs))
	for _, d := range docs {
		vdocs = append(vdocs, vectorindex.Doc{ID: d.DocID, Text: d.Text})
	}
	s.ix.Load(vdocs)

	s.mu.Lock()
	s.loaded = len(docs) > 0
	s.version = s.newVersionLocked()
	s.lastReloadedAt = nowFunc()
	s.mu.Unlock()
	return nil
}

// Status satisfies internal/management's WatchlistReloader interface.
func (s *Store) Status() management.WatchlistStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return management.WatchlistStatus{
		Loaded:         s.loaded,
		EntryCount:     s.entryCountLocked(),
		Version:        s.version,
		SnapshotPath:   s.snapshotDir,
		LastReloadedAt: s.lastReloadedAt,
	}
}

func (s *Store) entryCountLocked() int {
	var n int
	_ = s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(docsBucket).Stats().KeyN
		return nil
	})
	return n
}

// Docs returns every persisted watchlist document. Used by
// internal/orchestrator to rebuild its tier-0 Aho-Corasick pattern
// index whenever the watchlist reloads.
func (s *Store) Docs() ([]Doc, error) {
	var docs []Doc
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(docsBucket)
		return b.ForEach(func(k, v []byte) error {
			var d Doc
			if err := json.Unmarshal(v, &d); err != nil {
				return fmt.Errorf("unmarshal doc %s: %w", k, err)
			}
			docs = append(docs, d)
			return nil
		})
	})
	return docs, err
}

// Search delegates to the underlying vector index (spec.md §4.I).
func (s *Store) Search(text string, k int) []vectorindex.Hit {
	return s.ix.Search(text, k)
}

// StartAutoReload watches the snapshot directory for file changes and
// triggers Reload on write/create events, per spec.md's
// fsnotify-driven auto-reload requirement. No-op if already running.
func (s *Store) StartAutoReload() error {
	if s.watcher != nil {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watchlist watcher: %w", err)
	}
	if err := w.Add(s.snapshotDir); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch snapshot dir %s: %w", s.snapshotDir, err)
	}
	s.watcher = w

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
				if err := s.Reload(ctx); err != nil {
					s.log.Errorf("watchlist_auto_reload_failed", "auto-reload failed: %v", err)
				}
				cancel()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.log.Errorf("watchlist_watch_error", "watcher error: %v", err)
			case <-s.stopCh:
				return
			}
		}
	}()
	return nil
}

// StopAutoReload stops the fsnotify watcher if one is running.
func (s *Store) StopAutoReload() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if s.watcher != nil {
			_ = s.watcher.Close()
		}
	})
}

func snapshotFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func readSnapshotFile(path string) ([]Doc, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var docs []Doc
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// nowFunc is overridable in tests.
var nowFunc = time.Now

// newVersionLocked returns a monotonically increasing version string.
// Not a content hash: the spec only requires a caller-visible marker
// that changes across reloads, not a deduplication key. Callers must
// hold s.mu for writing.
func (s *Store) newVersionLocked() string {
	s.versionCounter++
	return fmt.Sprintf("v%d-%d", s.versionCounter, nowFunc().Unix())
}
