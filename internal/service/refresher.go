package service

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Strob0t/missioncontrol/internal/domain/agent"
)

const refreshDebounce = 500 * time.Millisecond

// Refresher rebuilds the snapshot when transcripts or the run ledger change
// and pushes it to dashboard clients. A ticker covers changes the file
// watcher misses.
type Refresher struct {
	snapshots *SnapshotService
	events    *EventSink
	sessions  string
	dirs      []string
	files     map[string]bool
	interval  time.Duration

	mu     sync.RWMutex
	latest agent.Snapshot
	have   bool
}

// NewRefresher watches sessionsDir and the directory of runsFile.
func NewRefresher(snapshots *SnapshotService, events *EventSink, sessionsDir, runsFile string, interval time.Duration) *Refresher {
	r := &Refresher{
		snapshots: snapshots,
		events:    events,
		files:     make(map[string]bool),
		interval:  interval,
	}
	if sessionsDir != "" {
		r.sessions = filepath.Clean(sessionsDir)
		r.dirs = append(r.dirs, r.sessions)
	}
	if runsFile != "" {
		runsFile = filepath.Clean(runsFile)
		r.dirs = append(r.dirs, filepath.Dir(runsFile))
		r.files[runsFile] = true
	}
	return r
}

// Latest returns the last pushed snapshot.
func (r *Refresher) Latest() (agent.Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest, r.have
}

// Refresh builds a snapshot, remembers it and pushes it to clients.
func (r *Refresher) Refresh(ctx context.Context) agent.Snapshot {
	snap := r.snapshots.Build(ctx)
	r.mu.Lock()
	r.latest, r.have = snap, true
	r.mu.Unlock()
	r.events.SnapshotUpdated(ctx, snap)
	return snap
}

// Run blocks until ctx is done. Watch failures degrade to ticker-only
// refreshes.
func (r *Refresher) Run(ctx context.Context) {
	var events <-chan fsnotify.Event
	var errs <-chan error

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("file watcher unavailable, using periodic refresh only", "error", err)
	} else {
		defer watcher.Close()
		for _, dir := range r.dirs {
			if err := watcher.Add(dir); err != nil {
				slog.Warn("cannot watch directory", "dir", dir, "error", err)
				continue
			}
			slog.Debug("watching directory", "dir", dir)
		}
		events, errs = watcher.Events, watcher.Errors
	}

	var tick <-chan time.Time
	if r.interval > 0 {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	debounce := time.NewTimer(refreshDebounce)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if r.relevant(ev) {
				debounce.Reset(refreshDebounce)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Warn("file watcher error", "error", err)
		case <-debounce.C:
			r.Refresh(ctx)
		case <-tick:
			r.Refresh(ctx)
		}
	}
}

// relevant keeps transcript and index writes plus writes to the run ledger.
// Other files sharing the ledger's directory are ignored.
func (r *Refresher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
		return false
	}
	name := filepath.Clean(ev.Name)
	if r.files[name] {
		return true
	}
	if r.sessions != "" && filepath.Dir(name) == r.sessions {
		ext := filepath.Ext(name)
		return ext == ".jsonl" || ext == ".json"
	}
	return false
}
