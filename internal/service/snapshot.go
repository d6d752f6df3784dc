package service

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	mcotel "github.com/Strob0t/missioncontrol/internal/adapter/otel"
	"github.com/Strob0t/missioncontrol/internal/config"
	"github.com/Strob0t/missioncontrol/internal/domain/agent"
	"github.com/Strob0t/missioncontrol/internal/domain/watchdog"
	"github.com/Strob0t/missioncontrol/internal/port/runtime"
)

// Snapshot limitations shown to the dashboard.
const (
	LimitationSessions = "Could not load active OpenClaw sessions metadata."
	LimitationRuns     = "Could not read subagent run metadata from ~/.openclaw/subagents/runs.json."
	LimitationEmpty    = "No active agent/subagent sessions were found in local OpenClaw artifacts."
)

// TranscriptReader reads a session's recent messages and declared model.
type TranscriptReader interface {
	ReadMessages(ctx context.Context, s agent.Session) ([]agent.Message, error)
	ReadModel(ctx context.Context, s agent.Session) string
}

// SnapshotService assembles the dashboard view: one column per visible
// session plus one per subagent run whose session is no longer listed.
type SnapshotService struct {
	sessions    runtime.SessionLister
	runs        runtime.RunLister
	transcripts TranscriptReader
	watchdog    *WatchdogService
	metrics     *mcotel.Metrics
	cfg         config.Snapshot
	now         func() time.Time
}

// NewSnapshotService creates a SnapshotService. watchdog and metrics may be nil.
func NewSnapshotService(
	sessions runtime.SessionLister,
	runs runtime.RunLister,
	transcripts TranscriptReader,
	watchdog *WatchdogService,
	metrics *mcotel.Metrics,
	cfg config.Snapshot,
) *SnapshotService {
	return &SnapshotService{
		sessions:    sessions,
		runs:        runs,
		transcripts: transcripts,
		watchdog:    watchdog,
		metrics:     metrics,
		cfg:         cfg,
		now:         time.Now,
	}
}

// Build never fails: unreadable sources become limitations.
func (s *SnapshotService) Build(ctx context.Context) agent.Snapshot {
	ctx, span := mcotel.StartSnapshotSpan(ctx)
	defer span.End()
	start := s.now()

	var (
		sessions []agent.Session
		runs     []agent.Run
		sessErr  error
		runErr   error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sessions, sessErr = s.sessions.ListActiveSessions(gctx, s.cfg.ActiveMinutes)
		return nil
	})
	g.Go(func() error {
		runs, runErr = s.runs.ListRuns(gctx)
		return nil
	})
	_ = g.Wait()

	limitations := []string{}
	if sessErr != nil {
		slog.Error("load sessions for snapshot", "error", sessErr)
		limitations = append(limitations, LimitationSessions)
		sessions = nil
	}
	if runErr != nil {
		slog.Error("load subagent runs for snapshot", "error", runErr)
		limitations = append(limitations, LimitationRuns)
		runs = nil
	} else if s.watchdog != nil {
		res := s.watchdog.Scan(ctx, runs, watchdog.Options{})
		if n := res.Requested(); n > 0 {
			limitations = append(limitations, watchdog.Limitation(n))
		}
	}

	now := s.now()
	windows := agent.Windows{RecentAge: s.cfg.RecentAge, IdleAge: s.cfg.IdleAge}
	runsByKey := agent.IndexRunsByChildKey(runs)

	columns := make([]agent.Column, 0)
	seen := make(map[string]bool)
	for _, sess := range s.visibleSessions(sessions) {
		columns = append(columns, s.sessionColumn(ctx, sess, runsByKey, now, windows))
		seen[sess.Key] = true
	}

	for _, r := range runs {
		if r.ChildSessionKey == "" || seen[r.ChildSessionKey] {
			continue
		}
		seen[r.ChildSessionKey] = true
		columns = append(columns, orphanColumn(runsByKey[r.ChildSessionKey], now, windows))
	}

	if len(columns) == 0 {
		limitations = append(limitations, LimitationEmpty)
	}

	s.metrics.RecordSnapshot(ctx, s.now().Sub(start))
	return agent.Snapshot{
		Agents:      columns,
		LastUpdated: agent.ISOMillis(now.UnixMilli()),
		Limitations: limitations,
	}
}

// visibleSessions keeps agent sessions (not per-run or cron sub-sessions),
// newest first, capped at MaxColumns with the main session always included.
func (s *SnapshotService) visibleSessions(sessions []agent.Session) []agent.Session {
	base := make([]agent.Session, 0, len(sessions))
	for _, sess := range sessions {
		if agent.IsAgentKey(sess.Key) && !agent.IsEphemeralKey(sess.Key) {
			base = append(base, sess)
		}
	}
	agent.SortByRecency(base)

	limit := min(s.cfg.MaxColumns, len(base))
	visible := append([]agent.Session(nil), base[:limit]...)

	mainKey := s.cfg.MainKey
	if mainKey == "" {
		mainKey = agent.MainSessionKey
	}
	for _, sess := range visible {
		if sess.Key == mainKey {
			return visible
		}
	}
	for _, sess := range base[limit:] {
		if sess.Key == mainKey {
			return append([]agent.Session{sess}, visible...)
		}
	}
	return visible
}

func (s *SnapshotService) sessionColumn(ctx context.Context, sess agent.Session, runsByKey map[string]agent.Run, now time.Time, w agent.Windows) agent.Column {
	var run *agent.Run
	if r, ok := runsByKey[sess.Key]; ok {
		run = &r
	}

	messages, err := s.transcripts.ReadMessages(ctx, sess)
	if err != nil {
		slog.Warn("read transcript", "session_key", sess.Key, "error", err)
		messages = []agent.Message{}
	}
	model := sess.Model
	if model == "" {
		model = s.transcripts.ReadModel(ctx, sess)
	}

	id := sess.SessionID
	if id == "" {
		id = sess.Key
	}
	col := agent.Column{
		ID:             id,
		Name:           agent.DisplayName(sess.Key, run),
		SessionShortID: agent.ShortID(sess.Key),
		SessionID:      sess.SessionID,
		SessionKey:     sess.Key,
		Status:         agent.DeriveStatus(sess, runsByKey, now, w),
		Model:          model,
		Runtime:        agent.Runtime(sess.Key),
		Messages:       messages,
		CanSend:        sess.SessionID != "",
		Source:         agent.SourceSession,
	}
	if ms, ok := agent.LastActivityMs(sess.UpdatedAt, messages); ok {
		col.LastActivity = agent.ISOMillis(ms)
	}
	return col
}

func orphanColumn(r agent.Run, now time.Time, w agent.Windows) agent.Column {
	col := agent.Column{
		ID:             r.ChildSessionKey,
		Name:           agent.DisplayName(r.ChildSessionKey, &r),
		SessionShortID: agent.ShortID(r.ChildSessionKey),
		SessionKey:     r.ChildSessionKey,
		Status:         agent.RunStatus(r, now, w),
		Model:          r.Model,
		Runtime:        "subagent",
		Messages:       []agent.Message{},
		Source:         agent.SourceSubagentRun,
	}
	for _, ts := range []int64{r.EndedAt, r.StartedAt, r.CreatedAt} {
		if ts != 0 {
			col.LastActivity = agent.ISOMillis(ts)
			break
		}
	}
	return col
}
