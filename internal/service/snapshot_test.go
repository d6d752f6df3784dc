package service

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/Strob0t/missioncontrol/internal/config"
	"github.com/Strob0t/missioncontrol/internal/domain/agent"
)

func testSnapshotConfig() config.Snapshot {
	return config.Snapshot{
		MaxColumns:    3,
		ActiveMinutes: 360,
		RecentAge:     20 * time.Minute,
		IdleAge:       2 * time.Hour,
		MainKey:       agent.MainSessionKey,
	}
}

func session(key, id string, age time.Duration) agent.Session {
	updated := testNow.Add(-age).UnixMilli()
	ageMs := age.Milliseconds()
	return agent.Session{Key: key, SessionID: id, UpdatedAt: updated, AgeMs: &ageMs}
}

func newTestSnapshot(sessions *fakeSessions, runs *fakeRuns, wd *WatchdogService) *SnapshotService {
	svc := NewSnapshotService(sessions, runs, &fakeTranscripts{model: "openai/gpt-5"}, wd, nil, testSnapshotConfig())
	svc.now = func() time.Time { return testNow }
	return svc
}

func columnKeys(snap agent.Snapshot) []string {
	keys := make([]string, 0, len(snap.Agents))
	for _, c := range snap.Agents {
		keys = append(keys, c.SessionKey)
	}
	return keys
}

func TestSnapshotBuild_Limitations(t *testing.T) {
	tests := []struct {
		name     string
		sessions *fakeSessions
		runs     *fakeRuns
		want     []string
	}{
		{
			name:     "sessions unavailable",
			sessions: &fakeSessions{err: errBoom},
			runs:     &fakeRuns{runs: []agent.Run{{ChildSessionKey: "agent:main:subagent:abc", CreatedAt: testNow.UnixMilli()}}},
			want:     []string{LimitationSessions},
		},
		{
			name:     "runs unavailable",
			sessions: &fakeSessions{sessions: []agent.Session{session(agent.MainSessionKey, "main-sid", time.Minute)}},
			runs:     &fakeRuns{err: errBoom},
			want:     []string{LimitationRuns},
		},
		{
			name:     "nothing found",
			sessions: &fakeSessions{},
			runs:     &fakeRuns{},
			want:     []string{LimitationEmpty},
		},
		{
			name:     "everything unavailable",
			sessions: &fakeSessions{err: errBoom},
			runs:     &fakeRuns{err: errBoom},
			want:     []string{LimitationSessions, LimitationRuns, LimitationEmpty},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := newTestSnapshot(tt.sessions, tt.runs, nil).Build(context.Background())
			if !slices.Equal(snap.Limitations, tt.want) {
				t.Errorf("limitations = %v, want %v", snap.Limitations, tt.want)
			}
			if snap.Agents == nil {
				t.Error("agents must never be nil")
			}
			if snap.LastUpdated != "2026-03-14T12:00:00.000Z" {
				t.Errorf("lastUpdated = %s", snap.LastUpdated)
			}
		})
	}
}

func TestSnapshotBuild_MainAlwaysVisible(t *testing.T) {
	sessions := &fakeSessions{sessions: []agent.Session{
		session(agent.MainSessionKey, "main-sid", 3*time.Hour),
		session("agent:main:subagent:aaa", "s-a", time.Minute),
		session("agent:main:subagent:bbb", "s-b", 2*time.Minute),
		session("agent:main:subagent:ccc", "s-c", 3*time.Minute),
		session("agent:main:subagent:ddd", "s-d", 4*time.Minute),
		session("agent:main:run:xyz", "s-run", 0),
		session("agent:main:cron:nightly", "s-cron", 0),
		session("telegram:group:1", "s-tg", 0),
	}}

	snap := newTestSnapshot(sessions, &fakeRuns{}, nil).Build(context.Background())

	want := []string{
		agent.MainSessionKey,
		"agent:main:subagent:aaa",
		"agent:main:subagent:bbb",
		"agent:main:subagent:ccc",
	}
	if got := columnKeys(snap); !slices.Equal(got, want) {
		t.Fatalf("columns = %v, want %v", got, want)
	}
	main := snap.Agents[0]
	if main.Status != agent.StatusCompleted || main.Runtime != "agent" || !main.CanSend {
		t.Errorf("main column = %+v", main)
	}
	if main.Model != "openai/gpt-5" {
		t.Errorf("model should come from the transcript, got %q", main.Model)
	}
}

func TestSnapshotBuild_OrphanRuns(t *testing.T) {
	sessions := &fakeSessions{sessions: []agent.Session{session(agent.MainSessionKey, "main-sid", time.Minute)}}
	runs := &fakeRuns{runs: []agent.Run{
		{
			RunID:           "old",
			ChildSessionKey: "agent:main:subagent:gone",
			Label:           "first attempt",
			StartedAt:       testNow.Add(-3 * time.Hour).UnixMilli(),
			EndedAt:         testNow.Add(-2 * time.Hour).UnixMilli(),
			Signals:         agent.Signals{Failed: true},
		},
		{
			RunID:           "new",
			ChildSessionKey: "agent:main:subagent:gone",
			Label:           "second attempt",
			Model:           "anthropic/claude-haiku",
			StartedAt:       testNow.Add(-time.Hour).UnixMilli(),
			EndedAt:         testNow.Add(-30 * time.Minute).UnixMilli(),
			Signals:         agent.Signals{Completed: true},
		},
	}}

	snap := newTestSnapshot(sessions, runs, nil).Build(context.Background())

	if len(snap.Agents) != 2 {
		t.Fatalf("columns = %v", columnKeys(snap))
	}
	orphan := snap.Agents[1]
	if orphan.Source != agent.SourceSubagentRun || orphan.Runtime != "subagent" {
		t.Errorf("orphan source/runtime = %s/%s", orphan.Source, orphan.Runtime)
	}
	if orphan.Status != agent.StatusCompleted || orphan.Model != "anthropic/claude-haiku" {
		t.Errorf("orphan should reflect the latest run, got %+v", orphan)
	}
	if orphan.CanSend || len(orphan.Messages) != 0 {
		t.Errorf("orphan must not be addressable: %+v", orphan)
	}
	if orphan.LastActivity != agent.ISOMillis(testNow.Add(-30*time.Minute).UnixMilli()) {
		t.Errorf("lastActivity = %s", orphan.LastActivity)
	}
}

func TestSnapshotBuild_WatchdogLimitation(t *testing.T) {
	spawner := &fakeSpawner{}
	c := newClock()
	wd := newTestWatchdog(newMemStore(), spawner, &fakeMain{}, c)

	sessions := &fakeSessions{sessions: []agent.Session{session(agent.MainSessionKey, "main-sid", time.Minute)}}
	runs := &fakeRuns{runs: []agent.Run{stalledRun("r1", time.Hour)}}

	snap := newTestSnapshot(sessions, runs, wd).Build(context.Background())
	wd.Wait()

	want := "Watchdog retried 1 stalled run and posted an update to Main Agent."
	if !slices.Contains(snap.Limitations, want) {
		t.Errorf("limitations = %v", snap.Limitations)
	}
	if spawner.spawnCount() != 1 {
		t.Errorf("spawns = %d", spawner.spawnCount())
	}
}

func TestSnapshotBuild_TranscriptErrorIsNotFatal(t *testing.T) {
	sessions := &fakeSessions{sessions: []agent.Session{session("agent:main:subagent:aaa", "s-a", time.Minute)}}
	svc := NewSnapshotService(sessions, &fakeRuns{}, &fakeTranscripts{err: errBoom}, nil, nil, testSnapshotConfig())
	svc.now = func() time.Time { return testNow }

	snap := svc.Build(context.Background())

	if len(snap.Agents) != 1 || snap.Agents[0].Messages == nil {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if len(snap.Limitations) != 0 {
		t.Errorf("limitations = %v", snap.Limitations)
	}
}
