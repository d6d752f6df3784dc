package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Strob0t/missioncontrol/internal/config"
	"github.com/Strob0t/missioncontrol/internal/domain/agent"
	"github.com/Strob0t/missioncontrol/internal/domain/watchdog"
	"github.com/Strob0t/missioncontrol/internal/port/runtime"
)

var errBoom = errors.New("boom")

// testNow is the fixed instant most service tests run at.
var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// clock is a settable time source.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock { return &clock{t: testNow} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// memStore is an in-memory statestore.Store.
type memStore struct {
	mu      sync.Mutex
	docs    map[string][]byte
	saves   int
	loadErr error
}

func newMemStore() *memStore { return &memStore{docs: make(map[string][]byte)} }

func (m *memStore) Load(_ context.Context, name string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, false, m.loadErr
	}
	data, ok := m.docs[name]
	return data, ok, nil
}

func (m *memStore) Save(_ context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[name] = append([]byte(nil), data...)
	m.saves++
	return nil
}

func (m *memStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// fakeSender records messages and answers with a fixed reply.
type fakeSender struct {
	mu     sync.Mutex
	calls  []runtime.SendRequest
	reply  string
	queued bool
	err    error
}

func (f *fakeSender) Send(_ context.Context, req runtime.SendRequest) (runtime.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return runtime.SendResult{}, f.err
	}
	return runtime.SendResult{Reply: f.reply, Queued: f.queued}, nil
}

func (f *fakeSender) sent() []runtime.SendRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]runtime.SendRequest(nil), f.calls...)
}

// fakeSpawner accepts every spawn unless err or resp say otherwise.
type fakeSpawner struct {
	mu       sync.Mutex
	spawns   []watchdog.RequeuePayload
	patches  []string
	resp     runtime.SpawnResponse
	err      error
	patchErr error
}

func (f *fakeSpawner) Spawn(_ context.Context, p watchdog.RequeuePayload) (runtime.SpawnResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spawns = append(f.spawns, p)
	if f.err != nil {
		return runtime.SpawnResponse{}, f.err
	}
	if f.resp.RunID == "" && f.resp.Status == "" {
		return runtime.SpawnResponse{RunID: "run-new", Status: "accepted"}, nil
	}
	return f.resp, nil
}

func (f *fakeSpawner) PatchSessionModel(_ context.Context, sessionKey, model string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patches = append(f.patches, sessionKey+"="+model)
	return f.patchErr
}

func (f *fakeSpawner) spawnCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.spawns)
}

type fakeSessions struct {
	sessions []agent.Session
	err      error
}

func (f *fakeSessions) ListActiveSessions(_ context.Context, _ int) ([]agent.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	return append([]agent.Session(nil), f.sessions...), nil
}

type fakeRuns struct {
	runs []agent.Run
	err  error
}

func (f *fakeRuns) ListRuns(_ context.Context) ([]agent.Run, error) {
	if f.err != nil {
		return nil, f.err
	}
	return append([]agent.Run(nil), f.runs...), nil
}

// fakeMain records notes forwarded to the main session.
type fakeMain struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (f *fakeMain) SendToMain(_ context.Context, message string) (MainReply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return MainReply{}, f.err
	}
	f.messages = append(f.messages, message)
	return MainReply{SessionID: "main-sid", Reply: "noted"}, nil
}

func (f *fakeMain) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...)
}

type fakeTranscripts struct {
	messages map[string][]agent.Message
	model    string
	err      error
}

func (f *fakeTranscripts) ReadMessages(_ context.Context, s agent.Session) ([]agent.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.messages[s.Key], nil
}

func (f *fakeTranscripts) ReadModel(_ context.Context, _ agent.Session) string {
	return f.model
}

// fakeBroadcaster records event types.
type fakeBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeBroadcaster) BroadcastEvent(_ context.Context, eventType string, _ any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
}

func (f *fakeBroadcaster) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func testWatchdogConfig() config.Watchdog {
	return config.Watchdog{
		StalledThreshold: 20 * time.Minute,
		ScanCooldown:     60 * time.Second,
		RetryCooldown:    30 * time.Minute,
		StatusTimeout:    5 * time.Second,
	}
}

// stalledRun is a running subagent run whose last heartbeat was age ago.
func stalledRun(id string, age time.Duration) agent.Run {
	return agent.Run{
		RunID:               id,
		ChildSessionKey:     "agent:main:subagent:" + id,
		RequesterSessionKey: agent.MainSessionKey,
		Label:               "Nightly " + id,
		Task:                "Summarize the overnight build failures",
		StartedAt:           testNow.Add(-age).UnixMilli(),
		Signals:             agent.Signals{Running: true},
	}
}

func newTestWatchdog(store *memStore, spawner *fakeSpawner, main *fakeMain, c *clock) *WatchdogService {
	svc := NewWatchdogService(WatchdogDeps{
		Runs:     &fakeRuns{},
		Store:    store,
		Requeuer: NewRequeuer(spawner),
		Main:     main,
	}, testWatchdogConfig())
	svc.now = c.Now
	return svc
}
