package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Strob0t/missioncontrol/internal/domain/agent"
	"github.com/Strob0t/missioncontrol/internal/port/runtime"
)

// ErrNoMainSession is returned when no addressable main session is active.
var ErrNoMainSession = errors.New("could not locate an active Main Agent session for Mission Control messaging")

// FallbackSessions lists sessions from the runtime and falls back to a
// second source (the on-disk index) when the runtime cannot be queried.
type FallbackSessions struct {
	primary  runtime.SessionLister
	fallback runtime.SessionLister
}

var _ runtime.SessionLister = (*FallbackSessions)(nil)

// NewFallbackSessions composes two listers. fallback may be nil.
func NewFallbackSessions(primary, fallback runtime.SessionLister) *FallbackSessions {
	return &FallbackSessions{primary: primary, fallback: fallback}
}

// ListActiveSessions implements runtime.SessionLister.
func (f *FallbackSessions) ListActiveSessions(ctx context.Context, activeMinutes int) ([]agent.Session, error) {
	sessions, err := f.primary.ListActiveSessions(ctx, activeMinutes)
	if err == nil {
		return sessions, nil
	}
	if f.fallback == nil {
		return nil, err
	}
	slog.Warn("runtime session listing failed, falling back to sessions index", "error", err)

	sessions, fbErr := f.fallback.ListActiveSessions(ctx, activeMinutes)
	if fbErr != nil {
		return nil, fmt.Errorf("list sessions: %w", errors.Join(err, fbErr))
	}
	return sessions, nil
}

// MainReply is the main session's answer to a forwarded message.
type MainReply struct {
	SessionID string
	Reply     string
	Queued    bool
}

// MainSender forwards Mission Control notes to the main session.
type MainSender interface {
	SendToMain(ctx context.Context, message string) (MainReply, error)
}

// Budgets for notes forwarded to the main session.
const (
	mainSendTimeout     = 45 * time.Second
	mainSendExecTimeout = 60 * time.Second
)

// MainSession resolves the coordinating session and sends it notes with a
// minimal thinking budget. Timeouts count as queued.
type MainSession struct {
	sender        runtime.Sender
	sessions      runtime.SessionLister
	activeMinutes int
}

var _ MainSender = (*MainSession)(nil)

// NewMainSession creates a MainSession.
func NewMainSession(sender runtime.Sender, sessions runtime.SessionLister, activeMinutes int) *MainSession {
	return &MainSession{sender: sender, sessions: sessions, activeMinutes: activeMinutes}
}

// SendToMain implements MainSender.
func (m *MainSession) SendToMain(ctx context.Context, message string) (MainReply, error) {
	sessions, err := m.sessions.ListActiveSessions(ctx, m.activeMinutes)
	if err != nil {
		return MainReply{}, err
	}
	main, ok := agent.ResolveMainSession(sessions)
	if !ok {
		return MainReply{}, ErrNoMainSession
	}

	res, err := m.sender.Send(ctx, runtime.SendRequest{
		SessionID:             main.SessionID,
		Message:               message,
		Thinking:              runtime.ThinkingMinimal,
		Timeout:               mainSendTimeout,
		ExecTimeout:           mainSendExecTimeout,
		AcceptTimeoutAsQueued: true,
	})
	if err != nil {
		return MainReply{}, err
	}
	return MainReply{SessionID: main.SessionID, Reply: res.Reply, Queued: res.Queued}, nil
}
