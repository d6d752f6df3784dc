package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	mcotel "github.com/Strob0t/missioncontrol/internal/adapter/otel"
	"github.com/Strob0t/missioncontrol/internal/domain/agent"
	"github.com/Strob0t/missioncontrol/internal/domain/mirror"
	"github.com/Strob0t/missioncontrol/internal/port/statestore"
)

// MirrorInput describes one reply that may be mirrored.
type MirrorInput struct {
	// Target is the session the message went to; nil when it could not be
	// resolved.
	Target      *agent.Session
	SessionID   string
	ActionLabel string
	SentMessage string
	Reply       string
}

// MirrorService forwards subagent replies to the main session, at most once
// per cooldown per session and never twice for the same exchange within the
// dedupe window.
type MirrorService struct {
	mu      sync.Mutex
	store   statestore.Store
	main    MainSender
	policy  mirror.Policy
	events  *EventSink
	metrics *mcotel.Metrics
	now     func() time.Time
}

// NewMirrorService creates a MirrorService. events and metrics may be nil.
func NewMirrorService(store statestore.Store, main MainSender, policy mirror.Policy, events *EventSink, metrics *mcotel.Metrics) *MirrorService {
	return &MirrorService{
		store:   store,
		main:    main,
		policy:  policy,
		events:  events,
		metrics: metrics,
		now:     time.Now,
	}
}

// MirrorIfApplicable mirrors the exchange when the target is a subagent and
// the cooldown and dedupe checks pass. Outcomes, including failures, are
// reported in the result. State is only written after a successful forward.
func (s *MirrorService) MirrorIfApplicable(ctx context.Context, in MirrorInput) mirror.Result {
	if in.Target == nil || !agent.IsSubagentKey(in.Target.Key) {
		s.metrics.RecordMirror(ctx, "not-subagent")
		return mirror.Result{SkippedReason: mirror.ReasonNotSubagent}
	}

	summary := mirror.Summary(mirror.SessionLabel(in.Target), in.ActionLabel, in.SentMessage, in.Reply)
	sessionID := strings.TrimSpace(in.SessionID)
	fingerprint := mirror.Fingerprint(in.ActionLabel, in.SentMessage, in.Reply)

	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.load(ctx)
	now := s.now()
	if reason, ok := state.Check(sessionID, fingerprint, now, s.policy); !ok {
		s.metrics.RecordMirror(ctx, "skipped")
		slog.Debug("mirror skipped", "session_id", sessionID, "reason", reason)
		return mirror.Result{SkippedReason: reason}
	}

	reply, err := s.main.SendToMain(ctx, summary)
	if err != nil {
		s.metrics.RecordMirror(ctx, "failed")
		slog.Warn("mirror to main session failed", "session_id", sessionID, "error", err)
		return mirror.Result{
			Attempted:      true,
			SkippedReason:  err.Error(),
			SummaryMessage: summary,
		}
	}

	state.Record(sessionID, fingerprint, now)
	s.save(ctx, state)

	res := mirror.Result{
		Attempted:      true,
		Mirrored:       true,
		SummaryMessage: summary,
		MainSessionID:  reply.SessionID,
		MainReply:      reply.Reply,
	}
	s.metrics.RecordMirror(ctx, "mirrored")
	s.events.MirrorCompleted(ctx, in, res)
	slog.Info("subagent reply mirrored", "session_id", sessionID, "main_session_id", reply.SessionID, "action", in.ActionLabel)
	return res
}

// load reads the mirror state. Unreadable or corrupt state starts over
// empty, which at worst re-allows one mirror.
func (s *MirrorService) load(ctx context.Context) mirror.State {
	data, ok, err := s.store.Load(ctx, statestore.MirrorState)
	if err != nil {
		slog.Warn("load mirror state", "error", err)
		return mirror.NewState()
	}
	if !ok {
		return mirror.NewState()
	}
	state, err := mirror.Decode(data)
	if err != nil {
		slog.Warn("decode mirror state", "error", err)
		return mirror.NewState()
	}
	return state
}

func (s *MirrorService) save(ctx context.Context, state mirror.State) {
	data, err := state.Encode()
	if err == nil {
		err = s.store.Save(ctx, statestore.MirrorState, data)
	}
	if err != nil {
		slog.Error("save mirror state", "error", err)
	}
}
