package service

import (
	"context"
	"log/slog"
	"strings"

	mcotel "github.com/Strob0t/missioncontrol/internal/adapter/otel"
	"github.com/Strob0t/missioncontrol/internal/domain/agent"
	"github.com/Strob0t/missioncontrol/internal/domain/mirror"
	"github.com/Strob0t/missioncontrol/internal/port/runtime"
)

// SendInput is a dashboard message to one session.
type SendInput struct {
	SessionID             string
	Message               string
	ActionLabel           string
	Thinking              runtime.Thinking
	AcceptTimeoutAsQueued bool
}

// SendOutcome is the session's reply plus what happened to its mirror.
type SendOutcome struct {
	Reply  string        `json:"reply"`
	Queued bool          `json:"queued,omitempty"`
	Mirror mirror.Result `json:"mirror"`
}

// MessagingService sends dashboard messages to sessions and mirrors
// subagent replies to the main session.
type MessagingService struct {
	sender        runtime.Sender
	sessions      runtime.SessionLister
	mirror        *MirrorService
	metrics       *mcotel.Metrics
	activeMinutes int
}

// NewMessagingService creates a MessagingService.
func NewMessagingService(sender runtime.Sender, sessions runtime.SessionLister, mirror *MirrorService, metrics *mcotel.Metrics, activeMinutes int) *MessagingService {
	return &MessagingService{
		sender:        sender,
		sessions:      sessions,
		mirror:        mirror,
		metrics:       metrics,
		activeMinutes: activeMinutes,
	}
}

// SendWithMirror delivers the message, then mirrors the reply when the
// target is a subagent. Only the send itself can fail the call.
func (s *MessagingService) SendWithMirror(ctx context.Context, in SendInput) (SendOutcome, error) {
	sessionID := strings.TrimSpace(in.SessionID)
	action := in.ActionLabel
	if action == "" {
		action = "message"
	}

	ctx, span := mcotel.StartSendSpan(ctx, sessionID, action)
	defer span.End()

	res, err := s.sender.Send(ctx, runtime.SendRequest{
		SessionID:             sessionID,
		Message:               in.Message,
		Thinking:              in.Thinking,
		AcceptTimeoutAsQueued: in.AcceptTimeoutAsQueued,
	})
	if err != nil {
		span.RecordError(err)
		s.metrics.RecordSend(ctx, "failed")
		return SendOutcome{}, err
	}
	s.metrics.RecordSend(ctx, "ok")
	out := SendOutcome{Reply: res.Reply, Queued: res.Queued}

	sessions, err := s.sessions.ListActiveSessions(ctx, s.activeMinutes)
	if err != nil {
		slog.Warn("load sessions for mirror", "session_id", sessionID, "error", err)
		out.Mirror = mirror.Result{SkippedReason: err.Error()}
		return out, nil
	}

	var target *agent.Session
	if sess, ok := agent.FindBySessionID(sessions, sessionID); ok {
		target = &sess
	}
	out.Mirror = s.mirror.MirrorIfApplicable(ctx, MirrorInput{
		Target:      target,
		SessionID:   sessionID,
		ActionLabel: action,
		SentMessage: in.Message,
		Reply:       res.Reply,
	})
	return out, nil
}
