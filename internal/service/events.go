package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/Strob0t/missioncontrol/internal/domain/agent"
	"github.com/Strob0t/missioncontrol/internal/domain/mirror"
	"github.com/Strob0t/missioncontrol/internal/domain/watchdog"
	"github.com/Strob0t/missioncontrol/internal/port/broadcast"
	"github.com/Strob0t/missioncontrol/internal/port/messagequeue"
)

// EventSink fans service events out to dashboard clients and the message
// bus. A nil sink, or nil targets, drop events.
type EventSink struct {
	hub    broadcast.Broadcaster
	queue  messagequeue.Publisher
	prefix string
}

// NewEventSink creates a sink. hub and queue may be nil.
func NewEventSink(hub broadcast.Broadcaster, queue messagequeue.Publisher, prefix string) *EventSink {
	return &EventSink{hub: hub, queue: queue, prefix: prefix}
}

// SnapshotUpdated pushes a fresh snapshot to dashboard clients.
func (e *EventSink) SnapshotUpdated(ctx context.Context, snap agent.Snapshot) {
	if e == nil || e.hub == nil {
		return
	}
	e.hub.BroadcastEvent(ctx, broadcast.EventSnapshotUpdated, snap)
}

// WatchdogCompleted announces a finished (non-skipped) scan.
func (e *EventSink) WatchdogCompleted(ctx context.Context, res watchdog.Result, dryRun bool) {
	if e == nil {
		return
	}
	if e.hub != nil {
		e.hub.BroadcastEvent(ctx, broadcast.EventWatchdogCompleted, res)
	}
	e.publish(ctx, messagequeue.SubjectWatchdogCompleted, messagequeue.WatchdogCompletedPayload{
		CheckedAt:   res.CheckedAt,
		ScannedRuns: res.ScannedRuns,
		StalledRuns: res.StalledRuns,
		Requested:   res.Requested(),
		Failed:      res.FailedCount(),
		DryRun:      dryRun,
	})
}

// MirrorCompleted announces a summary forwarded to the main session.
func (e *EventSink) MirrorCompleted(ctx context.Context, in MirrorInput, res mirror.Result) {
	if e == nil {
		return
	}
	if e.hub != nil {
		e.hub.BroadcastEvent(ctx, broadcast.EventMirrorCompleted, res)
	}
	key := ""
	if in.Target != nil {
		key = in.Target.Key
	}
	e.publish(ctx, messagequeue.SubjectMirrorCompleted, messagequeue.MirrorCompletedPayload{
		SessionID:     in.SessionID,
		SessionKey:    key,
		MainSessionID: res.MainSessionID,
		Action:        in.ActionLabel,
	})
}

func (e *EventSink) publish(ctx context.Context, suffix string, payload any) {
	if e.queue == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal event", "subject", suffix, "error", err)
		return
	}
	subject := messagequeue.Subject(e.prefix, suffix)
	if err := e.queue.Publish(ctx, subject, data); err != nil {
		slog.Warn("publish event failed", "subject", subject, "error", err)
	}
}
