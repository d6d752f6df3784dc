package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	mcotel "github.com/Strob0t/missioncontrol/internal/adapter/otel"
	"github.com/Strob0t/missioncontrol/internal/domain/agent"
	"github.com/Strob0t/missioncontrol/internal/domain/watchdog"
	"github.com/Strob0t/missioncontrol/internal/port/runtime"
)

// DryRunReply is the reply of a previewed requeue.
const DryRunReply = "Dry run only: requeue payload prepared (no retry run spawned)."

// RequeueOutcome describes a submitted or previewed replacement run.
type RequeueOutcome struct {
	DryRun         bool
	Requested      bool
	SummaryMessage string
	Reply          string
	NewRunID       string
	NewSessionKey  string
	CurrentState   string
	Payload        watchdog.RequeuePayload
}

// Requeuer replays a run's task in a fresh subagent session.
type Requeuer struct {
	spawner runtime.Spawner
	newID   func() string
}

// NewRequeuer creates a Requeuer.
func NewRequeuer(spawner runtime.Spawner) *Requeuer {
	return &Requeuer{spawner: spawner, newID: uuid.NewString}
}

// Requeue submits a replacement for run. In dry-run mode the payload is
// prepared and returned without contacting the runtime. A spawn response
// without a run id, or with a status outside the accepted set, is an error.
func (q *Requeuer) Requeue(ctx context.Context, run agent.Run, reason watchdog.Reason, dryRun bool) (RequeueOutcome, error) {
	summary := watchdog.RetrySummary(run, reason)
	rq, err := watchdog.BuildRequeue(run, q.newID(), q.newID())
	if err != nil {
		return RequeueOutcome{}, err
	}

	out := RequeueOutcome{
		SummaryMessage: summary,
		NewSessionKey:  rq.Payload.SessionKey,
		Payload:        rq.Payload,
	}
	if dryRun {
		out.DryRun = true
		out.Reply = DryRunReply
		out.CurrentState = watchdog.StateDryRun
		return out, nil
	}

	// Once issued, the spawn runs to its own exec timeout. A caller that goes
	// away must not kill it and burn the run's only retry.
	ctx, span := mcotel.StartRequeueSpan(context.WithoutCancel(ctx), run.RunID, run.ChildSessionKey)
	defer span.End()

	if rq.Model != "" {
		if err := q.spawner.PatchSessionModel(ctx, rq.Payload.SessionKey, rq.Model); err != nil {
			slog.Warn("retry session model patch failed, continuing with default model",
				"session_key", rq.Payload.SessionKey, "model", rq.Model, "error", err)
		}
	}

	resp, err := q.spawner.Spawn(ctx, rq.Payload)
	if err != nil {
		span.RecordError(err)
		return RequeueOutcome{}, err
	}
	if resp.RunID == "" {
		return RequeueOutcome{}, fmt.Errorf("retry spawn did not return a runId: %s", resp.Raw)
	}
	state, ok := watchdog.AcceptedState(resp.Status)
	if !ok {
		return RequeueOutcome{}, fmt.Errorf("retry spawn returned unexpected status %q for run %s", resp.Status, resp.RunID)
	}

	out.Requested = true
	out.NewRunID = resp.RunID
	out.CurrentState = state
	out.Reply = fmt.Sprintf("Requeued successfully as run %s (%s, state: %s).", resp.RunID, rq.Payload.Label, state)
	slog.Info("run requeued", "run_id", run.StableID(), "new_run_id", resp.RunID, "session_key", rq.Payload.SessionKey, "state", state)
	return out, nil
}
