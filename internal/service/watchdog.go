package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mcotel "github.com/Strob0t/missioncontrol/internal/adapter/otel"
	"github.com/Strob0t/missioncontrol/internal/config"
	"github.com/Strob0t/missioncontrol/internal/domain"
	"github.com/Strob0t/missioncontrol/internal/domain/agent"
	"github.com/Strob0t/missioncontrol/internal/domain/watchdog"
	"github.com/Strob0t/missioncontrol/internal/port/messagequeue"
	"github.com/Strob0t/missioncontrol/internal/port/runtime"
	"github.com/Strob0t/missioncontrol/internal/port/statestore"
)

// WatchdogService finds runs stalled past the threshold and requeues each
// of them at most once.
type WatchdogService struct {
	mu       sync.Mutex
	runs     runtime.RunLister
	store    statestore.Store
	requeuer *Requeuer
	main     MainSender
	notify   *NotificationService
	events   *EventSink
	metrics  *mcotel.Metrics
	cfg      config.Watchdog
	now      func() time.Time

	posts sync.WaitGroup
}

// WatchdogDeps groups the collaborators of a WatchdogService. Notify,
// Events and Metrics are optional.
type WatchdogDeps struct {
	Runs     runtime.RunLister
	Store    statestore.Store
	Requeuer *Requeuer
	Main     MainSender
	Notify   *NotificationService
	Events   *EventSink
	Metrics  *mcotel.Metrics
}

// NewWatchdogService creates a WatchdogService.
func NewWatchdogService(deps WatchdogDeps, cfg config.Watchdog) *WatchdogService {
	return &WatchdogService{
		runs:     deps.Runs,
		store:    deps.Store,
		requeuer: deps.Requeuer,
		main:     deps.Main,
		notify:   deps.Notify,
		events:   deps.Events,
		metrics:  deps.Metrics,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Run loads the run ledger and scans it.
func (s *WatchdogService) Run(ctx context.Context, opts watchdog.Options) (watchdog.Result, error) {
	runs, err := s.runs.ListRuns(ctx)
	if err != nil {
		return watchdog.Result{}, fmt.Errorf("watchdog: load runs: %w", err)
	}
	return s.Scan(ctx, runs, opts), nil
}

// Scan checks the given runs. Non-dry scans persist the retry ledger and
// post one consolidated update to the main session in the background.
func (s *WatchdogService) Scan(ctx context.Context, runs []agent.Run, opts watchdog.Options) watchdog.Result {
	ctx, span := mcotel.StartScanSpan(ctx, opts.DryRun, opts.Force)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.now()
	now := start
	res := watchdog.Result{
		CheckedAt:   agent.ISOMillis(now.UnixMilli()),
		ThresholdMs: s.cfg.StalledThreshold.Milliseconds(),
		ScannedRuns: len(runs),
		Retries:     []watchdog.RetryItem{},
	}

	state := s.load(ctx)
	if !opts.Force {
		if reason, skip := state.ScanGate(now, s.cfg.ScanCooldown); skip {
			res.SkippedScan = true
			res.SkippedReason = reason
			s.metrics.RecordScan(ctx, "skipped", s.now().Sub(start))
			return res
		}
	}

	candidates := watchdog.Candidates(runs, now, s.cfg.StalledThreshold)
	res.StalledRuns = len(candidates)

	var attempted []watchdog.RetryItem
	for _, c := range candidates {
		item, tried := s.handle(ctx, &state, c, now, opts.DryRun)
		res.Retries = append(res.Retries, item)
		if tried {
			attempted = append(attempted, item)
		}
	}

	if !opts.DryRun {
		state.LastScanAt = now.UnixMilli()
		s.save(context.WithoutCancel(ctx), state)
		if len(attempted) > 0 {
			s.postUpdate(ctx, attempted)
		}
	}

	outcome := "completed"
	if opts.DryRun {
		outcome = "dry-run"
	}
	s.metrics.RecordScan(ctx, outcome, s.now().Sub(start))
	s.events.WatchdogCompleted(ctx, res, opts.DryRun)
	slog.Info("watchdog scan finished",
		"scanned", res.ScannedRuns,
		"stalled", res.StalledRuns,
		"requested", res.Requested(),
		"failed", res.FailedCount(),
		"dry_run", opts.DryRun,
		"force", opts.Force,
	)
	return res
}

// handle decides one candidate. tried reports whether a requeue was
// attempted or previewed.
func (s *WatchdogService) handle(ctx context.Context, state *watchdog.State, c watchdog.Candidate, now time.Time, dryRun bool) (watchdog.RetryItem, bool) {
	run := c.Run
	id := run.StableID()
	item := watchdog.RetryItem{
		RunID:        run.RunID,
		SessionKey:   run.ChildSessionKey,
		StalledForMs: c.StalledFor.Milliseconds(),
		DryRun:       dryRun,
	}

	if reason, skip := state.RunGate(id, now, s.cfg.RetryCooldown); skip {
		item.SkippedReason = reason
		s.metrics.RecordRetry(ctx, "skipped")
		return item, false
	}

	out, err := s.requeuer.Requeue(ctx, run, watchdog.Reason{StalledFor: c.StalledFor, Threshold: s.cfg.StalledThreshold}, dryRun)
	if err != nil {
		// A failed attempt still consumes the retry.
		if !dryRun {
			state.RecordAttempt(id, now, watchdog.StatusRequeueFailed)
		}
		item.Failed = true
		item.SkippedReason = err.Error()
		s.metrics.RecordRetry(ctx, watchdog.StatusRequeueFailed)
		slog.Warn("watchdog requeue failed", "run_id", id, "session_key", run.ChildSessionKey, "error", err)
		return item, true
	}

	if !dryRun {
		state.RecordAttempt(id, now, watchdog.StatusRequeued)
	}
	item.Requested = out.Requested
	item.SummaryMessage = out.SummaryMessage
	item.NewRunID = out.NewRunID
	item.NewSessionKey = out.NewSessionKey
	item.CurrentState = out.CurrentState
	if out.DryRun {
		item.SkippedReason = watchdog.ReasonDryRun
		payload := out.Payload
		item.Payload = &payload
		s.metrics.RecordRetry(ctx, watchdog.ReasonDryRun)
	} else {
		s.metrics.RecordRetry(ctx, watchdog.StatusRequeued)
	}
	return item, true
}

// RetryRun requeues a failed run on operator request. It shares the
// at-most-once ledger with automatic scans.
func (s *WatchdogService) RetryRun(ctx context.Context, run agent.Run) (RequeueOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	id := run.StableID()
	state := s.load(ctx)
	if reason, skip := state.RunGate(id, now, s.cfg.RetryCooldown); skip {
		return RequeueOutcome{}, fmt.Errorf("%w: run %s cannot be retried (%s)", domain.ErrValidation, id, reason)
	}

	out, err := s.requeuer.Requeue(ctx, run, watchdog.Reason{Manual: true}, false)
	status := watchdog.StatusRequeued
	if err != nil {
		status = watchdog.StatusRequeueFailed
	}
	state.RecordAttempt(id, now, status)
	s.save(ctx, state)
	s.metrics.RecordRetry(ctx, status)
	if err != nil {
		return RequeueOutcome{}, fmt.Errorf("retry run %s: %w", id, err)
	}
	return out, nil
}

// postUpdate sends the consolidated update in the background. The post
// outlives the request that triggered the scan but is bounded by
// StatusTimeout; failures are logged.
func (s *WatchdogService) postUpdate(ctx context.Context, items []watchdog.RetryItem) {
	message := watchdog.StatusUpdate(items, s.cfg.StalledThreshold)
	bg := context.WithoutCancel(ctx)

	s.posts.Add(1)
	go func() {
		defer s.posts.Done()
		ctx, cancel := context.WithTimeout(bg, s.cfg.StatusTimeout)
		defer cancel()

		if _, err := s.main.SendToMain(ctx, message); err != nil {
			slog.Warn("watchdog could not post status update to main session", "error", err)
		}
		if s.notify.Enabled() {
			_ = s.notify.Notify(ctx, retryNotification(items, s.cfg.StalledThreshold))
		}
	}()
}

// Wait blocks until background status posts have finished.
func (s *WatchdogService) Wait() {
	s.posts.Wait()
}

// load reads the retry ledger. Unreadable state starts over empty.
func (s *WatchdogService) load(ctx context.Context) watchdog.State {
	data, ok, err := s.store.Load(ctx, statestore.WatchdogState)
	if err != nil {
		slog.Warn("load watchdog state", "error", err)
		return watchdog.NewState()
	}
	if !ok {
		return watchdog.NewState()
	}
	state, err := watchdog.Decode(data)
	if err != nil {
		slog.Warn("decode watchdog state", "error", err)
		return watchdog.NewState()
	}
	return state
}

func (s *WatchdogService) save(ctx context.Context, state watchdog.State) {
	data, err := state.Encode()
	if err == nil {
		err = s.store.Save(ctx, statestore.WatchdogState, data)
	}
	if err != nil {
		slog.Error("save watchdog state", "error", err)
	}
}

// Loop scans on every tick until ctx is done. The scan cooldown still
// applies, so a short interval cannot cause retry storms.
func (s *WatchdogService) Loop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("watchdog loop started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Run(ctx, watchdog.Options{}); err != nil {
				slog.Warn("scheduled watchdog scan failed", "error", err)
			}
		}
	}
}

// SubscribeTriggers runs a scan for every watchdog.trigger message.
func (s *WatchdogService) SubscribeTriggers(ctx context.Context, queue messagequeue.Subscriber, prefix string) (func(), error) {
	subject := messagequeue.Subject(prefix, messagequeue.SubjectWatchdogTrigger)
	return queue.Subscribe(ctx, subject, func(ctx context.Context, _ string, data []byte) error {
		var p messagequeue.WatchdogTriggerPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("decode watchdog trigger: %w", err)
		}
		_, err := s.Run(ctx, watchdog.Options{DryRun: p.DryRun, Force: p.Force})
		return err
	})
}
