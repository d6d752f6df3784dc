package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Strob0t/missioncontrol/internal/adapter/jsonstate"
	mcnats "github.com/Strob0t/missioncontrol/internal/adapter/nats"
	"github.com/Strob0t/missioncontrol/internal/adapter/natskv"
	"github.com/Strob0t/missioncontrol/internal/adapter/openclaw"
	mcotel "github.com/Strob0t/missioncontrol/internal/adapter/otel"
	"github.com/Strob0t/missioncontrol/internal/adapter/registry"
	"github.com/Strob0t/missioncontrol/internal/adapter/ristretto"
	"github.com/Strob0t/missioncontrol/internal/adapter/transcript"
	"github.com/Strob0t/missioncontrol/internal/config"
	"github.com/Strob0t/missioncontrol/internal/domain/agent"
	"github.com/Strob0t/missioncontrol/internal/domain/mirror"
	"github.com/Strob0t/missioncontrol/internal/port/broadcast"
	"github.com/Strob0t/missioncontrol/internal/port/messagequeue"
	"github.com/Strob0t/missioncontrol/internal/port/notifier"
	"github.com/Strob0t/missioncontrol/internal/port/statestore"
	"github.com/Strob0t/missioncontrol/internal/resilience"
	"github.com/Strob0t/missioncontrol/internal/service"
)

// app holds the wired services shared by the serve and watchdog commands.
type app struct {
	cfg       *config.Config
	client    *openclaw.Client
	queue     *mcnats.Queue // nil when NATS is not configured
	events    *service.EventSink
	snapshots *service.SnapshotService
	watchdog  *service.WatchdogService
	messaging *service.MessagingService
	control   *service.ControlService

	cleanup []func()
}

// close releases resources in reverse acquisition order.
func (a *app) close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
}

// wire builds the service graph. hub may be nil for one-shot commands.
func wire(ctx context.Context, cfg *config.Config, hub broadcast.Broadcaster) (*app, error) {
	a := &app{cfg: cfg}
	wired := false
	defer func() {
		if !wired {
			a.close()
		}
	}()

	metrics, err := mcotel.NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---

	var queue messagequeue.Queue
	if cfg.NATS.URL != "" {
		q, err := mcnats.Connect(ctx, cfg.NATS.URL, cfg.NATS.Subject)
		if err != nil {
			return nil, fmt.Errorf("nats: %w", err)
		}
		a.queue = q
		queue = q
		a.cleanup = append(a.cleanup, func() { _ = q.Close() })
	}

	store, err := openStateStore(ctx, cfg, a)
	if err != nil {
		return nil, err
	}

	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout).
		WithClassifier(openclaw.CountsAsFailure)
	a.client = openclaw.New(cfg.OpenClaw, breaker)

	sessions := service.NewFallbackSessions(a.client, registry.NewIndexReader(cfg.OpenClaw.SessionsIndexFile))
	runs := registry.NewRunsReader(cfg.OpenClaw.RunsFile)

	models, err := ristretto.New(cfg.Cache.MaxCostBytes)
	if err != nil {
		return nil, fmt.Errorf("model cache: %w", err)
	}
	a.cleanup = append(a.cleanup, models.Close)

	transcripts := transcript.NewReader(cfg.OpenClaw.SessionsDir, transcript.Limits{
		MaxMessages:   cfg.Snapshot.MaxMessages,
		MaxScanLines:  cfg.Snapshot.MaxScanLines,
		MaxModelLines: cfg.Snapshot.MaxModelLines,
		MaxTextChars:  cfg.Snapshot.MaxTextChars,
	}, models)

	// --- Services ---

	a.events = service.NewEventSink(hub, queue, cfg.NATS.Subject)
	mainSession := service.NewMainSession(a.client, sessions, cfg.Snapshot.ActiveMinutes)
	notify := service.NewNotificationService(buildNotifiers(cfg.Notify)...)

	mirrors := service.NewMirrorService(store, mainSession, mirror.Policy{
		Cooldown:     cfg.Mirror.Cooldown,
		DedupeWindow: cfg.Mirror.DedupeWindow,
	}, a.events, metrics)

	a.watchdog = service.NewWatchdogService(service.WatchdogDeps{
		Runs:     runs,
		Store:    store,
		Requeuer: service.NewRequeuer(a.client),
		Main:     mainSession,
		Notify:   notify,
		Events:   a.events,
		Metrics:  metrics,
	}, cfg.Watchdog)

	a.snapshots = service.NewSnapshotService(sessions, runs, transcripts, a.watchdog, metrics, cfg.Snapshot)
	a.messaging = service.NewMessagingService(a.client, sessions, mirrors, metrics, cfg.Snapshot.ActiveMinutes)
	a.control = service.NewControlService(a.messaging, a.watchdog, sessions, runs,
		agent.Windows{RecentAge: cfg.Snapshot.RecentAge, IdleAge: cfg.Snapshot.IdleAge},
		cfg.Snapshot.ActiveMinutes)
	a.cleanup = append(a.cleanup, a.watchdog.Wait)

	wired = true
	return a, nil
}

// openStateStore selects the mirror and watchdog state backend. The file
// backend takes the single-writer lock on its directory.
func openStateStore(ctx context.Context, cfg *config.Config, a *app) (statestore.Store, error) {
	switch cfg.State.Backend {
	case "nats":
		if a.queue == nil {
			return nil, errors.New("state backend nats requires a NATS connection")
		}
		kv, err := a.queue.KeyValue(ctx, cfg.State.Bucket, 0)
		if err != nil {
			return nil, fmt.Errorf("state bucket: %w", err)
		}
		slog.Info("state backend", "backend", "nats", "bucket", cfg.State.Bucket)
		return natskv.New(kv), nil
	default:
		unlock, err := jsonstate.Lock(cfg.State.Dir)
		if err != nil {
			return nil, err
		}
		a.cleanup = append(a.cleanup, unlock)
		slog.Info("state backend", "backend", "file", "dir", cfg.State.Dir)
		return jsonstate.New(cfg.State.Dir), nil
	}
}

// buildNotifiers instantiates every registered notifier that has
// configuration. A misconfigured provider is logged and left out.
func buildNotifiers(cfg config.Notify) []notifier.Notifier {
	built, err := notifier.Build(map[string]notifier.Settings{
		"slack":   {"webhook_url": cfg.SlackWebhookURL},
		"discord": {"webhook_url": cfg.DiscordWebhookURL, "username": cfg.DiscordUsername},
	})
	if err != nil {
		slog.Warn("notifier disabled", "error", err)
	}
	for _, n := range built {
		slog.Info("notifier enabled", "notifier", n.Name())
	}
	return built
}
