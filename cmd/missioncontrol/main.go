// Command missioncontrol serves the agent dashboard API and runs the
// stalled-run watchdog.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	mchttp "github.com/Strob0t/missioncontrol/internal/adapter/http"
	mcmcp "github.com/Strob0t/missioncontrol/internal/adapter/mcp"
	mcotel "github.com/Strob0t/missioncontrol/internal/adapter/otel"
	"github.com/Strob0t/missioncontrol/internal/adapter/ws"
	"github.com/Strob0t/missioncontrol/internal/config"
	"github.com/Strob0t/missioncontrol/internal/logger"
	"github.com/Strob0t/missioncontrol/internal/middleware"
	"github.com/Strob0t/missioncontrol/internal/port/broadcast"
	"github.com/Strob0t/missioncontrol/internal/secrets"
	"github.com/Strob0t/missioncontrol/internal/service"
)

const version = "0.1.0"

const mcpKeySecret = "mcp_api_key"

// requestTimeout bounds one API request. A message send may run the agent
// for its full exec timeout before the mirror step.
const requestTimeout = 5 * time.Minute

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := dispatch(os.Args[1:]); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func dispatch(args []string) error {
	if len(args) == 0 {
		return runServe(nil)
	}
	switch args[0] {
	case "serve":
		return runServe(args[1:])
	case "watchdog":
		return runWatchdog(args[1:])
	case "help", "--help", "-h":
		printHelp()
		return nil
	default:
		printHelp()
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func printHelp() {
	fmt.Fprintf(os.Stderr, `Usage: missioncontrol <command> [options]

Commands:
  serve      Serve the dashboard API (default)
  watchdog   Run one stalled-run scan and print the result
  help       Show this help message

Examples:
  missioncontrol serve --config /etc/missioncontrol.yaml
  missioncontrol watchdog --dry-run
  missioncontrol watchdog --force
`)
}

// loadConfig reads the YAML file at path, or the default location when
// path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFrom(path)
	}
	return config.Load()
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML config file (default: $MISSIONCONTROL_CONFIG or missioncontrol.yaml)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"sessions_dir", cfg.OpenClaw.SessionsDir,
		"state_backend", cfg.State.Backend,
		"watchdog_interval", cfg.Watchdog.Interval,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Infrastructure ---

	shutdownOTEL, err := mcotel.Setup(ctx, cfg.OTEL)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTEL(shutdownCtx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()

	hub := ws.NewHub(ws.OriginPatterns(cfg.Server.CORSOrigin)...)
	defer hub.Close()

	a, err := wire(ctx, cfg, hub)
	if err != nil {
		return err
	}
	defer a.close()

	// --- Background workers ---

	refresher := service.NewRefresher(a.snapshots, a.events, cfg.OpenClaw.SessionsDir, cfg.OpenClaw.RunsFile, cfg.Snapshot.Refresh)
	hub.SetOnConnect(func() (ws.Message, bool) {
		snap, ok := refresher.Latest()
		if !ok {
			return ws.Message{}, false
		}
		msg, err := ws.NewMessage(broadcast.EventSnapshotUpdated, snap)
		if err != nil {
			return ws.Message{}, false
		}
		return msg, true
	})
	go refresher.Run(ctx)

	go a.watchdog.Loop(ctx, cfg.Watchdog.Interval)

	if a.queue != nil {
		cancelTriggers, err := a.watchdog.SubscribeTriggers(ctx, a.queue, cfg.NATS.Subject)
		if err != nil {
			return fmt.Errorf("watchdog trigger subscriber: %w", err)
		}
		defer cancelTriggers()
	}

	if cfg.MCP.Enabled {
		vault, err := secrets.NewVault(secrets.Merge(
			secrets.StaticLoader(map[string]string{mcpKeySecret: cfg.MCP.APIKey}),
			secrets.FileLoader(map[string]string{mcpKeySecret: cfg.MCP.APIKeyFile}),
		))
		if err != nil {
			return fmt.Errorf("mcp api key: %w", err)
		}
		go reloadOnHangup(ctx, vault)
		slog.Info("mcp auth", "key", vault.Redacted(mcpKeySecret))

		mcpSrv := mcmcp.NewServer(mcmcp.ServerConfig{
			Addr:    ":" + cfg.MCP.Port,
			Name:    "missioncontrol",
			Version: version,
			APIKey:  vault.Lookup(mcpKeySecret),
		}, mcmcp.ServerDeps{
			Snapshots: a.snapshots,
			Watchdog:  a.watchdog,
			Messenger: a.messaging,
		})
		if err := mcpSrv.Start(); err != nil {
			return fmt.Errorf("mcp: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = mcpSrv.Stop(stopCtx)
		}()
	}

	// --- HTTP ---

	handlers := &mchttp.Handlers{
		Snapshots: a.snapshots,
		Watchdog:  a.watchdog,
		Messaging: a.messaging,
		Control:   a.control,
	}

	var limit func(http.Handler) http.Handler
	if cfg.Server.RateLimit > 0 {
		limiter := middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)
		defer limiter.StartCleanup(time.Minute, 10*time.Minute)()
		limit = limiter.Handler
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(mcotel.HTTPMiddleware(cfg.OTEL.ServiceName))
	r.Use(mchttp.Logger)
	r.Use(chimw.Recoverer)
	r.Use(mchttp.SecurityHeaders)
	r.Use(mchttp.CORS(cfg.Server.CORSOrigin))

	r.Get("/health", healthHandler(a, hub))
	r.Get("/api/ws", hub.HandleWS)

	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(requestTimeout))
		mchttp.MountRoutes(r, handlers, limit)
	})

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      requestTimeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// reloadOnHangup re-reads secrets on SIGHUP until ctx is done. A failed
// reload keeps the previous values.
func reloadOnHangup(ctx context.Context, vault *secrets.Vault) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			changed, err := vault.Reload()
			if err != nil {
				slog.Error("secret reload failed", "error", err)
				continue
			}
			slog.Info("secrets reloaded", "changed", changed)
		}
	}
}

// healthHandler reports the runtime breaker, the event bus and connected
// dashboard clients.
func healthHandler(a *app, hub *ws.Hub) http.HandlerFunc {
	type healthStatus struct {
		Status       string `json:"status"`
		Breaker      string `json:"breaker"`
		NATS         string `json:"nats"`
		StateBackend string `json:"stateBackend"`
		Clients      int    `json:"clients"`
	}

	return func(w http.ResponseWriter, _ *http.Request) {
		status := healthStatus{
			Status:       "ok",
			Breaker:      a.client.BreakerState(),
			NATS:         "disabled",
			StateBackend: a.cfg.State.Backend,
			Clients:      hub.ConnectionCount(),
		}
		if a.queue != nil {
			status.NATS = "connected"
			if !a.queue.IsConnected() {
				status.NATS = "disconnected"
				status.Status = "degraded"
			}
		}
		if status.Breaker == "open" {
			status.Status = "degraded"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(status)
	}
}
