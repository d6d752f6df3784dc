package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/Strob0t/missioncontrol/internal/domain/watchdog"
	"github.com/Strob0t/missioncontrol/internal/logger"
)

// runWatchdog runs a single scan outside the server. It takes the state
// lock, so it refuses to run next to a serve process using the file backend.
func runWatchdog(args []string) error {
	fs := flag.NewFlagSet("watchdog", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML config file (default: $MISSIONCONTROL_CONFIG or missioncontrol.yaml)")
	dryRun := fs.Bool("dry-run", false, "report what would be requeued without spawning or saving state")
	force := fs.Bool("force", false, "ignore the scan cooldown")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.NewTo(os.Stderr, cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := wire(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer a.close()

	result, err := a.watchdog.Run(ctx, watchdog.Options{DryRun: *dryRun, Force: *force})
	if err != nil {
		return fmt.Errorf("watchdog scan: %w", err)
	}
	return printResult(os.Stdout, result, term.IsTerminal(int(os.Stdout.Fd()))) //nolint:gosec // G115: fd fits in int
}

// printResult writes the scan as JSON, indented when a person is reading.
func printResult(w io.Writer, result watchdog.Result, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(result)
}
