// Package logger provides structured logging setup for Mission Control.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Strob0t/missioncontrol/internal/config"
)

// Async handler sizing. Records beyond the buffer are dropped, never blocked on.
const (
	asyncBufferSize = 4096
	asyncWorkers    = 2
)

// New creates a *slog.Logger from the given Logging config.
// Output is JSON to stdout with a "service" attribute on every record and
// the request id from the context when one is present. When cfg.Async is
// set, records are written by background workers; call Close on the
// returned Closer before exit to flush them.
func New(cfg config.Logging) (*slog.Logger, Closer) {
	return NewTo(os.Stdout, cfg)
}

// NewTo is New writing to w. One-shot commands log to stderr so stdout
// carries only their result.
func NewTo(w io.Writer, cfg config.Logging) (*slog.Logger, Closer) {
	var handler slog.Handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	})

	var closer Closer = nopCloser{}
	if cfg.Async {
		async := NewAsyncHandler(handler, asyncBufferSize, asyncWorkers)
		handler = async
		closer = async
	}

	return slog.New(&contextHandler{inner: handler}).With("service", cfg.Service), closer
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
