package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Strob0t/missioncontrol/internal/domain/agent"
	"github.com/Strob0t/missioncontrol/internal/domain/mirror"
	"github.com/Strob0t/missioncontrol/internal/domain/watchdog"
	"github.com/Strob0t/missioncontrol/internal/port/runtime"
	"github.com/Strob0t/missioncontrol/internal/service"
)

const maxRequestBodySize = 1 << 20 // 1 MB

// SnapshotBuilder assembles the agents snapshot.
type SnapshotBuilder interface {
	Build(ctx context.Context) agent.Snapshot
}

// WatchdogRunner runs one stalled-run scan.
type WatchdogRunner interface {
	Run(ctx context.Context, opts watchdog.Options) (watchdog.Result, error)
}

// Messenger sends a dashboard message and mirrors the reply.
type Messenger interface {
	SendWithMirror(ctx context.Context, in service.SendInput) (service.SendOutcome, error)
}

// Controller validates and runs operator actions.
type Controller interface {
	Validate(req service.ControlRequest) (service.ControlRequest, error)
	Run(ctx context.Context, req service.ControlRequest) (service.ControlResult, error)
}

// Handlers holds the services behind the agent endpoints.
type Handlers struct {
	Snapshots SnapshotBuilder
	Watchdog  WatchdogRunner
	Messaging Messenger
	Control   Controller

	Now func() time.Time
}

func (h *Handlers) sentAt() string {
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	return now().UTC().Format("2006-01-02T15:04:05.000Z")
}

// GetAgents handles GET /api/agents
func (h *Handlers) GetAgents(w http.ResponseWriter, r *http.Request) {
	snap := h.Snapshots.Build(r.Context())
	noStore(w)
	writeJSON(w, http.StatusOK, snap)
}

type watchdogResponse struct {
	OK bool `json:"ok"`
	watchdog.Result
	DryRun bool `json:"dryRun"`
	Force  bool `json:"force"`
}

type watchdogRequest struct {
	DryRun looseBool `json:"dryRun"`
	Force  looseBool `json:"force"`
}

// RunWatchdogQuery handles GET /api/agents/watchdog?dryRun=1&force=1
func (h *Handlers) RunWatchdogQuery(w http.ResponseWriter, r *http.Request) {
	h.runWatchdog(w, r, watchdog.Options{
		DryRun: queryFlag(r, "dryRun"),
		Force:  queryFlag(r, "force"),
	})
}

// RunWatchdog handles POST /api/agents/watchdog
func (h *Handlers) RunWatchdog(w http.ResponseWriter, r *http.Request) {
	var req watchdogRequest
	readOptionalJSON(w, r, maxRequestBodySize, &req)
	h.runWatchdog(w, r, watchdog.Options{
		DryRun: bool(req.DryRun),
		Force:  bool(req.Force),
	})
}

func (h *Handlers) runWatchdog(w http.ResponseWriter, r *http.Request, opts watchdog.Options) {
	result, err := h.Watchdog.Run(r.Context(), opts)
	if err != nil {
		slog.Error("watchdog scan failed", "error", err)
		writeFailure(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, watchdogResponse{
		OK:     true,
		Result: result,
		DryRun: opts.DryRun,
		Force:  opts.Force,
	})
}

type messageRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

type messageResponse struct {
	OK     bool          `json:"ok"`
	Reply  string        `json:"reply"`
	Queued bool          `json:"queued,omitempty"`
	Mirror mirror.Result `json:"mirror"`
	SentAt string        `json:"sentAt"`
}

// SendMessage handles POST /api/agents/message
func (h *Handlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[messageRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	if strings.TrimSpace(req.SessionID) == "" || strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "sessionId and message are required")
		return
	}

	out, err := h.Messaging.SendWithMirror(r.Context(), service.SendInput{
		SessionID:             req.SessionID,
		Message:               req.Message,
		ActionLabel:           "message",
		Thinking:              runtime.ThinkingMinimal,
		AcceptTimeoutAsQueued: true,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		OK:     true,
		Reply:  out.Reply,
		Queued: out.Queued,
		Mirror: out.Mirror,
		SentAt: h.sentAt(),
	})
}

type controlResponse struct {
	OK      bool   `json:"ok"`
	Action  string `json:"action"`
	Message string `json:"message"`
	Reply   string `json:"reply"`
	SentAt  string `json:"sentAt"`
}

// RunControl handles POST /api/agents/control
func (h *Handlers) RunControl(w http.ResponseWriter, r *http.Request) {
	var raw service.ControlRequest
	readOptionalJSON(w, r, maxRequestBodySize, &raw)

	req, err := h.Control.Validate(raw)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	result, err := h.Control.Run(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, controlResponse{
		OK:      true,
		Action:  result.Action,
		Message: "Control executed",
		Reply:   result.Reply,
		SentAt:  h.sentAt(),
	})
}
