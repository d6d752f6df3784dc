// Package runtime defines the capabilities Mission Control needs from the
// external agent runtime: listing sessions, sending messages and spawning
// replacement runs.
package runtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Strob0t/missioncontrol/internal/domain/agent"
	"github.com/Strob0t/missioncontrol/internal/domain/watchdog"
)

// Thinking is the effort hint passed with a message.
type Thinking string

// Thinking levels understood by the runtime.
const (
	ThinkingOff     Thinking = "off"
	ThinkingMinimal Thinking = "minimal"
	ThinkingLow     Thinking = "low"
	ThinkingMedium  Thinking = "medium"
	ThinkingHigh    Thinking = "high"
	ThinkingXHigh   Thinking = "xhigh"
)

// Valid reports whether t is a known level. The empty level is valid and
// leaves the runtime default in place.
func (t Thinking) Valid() bool {
	switch t {
	case "", ThinkingOff, ThinkingMinimal, ThinkingLow, ThinkingMedium, ThinkingHigh, ThinkingXHigh:
		return true
	}
	return false
}

// SendRequest addresses one message to a session.
type SendRequest struct {
	SessionID string
	Message   string
	Thinking  Thinking
	// Timeout is the runtime-side reply budget; zero uses the adapter default.
	Timeout time.Duration
	// ExecTimeout bounds the whole call; zero uses the adapter default.
	ExecTimeout time.Duration
	// AcceptTimeoutAsQueued turns a timeout into a placeholder reply.
	AcceptTimeoutAsQueued bool
}

// SendResult is the session's reply.
type SendResult struct {
	Reply string
	// Queued is set when the reply is the timeout placeholder.
	Queued bool
}

// SpawnResponse is the runtime's answer to a spawn request. RunID and Status
// are empty when the response lacked them; Raw keeps the full answer for
// error reporting.
type SpawnResponse struct {
	RunID  string
	Status string
	Raw    json.RawMessage
}

// Sender delivers a message to a session and returns its reply.
type Sender interface {
	Send(ctx context.Context, req SendRequest) (SendResult, error)
}

// Spawner submits delegated work.
type Spawner interface {
	Spawn(ctx context.Context, p watchdog.RequeuePayload) (SpawnResponse, error)
	PatchSessionModel(ctx context.Context, sessionKey, model string) error
}

// SessionLister lists sessions active within the given window.
type SessionLister interface {
	ListActiveSessions(ctx context.Context, activeMinutes int) ([]agent.Session, error)
}

// RunLister reads the subagent run ledger.
type RunLister interface {
	ListRuns(ctx context.Context) ([]agent.Run, error)
}
