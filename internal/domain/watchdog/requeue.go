package watchdog

import (
	"errors"
	"math"
	"regexp"
	"strings"

	"github.com/Strob0t/missioncontrol/internal/domain/agent"
)

// ErrMissingTask is returned for runs that carry no task text to replay.
var ErrMissingTask = errors.New("retry requires task metadata, but this run has no task text")

// Accepted spawn statuses. An empty status means accepted.
var acceptedStates = map[string]bool{
	"accepted": true,
	"ok":       true,
	"queued":   true,
	"running":  true,
}

// AcceptedState reports whether a spawn status is accepted. The status is
// returned as the runtime reported it; only the check ignores case.
func AcceptedState(status string) (string, bool) {
	if strings.TrimSpace(status) == "" {
		return defaultAcceptedState, true
	}
	return status, acceptedStates[strings.ToLower(strings.TrimSpace(status))]
}

// RequeuePayload is the spawn request for a replacement run.
type RequeuePayload struct {
	SessionKey     string `json:"sessionKey"`
	Message        string `json:"message"`
	Lane           string `json:"lane"`
	Deliver        bool   `json:"deliver"`
	Label          string `json:"label"`
	SpawnedBy      string `json:"spawnedBy"`
	IdempotencyKey string `json:"idempotencyKey"`
	Timeout        int64  `json:"timeout,omitempty"`
	Channel        string `json:"channel,omitempty"`
}

// Requeue is a prepared retry. Model is applied with a session patch before
// the spawn rather than sent in the spawn parameters.
type Requeue struct {
	Payload RequeuePayload
	Model   string
}

// BuildRequeue synthesizes the replacement run for r. The caller supplies
// the fresh session uuid and idempotency key.
func BuildRequeue(r agent.Run, sessionUUID, idempotencyKey string) (Requeue, error) {
	task := strings.TrimSpace(r.Task)
	if task == "" {
		return Requeue{}, ErrMissingTask
	}
	if sessionUUID == "" || idempotencyKey == "" {
		return Requeue{}, errors.New("requeue: session id and idempotency key are required")
	}

	spawnedBy := strings.TrimSpace(r.RequesterSessionKey)
	if spawnedBy == "" {
		spawnedBy = agent.MainSessionKey
	}

	p := RequeuePayload{
		SessionKey:     "agent:main:subagent:" + sessionUUID,
		Message:        task,
		Lane:           "subagent",
		Deliver:        false,
		Label:          SafeRetryLabel(r.Label),
		SpawnedBy:      spawnedBy,
		IdempotencyKey: idempotencyKey,
		Channel:        strings.TrimSpace(r.RequesterChannel),
	}
	if r.RunTimeoutSeconds > 0 {
		p.Timeout = int64(math.Floor(r.RunTimeoutSeconds))
	}

	return Requeue{Payload: p, Model: strings.TrimSpace(r.Model)}, nil
}

var (
	labelInvalid = regexp.MustCompile(`[^a-z0-9_-]+`)
	labelDashes  = regexp.MustCompile(`-+`)
)

const maxRetryLabel = 64

// SafeRetryLabel slugifies a run label and appends "-retry" unless the
// label already ends with it.
func SafeRetryLabel(label string) string {
	base := strings.ToLower(strings.TrimSpace(label))
	base = labelInvalid.ReplaceAllString(base, "-")
	base = labelDashes.ReplaceAllString(base, "-")
	base = strings.Trim(base, "-_")
	if base == "" {
		base = "subagent"
	}

	out := base
	if !strings.HasSuffix(out, "-retry") {
		out += "-retry"
	}
	if len(out) > maxRetryLabel {
		out = out[:maxRetryLabel]
	}
	out = strings.TrimRight(out, "-_")
	if out == "" {
		return "subagent-retry"
	}
	return out
}
