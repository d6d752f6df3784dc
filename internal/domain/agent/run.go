package agent

import (
	"strconv"
	"strings"
	"time"
)

// Run is one delegated unit of subagent work from the run ledger.
// Timestamps are Unix milliseconds; zero means absent.
type Run struct {
	RunID               string  `json:"runId,omitempty"`
	ChildSessionKey     string  `json:"childSessionKey"`
	RequesterSessionKey string  `json:"requesterSessionKey,omitempty"`
	RequesterChannel    string  `json:"requesterChannel,omitempty"`
	Label               string  `json:"label,omitempty"`
	Task                string  `json:"task,omitempty"`
	Model               string  `json:"model,omitempty"`
	RunTimeoutSeconds   float64 `json:"runTimeoutSeconds,omitempty"`
	CreatedAt           int64   `json:"createdAt,omitempty"`
	StartedAt           int64   `json:"startedAt,omitempty"`
	EndedAt             int64   `json:"endedAt,omitempty"`
	Signals             Signals `json:"signals"`
}

// Signals is the set of status token classes present on a run. The ledger's
// loosely typed status, state, phase and outcome.status fields are folded
// into it once, when the record is read.
type Signals struct {
	Running   bool `json:"running,omitempty"`
	Queued    bool `json:"queued,omitempty"`
	Completed bool `json:"completed,omitempty"`
	Failed    bool `json:"failed,omitempty"`
}

var (
	runningTokens   = tokenSet("running", "in_progress", "in-progress", "active", "processing")
	queuedTokens    = tokenSet("queued", "queue", "pending", "created", "scheduled", "waiting")
	completedTokens = tokenSet("done", "completed", "complete", "success", "succeeded", "ok", "finished")
	failedTokens    = tokenSet("failed", "error", "errored", "failure", "timeout", "timed_out", "timed-out")
)

func tokenSet(tokens ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

// ResolveSignals classifies raw status strings. Values are trimmed and
// lowercased; empty and unrecognized values are ignored.
func ResolveSignals(values ...string) Signals {
	var s Signals
	for _, v := range values {
		tok := strings.ToLower(strings.TrimSpace(v))
		if tok == "" {
			continue
		}
		if _, ok := runningTokens[tok]; ok {
			s.Running = true
		}
		if _, ok := queuedTokens[tok]; ok {
			s.Queued = true
		}
		if _, ok := completedTokens[tok]; ok {
			s.Completed = true
		}
		if _, ok := failedTokens[tok]; ok {
			s.Failed = true
		}
	}
	return s
}

// Ended reports whether the run has an end timestamp.
func (r Run) Ended() bool { return r.EndedAt != 0 }

// IsRunning reports whether the run is currently executing: not ended, no
// failed, completed or queued token, and either a running token or a start time.
func (r Run) IsRunning() bool {
	if r.Ended() {
		return false
	}
	if r.Signals.Failed || r.Signals.Completed || r.Signals.Queued {
		return false
	}
	if r.Signals.Running {
		return true
	}
	return r.StartedAt != 0
}

// IsFailed reports whether the run classifies as failed.
func (r Run) IsFailed(now time.Time, w Windows) bool {
	return RunStatus(r, now, w) == StatusFailed
}

// StableID identifies the run across scans: the run id when present, else
// the child session key plus its start (or creation) time.
func (r Run) StableID() string {
	if id := strings.TrimSpace(r.RunID); id != "" {
		return id
	}
	ts := r.StartedAt
	if ts == 0 {
		ts = r.CreatedAt
	}
	return r.ChildSessionKey + ":" + strconv.FormatInt(ts, 10)
}

// RecencyMs is the latest of the run's timestamps.
func (r Run) RecencyMs() int64 {
	return max(r.EndedAt, r.StartedAt, r.CreatedAt)
}

// StalledFor is the time since the run's last heartbeat (start or creation).
// It is zero when the run has neither timestamp.
func (r Run) StalledFor(now time.Time) time.Duration {
	heartbeat := max(r.StartedAt, r.CreatedAt)
	if heartbeat <= 0 {
		return 0
	}
	d := now.UnixMilli() - heartbeat
	if d < 0 {
		return 0
	}
	return time.Duration(d) * time.Millisecond
}

// IndexRunsByChildKey keeps the most recent run per child session key. Ties
// go to the later entry in the ledger.
func IndexRunsByChildKey(runs []Run) map[string]Run {
	idx := make(map[string]Run, len(runs))
	for _, r := range runs {
		if r.ChildSessionKey == "" {
			continue
		}
		cur, ok := idx[r.ChildSessionKey]
		if !ok || r.RecencyMs() >= cur.RecencyMs() {
			idx[r.ChildSessionKey] = r
		}
	}
	return idx
}

// LatestFailedRun returns the most recent failed run for a session key.
func LatestFailedRun(runs []Run, sessionKey string, now time.Time, w Windows) (Run, bool) {
	var (
		best  Run
		found bool
	)
	for _, r := range runs {
		if r.ChildSessionKey != sessionKey || !r.IsFailed(now, w) {
			continue
		}
		if !found || r.RecencyMs() > best.RecencyMs() {
			best, found = r, true
		}
	}
	return best, found
}
