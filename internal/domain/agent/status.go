// Package agent defines the agent session, subagent run and dashboard column
// entities, and the rules that fuse session recency with run status signals.
package agent

import "time"

// Status is the normalized lifecycle status of an agent column.
type Status string

const (
	StatusActive    Status = "active"
	StatusQueued    Status = "queued"
	StatusRecent    Status = "recent"
	StatusIdle      Status = "idle"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusUnknown   Status = "unknown"
)

// Windows holds the age buckets used to classify activity.
type Windows struct {
	RecentAge time.Duration
	IdleAge   time.Duration
}

// DefaultWindows returns the 20 minute / 2 hour buckets.
func DefaultWindows() Windows {
	return Windows{RecentAge: 20 * time.Minute, IdleAge: 2 * time.Hour}
}

// SessionStatus classifies a session by its age alone.
func SessionStatus(s Session, w Windows) Status {
	if s.AgeMs == nil {
		return StatusUnknown
	}
	age := *s.AgeMs
	switch {
	case age <= w.RecentAge.Milliseconds():
		return StatusRecent
	case age <= w.IdleAge.Milliseconds():
		return StatusIdle
	default:
		return StatusCompleted
	}
}

// RunStatus classifies a run from its timestamps and status signals.
// Precedence: ended, failed, completed, queued, running, started, created.
func RunStatus(r Run, now time.Time, w Windows) Status {
	sig := r.Signals
	nowMs := now.UnixMilli()

	if r.EndedAt != 0 {
		if sig.Failed {
			return StatusFailed
		}
		return StatusCompleted
	}

	switch {
	case sig.Failed:
		return StatusFailed
	case sig.Completed:
		return StatusCompleted
	case sig.Queued:
		return StatusQueued
	case sig.Running:
		if nowMs-r.RecencyMs() <= w.RecentAge.Milliseconds() {
			return StatusActive
		}
		return StatusIdle
	}

	if r.StartedAt != 0 {
		if nowMs-r.StartedAt <= w.RecentAge.Milliseconds() {
			return StatusRecent
		}
		return StatusIdle
	}
	if r.CreatedAt != 0 {
		return StatusQueued
	}
	return StatusUnknown
}

// DeriveStatus fuses the session's recency with the latest run recorded for
// its key. A run claiming to be active while its session has gone quiet is
// not trusted, and low-information run statuses (recent, unknown) defer to
// the session.
func DeriveStatus(s Session, runsByChildKey map[string]Run, now time.Time, w Windows) Status {
	sessionStatus := SessionStatus(s, w)
	r, ok := runsByChildKey[s.Key]
	if !ok {
		return sessionStatus
	}

	runStatus := RunStatus(r, now, w)
	switch {
	case runStatus == StatusActive && sessionStatus != StatusRecent:
		return sessionStatus
	case runStatus == StatusRecent || runStatus == StatusUnknown:
		return sessionStatus
	default:
		return runStatus
	}
}
