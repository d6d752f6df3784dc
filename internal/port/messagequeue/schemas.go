package messagequeue

import (
	"errors"
	"time"
)

// WatchdogCompletedPayload is the schema for watchdog.completed messages.
type WatchdogCompletedPayload struct {
	CheckedAt   string `json:"checked_at"`
	ScannedRuns int    `json:"scanned_runs"`
	StalledRuns int    `json:"stalled_runs"`
	Requested   int    `json:"requested"`
	Failed      int    `json:"failed"`
	DryRun      bool   `json:"dry_run"`
}

// Check enforces the counters' ordering: requested and failed runs are
// drawn from the stalled ones, which are drawn from the scanned ones.
func (p WatchdogCompletedPayload) Check() error {
	if _, err := time.Parse(time.RFC3339, p.CheckedAt); err != nil {
		return errors.New("checked_at is not an RFC 3339 time")
	}
	switch {
	case p.ScannedRuns < 0, p.StalledRuns < 0, p.Requested < 0, p.Failed < 0:
		return errors.New("negative run count")
	case p.StalledRuns > p.ScannedRuns:
		return errors.New("stalled_runs exceeds scanned_runs")
	case p.Requested+p.Failed > p.StalledRuns:
		return errors.New("requested plus failed exceeds stalled_runs")
	}
	return nil
}

// WatchdogTriggerPayload is the schema for watchdog.trigger messages.
type WatchdogTriggerPayload struct {
	DryRun bool `json:"dry_run"`
	Force  bool `json:"force"`
}

func (WatchdogTriggerPayload) Check() error { return nil }

// MirrorCompletedPayload is the schema for mirror.completed messages.
type MirrorCompletedPayload struct {
	SessionID     string `json:"session_id"`
	SessionKey    string `json:"session_key"`
	MainSessionID string `json:"main_session_id"`
	Action        string `json:"action"`
}

func (p MirrorCompletedPayload) Check() error {
	if p.SessionID == "" {
		return errors.New("session_id is required")
	}
	if p.Action == "" {
		return errors.New("action is required")
	}
	return nil
}
