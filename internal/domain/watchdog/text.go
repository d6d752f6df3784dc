package watchdog

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Strob0t/missioncontrol/internal/domain/agent"
)

const taskSummaryChars = 220

// Reason distinguishes watchdog-triggered retries from manual ones.
type Reason struct {
	Manual     bool
	StalledFor time.Duration
	Threshold  time.Duration
}

// FormatMinutes renders a duration as whole minutes, at least 1m when positive.
func FormatMinutes(d time.Duration) string {
	if d <= 0 {
		return "0m"
	}
	m := int64(math.Round(float64(d.Milliseconds()) / 60000))
	if m < 1 {
		m = 1
	}
	return fmt.Sprintf("%dm", m)
}

// RetrySummary is the human-readable description of a retry request.
func RetrySummary(r agent.Run, reason Reason) string {
	lines := []string{"Mission Control retry request"}
	if reason.Manual {
		lines = append(lines, "Manual retry requested from Mission Control.")
	} else {
		lines = append(lines, fmt.Sprintf("Auto-retry triggered after stall (%s > threshold %s).",
			FormatMinutes(reason.StalledFor), FormatMinutes(reason.Threshold)))
	}
	lines = append(lines, "Original session: "+r.ChildSessionKey)
	if id := strings.TrimSpace(r.RunID); id != "" {
		lines = append(lines, "Original run: "+id)
	}
	if label := strings.TrimSpace(r.Label); label != "" {
		lines = append(lines, "Label: "+label)
	}
	task := agent.Truncate(agent.NormalizeWhitespace(r.Task), taskSummaryChars)
	if task == "" {
		task = "[task unavailable]"
	}
	lines = append(lines, "Task summary: "+task)
	return strings.Join(lines, "\n")
}

// StatusUpdate is the consolidated message posted to the main session after
// a scan. Items should already be filtered to attempted ones.
func StatusUpdate(items []RetryItem, threshold time.Duration) string {
	lines := []string{
		"Mission Control watchdog update",
		fmt.Sprintf("Stalled threshold: %s.", FormatMinutes(threshold)),
	}
	for _, item := range items {
		label := "session " + item.SessionKey
		if item.RunID != "" {
			label = "run " + item.RunID
		}
		stalled := FormatMinutes(time.Duration(item.StalledForMs) * time.Millisecond)

		if item.Requested {
			target := item.NewRunID
			if target == "" {
				target = "new run pending"
			}
			state := item.CurrentState
			if state == "" {
				state = defaultAcceptedState
			}
			lines = append(lines, fmt.Sprintf("- Retried %s after %s stall → %s (%s).", label, stalled, target, state))
			continue
		}

		why := item.SkippedReason
		if why == "" {
			why = "unknown reason"
		}
		lines = append(lines, fmt.Sprintf("- Could not retry %s after %s stall: %s.", label, stalled, why))
	}
	return strings.Join(lines, "\n")
}

// Limitation is the snapshot note added after a scan requested retries.
func Limitation(requested int) string {
	plural := "s"
	if requested == 1 {
		plural = ""
	}
	return fmt.Sprintf("Watchdog retried %d stalled run%s and posted an update to Main Agent.", requested, plural)
}
