// Package watchdog holds the stalled-run watchdog's persisted ledger, its
// candidate selection and gating rules, and the text it produces.
package watchdog

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/Strob0t/missioncontrol/internal/domain/agent"
)

// Skip reasons and ledger outcomes.
const (
	ReasonAlreadyRetried = "already-retried-once"
	ReasonDryRun         = "dry-run"

	StatusRequeued       = "requeued"
	StatusRequeueFailed  = "requeue-failed"
	StateDryRun          = "dry-run"
	defaultAcceptedState = "accepted"
)

// RunAttempt is the ledger entry of one run. Attempts saturates at 1.
type RunAttempt struct {
	Attempts      int    `json:"attempts"`
	LastAttemptAt int64  `json:"lastAttemptAt,omitempty"`
	LastRunStatus string `json:"lastRunStatus,omitempty"`
}

// State is the watchdog-state.json document.
type State struct {
	LastScanAt int64                 `json:"lastScanAt,omitempty"`
	Runs       map[string]RunAttempt `json:"runs"`
}

// NewState returns an empty ledger.
func NewState() State {
	return State{Runs: make(map[string]RunAttempt)}
}

// Decode parses a stored ledger. Empty input yields an empty ledger.
func Decode(data []byte) (State, error) {
	st := NewState()
	if len(strings.TrimSpace(string(data))) == 0 {
		return st, nil
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return NewState(), fmt.Errorf("decode watchdog state: %w", err)
	}
	if st.Runs == nil {
		st.Runs = make(map[string]RunAttempt)
	}
	return st, nil
}

// Encode serializes the ledger for storage.
func (s State) Encode() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// ScanGate reports whether a scan must be skipped because the previous one
// is still within cooldown.
func (s State) ScanGate(now time.Time, cooldown time.Duration) (string, bool) {
	if s.LastScanAt == 0 {
		return "", false
	}
	elapsed := now.UnixMilli() - s.LastScanAt
	if elapsed < cooldown.Milliseconds() {
		return fmt.Sprintf("scan-cooldown-%ds", ceilSeconds(cooldown.Milliseconds()-elapsed)), true
	}
	return "", false
}

// RunGate reports whether the run with the given stable id must be skipped.
func (s State) RunGate(runID string, now time.Time, cooldown time.Duration) (string, bool) {
	prev, ok := s.Runs[runID]
	if !ok {
		return "", false
	}
	if prev.Attempts >= 1 {
		return ReasonAlreadyRetried, true
	}
	if prev.LastAttemptAt != 0 {
		if elapsed := now.UnixMilli() - prev.LastAttemptAt; elapsed < cooldown.Milliseconds() {
			return fmt.Sprintf("retry-cooldown-%ds", ceilSeconds(cooldown.Milliseconds()-elapsed)), true
		}
	}
	return "", false
}

// RecordAttempt consumes the single retry of a run.
func (s State) RecordAttempt(runID string, now time.Time, status string) {
	s.Runs[runID] = RunAttempt{
		Attempts:      1,
		LastAttemptAt: now.UnixMilli(),
		LastRunStatus: status,
	}
}

// Options control one scan.
type Options struct {
	DryRun bool `json:"dryRun"`
	Force  bool `json:"force"`
}

// Candidate is a running run whose heartbeat is older than the threshold.
type Candidate struct {
	Run        agent.Run
	StalledFor time.Duration
}

// Candidates selects stalled runs, worst first.
func Candidates(runs []agent.Run, now time.Time, threshold time.Duration) []Candidate {
	out := make([]Candidate, 0)
	for _, r := range runs {
		if r.ChildSessionKey == "" || !r.IsRunning() {
			continue
		}
		stalled := r.StalledFor(now)
		if stalled < threshold {
			continue
		}
		out = append(out, Candidate{Run: r, StalledFor: stalled})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StalledFor > out[j].StalledFor
	})
	return out
}

// Result reports one scan.
type Result struct {
	CheckedAt     string      `json:"checkedAt"`
	ThresholdMs   int64       `json:"thresholdMs"`
	ScannedRuns   int         `json:"scannedRuns"`
	StalledRuns   int         `json:"stalledRuns"`
	Retries       []RetryItem `json:"retries"`
	SkippedScan   bool        `json:"skippedScan"`
	SkippedReason string      `json:"skippedReason,omitempty"`
}

// Requested counts retries that were submitted to the runtime.
func (r Result) Requested() int {
	n := 0
	for _, item := range r.Retries {
		if item.Requested {
			n++
		}
	}
	return n
}

// FailedCount counts requeues that were attempted and failed.
func (r Result) FailedCount() int {
	n := 0
	for _, item := range r.Retries {
		if item.Failed {
			n++
		}
	}
	return n
}

// RetryItem is the outcome for one candidate.
type RetryItem struct {
	RunID          string          `json:"runId,omitempty"`
	SessionKey     string          `json:"sessionKey"`
	StalledForMs   int64           `json:"stalledForMs"`
	DryRun         bool            `json:"dryRun"`
	Requested      bool            `json:"requested"`
	SkippedReason  string          `json:"skippedReason,omitempty"`
	SummaryMessage string          `json:"summaryMessage,omitempty"`
	NewRunID       string          `json:"newRunId,omitempty"`
	NewSessionKey  string          `json:"newSessionKey,omitempty"`
	CurrentState   string          `json:"currentState,omitempty"`
	Payload        *RequeuePayload `json:"payload,omitempty"`
	// Failed marks a requeue that was attempted and rejected.
	Failed bool `json:"-"`
}

func ceilSeconds(ms int64) int64 {
	return int64(math.Ceil(float64(ms) / 1000))
}
