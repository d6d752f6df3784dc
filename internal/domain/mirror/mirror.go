// Package mirror defines the reply-mirroring policy: the summary forwarded
// to the main session, its fingerprint, and the per-session cooldown and
// dedupe gates.
package mirror

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Strob0t/missioncontrol/internal/domain/agent"
)

// SourceLabel prefixes every mirrored summary.
const SourceLabel = "Mission Control mirror"

// Skip reasons reported when no summary is forwarded.
const (
	ReasonNotSubagent = "target-session-is-not-a-subagent"
	ReasonDuplicate   = "duplicate-within-dedupe-window"
)

// Summary and fingerprint lengths.
const (
	summarySentChars      = 180
	summaryReplyChars     = 260
	fingerprintSentChars  = 220
	fingerprintReplyChars = 260
)

// Entry is the persisted mirror history of one session. Times are Unix ms.
type Entry struct {
	LastMirroredAt    int64  `json:"lastMirroredAt,omitempty"`
	LastFingerprint   string `json:"lastFingerprint,omitempty"`
	LastFingerprintAt int64  `json:"lastFingerprintAt,omitempty"`
}

// State is the mirror-state.json document, keyed by session id.
type State struct {
	BySession map[string]Entry `json:"bySession"`
}

// NewState returns an empty state.
func NewState() State {
	return State{BySession: make(map[string]Entry)}
}

// Decode parses a stored state document. Empty input yields an empty state.
func Decode(data []byte) (State, error) {
	st := NewState()
	if len(strings.TrimSpace(string(data))) == 0 {
		return st, nil
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return NewState(), fmt.Errorf("decode mirror state: %w", err)
	}
	if st.BySession == nil {
		st.BySession = make(map[string]Entry)
	}
	return st, nil
}

// Encode serializes the state for storage.
func (s State) Encode() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// Policy holds the two mirror gates.
type Policy struct {
	Cooldown     time.Duration
	DedupeWindow time.Duration
}

// Check decides whether a summary with the given fingerprint may be
// forwarded for sessionID now. It returns the skip reason when not.
// The cooldown bounds total traffic regardless of content; the fingerprint
// gate suppresses exact repeats even after the cooldown has passed.
func (s State) Check(sessionID, fingerprint string, now time.Time, p Policy) (string, bool) {
	e := s.BySession[sessionID]
	nowMs := now.UnixMilli()

	if e.LastMirroredAt != 0 {
		if elapsed := nowMs - e.LastMirroredAt; elapsed < p.Cooldown.Milliseconds() {
			return fmt.Sprintf("cooldown-%ds", ceilSeconds(p.Cooldown.Milliseconds()-elapsed)), false
		}
	}

	if e.LastFingerprint != "" && e.LastFingerprint == fingerprint && e.LastFingerprintAt != 0 &&
		nowMs-e.LastFingerprintAt < p.DedupeWindow.Milliseconds() {
		return ReasonDuplicate, false
	}

	return "", true
}

// Record stores a successful forward.
func (s State) Record(sessionID, fingerprint string, now time.Time) {
	nowMs := now.UnixMilli()
	s.BySession[sessionID] = Entry{
		LastMirroredAt:    nowMs,
		LastFingerprint:   fingerprint,
		LastFingerprintAt: nowMs,
	}
}

// Fingerprint normalizes an (action, sent, reply) triple so that repeats of
// the same exchange compare equal.
func Fingerprint(action, sent, reply string) string {
	return agent.NormalizeWhitespace(action + "|" + agent.Prefix(sent, fingerprintSentChars) + "|" + agent.Prefix(reply, fingerprintReplyChars))
}

// Summary builds the three-line message forwarded to the main session.
func Summary(sessionLabel, action, sent, reply string) string {
	outgoing := agent.Truncate(agent.NormalizeWhitespace(sent), summarySentChars)
	incoming := agent.Truncate(agent.NormalizeWhitespace(reply), summaryReplyChars)
	if incoming == "" {
		incoming = "[empty reply]"
	}
	if outgoing == "" {
		outgoing = "[empty message]"
	}

	return fmt.Sprintf("%s: %s replied (%s).\nReply summary: %s\nSent message: %s",
		SourceLabel, sessionLabel, action, incoming, outgoing)
}

// SessionLabel is the short name used in summaries for a target session.
func SessionLabel(target *agent.Session) string {
	if target == nil || target.Key == "" {
		return "subagent"
	}
	return agent.ShortID(target.Key)
}

// Result reports what happened to one mirror attempt.
type Result struct {
	Attempted      bool   `json:"attempted"`
	Mirrored       bool   `json:"mirrored"`
	SkippedReason  string `json:"skippedReason,omitempty"`
	SummaryMessage string `json:"summaryMessage,omitempty"`
	MainSessionID  string `json:"mainSessionId,omitempty"`
	MainReply      string `json:"mainReply,omitempty"`
}

func ceilSeconds(ms int64) int64 {
	return int64(math.Ceil(float64(ms) / 1000))
}
