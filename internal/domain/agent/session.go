package agent

import (
	"sort"
	"strings"
)

// MainSessionKey is the coordinating session every deployment has.
const MainSessionKey = "agent:main:main"

// Session is one active session from the runtime's session registry. It is
// read-only here and re-read on every poll.
type Session struct {
	Key         string `json:"key"`
	SessionID   string `json:"sessionId,omitempty"`
	UpdatedAt   int64  `json:"updatedAt,omitempty"` // Unix ms, zero when unknown
	AgeMs       *int64 `json:"ageMs,omitempty"`
	Model       string `json:"model,omitempty"`
	SessionFile string `json:"sessionFile,omitempty"`
}

// IsSubagentKey reports whether a key names a delegated subagent session.
func IsSubagentKey(key string) bool {
	return strings.Contains(key, ":subagent:")
}

// IsEphemeralKey reports whether a key names a per-run or cron sub-session.
func IsEphemeralKey(key string) bool {
	return strings.Contains(key, ":run:") || strings.Contains(key, ":cron:")
}

// IsAgentKey reports whether a key lives in the addressable agent namespace.
func IsAgentKey(key string) bool {
	return strings.HasPrefix(key, "agent:")
}

// FillAge sets AgeMs from UpdatedAt when the source did not provide it.
func (s *Session) FillAge(nowMs int64) {
	if s.AgeMs != nil || s.UpdatedAt == 0 {
		return
	}
	age := nowMs - s.UpdatedAt
	s.AgeMs = &age
}

// SortByRecency orders sessions newest first.
func SortByRecency(sessions []Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt > sessions[j].UpdatedAt
	})
}

// FindBySessionID returns the session carrying the given session id.
func FindBySessionID(sessions []Session, sessionID string) (Session, bool) {
	for _, s := range sessions {
		if s.SessionID != "" && s.SessionID == sessionID {
			return s, true
		}
	}
	return Session{}, false
}

// ResolveMainSession picks the newest addressable main session: keys ending
// in ":main", excluding run and cron sub-keys, that carry a session id.
func ResolveMainSession(sessions []Session) (Session, bool) {
	candidates := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		if strings.HasSuffix(s.Key, ":main") && !IsEphemeralKey(s.Key) {
			candidates = append(candidates, s)
		}
	}
	SortByRecency(candidates)
	for _, s := range candidates {
		if s.SessionID != "" {
			return s, true
		}
	}
	return Session{}, false
}
