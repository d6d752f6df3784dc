package agent

// Message roles shown in a column transcript.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// Column sources.
const (
	SourceSession     = "session"
	SourceSubagentRun = "subagent-run"
)

// Message is one transcript entry rendered in a column.
type Message struct {
	ID   string `json:"id"`
	Role string `json:"role"`
	Text string `json:"text"`
	// Timestamp keeps the transcript's own representation (ms, seconds or ISO text).
	Timestamp any `json:"timestamp,omitempty"`
}

// TimestampMs returns the message timestamp in Unix milliseconds.
func (m Message) TimestampMs() (int64, bool) {
	return ParseTimestampMs(m.Timestamp)
}

// Column is the fused, display-ready view of one agent. Columns are derived
// on every snapshot and never persisted.
type Column struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	SessionShortID string    `json:"sessionShortId"`
	SessionID      string    `json:"sessionId,omitempty"`
	SessionKey     string    `json:"sessionKey"`
	Status         Status    `json:"status"`
	Model          string    `json:"model,omitempty"`
	Runtime        string    `json:"runtime"`
	LastActivity   string    `json:"lastActivity,omitempty"`
	Messages       []Message `json:"messages"`
	CanSend        bool      `json:"canSend"`
	Source         string    `json:"source"`
}

// Snapshot is the dashboard payload: the agent columns plus human-readable
// notes about sources that could not be read.
type Snapshot struct {
	Agents      []Column `json:"agents"`
	LastUpdated string   `json:"lastUpdated"`
	Limitations []string `json:"limitations"`
}

// LastActivityMs is the later of the session's update time and the newest
// message timestamp. ok is false when neither is known.
func LastActivityMs(updatedAt int64, messages []Message) (int64, bool) {
	var newest int64
	var haveMsg bool
	if n := len(messages); n > 0 {
		newest, haveMsg = messages[n-1].TimestampMs()
	}
	switch {
	case haveMsg && updatedAt != 0:
		return max(updatedAt, newest), true
	case haveMsg:
		return newest, true
	case updatedAt != 0:
		return updatedAt, true
	}
	return 0, false
}
