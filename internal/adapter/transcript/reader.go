// Package transcript reads session logs: append-only JSONL files, one record
// per line, newest at the end.
package transcript

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Strob0t/missioncontrol/internal/domain/agent"
	"github.com/Strob0t/missioncontrol/internal/port/cache"
)

// Limits bound the work done per session.
type Limits struct {
	MaxMessages   int // messages collected per transcript
	MaxScanLines  int // non-empty lines inspected, newest first
	MaxModelLines int // lines inspected for the model declaration
	MaxTextChars  int // characters kept per message
}

// DefaultLimits returns the dashboard defaults.
func DefaultLimits() Limits {
	return Limits{MaxMessages: 40, MaxScanLines: 4000, MaxModelLines: 120, MaxTextChars: 6000}
}

const maxLineBytes = 16 << 20

// Reader resolves and parses transcripts under a sessions directory.
type Reader struct {
	dir    string
	limits Limits
	models cache.ModelCache // optional
}

// NewReader returns a reader. models may be nil, which disables the model
// memo.
func NewReader(sessionsDir string, limits Limits, models cache.ModelCache) *Reader {
	return &Reader{dir: sessionsDir, limits: limits, models: models}
}

// Path resolves the transcript file of a session: its sessionFile (absolute,
// or relative to the sessions directory), else <sessionId>.jsonl.
func (r *Reader) Path(s agent.Session) string {
	if s.SessionFile != "" {
		if filepath.IsAbs(s.SessionFile) {
			return s.SessionFile
		}
		return filepath.Join(r.dir, s.SessionFile)
	}
	if s.SessionID == "" {
		return ""
	}
	return filepath.Join(r.dir, s.SessionID+".jsonl")
}

type record struct {
	Type      string          `json:"type"`
	ID        json.RawMessage `json:"id"`
	Timestamp any             `json:"timestamp"`
	Message   *struct {
		Role      string          `json:"role"`
		Content   json.RawMessage `json:"content"`
		Timestamp any             `json:"timestamp"`
	} `json:"message"`
}

// ReadMessages returns up to MaxMessages user, assistant and system messages,
// oldest first. A missing transcript yields an empty slice.
func (r *Reader) ReadMessages(_ context.Context, s agent.Session) ([]agent.Message, error) {
	path := r.Path(s)
	if path == "" {
		return []agent.Message{}, nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is derived from the runtime's session registry
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []agent.Message{}, nil
		}
		return nil, fmt.Errorf("read transcript %s: %w", path, err)
	}

	idBase := s.SessionID
	if idBase == "" {
		idBase = strings.TrimSuffix(filepath.Base(path), ".jsonl")
	}

	lines := bytes.Split(data, []byte{'\n'})
	messages := make([]agent.Message, 0, min(r.limits.MaxMessages, 64))
	scanned := 0

	for i := len(lines) - 1; i >= 0; i-- {
		if scanned >= r.limits.MaxScanLines || len(messages) >= r.limits.MaxMessages {
			break
		}
		line := lines[i]
		if len(line) == 0 {
			continue
		}
		scanned++

		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		if rec.Type != "message" || rec.Message == nil || rec.Message.Role == "" {
			continue
		}
		role := normalizeRole(rec.Message.Role)
		if role == agent.RoleTool {
			continue
		}
		text := strings.TrimSpace(extractText(rec.Message.Content))
		if text == "" {
			continue
		}

		id := stringValue(rec.ID)
		if id == "" {
			id = idBase + "-" + strconv.Itoa(i)
		}
		ts := rec.Message.Timestamp
		if ts == nil {
			ts = rec.Timestamp
		}

		messages = append(messages, agent.Message{
			ID:        id,
			Role:      role,
			Text:      agent.Prefix(text, r.limits.MaxTextChars),
			Timestamp: ts,
		})
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func normalizeRole(role string) string {
	switch role {
	case agent.RoleUser, agent.RoleAssistant, agent.RoleSystem:
		return role
	}
	return agent.RoleTool
}

func stringValue(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

// extractText flattens message content: plain strings, arrays of parts
// (thinking and tool calls skipped, nested content followed), or an object
// with a text field.
func extractText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		return stringValue(raw)
	case '[':
		var items []json.RawMessage
		if json.Unmarshal(raw, &items) != nil {
			return ""
		}
		parts := make([]string, 0, len(items))
		for _, item := range items {
			var part struct {
				Type    string          `json:"type"`
				Text    json.RawMessage `json:"text"`
				Content json.RawMessage `json:"content"`
			}
			if json.Unmarshal(item, &part) != nil {
				continue
			}
			if part.Type == "thinking" || part.Type == "toolCall" {
				continue
			}
			if t := stringValue(part.Text); strings.TrimSpace(t) != "" {
				parts = append(parts, t)
			}
			if nested := extractText(part.Content); strings.TrimSpace(nested) != "" {
				parts = append(parts, nested)
			}
		}
		return strings.TrimSpace(strings.Join(parts, "\n\n"))
	case '{':
		var obj struct {
			Text json.RawMessage `json:"text"`
		}
		if json.Unmarshal(raw, &obj) != nil {
			return ""
		}
		return stringValue(obj.Text)
	}
	return ""
}

// ReadModel returns the latest model declared in the first MaxModelLines
// lines of the transcript. Results are memoized per path and reused while
// the file's size and modification time are unchanged.
func (r *Reader) ReadModel(_ context.Context, s agent.Session) string {
	path := r.Path(s)
	if path == "" {
		return ""
	}
	info, err := os.Stat(path)
	if err != nil {
		return ""
	}
	stamp := cache.StampOf(info)

	if model, ok := cache.Fresh(r.models, path, stamp); ok {
		return model
	}
	model := r.scanModel(path)
	if r.models != nil {
		r.models.Store(path, cache.Entry{Stamp: stamp, Model: model})
	}
	return model
}

type modelRecord struct {
	Type       string `json:"type"`
	Provider   string `json:"provider"`
	ModelID    string `json:"modelId"`
	CustomType string `json:"customType"`
	Data       *struct {
		Provider string `json:"provider"`
		Model    string `json:"model"`
		ModelID  string `json:"modelId"`
	} `json:"data"`
}

func (r *Reader) scanModel(path string) string {
	f, err := os.Open(path) //nolint:gosec // G304: see ReadMessages
	if err != nil {
		return ""
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	latest := ""
	for n := 0; n < r.limits.MaxModelLines && sc.Scan(); n++ {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec modelRecord
		if json.Unmarshal(line, &rec) != nil {
			continue
		}
		if rec.Type == "model_change" && rec.ModelID != "" {
			latest = qualify(rec.Provider, rec.ModelID)
			continue
		}
		if rec.Type == "custom" && rec.CustomType == "model-snapshot" && rec.Data != nil {
			m := rec.Data.ModelID
			if m == "" {
				m = rec.Data.Model
			}
			if m != "" {
				latest = qualify(rec.Data.Provider, m)
			}
		}
	}
	return latest
}

func qualify(provider, model string) string {
	provider, model = strings.TrimSpace(provider), strings.TrimSpace(model)
	if provider == "" {
		return model
	}
	return provider + "/" + model
}
