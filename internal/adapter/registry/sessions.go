// Package registry reads the runtime's on-disk session index and subagent
// run ledger.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/Strob0t/missioncontrol/internal/domain/agent"
	"github.com/Strob0t/missioncontrol/internal/port/runtime"
)

type sessionEntry struct {
	Key         looseString `json:"key"`
	SessionID   looseString `json:"sessionId"`
	UpdatedAt   looseNumber `json:"updatedAt"`
	AgeMs       looseNumber `json:"ageMs"`
	SessionFile looseString `json:"sessionFile"`
	Model       looseString `json:"model"`
}

func (e sessionEntry) session(key string) agent.Session {
	s := agent.Session{
		Key:         key,
		SessionID:   string(e.SessionID),
		UpdatedAt:   e.UpdatedAt.int64(),
		SessionFile: string(e.SessionFile),
		Model:       string(e.Model),
	}
	if e.AgeMs.Valid {
		age := e.AgeMs.int64()
		s.AgeMs = &age
	}
	return s
}

// DecodeSessions parses a session listing: a bare array, an object with a
// "sessions" or "items" array, or an object keyed by session key. Entries
// without a key are dropped and missing ages are computed from nowMs.
func DecodeSessions(data []byte, nowMs int64) ([]agent.Session, error) {
	var raw json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode sessions: %w", err)
	}

	var out []agent.Session
	switch {
	case isArray(raw):
		list, err := decodeEntryList(raw)
		if err != nil {
			return nil, err
		}
		out = list
	case isObject(raw):
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal(raw, &wrapper); err != nil {
			return nil, fmt.Errorf("decode sessions: %w", err)
		}
		if list, ok := wrapper["sessions"]; ok && isArray(list) {
			out, _ = decodeEntryList(list)
			break
		}
		if list, ok := wrapper["items"]; ok && isArray(list) {
			out, _ = decodeEntryList(list)
			break
		}
		keys := make([]string, 0, len(wrapper))
		for key := range wrapper {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			v := wrapper[key]
			if key == "" || !isObject(v) {
				continue
			}
			var e sessionEntry
			if err := json.Unmarshal(v, &e); err != nil {
				continue
			}
			out = append(out, e.session(key))
		}
	default:
		return nil, errors.New("decode sessions: unexpected document shape")
	}

	for i := range out {
		out[i].FillAge(nowMs)
	}
	return out, nil
}

func decodeEntryList(raw json.RawMessage) ([]agent.Session, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode sessions: %w", err)
	}
	out := make([]agent.Session, 0, len(items))
	for _, item := range items {
		if !isObject(item) {
			continue
		}
		var e sessionEntry
		if err := json.Unmarshal(item, &e); err != nil {
			continue
		}
		if e.Key == "" {
			continue
		}
		out = append(out, e.session(string(e.Key)))
	}
	return out, nil
}

// IndexReader lists sessions from the sessions.json index file. It is the
// fallback when the runtime CLI cannot be queried.
type IndexReader struct {
	path string
	now  func() time.Time
}

var _ runtime.SessionLister = (*IndexReader)(nil)

// NewIndexReader returns a reader for the index at path.
func NewIndexReader(path string) *IndexReader {
	return &IndexReader{path: path, now: time.Now}
}

// ListActiveSessions returns agent sessions updated within the window, newest
// first. Sessions with unknown age are kept. A missing index yields no
// sessions.
func (r *IndexReader) ListActiveSessions(_ context.Context, activeMinutes int) ([]agent.Session, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []agent.Session{}, nil
		}
		return nil, fmt.Errorf("read sessions index: %w", err)
	}

	sessions, err := DecodeSessions(data, r.now().UnixMilli())
	if err != nil {
		return nil, err
	}

	window := int64(activeMinutes) * int64(time.Minute/time.Millisecond)
	out := make([]agent.Session, 0, len(sessions))
	for _, s := range sessions {
		if !agent.IsAgentKey(s.Key) {
			continue
		}
		if s.AgeMs != nil && *s.AgeMs > window {
			continue
		}
		out = append(out, s)
	}
	agent.SortByRecency(out)
	return out, nil
}
