package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/Strob0t/missioncontrol/internal/domain/agent"
	"github.com/Strob0t/missioncontrol/internal/port/runtime"
)

type runEntry struct {
	RunID               looseString     `json:"runId"`
	ChildSessionKey     looseString     `json:"childSessionKey"`
	RequesterSessionKey looseString     `json:"requesterSessionKey"`
	RequesterOrigin     json.RawMessage `json:"requesterOrigin"`
	Label               looseString     `json:"label"`
	Task                looseString     `json:"task"`
	Model               looseString     `json:"model"`
	RunTimeoutSeconds   looseNumber     `json:"runTimeoutSeconds"`
	CreatedAt           looseNumber     `json:"createdAt"`
	StartedAt           looseNumber     `json:"startedAt"`
	EndedAt             looseNumber     `json:"endedAt"`
	Status              looseString     `json:"status"`
	State               looseString     `json:"state"`
	Phase               looseString     `json:"phase"`
	Outcome             json.RawMessage `json:"outcome"`
}

type statusHolder struct {
	Status  looseString `json:"status"`
	Channel looseString `json:"channel"`
}

func nested(raw json.RawMessage) statusHolder {
	var h statusHolder
	if isObject(raw) {
		_ = json.Unmarshal(raw, &h)
	}
	return h
}

func (e runEntry) run(fallbackID string) agent.Run {
	id := string(e.RunID)
	if id == "" {
		id = fallbackID
	}
	r := agent.Run{
		RunID:               id,
		ChildSessionKey:     string(e.ChildSessionKey),
		RequesterSessionKey: string(e.RequesterSessionKey),
		RequesterChannel:    string(nested(e.RequesterOrigin).Channel),
		Label:               string(e.Label),
		Task:                string(e.Task),
		Model:               string(e.Model),
		CreatedAt:           e.CreatedAt.int64(),
		StartedAt:           e.StartedAt.int64(),
		EndedAt:             e.EndedAt.int64(),
		Signals: agent.ResolveSignals(
			string(e.Status), string(e.State), string(e.Phase), string(nested(e.Outcome).Status),
		),
	}
	if e.RunTimeoutSeconds.Valid {
		r.RunTimeoutSeconds = e.RunTimeoutSeconds.Value
	}
	return r
}

// DecodeRuns parses the run ledger: {"runs": {id: run}}, {"runs": [...]},
// a bare array, or a bare map keyed by run id. Malformed entries are skipped.
// Map-shaped ledgers are returned in key order so results are stable.
func DecodeRuns(data []byte) ([]agent.Run, error) {
	var raw json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode runs: %w", err)
	}

	if isObject(raw) {
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal(raw, &wrapper); err != nil {
			return nil, fmt.Errorf("decode runs: %w", err)
		}
		if inner, ok := wrapper["runs"]; ok && (isObject(inner) || isArray(inner)) {
			raw = inner
		}
	}

	switch {
	case isArray(raw):
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("decode runs: %w", err)
		}
		out := make([]agent.Run, 0, len(items))
		for _, item := range items {
			if r, ok := decodeRun(item, ""); ok {
				out = append(out, r)
			}
		}
		return out, nil
	case isObject(raw):
		var byID map[string]json.RawMessage
		if err := json.Unmarshal(raw, &byID); err != nil {
			return nil, fmt.Errorf("decode runs: %w", err)
		}
		ids := make([]string, 0, len(byID))
		for id := range byID {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		out := make([]agent.Run, 0, len(ids))
		for _, id := range ids {
			if r, ok := decodeRun(byID[id], id); ok {
				out = append(out, r)
			}
		}
		return out, nil
	}
	return nil, errors.New("decode runs: unexpected document shape")
}

func decodeRun(raw json.RawMessage, id string) (agent.Run, bool) {
	if !isObject(raw) {
		return agent.Run{}, false
	}
	var e runEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return agent.Run{}, false
	}
	return e.run(id), true
}

// RunsReader reads runs.json.
type RunsReader struct {
	path string
}

var _ runtime.RunLister = (*RunsReader)(nil)

// NewRunsReader returns a reader for the ledger at path.
func NewRunsReader(path string) *RunsReader {
	return &RunsReader{path: path}
}

// ListRuns returns every run in the ledger. A missing ledger yields none.
func (r *RunsReader) ListRuns(_ context.Context) ([]agent.Run, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []agent.Run{}, nil
		}
		return nil, fmt.Errorf("read runs ledger: %w", err)
	}
	return DecodeRuns(data)
}
