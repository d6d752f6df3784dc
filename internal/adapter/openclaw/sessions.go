package openclaw

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/Strob0t/missioncontrol/internal/adapter/registry"
	"github.com/Strob0t/missioncontrol/internal/domain/agent"
)

// ListActiveSessions runs `openclaw sessions --active N --json`.
func (c *Client) ListActiveSessions(ctx context.Context, activeMinutes int) ([]agent.Session, error) {
	if activeMinutes < 1 {
		activeMinutes = 1
	}
	out, err := c.run(ctx, []string{"sessions", "--active", strconv.Itoa(activeMinutes), "--json"}, runOptions{
		timeout:   c.cfg.SessionsTimeout,
		maxOutput: c.cfg.GatewayOutputBytes,
	})
	if err != nil {
		return nil, err
	}

	candidates, err := jsonCandidates(out)
	if err != nil {
		return nil, errors.New("openclaw sessions returned empty output")
	}
	for _, cand := range candidates {
		if !looksLikeSessionList([]byte(cand)) {
			continue
		}
		sessions, err := registry.DecodeSessions([]byte(cand), c.now().UnixMilli())
		if err != nil {
			continue
		}
		return sessions, nil
	}
	return nil, errors.New("unable to parse JSON from openclaw sessions output")
}

// looksLikeSessionList accepts a bare array or an object carrying a
// sessions array. Other shapes are log noise that happens to parse.
func looksLikeSessionList(data []byte) bool {
	var arr []json.RawMessage
	if json.Unmarshal(data, &arr) == nil {
		return true
	}
	var obj struct {
		Sessions []json.RawMessage `json:"sessions"`
	}
	return json.Unmarshal(data, &obj) == nil && obj.Sessions != nil
}
