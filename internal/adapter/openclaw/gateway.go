package openclaw

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Strob0t/missioncontrol/internal/domain/watchdog"
	"github.com/Strob0t/missioncontrol/internal/port/runtime"
)

// gatewayExecFloor is the minimum process budget for a gateway call.
const gatewayExecFloor = 60 * time.Second

// Call invokes a gateway RPC method and returns its JSON result.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal %s params: %w", method, err)
	}
	timeout := c.cfg.GatewayTimeout
	if timeout <= 0 {
		timeout = gatewayExecFloor
	}
	execTimeout := timeout + 5*time.Second
	if execTimeout < gatewayExecFloor {
		execTimeout = gatewayExecFloor
	}

	out, err := c.run(ctx, []string{
		"gateway", "call", method,
		"--params", string(body),
		"--json",
		"--timeout", strconv.FormatInt(timeout.Milliseconds(), 10),
	}, runOptions{timeout: execTimeout, maxOutput: c.cfg.GatewayOutputBytes})
	if err != nil {
		return nil, err
	}
	raw, err := parseJSON(out)
	if err != nil {
		return nil, fmt.Errorf("gateway %s: %w", method, err)
	}
	return raw, nil
}

// Spawn submits a replacement run through the gateway "agent" method.
func (c *Client) Spawn(ctx context.Context, p watchdog.RequeuePayload) (runtime.SpawnResponse, error) {
	raw, err := c.Call(ctx, "agent", p)
	if err != nil {
		return runtime.SpawnResponse{}, err
	}
	var resp struct {
		RunID  any `json:"runId"`
		Status any `json:"status"`
	}
	_ = json.Unmarshal(raw, &resp)
	return runtime.SpawnResponse{
		RunID:  trimmedString(resp.RunID),
		Status: trimmedString(resp.Status),
		Raw:    raw,
	}, nil
}

// PatchSessionModel pins the model of a session before a run starts in it.
func (c *Client) PatchSessionModel(ctx context.Context, sessionKey, model string) error {
	_, err := c.Call(ctx, "sessions.patch", map[string]string{"key": sessionKey, "model": model})
	return err
}

func trimmedString(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}
