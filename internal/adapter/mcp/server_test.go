package mcp_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	mcmcp "github.com/Strob0t/missioncontrol/internal/adapter/mcp"
	"github.com/Strob0t/missioncontrol/internal/domain/agent"
	"github.com/Strob0t/missioncontrol/internal/domain/mirror"
	"github.com/Strob0t/missioncontrol/internal/domain/watchdog"
	"github.com/Strob0t/missioncontrol/internal/service"
)

// --- Mocks ---

type mockSnapshots struct {
	snap agent.Snapshot
}

func (m *mockSnapshots) Build(_ context.Context) agent.Snapshot { return m.snap }

type mockWatchdog struct {
	opts watchdog.Options
	res  watchdog.Result
	err  error
}

func (m *mockWatchdog) Run(_ context.Context, opts watchdog.Options) (watchdog.Result, error) {
	m.opts = opts
	return m.res, m.err
}

type mockMessenger struct {
	in  service.SendInput
	err error
}

func (m *mockMessenger) SendWithMirror(_ context.Context, in service.SendInput) (service.SendOutcome, error) {
	m.in = in
	if m.err != nil {
		return service.SendOutcome{}, m.err
	}
	return service.SendOutcome{Reply: "on it", Mirror: mirror.Result{SkippedReason: mirror.ReasonNotSubagent}}, nil
}

func newTestServer(deps mcmcp.ServerDeps) *mcmcp.Server {
	return mcmcp.NewServer(mcmcp.ServerConfig{Name: "test", Version: "0.1.0"}, deps)
}

func callTool(t *testing.T, s *mcmcp.Server, name string, args map[string]any) *mcplib.CallToolResult {
	t.Helper()
	tool, ok := s.MCPServer().ListTools()[name]
	if !ok {
		t.Fatalf("%s tool not found", name)
	}
	result, err := tool.Handler(context.Background(), mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{Name: name, Arguments: args},
	})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	return result
}

func resultText(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	text, ok := result.Content[0].(mcplib.TextContent)
	if !ok {
		t.Fatal("expected TextContent")
	}
	return text.Text
}

// --- Tests ---

func TestToolRegistration(t *testing.T) {
	s := newTestServer(mcmcp.ServerDeps{})

	tools := s.MCPServer().ListTools()
	want := []string{"agents_snapshot", "watchdog_scan", "send_agent_message"}
	if len(tools) != len(want) {
		t.Fatalf("expected %d tools, got %d", len(want), len(tools))
	}
	for _, name := range want {
		if _, ok := tools[name]; !ok {
			t.Errorf("expected tool %q not registered", name)
		}
	}
}

func TestServerStartStop(t *testing.T) {
	s := mcmcp.NewServer(mcmcp.ServerConfig{Addr: "127.0.0.1:0", Name: "test", Version: "0.1.0"}, mcmcp.ServerDeps{})

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestHandleAgentsSnapshot(t *testing.T) {
	snaps := &mockSnapshots{snap: agent.Snapshot{
		Agents:      []agent.Column{{ID: "main-sid", SessionKey: agent.MainSessionKey, Status: agent.StatusRecent}},
		LastUpdated: "2026-03-14T12:00:00.000Z",
		Limitations: []string{},
	}}
	s := newTestServer(mcmcp.ServerDeps{Snapshots: snaps})

	result := callTool(t, s, "agents_snapshot", nil)
	if result.IsError {
		t.Fatalf("tool returned error: %v", result.Content)
	}
	var got agent.Snapshot
	if err := json.Unmarshal([]byte(resultText(t, result)), &got); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if len(got.Agents) != 1 || got.Agents[0].Status != agent.StatusRecent {
		t.Errorf("snapshot = %+v", got)
	}
}

func TestHandleWatchdogScan(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		want watchdog.Options
	}{
		{"defaults", nil, watchdog.Options{}},
		{"dry run", map[string]any{"dry_run": true}, watchdog.Options{DryRun: true}},
		{"string flags", map[string]any{"dry_run": "true", "force": "1"}, watchdog.Options{DryRun: true, Force: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wd := &mockWatchdog{res: watchdog.Result{ScannedRuns: 2, Retries: []watchdog.RetryItem{}}}
			s := newTestServer(mcmcp.ServerDeps{Watchdog: wd})

			result := callTool(t, s, "watchdog_scan", tt.args)
			if result.IsError {
				t.Fatalf("tool returned error: %v", result.Content)
			}
			if wd.opts != tt.want {
				t.Errorf("options = %+v, want %+v", wd.opts, tt.want)
			}
			if !strings.Contains(resultText(t, result), `"scannedRuns":2`) {
				t.Errorf("result = %s", resultText(t, result))
			}
		})
	}
}

func TestHandleWatchdogScanError(t *testing.T) {
	s := newTestServer(mcmcp.ServerDeps{Watchdog: &mockWatchdog{err: errors.New("runs.json unreadable")}})

	if result := callTool(t, s, "watchdog_scan", nil); !result.IsError {
		t.Fatal("expected error result")
	}
}

func TestHandleSendAgentMessage(t *testing.T) {
	m := &mockMessenger{}
	s := newTestServer(mcmcp.ServerDeps{Messenger: m})

	result := callTool(t, s, "send_agent_message", map[string]any{"session_id": "sid-1", "message": "status?"})
	if result.IsError {
		t.Fatalf("tool returned error: %v", result.Content)
	}
	if m.in.SessionID != "sid-1" || m.in.Message != "status?" || !m.in.AcceptTimeoutAsQueued {
		t.Errorf("send input = %+v", m.in)
	}
	if !strings.Contains(resultText(t, result), `"reply":"on it"`) {
		t.Errorf("result = %s", resultText(t, result))
	}
}

func TestHandleSendAgentMessageMissingArgs(t *testing.T) {
	s := newTestServer(mcmcp.ServerDeps{Messenger: &mockMessenger{}})

	if result := callTool(t, s, "send_agent_message", map[string]any{"session_id": "sid-1"}); !result.IsError {
		t.Fatal("expected error result for missing message")
	}
}

func TestHandleNilDeps(t *testing.T) {
	s := newTestServer(mcmcp.ServerDeps{})

	for _, name := range []string{"agents_snapshot", "watchdog_scan"} {
		if result := callTool(t, s, name, nil); !result.IsError {
			t.Errorf("%s: expected error result when deps are nil", name)
		}
	}
}

func TestAuthMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	tests := []struct {
		name   string
		apiKey string
		header string
		want   int
	}{
		{"auth disabled", "", "", http.StatusNoContent},
		{"missing header", "secret", "", http.StatusUnauthorized},
		{"bearer token", "secret", "Bearer secret", http.StatusNoContent},
		{"plain key", "secret", "secret", http.StatusNoContent},
		{"wrong key", "secret", "Bearer nope", http.StatusForbidden},
		{"prefix of key", "secret", "Bearer secre", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/mcp", http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			mcmcp.AuthMiddleware(mcmcp.StaticKey(tt.apiKey), ok).ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestAuthMiddlewareRotatedKey(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	key := "old"
	h := mcmcp.AuthMiddleware(func() string { return key }, ok)

	call := func(token string) int {
		req := httptest.NewRequest(http.MethodPost, "/mcp", http.NoBody)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if got := call("old"); got != http.StatusNoContent {
		t.Fatalf("old key before rotation: %d", got)
	}
	key = "new"
	if got := call("old"); got != http.StatusForbidden {
		t.Errorf("old key after rotation: %d, want 403", got)
	}
	if got := call("new"); got != http.StatusNoContent {
		t.Errorf("new key after rotation: %d", got)
	}
}

func readResource(t *testing.T, s *mcmcp.Server, uri string) map[string]any {
	t.Helper()
	req := `{"jsonrpc":"2.0","id":1,"method":"resources/read","params":{"uri":"` + uri + `"}}`
	resp := s.MCPServer().HandleMessage(context.Background(), json.RawMessage(req))
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	return out
}

func TestAgentsSummaryResource(t *testing.T) {
	snaps := &mockSnapshots{snap: agent.Snapshot{
		Agents: []agent.Column{{
			ID:         "main-sid",
			Name:       "main",
			SessionKey: agent.MainSessionKey,
			Status:     agent.StatusActive,
			Model:      "openai/gpt",
			Messages:   []agent.Message{{Role: "user"}, {Role: "assistant"}},
			CanSend:    true,
		}},
	}}
	s := newTestServer(mcmcp.ServerDeps{Snapshots: snaps})

	resp := readResource(t, s, "missioncontrol://agents/summary")
	result, ok := resp["result"].(map[string]any)
	if !ok {
		t.Fatalf("response = %v", resp)
	}
	contents := result["contents"].([]any)
	text := contents[0].(map[string]any)["text"].(string)

	var got []map[string]any
	if err := json.Unmarshal([]byte(text), &got); err != nil {
		t.Fatalf("summary is not JSON: %v", err)
	}
	if len(got) != 1 || got[0]["messages"] != float64(2) || got[0]["model"] != "openai/gpt" {
		t.Errorf("summary = %v", got)
	}
	if _, leaked := got[0]["sessionShortId"]; leaked {
		t.Error("summary leaked full column fields")
	}
}

func TestAgentsResourceWithoutSnapshots(t *testing.T) {
	s := newTestServer(mcmcp.ServerDeps{})
	resp := readResource(t, s, "missioncontrol://agents")
	if _, isErr := resp["error"]; !isErr {
		t.Errorf("expected JSON-RPC error, got %v", resp)
	}
}
