package mcp

import (
	"context"
	"encoding/json"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/missioncontrol/internal/domain/watchdog"
	"github.com/Strob0t/missioncontrol/internal/port/runtime"
	"github.com/Strob0t/missioncontrol/internal/service"
)

func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.agentsSnapshotTool(),
		s.watchdogScanTool(),
		s.sendAgentMessageTool(),
	)
}

func (s *Server) agentsSnapshotTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("agents_snapshot",
		mcplib.WithDescription("List the agent and subagent columns shown on the Mission Control dashboard"),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleAgentsSnapshot}
}

func (s *Server) watchdogScanTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("watchdog_scan",
		mcplib.WithDescription("Scan subagent runs for stalls and requeue each stalled run at most once"),
		mcplib.WithBoolean("dry_run",
			mcplib.Description("Prepare requeue payloads without spawning runs or writing state"),
		),
		mcplib.WithBoolean("force",
			mcplib.Description("Ignore the scan cooldown"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleWatchdogScan}
}

func (s *Server) sendAgentMessageTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("send_agent_message",
		mcplib.WithDescription("Send a message to an agent session and mirror subagent replies to the main session"),
		mcplib.WithString("session_id",
			mcplib.Required(),
			mcplib.Description("Session id of the target agent"),
		),
		mcplib.WithString("message",
			mcplib.Required(),
			mcplib.Description("Message text"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleSendAgentMessage}
}

func (s *Server) handleAgentsSnapshot(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Snapshots == nil {
		return mcplib.NewToolResultError("snapshot builder not configured"), nil
	}
	return jsonResult(s.deps.Snapshots.Build(ctx), "failed to marshal snapshot"), nil
}

func (s *Server) handleWatchdogScan(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Watchdog == nil {
		return mcplib.NewToolResultError("watchdog not configured"), nil
	}
	args := req.GetArguments()
	opts := watchdog.Options{DryRun: boolArg(args, "dry_run"), Force: boolArg(args, "force")}

	res, err := s.deps.Watchdog.Run(ctx, opts)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("watchdog scan failed", err), nil
	}
	return jsonResult(res, "failed to marshal watchdog result"), nil
}

func (s *Server) handleSendAgentMessage(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Messenger == nil {
		return mcplib.NewToolResultError("messenger not configured"), nil
	}
	args := req.GetArguments()
	sessionID, _ := args["session_id"].(string)
	message, _ := args["message"].(string)
	if strings.TrimSpace(sessionID) == "" || strings.TrimSpace(message) == "" {
		return mcplib.NewToolResultError("session_id and message are required"), nil
	}

	out, err := s.deps.Messenger.SendWithMirror(ctx, service.SendInput{
		SessionID:             sessionID,
		Message:               message,
		ActionLabel:           "mcp",
		Thinking:              runtime.ThinkingMinimal,
		AcceptTimeoutAsQueued: true,
	})
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to send message", err), nil
	}
	return jsonResult(out, "failed to marshal reply"), nil
}

func boolArg(args map[string]any, name string) bool {
	switch v := args[name].(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "1"
	}
	return false
}

func jsonResult(v any, failure string) *mcplib.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(failure, err)
	}
	return mcplib.NewToolResultText(string(data))
}
