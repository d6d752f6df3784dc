package mcp

import (
	"context"
	"encoding/json"
	"errors"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/Strob0t/missioncontrol/internal/domain/agent"
)

const (
	agentsURI        = "missioncontrol://agents"
	agentsSummaryURI = "missioncontrol://agents/summary"
)

var errNoSnapshots = errors.New("snapshot builder not configured")

// agentSummary is a column without its transcript, for clients that only
// need to know who is running.
type agentSummary struct {
	SessionKey   string       `json:"sessionKey"`
	Name         string       `json:"name"`
	Status       agent.Status `json:"status"`
	Model        string       `json:"model,omitempty"`
	LastActivity string       `json:"lastActivity,omitempty"`
	Messages     int          `json:"messages"`
	CanSend      bool         `json:"canSend"`
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(agentsURI, "Agents Snapshot",
			mcplib.WithResourceDescription("Current Mission Control agents snapshot with recent messages"),
			mcplib.WithMIMEType("application/json"),
		),
		s.snapshotResource(func(snap agent.Snapshot) any { return snap }),
	)
	s.mcpServer.AddResource(
		mcplib.NewResource(agentsSummaryURI, "Agents Summary",
			mcplib.WithResourceDescription("One line per agent session: status, model and last activity"),
			mcplib.WithMIMEType("application/json"),
		),
		s.snapshotResource(func(snap agent.Snapshot) any { return summarize(snap) }),
	)
}

// snapshotResource serves a view of a freshly built snapshot as JSON.
func (s *Server) snapshotResource(view func(agent.Snapshot) any) func(context.Context, mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	return func(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
		if s.deps.Snapshots == nil {
			return nil, errNoSnapshots
		}
		data, err := json.Marshal(view(s.deps.Snapshots.Build(ctx)))
		if err != nil {
			return nil, err
		}
		return []mcplib.ResourceContents{
			mcplib.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(data)},
		}, nil
	}
}

func summarize(snap agent.Snapshot) []agentSummary {
	out := make([]agentSummary, 0, len(snap.Agents))
	for _, c := range snap.Agents {
		out = append(out, agentSummary{
			SessionKey:   c.SessionKey,
			Name:         c.Name,
			Status:       c.Status,
			Model:        c.Model,
			LastActivity: c.LastActivity,
			Messages:     len(c.Messages),
			CanSend:      c.CanSend,
		})
	}
	return out
}
