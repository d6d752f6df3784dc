// Package mcp exposes Mission Control to MCP clients over streamable HTTP:
// the agents snapshot, watchdog scans and session messaging.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/missioncontrol/internal/domain/agent"
	"github.com/Strob0t/missioncontrol/internal/domain/watchdog"
	"github.com/Strob0t/missioncontrol/internal/service"
)

// ServerConfig configures the MCP endpoint.
type ServerConfig struct {
	Addr    string
	Name    string
	Version string
	APIKey  KeyFunc // nil leaves the endpoint open
}

// SnapshotBuilder builds the agents snapshot.
type SnapshotBuilder interface {
	Build(ctx context.Context) agent.Snapshot
}

// WatchdogRunner runs one watchdog scan.
type WatchdogRunner interface {
	Run(ctx context.Context, opts watchdog.Options) (watchdog.Result, error)
}

// Messenger sends a message to a session and mirrors the reply.
type Messenger interface {
	SendWithMirror(ctx context.Context, in service.SendInput) (service.SendOutcome, error)
}

// ServerDeps are the services behind the tools. Nil dependencies make the
// matching tools report an error.
type ServerDeps struct {
	Snapshots SnapshotBuilder
	Watchdog  WatchdogRunner
	Messenger Messenger
}

// Server is the MCP server.
type Server struct {
	cfg        ServerConfig
	deps       ServerDeps
	mcpServer  *mcpserver.MCPServer
	httpServer *http.Server
}

// NewServer creates a Server with every tool and resource registered.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	s := &Server{cfg: cfg, deps: deps}
	s.mcpServer = mcpserver.NewMCPServer(cfg.Name, cfg.Version,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithResourceCapabilities(false, false),
		mcpserver.WithRecovery(),
	)
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// Handler serves the streamable HTTP transport behind the API key check.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/mcp", AuthMiddleware(s.cfg.APIKey, mcpserver.NewStreamableHTTPServer(s.mcpServer)))
	return mux
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("mcp listen %s: %w", s.cfg.Addr, err)
	}
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("mcp server error", "error", err)
		}
	}()
	slog.Info("mcp server listening", "addr", ln.Addr().String(), "auth", s.cfg.APIKey != nil)
	return nil
}

// Stop shuts the HTTP listener down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
