// Package config provides hierarchical configuration loading for Mission Control.
// Precedence: defaults < YAML file < environment variables.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config holds all runtime configuration for the Mission Control service.
type Config struct {
	Server   Server   `yaml:"server"`
	OpenClaw OpenClaw `yaml:"openclaw"`
	Snapshot Snapshot `yaml:"snapshot"`
	Mirror   Mirror   `yaml:"mirror"`
	Watchdog Watchdog `yaml:"watchdog"`
	State    State    `yaml:"state"`
	NATS     NATS     `yaml:"nats"`
	Logging  Logging  `yaml:"logging"`
	Breaker  Breaker  `yaml:"breaker"`
	Cache    Cache    `yaml:"cache"`
	OTEL     OTEL     `yaml:"otel"`
	MCP      MCP      `yaml:"mcp"`
	Notify   Notify   `yaml:"notify"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port       string  `yaml:"port"`
	CORSOrigin string  `yaml:"cors_origin"` // comma-separated origins, or "*"
	RateLimit  float64 `yaml:"rate_limit"`  // POST requests per second per client; 0 disables (default: 2)
	RateBurst  int     `yaml:"rate_burst"`  // default: 10
}

// OpenClaw locates the agent runtime and its on-disk registries.
type OpenClaw struct {
	Binary             string        `yaml:"binary"`               // explicit binary, tried first
	BinaryCandidates   []string      `yaml:"binary_candidates"`    // fallbacks when Binary is missing
	SessionsDir        string        `yaml:"sessions_dir"`         // transcript directory
	SessionsIndexFile  string        `yaml:"sessions_index_file"`  // fallback index; empty means <sessions_dir>/sessions.json
	RunsFile           string        `yaml:"runs_file"`            // subagent run ledger
	SessionsTimeout    time.Duration `yaml:"sessions_timeout"`     // `sessions --json` exec timeout (default: 15s)
	GatewayTimeout     time.Duration `yaml:"gateway_timeout"`      // gateway call timeout (default: 60s)
	SendTimeout        time.Duration `yaml:"send_timeout"`         // --timeout passed to `agent` (default: 180s)
	SendExecTimeout    time.Duration `yaml:"send_exec_timeout"`    // process timeout for `agent` (default: 200s)
	MaxMessageChars    int           `yaml:"max_message_chars"`    // default: 4000
	MaxReplyChars      int           `yaml:"max_reply_chars"`      // default: 8000
	MaxOutputBytes     int           `yaml:"max_output_bytes"`     // stdout cap per call (default: 4 MiB)
	GatewayOutputBytes int           `yaml:"gateway_output_bytes"` // stdout cap for gateway and sessions calls (default: 8 MiB)
	MaxConcurrent      int           `yaml:"max_concurrent"`       // runtime processes allowed at once (default: 4)
}

// Snapshot holds the limits used when assembling the agents snapshot.
type Snapshot struct {
	MaxColumns    int           `yaml:"max_columns"`     // default: 8
	MaxMessages   int           `yaml:"max_messages"`    // default: 40
	MaxScanLines  int           `yaml:"max_scan_lines"`  // default: 4000
	MaxModelLines int           `yaml:"max_model_lines"` // default: 120
	MaxTextChars  int           `yaml:"max_text_chars"`  // default: 6000
	ActiveMinutes int           `yaml:"active_minutes"`  // default: 360
	RecentAge     time.Duration `yaml:"recent_age"`      // default: 20m
	IdleAge       time.Duration `yaml:"idle_age"`        // default: 2h
	MainKey       string        `yaml:"main_key"`        // always-visible column (default: agent:main:main)
	Refresh       time.Duration `yaml:"refresh"`         // push interval when no file change is seen (default: 30s)
}

// Mirror holds reply mirroring configuration.
type Mirror struct {
	Cooldown     time.Duration `yaml:"cooldown"`      // default: 90s
	DedupeWindow time.Duration `yaml:"dedupe_window"` // default: 10m
}

// Watchdog holds stalled-run watchdog configuration.
type Watchdog struct {
	StalledThreshold time.Duration `yaml:"stalled_threshold"` // default: 20m
	ScanCooldown     time.Duration `yaml:"scan_cooldown"`     // default: 60s
	RetryCooldown    time.Duration `yaml:"retry_cooldown"`    // default: 30m
	Interval         time.Duration `yaml:"interval"`          // background scan interval; 0 disables (default: 0)
	StatusTimeout    time.Duration `yaml:"status_timeout"`    // budget for the main-session status post (default: 90s)
}

// State holds persisted state configuration.
type State struct {
	Backend string `yaml:"backend"` // "file" | "nats" (default: "file")
	Dir     string `yaml:"dir"`
	Bucket  string `yaml:"bucket"` // JetStream KV bucket when Backend is "nats"
}

// NATS holds NATS JetStream configuration. An empty URL disables it.
type NATS struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"` // subject prefix (default: missioncontrol)
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// Breaker holds circuit breaker configuration for runtime calls.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Cache holds the in-process cache configuration.
type Cache struct {
	MaxCostBytes int64 `yaml:"max_cost_bytes"` // default: 4 MiB
}

// OTEL holds OpenTelemetry exporter configuration.
type OTEL struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	Insecure    bool    `yaml:"insecure"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// MCP holds Model Context Protocol server configuration.
type MCP struct {
	Enabled    bool   `yaml:"enabled"`
	Port       string `yaml:"port"`
	APIKey     string `yaml:"api_key"`      // bearer token; empty leaves the endpoint open
	APIKeyFile string `yaml:"api_key_file"` // overrides api_key; re-read on SIGHUP
}

// Notify holds outbound notification configuration.
type Notify struct {
	SlackWebhookURL   string `yaml:"slack_webhook_url"`
	DiscordWebhookURL string `yaml:"discord_webhook_url"`
	DiscordUsername   string `yaml:"discord_username"`
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	openclawHome := filepath.Join(home, ".openclaw")
	sessionsDir := filepath.Join(openclawHome, "agents", "main", "sessions")

	return Config{
		Server: Server{
			Port:       "8080",
			CORSOrigin: "http://localhost:3000",
			RateLimit:  2,
			RateBurst:  10,
		},
		OpenClaw: OpenClaw{
			BinaryCandidates: []string{
				"openclaw",
				filepath.Join(home, ".local", "bin", "openclaw"),
				"/opt/homebrew/bin/openclaw",
				"/usr/local/bin/openclaw",
			},
			SessionsDir:        sessionsDir,
			RunsFile:           filepath.Join(openclawHome, "subagents", "runs.json"),
			SessionsTimeout:    15 * time.Second,
			GatewayTimeout:     60 * time.Second,
			SendTimeout:        180 * time.Second,
			SendExecTimeout:    200 * time.Second,
			MaxMessageChars:    4000,
			MaxReplyChars:      8000,
			MaxOutputBytes:     4 << 20,
			GatewayOutputBytes: 8 << 20,
			MaxConcurrent:      4,
		},
		Snapshot: Snapshot{
			MaxColumns:    8,
			MaxMessages:   40,
			MaxScanLines:  4000,
			MaxModelLines: 120,
			MaxTextChars:  6000,
			ActiveMinutes: 360,
			RecentAge:     20 * time.Minute,
			IdleAge:       2 * time.Hour,
			MainKey:       "agent:main:main",
			Refresh:       30 * time.Second,
		},
		Mirror: Mirror{
			Cooldown:     90 * time.Second,
			DedupeWindow: 10 * time.Minute,
		},
		Watchdog: Watchdog{
			StalledThreshold: 20 * time.Minute,
			ScanCooldown:     60 * time.Second,
			RetryCooldown:    30 * time.Minute,
			StatusTimeout:    90 * time.Second,
		},
		State: State{
			Backend: "file",
			Dir:     filepath.Join(os.TempDir(), "mission-control-dashboard"),
			Bucket:  "MISSIONCONTROL_STATE",
		},
		NATS: NATS{
			Subject: "missioncontrol",
		},
		Logging: Logging{
			Level:   "info",
			Service: "missioncontrol",
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Cache: Cache{
			MaxCostBytes: 4 << 20,
		},
		OTEL: OTEL{
			Endpoint:    "localhost:4317",
			ServiceName: "missioncontrol",
			Insecure:    true,
			SampleRate:  1.0,
		},
		MCP: MCP{
			Port: "3001",
		},
	}
}
