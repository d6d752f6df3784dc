package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "missioncontrol.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// The YAML path is taken from MISSIONCONTROL_CONFIG when set.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	path := DefaultConfigFile
	if v := os.Getenv("MISSIONCONTROL_CONFIG"); v != "" {
		path = v
	}
	return LoadFrom(path)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)
	derive(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from operator config
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "MISSIONCONTROL_PORT")
	setString(&cfg.Server.CORSOrigin, "MISSIONCONTROL_CORS_ORIGIN")
	setFloat64(&cfg.Server.RateLimit, "MISSIONCONTROL_RATE_LIMIT")
	setInt(&cfg.Server.RateBurst, "MISSIONCONTROL_RATE_BURST")

	// Runtime locations keep the variable names the dashboard has always used.
	setString(&cfg.OpenClaw.Binary, "OPENCLAW_BIN")
	setString(&cfg.OpenClaw.SessionsDir, "MISSION_CONTROL_SESSIONS_DIR")
	setString(&cfg.OpenClaw.SessionsIndexFile, "MISSION_CONTROL_SESSIONS_INDEX_FILE")
	setString(&cfg.OpenClaw.RunsFile, "MISSION_CONTROL_SUBAGENT_RUNS_FILE")
	setInt(&cfg.OpenClaw.MaxConcurrent, "MISSIONCONTROL_OPENCLAW_MAX_CONCURRENT")
	setString(&cfg.State.Dir, "MISSION_CONTROL_STATE_DIR")

	setMillis(&cfg.Mirror.Cooldown, "MISSION_CONTROL_MIRROR_COOLDOWN_MS")
	setMillis(&cfg.Mirror.DedupeWindow, "MISSION_CONTROL_MIRROR_DEDUPE_WINDOW_MS")
	setMillis(&cfg.Watchdog.StalledThreshold, "MISSION_CONTROL_STALLED_THRESHOLD_MS")
	setMillis(&cfg.Watchdog.ScanCooldown, "MISSION_CONTROL_WATCHDOG_SCAN_COOLDOWN_MS")
	setMillis(&cfg.Watchdog.RetryCooldown, "MISSION_CONTROL_WATCHDOG_RETRY_COOLDOWN_MS")
	setDuration(&cfg.Watchdog.Interval, "MISSIONCONTROL_WATCHDOG_INTERVAL")

	setInt(&cfg.Snapshot.MaxColumns, "MISSIONCONTROL_SNAPSHOT_MAX_COLUMNS")
	setInt(&cfg.Snapshot.ActiveMinutes, "MISSIONCONTROL_SNAPSHOT_ACTIVE_MINUTES")
	setDuration(&cfg.Snapshot.Refresh, "MISSIONCONTROL_SNAPSHOT_REFRESH")

	setString(&cfg.State.Backend, "MISSIONCONTROL_STATE_BACKEND")
	setString(&cfg.State.Bucket, "MISSIONCONTROL_STATE_BUCKET")
	setString(&cfg.NATS.URL, "MISSIONCONTROL_NATS_URL")
	setString(&cfg.Logging.Level, "MISSIONCONTROL_LOG_LEVEL")
	setString(&cfg.Logging.Service, "MISSIONCONTROL_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "MISSIONCONTROL_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "MISSIONCONTROL_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "MISSIONCONTROL_BREAKER_TIMEOUT")
	setInt64(&cfg.Cache.MaxCostBytes, "MISSIONCONTROL_CACHE_MAX_COST_BYTES")

	setBool(&cfg.OTEL.Enabled, "MISSIONCONTROL_OTEL_ENABLED")
	setString(&cfg.OTEL.Endpoint, "MISSIONCONTROL_OTEL_ENDPOINT")
	setString(&cfg.OTEL.ServiceName, "MISSIONCONTROL_OTEL_SERVICE_NAME")
	setBool(&cfg.OTEL.Insecure, "MISSIONCONTROL_OTEL_INSECURE")
	setFloat64(&cfg.OTEL.SampleRate, "MISSIONCONTROL_OTEL_SAMPLE_RATE")

	setBool(&cfg.MCP.Enabled, "MISSIONCONTROL_MCP_ENABLED")
	setString(&cfg.MCP.Port, "MISSIONCONTROL_MCP_PORT")
	setString(&cfg.MCP.APIKey, "MISSIONCONTROL_MCP_API_KEY")
	setString(&cfg.MCP.APIKeyFile, "MISSIONCONTROL_MCP_API_KEY_FILE")

	setString(&cfg.Notify.SlackWebhookURL, "MISSIONCONTROL_SLACK_WEBHOOK_URL")
	setString(&cfg.Notify.DiscordWebhookURL, "MISSIONCONTROL_DISCORD_WEBHOOK_URL")
	setString(&cfg.Notify.DiscordUsername, "MISSIONCONTROL_DISCORD_USERNAME")
}

// derive fills values that default relative to other settings.
func derive(cfg *Config) {
	if cfg.OpenClaw.SessionsIndexFile == "" && cfg.OpenClaw.SessionsDir != "" {
		cfg.OpenClaw.SessionsIndexFile = filepath.Join(cfg.OpenClaw.SessionsDir, "sessions.json")
	}
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Server.RateLimit > 0 && cfg.Server.RateBurst < 1 {
		return errors.New("server.rate_burst must be >= 1 when rate limiting is on")
	}
	if cfg.OpenClaw.SessionsDir == "" {
		return errors.New("openclaw.sessions_dir is required")
	}
	if cfg.State.Dir == "" && cfg.State.Backend == "file" {
		return errors.New("state.dir is required for the file backend")
	}
	switch cfg.State.Backend {
	case "file":
	case "nats":
		if cfg.NATS.URL == "" {
			return errors.New("state.backend nats requires nats.url")
		}
	default:
		return fmt.Errorf("state.backend must be file or nats, got %q", cfg.State.Backend)
	}
	if cfg.Snapshot.MaxColumns < 1 {
		return errors.New("snapshot.max_columns must be >= 1")
	}
	if cfg.Snapshot.MaxMessages < 1 {
		return errors.New("snapshot.max_messages must be >= 1")
	}
	if cfg.Watchdog.StalledThreshold <= 0 {
		return errors.New("watchdog.stalled_threshold must be > 0")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// setMillis reads a positive integer millisecond count. Non-positive or
// unparsable values leave the current setting in place.
func setMillis(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil && n > 0 {
			*dst = time.Duration(n * float64(time.Millisecond))
		}
	}
}
