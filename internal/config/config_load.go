package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults. The defaults run a
// standalone daemon against a local relay with the embedded store.
func Default() *Config {
	return &Config{
		Owner: OwnerConfig{
			UserID:        "default_user",
			AssistantName: "Butler",
		},
		Source: SourceConfig{
			MessagesDB:      "~/Library/Messages/chat.db",
			IntervalSeconds: 3,
		},
		Generation: GenerationConfig{
			Model:          "claude-sonnet-4-5-20250929",
			MaxTokens:      4096,
			TimeoutSeconds: 30,
		},
		Relay: RelayConfig{
			BaseURL:        "http://127.0.0.1:5001",
			TimeoutSeconds: 15,
			MinSendGapMS:   1500,
		},
		Directory: DirectoryConfig{
			Transport: "streamable-http",
		},
		Store: StoreConfig{
			Backend:    "sqlite",
			SQLitePath: "~/.gobutler/conversations.db",
		},
		Gateway: GatewayConfig{
			Host:         "0.0.0.0",
			Port:         5000,
			DetectionRPM: 30,
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "gobutler",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error; the defaults plus env vars apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				*dst = n
			}
		}
	}
	envBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "true" || v == "1"
		}
	}

	// Owner scope and source.
	envStr("GOBUTLER_USER_ID", &c.Owner.UserID)
	envStr("GOBUTLER_MESSAGES_DB", &c.Source.MessagesDB)
	envInt("GOBUTLER_POLL_INTERVAL", &c.Source.IntervalSeconds)
	envBool("GOBUTLER_SOURCE_WATCH", &c.Source.Watch)

	// Generation provider. API key is env-only.
	envStr("GOBUTLER_ANTHROPIC_API_KEY", &c.Generation.APIKey)
	envStr("GOBUTLER_ANTHROPIC_BASE_URL", &c.Generation.BaseURL)
	envStr("GOBUTLER_MODEL", &c.Generation.Model)
	envInt("GOBUTLER_GENERATION_TIMEOUT", &c.Generation.TimeoutSeconds)

	// Dispatch relay.
	envStr("GOBUTLER_RELAY_URL", &c.Relay.BaseURL)
	envInt("GOBUTLER_RELAY_TIMEOUT", &c.Relay.TimeoutSeconds)

	// Profile directory.
	envStr("GOBUTLER_DIRECTORY_URL", &c.Directory.URL)
	envStr("GOBUTLER_DIRECTORY_TRANSPORT", &c.Directory.Transport)

	// Store backend. DSN is env-only.
	envStr("GOBUTLER_STORE_BACKEND", &c.Store.Backend)
	envStr("GOBUTLER_SQLITE_PATH", &c.Store.SQLitePath)
	envStr("GOBUTLER_POSTGRES_DSN", &c.Store.PostgresDSN)

	// Gateway host/port.
	envStr("GOBUTLER_HOST", &c.Gateway.Host)
	envInt("GOBUTLER_PORT", &c.Gateway.Port)

	// Notifiers. Tokens are env-only.
	envStr("GOBUTLER_TELEGRAM_TOKEN", &c.Notify.Telegram.Token)
	if v := os.Getenv("GOBUTLER_TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Notify.Telegram.ChatID = id
		}
	}
	envStr("GOBUTLER_DISCORD_TOKEN", &c.Notify.Discord.Token)
	envStr("GOBUTLER_DISCORD_CHANNEL_ID", &c.Notify.Discord.ChannelID)

	// Summary refresh schedule.
	envStr("GOBUTLER_SUMMARY_SCHEDULE", &c.Summaries.Schedule)

	// Telemetry.
	envBool("GOBUTLER_TELEMETRY_ENABLED", &c.Telemetry.Enabled)
	envStr("GOBUTLER_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("GOBUTLER_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("GOBUTLER_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	envBool("GOBUTLER_TELEMETRY_INSECURE", &c.Telemetry.Insecure)

	// Tailscale (tsnet).
	envStr("GOBUTLER_TSNET_HOSTNAME", &c.Tailscale.Hostname)
	envStr("GOBUTLER_TSNET_AUTH_KEY", &c.Tailscale.AuthKey)
	envStr("GOBUTLER_TSNET_DIR", &c.Tailscale.StateDir)

	// Logging.
	envStr("GOBUTLER_LOG_LEVEL", &c.Log.Level)
}

// Validate checks the preconditions the daemon cannot start without.
func (c *Config) Validate() error {
	if c.Owner.UserID == "" {
		return fmt.Errorf("owner.user_id must not be empty")
	}
	if c.Source.MessagesDB == "" {
		return fmt.Errorf("source.messages_db must not be empty")
	}
	if c.Source.IntervalSeconds <= 0 {
		return fmt.Errorf("source.interval_seconds must be positive, got %d", c.Source.IntervalSeconds)
	}
	if c.Generation.APIKey == "" {
		return fmt.Errorf("generation API key missing (set GOBUTLER_ANTHROPIC_API_KEY)")
	}
	if c.Relay.BaseURL == "" {
		return fmt.Errorf("relay.base_url must not be empty")
	}
	switch c.Store.Backend {
	case "", "sqlite":
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path must not be empty")
		}
	case "postgres":
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("postgres backend selected but GOBUTLER_POSTGRES_DSN is not set")
		}
	default:
		return fmt.Errorf("unknown store backend %q (want sqlite or postgres)", c.Store.Backend)
	}
	return nil
}

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
