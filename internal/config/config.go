package config

import (
	"time"
)

// Config is the root configuration for the gobutler daemon.
// Values come from an optional JSON5 file overlaid with GOBUTLER_* env vars;
// secrets are env-only and never persisted.
type Config struct {
	Owner      OwnerConfig      `json:"owner"`
	Source     SourceConfig     `json:"source"`
	Generation GenerationConfig `json:"generation"`
	Relay      RelayConfig      `json:"relay"`
	Directory  DirectoryConfig  `json:"directory,omitempty"`
	Store      StoreConfig      `json:"store"`
	Gateway    GatewayConfig    `json:"gateway"`
	Notify     NotifyConfig     `json:"notify,omitempty"`
	Summaries  SummariesConfig  `json:"summaries,omitempty"`
	Telemetry  TelemetryConfig  `json:"telemetry,omitempty"`
	Tailscale  TailscaleConfig  `json:"tailscale,omitempty"`
	Log        LogConfig        `json:"log,omitempty"`
}

// OwnerConfig identifies the human the daemon acts for. UserID scopes
// conversation ids and directory lookups.
type OwnerConfig struct {
	UserID string `json:"user_id"`
	// AssistantName is the persona the attendant introduces itself as
	// in generated text.
	AssistantName string `json:"assistant_name,omitempty"`
}

// SourceConfig locates the external message log and sets the poll cadence.
type SourceConfig struct {
	// MessagesDB is the append-only SQLite log watched for inbound rows.
	MessagesDB string `json:"messages_db"`
	// IntervalSeconds is the fixed sleep between poll cycles.
	IntervalSeconds int `json:"interval_seconds"`
	// Watch wakes the poller early on filesystem changes to the log.
	// Off by default: polling timing then stays strictly fixed-interval.
	Watch bool `json:"watch,omitempty"`
}

// Interval returns the poll sleep as a duration.
func (s SourceConfig) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}

// GenerationConfig configures the text-generation provider.
// APIKey is env-only (GOBUTLER_ANTHROPIC_API_KEY).
type GenerationConfig struct {
	BaseURL        string  `json:"base_url,omitempty"`
	APIKey         string  `json:"-"`
	Model          string  `json:"model"`
	MaxTokens      int     `json:"max_tokens"`
	Temperature    float64 `json:"temperature,omitempty"`
	TimeoutSeconds int     `json:"timeout_seconds"`
}

// Timeout returns the per-request generation deadline.
func (g GenerationConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSeconds) * time.Second
}

// RelayConfig configures the outbound dispatch relay.
type RelayConfig struct {
	BaseURL        string `json:"base_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	// MinSendGapMS paces outbound sends; replies faster than a human types
	// read as spam to recipients. 0 disables pacing.
	MinSendGapMS int `json:"min_send_gap_ms,omitempty"`
}

// Timeout returns the per-send deadline.
func (r RelayConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// MinSendGap returns the pacing interval between sends.
func (r RelayConfig) MinSendGap() time.Duration {
	return time.Duration(r.MinSendGapMS) * time.Millisecond
}

// DirectoryConfig configures the MCP profile directory. The daemon degrades
// to built-in defaults when the directory is absent or unreachable.
type DirectoryConfig struct {
	// Transport is "streamable-http" (default), "sse", or "stdio".
	Transport string `json:"transport,omitempty"`
	// URL is the server endpoint for HTTP transports.
	URL string `json:"url,omitempty"`
	// Command, Args and Env launch a stdio server.
	Command        string            `json:"command,omitempty"`
	Args           []string          `json:"args,omitempty"`
	Env            map[string]string `json:"env,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
}

// Enabled reports whether a directory endpoint is configured at all.
func (d DirectoryConfig) Enabled() bool {
	return d.URL != "" || d.Command != ""
}

// Timeout returns the per-call directory deadline.
func (d DirectoryConfig) Timeout() time.Duration {
	if d.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(d.TimeoutSeconds) * time.Second
}

// StoreConfig selects the conversation store backend.
// PostgresDSN is env-only (GOBUTLER_POSTGRES_DSN).
type StoreConfig struct {
	// Backend is "sqlite" (default, embedded) or "postgres".
	Backend     string `json:"backend,omitempty"`
	SQLitePath  string `json:"sqlite_path,omitempty"`
	PostgresDSN string `json:"-"`
}

// IsPostgres reports whether the Postgres backend is selected.
func (s StoreConfig) IsPostgres() bool {
	return s.Backend == "postgres"
}

// GatewayConfig configures the HTTP surface serving the desktop pet and
// the detection webhook.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	// DetectionRPM caps detection webhook calls per user per minute.
	DetectionRPM int `json:"detection_rpm,omitempty"`
	// AllowedOrigins whitelists WebSocket origins. Empty allows all,
	// which suits the local-only default binding.
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
}

// NotifyConfig configures owner-facing push notifiers. Tokens are env-only.
type NotifyConfig struct {
	Telegram TelegramNotifyConfig `json:"telegram,omitempty"`
	Discord  DiscordNotifyConfig  `json:"discord,omitempty"`
}

// TelegramNotifyConfig pushes approval requests to the owner's Telegram chat.
type TelegramNotifyConfig struct {
	Token  string `json:"-"`
	ChatID int64  `json:"chat_id,omitempty"`
}

// Enabled reports whether the Telegram notifier is fully configured.
func (t TelegramNotifyConfig) Enabled() bool {
	return t.Token != "" && t.ChatID != 0
}

// DiscordNotifyConfig pushes approval requests to a Discord channel.
type DiscordNotifyConfig struct {
	Token     string `json:"-"`
	ChannelID string `json:"channel_id,omitempty"`
}

// Enabled reports whether the Discord notifier is fully configured.
func (d DiscordNotifyConfig) Enabled() bool {
	return d.Token != "" && d.ChannelID != ""
}

// SummariesConfig schedules background summary refresh.
type SummariesConfig struct {
	// Schedule is a cron expression; empty disables the refresh job.
	Schedule string `json:"schedule,omitempty"`
}

// TelemetryConfig configures OTLP trace export.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"`     // e.g. "localhost:4317"
	Protocol    string            `json:"protocol,omitempty"`     // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`     // skip TLS for local collectors
	ServiceName string            `json:"service_name,omitempty"` // default "gobutler"
	Headers     map[string]string `json:"headers,omitempty"`
}

// TailscaleConfig configures the optional tsnet listener so the pet UI can
// reach the gateway over a tailnet. AuthKey is env-only.
type TailscaleConfig struct {
	Hostname  string `json:"hostname,omitempty"`
	StateDir  string `json:"state_dir,omitempty"`
	AuthKey   string `json:"-"`
	Ephemeral bool   `json:"ephemeral,omitempty"`
}

// Enabled reports whether the tsnet listener should start.
func (t TailscaleConfig) Enabled() bool {
	return t.Hostname != ""
}

// LogConfig controls slog output.
type LogConfig struct {
	// Level is "debug", "info" (default), "warn", or "error".
	Level string `json:"level,omitempty"`
}
