package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/caarlos0/env/v11"

	"github.com/tinyland-inc/chatbridge/pkg/dedupe"
)

// ErrDhallNotAvailable is returned when dhall-to-json is not installed.
var ErrDhallNotAvailable = errors.New("dhall-to-json not available")

const redacted = "********"

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so allow_chat_types can contain both "fc" and 24.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	// Try []string first
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	// Try []interface{} to handle mixed types
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

type Config struct {
	Discord DiscordConfig `json:"discord"`
	Source  SourceConfig  `json:"source"`
	Dedupe  DedupeConfig  `json:"dedupe"`
	Format  FormatConfig  `json:"format"`
	Relay   RelayConfig   `json:"relay"`
	Gateway GatewayConfig `json:"gateway"`
	Log     LogConfig     `json:"log"`
}

type DiscordConfig struct {
	WebhookURL       string              `env:"CHATBRIDGE_DISCORD_WEBHOOK_URL"        json:"webhook_url"`
	BotToken         string              `env:"CHATBRIDGE_DISCORD_BOT_TOKEN"          json:"bot_token"`
	ChannelID        string              `env:"CHATBRIDGE_DISCORD_CHANNEL_ID"         json:"channel_id"`
	AllowChatTypes   FlexibleStringSlice `env:"CHATBRIDGE_DISCORD_ALLOW_CHAT_TYPES"   json:"allow_chat_types"`
	RequestTimeoutMS int                 `env:"CHATBRIDGE_DISCORD_REQUEST_TIMEOUT_MS" json:"request_timeout_ms"`
}

type SourceConfig struct {
	URL            string `env:"CHATBRIDGE_SOURCE_URL"              json:"url"`
	Token          string `env:"CHATBRIDGE_SOURCE_TOKEN"            json:"token"`
	ReconnectMinMS int    `env:"CHATBRIDGE_SOURCE_RECONNECT_MIN_MS" json:"reconnect_min_ms"`
	ReconnectMaxMS int    `env:"CHATBRIDGE_SOURCE_RECONNECT_MAX_MS" json:"reconnect_max_ms"`
}

type DedupeConfig struct {
	OutgoingWindowMS   int `env:"CHATBRIDGE_DEDUPE_OUTGOING_WINDOW_MS"    json:"outgoing_window_ms"`
	RetentionWindowMS  int `env:"CHATBRIDGE_DEDUPE_RETENTION_WINDOW_MS"   json:"retention_window_ms"`
	MinSweepIntervalMS int `env:"CHATBRIDGE_DEDUPE_MIN_SWEEP_INTERVAL_MS" json:"min_sweep_interval_ms"`
	SweepIntervalMS    int `env:"CHATBRIDGE_DEDUPE_SWEEP_INTERVAL_MS"     json:"sweep_interval_ms"`
	DeleteConcurrency  int `env:"CHATBRIDGE_DEDUPE_DELETE_CONCURRENCY"    json:"delete_concurrency"`
}

type FormatConfig struct {
	Prefixes     map[string]string `env:"CHATBRIDGE_FORMAT_PREFIXES"      json:"prefixes,omitempty"`
	Slugs        map[string]string `env:"CHATBRIDGE_FORMAT_SLUGS"         json:"slugs,omitempty"`
	CFPrefix     string            `env:"CHATBRIDGE_FORMAT_CF_PREFIX"     json:"cf_prefix"`
	AvatarURL    string            `env:"CHATBRIDGE_FORMAT_AVATAR_URL"    json:"avatar_url"`
	FallbackName string            `env:"CHATBRIDGE_FORMAT_FALLBACK_NAME" json:"fallback_name"`
}

type RelayConfig struct {
	RateLimitPerMinute int    `env:"CHATBRIDGE_RELAY_RATE_LIMIT_PER_MINUTE" json:"rate_limit_per_minute"`
	RateBurst          int    `env:"CHATBRIDGE_RELAY_RATE_BURST"            json:"rate_burst"`
	StatsSchedule      string `env:"CHATBRIDGE_RELAY_STATS_SCHEDULE"        json:"stats_schedule"`
	BufferSize         int    `env:"CHATBRIDGE_RELAY_BUFFER_SIZE"           json:"buffer_size"`
}

type GatewayConfig struct {
	Enabled bool   `env:"CHATBRIDGE_GATEWAY_ENABLED" json:"enabled"`
	Host    string `env:"CHATBRIDGE_GATEWAY_HOST"    json:"host"`
	Port    int    `env:"CHATBRIDGE_GATEWAY_PORT"    json:"port"`
}

type LogConfig struct {
	Level string `env:"CHATBRIDGE_LOG_LEVEL" json:"level"`
}

func DefaultConfig() *Config {
	return &Config{
		Discord: DiscordConfig{
			AllowChatTypes:   FlexibleStringSlice{},
			RequestTimeoutMS: 10000,
		},
		Source: SourceConfig{
			URL:            "ws://127.0.0.1:18791/chat",
			ReconnectMinMS: 1000,
			ReconnectMaxMS: 30000,
		},
		Dedupe: DedupeConfig{
			OutgoingWindowMS:   2000,
			RetentionWindowMS:  10000,
			MinSweepIntervalMS: 1000,
			SweepIntervalMS:    5000,
			DeleteConcurrency:  4,
		},
		Format: FormatConfig{
			Prefixes: map[string]string{},
			Slugs:    map[string]string{},
		},
		Relay: RelayConfig{
			RateLimitPerMinute: 30,
			RateBurst:          5,
			StatsSchedule:      "*/15 * * * *",
			BufferSize:         100,
		},
		Gateway: GatewayConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    18790,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// ToDedupe converts the millisecond settings into a dedupe.Config.
func (d DedupeConfig) ToDedupe() dedupe.Config {
	return dedupe.Config{
		OutgoingWindow:    ms(d.OutgoingWindowMS),
		RetentionWindow:   ms(d.RetentionWindowMS),
		MinSweepInterval:  ms(d.MinSweepIntervalMS),
		DeleteConcurrency: d.DeleteConcurrency,
	}
}

// SweepInterval is the period of the background reconciliation ticker.
func (d DedupeConfig) SweepInterval() time.Duration {
	return ms(d.SweepIntervalMS)
}

func (d DiscordConfig) RequestTimeout() time.Duration {
	return ms(d.RequestTimeoutMS)
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// Validate checks the settings the relay cannot run without.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Discord.WebhookURL) == "" {
		errs = append(errs, errors.New("discord.webhook_url is required"))
	}
	if (c.Discord.BotToken == "") != (c.Discord.ChannelID == "") {
		errs = append(errs, errors.New("discord.bot_token and discord.channel_id must be set together"))
	}
	if strings.TrimSpace(c.Source.URL) == "" {
		errs = append(errs, errors.New("source.url is required"))
	}
	if err := c.Dedupe.ToDedupe().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("dedupe: %w", err))
	}
	if c.Dedupe.SweepIntervalMS <= 0 {
		errs = append(errs, fmt.Errorf("dedupe.sweep_interval_ms must be positive (got %d)", c.Dedupe.SweepIntervalMS))
	}
	if c.Relay.RateLimitPerMinute < 0 || c.Relay.RateBurst < 0 {
		errs = append(errs, errors.New("relay rate limit values cannot be negative"))
	}
	if c.Relay.RateLimitPerMinute > 0 && c.Relay.RateBurst == 0 {
		errs = append(errs, errors.New("relay.rate_burst must be positive when a rate limit is set"))
	}
	if s := c.Relay.StatsSchedule; s != "" && !gronx.IsValid(s) {
		errs = append(errs, fmt.Errorf("relay.stats_schedule is not a valid cron expression: %q", s))
	}
	if c.Gateway.Enabled && (c.Gateway.Port < 0 || c.Gateway.Port > 65535) {
		errs = append(errs, fmt.Errorf("gateway.port out of range (got %d)", c.Gateway.Port))
	}

	return errors.Join(errs...)
}

// Redacted returns a copy with credentials masked, for display.
func (c *Config) Redacted() *Config {
	out := *c
	if out.Discord.WebhookURL != "" {
		if i := strings.LastIndex(out.Discord.WebhookURL, "/"); i > 0 {
			out.Discord.WebhookURL = out.Discord.WebhookURL[:i+1] + redacted
		} else {
			out.Discord.WebhookURL = redacted
		}
	}
	if out.Discord.BotToken != "" {
		out.Discord.BotToken = redacted
	}
	if out.Source.Token != "" {
		out.Source.Token = redacted
	}
	return &out
}

// LoadDhallConfig loads configuration from a .dhall file by invoking dhall-to-json
// and parsing the resulting JSON. Returns ErrDhallNotAvailable if dhall-to-json
// is not installed.
func LoadDhallConfig(path string) (*Config, error) {
	dhallBin, err := exec.LookPath("dhall-to-json")
	if errors.Is(err, exec.ErrNotFound) {
		return nil, ErrDhallNotAvailable
	}
	if err != nil {
		return nil, fmt.Errorf("dhall-to-json lookup: %w", err)
	}

	cmd := exec.Command(dhallBin, "--file", path)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("dhall-to-json failed for %s: %w\n%s", path, err, stderr.String())
	}

	return parse(out)
}

// LoadConfig reads path over the defaults and applies CHATBRIDGE_*
// environment overrides. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := DefaultConfig()
			if err := env.Parse(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}
	return parse(data)
}

func parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}
