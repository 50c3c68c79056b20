package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/chatbridge/pkg/dedupe"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Discord.WebhookURL = "https://discord.com/api/webhooks/1/secret-token"
	return cfg
}

func TestDefaultConfig_DedupeMatchesEngineDefaults(t *testing.T) {
	assert.Equal(t, dedupe.DefaultConfig(), DefaultConfig().Dedupe.ToDedupe())
	assert.Equal(t, 5*time.Second, DefaultConfig().Dedupe.SweepInterval())
	assert.Equal(t, 10*time.Second, DefaultConfig().Discord.RequestTimeout())
}

func TestFlexibleStringSlice(t *testing.T) {
	var f FlexibleStringSlice
	require.NoError(t, json.Unmarshal([]byte(`["fc", 24, "ls1"]`), &f))
	assert.Equal(t, FlexibleStringSlice{"fc", "24", "ls1"}, f)

	require.NoError(t, json.Unmarshal([]byte(`["say"]`), &f))
	assert.Equal(t, FlexibleStringSlice{"say"}, f)

	assert.Error(t, json.Unmarshal([]byte(`"say"`), &f))
}

func TestLoadConfig_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Dedupe, cfg.Dedupe)
}

func TestLoadConfig_FileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
		"discord": {"webhook_url": "https://discord.com/api/webhooks/1/x", "allow_chat_types": ["fc", 24]},
		"dedupe": {"outgoing_window_ms": 1500},
		"format": {"slugs": {"ls1": "Raid"}}
	}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, FlexibleStringSlice{"fc", "24"}, cfg.Discord.AllowChatTypes)
	assert.Equal(t, 1500, cfg.Dedupe.OutgoingWindowMS)
	assert.Equal(t, 10000, cfg.Dedupe.RetentionWindowMS, "untouched fields keep defaults")
	assert.Equal(t, "Raid", cfg.Format.Slugs["ls1"])
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"source": {"url": "ws://file"}}`), 0o600))

	t.Setenv("CHATBRIDGE_SOURCE_URL", "ws://env:1/chat")
	t.Setenv("CHATBRIDGE_DEDUPE_RETENTION_WINDOW_MS", "20000")
	t.Setenv("CHATBRIDGE_DISCORD_ALLOW_CHAT_TYPES", "fc,ls1")
	t.Setenv("CHATBRIDGE_FORMAT_PREFIXES", "fc:<@&1>")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "ws://env:1/chat", cfg.Source.URL)
	assert.Equal(t, 20000, cfg.Dedupe.RetentionWindowMS)
	assert.Equal(t, FlexibleStringSlice{"fc", "ls1"}, cfg.Discord.AllowChatTypes)
	assert.Equal(t, "<@&1>", cfg.Format.Prefixes["fc"])
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{`), 0o600))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := validConfig()
	cfg.Format.CFPrefix = "<@&7>"

	require.NoError(t, SaveConfig(path, cfg))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing webhook", func(c *Config) { c.Discord.WebhookURL = "" }, "webhook_url"},
		{"bot token without channel", func(c *Config) { c.Discord.BotToken = "abc" }, "set together"},
		{"missing source", func(c *Config) { c.Source.URL = " " }, "source.url"},
		{"bad dedupe", func(c *Config) { c.Dedupe.RetentionWindowMS = 0 }, "dedupe"},
		{"bad sweep interval", func(c *Config) { c.Dedupe.SweepIntervalMS = 0 }, "sweep_interval_ms"},
		{"bad schedule", func(c *Config) { c.Relay.StatsSchedule = "every tuesday" }, "stats_schedule"},
		{"disabled schedule", func(c *Config) { c.Relay.StatsSchedule = "" }, ""},
		{"no burst", func(c *Config) { c.Relay.RateBurst = 0 }, "rate_burst"},
		{"unlimited", func(c *Config) { c.Relay.RateLimitPerMinute, c.Relay.RateBurst = 0, 0 }, ""},
		{"bad port", func(c *Config) { c.Gateway.Port = 70000 }, "gateway.port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRedacted(t *testing.T) {
	cfg := validConfig()
	cfg.Discord.BotToken = "bot-secret"
	cfg.Source.Token = "src-secret"

	r := cfg.Redacted()
	assert.Equal(t, "https://discord.com/api/webhooks/1/"+redacted, r.Discord.WebhookURL)
	assert.Equal(t, redacted, r.Discord.BotToken)
	assert.Equal(t, redacted, r.Source.Token)

	assert.Equal(t, "bot-secret", cfg.Discord.BotToken, "source config untouched")
}

func TestLoadDhallConfig_RequiresBinary(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	_, err := LoadDhallConfig("config.dhall")
	assert.ErrorIs(t, err, ErrDhallNotAvailable)
}
