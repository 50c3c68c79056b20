// Package migrate converts the JSON configuration into typed Dhall.
package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tinyland-inc/chatbridge/pkg/config"
)

// ToDhallOptions controls JSON-to-Dhall config migration.
type ToDhallOptions struct {
	ConfigPath string // JSON config path (default: ~/.chatbridge/config.json)
	OutputPath string // Dhall output path (default: same dir, .dhall extension)
	DryRun     bool
	Force      bool
}

// ToDhallResult summarizes the conversion.
type ToDhallResult struct {
	OutputPath string
	Output     string
	Warnings   []string
}

// RunToDhall converts a JSON config file to Dhall format.
func RunToDhall(opts ToDhallOptions) (*ToDhallResult, error) {
	configPath := opts.ConfigPath
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		configPath = filepath.Join(home, ".chatbridge", "config.json")
	}

	outputPath := opts.OutputPath
	if outputPath == "" {
		outputPath = strings.TrimSuffix(configPath, ".json") + ".dhall"
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	result := &ToDhallResult{OutputPath: outputPath}
	result.Output = ConfigToDhall(cfg, result)

	if opts.DryRun {
		return result, nil
	}

	if !opts.Force {
		if _, err := os.Stat(outputPath); err == nil {
			return nil, fmt.Errorf("output file already exists: %s (use --force to overwrite)", outputPath)
		}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(outputPath, []byte(result.Output), 0o600); err != nil {
		return nil, err
	}

	return result, nil
}

// ConfigToDhall renders a Config as Dhall source text. Credentials are
// replaced by environment imports and reported in result.Warnings.
func ConfigToDhall(cfg *config.Config, result *ToDhallResult) string {
	var b strings.Builder
	b.WriteString("-- chatbridge configuration (generated from JSON)\n")
	b.WriteString("-- Edit this file to manage your configuration as typed Dhall.\n\n")
	b.WriteString("let emptyStrings = [] : List Text\n\n")
	b.WriteString("let emptyMap = [] : List { mapKey : Text, mapValue : Text }\n\n")
	b.WriteString("in  ")
	renderConfig(&b, cfg, result, "    ")
	return b.String()
}

func renderConfig(b *strings.Builder, cfg *config.Config, result *ToDhallResult, indent string) {
	d := cfg.Discord
	b.WriteString("{ discord =\n")
	b.WriteString(indent + "  { webhook_url{- -} = " + secret(d.WebhookURL, "CHATBRIDGE_DISCORD_WEBHOOK_URL", "discord.webhook_url", result) + "\n")
	b.WriteString(indent + "  , bot_token{- -} = " + secret(d.BotToken, "CHATBRIDGE_DISCORD_BOT_TOKEN", "discord.bot_token", result) + "\n")
	b.WriteString(indent + "  , channel_id = " + dhallText(d.ChannelID) + "\n")
	b.WriteString(indent + "  , allow_chat_types = " + dhallTextList(d.AllowChatTypes) + "\n")
	b.WriteString(indent + "  , request_timeout_ms = " + dhallNumber(d.RequestTimeoutMS) + "\n")
	b.WriteString(indent + "  }\n")

	s := cfg.Source
	b.WriteString(indent + ", source =\n")
	b.WriteString(indent + "  { url = " + dhallText(s.URL) + "\n")
	b.WriteString(indent + "  , token{- -} = " + secret(s.Token, "CHATBRIDGE_SOURCE_TOKEN", "source.token", result) + "\n")
	b.WriteString(indent + "  , reconnect_min_ms = " + dhallNumber(s.ReconnectMinMS) + "\n")
	b.WriteString(indent + "  , reconnect_max_ms = " + dhallNumber(s.ReconnectMaxMS) + "\n")
	b.WriteString(indent + "  }\n")

	dd := cfg.Dedupe
	b.WriteString(indent + ", dedupe =\n")
	b.WriteString(indent + "  { outgoing_window_ms = " + dhallNumber(dd.OutgoingWindowMS) + "\n")
	b.WriteString(indent + "  , retention_window_ms = " + dhallNumber(dd.RetentionWindowMS) + "\n")
	b.WriteString(indent + "  , min_sweep_interval_ms = " + dhallNumber(dd.MinSweepIntervalMS) + "\n")
	b.WriteString(indent + "  , sweep_interval_ms = " + dhallNumber(dd.SweepIntervalMS) + "\n")
	b.WriteString(indent + "  , delete_concurrency = " + dhallNumber(dd.DeleteConcurrency) + "\n")
	b.WriteString(indent + "  }\n")

	f := cfg.Format
	b.WriteString(indent + ", format =\n")
	b.WriteString(indent + "  { prefixes = " + dhallMap(f.Prefixes) + "\n")
	b.WriteString(indent + "  , slugs = " + dhallMap(f.Slugs) + "\n")
	b.WriteString(indent + "  , cf_prefix = " + dhallText(f.CFPrefix) + "\n")
	b.WriteString(indent + "  , avatar_url = " + dhallText(f.AvatarURL) + "\n")
	b.WriteString(indent + "  , fallback_name = " + dhallText(f.FallbackName) + "\n")
	b.WriteString(indent + "  }\n")

	r := cfg.Relay
	b.WriteString(indent + ", relay =\n")
	b.WriteString(indent + "  { rate_limit_per_minute = " + dhallNumber(r.RateLimitPerMinute) + "\n")
	b.WriteString(indent + "  , rate_burst = " + dhallNumber(r.RateBurst) + "\n")
	b.WriteString(indent + "  , stats_schedule = " + dhallText(r.StatsSchedule) + "\n")
	b.WriteString(indent + "  , buffer_size = " + dhallNumber(r.BufferSize) + "\n")
	b.WriteString(indent + "  }\n")

	g := cfg.Gateway
	b.WriteString(fmt.Sprintf("%s, gateway = { enabled = %s, host = %s, port = %s }\n", indent,
		dhallBool(g.Enabled), dhallText(g.Host), dhallNumber(g.Port)))
	b.WriteString(fmt.Sprintf("%s, log = { level = %s }\n", indent, dhallText(cfg.Log.Level)))
	b.WriteString(indent + "}\n")
}

// secret renders a credential as an environment import so it never lands
// in the generated file.
func secret(value, envVar, field string, result *ToDhallResult) string {
	if value == "" {
		return dhallText("")
	}
	result.Warnings = append(result.Warnings,
		fmt.Sprintf("%s: credential value redacted, set %s", field, envVar))
	return "env:" + envVar + " as Text"
}

// Dhall literal helpers

var dhallEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"${", `\${`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

func dhallText(s string) string {
	return `"` + dhallEscaper.Replace(s) + `"`
}

func dhallBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// dhallNumber renders n as a Natural, or as an Integer when negative.
func dhallNumber(n int) string {
	return fmt.Sprintf("%d", n)
}

func dhallTextList(ss []string) string {
	if len(ss) == 0 {
		return "emptyStrings"
	}
	parts := make([]string, len(ss))
	for i, s := range ss {
		parts[i] = dhallText(s)
	}
	return "[ " + strings.Join(parts, ", ") + " ]"
}

func dhallMap(m map[string]string) string {
	if len(m) == 0 {
		return "emptyMap"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("{ mapKey = %s, mapValue = %s }", dhallText(k), dhallText(m[k]))
	}
	return "[ " + strings.Join(parts, ", ") + " ]"
}
