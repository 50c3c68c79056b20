package migrate

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/chatbridge/pkg/config"
)

func TestConfigToDhall_DefaultConfig(t *testing.T) {
	result := &ToDhallResult{}
	dhall := ConfigToDhall(config.DefaultConfig(), result)

	for _, expected := range []string{
		"let emptyStrings",
		"discord =",
		", source =",
		", dedupe =",
		"retention_window_ms = 10000",
		", format =",
		"prefixes = emptyMap",
		", relay =",
		`stats_schedule = "*/15 * * * *"`,
		", gateway = { enabled = True",
	} {
		assert.Contains(t, dhall, expected)
	}
	assert.Empty(t, result.Warnings, "defaults carry no credentials")
}

func TestConfigToDhall_CredentialRedaction(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Discord.WebhookURL = "https://discord.com/api/webhooks/1/very-secret"
	cfg.Discord.BotToken = "bot-secret"

	result := &ToDhallResult{}
	dhall := ConfigToDhall(cfg, result)

	assert.NotContains(t, dhall, "very-secret")
	assert.NotContains(t, dhall, "bot-secret")
	assert.Contains(t, dhall, "env:CHATBRIDGE_DISCORD_WEBHOOK_URL as Text")
	assert.Contains(t, dhall, "env:CHATBRIDGE_DISCORD_BOT_TOKEN as Text")
	assert.Len(t, result.Warnings, 2)

	// Credential fields use {- -} to break naive secret scanners.
	assert.Contains(t, dhall, "webhook_url{- -}")
	assert.Contains(t, dhall, "token{- -}")
}

func TestConfigToDhall_Maps(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Format.Slugs = map[string]string{"ls2": "Crafting", "ls1": "Raid"}

	dhall := ConfigToDhall(cfg, &ToDhallResult{})
	assert.Contains(t, dhall,
		`slugs = [ { mapKey = "ls1", mapValue = "Raid" }, { mapKey = "ls2", mapValue = "Crafting" } ]`)
}

func TestDhallText(t *testing.T) {
	assert.Equal(t, `"plain"`, dhallText("plain"))
	assert.Equal(t, `"say \"hi\""`, dhallText(`say "hi"`))
	assert.Equal(t, `"a\\b"`, dhallText(`a\b`))
	assert.Equal(t, `"line\nbreak"`, dhallText("line\nbreak"))
	assert.Equal(t, `"\${x}"`, dhallText("${x}"))
}

func TestRunToDhall(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "config.json")
	require.NoError(t, config.SaveConfig(jsonPath, config.DefaultConfig()))

	result, err := RunToDhall(ToDhallOptions{ConfigPath: jsonPath})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.dhall"), result.OutputPath)

	data, err := os.ReadFile(result.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, result.Output, string(data))

	_, err = RunToDhall(ToDhallOptions{ConfigPath: jsonPath})
	assert.ErrorContains(t, err, "already exists")

	_, err = RunToDhall(ToDhallOptions{ConfigPath: jsonPath, Force: true})
	assert.NoError(t, err)
}

func TestRunToDhall_DryRunWritesNothing(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "config.json")
	require.NoError(t, config.SaveConfig(jsonPath, config.DefaultConfig()))

	result, err := RunToDhall(ToDhallOptions{ConfigPath: jsonPath, DryRun: true})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Output)

	_, err = os.Stat(result.OutputPath)
	assert.True(t, os.IsNotExist(err))
}

func TestRunToDhall_MissingConfig(t *testing.T) {
	_, err := RunToDhall(ToDhallOptions{ConfigPath: filepath.Join(t.TempDir(), "missing.json")})
	assert.ErrorContains(t, err, "config file not found")
}

// TestConfigRoundtrip verifies that JSON -> Dhall -> JSON produces an
// equivalent config. Requires dhall-to-json to be installed.
func TestConfigRoundtrip(t *testing.T) {
	if _, err := exec.LookPath("dhall-to-json"); err != nil {
		t.Skip("dhall-to-json not installed, skipping roundtrip test")
	}

	t.Setenv("CHATBRIDGE_DISCORD_WEBHOOK_URL", "https://discord.com/api/webhooks/1/x")

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Discord.WebhookURL = "https://discord.com/api/webhooks/1/x"
	cfg.Format.Prefixes = map[string]string{"fc": "<@&1>"}

	jsonPath := filepath.Join(dir, "config.json")
	require.NoError(t, config.SaveConfig(jsonPath, cfg))

	result, err := RunToDhall(ToDhallOptions{ConfigPath: jsonPath})
	require.NoError(t, err)

	loaded, err := config.LoadDhallConfig(result.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
	assert.True(t, strings.HasSuffix(result.OutputPath, ".dhall"))
}
