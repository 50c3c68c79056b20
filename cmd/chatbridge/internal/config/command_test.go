package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/chatbridge/pkg/config"
)

func TestNewConfigCommand(t *testing.T) {
	cmd := NewConfigCommand()

	require.NotNil(t, cmd)

	assert.Equal(t, "config", cmd.Use)
	assert.Equal(t, "Manage the chatbridge configuration", cmd.Short)

	assert.Empty(t, cmd.Aliases)

	assert.True(t, cmd.HasExample())
	assert.True(t, cmd.HasSubCommands())

	assert.Nil(t, cmd.Run)
	assert.Nil(t, cmd.RunE)

	assert.Nil(t, cmd.PersistentPreRun)
	assert.Nil(t, cmd.PersistentPostRun)
}

func TestNewConfigCommand_Subcommands(t *testing.T) {
	cmd := NewConfigCommand()

	for _, name := range []string{"init", "show", "validate", "to-dhall"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Use)
		assert.NotNil(t, sub.Flags().Lookup("config"), name)
	}

	toDhall, _, err := cmd.Find([]string{"to-dhall"})
	require.NoError(t, err)
	assert.NotNil(t, toDhall.Flags().Lookup("output"))
	assert.NotNil(t, toDhall.Flags().Lookup("dry-run"))
	assert.NotNil(t, toDhall.Flags().Lookup("force"))
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewConfigCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestInitThenShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	out, err := run(t, "init", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	_, err = run(t, "init", "--config", path)
	assert.ErrorContains(t, err, "already exists")

	_, err = run(t, "init", "--config", path, "--force")
	require.NoError(t, err)

	t.Setenv("CHATBRIDGE_DISCORD_WEBHOOK_URL", "https://discord.com/api/webhooks/123/very-secret")
	out, err = run(t, "show", "--config", path)
	require.NoError(t, err)
	assert.NotContains(t, out, "very-secret")

	var shown config.Config
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Equal(t, "https://discord.com/api/webhooks/123/********", shown.Discord.WebhookURL)
	assert.Equal(t, 2000, shown.Dedupe.OutgoingWindowMS)
}

func TestValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, config.SaveConfig(path, config.DefaultConfig()))

	_, err := run(t, "validate", "--config", path)
	assert.ErrorContains(t, err, "webhook_url")

	t.Setenv("CHATBRIDGE_DISCORD_WEBHOOK_URL", "https://discord.com/api/webhooks/123/abc")
	out, err := run(t, "validate", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "valid")
}

func TestShow_MissingFile(t *testing.T) {
	_, err := run(t, "show", "--config", filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorContains(t, err, "not found")
}

func TestToDhall_DryRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := config.DefaultConfig()
	cfg.Discord.WebhookURL = "https://discord.com/api/webhooks/123/abc"
	require.NoError(t, config.SaveConfig(path, cfg))

	out, err := run(t, "to-dhall", "--config", path, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "env:CHATBRIDGE_DISCORD_WEBHOOK_URL")
	assert.Contains(t, out, "Warnings:")

	_, err = os.Stat(filepath.Join(filepath.Dir(path), "config.dhall"))
	assert.True(t, os.IsNotExist(err), "dry run must not write")
}
