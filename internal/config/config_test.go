package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, 60, cfg.Relay.ReadinessTimeoutSec)
	assert.Equal(t, 10, cfg.Relay.TeardownTimeoutSec)
	assert.Equal(t, 100, cfg.Relay.QueueSize)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")
	cfg := DefaultConfig()
	cfg.Platform.Telegram = &TelegramConfig{Token: "tg-token"}
	cfg.Platform.Slack = &SlackConfig{BotToken: "xoxb", AppToken: "xapp"}
	cfg.Redis.URL = "localhost:6379"
	cfg.Relay.QueueSize = 42

	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"platform":{"telegram":{"token":"tg"}}}`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Platform.Telegram)
	assert.Equal(t, "tg", cfg.Platform.Telegram.Token)
	// unset sections keep their defaults
	assert.Equal(t, 60, cfg.Relay.ReadinessTimeoutSec)
	assert.Equal(t, 100, cfg.Relay.QueueSize)
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{nope"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadChannelSpecs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channels.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
channels:
  - name: general
    ids:
      telegram: "-100123"
      slack: C123
    extra:
      discord_webhook_id: "999"
      discord_webhook_token: secret
  - name: dev
    ids:
      slack: C456
`), 0644))

	specs, err := LoadChannelSpecs(path)
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, "general", specs[0].Name)
	assert.Equal(t, "-100123", specs[0].IDs["telegram"])
	assert.Equal(t, "secret", specs[0].Extra["discord_webhook_token"])
	assert.Equal(t, "dev", specs[1].Name)
	assert.Empty(t, specs[1].Extra)
}

func TestLoadChannelSpecs_MissingFile(t *testing.T) {
	specs, err := LoadChannelSpecs(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Nil(t, specs)
}

func TestLoadChannelSpecs_UnnamedChannel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channels.yaml")
	require.NoError(t, os.WriteFile(path, []byte("channels:\n  - ids:\n      slack: C1\n"), 0644))

	_, err := LoadChannelSpecs(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no name")
}
