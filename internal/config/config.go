// Package config handles configuration loading, saving, and schema definition.
package config

// Config is the top-level crosschat configuration.
// Uses json tags in camelCase to match the JSON config file format.
type Config struct {
	Platform PlatformConfig `json:"platform"`
	Relay    RelayConfig    `json:"relay"`
	Redis    RedisConfig    `json:"redis"`
}

// PlatformConfig holds per-platform credentials. A nil entry disables the
// platform.
type PlatformConfig struct {
	Telegram   *TelegramConfig   `json:"telegram,omitempty"`
	Discord    *DiscordConfig    `json:"discord,omitempty"`
	Slack      *SlackConfig      `json:"slack,omitempty"`
	GoogleChat *GoogleChatConfig `json:"googleChat,omitempty"`
}

// TelegramConfig holds Telegram bot settings.
type TelegramConfig struct {
	Token string `json:"token"`
}

// DiscordConfig holds Discord bot settings. Per-channel webhook credentials
// live in the channel topology, not here.
type DiscordConfig struct {
	Token string `json:"token"`
}

// SlackConfig holds Slack app settings (Socket Mode requires both tokens).
type SlackConfig struct {
	BotToken string `json:"botToken"`
	AppToken string `json:"appToken"`
}

// GoogleChatConfig enables the Google Chat webhook adapter. The webhook URL
// itself is per-channel topology metadata.
type GoogleChatConfig struct {
	Enabled bool `json:"enabled"`
}

// RelayConfig holds propagation and lifecycle settings.
type RelayConfig struct {
	ReadinessTimeoutSec int    `json:"readinessTimeoutSec,omitempty"` // per-platform startup health gate
	TeardownTimeoutSec  int    `json:"teardownTimeoutSec,omitempty"`  // per-platform disconnect bound
	QueueSize           int    `json:"queueSize,omitempty"`           // scheduler task queue depth
	DefaultAvatarURL    string `json:"defaultAvatarUrl,omitempty"`
}

// RedisConfig holds optional Redis cache settings.
type RedisConfig struct {
	URL      string `json:"url,omitempty"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Relay: RelayConfig{
			ReadinessTimeoutSec: 60,
			TeardownTimeoutSec:  10,
			QueueSize:           100,
		},
	}
}
