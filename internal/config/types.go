package config

import "time"

const DefaultHeartbeatInterval = 300 * time.Second

type Config struct {
	// Listen is the webhook bind address, e.g. ":8080".
	Listen string `json:"listen"`

	// HeartbeatInterval is H, a Go duration string (default "300s").
	// Liveness thresholds are multiples of H (1.5H inactive, 2.5H dead).
	HeartbeatInterval string `json:"heartbeat_interval,omitempty"`

	// BotSecretToken gates the operator-update path
	// (X-Telegram-Bot-Api-Secret-Token header).
	BotSecretToken string `json:"bot_secret_token,omitempty"`

	// AllowedChatIDs is the operator chat allow-list. AllowedUserIDs is an
	// optional second gate; empty means any user in an allowed chat.
	AllowedChatIDs []int64 `json:"allowed_chat_ids,omitempty"`
	AllowedUserIDs []int64 `json:"allowed_user_ids,omitempty"`

	// DefaultBotToken is used for operator replies and for devices that
	// don't carry their own bot credential.
	DefaultBotToken string `json:"default_bot_token,omitempty"`

	// ConfigTemplate is served on authenticated GET with the "{{credential}}"
	// placeholder replaced by "<device>/<token>".
	ConfigTemplate string `json:"config_template,omitempty"`

	Devices map[string]DeviceConfig `json:"devices"`

	Telegram TelegramConfig `json:"telegram,omitempty"`
	Logging  LoggingConfig  `json:"logging"`
	Sweep    SweepConfig    `json:"sweep,omitempty"`
	Storage  StorageConfig  `json:"storage,omitempty"`
}

// DeviceConfig describes one provisioned device. Devices are managed out of
// band: the relay only reads credentials and tracks liveness.
type DeviceConfig struct {
	// Token is the device's shared secret.
	Token  string `json:"token"`
	ChatID int64  `json:"chat_id"`

	// BotToken overrides default_bot_token for this device's notifications.
	BotToken string `json:"bot_token,omitempty"`

	// PushURL is the out-of-band command endpoint (fire-and-forget POST).
	PushURL   string `json:"push_url,omitempty"`
	PushToken string `json:"push_token,omitempty"`

	// StickerID, when set, is sent along with "up" alerts.
	StickerID string `json:"sticker_id,omitempty"`
}

type TelegramConfig struct {
	// Timeout is a Go duration string bounding each Bot API call.
	Timeout string `json:"timeout,omitempty"`
	// LogChatID receives warn/error log lines when logging.telegram is enabled.
	LogChatID int64 `json:"log_chat_id,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// SweepConfig controls the periodic liveness sweep.
//
// Schedule accepts a cron spec (robfig/cron); when empty the sweep runs
// every heartbeat interval, which bounds duplicate "down" alerts to the
// Inactive window.
type SweepConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"`
}

// StorageConfig controls the liveness store.
//
// Driver values:
//   - "file": dependency-free snapshot backend
//   - "sqlite": SQLite database file (build with -tags sqlite)
//
// If Driver is empty, "file" is assumed.
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}
