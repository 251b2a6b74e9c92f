package config

type Config struct {
	Telegram    TelegramConfig     `json:"telegram"`
	Logging     LoggingConfig      `json:"logging"`
	Storage     StorageConfig      `json:"storage"`
	Maintenance *MaintenanceConfig `json:"maintenance,omitempty"`
}

type TelegramConfig struct {
	// Token may be left empty; the app then falls back to the
	// TELEGRAM_BOT_TOKEN environment variable.
	Token string `json:"token,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
	// SendRatePerSec caps outbound API calls (default 25).
	SendRatePerSec int `json:"send_rate_per_sec,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type StorageConfig struct {
	Path string `json:"path"`
	// BusyTimeout is a Go duration string (sqlite busy handler).
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// MaintenanceConfig controls the periodic cleanup job.
// If the section is omitted, maintenance runs nightly with defaults.
type MaintenanceConfig struct {
	Enabled *bool `json:"enabled,omitempty"`
	// Schedule is a cron spec (default "0 4 * * *": daily at 04:00).
	Schedule string `json:"schedule,omitempty"`
	// CooldownRetention is how long last-served rows are kept
	// (Go duration string, default "168h").
	CooldownRetention string `json:"cooldown_retention,omitempty"`
}
