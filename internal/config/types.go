package config

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Storage   StorageConfig   `json:"storage"`
	Dashboard DashboardConfig `json:"dashboard"`
	Reminders RemindersConfig `json:"reminders"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	GroupLog     string  `json:"group_log"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// SchedulerConfig controls reminder triggers.
type SchedulerConfig struct {
	Enabled bool `json:"enabled"`
	// DefaultTimezone applies to guilds that never ran /set_timezone.
	DefaultTimezone string `json:"default_timezone,omitempty"`
	// FireTimeout bounds one delivery (Go duration string). Default "2m".
	FireTimeout string `json:"fire_timeout,omitempty"`
}

// StorageConfig selects the persistence driver.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/remindbot.sqlite" }
//	"storage": { "driver": "postgres", "dsn": "${DATABASE_URL}" }
type StorageConfig struct {
	Driver string `json:"driver"`
	Path   string `json:"path,omitempty"`
	DSN    string `json:"dsn,omitempty"`

	Addr     string `json:"addr,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`

	Database    string `json:"database,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	KeyPrefix   string `json:"key_prefix,omitempty"`
}

// DashboardConfig controls the HTTP dashboard. There is no authentication;
// bind it to a private address.
type DashboardConfig struct {
	Enabled     bool     `json:"enabled"`
	Addr        string   `json:"addr,omitempty"` // default: "127.0.0.1:3000"
	CORSOrigins []string `json:"cors_origins,omitempty"`
}

type RemindersConfig struct {
	// ConfirmTTL is how long a cancel-all prompt stays answerable. Default "2m".
	ConfirmTTL string `json:"confirm_ttl,omitempty"`
	// SendRatePerSec caps outbound reminder messages. Default 20.
	SendRatePerSec int `json:"send_rate_per_sec,omitempty"`
	// ChatCacheTTL caches getChat lookups. Default "10m".
	ChatCacheTTL string `json:"chat_cache_ttl,omitempty"`
}
