package config

// Config is the static bot configuration. Operator-editable state
// (threshold, schedule, blacklist, targets) lives in the configstore
// records; the fields under Defaults only seed them on first boot.
//
// All durations are Go duration strings (e.g. "500ms", "30s", "3m").
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord,omitempty"`

	// Admins may run admin commands. Empty means everyone is an admin.
	Admins []string `json:"admins"`

	Monitor   MonitorConfig   `json:"monitor"`
	Source    SourceConfig    `json:"source"`
	Defaults  DefaultsConfig  `json:"defaults"`
	Dispatch  DispatchConfig  `json:"dispatch,omitempty"`
	Report    ReportConfig    `json:"report,omitempty"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Commands  CommandsConfig  `json:"commands,omitempty"`
	Storage   StorageConfig   `json:"storage"`
	Logging   LoggingConfig   `json:"logging"`
	HTTP      HTTPConfig      `json:"http,omitempty"`
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token,omitempty"` // prefer LINKWATCH_TELEGRAM_TOKEN
	// PollTimeout is the long-poll timeout.
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type DiscordConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token,omitempty"` // prefer LINKWATCH_DISCORD_TOKEN
}

// MonitorConfig controls the outage poll.
//
// Defaults:
//   - poll_interval: "30s"
//   - grouping_threshold: 10
type MonitorConfig struct {
	Routers           []string          `json:"routers"`
	RouterLabels      map[string]string `json:"router_labels,omitempty"`
	PollInterval      string            `json:"poll_interval,omitempty"`
	GroupingThreshold int               `json:"grouping_threshold,omitempty"`
}

// SourceConfig points at the offline and status endpoints.
// StatusURL must contain "{router}".
type SourceConfig struct {
	OfflineURL string `json:"offline_url"`
	StatusURL  string `json:"status_url"`
	Attempts   int    `json:"attempts,omitempty"`
	RetryDelay string `json:"retry_delay,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
}

type TargetConfig struct {
	ID   string `json:"id"`
	Type string `json:"type,omitempty"` // "all" (default) or "link"
}

// DefaultsConfig seeds the durable records when they do not exist yet.
type DefaultsConfig struct {
	ThresholdMin float64        `json:"threshold_min"`
	ThresholdMax float64        `json:"threshold_max"`
	Schedule     []string       `json:"schedule"`
	Targets      []TargetConfig `json:"targets,omitempty"`
}

type DispatchConfig struct {
	SendGap     string `json:"send_gap,omitempty"` // default "500ms"
	SendTimeout string `json:"send_timeout,omitempty"`
	HistorySize int    `json:"history_size,omitempty"`
}

type ReportConfig struct {
	Title    string `json:"title,omitempty"`
	Parallel int    `json:"parallel,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
}

// SchedulerConfig controls report and poll triggers.
type SchedulerConfig struct {
	// Timezone is an IANA name; report times and message timestamps use it.
	Timezone string `json:"timezone"`
	// TZLabel is printed after clock times, e.g. "WIB".
	TZLabel        string `json:"tz_label,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
}

type CommandsConfig struct {
	Workers   int    `json:"workers,omitempty"`
	QueueSize int    `json:"queue_size,omitempty"`
	Timeout   string `json:"timeout,omitempty"`
}

// StorageConfig controls the durable records.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./data" }
type StorageConfig struct {
	Driver       string `json:"driver"`
	Path         string `json:"path"`
	BusyTimeout  string `json:"busy_timeout,omitempty"` // sqlite
	WriteRetries int    `json:"write_retries,omitempty"`
	RetryDelay   string `json:"retry_delay,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}

type LoggingFile struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
	Compress   bool   `json:"compress,omitempty"`
}

// LoggingChat forwards warnings and errors to an operator channel.
type LoggingChat struct {
	Enabled    bool   `json:"enabled"`
	Channel    string `json:"channel"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// HTTPConfig controls the optional operational HTTP server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:9090").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type HTTPConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"` // bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}
