// Package config defines the runtime configuration and its loader.
package config

import "time"

// Config is the full runtime configuration.
type Config struct {
	Engine        EngineConfig        `mapstructure:"engine"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Federation    FederationConfig    `mapstructure:"federation"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// EngineConfig controls definition loading and hook execution.
type EngineConfig struct {
	DefinitionsDir string        `mapstructure:"definitions_dir"`
	WatchDir       bool          `mapstructure:"watch_dir"`
	HookTimeout    time.Duration `mapstructure:"hook_timeout"`
	TenantID       string        `mapstructure:"tenant_id"`
	TenantTag      string        `mapstructure:"tenant_tag"`
	TenantType     string        `mapstructure:"tenant_type"`
}

// DatabaseConfig controls the SQLite store.
type DatabaseConfig struct {
	Path          string        `mapstructure:"path"`
	BusyTimeout   time.Duration `mapstructure:"busy_timeout"`
	WALMode       bool          `mapstructure:"wal_mode"`
	SweepSchedule string        `mapstructure:"sweep_schedule"`
}

// FederationConfig controls token signing, delivery retries, and the
// attachment backend.
type FederationConfig struct {
	Secret       string           `mapstructure:"secret"`
	TokenTTL     time.Duration    `mapstructure:"token_ttl"`
	MaxAttempts  int              `mapstructure:"max_attempts"`
	BaseDelay    time.Duration    `mapstructure:"base_delay"`
	PollInterval time.Duration    `mapstructure:"poll_interval"`
	SendTimeout  time.Duration    `mapstructure:"send_timeout"`
	Attachments  AttachmentConfig `mapstructure:"attachments"`
}

// AttachmentConfig selects and configures the attachment blob backend.
type AttachmentConfig struct {
	Backend  string `mapstructure:"backend"` // "filesystem" or "s3"
	Path     string `mapstructure:"path"`
	Compress bool   `mapstructure:"compress"`

	S3Region          string `mapstructure:"s3_region"`
	S3Bucket          string `mapstructure:"s3_bucket"`
	S3Endpoint        string `mapstructure:"s3_endpoint"`
	S3AccessKeyID     string `mapstructure:"s3_access_key_id"`
	S3SecretAccessKey string `mapstructure:"s3_secret_access_key"`
	S3ForcePathStyle  bool   `mapstructure:"s3_force_path_style"`
}

// NotificationsConfig controls the in-process notification bus.
type NotificationsConfig struct {
	HistorySize int `mapstructure:"history_size"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// LoggingConfig controls zerolog output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			DefinitionsDir: "definitions",
			WatchDir:       true,
			HookTimeout:    5 * time.Second,
			TenantType:     "person",
		},
		Database: DatabaseConfig{
			Path:          "data/actra.db",
			BusyTimeout:   5 * time.Second,
			WALMode:       true,
			SweepSchedule: "* * * * *",
		},
		Federation: FederationConfig{
			TokenTTL:     24 * time.Hour,
			MaxAttempts:  5,
			BaseDelay:    time.Second,
			PollInterval: 5 * time.Second,
			SendTimeout:  30 * time.Second,
			Attachments: AttachmentConfig{
				Backend:  "filesystem",
				Path:     "data/attachments",
				Compress: true,
			},
		},
		Notifications: NotificationsConfig{HistorySize: 1000},
		Metrics: MetricsConfig{
			Enabled: true,
			Listen:  ":9100",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}
