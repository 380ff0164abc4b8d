package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ErrInvalidConfig wraps validation failures from Load.
var ErrInvalidConfig = errors.New("invalid configuration")

// Load reads configuration from the given file (or the standard search
// paths when empty), layered over Default() with ACTRA_* environment
// overrides.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	setViperDefaults(v, Default())

	v.SetEnvPrefix("ACTRA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("actra")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/actra")
		v.AddConfigPath("/etc/actra")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configFile != "" {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// No config file is fine; defaults and env carry the day.
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setViperDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("engine.definitions_dir", d.Engine.DefinitionsDir)
	v.SetDefault("engine.watch_dir", d.Engine.WatchDir)
	v.SetDefault("engine.hook_timeout", d.Engine.HookTimeout)
	v.SetDefault("engine.tenant_id", d.Engine.TenantID)
	v.SetDefault("engine.tenant_tag", d.Engine.TenantTag)
	v.SetDefault("engine.tenant_type", d.Engine.TenantType)

	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("database.busy_timeout", d.Database.BusyTimeout)
	v.SetDefault("database.wal_mode", d.Database.WALMode)
	v.SetDefault("database.sweep_schedule", d.Database.SweepSchedule)

	v.SetDefault("federation.secret", d.Federation.Secret)
	v.SetDefault("federation.token_ttl", d.Federation.TokenTTL)
	v.SetDefault("federation.max_attempts", d.Federation.MaxAttempts)
	v.SetDefault("federation.base_delay", d.Federation.BaseDelay)
	v.SetDefault("federation.poll_interval", d.Federation.PollInterval)
	v.SetDefault("federation.send_timeout", d.Federation.SendTimeout)
	v.SetDefault("federation.attachments.backend", d.Federation.Attachments.Backend)
	v.SetDefault("federation.attachments.path", d.Federation.Attachments.Path)
	v.SetDefault("federation.attachments.compress", d.Federation.Attachments.Compress)
	v.SetDefault("federation.attachments.s3_region", d.Federation.Attachments.S3Region)
	v.SetDefault("federation.attachments.s3_bucket", d.Federation.Attachments.S3Bucket)
	v.SetDefault("federation.attachments.s3_endpoint", d.Federation.Attachments.S3Endpoint)
	v.SetDefault("federation.attachments.s3_access_key_id", d.Federation.Attachments.S3AccessKeyID)
	v.SetDefault("federation.attachments.s3_secret_access_key", d.Federation.Attachments.S3SecretAccessKey)
	v.SetDefault("federation.attachments.s3_force_path_style", d.Federation.Attachments.S3ForcePathStyle)

	v.SetDefault("notifications.history_size", d.Notifications.HistorySize)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.listen", d.Metrics.Listen)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.pretty", d.Logging.Pretty)
}
