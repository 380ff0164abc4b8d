package config

import "fmt"

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true,
	"warn": true, "error": true,
}

// Validate checks cross-field constraints the struct tags cannot express.
func Validate(cfg *Config) error {
	if cfg.Engine.TenantTag == "" {
		return fmt.Errorf("%w: engine.tenant_tag is required", ErrInvalidConfig)
	}
	if cfg.Engine.HookTimeout <= 0 {
		return fmt.Errorf("%w: engine.hook_timeout must be positive", ErrInvalidConfig)
	}
	if cfg.Database.Path == "" {
		return fmt.Errorf("%w: database.path is required", ErrInvalidConfig)
	}
	if cfg.Federation.MaxAttempts < 1 {
		return fmt.Errorf("%w: federation.max_attempts must be at least 1", ErrInvalidConfig)
	}

	switch cfg.Federation.Attachments.Backend {
	case "filesystem":
		if cfg.Federation.Attachments.Path == "" {
			return fmt.Errorf("%w: federation.attachments.path is required for the filesystem backend", ErrInvalidConfig)
		}
	case "s3":
		if cfg.Federation.Attachments.S3Bucket == "" {
			return fmt.Errorf("%w: federation.attachments.s3_bucket is required for the s3 backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown attachments backend %q", ErrInvalidConfig, cfg.Federation.Attachments.Backend)
	}

	if cfg.Logging.Level != "" && !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, cfg.Logging.Level)
	}
	return nil
}
