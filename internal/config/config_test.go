package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ACTRA_ENGINE_TENANT_TAG", "alice.example.com")

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "definitions", cfg.Engine.DefinitionsDir)
	require.Equal(t, 5*time.Second, cfg.Engine.HookTimeout)
	require.True(t, cfg.Database.WALMode)
	require.Equal(t, 5, cfg.Federation.MaxAttempts)
	require.Equal(t, "filesystem", cfg.Federation.Attachments.Backend)
	require.Equal(t, 1000, cfg.Notifications.HistorySize)
	require.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "actra.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
engine:
  tenant_tag: alice.example.com
  hook_timeout: 2s
database:
  path: /tmp/actra-test.db
federation:
  attachments:
    backend: s3
    s3_bucket: actra-files
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "alice.example.com", cfg.Engine.TenantTag)
	require.Equal(t, 2*time.Second, cfg.Engine.HookTimeout)
	require.Equal(t, "/tmp/actra-test.db", cfg.Database.Path)
	require.Equal(t, "s3", cfg.Federation.Attachments.Backend)
	require.Equal(t, "actra-files", cfg.Federation.Attachments.S3Bucket)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("ACTRA_ENGINE_TENANT_TAG", "alice.example.com")
	t.Setenv("ACTRA_LOGGING_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing tenant tag", func(c *Config) { c.Engine.TenantTag = "" }},
		{"zero hook timeout", func(c *Config) { c.Engine.HookTimeout = 0 }},
		{"missing database path", func(c *Config) { c.Database.Path = "" }},
		{"unknown backend", func(c *Config) { c.Federation.Attachments.Backend = "ftp" }},
		{"s3 without bucket", func(c *Config) {
			c.Federation.Attachments.Backend = "s3"
			c.Federation.Attachments.S3Bucket = ""
		}},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Engine.TenantTag = "alice.example.com"
			tt.mutate(cfg)
			require.ErrorIs(t, Validate(cfg), ErrInvalidConfig)
		})
	}
}
