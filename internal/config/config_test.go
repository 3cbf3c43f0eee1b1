package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "be-permits-portal", cfg.Service.Name)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, int32(10), cfg.Database.MaxConns)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 20*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 9090, cfg.GRPC.Port)
	assert.Equal(t, "application-documents", cfg.Storage.Bucket)
	assert.Equal(t, "blank", cfg.Workflow.RejectionTimeline)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
}

func TestLoadReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("DB_NAME=permits_test\nWORKFLOW_REJECTION_TIMELINE=preserve\n"), 0o600))
	t.Setenv("ENV_FILE", path)
	t.Setenv("DB_NAME", "")
	t.Setenv("WORKFLOW_REJECTION_TIMELINE", "")
	os.Unsetenv("DB_NAME")
	os.Unsetenv("WORKFLOW_REJECTION_TIMELINE")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "permits_test", cfg.Database.Database)
	assert.Equal(t, "preserve", cfg.Workflow.RejectionTimeline)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"ok", func(*Config) {}, false},
		{"bad rejection policy", func(c *Config) { c.Workflow.RejectionTimeline = "erase" }, true},
		{"supabase without key", func(c *Config) { c.Storage.SupabaseURL = "https://x.supabase.co" }, true},
		{"production without jwt secret", func(c *Config) { c.Service.Environment = "production" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Workflow: WorkflowConfig{RejectionTimeline: "blank"}}
			tt.mutate(cfg)
			if tt.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}
