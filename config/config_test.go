package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvelasco/campusd/auth"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "campusd.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, auth.DefaultMaxAttempts, cfg.Lockout.MaxAttempts)
	assert.Equal(t, auth.DefaultLockoutDuration, cfg.Lockout.Duration.Std())
	assert.Equal(t, auth.DefaultIdleTimeout, cfg.Session.IdleTimeout.Std())
	assert.Equal(t, auth.DefaultArgon2idParams(), cfg.Argon2idParams())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
listen = ":9090"
data_dir = "/var/lib/campusd"

[lockout]
max_attempts = 3
duration = "5m"
reset_window = "30m"

[session]
idle_timeout = "1h"
absolute_timeout = "8h"

[hashing]
memory_kib = 32768
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, 3, cfg.Lockout.MaxAttempts)
	assert.Equal(t, 5*time.Minute, cfg.Lockout.Duration.Std())
	assert.Equal(t, 30*time.Minute, cfg.Lockout.ResetWindow.Std())
	assert.Equal(t, time.Hour, cfg.Session.IdleTimeout.Std())
	assert.Equal(t, 8*time.Hour, cfg.Session.AbsoluteTimeout.Std())
	assert.Equal(t, uint32(32768), cfg.Argon2idParams().MemoryKiB)
	// Untouched sections keep their defaults.
	assert.Equal(t, auth.DefaultArgon2idParams().Time, cfg.Argon2idParams().Time)
}

func TestLoad_Rejections(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown key", `listne = ":9090"`},
		{"bad duration", "[lockout]\nduration = \"fifteen\""},
		{"zero attempts", "[lockout]\nmax_attempts = 0"},
		{"idle exceeds absolute", "[session]\nidle_timeout = \"48h\""},
		{"weak hashing", "[hashing]\nmemory_kib = 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}
