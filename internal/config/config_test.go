package config

import (
	"os"
	"testing"
	"time"

	"github.com/Freeeeeet/tutorflow/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/tutorflow")
	for _, key := range []string{
		"ENV", "LOG_LEVEL", "STORAGE_DRIVER", "HTTP_ADDR", "MIGRATIONS_ENABLED",
		"LATE_RESCHEDULE_HOURS", "PACKAGE_WINDOW_DAYS", "EXPIRY_SWEEP_INTERVAL",
		"COMMAND_RATE_LIMIT_PER_MIN", "ADMIN_TELEGRAM_IDS", "TUTOR_TELEGRAM_IDS",
	} {
		// t.Setenv восстановит значение после теста
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := Parse()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, StoragePostgres, cfg.StorageDriver)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.True(t, cfg.MigrationsEnabled)
	assert.Equal(t, 24*time.Hour, cfg.LateRescheduleWindow())
	assert.Equal(t, 30, cfg.PackageWindowDays)
	assert.Equal(t, time.Hour, cfg.ExpirySweepInterval)
	assert.Equal(t, 30, cfg.CommandRateLimitPerMin)
	assert.Empty(t, cfg.BootstrapRoles())
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("LATE_RESCHEDULE_HOURS", "12")
	t.Setenv("EXPIRY_SWEEP_INTERVAL", "15m")
	t.Setenv("ADMIN_TELEGRAM_IDS", "100,200")
	t.Setenv("TUTOR_TELEGRAM_IDS", "200,300")

	cfg, err := Parse()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 12*time.Hour, cfg.LateRescheduleWindow())
	assert.Equal(t, 15*time.Minute, cfg.ExpirySweepInterval)
	assert.Equal(t, []int64{100, 200}, cfg.AdminTelegramIDs)

	roles := cfg.BootstrapRoles()
	assert.Equal(t, []model.Role{model.RoleAdmin}, roles[100])
	assert.Equal(t, []model.Role{model.RoleAdmin, model.RoleTutor}, roles[200])
	assert.Equal(t, []model.Role{model.RoleTutor}, roles[300])
}

func TestParseRejectsBadNumbers(t *testing.T) {
	t.Setenv("ADMIN_TELEGRAM_IDS", "100,abc")

	_, err := Parse()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Environment:         "development",
			LogLevel:            "info",
			StorageDriver:       StoragePostgres,
			DBDSN:               "postgres://localhost/tutorflow",
			HTTPAddr:            ":8080",
			PackageWindowDays:   30,
			ExpirySweepInterval: time.Hour,
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"valid", func(c *Config) {}, ""},
		{"postgres without dsn", func(c *Config) { c.DBDSN = "" }, "DB_DSN"},
		{"memory without dsn", func(c *Config) { c.StorageDriver = StorageMemory; c.DBDSN = "" }, ""},
		{"unknown driver", func(c *Config) { c.StorageDriver = "sqlite" }, "STORAGE_DRIVER"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "LOG_LEVEL"},
		{"zero window", func(c *Config) { c.PackageWindowDays = 0 }, "PACKAGE_WINDOW_DAYS"},
		{"negative late window", func(c *Config) { c.LateRescheduleHours = -1 }, "LATE_RESCHEDULE_HOURS"},
		{"zero sweep", func(c *Config) { c.ExpirySweepInterval = 0 }, "EXPIRY_SWEEP_INTERVAL"},
		{"no transport", func(c *Config) { c.HTTPAddr = "" }, "TELEGRAM_TOKEN"},
		{"production weak token", func(c *Config) { c.Environment = "production"; c.InternalAPIToken = "secret" }, "INTERNAL_API_TOKEN"},
		{"production strong token", func(c *Config) {
			c.Environment = "production"
			c.InternalAPIToken = "0123456789abcdef0123456789abcdef"
		}, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errMsg)
		})
	}
}
