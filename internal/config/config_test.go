package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := NewConfig()

	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, DriverPostgres, cfg.DBDriver)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, "400000", cfg.CardNumberPrefix)
	assert.Equal(t, 3, cfg.CardValidityYears)
	assert.Equal(t, "0 0 * * *", cfg.ExpirySweepCron)
	assert.False(t, cfg.NotificationsEnabled())
}

func TestNewConfigRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := NewConfig()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestNewConfigRejectsUnknownDriver(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("DB_DRIVER", "mongo")

	_, err := NewConfig()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_DRIVER")
}

func TestNewConfigMemoryDriverSkipsConnString(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("DB_DRIVER", DriverMemory)
	t.Setenv("DB_CONN", "")

	cfg, err := NewConfig()

	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.DBDriver)
}

func TestNewConfigInvalidTokenTTL(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("TOKEN_TTL", "forever")

	_, err := NewConfig()

	require.Error(t, err)
}

func TestNewConfigSMTPEnablesNotifications(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("SMTP_HOST", "smtp.example.com")

	cfg, err := NewConfig()

	require.NoError(t, err)
	assert.True(t, cfg.NotificationsEnabled())
}
