package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/bi?sslmode=disable")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("REFRESH_SECRET", "")
	t.Setenv("APP_ENV", "")
	t.Setenv("REGISTRATION_MODE", "")
	t.Setenv("LOGIN_RATE_LIMIT", "")
	t.Setenv("LOGIN_RATE_WINDOW", "")
	t.Setenv("TRUSTED_PROXIES", "")
}

func TestLoad_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 5, cfg.LoginRateLimit)
	assert.Equal(t, 15*time.Minute, cfg.LoginRateWindow)
	assert.Equal(t, RegistrationOpen, cfg.RegistrationMode)
	assert.Equal(t, "auth_events", cfg.KafkaTopic)
	assert.Equal(t, []byte(defaultAccessSecret), cfg.JWTSecret)
	assert.Equal(t, []string{"JWT_SECRET", "REFRESH_SECRET"}, cfg.InsecureSecrets)
	assert.Empty(t, cfg.TrustedProxies)
}

func TestLoad_TrustedProxies(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.168.1.10/32")

	cfg, err := Load()
	require.NoError(t, err)
	require.Len(t, cfg.TrustedProxies, 2)
	assert.Equal(t, "10.0.0.0/8", cfg.TrustedProxies[0].String())

	t.Setenv("TRUSTED_PROXIES", "10.0.0.1")
	_, err = Load()
	require.Error(t, err)
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoad_ProductionRequiresSecrets(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "access")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REFRESH_SECRET")

	t.Setenv("REFRESH_SECRET", "refresh")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.InsecureSecrets)
	assert.NotEqual(t, cfg.JWTSecret, cfg.RefreshSecret)
}

func TestLoad_RejectsUnknownRegistrationMode(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("REGISTRATION_MODE", "invite")

	_, err := Load()
	require.Error(t, err)
}
