package boot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/inboxd/internal/config"
)

func TestProvideRuntimeConfigRequiresSecret(t *testing.T) {
	_, err := ProvideRuntimeConfig(config.Default())
	assert.Error(t, err)
}

func TestProvideRuntimeConfigParsesDurations(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.JWTSecret = "s3cret"
	cfg.Inbox.KeepAliveSeconds = 0

	rc, err := ProvideRuntimeConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, rc.JwtExpiresIn)
	assert.Equal(t, 24*time.Hour, rc.Window)
	assert.Equal(t, 15*time.Second, rc.KeepAlive)
	assert.Equal(t, 15*time.Second, rc.ProviderTimeout)
	assert.False(t, rc.Development)
}

func TestProvideRuntimeConfigEnvOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("APP_ENV", "development")
	t.Setenv("WA_VERIFY_TOKEN", "verify")
	t.Setenv("WA_APP_SECRET", "app-secret")
	t.Setenv("WHATSAPP_ACCESS_TOKEN", "token")
	t.Setenv("WHATSAPP_PHONE_NUMBER_ID", "42")

	cfg := config.Default()
	cfg.Auth.JWTSecret = "s3cret"
	rc, err := ProvideRuntimeConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, ":9999", rc.ServerAddr)
	assert.True(t, rc.Development)
	assert.Equal(t, "verify", rc.VerifyToken)
	assert.Equal(t, "app-secret", rc.AppSecret)
	assert.Equal(t, "token", rc.AccessToken)
	assert.Equal(t, "42", rc.PhoneNumberID)
}

func TestProvideRuntimeConfigRejectsBadWindow(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.JWTSecret = "s3cret"
	cfg.Inbox.WindowHours = 0
	_, err := ProvideRuntimeConfig(cfg)
	assert.Error(t, err)
}
