package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, DefaultWindowHours, cfg.Inbox.WindowHours)
	assert.False(t, cfg.Inbox.PublishInbound)
}

func TestLoadOverridesOnlyGivenFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[app]
env = "development"

[whatsapp]
access_token = "tok"
phone_number_id = "123"

[inbox]
publish_inbound = true
keepalive_seconds = 5
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.App.IsDevelopment())
	assert.Equal(t, "tok", cfg.WhatsApp.AccessToken)
	assert.Equal(t, "123", cfg.WhatsApp.PhoneNumberID)
	assert.Equal(t, DefaultGraphBaseURL, cfg.WhatsApp.GraphBaseURL)
	assert.True(t, cfg.Inbox.PublishInbound)
	assert.Equal(t, 5, cfg.Inbox.KeepAliveSeconds)
	assert.Equal(t, DefaultStreamBuffer, cfg.Inbox.StreamBuffer)
	assert.Equal(t, DefaultHTTPAddr, cfg.Server.Addr)
}

func TestLoadRejectsInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[inbox\nwindow_hours = "), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
