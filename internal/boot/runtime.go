// Package boot turns the loaded configuration into parsed runtime settings.
package boot

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/memohai/inboxd/internal/config"
)

// RuntimeConfig holds parsed runtime settings.
// Values may be overridden by environment variables (HTTP_ADDR, APP_ENV, WA_VERIFY_TOKEN, WA_APP_SECRET,
// WHATSAPP_ACCESS_TOKEN, WHATSAPP_PHONE_NUMBER_ID).
type RuntimeConfig struct {
	JwtSecret       string
	JwtExpiresIn    time.Duration
	ServerAddr      string
	Development     bool
	VerifyToken     string
	AppSecret       string
	AccessToken     string
	PhoneNumberID   string
	ProviderTimeout time.Duration
	Window          time.Duration
	KeepAlive       time.Duration
}

// ProvideRuntimeConfig builds RuntimeConfig from the given config and applies env overrides.
func ProvideRuntimeConfig(cfg config.Config) (*RuntimeConfig, error) {
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return nil, errors.New("jwt secret is required")
	}

	jwtExpiresIn, err := time.ParseDuration(cfg.Auth.JWTExpiresIn)
	if err != nil {
		return nil, fmt.Errorf("invalid jwt expires in: %w", err)
	}

	timeout, err := time.ParseDuration(cfg.WhatsApp.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid whatsapp timeout: %w", err)
	}

	if cfg.Inbox.WindowHours <= 0 {
		return nil, fmt.Errorf("invalid inbox window hours: %d", cfg.Inbox.WindowHours)
	}
	keepAlive := cfg.Inbox.KeepAliveSeconds
	if keepAlive <= 0 {
		keepAlive = config.DefaultKeepAliveSeconds
	}

	ret := &RuntimeConfig{
		JwtSecret:       cfg.Auth.JWTSecret,
		JwtExpiresIn:    jwtExpiresIn,
		ServerAddr:      cfg.Server.Addr,
		Development:     cfg.App.IsDevelopment(),
		VerifyToken:     cfg.WhatsApp.VerifyToken,
		AppSecret:       cfg.WhatsApp.AppSecret,
		AccessToken:     cfg.WhatsApp.AccessToken,
		PhoneNumberID:   cfg.WhatsApp.PhoneNumberID,
		ProviderTimeout: timeout,
		Window:          time.Duration(cfg.Inbox.WindowHours) * time.Hour,
		KeepAlive:       time.Duration(keepAlive) * time.Second,
	}

	if value := os.Getenv("HTTP_ADDR"); value != "" {
		ret.ServerAddr = value
	}
	if value := os.Getenv("APP_ENV"); value != "" {
		ret.Development = value == "development"
	}
	if value := os.Getenv("WA_VERIFY_TOKEN"); value != "" {
		ret.VerifyToken = value
	}
	if value := os.Getenv("WA_APP_SECRET"); value != "" {
		ret.AppSecret = value
	}
	if value := os.Getenv("WHATSAPP_ACCESS_TOKEN"); value != "" {
		ret.AccessToken = value
	}
	if value := os.Getenv("WHATSAPP_PHONE_NUMBER_ID"); value != "" {
		ret.PhoneNumberID = value
	}
	return ret, nil
}
