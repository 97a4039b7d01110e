// Package config loads and exposes application configuration (TOML).
package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath       = "config.toml"
	DefaultHTTPAddr         = ":8080"
	DefaultAppEnv           = "production"
	DefaultJWTExpiresIn     = "24h"
	DefaultPGHost           = "127.0.0.1"
	DefaultPGPort           = 5432
	DefaultPGUser           = "postgres"
	DefaultPGDatabase       = "inbox"
	DefaultPGSSLMode        = "disable"
	DefaultStorageDriver    = "postgres"
	DefaultGraphBaseURL     = "https://graph.facebook.com"
	DefaultGraphVersion     = "v20.0"
	DefaultWhatsAppTimeout  = "15s"
	DefaultSendRate         = 20
	DefaultSendBurst        = 40
	DefaultWindowHours      = 24
	DefaultKeepAliveSeconds = 15
	DefaultStreamBuffer     = 64
	DefaultMaxPageSize      = 100
	DefaultWebhookWorkers   = 8
	DefaultUploadsDir       = "uploads"
	DefaultUploadsPrefix    = "/uploads"
	DefaultTelemetryExport  = "stdout"
)

// Config is the root application configuration loaded from TOML.
type Config struct {
	Log       LogConfig       `toml:"log"`
	Server    ServerConfig    `toml:"server"`
	App       AppConfig       `toml:"app"`
	Admin     AdminConfig     `toml:"admin"`
	Auth      AuthConfig      `toml:"auth"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Storage   StorageConfig   `toml:"storage"`
	WhatsApp  WhatsAppConfig  `toml:"whatsapp"`
	Inbox     InboxConfig     `toml:"inbox"`
	Media     MediaConfig     `toml:"media"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// LogConfig holds logging level and format (e.g. level=info, format=text).
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ServerConfig holds the HTTP server listen address.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// AppConfig holds the deployment environment (production or development).
type AppConfig struct {
	Env string `toml:"env"`
}

// AdminConfig holds the bootstrap admin account created when no account exists.
type AdminConfig struct {
	Username    string `toml:"username"`
	Password    string `toml:"password"`
	DisplayName string `toml:"display_name"`
}

// AuthConfig holds JWT secret and token expiry (e.g. 24h).
type AuthConfig struct {
	JWTSecret    string `toml:"jwt_secret"`
	JWTExpiresIn string `toml:"jwt_expires_in"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`

	// AutoMigrate applies pending migrations when serve starts.
	AutoMigrate bool `toml:"auto_migrate"`
}

// StorageConfig selects the repository backend ("postgres" or "memory").
type StorageConfig struct {
	Driver string `toml:"driver"`
}

// WhatsAppConfig holds the Cloud API credentials and webhook secrets.
type WhatsAppConfig struct {
	GraphBaseURL  string  `toml:"graph_base_url"`
	GraphVersion  string  `toml:"graph_version"`
	AccessToken   string  `toml:"access_token"`
	PhoneNumberID string  `toml:"phone_number_id"`
	VerifyToken   string  `toml:"verify_token"`
	AppSecret     string  `toml:"app_secret"`
	Timeout       string  `toml:"timeout"`
	SendRate      float64 `toml:"send_rate"`
	SendBurst     int     `toml:"send_burst"`
}

// InboxConfig holds ticket window and live stream settings.
type InboxConfig struct {
	WindowHours      int  `toml:"window_hours"`
	PublishInbound   bool `toml:"publish_inbound"`
	KeepAliveSeconds int  `toml:"keepalive_seconds"`
	StreamBuffer     int  `toml:"stream_buffer"`
	MaxPageSize      int  `toml:"max_page_size"`
	WebhookWorkers   int  `toml:"webhook_workers"`
}

// MediaConfig holds where uploaded voice attachments live and the URL prefix serving them.
// PublicBaseURL turns relative attachment paths into links the provider can fetch.
type MediaConfig struct {
	UploadsDir    string `toml:"uploads_dir"`
	URLPrefix     string `toml:"url_prefix"`
	PublicBaseURL string `toml:"public_base_url"`
}

// TelemetryConfig toggles OpenTelemetry metrics and selects the exporter (stdout or otlp).
type TelemetryConfig struct {
	Enabled  bool   `toml:"enabled"`
	Exporter string `toml:"exporter"`
	Endpoint string `toml:"endpoint"`
}

// Default returns the configuration used for every field absent from the TOML file.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		App: AppConfig{
			Env: DefaultAppEnv,
		},
		Admin: AdminConfig{
			Username:    "admin",
			Password:    "change-your-password-here",
			DisplayName: "Administrator",
		},
		Auth: AuthConfig{
			JWTExpiresIn: DefaultJWTExpiresIn,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Storage: StorageConfig{
			Driver: DefaultStorageDriver,
		},
		WhatsApp: WhatsAppConfig{
			GraphBaseURL: DefaultGraphBaseURL,
			GraphVersion: DefaultGraphVersion,
			Timeout:      DefaultWhatsAppTimeout,
			SendRate:     DefaultSendRate,
			SendBurst:    DefaultSendBurst,
		},
		Inbox: InboxConfig{
			WindowHours:      DefaultWindowHours,
			KeepAliveSeconds: DefaultKeepAliveSeconds,
			StreamBuffer:     DefaultStreamBuffer,
			MaxPageSize:      DefaultMaxPageSize,
			WebhookWorkers:   DefaultWebhookWorkers,
		},
		Media: MediaConfig{
			UploadsDir: DefaultUploadsDir,
			URLPrefix:  DefaultUploadsPrefix,
		},
		Telemetry: TelemetryConfig{
			Exporter: DefaultTelemetryExport,
		},
	}
}

// IsDevelopment reports whether the app runs in development mode (webhook signatures are not enforced).
func (c AppConfig) IsDevelopment() bool {
	return c.Env == "development"
}

// Load reads and parses the TOML config file at path and applies default values for missing fields.
// A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
