// Package config loads the service configuration from defaults, an optional
// YAML file and HEALING_* environment variables.
package config

import (
	"time"
)

// Config is the root configuration of the Healing Space backend.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Messaging MessagingConfig `mapstructure:"messaging"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// LoggerConfig controls the slog handler.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// DatabaseConfig selects the SQL backend. DSN is a file path for sqlite and a
// connection URL for postgres.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"            validate:"oneof=sqlite postgres"`
	DSN             string        `mapstructure:"dsn"               validate:"required"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"    validate:"min=1,max=200"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"min=0"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"             validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"     validate:"min=1s"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"    validate:"min=1s"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"     validate:"min=1s"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=1s,max=5m"`
}

// AuthConfig configures token issuance and verification.
type AuthConfig struct {
	JWTSecret        string        `mapstructure:"jwt_secret"         validate:"required,min=16"`
	Issuer           string        `mapstructure:"issuer"             validate:"required"`
	TokenTTL         time.Duration `mapstructure:"token_ttl"          validate:"min=1m"`
	AllowStaffSignup bool          `mapstructure:"allow_staff_signup"`
}

// MessagingConfig bounds message sizes and inbox pagination.
type MessagingConfig struct {
	MaxContentLength int `mapstructure:"max_content_length" validate:"min=1"`
	DefaultPageSize  int `mapstructure:"default_page_size"  validate:"min=1,ltefield=MaxPageSize"`
	MaxPageSize      int `mapstructure:"max_page_size"      validate:"min=1"`
}

// GeminiConfig configures the therapy assistant model. An empty APIKey
// disables AI replies; the assistant then answers with the fallback text.
type GeminiConfig struct {
	APIKey            string  `mapstructure:"api_key"`
	ModelName         string  `mapstructure:"model_name"          validate:"required"`
	Temperature       float32 `mapstructure:"temperature"         validate:"min=0,max=2"`
	MaxOutputTokens   int32   `mapstructure:"max_output_tokens"   validate:"min=1"`
	SystemInstruction string  `mapstructure:"system_instruction"  validate:"required"`
	MaxRetries        int     `mapstructure:"max_retries"         validate:"min=0,max=10"`
	RetryDelaySeconds int     `mapstructure:"retry_delay_seconds" validate:"min=0,max=60"`
	HistorySize       int     `mapstructure:"history_size"        validate:"min=0,max=50"`
}

// TelegramConfig enables crisis alerts to a staff chat. Alerts are off when
// Token is empty.
type TelegramConfig struct {
	Token       string `mapstructure:"token"`
	AlertChatID int64  `mapstructure:"alert_chat_id" validate:"required_with=Token"`
}

// SchedulerConfig maps task names to their schedule.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks" validate:"dive"`
}

// TaskConfig enables a scheduled task with a cron expression (seconds field
// optional).
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule" validate:"required_if=Enabled true"`
}
