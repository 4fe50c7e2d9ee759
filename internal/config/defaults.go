package config

import "time"

// Default values for configuration
const (
	DefaultLogLevel = "info"
	DefaultLogJSON  = true

	DefaultDBDriver          = "sqlite"
	DefaultDBDSN             = "healingspace.db"
	DefaultDBMaxOpenConns    = 10
	DefaultDBConnMaxLifetime = 5 * time.Minute

	DefaultServerAddr            = ":8080"
	DefaultServerReadTimeout     = 15 * time.Second
	DefaultServerWriteTimeout    = 60 * time.Second // therapy replies wait on the model
	DefaultServerIdleTimeout     = 2 * time.Minute
	DefaultServerShutdownTimeout = 10 * time.Second

	DefaultAuthIssuer   = "healing-space"
	DefaultAuthTokenTTL = 12 * time.Hour

	DefaultMaxContentLength = 5000
	DefaultPageSize         = 20
	DefaultMaxPageSize      = 100

	DefaultGeminiModel             = "gemini-2.0-flash"
	DefaultGeminiTemperature       = 0.8
	DefaultGeminiMaxOutputTokens   = 300
	DefaultGeminiMaxRetries        = 2
	DefaultGeminiRetryDelaySeconds = 2
	DefaultGeminiHistorySize       = 10
	DefaultGeminiInstruction       = "You are a compassionate, supportive therapy assistant. " +
		"Listen carefully, reflect feelings back, and suggest evidence-based coping techniques from CBT and DBT. " +
		"Keep replies short and warm. You are not a replacement for a clinician; " +
		"if the user mentions self-harm or danger, encourage them to contact emergency services or a crisis line."
)

// DefaultTasks enables both maintenance jobs.
var DefaultTasks = map[string]TaskConfig{
	"deliver_scheduled": {Enabled: true, Schedule: "0 * * * * *"},
	"sql_maintenance":   {Enabled: true, Schedule: "0 30 3 * * *"},
}
