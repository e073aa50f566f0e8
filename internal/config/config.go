package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth"     validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm"      validate:"required"`
	Queue    QueueConfig    `mapstructure:"queue"    validate:"required"`
	Crypto   CryptoConfig   `mapstructure:"crypto"   validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// AuthConfig contains all authentication and authorization settings for the
// admin API surface.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32"`
}

// LLMConfig contains settings for the agent executor backend.
type LLMConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key" validate:"required"`
	ModelName    string `mapstructure:"model_name"     validate:"required"`
}

// QueueConfig tunes the execution queue state machine and its batch jobs.
type QueueConfig struct {
	// MaxRetries is the per-entry retry budget applied at dispatch time.
	MaxRetries int `mapstructure:"max_retries" validate:"required,gte=1,lte=10"`

	// BatchLimit bounds how many entries a single dispatcher or runner
	// pass will process.
	BatchLimit int `mapstructure:"batch_limit" validate:"required,gte=1,lte=1000"`

	// MinResultLength is the minimum accepted length for a completion result.
	MinResultLength int `mapstructure:"min_result_length" validate:"required,gte=1"`

	// BreakerThreshold is how many quarantines within BreakerWindow trip
	// the circuit breaker for a task.
	BreakerThreshold int `mapstructure:"breaker_threshold" validate:"required,gte=1"`

	// BreakerWindow bounds how far back the breaker counts quarantines.
	BreakerWindow time.Duration `mapstructure:"breaker_window" validate:"required"`

	// RetentionAge is how long terminal entries stay in the active table
	// before the stale sweep removes them.
	RetentionAge time.Duration `mapstructure:"retention_age" validate:"required"`

	// StuckClaimAge is how long an entry may sit in claimed or dispatched
	// before startup reconciliation re-queues it.
	StuckClaimAge time.Duration `mapstructure:"stuck_claim_age" validate:"required"`

	// DispatchSchedule and RunnerSchedule are cron expressions driving the
	// periodic dispatcher and runner passes.
	DispatchSchedule string `mapstructure:"dispatch_schedule" validate:"required"`
	RunnerSchedule   string `mapstructure:"runner_schedule"   validate:"required"`

	// SweepSchedule is the cron expression for the archive sweep.
	SweepSchedule string `mapstructure:"sweep_schedule" validate:"required"`
}

// CryptoConfig contains the field-encryption settings.
type CryptoConfig struct {
	// MasterKey is the base64-encoded 32-byte root key; per-tenant field
	// keys are derived from it.
	MasterKey string `mapstructure:"master_key" validate:"required,min=32"`
}
