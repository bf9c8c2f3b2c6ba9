package config

import "time"

// Queue driver identifiers.
const (
	QueueDriverMemory = "memory"
	QueueDriverNATS   = "nats"
)

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Queue    QueueConfig    `mapstructure:"queue"    validate:"required"`
	Worker   WorkerConfig   `mapstructure:"worker"   validate:"required"`
	Intake   IntakeConfig   `mapstructure:"intake"   validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm"      validate:"required"`
}

// ServerConfig contains all HTTP server related configuration settings.
type ServerConfig struct {
	Port           int      `mapstructure:"port"            validate:"required,gt=0,lt=65536"`
	LogLevel       string   `mapstructure:"log_level"       validate:"required,oneof=debug info warn error"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// QueueConfig contains task queue settings shared by both drivers.
// VisibilityTimeout bounds how long an unacknowledged delivery stays
// invisible before it becomes eligible for redelivery; it must exceed
// typical analysis latency or in-flight tasks get double-delivered.
type QueueConfig struct {
	Driver            string        `mapstructure:"driver"             validate:"required,oneof=memory nats"`
	BufferSize        int           `mapstructure:"buffer_size"        validate:"gt=0"`
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout" validate:"gt=0"`

	// NATS settings, required only when Driver is "nats".
	NATSURL     string `mapstructure:"nats_url"     validate:"required_if=Driver nats"`
	NATSStream  string `mapstructure:"nats_stream"  validate:"required_if=Driver nats"`
	NATSSubject string `mapstructure:"nats_subject" validate:"required_if=Driver nats"`
	NATSDurable string `mapstructure:"nats_durable" validate:"required_if=Driver nats"`
}

// WorkerConfig contains worker pool settings.
type WorkerConfig struct {
	// Count is the number of concurrent workers consuming the queue.
	Count int `mapstructure:"count" validate:"required,gt=0"`

	// MaxAttempts bounds execution attempts per task. Exceeding it is a
	// terminal failure, never a silent drop.
	MaxAttempts int `mapstructure:"max_attempts" validate:"required,gt=0"`

	// StuckTaskAge defines how long a task can sit in processing before a
	// sweep resets it to pending for a fresh claim.
	StuckTaskAge time.Duration `mapstructure:"stuck_task_age" validate:"gt=0"`

	// StuckTaskCheckInterval defines how often to run the stuck-task sweep.
	StuckTaskCheckInterval time.Duration `mapstructure:"stuck_task_check_interval" validate:"gt=0"`
}

// IntakeConfig contains document intake settings.
type IntakeConfig struct {
	DataDir        string `mapstructure:"data_dir"         validate:"required"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes" validate:"required,gt=0"`

	// CleanupAfterAnalysis removes the stored document once its task reaches
	// a terminal state.
	CleanupAfterAnalysis bool `mapstructure:"cleanup_after_analysis"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key" validate:"required"`
	ModelName    string `mapstructure:"model_name"     validate:"required"`

	// PromptTemplatePath optionally overrides the built-in analysis prompt.
	PromptTemplatePath string `mapstructure:"prompt_template_path"`

	// MaxRetries and RetryDelaySeconds control in-call retries against the
	// Gemini API for transient errors, independent of task-level retries.
	MaxRetries        int `mapstructure:"max_retries"         validate:"gte=0"`
	RetryDelaySeconds int `mapstructure:"retry_delay_seconds" validate:"gte=1"`
}
