package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the session assistant service
type Config struct {
	// Server configuration
	Port           string `envconfig:"PORT" default:"8080"`
	GRPCHealthPort string `envconfig:"GRPC_HEALTH_PORT" default:"50051"`

	// Deepgram streaming recognition. The key is checked when a session starts,
	// not at load time, so the service can boot and report MissingCredentials.
	DeepgramAPIKey string `envconfig:"DEEPGRAM_API_KEY"`
	DeepgramModel  string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`

	// Default recognition language when START_SESSION omits one
	DefaultLanguage string `envconfig:"DEFAULT_LANGUAGE" default:"en-US"`

	// Cloud Translation (term enrichment)
	TranslateAPIKey string `envconfig:"TRANSLATE_API_KEY"`
	TranslateURL    string `envconfig:"TRANSLATE_URL" default:"https://translation.googleapis.com/language/translate/v2"`
	TargetLanguage  string `envconfig:"TARGET_LANGUAGE" default:"es"`
	GlossaryPath    string `envconfig:"GLOSSARY_PATH" default:""` // empty = embedded glossary

	// Audio ingestion
	InputSampleRate  int `envconfig:"INPUT_SAMPLE_RATE" default:"48000"`  // rate of PCM16 frames from the capture context
	EngineSampleRate int `envconfig:"ENGINE_SAMPLE_RATE" default:"16000"` // rate sent to the recognition engine
	AudioBacklogSize int `envconfig:"AUDIO_BACKLOG_SIZE" default:"320000"` // bytes retained while reconnecting

	BacklogSilenceThreshold float64 `envconfig:"BACKLOG_SILENCE_THRESHOLD" default:"0"` // RMS below which reconnect backlog is dropped

	// Orchestration tunables
	MetricsThrottleMs int `envconfig:"METRICS_THROTTLE_MS" default:"2000"` // last-value-wins window for METRICS_UPDATE
	TermDedupWindowMs int `envconfig:"TERM_DEDUP_WINDOW_MS" default:"3000"` // suppress repeated terms inside this window
	TermCacheSize     int `envconfig:"TERM_CACHE_SIZE" default:"500"`
	StopTimeoutMs     int `envconfig:"STOP_TIMEOUT_MS" default:"10000"` // upper bound on stop()
	BusQueueSize      int `envconfig:"BUS_QUEUE_SIZE" default:"256"`
	AgentQueueSize    int `envconfig:"AGENT_QUEUE_SIZE" default:"64"`

	// Scoring
	ScoringRulesPath string `envconfig:"SCORING_RULES_PATH" default:""` // empty = embedded rule set

	// Persistence
	DatabasePath string `envconfig:"DATABASE_PATH" default:"assistant.db"`

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"` // milliseconds
	ReconnectMaxAttempts       int `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"5"`
	ReconnectBackoff           int `envconfig:"RECONNECT_BACKOFF" default:"1000"` // milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values that would make the orchestrator misbehave.
func (c *Config) Validate() error {
	positive := []struct {
		name  string
		value int
	}{
		{"METRICS_THROTTLE_MS", c.MetricsThrottleMs},
		{"TERM_DEDUP_WINDOW_MS", c.TermDedupWindowMs},
		{"TERM_CACHE_SIZE", c.TermCacheSize},
		{"STOP_TIMEOUT_MS", c.StopTimeoutMs},
		{"BUS_QUEUE_SIZE", c.BusQueueSize},
		{"AGENT_QUEUE_SIZE", c.AgentQueueSize},
		{"INPUT_SAMPLE_RATE", c.InputSampleRate},
		{"ENGINE_SAMPLE_RATE", c.EngineSampleRate},
		{"RECONNECT_MAX_ATTEMPTS", c.ReconnectMaxAttempts},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", p.name, p.value)
		}
	}
	return nil
}

// MetricsThrottle returns the METRICS_UPDATE window.
func (c *Config) MetricsThrottle() time.Duration {
	return time.Duration(c.MetricsThrottleMs) * time.Millisecond
}

// TermDedupWindow returns the duplicate-term suppression window.
func (c *Config) TermDedupWindow() time.Duration {
	return time.Duration(c.TermDedupWindowMs) * time.Millisecond
}

// StopTimeout returns the upper bound on a session stop.
func (c *Config) StopTimeout() time.Duration {
	return time.Duration(c.StopTimeoutMs) * time.Millisecond
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
