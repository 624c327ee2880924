package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_WithoutCredentials(t *testing.T) {
	// Credentials are checked at session start, not at load time
	os.Unsetenv("DEEPGRAM_API_KEY")
	os.Unsetenv("TRANSLATE_API_KEY")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}
	if cfg.DeepgramAPIKey != "" {
		t.Errorf("Expected empty DeepgramAPIKey, got '%s'", cfg.DeepgramAPIKey)
	}
}

func TestLoad(t *testing.T) {
	os.Setenv("DEEPGRAM_API_KEY", "test-deepgram-key")
	os.Setenv("TRANSLATE_API_KEY", "test-translate-key")
	defer os.Unsetenv("DEEPGRAM_API_KEY")
	defer os.Unsetenv("TRANSLATE_API_KEY")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.DeepgramAPIKey != "test-deepgram-key" {
		t.Errorf("Expected DeepgramAPIKey 'test-deepgram-key', got '%s'", cfg.DeepgramAPIKey)
	}
	if cfg.TranslateAPIKey != "test-translate-key" {
		t.Errorf("Expected TranslateAPIKey 'test-translate-key', got '%s'", cfg.TranslateAPIKey)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected default Port '8080', got '%s'", cfg.Port)
	}
	if cfg.DeepgramModel != "nova-2" {
		t.Errorf("Expected default DeepgramModel 'nova-2', got '%s'", cfg.DeepgramModel)
	}
	if cfg.DefaultLanguage != "en-US" {
		t.Errorf("Expected default DefaultLanguage 'en-US', got '%s'", cfg.DefaultLanguage)
	}
	if cfg.TargetLanguage != "es" {
		t.Errorf("Expected default TargetLanguage 'es', got '%s'", cfg.TargetLanguage)
	}
	if cfg.MetricsThrottle() != 2*time.Second {
		t.Errorf("Expected default metrics throttle 2s, got %v", cfg.MetricsThrottle())
	}
	if cfg.TermDedupWindow() != 3*time.Second {
		t.Errorf("Expected default dedup window 3s, got %v", cfg.TermDedupWindow())
	}
	if cfg.TermCacheSize != 500 {
		t.Errorf("Expected default TermCacheSize 500, got %d", cfg.TermCacheSize)
	}
	if cfg.StopTimeout() != 10*time.Second {
		t.Errorf("Expected default stop timeout 10s, got %v", cfg.StopTimeout())
	}
	if cfg.InputSampleRate != 48000 || cfg.EngineSampleRate != 16000 {
		t.Errorf("Expected sample rates 48000/16000, got %d/%d", cfg.InputSampleRate, cfg.EngineSampleRate)
	}
}

func TestLoad_InvalidTunable(t *testing.T) {
	os.Setenv("METRICS_THROTTLE_MS", "0")
	defer os.Unsetenv("METRICS_THROTTLE_MS")

	if _, err := LoadFromEnv(); err == nil {
		t.Error("Expected error for zero METRICS_THROTTLE_MS")
	}
}

func TestGetEnv(t *testing.T) {
	os.Setenv("TEST_KEY", "test-value")
	defer os.Unsetenv("TEST_KEY")

	value := GetEnv("TEST_KEY", "default")
	if value != "test-value" {
		t.Errorf("Expected 'test-value', got '%s'", value)
	}

	value = GetEnv("NON_EXISTENT_KEY", "default")
	if value != "default" {
		t.Errorf("Expected 'default', got '%s'", value)
	}
}

func TestConfig_ResilienceDefaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	if cfg.CircuitBreakerMaxFailures != 5 {
		t.Errorf("Expected default CircuitBreakerMaxFailures 5, got %d", cfg.CircuitBreakerMaxFailures)
	}
	if cfg.CircuitBreakerResetTimeout != 30 {
		t.Errorf("Expected default CircuitBreakerResetTimeout 30, got %d", cfg.CircuitBreakerResetTimeout)
	}
	if cfg.RetryMaxAttempts != 3 {
		t.Errorf("Expected default RetryMaxAttempts 3, got %d", cfg.RetryMaxAttempts)
	}
	if cfg.ReconnectMaxAttempts != 5 {
		t.Errorf("Expected default ReconnectMaxAttempts 5, got %d", cfg.ReconnectMaxAttempts)
	}
	if cfg.ReconnectBackoff != 1000 {
		t.Errorf("Expected default ReconnectBackoff 1000, got %d", cfg.ReconnectBackoff)
	}
}

func TestConfig_ObservabilityDefaults(t *testing.T) {
	os.Unsetenv("LOG_LEVEL")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("Expected default LogLevel 'info', got '%s'", cfg.LogLevel)
	}
	if cfg.LogPretty {
		t.Error("Expected default LogPretty false, got true")
	}
	if !cfg.MetricsEnabled {
		t.Error("Expected default MetricsEnabled true, got false")
	}
}
