package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/lexiqai/session-assistant/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		DeepgramModel:              "nova-2",
		TargetLanguage:             "es",
		InputSampleRate:            48000,
		EngineSampleRate:           16000,
		AudioBacklogSize:           3200,
		TermCacheSize:              10,
		TermDedupWindowMs:          3000,
		CircuitBreakerMaxFailures:  5,
		CircuitBreakerResetTimeout: 30,
		RetryMaxAttempts:           3,
		RetryInitialBackoff:        100,
		ReconnectMaxAttempts:       5,
		ReconnectBackoff:           1000,
	}
}

func TestFactory_ValidateRequiresDeepgramKey(t *testing.T) {
	cfg := testConfig()
	f, err := NewFactory(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewFactory failed: %v", err)
	}

	if err := f.Validate(SessionConfig{Language: "en-US"}); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("Expected ErrMissingCredentials, got %v", err)
	}

	cfg.DeepgramAPIKey = "dg-key"
	if err := f.Validate(SessionConfig{Language: "en-US"}); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}
}

func TestFactory_BreakersReportHealthy(t *testing.T) {
	f, err := NewFactory(testConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewFactory failed: %v", err)
	}

	breakers := f.Breakers()
	for _, name := range []string{"deepgram", "translate"} {
		cb, ok := breakers[name]
		if !ok {
			t.Errorf("Expected %s breaker", name)
			continue
		}
		if healthy, err := cb.HealthCheck(context.Background()); !healthy || err != nil {
			t.Errorf("Expected fresh %s breaker healthy, got %v, %v", name, healthy, err)
		}
	}
}
