package orchestrator

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/session-assistant/internal/config"
	"github.com/lexiqai/session-assistant/internal/domain"
	"github.com/lexiqai/session-assistant/internal/resilience"
	"github.com/lexiqai/session-assistant/internal/scoring"
	"github.com/lexiqai/session-assistant/internal/terms"
	"github.com/lexiqai/session-assistant/internal/transcription"
)

// Factory builds the production agents: Deepgram transcription, glossary-backed term
// lookup with Cloud Translation, and rule-based scoring.
type Factory struct {
	cfg      *config.Config
	engine   transcription.Engine
	detector *terms.Detector
	enricher terms.Enricher
	rules    *scoring.RuleSet
	breakers map[string]*resilience.CircuitBreaker
	logger   zerolog.Logger
}

// NewFactory loads the glossary and rule set and prepares the shared clients. The
// circuit breakers are shared by every session so a dead upstream stays open across
// restarts.
func NewFactory(cfg *config.Config, logger zerolog.Logger) (*Factory, error) {
	glossary, err := terms.LoadGlossary(cfg.GlossaryPath)
	if err != nil {
		return nil, fmt.Errorf("load glossary: %w", err)
	}
	rules, err := scoring.LoadRules(cfg.ScoringRulesPath)
	if err != nil {
		return nil, fmt.Errorf("load scoring rules: %w", err)
	}

	resetTimeout := time.Duration(cfg.CircuitBreakerResetTimeout) * time.Second
	breakers := map[string]*resilience.CircuitBreaker{
		"deepgram":  resilience.NewCircuitBreaker("deepgram", cfg.CircuitBreakerMaxFailures, resetTimeout),
		"translate": resilience.NewCircuitBreaker("translate", cfg.CircuitBreakerMaxFailures, resetTimeout),
	}
	engine := transcription.NewDeepgramEngine(transcription.DeepgramConfig{
		APIKey:     cfg.DeepgramAPIKey,
		Model:      cfg.DeepgramModel,
		SampleRate: cfg.EngineSampleRate,
	}, breakers["deepgram"], logger)

	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = cfg.RetryMaxAttempts
	retry.InitialBackoff = time.Duration(cfg.RetryInitialBackoff) * time.Millisecond
	translator := terms.NewGoogleTranslator(cfg.TranslateAPIKey, cfg.TranslateURL,
		breakers["translate"], retry, logger)

	logger.Info().
		Int("glossary_terms", glossary.Len()).
		Str("rule_set", rules.Name).
		Bool("translation_enabled", cfg.TranslateAPIKey != "").
		Msg("Agent factory ready")

	return &Factory{
		cfg:      cfg,
		engine:   engine,
		detector: terms.NewDetector(glossary),
		enricher: terms.NewGlossaryEnricher(translator),
		rules:    rules,
		breakers: breakers,
		logger:   logger,
	}, nil
}

// Breakers returns the shared circuit breakers keyed by upstream name.
func (f *Factory) Breakers() map[string]*resilience.CircuitBreaker {
	return f.breakers
}

// Validate checks that every agent can be configured for cfg.
func (f *Factory) Validate(cfg SessionConfig) error {
	if f.cfg.DeepgramAPIKey == "" {
		return fmt.Errorf("%w: DEEPGRAM_API_KEY is not set", ErrMissingCredentials)
	}
	return nil
}

func (f *Factory) NewTranscriber(sessionID string, sink domain.TranscriptSink) (Transcriber, error) {
	reconnect := resilience.DefaultReconnectConfig()
	reconnect.MaxAttempts = f.cfg.ReconnectMaxAttempts
	reconnect.Backoff = time.Duration(f.cfg.ReconnectBackoff) * time.Millisecond

	return transcription.NewProducer(sessionID, f.engine, sink, transcription.Options{
		InputSampleRate:  f.cfg.InputSampleRate,
		EngineSampleRate: f.cfg.EngineSampleRate,
		BacklogSize:      f.cfg.AudioBacklogSize,
		SilenceThreshold: f.cfg.BacklogSilenceThreshold,
		Reconnect:        *reconnect,
	}, f.sessionLogger(sessionID)), nil
}

func (f *Factory) NewTermAgent(sessionID, language string, sink domain.TermSink) (TermAgent, error) {
	return terms.NewAgent(sessionID, f.detector, f.enricher, sink, terms.Options{
		SourceLanguage: language,
		TargetLanguage: f.cfg.TargetLanguage,
		CacheSize:      f.cfg.TermCacheSize,
		DedupWindow:    f.cfg.TermDedupWindow(),
	}, f.sessionLogger(sessionID))
}

func (f *Factory) NewScoringAgent(sessionID string, startedAt time.Time, sink domain.MetricsSink) (ScoringAgent, error) {
	return scoring.NewAgent(sessionID, f.rules, sink, scoring.Options{StartedAt: startedAt}, f.sessionLogger(sessionID)), nil
}

func (f *Factory) sessionLogger(sessionID string) zerolog.Logger {
	return f.logger.With().Str("session_id", sessionID).Logger()
}
