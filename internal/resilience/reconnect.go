package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lexiqai/session-assistant/internal/observability"
)

// ErrReconnectExhausted is returned when every reconnect attempt failed.
var ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

// ReconnectConfig holds configuration for reconnection logic
type ReconnectConfig struct {
	MaxAttempts int           // Maximum number of reconnection attempts
	Backoff     time.Duration // Backoff before the first attempt
	Multiplier  float64       // Backoff multiplier for exponential backoff
	MaxBackoff  time.Duration // Maximum backoff duration

	// IsPermanent stops the loop early for errors another attempt cannot fix.
	IsPermanent func(error) bool
	// OnAttempt observes every attempt (1-based) and its result.
	OnAttempt func(attempt int, err error)
}

// DefaultReconnectConfig returns a default reconnection configuration
func DefaultReconnectConfig() *ReconnectConfig {
	return &ReconnectConfig{
		MaxAttempts: 5,
		Backoff:     1 * time.Second,
		Multiplier:  2.0,
		MaxBackoff:  30 * time.Second,
	}
}

// ReconnectFunc is a function that attempts to reconnect
type ReconnectFunc func(ctx context.Context) error

// Reconnect waits the current backoff, then calls fn, up to MaxAttempts times.
// The wait comes first because the caller has just observed a drop.
func Reconnect(ctx context.Context, fn ReconnectFunc, config *ReconnectConfig) error {
	if config == nil {
		config = DefaultReconnectConfig()
	}
	logger := observability.Component("reconnect")

	backoff := config.Backoff
	var lastErr error
	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		err := fn(ctx)
		observability.RecordReconnectAttempt(err == nil)
		if config.OnAttempt != nil {
			config.OnAttempt(attempt, err)
		}
		if err == nil {
			logger.Info().Int("attempt", attempt).Msg("Reconnection successful")
			return nil
		}
		lastErr = err

		if config.IsPermanent != nil && config.IsPermanent(err) {
			logger.Warn().Err(err).Int("attempt", attempt).Msg("Reconnection aborted, permanent error")
			return err
		}

		logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", config.MaxAttempts).
			Msg("Reconnection attempt failed")

		backoff = time.Duration(float64(backoff) * config.Multiplier)
		if config.MaxBackoff > 0 && backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}

	return fmt.Errorf("%w after %d attempts: %v", ErrReconnectExhausted, config.MaxAttempts, lastErr)
}
