package observability

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	globalLogger zerolog.Logger
	initOnce     sync.Once
)

// InitLogger initializes the global structured logger. Only the first call has effect.
func InitLogger(level string, pretty bool) {
	initOnce.Do(func() {
		zerolog.SetGlobalLevel(parseLevel(level))

		var out io.Writer = os.Stdout
		if pretty {
			out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		}
		globalLogger = zerolog.New(out).With().Timestamp().Str("service", "session-assistant").Logger()
		log.Logger = globalLogger
	})
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}

// GetLogger returns the global logger
func GetLogger() zerolog.Logger {
	InitLogger("info", false)
	return globalLogger
}

// Component returns a logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return GetLogger().With().Str("component", name).Logger()
}

// ForSession derives a session-scoped logger from base.
func ForSession(base zerolog.Logger, sessionID string) zerolog.Logger {
	return base.With().
		Str("session_id", sessionID).
		Str("correlation_id", NewCorrelationID()).
		Logger()
}

// NewCorrelationID generates a new correlation ID
func NewCorrelationID() string {
	return uuid.New().String()
}
