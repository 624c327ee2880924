// Package transcription turns a live audio stream into ordered TranscriptEvents.
package transcription

import (
	"context"
	"errors"
)

var (
	// ErrPermissionDenied means the engine or the capture source refused access.
	// Reconnecting cannot fix it.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrEngineUnavailable means the recognition service could not be reached.
	ErrEngineUnavailable = errors.New("recognition engine unavailable")
	// ErrAlreadyRunning is returned by a second Start on the same producer.
	ErrAlreadyRunning = errors.New("transcription already running")
	// ErrNotRunning is returned when audio arrives before Start or after Stop.
	ErrNotRunning = errors.New("transcription not running")
	// ErrStreamLost is reported when an open stream ends without being closed.
	ErrStreamLost = errors.New("recognition stream lost")
)

// Result is one recognition hypothesis as reported by an engine.
type Result struct {
	Text       string
	IsFinal    bool
	Confidence float64
}

// Stream is one open recognition connection.
type Stream interface {
	// Results delivers hypotheses in the order the engine produced them.
	Results() <-chan Result
	// Done is closed when the stream ends for any reason.
	Done() <-chan struct{}
	// Err explains why Done was closed. Nil after Close.
	Err() error
	SendAudio(chunk []byte) error
	Close() error
}

// Engine opens recognition streams. Open returns once the engine has accepted the
// connection and audio may be sent.
type Engine interface {
	Open(ctx context.Context, language string) (Stream, error)
}
