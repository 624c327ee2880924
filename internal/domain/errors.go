package domain

import (
	"time"
)

// AgentSource names the component an AgentError came from.
type AgentSource string

const (
	SourceTranscription AgentSource = "transcription"
	SourceTermLookup    AgentSource = "term_lookup"
	SourceScoring       AgentSource = "scoring"
	SourceOrchestrator  AgentSource = "orchestrator"
)

// AgentError is a structured failure signal. Agents create it; only the orchestrator
// decides what it means for the session.
type AgentError struct {
	Source      AgentSource `json:"source"`
	Message     string      `json:"message"`
	Recoverable bool        `json:"recoverable"`
	Timestamp   time.Time   `json:"timestamp"`
	Err         error       `json:"-"`
}

// NewAgentError wraps err as an AgentError stamped with the current time.
func NewAgentError(source AgentSource, err error, recoverable bool) AgentError {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return AgentError{
		Source:      source,
		Message:     msg,
		Recoverable: recoverable,
		Timestamp:   time.Now(),
		Err:         err,
	}
}

func (e AgentError) Error() string {
	return string(e.Source) + ": " + e.Message
}

func (e AgentError) Unwrap() error {
	return e.Err
}

// Normalized fills the fields every ERROR event must carry.
func (e AgentError) Normalized() AgentError {
	if e.Source == "" {
		e.Source = SourceOrchestrator
	}
	if e.Message == "" {
		if e.Err != nil {
			e.Message = e.Err.Error()
		} else {
			e.Message = "unknown error"
		}
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	return e
}
