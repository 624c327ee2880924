// Package bus carries typed, serialized messages between the orchestrator context and
// the contexts that observe or drive it. Payloads cross the bus as JSON only.
package bus

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lexiqai/session-assistant/internal/domain"
)

var (
	// ErrUnknownMessageType is returned when publishing a type outside the closed set.
	ErrUnknownMessageType = errors.New("unknown message type")
	// ErrMalformedPayload is returned when a payload cannot be serialized or decoded.
	ErrMalformedPayload = errors.New("malformed payload")
)

// Type is the discriminant carried by every message.
type Type string

// Session control intents (presentation shell -> orchestrator).
const (
	TypeStartSession Type = "START_SESSION"
	TypeStopSession  Type = "STOP_SESSION"
	TypeGetStatus    Type = "GET_STATUS"
)

// Agent output events (orchestrator -> presentation shell).
const (
	TypeTranscription   Type = "TRANSCRIPTION"
	TypeMedicalTerm     Type = "MEDICAL_TERM"
	TypeMetricsUpdate   Type = "METRICS_UPDATE"
	TypeSessionComplete Type = "SESSION_COMPLETE"
	TypeSessionFailed   Type = "SESSION_FAILED"
	TypeError           Type = "ERROR"
)

// TypeResponse answers an intent on the gateway.
const TypeResponse Type = "RESPONSE"

// Intents lists the inbound control messages.
var Intents = []Type{TypeStartSession, TypeStopSession, TypeGetStatus}

// Events lists the outbound agent events.
var Events = []Type{
	TypeTranscription,
	TypeMedicalTerm,
	TypeMetricsUpdate,
	TypeSessionComplete,
	TypeSessionFailed,
	TypeError,
}

// Valid reports whether t belongs to the closed set of message types.
func (t Type) Valid() bool {
	switch t {
	case TypeStartSession, TypeStopSession, TypeGetStatus,
		TypeTranscription, TypeMedicalTerm, TypeMetricsUpdate,
		TypeSessionComplete, TypeSessionFailed, TypeError,
		TypeResponse:
		return true
	}
	return false
}

// IsIntent reports whether t is a session control intent.
func (t Type) IsIntent() bool {
	return t == TypeStartSession || t == TypeStopSession || t == TypeGetStatus
}

// Message is the serialized envelope every context sees.
type Message struct {
	Type      Type            `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewMessage serializes payload into an envelope of type t.
func NewMessage(t Type, payload any) (Message, error) {
	if !t.Valid() {
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownMessageType, t)
	}
	msg := Message{Type: t, Timestamp: time.Now().UTC()}
	if payload == nil {
		return msg, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	msg.Payload = raw
	return msg, nil
}

// Decode deserializes the payload of msg into T.
func Decode[T any](msg Message) (T, error) {
	var v T
	if len(msg.Payload) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(msg.Payload, &v); err != nil {
		return v, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, msg.Type, err)
	}
	return v, nil
}

// StartSessionRequest is the START_SESSION payload.
type StartSessionRequest struct {
	Platform string `json:"platform,omitempty"`
	Language string `json:"language,omitempty"`
	URL      string `json:"url,omitempty"`
}

// StartSessionResponse answers START_SESSION.
type StartSessionResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"sessionId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// StopSessionRequest is the STOP_SESSION payload.
type StopSessionRequest struct {
	Notes string `json:"notes,omitempty"`
}

// StopSessionResponse answers STOP_SESSION.
type StopSessionResponse struct {
	Success     bool                      `json:"success"`
	FinalReport *domain.PerformanceReport `json:"finalReport,omitempty"`
	Error       string                    `json:"error,omitempty"`
}

// StatusResponse answers GET_STATUS.
type StatusResponse struct {
	IsActive       bool                `json:"isActive"`
	State          domain.SessionState `json:"state"`
	SessionID      string              `json:"sessionId,omitempty"`
	Platform       domain.Platform     `json:"platform,omitempty"`
	ElapsedSeconds int64               `json:"elapsedSeconds,omitempty"`
}

// TranscriptionPayload is the TRANSCRIPTION event.
type TranscriptionPayload struct {
	Text       string    `json:"text"`
	IsFinal    bool      `json:"isFinal"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// MedicalTermPayload is the MEDICAL_TERM event.
type MedicalTermPayload struct {
	Original    string    `json:"original"`
	Translation string    `json:"translation"`
	Phonetics   string    `json:"phonetics"`
	Definition  string    `json:"definition"`
	Context     string    `json:"context"`
	Timestamp   time.Time `json:"timestamp"`
}

// MetricsUpdatePayload is the METRICS_UPDATE event.
type MetricsUpdatePayload struct {
	Metrics   domain.MetricsSnapshot `json:"metrics"`
	Timestamp time.Time              `json:"timestamp"`
}

// SessionCompletePayload is the SESSION_COMPLETE event.
type SessionCompletePayload struct {
	SessionID         string                   `json:"sessionId"`
	PerformanceReport domain.PerformanceReport `json:"performanceReport"`
	Timestamp         time.Time                `json:"timestamp"`
}

// SessionFailedPayload is the SESSION_FAILED event.
type SessionFailedPayload struct {
	SessionID string    `json:"sessionId"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorPayload is the ERROR event. Source, Message and Recoverable are always set.
type ErrorPayload struct {
	Source      string    `json:"source"`
	Message     string    `json:"message"`
	Recoverable bool      `json:"recoverable"`
	Timestamp   time.Time `json:"timestamp"`
}
