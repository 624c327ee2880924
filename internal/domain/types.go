// Package domain holds the records exchanged between the orchestrator, its agents
// and the presentation shell.
package domain

import (
	"time"
)

// SessionState models the monitored-call lifecycle.
type SessionState string

const (
	SessionStateIdle     SessionState = "idle"
	SessionStateStarting SessionState = "starting"
	SessionStateActive   SessionState = "active"
	SessionStateStopping SessionState = "stopping"
	SessionStateStopped  SessionState = "stopped"
	SessionStateFailed   SessionState = "failed"
)

// CanStart reports whether a new session may begin from this state.
// Stopped and failed sessions are fully torn down before they are recorded as such.
func (s SessionState) CanStart() bool {
	return s == SessionStateIdle || s == SessionStateStopped || s == SessionStateFailed
}

// Session is one monitored call. Only the orchestrator writes it.
type Session struct {
	ID        string       `json:"sessionId"`
	Platform  Platform     `json:"platform"`
	Language  string       `json:"language"`
	StartedAt time.Time    `json:"startedAt"`
	StoppedAt time.Time    `json:"stoppedAt,omitempty"`
	State     SessionState `json:"state"`
}

// ElapsedSeconds is measured on the monotonic clock while active and frozen once stopped.
func (s Session) ElapsedSeconds(now time.Time) int64 {
	if s.StartedAt.IsZero() {
		return 0
	}
	end := now
	if !s.StoppedAt.IsZero() {
		end = s.StoppedAt
	}
	return int64(end.Sub(s.StartedAt).Seconds())
}

// TranscriptEvent is one unit of recognized speech. Interim events may be superseded
// by later events for the same utterance; final events are never mutated.
type TranscriptEvent struct {
	SessionID  string    `json:"sessionId"`
	Text       string    `json:"text"`
	IsFinal    bool      `json:"isFinal"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// TermEnrichment is a detected domain term with its lookup results.
type TermEnrichment struct {
	SessionID   string    `json:"sessionId"`
	Original    string    `json:"original"`
	Translation string    `json:"translation"`
	Phonetics   string    `json:"phonetics"`
	Definition  string    `json:"definition"`
	Context     string    `json:"context"`
	Timestamp   time.Time `json:"timestamp"`
}

// Issue is one scoring observation, e.g. a filler word or a protocol violation.
type Issue struct {
	RuleID   string `json:"ruleId"`
	Category string `json:"category"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
	Count    int    `json:"count"`
}

// MetricsSnapshot is a point-in-time rollup of scoring statistics.
type MetricsSnapshot struct {
	SessionID    string             `json:"sessionId"`
	OverallScore float64            `json:"overallScore"`
	Categories   map[string]float64 `json:"categories"`
	Issues       []Issue            `json:"issues"`
	AverageWPM   float64            `json:"averageWPM"`
	WordCount    int                `json:"wordCount"`
	Timestamp    time.Time          `json:"timestamp"`
}

// ComplianceFlag marks a critical rule that was violated at least once.
type ComplianceFlag struct {
	RuleID  string `json:"ruleId"`
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// PerformanceReport is produced once per session at stop.
type PerformanceReport struct {
	SessionID       string             `json:"sessionId"`
	OverallScore    float64            `json:"overallScore"`
	Categories      map[string]float64 `json:"categories"`
	TopIssues       []Issue            `json:"topIssues"`
	ComplianceFlags []ComplianceFlag   `json:"complianceFlags"`
	TotalWords      int                `json:"totalWords"`
	FinalSegments   int                `json:"finalSegments"`
	AverageWPM      float64            `json:"averageWPM"`
	DurationSeconds float64            `json:"durationSeconds"`
	Partial         bool               `json:"partial"`
	GeneratedAt     time.Time          `json:"generatedAt"`
}

// PartialReport builds a report from the last snapshot the orchestrator saw, used when
// the scoring agent cannot finalize in time.
func PartialReport(sessionID string, last *MetricsSnapshot, now time.Time) PerformanceReport {
	report := PerformanceReport{
		SessionID:   sessionID,
		Categories:  map[string]float64{},
		Partial:     true,
		GeneratedAt: now,
	}
	if last == nil {
		return report
	}
	report.OverallScore = last.OverallScore
	for k, v := range last.Categories {
		report.Categories[k] = v
	}
	report.TopIssues = append([]Issue(nil), last.Issues...)
	report.TotalWords = last.WordCount
	report.AverageWPM = last.AverageWPM
	return report
}

// SessionRecord is written once per session at stop.
type SessionRecord struct {
	SessionID          string            `json:"sessionId"`
	StartedAt          time.Time         `json:"startedAt"`
	StoppedAt          time.Time         `json:"stoppedAt"`
	Platform           Platform          `json:"platform"`
	Language           string            `json:"language"`
	DurationSeconds    float64           `json:"durationSeconds"`
	PerformanceReport  PerformanceReport `json:"performanceReport"`
	TranscriptionCount int               `json:"transcriptionCount"`
	TermsCount         int               `json:"termsCount"`
	Notes              string            `json:"notes,omitempty"`
}
