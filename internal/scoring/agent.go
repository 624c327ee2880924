// Package scoring accumulates interpreting-performance statistics from a transcript
// stream and summarizes them as snapshots and a final report.
package scoring

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/lexiqai/session-assistant/internal/domain"
)

const maxTopIssues = 5

// Options tune an Agent.
type Options struct {
	// StartedAt anchors the words-per-minute clock. Defaults to now.
	StartedAt time.Time
}

// counters is everything the agent accumulates. Each transcript updates it in time
// proportional to the event, never to the history.
type counters struct {
	words         int
	finalSegments int
	lowConfidence int
	fillers       int
	hesitations   int
	rules         map[string]int
	lastAt        time.Time
}

// Agent is the scoring agent for one session.
type Agent struct {
	sessionID string
	rules     *RuleSet
	sink      domain.MetricsSink
	startedAt time.Time
	logger    zerolog.Logger

	mu        sync.Mutex
	c         counters
	finalized *domain.PerformanceReport
}

// NewAgent creates a scoring agent applying rules. sink may be nil when snapshots
// are only pulled.
func NewAgent(sessionID string, rules *RuleSet, sink domain.MetricsSink, opts Options, logger zerolog.Logger) *Agent {
	if opts.StartedAt.IsZero() {
		opts.StartedAt = time.Now()
	}
	return &Agent{
		sessionID: sessionID,
		rules:     rules,
		sink:      sink,
		startedAt: opts.StartedAt,
		logger:    logger.With().Str("component", "scoring").Logger(),
		c:         counters{rules: make(map[string]int, len(rules.Rules))},
	}
}

// ProcessTranscript updates the counters from a final event and emits a snapshot.
// Interim events and events after Finalize are ignored.
func (a *Agent) ProcessTranscript(ev domain.TranscriptEvent) {
	if !ev.IsFinal {
		return
	}
	words := tokenize(ev.Text)
	if len(words) == 0 {
		return
	}

	a.mu.Lock()
	if a.finalized != nil {
		a.mu.Unlock()
		return
	}
	a.c.words += len(words)
	a.c.finalSegments++
	if ev.Confidence < a.rules.LowConfidence.Threshold {
		a.c.lowConfidence++
	}
	a.c.fillers += countPhrases(words, a.rules.Fillers.Words)
	a.c.hesitations += countPhrases(words, a.rules.Hesitations.Words)
	for _, r := range a.rules.Rules {
		if n := countPhrases(words, r.Phrases); n > 0 {
			a.c.rules[r.ID] += n
		}
	}
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	if ts.After(a.c.lastAt) {
		a.c.lastAt = ts
	}
	snapshot := a.snapshotLocked(time.Now())
	a.mu.Unlock()

	if a.sink != nil {
		a.sink.Metrics(snapshot)
	}
}

// Snapshot returns the current scores without changing any state.
func (a *Agent) Snapshot() domain.MetricsSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked(time.Now())
}

// Finalize produces the session report. Later calls return the same report and
// later transcripts are not counted.
func (a *Agent) Finalize(ctx context.Context) (domain.PerformanceReport, error) {
	if err := ctx.Err(); err != nil {
		return domain.PerformanceReport{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finalized == nil {
		report := a.reportLocked(time.Now())
		a.finalized = &report
		a.logger.Info().
			Float64("overall_score", report.OverallScore).
			Int("words", report.TotalWords).
			Int("compliance_flags", len(report.ComplianceFlags)).
			Msg("Performance report finalized")
	}
	return copyReport(*a.finalized), nil
}

type scored struct {
	categories map[string]float64
	overall    float64
	issues     []domain.Issue
	wpm        float64
	span       time.Duration
}

func (a *Agent) score() scored {
	rs := a.rules
	c := a.c

	penalties := make(map[string]float64, len(rs.Categories))
	issues := []domain.Issue{}

	if c.words > 0 {
		if c.fillers > 0 && rs.Fillers.Category != "" {
			penalties[rs.Fillers.Category] += rs.Fillers.RatePenalty * percent(c.fillers, c.words)
			issues = append(issues, domain.Issue{RuleID: "filler_words", Category: rs.Fillers.Category,
				Message: "Filler words used", Severity: SeverityWarning, Count: c.fillers})
		}
		if c.hesitations > 0 && rs.Hesitations.Category != "" {
			penalties[rs.Hesitations.Category] += rs.Hesitations.RatePenalty * percent(c.hesitations, c.words)
			issues = append(issues, domain.Issue{RuleID: "hesitation_markers", Category: rs.Hesitations.Category,
				Message: "Hesitation markers used", Severity: SeverityWarning, Count: c.hesitations})
		}
	}
	if c.lowConfidence > 0 && rs.LowConfidence.Category != "" {
		penalties[rs.LowConfidence.Category] += rs.LowConfidence.RatePenalty * percent(c.lowConfidence, c.finalSegments)
		issues = append(issues, domain.Issue{RuleID: "low_confidence", Category: rs.LowConfidence.Category,
			Message: "Unclear speech lowered recognition confidence", Severity: SeverityWarning, Count: c.lowConfidence})
	}

	var span time.Duration
	if !c.lastAt.IsZero() && c.lastAt.After(a.startedAt) {
		span = c.lastAt.Sub(a.startedAt)
	}
	wpm := 0.0
	if span > 0 {
		wpm = float64(c.words) / span.Minutes()
	}
	if rs.Pace.Category != "" && span.Seconds() >= rs.Pace.MinSeconds && c.words > 0 {
		switch {
		case wpm < rs.Pace.MinWPM:
			penalties[rs.Pace.Category] += (rs.Pace.MinWPM - wpm) * rs.Pace.PenaltyPerWPM
			issues = append(issues, domain.Issue{RuleID: "pace_slow", Category: rs.Pace.Category,
				Message: "Speaking pace below the target range", Severity: SeverityWarning, Count: 1})
		case wpm > rs.Pace.MaxWPM:
			penalties[rs.Pace.Category] += (wpm - rs.Pace.MaxWPM) * rs.Pace.PenaltyPerWPM
			issues = append(issues, domain.Issue{RuleID: "pace_fast", Category: rs.Pace.Category,
				Message: "Speaking pace above the target range", Severity: SeverityWarning, Count: 1})
		}
	}

	for _, r := range rs.Rules {
		n := c.rules[r.ID]
		if n == 0 {
			continue
		}
		penalties[r.Category] += r.Penalty * float64(n)
		issues = append(issues, domain.Issue{RuleID: r.ID, Category: r.Category,
			Message: r.Message, Severity: r.Severity, Count: n})
	}

	categories := make(map[string]float64, len(rs.Categories))
	var weighted, totalWeight float64
	for _, cat := range rs.Categories {
		s := clamp(100 - penalties[cat.ID])
		categories[cat.ID] = round1(s)
		weighted += s * cat.Weight
		totalWeight += cat.Weight
	}

	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].Severity != issues[j].Severity {
			return issues[i].Severity == SeverityCritical
		}
		if issues[i].Count != issues[j].Count {
			return issues[i].Count > issues[j].Count
		}
		return issues[i].RuleID < issues[j].RuleID
	})

	return scored{
		categories: categories,
		overall:    round1(weighted / totalWeight),
		issues:     issues,
		wpm:        round1(wpm),
		span:       span,
	}
}

func (a *Agent) snapshotLocked(now time.Time) domain.MetricsSnapshot {
	s := a.score()
	return domain.MetricsSnapshot{
		SessionID:    a.sessionID,
		OverallScore: s.overall,
		Categories:   s.categories,
		Issues:       s.issues,
		AverageWPM:   s.wpm,
		WordCount:    a.c.words,
		Timestamp:    now,
	}
}

func (a *Agent) reportLocked(now time.Time) domain.PerformanceReport {
	s := a.score()

	top := s.issues
	if len(top) > maxTopIssues {
		top = top[:maxTopIssues]
	}
	flags := []domain.ComplianceFlag{}
	for _, r := range a.rules.Rules {
		if r.Severity == SeverityCritical && a.c.rules[r.ID] > 0 {
			flags = append(flags, domain.ComplianceFlag{RuleID: r.ID, Message: r.Message, Count: a.c.rules[r.ID]})
		}
	}

	return domain.PerformanceReport{
		SessionID:       a.sessionID,
		OverallScore:    s.overall,
		Categories:      s.categories,
		TopIssues:       append([]domain.Issue{}, top...),
		ComplianceFlags: flags,
		TotalWords:      a.c.words,
		FinalSegments:   a.c.finalSegments,
		AverageWPM:      s.wpm,
		DurationSeconds: round1(s.span.Seconds()),
		GeneratedAt:     now,
	}
}

func copyReport(r domain.PerformanceReport) domain.PerformanceReport {
	cats := make(map[string]float64, len(r.Categories))
	for k, v := range r.Categories {
		cats[k] = v
	}
	r.Categories = cats
	r.TopIssues = append([]domain.Issue{}, r.TopIssues...)
	r.ComplianceFlags = append([]domain.ComplianceFlag{}, r.ComplianceFlags...)
	return r
}

// countPhrases counts whole-word occurrences of each phrase in words.
func countPhrases(words []string, phrases []string) int {
	n := 0
	for _, p := range phrases {
		pw := strings.Split(p, " ")
		for i := 0; i+len(pw) <= len(words); i++ {
			match := true
			for j, w := range pw {
				if words[i+j] != w {
					match = false
					break
				}
			}
			if match {
				n++
			}
		}
	}
	return n
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
