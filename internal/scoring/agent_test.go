package scoring

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/session-assistant/internal/domain"
)

type fakeSink struct {
	mu        sync.Mutex
	snapshots []domain.MetricsSnapshot
}

func (s *fakeSink) Metrics(m domain.MetricsSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, m)
}

func (s *fakeSink) Error(domain.AgentError) {}

func finalAt(text string, at time.Time) domain.TranscriptEvent {
	return domain.TranscriptEvent{SessionID: "s1", Text: text, IsFinal: true, Confidence: 0.95, Timestamp: at}
}

func TestAgent_CountsFinalsOnly(t *testing.T) {
	start := time.Now()
	sink := &fakeSink{}
	a := NewAgent("s1", DefaultRules(), sink, Options{StartedAt: start}, zerolog.Nop())

	a.ProcessTranscript(domain.TranscriptEvent{Text: "um um um", IsFinal: false})
	a.ProcessTranscript(finalAt("The patient has hypertension", start.Add(2*time.Second)))

	snap := a.Snapshot()
	if snap.WordCount != 4 {
		t.Errorf("Expected 4 words, got %d", snap.WordCount)
	}
	if len(sink.snapshots) != 1 {
		t.Errorf("Expected one emitted snapshot, got %d", len(sink.snapshots))
	}
	if snap.OverallScore != 100 {
		t.Errorf("Expected perfect score for clean speech, got %v", snap.OverallScore)
	}
	if len(snap.Issues) != 0 {
		t.Errorf("Expected no issues, got %+v", snap.Issues)
	}
}

func TestAgent_DetectsMarkersAndViolations(t *testing.T) {
	start := time.Now()
	a := NewAgent("s1", DefaultRules(), nil, Options{StartedAt: start}, zerolog.Nop())

	a.ProcessTranscript(finalAt("Um um he says the pain is worse", start.Add(time.Second)))
	a.ProcessTranscript(finalAt("In my opinion you should rest", start.Add(2*time.Second)))

	snap := a.Snapshot()
	counts := map[string]int{}
	for _, is := range snap.Issues {
		counts[is.RuleID] = is.Count
	}
	if counts["filler_words"] != 2 {
		t.Errorf("Expected 2 fillers, got %d", counts["filler_words"])
	}
	if counts["third_person"] != 1 || counts["added_commentary"] != 1 {
		t.Errorf("Expected one third_person and one added_commentary, got %+v", counts)
	}
	if snap.Issues[0].Severity != SeverityCritical {
		t.Errorf("Expected critical issues first, got %+v", snap.Issues[0])
	}
	if snap.Categories["professionalism"] >= 100 || snap.Categories["fluency"] >= 100 {
		t.Errorf("Expected penalties applied, got %+v", snap.Categories)
	}
	if snap.OverallScore >= 100 {
		t.Errorf("Expected overall score below 100, got %v", snap.OverallScore)
	}
}

func TestAgent_SnapshotDoesNotMutate(t *testing.T) {
	start := time.Now()
	a := NewAgent("s1", DefaultRules(), nil, Options{StartedAt: start}, zerolog.Nop())
	a.ProcessTranscript(finalAt("um he says hello", start.Add(time.Second)))

	first := a.Snapshot()
	second := a.Snapshot()
	first.Timestamp, second.Timestamp = time.Time{}, time.Time{}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Expected repeated snapshots to match:\n%+v\n%+v", first, second)
	}
}

func TestAgent_FinalizeIdempotent(t *testing.T) {
	start := time.Now()
	a := NewAgent("s1", DefaultRules(), nil, Options{StartedAt: start}, zerolog.Nop())
	a.ProcessTranscript(finalAt("uh she says the dose is gonna change", start.Add(20*time.Second)))

	first, err := a.Finalize(context.Background())
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	// Late events must not be counted
	a.ProcessTranscript(finalAt("um um um he says", start.Add(30*time.Second)))
	second, err := a.Finalize(context.Background())
	if err != nil {
		t.Fatalf("second Finalize failed: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("Expected identical reports:\n%+v\n%+v", first, second)
	}
	if first.TotalWords != 8 || first.FinalSegments != 1 {
		t.Errorf("Expected 8 words in 1 segment, got %d in %d", first.TotalWords, first.FinalSegments)
	}
	if len(first.ComplianceFlags) != 1 || first.ComplianceFlags[0].RuleID != "third_person" {
		t.Errorf("Expected third_person compliance flag, got %+v", first.ComplianceFlags)
	}

	// Mutating a returned report must not leak into the cached one
	first.Categories["pace"] = -1
	third, _ := a.Finalize(context.Background())
	if third.Categories["pace"] == -1 {
		t.Error("Expected Finalize to return an independent copy")
	}
}

func TestAgent_FinalizeRespectsContext(t *testing.T) {
	a := NewAgent("s1", DefaultRules(), nil, Options{}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := a.Finalize(ctx); err == nil {
		t.Error("Expected error for cancelled context")
	}
}

func TestAgent_PaceScoring(t *testing.T) {
	start := time.Now()
	a := NewAgent("s1", DefaultRules(), nil, Options{StartedAt: start}, zerolog.Nop())

	// 20 words over 60 seconds is 20 WPM, well under the minimum
	a.ProcessTranscript(finalAt("one two three four five six seven eight nine ten", start.Add(30*time.Second)))
	a.ProcessTranscript(finalAt("one two three four five six seven eight nine ten", start.Add(60*time.Second)))

	snap := a.Snapshot()
	if snap.AverageWPM != 20 {
		t.Errorf("Expected 20 WPM, got %v", snap.AverageWPM)
	}
	if snap.Categories["pace"] != 20 {
		t.Errorf("Expected pace score 20 (100 - 80), got %v", snap.Categories["pace"])
	}
}

func TestAgent_RuleSetSwap(t *testing.T) {
	strict, err := ParseRules([]byte(`
categories:
  - id: fluency
    weight: 1
fillers:
  category: fluency
  ratePenalty: 10
  words: [um]
`))
	if err != nil {
		t.Fatalf("ParseRules failed: %v", err)
	}
	lenient, err := ParseRules([]byte(`
categories:
  - id: fluency
    weight: 1
fillers:
  category: fluency
  ratePenalty: 1
  words: [um]
`))
	if err != nil {
		t.Fatalf("ParseRules failed: %v", err)
	}

	start := time.Now()
	ev := finalAt("um I understand the question completely now friend", start.Add(time.Second))
	s := NewAgent("s1", strict, nil, Options{StartedAt: start}, zerolog.Nop())
	l := NewAgent("s1", lenient, nil, Options{StartedAt: start}, zerolog.Nop())
	s.ProcessTranscript(ev)
	l.ProcessTranscript(ev)

	// 1 filler in 8 words is 12.5%
	if got := s.Snapshot().OverallScore; got != 0 {
		t.Errorf("Expected strict score 0 (clamped), got %v", got)
	}
	if got := l.Snapshot().OverallScore; got != 87.5 {
		t.Errorf("Expected lenient score 87.5, got %v", got)
	}
}

func TestCountPhrases(t *testing.T) {
	words := tokenize("Um, um... you know, he SAYS you know")
	if n := countPhrases(words, []string{"um"}); n != 2 {
		t.Errorf("Expected 2 'um', got %d", n)
	}
	if n := countPhrases(words, []string{"you know"}); n != 2 {
		t.Errorf("Expected 2 'you know', got %d", n)
	}
	if n := countPhrases(words, []string{"he says", "she says"}); n != 1 {
		t.Errorf("Expected 1 reporting phrase, got %d", n)
	}
	if n := countPhrases(tokenize("umbrella"), []string{"um"}); n != 0 {
		t.Errorf("Expected whole-word matching, got %d", n)
	}
}
