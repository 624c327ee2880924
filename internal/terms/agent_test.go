package terms

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/session-assistant/internal/domain"
)

type fakeSink struct {
	mu    sync.Mutex
	terms []domain.TermEnrichment
	errs  []domain.AgentError
}

func (s *fakeSink) Term(t domain.TermEnrichment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terms = append(s.terms, t)
}

func (s *fakeSink) Error(err domain.AgentError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

func (s *fakeSink) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.terms), len(s.errs)
}

// countingEnricher records calls and can be told to fail.
type countingEnricher struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]bool
}

func newCountingEnricher() *countingEnricher {
	return &countingEnricher{calls: map[string]int{}, fail: map[string]bool{}}
}

func (e *countingEnricher) Enrich(ctx context.Context, c Candidate, source, target string) (Enrichment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls[c.Term]++
	if e.fail[c.Term] {
		return Enrichment{}, errors.New("lookup service down")
	}
	return Enrichment{Term: c.Term, Translation: c.Term + "-" + target}, nil
}

func (e *countingEnricher) callCount(term string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[term]
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time           { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestAgent(t *testing.T, g *Glossary, enricher Enricher, sink *fakeSink, cacheSize int, clock *fakeClock) *Agent {
	t.Helper()
	a, err := NewAgent("s1", NewDetector(g), enricher, sink, Options{
		SourceLanguage: "en-US",
		TargetLanguage: "es",
		CacheSize:      cacheSize,
		DedupWindow:    3 * time.Second,
		Now:            clock.Now,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewAgent failed: %v", err)
	}
	return a
}

func final(text string) domain.TranscriptEvent {
	return domain.TranscriptEvent{SessionID: "s1", Text: text, IsFinal: true, Confidence: 0.9, Timestamp: time.Now()}
}

func TestAgent_IgnoresInterim(t *testing.T) {
	sink := &fakeSink{}
	enricher := newCountingEnricher()
	a := newTestAgent(t, DefaultGlossary(), enricher, sink, 10, &fakeClock{now: time.Now()})

	a.ProcessTranscript(context.Background(), domain.TranscriptEvent{Text: "The patient has hypertension", IsFinal: false})
	if n, _ := sink.counts(); n != 0 {
		t.Errorf("Expected no terms for interim event, got %d", n)
	}
	if enricher.callCount("hypertension") != 0 {
		t.Error("Expected no lookup for interim event")
	}
}

func TestAgent_HappyPathUsesGlossary(t *testing.T) {
	sink := &fakeSink{}
	a := newTestAgent(t, DefaultGlossary(), NewGlossaryEnricher(nil), sink, 10, &fakeClock{now: time.Now()})

	a.ProcessTranscript(context.Background(), final("The patient has hypertension"))

	if len(sink.terms) != 1 {
		t.Fatalf("Expected 1 term, got %d", len(sink.terms))
	}
	term := sink.terms[0]
	if term.Original != "hypertension" {
		t.Errorf("Expected 'hypertension', got %q", term.Original)
	}
	if term.Translation != "hipertensión" {
		t.Errorf("Expected glossary translation, got %q", term.Translation)
	}
	if term.Definition == "" || term.Phonetics == "" {
		t.Errorf("Expected definition and phonetics, got %+v", term)
	}
	if term.Context != "The patient has hypertension" || term.SessionID != "s1" {
		t.Errorf("Unexpected context or session: %+v", term)
	}
}

func TestAgent_DuplicateSuppression(t *testing.T) {
	sink := &fakeSink{}
	clock := &fakeClock{now: time.Now()}
	enricher := newCountingEnricher()
	a := newTestAgent(t, DefaultGlossary(), enricher, sink, 10, clock)

	for i := 0; i < 3; i++ {
		a.ProcessTranscript(context.Background(), final("The patient has hypertension"))
		clock.Advance(300 * time.Millisecond)
	}
	if n, _ := sink.counts(); n != 1 {
		t.Errorf("Expected exactly 1 term within the window, got %d", n)
	}

	clock.Advance(3 * time.Second)
	a.ProcessTranscript(context.Background(), final("hypertension again"))
	if n, _ := sink.counts(); n != 2 {
		t.Errorf("Expected term to re-emit after the window, got %d", n)
	}
	if enricher.callCount("hypertension") != 1 {
		t.Errorf("Expected re-emission to be served from cache, got %d lookups", enricher.callCount("hypertension"))
	}
}

func TestAgent_FailureIsRecoverableAndRetriedNaturally(t *testing.T) {
	sink := &fakeSink{}
	enricher := newCountingEnricher()
	enricher.fail["hypertension"] = true
	a := newTestAgent(t, DefaultGlossary(), enricher, sink, 10, &fakeClock{now: time.Now()})

	a.ProcessTranscript(context.Background(), final("hypertension"))
	terms, errs := sink.counts()
	if terms != 0 || errs != 1 {
		t.Fatalf("Expected 0 terms and 1 error, got %d and %d", terms, errs)
	}
	if !sink.errs[0].Recoverable || sink.errs[0].Source != domain.SourceTermLookup {
		t.Errorf("Expected recoverable term_lookup error, got %+v", sink.errs[0])
	}
	if enricher.callCount("hypertension") != 1 {
		t.Errorf("Expected no automatic retry, got %d calls", enricher.callCount("hypertension"))
	}

	// The failed term is neither cached nor deduplicated
	enricher.mu.Lock()
	enricher.fail["hypertension"] = false
	enricher.mu.Unlock()
	a.ProcessTranscript(context.Background(), final("hypertension"))
	if terms, _ := sink.counts(); terms != 1 {
		t.Errorf("Expected next occurrence to succeed, got %d terms", terms)
	}
	if enricher.callCount("hypertension") != 2 {
		t.Errorf("Expected second lookup on cache miss, got %d", enricher.callCount("hypertension"))
	}
}

func TestAgent_CacheBoundAndLRUEviction(t *testing.T) {
	src := "terms:\n"
	for i := 0; i < 10; i++ {
		src += fmt.Sprintf("  - term: term%d\n", i)
	}
	g, err := ParseGlossary([]byte(src))
	if err != nil {
		t.Fatalf("ParseGlossary failed: %v", err)
	}

	sink := &fakeSink{}
	clock := &fakeClock{now: time.Now()}
	a := newTestAgent(t, g, newCountingEnricher(), sink, 3, clock)

	for i := 0; i < 3; i++ {
		a.ProcessTranscript(context.Background(), final(fmt.Sprintf("term%d", i)))
	}
	// Touch term0 so term1 becomes least recently used
	clock.Advance(5 * time.Second)
	a.ProcessTranscript(context.Background(), final("term0"))

	for i := 3; i < 10; i++ {
		a.ProcessTranscript(context.Background(), final(fmt.Sprintf("term%d", i)))
		if a.CacheLen() > 3 {
			t.Fatalf("Expected cache size <= 3, got %d", a.CacheLen())
		}
		if i == 3 {
			if a.Cached("term1") {
				t.Error("Expected least recently used term1 to be evicted first")
			}
			if !a.Cached("term0") {
				t.Error("Expected recently used term0 to survive")
			}
		}
	}
	if a.CacheLen() != 3 {
		t.Errorf("Expected cache full at 3, got %d", a.CacheLen())
	}
	for _, term := range []string{"term7", "term8", "term9"} {
		if !a.Cached(term) {
			t.Errorf("Expected %s to be cached", term)
		}
	}
}

func TestAgent_CloseStopsEmission(t *testing.T) {
	sink := &fakeSink{}
	a := newTestAgent(t, DefaultGlossary(), newCountingEnricher(), sink, 10, &fakeClock{now: time.Now()})
	a.Close()
	a.ProcessTranscript(context.Background(), final("hypertension"))
	if n, _ := sink.counts(); n != 0 {
		t.Errorf("Expected no emission after close, got %d", n)
	}
}
