// Package terms detects domain terms in final transcripts and enriches them with a
// translation, pronunciation and definition.
package terms

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/lexiqai/session-assistant/internal/domain"
	"github.com/lexiqai/session-assistant/internal/observability"
)

// Options tune an Agent.
type Options struct {
	SourceLanguage string
	TargetLanguage string
	CacheSize      int
	DedupWindow    time.Duration
	LookupTimeout  time.Duration
	// Now is the clock used for the dedup window. Defaults to time.Now.
	Now func() time.Time
}

type cacheKey struct {
	term   string
	target string
}

// Agent is the term-lookup agent for one session. Calls to ProcessTranscript are
// expected from a single goroutine; the cache and dedup window are private to it.
type Agent struct {
	sessionID string
	detector  *Detector
	enricher  Enricher
	sink      domain.TermSink
	opts      Options
	logger    zerolog.Logger

	cache *lru.Cache[cacheKey, Enrichment]
	// recent holds the last emission time per term
	recent *lru.Cache[string, time.Time]

	mu     sync.Mutex
	closed bool
}

// NewAgent creates a term-lookup agent.
func NewAgent(sessionID string, detector *Detector, enricher Enricher, sink domain.TermSink, opts Options, logger zerolog.Logger) (*Agent, error) {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 500
	}
	if opts.DedupWindow <= 0 {
		opts.DedupWindow = 3 * time.Second
	}
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	cache, err := lru.New[cacheKey, Enrichment](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create term cache: %w", err)
	}
	recent, err := lru.New[string, time.Time](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create dedup window: %w", err)
	}

	return &Agent{
		sessionID: sessionID,
		detector:  detector,
		enricher:  enricher,
		sink:      sink,
		opts:      opts,
		logger:    logger.With().Str("component", "term_lookup").Logger(),
		cache:     cache,
		recent:    recent,
	}, nil
}

// ProcessTranscript detects and enriches terms in a final event. Interim events are ignored.
func (a *Agent) ProcessTranscript(ctx context.Context, ev domain.TranscriptEvent) {
	if !ev.IsFinal || a.isClosed() {
		return
	}

	for _, c := range a.detector.Detect(ev.Text) {
		if ctx.Err() != nil || a.isClosed() {
			return
		}
		a.handle(ctx, c)
	}
}

func (a *Agent) handle(ctx context.Context, c Candidate) {
	now := a.opts.Now()
	if last, ok := a.recent.Get(c.Term); ok && now.Sub(last) < a.opts.DedupWindow {
		observability.RecordTermLookup("duplicate")
		return
	}

	key := cacheKey{term: c.Term, target: a.opts.TargetLanguage}
	enrichment, ok := a.cache.Get(key)
	if ok {
		observability.RecordTermLookup("cache_hit")
	} else {
		start := time.Now()
		lookupCtx, cancel := context.WithTimeout(ctx, a.opts.LookupTimeout)
		var err error
		enrichment, err = a.enricher.Enrich(lookupCtx, c, a.opts.SourceLanguage, a.opts.TargetLanguage)
		cancel()
		observability.ObserveTermLookupLatency(time.Since(start))

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			observability.RecordTermLookup("failure")
			a.logger.Warn().Err(err).Str("term", c.Term).Msg("Term enrichment failed")
			a.sink.Error(domain.NewAgentError(domain.SourceTermLookup,
				fmt.Errorf("lookup %q failed: %w", c.Term, err), true))
			return
		}
		observability.RecordTermLookup("cache_miss")
		a.cache.Add(key, enrichment)
	}

	if a.isClosed() {
		return
	}
	a.recent.Add(c.Term, now)
	a.sink.Term(domain.TermEnrichment{
		SessionID:   a.sessionID,
		Original:    enrichment.Term,
		Translation: enrichment.Translation,
		Phonetics:   enrichment.Phonetics,
		Definition:  enrichment.Definition,
		Context:     c.Context,
		Timestamp:   time.Now(),
	})
}

// Close stops further emissions. Lookups in flight finish but are not reported.
func (a *Agent) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
}

func (a *Agent) isClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

// CacheLen returns the number of cached enrichments.
func (a *Agent) CacheLen() int {
	return a.cache.Len()
}

// Cached reports whether term is cached for the agent's target language without
// touching recency.
func (a *Agent) Cached(term string) bool {
	return a.cache.Contains(cacheKey{term: normalize(term), target: a.opts.TargetLanguage})
}
