// Package orchestrator owns the session lifecycle. It starts and stops the agents,
// fans transcripts out to them, and is the only writer of session state and the only
// publisher of agent events on the bus.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"github.com/lexiqai/session-assistant/internal/bus"
	"github.com/lexiqai/session-assistant/internal/domain"
	"github.com/lexiqai/session-assistant/internal/observability"
	"github.com/lexiqai/session-assistant/internal/resilience"
)

// Transcriber turns session audio into transcript events.
type Transcriber interface {
	Start(ctx context.Context, language string) error
	SendAudio(chunk []byte) error
	Stop() error
}

// TermAgent detects and enriches domain terms in transcripts.
type TermAgent interface {
	ProcessTranscript(ctx context.Context, ev domain.TranscriptEvent)
	Close()
}

// ScoringAgent accumulates performance statistics.
type ScoringAgent interface {
	ProcessTranscript(ev domain.TranscriptEvent)
	Snapshot() domain.MetricsSnapshot
	Finalize(ctx context.Context) (domain.PerformanceReport, error)
}

// SessionConfig is what a start intent asks for.
type SessionConfig struct {
	Platform domain.Platform
	Language string
}

// AgentFactory builds the agents of one session. Validate runs before anything is
// created so a misconfigured start leaves no partial state behind.
type AgentFactory interface {
	Validate(cfg SessionConfig) error
	NewTranscriber(sessionID string, sink domain.TranscriptSink) (Transcriber, error)
	NewTermAgent(sessionID, language string, sink domain.TermSink) (TermAgent, error)
	NewScoringAgent(sessionID string, startedAt time.Time, sink domain.MetricsSink) (ScoringAgent, error)
}

// Publisher sends events to the presentation contexts.
type Publisher interface {
	Publish(t bus.Type, payload any) error
}

// RecordStore persists finished sessions.
type RecordStore interface {
	SaveSession(ctx context.Context, rec domain.SessionRecord) error
}

// Options tune the orchestrator.
type Options struct {
	DefaultLanguage string
	MetricsThrottle time.Duration
	StopTimeout     time.Duration
	AgentQueueSize  int
	InboxSize       int
}

// Orchestrator runs at most one session at a time.
type Orchestrator struct {
	factory   AgentFactory
	publisher Publisher
	store     RecordStore
	opts      Options
	logger    zerolog.Logger

	mu      sync.Mutex
	session domain.Session
	run     *run
}

// New creates an idle orchestrator. store may be nil.
func New(factory AgentFactory, publisher Publisher, store RecordStore, opts Options, logger zerolog.Logger) *Orchestrator {
	if opts.DefaultLanguage == "" {
		opts.DefaultLanguage = "en-US"
	}
	if opts.MetricsThrottle <= 0 {
		opts.MetricsThrottle = 2 * time.Second
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 10 * time.Second
	}
	if opts.AgentQueueSize <= 0 {
		opts.AgentQueueSize = 64
	}
	if opts.InboxSize <= 0 {
		opts.InboxSize = 256
	}
	return &Orchestrator{
		factory:   factory,
		publisher: publisher,
		store:     store,
		opts:      opts,
		logger:    logger.With().Str("component", "orchestrator").Logger(),
		session:   domain.Session{State: domain.SessionStateIdle},
	}
}

// run holds the live resources of one session.
type run struct {
	id        string
	cfg       SessionConfig
	startedAt time.Time
	ctx       context.Context
	cancel    context.CancelFunc
	inbox     chan func()
	loopDone  chan struct{}
	logger    zerolog.Logger
	metrics   *observability.SessionMetrics

	mu            sync.Mutex
	transcriber   Transcriber
	terms         TermAgent
	scoring       ScoringAgent
	termWorker    *worker
	scoringWorker *worker
	throttle      *throttle
	lastSnapshot  *domain.MetricsSnapshot
	transcripts   int
	termsEmitted  int

	// startErr is a fatal error reported while starting. Guarded by Orchestrator.mu.
	startErr error
}

// post hands fn to the session loop. It gives up once the session is torn down.
func (r *run) post(fn func()) {
	select {
	case r.inbox <- fn:
	case <-r.ctx.Done():
	}
}

// sync returns once everything posted before it has been handled.
func (r *run) sync() {
	done := make(chan struct{})
	r.post(func() { close(done) })
	select {
	case <-done:
	case <-r.ctx.Done():
	}
}

func (r *run) loop() {
	defer close(r.loopDone)
	for {
		select {
		case <-r.ctx.Done():
			return
		case fn := <-r.inbox:
			fn()
		}
	}
}

// sessionSink is how agents report back. Every callback is serialized through the
// session loop.
type sessionSink struct {
	o *Orchestrator
	r *run
}

func (s sessionSink) Transcript(ev domain.TranscriptEvent) {
	s.r.post(func() { s.o.handleTranscript(s.r, ev) })
}

func (s sessionSink) Term(t domain.TermEnrichment) {
	s.r.post(func() { s.o.handleTerm(s.r, t) })
}

func (s sessionSink) Metrics(m domain.MetricsSnapshot) {
	s.r.post(func() { s.o.handleMetrics(s.r, m) })
}

func (s sessionSink) Error(err domain.AgentError) {
	s.r.post(func() { s.o.handleError(s.r, err) })
}

// Start begins a session and returns its id once transcription is running.
func (o *Orchestrator) Start(ctx context.Context, cfg SessionConfig) (string, error) {
	o.mu.Lock()
	if !o.session.State.CanStart() {
		o.mu.Unlock()
		observability.RecordRejectedStart()
		return "", ErrAlreadyRunning
	}

	lang := strings.TrimSpace(cfg.Language)
	if lang == "" {
		lang = o.opts.DefaultLanguage
	}
	tag, err := language.Parse(lang)
	if err != nil {
		o.mu.Unlock()
		observability.RecordRejectedStart()
		return "", fmt.Errorf("%w: %q", ErrInvalidLanguage, lang)
	}
	cfg.Language = tag.String()
	if cfg.Platform == "" {
		cfg.Platform = domain.PlatformUnknown
	}

	if err := o.factory.Validate(cfg); err != nil {
		o.mu.Unlock()
		observability.RecordRejectedStart()
		return "", err
	}

	id := uuid.New().String()
	now := time.Now()
	o.session = domain.Session{
		ID:        id,
		Platform:  cfg.Platform,
		Language:  cfg.Language,
		StartedAt: now,
		State:     domain.SessionStateStarting,
	}
	r := o.newRun(id, cfg, now)
	o.run = r
	o.mu.Unlock()

	r.logger.Info().
		Str("platform", string(cfg.Platform)).
		Str("language", cfg.Language).
		Msg("Starting session")

	if err := o.startAgents(ctx, r); err != nil {
		return "", o.abortStart(r, err)
	}
	r.sync()

	o.mu.Lock()
	if o.run != r || o.session.State != domain.SessionStateStarting {
		o.mu.Unlock()
		o.shutdown(context.Background(), r, false)
		return "", ErrStartAborted
	}
	if err := r.startErr; err != nil {
		o.mu.Unlock()
		return "", o.abortStart(r, fmt.Errorf("start transcription: %w", err))
	}
	o.session.State = domain.SessionStateActive
	r.metrics.RecordStart()
	o.mu.Unlock()

	r.logger.Info().Msg("Session active")
	return id, nil
}

// abortStart tears down a session that never became active and marks it failed.
func (o *Orchestrator) abortStart(r *run, err error) error {
	o.shutdown(context.Background(), r, false)
	o.mu.Lock()
	if o.run == r {
		o.run = nil
		o.session.State = domain.SessionStateFailed
		o.session.StoppedAt = time.Now()
	}
	o.mu.Unlock()
	observability.RecordRejectedStart()
	r.logger.Error().Err(err).Msg("Session failed to start")
	return err
}

func (o *Orchestrator) newRun(id string, cfg SessionConfig, startedAt time.Time) *run {
	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		id:        id,
		cfg:       cfg,
		startedAt: startedAt,
		ctx:       ctx,
		cancel:    cancel,
		inbox:     make(chan func(), o.opts.InboxSize),
		loopDone:  make(chan struct{}),
		logger:    observability.ForSession(o.logger, id),
		metrics:   observability.NewSessionMetrics(id),
	}
	go r.loop()
	return r
}

func (o *Orchestrator) startAgents(ctx context.Context, r *run) error {
	sink := sessionSink{o: o, r: r}

	scoring, err := o.factory.NewScoringAgent(r.id, r.startedAt, sink)
	if err != nil {
		return fmt.Errorf("create scoring agent: %w", err)
	}
	terms, err := o.factory.NewTermAgent(r.id, r.cfg.Language, sink)
	if err != nil {
		return fmt.Errorf("create term agent: %w", err)
	}
	transcriber, err := o.factory.NewTranscriber(r.id, sink)
	if err != nil {
		return fmt.Errorf("create transcriber: %w", err)
	}

	r.mu.Lock()
	r.scoring = scoring
	r.terms = terms
	r.transcriber = transcriber
	r.throttle = newThrottle(o.opts.MetricsThrottle, func(s domain.MetricsSnapshot) {
		o.publish(bus.TypeMetricsUpdate, bus.MetricsUpdatePayload{Metrics: s, Timestamp: time.Now()})
	})
	r.termWorker = newWorker(r.ctx, string(domain.SourceTermLookup), o.opts.AgentQueueSize,
		terms.ProcessTranscript,
		func(err error) { sink.Error(domain.NewAgentError(domain.SourceTermLookup, err, false)) },
		r.logger)
	r.scoringWorker = newWorker(r.ctx, string(domain.SourceScoring), o.opts.AgentQueueSize,
		func(_ context.Context, ev domain.TranscriptEvent) { scoring.ProcessTranscript(ev) },
		func(err error) { sink.Error(domain.NewAgentError(domain.SourceScoring, err, false)) },
		r.logger)
	r.mu.Unlock()

	if err := transcriber.Start(ctx, r.cfg.Language); err != nil {
		return fmt.Errorf("start transcription: %w", err)
	}
	return nil
}

// Stop ends the active session and returns its report. Stopping an idle, stopped or
// failed orchestrator succeeds with no report.
func (o *Orchestrator) Stop(ctx context.Context, notes string) (*domain.PerformanceReport, error) {
	o.mu.Lock()
	switch o.session.State {
	case domain.SessionStateActive:
	case domain.SessionStateStarting:
		o.mu.Unlock()
		return nil, ErrNotActive
	default:
		o.mu.Unlock()
		return nil, nil
	}
	r := o.run
	o.session.State = domain.SessionStateStopping
	sess := o.session
	o.mu.Unlock()

	r.logger.Info().Msg("Stopping session")
	report := o.shutdown(ctx, r, true)
	sess = o.finish(r, sess, domain.SessionStateStopped)

	o.persist(r, sess, report, notes)
	r.metrics.RecordEnd("completed")
	o.publish(bus.TypeSessionComplete, bus.SessionCompletePayload{
		SessionID:         r.id,
		PerformanceReport: report,
		Timestamp:         time.Now(),
	})

	r.logger.Info().
		Float64("overall_score", report.OverallScore).
		Bool("partial", report.Partial).
		Msg("Session stopped")
	return &report, nil
}

// fail tears down a session after a fatal agent error. Only the first call for an
// active session has effect.
func (o *Orchestrator) fail(r *run, reason string) {
	o.mu.Lock()
	if o.run != r || o.session.State != domain.SessionStateActive {
		o.mu.Unlock()
		return
	}
	o.session.State = domain.SessionStateStopping
	sess := o.session
	o.mu.Unlock()

	r.logger.Error().Str("reason", reason).Msg("Session failed")
	report := o.shutdown(context.Background(), r, true)
	sess = o.finish(r, sess, domain.SessionStateFailed)

	o.persist(r, sess, report, "")
	r.metrics.RecordEnd("failed")
	o.publish(bus.TypeSessionFailed, bus.SessionFailedPayload{
		SessionID: r.id,
		Reason:    reason,
		Timestamp: time.Now(),
	})
}

// finish stamps the terminal state on sess, the session as it was when stopping began.
// The orchestrator slot is only released if r still owns it; an EmergencyStop in the
// meantime has already reset it.
func (o *Orchestrator) finish(r *run, sess domain.Session, state domain.SessionState) domain.Session {
	sess.State = state
	sess.StoppedAt = time.Now()

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.run == r {
		o.session = sess
		o.run = nil
	}
	return sess
}

// EmergencyStop releases everything without producing a report and resets the
// orchestrator to idle. It never panics and may be called repeatedly.
func (o *Orchestrator) EmergencyStop() {
	defer func() {
		if rec := recover(); rec != nil {
			o.logger.Error().Interface("panic", rec).Msg("Emergency stop panicked")
		}
	}()

	o.mu.Lock()
	r := o.run
	o.run = nil
	o.session = domain.Session{State: domain.SessionStateIdle}
	o.mu.Unlock()

	if r == nil {
		return
	}
	r.logger.Warn().Msg("Emergency stop")
	o.shutdown(context.Background(), r, false)
	r.metrics.RecordEnd("aborted")
}

// shutdown stops every agent of r. With finalize set, the scoring queue is drained and
// the report produced, all within the stop budget; on timeout the report is built from
// the last snapshot seen.
func (o *Orchestrator) shutdown(ctx context.Context, r *run, finalize bool) domain.PerformanceReport {
	ctx, cancel := context.WithTimeout(ctx, o.opts.StopTimeout)
	defer cancel()

	r.mu.Lock()
	transcriber, terms, scoring := r.transcriber, r.terms, r.scoring
	termWorker, scoringWorker, thr := r.termWorker, r.scoringWorker, r.throttle
	r.mu.Unlock()

	if thr != nil {
		thr.Stop()
	}
	if transcriber != nil {
		_, err := resilience.RunWithTimeout(ctx, remaining(ctx), func(context.Context) (struct{}, error) {
			return struct{}{}, transcriber.Stop()
		})
		if err != nil {
			r.logger.Warn().Err(err).Msg("Transcription did not stop cleanly")
		}
	}
	if termWorker != nil {
		termWorker.Abort()
	}
	if terms != nil {
		terms.Close()
	}

	var report domain.PerformanceReport
	finalized := false
	if finalize && scoring != nil && scoringWorker != nil {
		scoringWorker.Close()
		if !resilience.WaitClosed(ctx, scoringWorker.Done()) {
			r.logger.Warn().Msg("Scoring queue not drained before the stop deadline")
		}
		rep, err := resilience.RunWithTimeout(ctx, remaining(ctx), scoring.Finalize)
		if err != nil {
			r.logger.Warn().Err(err).Msg("Scoring did not finalize, using last snapshot")
		} else {
			report, finalized = rep, true
		}
	} else if scoringWorker != nil {
		scoringWorker.Abort()
	}

	r.cancel()
	<-r.loopDone

	if finalize && !finalized {
		r.mu.Lock()
		last := r.lastSnapshot
		r.mu.Unlock()
		report = domain.PartialReport(r.id, last, time.Now())
	}
	return report
}

func remaining(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0
	}
	return time.Until(deadline)
}

func (o *Orchestrator) persist(r *run, sess domain.Session, report domain.PerformanceReport, notes string) {
	if o.store == nil {
		return
	}
	r.mu.Lock()
	rec := domain.SessionRecord{
		SessionID:          sess.ID,
		StartedAt:          sess.StartedAt,
		StoppedAt:          sess.StoppedAt,
		Platform:           sess.Platform,
		Language:           sess.Language,
		DurationSeconds:    sess.StoppedAt.Sub(sess.StartedAt).Seconds(),
		PerformanceReport:  report,
		TranscriptionCount: r.transcripts,
		TermsCount:         r.termsEmitted,
		Notes:              notes,
	}
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.store.SaveSession(ctx, rec); err != nil {
		r.logger.Error().Err(err).Msg("Failed to persist session record")
	}
}

// current reports whether r is the live session and still accepting agent output.
func (o *Orchestrator) current(r *run) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.run != r {
		return false
	}
	return o.session.State == domain.SessionStateStarting || o.session.State == domain.SessionStateActive
}

func (o *Orchestrator) handleTranscript(r *run, ev domain.TranscriptEvent) {
	if !o.current(r) {
		return
	}
	o.publish(bus.TypeTranscription, bus.TranscriptionPayload{
		Text:       ev.Text,
		IsFinal:    ev.IsFinal,
		Confidence: ev.Confidence,
		Timestamp:  ev.Timestamp,
	})
	if !ev.IsFinal {
		return
	}

	// Agents only act on final segments
	r.mu.Lock()
	r.transcripts++
	termWorker, scoringWorker := r.termWorker, r.scoringWorker
	r.mu.Unlock()
	if termWorker != nil {
		termWorker.Offer(ev)
	}
	if scoringWorker != nil {
		scoringWorker.Offer(ev)
	}
}

func (o *Orchestrator) handleTerm(r *run, t domain.TermEnrichment) {
	if !o.current(r) {
		return
	}
	r.mu.Lock()
	r.termsEmitted++
	r.mu.Unlock()
	o.publish(bus.TypeMedicalTerm, bus.MedicalTermPayload{
		Original:    t.Original,
		Translation: t.Translation,
		Phonetics:   t.Phonetics,
		Definition:  t.Definition,
		Context:     t.Context,
		Timestamp:   t.Timestamp,
	})
}

func (o *Orchestrator) handleMetrics(r *run, m domain.MetricsSnapshot) {
	r.mu.Lock()
	r.lastSnapshot = &m
	thr := r.throttle
	r.mu.Unlock()
	if thr != nil && o.current(r) {
		thr.Offer(m)
	}
}

func (o *Orchestrator) handleError(r *run, e domain.AgentError) {
	e = e.Normalized()
	observability.RecordAgentError(string(e.Source), e.Recoverable)
	fatal := !e.Recoverable && (e.Source == domain.SourceTranscription || e.Source == domain.SourceOrchestrator)

	o.mu.Lock()
	live := o.run == r
	if live && fatal && o.session.State == domain.SessionStateStarting {
		// Start reports it to the caller
		if r.startErr == nil {
			r.startErr = e
		}
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()
	if !live {
		return
	}

	if !e.Recoverable {
		switch e.Source {
		case domain.SourceTranscription, domain.SourceOrchestrator:
			go o.fail(r, e.Message)
			return
		case domain.SourceTermLookup, domain.SourceScoring:
			o.detach(r, e.Source)
			e.Message = fmt.Sprintf("%s disabled for this session: %s", e.Source, e.Message)
			e.Recoverable = true
		}
	}

	r.logger.Warn().
		Str("source", string(e.Source)).
		Bool("recoverable", e.Recoverable).
		Msg(e.Message)
	o.publish(bus.TypeError, bus.ErrorPayload{
		Source:      string(e.Source),
		Message:     e.Message,
		Recoverable: e.Recoverable,
		Timestamp:   e.Timestamp,
	})
}

// detach stops feeding one agent; the session carries on without it.
func (o *Orchestrator) detach(r *run, source domain.AgentSource) {
	r.mu.Lock()
	var w *worker
	switch source {
	case domain.SourceTermLookup:
		w, r.termWorker = r.termWorker, nil
	case domain.SourceScoring:
		w, r.scoringWorker = r.scoringWorker, nil
	}
	r.mu.Unlock()
	if w != nil {
		w.Abort()
		r.logger.Warn().Str("agent", string(source)).Msg("Agent detached after a fatal error")
	}
}

// Status describes the current session without changing anything.
func (o *Orchestrator) Status() bus.StatusResponse {
	o.mu.Lock()
	s := o.session
	o.mu.Unlock()

	resp := bus.StatusResponse{
		IsActive: s.State == domain.SessionStateActive,
		State:    s.State,
	}
	if s.ID != "" {
		resp.SessionID = s.ID
		resp.Platform = s.Platform
		resp.ElapsedSeconds = s.ElapsedSeconds(time.Now())
	}
	return resp
}

// Session returns a copy of the current session.
func (o *Orchestrator) Session() domain.Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session
}

// SendAudio forwards captured audio to the active session's transcriber.
func (o *Orchestrator) SendAudio(chunk []byte) error {
	o.mu.Lock()
	r := o.run
	active := o.session.State == domain.SessionStateActive
	o.mu.Unlock()
	if r == nil || !active {
		return ErrNotActive
	}

	r.mu.Lock()
	transcriber := r.transcriber
	r.mu.Unlock()
	return transcriber.SendAudio(chunk)
}

func (o *Orchestrator) publish(t bus.Type, payload any) {
	if err := o.publisher.Publish(t, payload); err != nil {
		o.logger.Error().Err(err).Str("type", string(t)).Msg("Failed to publish event")
	}
}
