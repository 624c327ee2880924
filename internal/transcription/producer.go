package transcription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/session-assistant/internal/audio"
	"github.com/lexiqai/session-assistant/internal/domain"
	"github.com/lexiqai/session-assistant/internal/observability"
	"github.com/lexiqai/session-assistant/internal/resilience"
)

// Options tune a Producer.
type Options struct {
	InputSampleRate  int
	EngineSampleRate int
	// BacklogSize bounds the audio retained while reconnecting, in bytes.
	BacklogSize int
	// SilenceThreshold is the RMS below which backlog audio is discarded. Zero keeps everything.
	SilenceThreshold float64
	Reconnect        resilience.ReconnectConfig
}

type producerState int

const (
	stateIdle producerState = iota
	stateRunning
	stateReconnecting
	stateStopped
)

// Producer owns the recognition stream for one session. It emits TranscriptEvents in
// arrival order, reconnects transparently after a drop, and escalates to a fatal
// AgentError once the reconnect budget is spent.
type Producer struct {
	sessionID string
	engine    Engine
	sink      domain.TranscriptSink
	opts      Options
	logger    zerolog.Logger
	backlog   *audio.Backlog

	mu       sync.Mutex
	state    producerState
	stream   Stream
	language string
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewProducer creates an idle producer for sessionID.
func NewProducer(sessionID string, engine Engine, sink domain.TranscriptSink, opts Options, logger zerolog.Logger) *Producer {
	if opts.Reconnect.MaxAttempts <= 0 {
		opts.Reconnect.MaxAttempts = 5
	}
	if opts.Reconnect.Multiplier <= 0 {
		opts.Reconnect.Multiplier = 2.0
	}
	if opts.BacklogSize <= 0 {
		opts.BacklogSize = 320000
	}
	return &Producer{
		sessionID: sessionID,
		engine:    engine,
		sink:      sink,
		opts:      opts,
		logger:    logger.With().Str("component", "transcription").Logger(),
		backlog:   audio.NewBacklog(opts.BacklogSize),
	}
}

// Start opens the recognition stream and returns once the engine is accepting audio.
// A producer can be started once.
func (p *Producer) Start(ctx context.Context, language string) error {
	p.mu.Lock()
	if p.state != stateIdle {
		p.mu.Unlock()
		return ErrAlreadyRunning
	}
	p.state = stateRunning
	p.language = language
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.mu.Unlock()

	// The stream outlives ctx; it is bound to the producer until Stop.
	stream, err := p.openStream(ctx, language)
	if err != nil {
		p.mu.Lock()
		p.state = stateStopped
		p.cancel()
		p.mu.Unlock()
		return fmt.Errorf("open recognition stream: %w", err)
	}

	p.mu.Lock()
	if p.state == stateStopped || p.ctx.Err() != nil {
		// Stop or the caller's cancellation raced with Open
		p.state = stateStopped
		p.mu.Unlock()
		stream.Close()
		return ErrNotRunning
	}
	p.stream = stream
	p.mu.Unlock()

	p.wg.Add(1)
	go p.run(stream)

	p.logger.Info().Str("language", language).Msg("Transcription started")
	return nil
}

func (p *Producer) openStream(ctx context.Context, language string) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, p.cancel)
	stream, err := p.engine.Open(p.ctx, language)
	if !stop() && err == nil {
		stream.Close()
		return nil, ctx.Err()
	}
	return stream, err
}

// SendAudio forwards a PCM16 chunk at the input rate. While reconnecting the chunk is
// kept in the backlog and flushed once the stream is back.
func (p *Producer) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	converted, err := audio.ResamplePCM16(chunk, p.opts.InputSampleRate, p.opts.EngineSampleRate)
	if err != nil {
		return fmt.Errorf("resample audio: %w", err)
	}

	p.mu.Lock()
	state := p.state
	stream := p.stream
	p.mu.Unlock()

	switch state {
	case stateIdle, stateStopped:
		return ErrNotRunning
	case stateReconnecting:
		p.buffer(converted)
		return nil
	}
	if stream == nil {
		p.buffer(converted)
		return nil
	}

	if err := stream.SendAudio(converted); err != nil {
		// The run loop notices the drop; keep the audio for the next stream.
		p.buffer(converted)
		return nil
	}
	observability.RecordAudioBytes("engine", len(converted))
	return nil
}

func (p *Producer) buffer(chunk []byte) {
	if p.opts.SilenceThreshold > 0 && audio.IsSilent(chunk, p.opts.SilenceThreshold) {
		return
	}
	if evicted := p.backlog.Write(chunk); evicted > 0 {
		p.logger.Debug().Int("evicted_bytes", evicted).Msg("Audio backlog full, dropped oldest audio")
	}
	observability.RecordAudioBytes("backlog", len(chunk))
}

// Stop halts capture and releases the stream. Safe to call at any time, including
// before Start or after a failed Start.
func (p *Producer) Stop() error {
	p.mu.Lock()
	if p.state == stateStopped || p.state == stateIdle {
		p.state = stateStopped
		p.mu.Unlock()
		p.wg.Wait()
		return nil
	}
	p.state = stateStopped
	stream := p.stream
	p.stream = nil
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	var err error
	if stream != nil {
		err = stream.Close()
	}
	p.wg.Wait()
	p.backlog.Clear()

	p.logger.Info().Msg("Transcription stopped")
	return err
}

func (p *Producer) stopped() bool {
	return p.ctx.Err() != nil
}

func (p *Producer) run(stream Stream) {
	defer p.wg.Done()

	for {
		lost := p.consume(stream)
		if p.stopped() {
			return
		}

		p.logger.Warn().Err(lost).Msg("Recognition stream dropped, reconnecting")
		p.sink.Error(domain.NewAgentError(domain.SourceTranscription,
			fmt.Errorf("recognition stream interrupted, reconnecting: %w", lost), true))

		next, err := p.reconnect(lost)
		if err != nil {
			if p.stopped() {
				return
			}
			p.logger.Error().Err(err).Msg("Recognition stream could not be restored")
			p.sink.Error(domain.NewAgentError(domain.SourceTranscription, err, false))
			return
		}
		stream = next
	}
}

// consume relays results until the stream ends and returns the reason it ended.
func (p *Producer) consume(stream Stream) error {
	results := stream.Results()
	for {
		select {
		case <-p.ctx.Done():
			return nil
		case res, ok := <-results:
			if !ok {
				return streamErr(stream)
			}
			p.emit(res)
		case <-stream.Done():
			// Drain whatever the engine delivered before it went away
			for {
				select {
				case res, ok := <-results:
					if !ok {
						return streamErr(stream)
					}
					p.emit(res)
				default:
					return streamErr(stream)
				}
			}
		}
	}
}

func streamErr(stream Stream) error {
	if err := stream.Err(); err != nil {
		return err
	}
	return ErrStreamLost
}

func (p *Producer) emit(res Result) {
	text := strings.TrimSpace(res.Text)
	if text == "" || p.stopped() {
		return
	}
	observability.RecordTranscript(res.IsFinal)
	p.sink.Transcript(domain.TranscriptEvent{
		SessionID:  p.sessionID,
		Text:       text,
		IsFinal:    res.IsFinal,
		Confidence: clampConfidence(res.Confidence),
		Timestamp:  time.Now(),
	})
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

func (p *Producer) reconnect(cause error) (Stream, error) {
	p.mu.Lock()
	if p.state == stateStopped {
		p.mu.Unlock()
		return nil, ErrNotRunning
	}
	p.state = stateReconnecting
	p.stream = nil
	language := p.language
	p.mu.Unlock()

	if errors.Is(cause, ErrPermissionDenied) {
		return nil, cause
	}

	cfg := p.opts.Reconnect
	cfg.IsPermanent = func(err error) bool { return errors.Is(err, ErrPermissionDenied) }

	var next Stream
	err := resilience.Reconnect(p.ctx, func(ctx context.Context) error {
		s, err := p.engine.Open(ctx, language)
		if err != nil {
			return err
		}
		next = s
		return nil
	}, &cfg)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.state == stateStopped {
		p.mu.Unlock()
		next.Close()
		return nil, ErrNotRunning
	}
	p.state = stateRunning
	p.stream = next
	p.mu.Unlock()

	if backlog := p.backlog.Drain(); len(backlog) > 0 {
		if err := next.SendAudio(backlog); err != nil {
			p.logger.Warn().Err(err).Int("bytes", len(backlog)).Msg("Failed to flush audio backlog")
		} else {
			p.logger.Info().Int("bytes", len(backlog)).Msg("Flushed audio backlog after reconnect")
		}
	}
	return next, nil
}
