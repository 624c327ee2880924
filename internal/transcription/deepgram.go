package transcription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/lexiqai/session-assistant/internal/resilience"
)

// DeepgramConfig configures the Deepgram streaming engine.
type DeepgramConfig struct {
	APIKey     string
	Model      string
	SampleRate int
}

// DeepgramEngine opens Deepgram live transcription streams.
type DeepgramEngine struct {
	cfg            DeepgramConfig
	circuitBreaker *resilience.CircuitBreaker
	logger         zerolog.Logger
}

// NewDeepgramEngine creates an engine. The circuit breaker guards Open so a dead
// service fails fast during a reconnect storm.
func NewDeepgramEngine(cfg DeepgramConfig, cb *resilience.CircuitBreaker, logger zerolog.Logger) *DeepgramEngine {
	return &DeepgramEngine{
		cfg:            cfg,
		circuitBreaker: cb,
		logger:         logger.With().Str("component", "deepgram").Logger(),
	}
}

// messageCallbackHandler embeds the SDK default handler and overrides only what the
// stream needs.
type messageCallbackHandler struct {
	*websocketv1api.DefaultCallbackHandler
	stream *deepgramStream
}

func (m *messageCallbackHandler) Message(message *msginterfaces.MessageResponse) error {
	m.stream.handleMessage(message)
	return nil
}

func (m *messageCallbackHandler) Close(*msginterfaces.CloseResponse) error {
	m.stream.fail(ErrStreamLost)
	return nil
}

func (m *messageCallbackHandler) Error(errorResponse *msginterfaces.ErrorResponse) error {
	m.stream.fail(classifyDeepgramError(errorResponse))
	return nil
}

// Open connects a new live transcription stream for language.
func (e *DeepgramEngine) Open(ctx context.Context, language string) (Stream, error) {
	if e.cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: deepgram api key not configured", ErrPermissionDenied)
	}

	var stream *deepgramStream
	err := e.circuitBreaker.Call(func() error {
		s, err := e.connect(ctx, language)
		if err != nil {
			return err
		}
		stream = s
		return nil
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
		}
		return nil, err
	}
	return stream, nil
}

func (e *DeepgramEngine) connect(ctx context.Context, language string) (*deepgramStream, error) {
	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          e.cfg.Model,
		Language:       language,
		Punctuate:      true,
		InterimResults: true,
		UtteranceEndMs: "1000",
		VadEvents:      true,
		Encoding:       "linear16",
		Channels:       1,
		SampleRate:     e.cfg.SampleRate,
	}

	stream := &deepgramStream{
		results: make(chan Result, 100),
		done:    make(chan struct{}),
		logger:  e.logger.With().Str("language", language).Logger(),
	}
	callback := &messageCallbackHandler{
		DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
		stream:                 stream,
	}

	client, err := listenClient.NewWSUsingCallback(ctx, e.cfg.APIKey, nil, tOptions, callback)
	if err != nil {
		return nil, fmt.Errorf("%w: create deepgram client: %v", ErrEngineUnavailable, err)
	}
	if !client.Connect() {
		return nil, fmt.Errorf("%w: deepgram connection refused", ErrEngineUnavailable)
	}
	stream.client = client

	e.logger.Info().Str("model", e.cfg.Model).Str("language", language).Msg("Deepgram stream connected")
	return stream, nil
}

func classifyDeepgramError(resp *msginterfaces.ErrorResponse) error {
	if resp == nil {
		return ErrStreamLost
	}
	detail := strings.ToLower(resp.ErrCode + " " + resp.ErrMsg + " " + resp.Description)
	for _, marker := range []string{"401", "403", "unauthorized", "forbidden", "invalid_auth", "insufficient_permissions"} {
		if strings.Contains(detail, marker) {
			return fmt.Errorf("%w: %s", ErrPermissionDenied, strings.TrimSpace(resp.ErrMsg))
		}
	}
	return fmt.Errorf("%w: %s", ErrStreamLost, strings.TrimSpace(resp.ErrMsg+" "+resp.Description))
}

type deepgramStream struct {
	client  *listenClient.WSCallback
	results chan Result
	done    chan struct{}
	logger  zerolog.Logger

	mu     sync.Mutex
	err    error
	closed bool
}

func (s *deepgramStream) Results() <-chan Result { return s.results }
func (s *deepgramStream) Done() <-chan struct{}  { return s.done }

func (s *deepgramStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *deepgramStream) handleMessage(msg *msginterfaces.MessageResponse) {
	if msg == nil {
		return
	}

	switch msg.Type {
	case "Results", "Message":
		if len(msg.Channel.Alternatives) == 0 {
			return
		}
		alt := msg.Channel.Alternatives[0]
		if alt.Transcript == "" {
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return
		}
		select {
		case s.results <- Result{Text: alt.Transcript, IsFinal: msg.IsFinal, Confidence: alt.Confidence}:
		default:
			s.logger.Warn().Msg("Result channel full, dropping transcription")
		}

	default:
		s.logger.Debug().Str("type", msg.Type).Msg("Ignoring deepgram message")
	}
}

// fail ends the stream with err unless it was already closed.
func (s *deepgramStream) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.done)
	s.logger.Warn().Err(err).Msg("Deepgram stream ended")
}

func (s *deepgramStream) SendAudio(chunk []byte) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrStreamLost
	}
	if _, err := s.client.Write(chunk); err != nil {
		return fmt.Errorf("send audio to deepgram: %w", err)
	}
	return nil
}

// Close finishes the stream. Err stays nil after a deliberate close.
func (s *deepgramStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()

	s.client.Finish()
	return nil
}
