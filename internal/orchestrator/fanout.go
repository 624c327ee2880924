package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lexiqai/session-assistant/internal/domain"
	"github.com/lexiqai/session-assistant/internal/observability"
)

// worker feeds transcript events to one agent from a bounded FIFO queue, so a slow
// agent delays only itself.
type worker struct {
	name    string
	queue   chan domain.TranscriptEvent
	handle  func(ctx context.Context, ev domain.TranscriptEvent)
	onPanic func(err error)
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	logger  zerolog.Logger

	mu     sync.Mutex
	closed bool
}

func newWorker(parent context.Context, name string, size int, handle func(context.Context, domain.TranscriptEvent), onPanic func(error), logger zerolog.Logger) *worker {
	ctx, cancel := context.WithCancel(parent)
	w := &worker{
		name:    name,
		queue:   make(chan domain.TranscriptEvent, size),
		handle:  handle,
		onPanic: onPanic,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		logger:  logger.With().Str("worker", name).Logger(),
	}
	go w.run()
	return w
}

// Offer enqueues ev without blocking. It reports false when the queue is full or the
// worker no longer accepts events.
func (w *worker) Offer(ev domain.TranscriptEvent) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	select {
	case w.queue <- ev:
		return true
	default:
		observability.RecordFanoutDropped(w.name)
		w.logger.Warn().Bool("final", ev.IsFinal).Msg("Agent queue full, dropping transcript")
		return false
	}
}

// Close stops accepting events. Queued events are still handled; Done closes after.
func (w *worker) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
}

// Abort stops accepting events and abandons anything still queued.
func (w *worker) Abort() {
	w.Close()
	w.cancel()
}

// Done is closed once the worker goroutine has exited.
func (w *worker) Done() <-chan struct{} {
	return w.done
}

func (w *worker) run() {
	defer close(w.done)
	defer w.cancel()
	for {
		select {
		case <-w.ctx.Done():
			return
		case ev, ok := <-w.queue:
			if !ok {
				return
			}
			if !w.dispatch(ev) {
				return
			}
		}
	}
}

// dispatch reports false when the agent panicked; the worker then stops for good.
func (w *worker) dispatch(ev domain.TranscriptEvent) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			w.logger.Error().Interface("panic", r).Msg("Agent panicked")
			w.mu.Lock()
			if !w.closed {
				w.closed = true
				close(w.queue)
			}
			w.mu.Unlock()
			if w.onPanic != nil {
				w.onPanic(fmt.Errorf("%s agent panicked: %v", w.name, r))
			}
		}
	}()
	w.handle(w.ctx, ev)
	return true
}
