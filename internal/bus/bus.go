package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lexiqai/session-assistant/internal/observability"
)

// Handler processes one delivered message. Returned errors are logged, never
// propagated back to the publisher.
type Handler func(ctx context.Context, msg Message) error

// HandlerMap registers one handler per message type.
type HandlerMap map[Type]Handler

// Bus is a fire-and-forget publish mechanism. Each subscription owns a bounded FIFO
// queue drained by its own goroutine, so messages from one publisher keep their
// relative order per subscriber and a slow subscriber never blocks a publisher.
// Delivery is best effort: a full queue drops the message.
type Bus struct {
	logger    zerolog.Logger
	queueSize int

	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool
}

// New creates a bus whose subscriptions buffer up to queueSize messages.
func New(queueSize int, logger zerolog.Logger) *Bus {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Bus{
		logger:    logger.With().Str("component", "bus").Logger(),
		queueSize: queueSize,
		subs:      make(map[uint64]*Subscription),
	}
}

// Publish serializes payload and hands it to every interested subscriber.
// It only fails for an unknown type or a payload that cannot be serialized.
func (b *Bus) Publish(t Type, payload any) error {
	msg, err := NewMessage(t, payload)
	if err != nil {
		observability.RecordBusDropped(string(t), "malformed")
		return err
	}
	b.Deliver(msg)
	return nil
}

// Deliver routes an already-serialized message. Messages with an unknown type are
// logged and dropped.
func (b *Bus) Deliver(msg Message) {
	if !msg.Type.Valid() {
		b.logger.Warn().Str("type", string(msg.Type)).Msg("Dropping message with unknown type")
		observability.RecordBusDropped(string(msg.Type), "unknown_type")
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	observability.RecordBusPublished(string(msg.Type))
	for _, sub := range b.subs {
		if _, ok := sub.handlers[msg.Type]; !ok {
			continue
		}
		select {
		case sub.queue <- msg:
		default:
			observability.RecordBusDropped(string(msg.Type), "queue_full")
			b.logger.Warn().
				Str("type", string(msg.Type)).
				Str("subscriber", sub.name).
				Msg("Subscriber queue full, dropping message")
		}
	}
}

// Subscribe registers handlers under a descriptive name and starts delivering.
func (b *Bus) Subscribe(name string, handlers HandlerMap) (*Subscription, error) {
	for t := range handlers {
		if !t.Valid() {
			return nil, fmt.Errorf("subscribe %s: %w: %q", name, ErrUnknownMessageType, t)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub := &Subscription{
		name:     name,
		bus:      b,
		handlers: handlers,
		queue:    make(chan Message, b.queueSize),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		logger:   b.logger.With().Str("subscriber", name).Logger(),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		cancel()
		return nil, fmt.Errorf("subscribe %s: bus closed", name)
	}
	b.nextID++
	sub.id = b.nextID
	b.subs[sub.id] = sub
	b.mu.Unlock()

	go sub.run()
	return sub, nil
}

// Close stops every subscription. Later publishes are silently discarded.
func (b *Bus) Close() {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for id, sub := range b.subs {
		subs = append(subs, sub)
		delete(b.subs, id)
	}
	b.closed = true
	b.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

// Subscription is one registered handler map and its delivery goroutine.
type Subscription struct {
	id       uint64
	name     string
	bus      *Bus
	handlers HandlerMap
	queue    chan Message
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	logger   zerolog.Logger
	stopOnce sync.Once
}

// Unsubscribe stops delivery. Messages still queued are discarded.
func (s *Subscription) Unsubscribe() {
	s.bus.remove(s.id)
	s.stop()
}

// Done is closed once the delivery goroutine has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) stop() {
	s.stopOnce.Do(s.cancel)
	<-s.done
}

func (s *Subscription) run() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.queue:
			s.dispatch(msg)
		}
	}
}

func (s *Subscription) dispatch(msg Message) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Interface("panic", r).
				Str("type", string(msg.Type)).
				Msg("Bus handler panicked")
		}
	}()

	handler := s.handlers[msg.Type]
	if handler == nil {
		s.logger.Debug().Str("type", string(msg.Type)).Msg("No handler for message type")
		return
	}
	if err := handler(s.ctx, msg); err != nil {
		s.logger.Error().Err(err).Str("type", string(msg.Type)).Msg("Bus handler failed")
	}
}
