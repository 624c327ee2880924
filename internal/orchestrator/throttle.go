package orchestrator

import (
	"sync"
	"time"

	"github.com/lexiqai/session-assistant/internal/domain"
	"github.com/lexiqai/session-assistant/internal/observability"
)

// throttle forwards at most one snapshot per window. The first offer in a window
// arms a timer; later offers replace the pending value and the latest one is emitted
// when the window closes.
type throttle struct {
	window time.Duration
	emit   func(domain.MetricsSnapshot)

	mu      sync.Mutex
	pending *domain.MetricsSnapshot
	timer   *time.Timer
	stopped bool
}

func newThrottle(window time.Duration, emit func(domain.MetricsSnapshot)) *throttle {
	return &throttle{window: window, emit: emit}
}

// Offer queues s for the current window.
func (t *throttle) Offer(s domain.MetricsSnapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	if t.pending != nil {
		observability.RecordMetricsUpdate("coalesced")
	}
	t.pending = &s
	if t.timer == nil {
		t.timer = time.AfterFunc(t.window, t.flush)
	}
}

// flush emits under the lock so nothing is published after Stop returns.
func (t *throttle) flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timer = nil
	if t.stopped || t.pending == nil {
		return
	}
	s := *t.pending
	t.pending = nil
	observability.RecordMetricsUpdate("emitted")
	t.emit(s)
}

// Stop discards any pending snapshot. Later offers are ignored.
func (t *throttle) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.pending = nil
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
