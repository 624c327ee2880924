package audio

import (
	"sync"
)

// Backlog is a bounded, thread-safe byte ring that holds captured audio while the
// recognition stream is down. When full, the oldest bytes are overwritten so the
// backlog always holds the most recent audio.
type Backlog struct {
	buffer  []byte
	size    int
	read    int
	count   int
	dropped int64
	mu      sync.Mutex
}

// NewBacklog creates a backlog holding at most size bytes.
func NewBacklog(size int) *Backlog {
	if size <= 0 {
		size = 1
	}
	return &Backlog{
		buffer: make([]byte, size),
		size:   size,
	}
}

// Write appends data, evicting the oldest bytes when needed.
// Returns the number of previously buffered bytes that were overwritten.
func (b *Backlog) Write(data []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Only the tail of an oversized chunk can survive
	if len(data) > b.size {
		overflow := len(data) - b.size
		data = data[overflow:]
		b.dropped += int64(overflow)
	}

	evicted := 0
	for _, v := range data {
		write := (b.read + b.count) % b.size
		b.buffer[write] = v
		if b.count == b.size {
			b.read = (b.read + 1) % b.size
			evicted++
		} else {
			b.count++
		}
	}
	b.dropped += int64(evicted)
	return evicted
}

// Read copies up to len(data) of the oldest buffered bytes into data.
func (b *Backlog) Read(data []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for n < len(data) && b.count > 0 {
		data[n] = b.buffer[b.read]
		b.read = (b.read + 1) % b.size
		b.count--
		n++
	}
	return n
}

// Drain removes and returns everything buffered, oldest first.
func (b *Backlog) Drain() []byte {
	b.mu.Lock()
	n := b.count
	b.mu.Unlock()

	if n == 0 {
		return nil
	}
	out := make([]byte, n)
	return out[:b.Read(out)]
}

// Available returns the number of buffered bytes.
func (b *Backlog) Available() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Dropped returns the total number of bytes lost to overflow.
func (b *Backlog) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Clear discards buffered audio.
func (b *Backlog) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.read = 0
	b.count = 0
}

// IsEmpty returns true if nothing is buffered.
func (b *Backlog) IsEmpty() bool {
	return b.Available() == 0
}

// IsFull returns true if the next write will evict.
func (b *Backlog) IsFull() bool {
	return b.Available() == b.size
}
