package pubsub

import "sync"

// mailbox hands queued values to deliver, in order, on a goroutine of its
// own. Callbacks may block or call back into the client without holding up
// the read loop. The goroutine exits whenever the queue drains.
type mailbox[T any] struct {
	deliver func(T)

	mu      sync.Mutex
	queue   []T
	running bool
	closed  bool
}

func newMailbox[T any](deliver func(T)) *mailbox[T] {
	return &mailbox[T]{deliver: deliver}
}

func (m *mailbox[T]) push(value T) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.queue = append(m.queue, value)
	if !m.running {
		m.running = true
		go m.drain()
	}
}

func (m *mailbox[T]) drain() {
	var zero T
	for {
		m.mu.Lock()
		if m.closed || len(m.queue) == 0 {
			m.running = false
			m.mu.Unlock()
			return
		}
		value := m.queue[0]
		m.queue[0] = zero
		m.queue = m.queue[1:]
		m.mu.Unlock()
		m.deliver(value)
	}
}

// close drops whatever is still queued. A delivery already running finishes.
func (m *mailbox[T]) close() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.queue = nil
}
