package offload

import "sync"

// mailbox is an unbounded FIFO event queue drained by a single goroutine.
// Put never blocks, so a slow consumer cannot stall the sender.
type mailbox[T any] struct {
	mu     sync.Mutex
	items  []T
	notify chan struct{}
	closed bool
	done   chan struct{}
}

func newMailbox[T any]() *mailbox[T] {
	return &mailbox[T]{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// put enqueues item. It returns false once the mailbox is closed.
func (m *mailbox[T]) put(item T) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.items = append(m.items, item)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
	return true
}

// run delivers queued items to fn in order until the mailbox is closed.
func (m *mailbox[T]) run(fn func(T)) {
	defer close(m.done)

	for {
		m.mu.Lock()
		if len(m.items) == 0 {
			closed := m.closed
			m.mu.Unlock()
			if closed {
				return
			}
			<-m.notify
			continue
		}
		item := m.items[0]
		var zero T
		m.items[0] = zero
		m.items = m.items[1:]
		m.mu.Unlock()

		fn(item)
	}
}

// close stops accepting items, lets run drain what is queued and waits for it
// when wait is set.
func (m *mailbox[T]) close(wait bool) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}

	if wait {
		<-m.done
	}
}
