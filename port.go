package offload

import (
	"bytes"
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"
)

var (
	// ErrPortClosed is returned when posting on a closed port.
	ErrPortClosed = errors.New("[OFFLOAD] port closed")
)

// Listeners keeps indexed message callbacks for Port implementations, the
// same way the MQTT client keeps its connect callbacks.
type Listeners struct {
	mu    sync.RWMutex
	count int
	cbs   map[int]MessageCallback
}

// NewListeners creates an empty callback set.
func NewListeners() *Listeners {
	return &Listeners{cbs: make(map[int]MessageCallback)}
}

// Add registers cb and returns its index.
func (l *Listeners) Add(cb MessageCallback) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := l.count
	l.count++
	l.cbs[idx] = cb
	return idx
}

// Remove unregisters the callback at idx.
func (l *Listeners) Remove(idx int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.cbs, idx)
}

// Emit hands every callback its own copy of data and returns how many were called.
func (l *Listeners) Emit(data []byte) int {
	l.mu.RLock()
	cbs := make([]MessageCallback, 0, len(l.cbs))
	for _, cb := range l.cbs {
		cbs = append(cbs, cb)
	}
	l.mu.RUnlock()

	for _, cb := range cbs {
		cb(bytes.Clone(data))
	}
	return len(cbs)
}

type channelPort struct {
	peer      *channelPort
	listeners *Listeners
	closed    *atomic.Bool
}

// NewChannel creates a connected pair of in-process ports. A frame posted on
// one end is copied to the callbacks of the other end. Closing either end
// closes both.
func NewChannel() (Port, Port) {
	closed := atomic.NewBool(false)
	a := &channelPort{listeners: NewListeners(), closed: closed}
	b := &channelPort{listeners: NewListeners(), closed: closed}
	a.peer = b
	b.peer = a
	return a, b
}

func (p *channelPort) Post(ctx context.Context, data []byte) error {
	if p.closed.Load() {
		return ErrPortClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p.peer.listeners.Emit(data)
	return nil
}

func (p *channelPort) OnMessage(cb MessageCallback) int {
	return p.listeners.Add(cb)
}

func (p *channelPort) OffMessage(idx int) {
	p.listeners.Remove(idx)
}

func (p *channelPort) Close() error {
	p.closed.Store(true)
	return nil
}
