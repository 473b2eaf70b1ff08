package offload

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
)

var (
	// ErrWorkersUnsupported is returned by a Host that cannot run workers.
	ErrWorkersUnsupported = errors.New("[OFFLOAD] background workers are not supported by this host")
)

// LocalHost runs multiply workers in-process, connected through NewChannel.
type LocalHost struct {
	options []WorkerOption

	mu      sync.Mutex
	workers []*Worker
}

// NewLocalHost creates a host whose workers use the given options.
func NewLocalHost(options ...WorkerOption) *LocalHost {
	return &LocalHost{options: options}
}

// Spawn starts a multiply worker and returns the controller's end of its channel.
func (h *LocalHost) Spawn(ctx context.Context) (Port, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	controllerPort, workerPort := NewChannel()
	w := NewMultiplyWorker(h.options...)
	w.Serve(workerPort)

	h.mu.Lock()
	h.workers = append(h.workers, w)
	h.mu.Unlock()

	return controllerPort, nil
}

// Workers returns the workers spawned so far.
func (h *LocalHost) Workers() []*Worker {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*Worker(nil), h.workers...)
}

// Close closes every spawned worker.
func (h *LocalHost) Close() error {
	h.mu.Lock()
	workers := h.workers
	h.workers = nil
	h.mu.Unlock()

	for _, w := range workers {
		_ = w.Close()
	}
	return nil
}

// UnsupportedHost is a host without background execution.
type UnsupportedHost struct{}

func (UnsupportedHost) Spawn(context.Context) (Port, error) {
	return nil, ErrWorkersUnsupported
}
