package offload

//go:generate mockgen -source=interface.go -destination=mock/mock_offload.go

import "context"

// MessageCallback receives a frame delivered by a Port. The slice belongs to
// the callback.
type MessageCallback func(data []byte)

// Port is one end of the boundary between the controller and the worker.
type Port interface {
	// Post sends a frame to the other end without waiting for it to be handled.
	// The frame is copied before Post returns.
	Post(ctx context.Context, data []byte) error

	// OnMessage registers a callback for frames arriving from the other end.
	// It returns an index that can be used to remove the callback using OffMessage.
	OnMessage(cb MessageCallback) int

	// OffMessage removes the callback associated with the given index.
	OffMessage(idx int)

	// Close closes the port. Posting on a closed port fails with ErrPortClosed.
	Close() error
}

// Host provides the background execution capability.
type Host interface {
	// Spawn starts a worker and returns the controller's end of the channel to it.
	// It fails with ErrWorkersUnsupported when the host cannot run workers.
	Spawn(ctx context.Context) (Port, error)
}

// Display renders text for the user.
type Display interface {
	Render(text string)
}
