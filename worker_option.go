package offload

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/xizhibei/go-offload/codec"
)

type workerOptions struct {
	logReply  bool
	name      string
	workerNum int
	delay     time.Duration
	codec     *codec.Codec
	validator *validator.Validate
}

// WorkerOption is a functional option for configuring the worker.
type WorkerOption func(o *workerOptions)

// WithWorkerName sets the name of the worker, used in logs and metric labels.
func WithWorkerName(name string) WorkerOption {
	return func(o *workerOptions) {
		o.name = name
	}
}

// WithLogReply enables or disables logging of every reply.
func WithLogReply(logReply bool) WorkerOption {
	return func(o *workerOptions) {
		o.logReply = logReply
	}
}

// WithWorkerNum sets how many messages may be handled at the same time.
// The default of 1 handles messages one after another in arrival order;
// larger values let replies overtake each other.
func WithWorkerNum(count int) WorkerOption {
	return func(o *workerOptions) {
		o.workerNum = count
	}
}

// WithDelay makes the worker wait d before running each handler, simulating
// expensive work in the background context.
func WithDelay(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		o.delay = d
	}
}

// WithCodec sets the frame codec used for replies. Requests are decoded
// whatever their encoding.
func WithCodec(c *codec.Codec) WorkerOption {
	return func(o *workerOptions) {
		o.codec = c
	}
}

// WithValidator sets the validator used for envelopes and Bind.
func WithValidator(v *validator.Validate) WorkerOption {
	return func(o *workerOptions) {
		o.validator = v
	}
}
