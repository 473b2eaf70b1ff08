package offload

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/xizhibei/go-offload/codec"
)

// BlockMode says when the controller blocks its own context around a dispatch.
type BlockMode int

const (
	// BlockNone never blocks.
	BlockNone BlockMode = iota
	// BlockBeforeDispatch blocks before the request is sent, so the worker's
	// own delay adds up with it.
	BlockBeforeDispatch
	// BlockAfterDispatch blocks after the request is sent, so it overlaps
	// with the worker's delay.
	BlockAfterDispatch
)

var blockModeNames = map[string]BlockMode{
	"none":   BlockNone,
	"before": BlockBeforeDispatch,
	"after":  BlockAfterDispatch,
}

// ParseBlockMode maps a config name to a BlockMode. Unknown names are BlockNone.
func ParseBlockMode(name string) BlockMode {
	return blockModeNames[name]
}

func (m BlockMode) String() string {
	for name, mode := range blockModeNames {
		if mode == m {
			return name
		}
	}
	return "none"
}

type controllerOptions struct {
	name         string
	block        time.Duration
	blockMode    BlockMode
	discardStale bool
	codec        *codec.Codec
	validator    *validator.Validate
}

// ControllerOption is a functional option for configuring the controller.
type ControllerOption func(o *controllerOptions)

// WithControllerName sets the name used in logs.
func WithControllerName(name string) ControllerOption {
	return func(o *controllerOptions) {
		o.name = name
	}
}

// WithBlock makes OnInputChange block the calling context for d, before or
// after dispatching depending on mode. It is a demonstration knob: the caller
// is the UI context, so the UI freezes for d.
func WithBlock(d time.Duration, mode BlockMode) ControllerOption {
	return func(o *controllerOptions) {
		o.block = d
		o.blockMode = mode
	}
}

// WithDiscardStale keeps the display from going back to the result of an
// older request when replies arrive out of order.
func WithDiscardStale(discard bool) ControllerOption {
	return func(o *controllerOptions) {
		o.discardStale = discard
	}
}

// WithControllerCodec sets the frame codec used for requests.
func WithControllerCodec(c *codec.Codec) ControllerOption {
	return func(o *controllerOptions) {
		o.codec = c
	}
}

// WithControllerValidator sets the validator used for reply envelopes.
func WithControllerValidator(v *validator.Validate) ControllerOption {
	return func(o *controllerOptions) {
		o.validator = v
	}
}
