package offload

import (
	"go.uber.org/zap"
)

// Multiply is the computation offloaded to the worker. It follows IEEE-754
// double semantics: NaN propagates and overflow yields an infinity.
func Multiply(p MultiplyPayload) Number {
	return p.Number1 * p.Number2
}

// MultiplyHandler replies to a multiply request with a result message
// carrying number1 * number2. Operands missing from the payload are NaN.
func MultiplyHandler() *Handler {
	log := zap.S().With("module", "offload.multiply")

	return &Handler{
		Method: func(c Context) {
			req := MultiplyPayload{
				Number1: NaN(),
				Number2: NaN(),
			}
			if err := c.Bind(&req); err != nil {
				// The worker never reports errors back; an unreadable payload
				// multiplies like non-numeric input.
				log.Debugf("Bind multiply payload: %v", err)
				req = MultiplyPayload{Number1: NaN(), Number2: NaN()}
			}

			result := Multiply(req)
			log.Infof("Calculation done in worker: %s * %s = %s", req.Number1, req.Number2, result)

			c.Reply(TypeResult, result)
		},
	}
}

// NewMultiplyWorker creates a worker with the multiply handler registered.
func NewMultiplyWorker(options ...WorkerOption) *Worker {
	w := NewWorker(options...)
	w.Register(TypeMultiply, MultiplyHandler())
	return w
}
