package offload

import "time"

const (
	// TypeMultiply is the message type of a multiplication request.
	TypeMultiply = "multiply"
	// TypeResult is the message type of a computation result.
	TypeResult = "result"

	DefaultQoS = 0

	// DefaultBlock is the simulated blocking duration used by the demo knobs.
	DefaultBlock = time.Second
)
