package offload

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/xizhibei/go-offload/codec"
	"github.com/xizhibei/go-offload/telemetry"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

var (
	// ErrControllerDisabled is returned once the controller has been disabled,
	// either because no worker could be spawned or because it was closed.
	ErrControllerDisabled = errors.New("[OFFLOAD] controller disabled")

	// ErrNotStarted is returned when dispatching before Start.
	ErrNotStarted = errors.New("[OFFLOAD] controller not started")
)

// MessageHandler receives messages from the worker. Handlers share the
// message and must not modify it.
type MessageHandler func(msg *Message)

type subscription struct {
	msgType string
	hdl     MessageHandler
}

// Controller binds user input to requests and renders the replies of its
// worker. Replies are queued on the controller's own mailbox and handled on
// its goroutine, never inside Dispatch.
type Controller struct {
	log       *zap.SugaredLogger
	host      Host
	display   Display
	options   *controllerOptions
	telemetry *telemetry.Telemetry

	port    Port
	portSub int
	portMu  sync.RWMutex

	started      atomic.Bool
	disabled     atomic.Bool
	seq          atomic.Uint64
	lastRendered atomic.Uint64

	pending   map[uint64]chan *Message
	pendingMu sync.Mutex

	subs     map[int]subscription
	subCount int
	subMu    sync.RWMutex

	mailbox   *mailbox[[]byte]
	closeOnce sync.Once
}

// NewController creates a controller that spawns its worker from host and
// renders results on display. A nil display renders nothing.
func NewController(host Host, display Display, options ...ControllerOption) *Controller {
	o := controllerOptions{
		name: uuid.New().String(),
	}

	for _, option := range options {
		option(&o)
	}

	if o.codec == nil {
		o.codec = codec.Default()
	}
	if o.validator == nil {
		o.validator = validator.New()
	}

	tel, _ := telemetry.NewNoop()

	c := Controller{
		log:       zap.S().With("module", "offload.controller", "name", o.name),
		host:      host,
		display:   display,
		options:   &o,
		telemetry: tel,
		pending:   make(map[uint64]chan *Message),
		subs:      make(map[int]subscription),
		mailbox:   newMailbox[[]byte](),
	}

	if display != nil {
		c.Subscribe(TypeResult, c.render)
	}

	go c.mailbox.run(c.receive)

	return &c
}

// SetTelemetry sets the telemetry for the controller
func (c *Controller) SetTelemetry(tel *telemetry.Telemetry) {
	c.telemetry = tel
}

// Start spawns the worker. When the host cannot provide one the failure is
// logged once, the controller is disabled for good and the error returned.
func (c *Controller) Start(ctx context.Context) error {
	if c.disabled.Load() {
		return ErrControllerDisabled
	}
	if !c.started.CompareAndSwap(false, true) {
		return nil
	}

	port, err := c.host.Spawn(ctx)
	if err != nil {
		c.disabled.Store(true)
		c.log.Errorf("Background worker unavailable, feature disabled: %v", err)
		return errors.Wrap(err, "spawn worker")
	}

	c.portMu.Lock()
	c.port = port
	c.portSub = port.OnMessage(func(data []byte) {
		c.mailbox.put(data)
	})
	c.portMu.Unlock()

	c.log.Debugf("Worker spawned")
	return nil
}

// Enabled reports whether the controller is started and can dispatch.
func (c *Controller) Enabled() bool {
	return c.started.Load() && !c.disabled.Load()
}

func (c *Controller) activePort() (Port, error) {
	if c.disabled.Load() {
		return nil, ErrControllerDisabled
	}

	c.portMu.RLock()
	defer c.portMu.RUnlock()
	if c.port == nil {
		return nil, ErrNotStarted
	}
	return c.port, nil
}

// Subscribe registers hdl for messages of msgType. Any number of handlers may
// be registered per type. It returns an index for Unsubscribe.
func (c *Controller) Subscribe(msgType string, hdl MessageHandler) int {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	idx := c.subCount
	c.subCount++
	c.subs[idx] = subscription{msgType: msgType, hdl: hdl}
	return idx
}

// Unsubscribe removes the handler registered under idx.
func (c *Controller) Unsubscribe(idx int) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	delete(c.subs, idx)
}

func (c *Controller) subscribers(msgType string) []MessageHandler {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	idxs := make([]int, 0, len(c.subs))
	for idx, sub := range c.subs {
		if sub.msgType == msgType {
			idxs = append(idxs, idx)
		}
	}
	sort.Ints(idxs)

	hdls := make([]MessageHandler, 0, len(idxs))
	for _, idx := range idxs {
		hdls = append(hdls, c.subs[idx].hdl)
	}
	return hdls
}

// OnInputChange reads the two inputs, coerces them to numbers without
// validation and dispatches a multiply request. With WithBlock it also blocks
// the calling context before or after the dispatch.
func (c *Controller) OnInputChange(input1, input2 string) {
	if c.disabled.Load() {
		c.log.Debugf("Controller disabled, input ignored")
		return
	}

	payload := MultiplyPayload{
		Number1: ParseNumber(input1),
		Number2: ParseNumber(input2),
	}

	if c.options.blockMode == BlockBeforeDispatch {
		c.block()
	}

	if _, err := c.Dispatch(context.Background(), TypeMultiply, payload); err != nil {
		c.log.Errorf("Dispatch multiply: %v", err)
	}

	if c.options.blockMode == BlockAfterDispatch {
		c.block()
	}
}

func (c *Controller) block() {
	if c.options.block <= 0 {
		return
	}
	c.log.Debugf("Blocking controller context for %v", c.options.block)
	time.Sleep(c.options.block)
}

// Dispatch sends a message to the worker without waiting for a reply and
// returns its correlation id.
func (c *Controller) Dispatch(ctx context.Context, msgType string, payload interface{}) (uint64, error) {
	port, err := c.activePort()
	if err != nil {
		return 0, err
	}

	id := c.seq.Inc()
	return id, c.post(ctx, port, msgType, id, payload)
}

func (c *Controller) post(ctx context.Context, port Port, msgType string, id uint64, payload interface{}) error {
	ctx, span := c.telemetry.StartSpan(ctx, "Controller.Dispatch "+msgType)
	defer span.End()

	msg, err := NewMessage(msgType, id, payload)
	if err != nil {
		return err
	}
	msg.Metadata = c.telemetry.Inject(ctx, nil)

	data, err := c.options.codec.Marshal(msg)
	if err != nil {
		return err
	}

	if err := port.Post(ctx, data); err != nil {
		return errors.Wrapf(err, "post %s", msgType)
	}

	c.log.Infof("Sent to worker: %s (id=%d) %s", msgType, id, msg.Payload)
	return nil
}

// Multiply sends a correlated multiply request and waits for its own reply,
// whatever the order in which replies arrive. Giving up on ctx does not cancel
// the work on the worker.
func (c *Controller) Multiply(ctx context.Context, a, b Number) (Number, error) {
	port, err := c.activePort()
	if err != nil {
		return NaN(), err
	}

	id := c.seq.Inc()
	done := make(chan *Message, 1)

	c.pendingMu.Lock()
	c.pending[id] = done
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := c.post(ctx, port, TypeMultiply, id, MultiplyPayload{Number1: a, Number2: b}); err != nil {
		return NaN(), err
	}

	select {
	case msg, ok := <-done:
		if !ok {
			return NaN(), ErrControllerDisabled
		}
		result := NaN()
		if err := msg.Bind(&result); err != nil {
			return NaN(), errors.Wrap(err, "bind result")
		}
		return result, nil
	case <-ctx.Done():
		return NaN(), ctx.Err()
	}
}

func (c *Controller) receive(data []byte) {
	var msg Message
	if err := c.options.codec.Unmarshal(data, &msg); err != nil {
		c.log.Debugf("Malformed frame from worker, ignore: %v", err)
		return
	}

	if err := c.options.validator.Struct(&msg); err != nil {
		c.log.Debugf("Invalid message from worker, ignore: %v", err)
		return
	}

	ctx := c.telemetry.Extract(context.Background(), msg.Metadata)
	_, span := c.telemetry.StartSpan(ctx, "Controller.OnWorkerMessage "+msg.Type)
	defer span.End()

	c.OnWorkerMessage(&msg)
}

// OnWorkerMessage routes a message from the worker: first to the Multiply
// call waiting for its id, then to every subscriber of its type. Messages
// nobody handles are ignored.
func (c *Controller) OnWorkerMessage(msg *Message) {
	c.log.Infof("Received from worker: %s (id=%d) %s", msg.Type, msg.ID, msg.Payload)

	routed := false
	if msg.ID != 0 {
		c.pendingMu.Lock()
		done, ok := c.pending[msg.ID]
		delete(c.pending, msg.ID)
		c.pendingMu.Unlock()

		if ok {
			done <- msg
			routed = true
		}
	}

	hdls := c.subscribers(msg.Type)
	if len(hdls) == 0 && !routed {
		c.log.Debugf("Unhandled message type %s, ignore", msg.Type)
		return
	}

	for _, hdl := range hdls {
		hdl(msg)
	}
}

func (c *Controller) render(msg *Message) {
	result := NaN()
	if err := msg.Bind(&result); err != nil {
		c.log.Debugf("Unreadable result payload, ignore: %v", err)
		return
	}

	if c.options.discardStale && msg.ID != 0 {
		for {
			last := c.lastRendered.Load()
			if msg.ID < last {
				c.log.Debugf("Stale result (id=%d < %d), not rendered", msg.ID, last)
				return
			}
			if c.lastRendered.CompareAndSwap(last, msg.ID) {
				break
			}
		}
	}

	c.display.Render(ResultText(result))
	c.log.Infof("Displayed result from worker: %s", result)
}

// Close disables the controller, closes the port to the worker and fails the
// Multiply calls still waiting. It must not be called from a MessageHandler.
func (c *Controller) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.disabled.Store(true)

		c.portMu.Lock()
		if c.port != nil {
			c.port.OffMessage(c.portSub)
			err = c.port.Close()
		}
		c.portMu.Unlock()

		c.mailbox.close(true)

		c.pendingMu.Lock()
		for id, done := range c.pending {
			close(done)
			delete(c.pending, id)
		}
		c.pendingMu.Unlock()
	})
	return err
}
