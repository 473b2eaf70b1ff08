package offload

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/Jeffail/tunny"
	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xizhibei/go-offload/codec"
	"github.com/xizhibei/go-offload/telemetry"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// ErrNoReply is an error indicating a handler returned without replying.
	ErrNoReply = errors.New("[OFFLOAD] empty reply")
)

// Handling outcomes reported to AfterReplyEvent and metrics.
const (
	StatusOK       = "ok"
	StatusNoReply  = "no_reply"
	StatusTimeout  = "timeout"
	StatusPanic    = "panic"
	StatusCanceled = "canceled"
)

// Reasons a message is dropped before reaching a handler.
const (
	DropMalformed = "malformed"
	DropInvalid   = "invalid"
	DropUnhandled = "unhandled"
	DropClosed    = "closed"
)

const noTimeout = time.Duration(math.MaxInt64)

// Handler handles one message type on the worker.
// Method is the function to be executed when handling the message.
// Timeout is the maximum duration allowed for the handler, including the
// simulated delay. Zero means no limit.
type Handler struct {
	Method  func(c Context)
	Timeout time.Duration
}

type inbound struct {
	port Port
	data []byte
}

// Worker is a stateless computation service behind one or more Ports.
// Every frame is queued on the worker's own mailbox, so the sender is never
// blocked by the work done here.
type Worker struct {
	log        *zap.SugaredLogger
	handlerMap map[string]*Handler
	handlerMu  sync.RWMutex

	cbList         []OnAfterReplyCallback
	dropCbList     []OnDropCallback
	cbMu           sync.RWMutex
	afterReplyPool sync.Pool

	options    *workerOptions
	workerPool *tunny.Pool
	mailbox    *mailbox[inbound]
	telemetry  *telemetry.Telemetry

	ctx       context.Context
	cancel    context.CancelFunc
	inflight  sync.WaitGroup
	closeOnce sync.Once
}

// NewWorker creates a worker and starts its event loop.
func NewWorker(options ...WorkerOption) *Worker {
	o := workerOptions{
		name:      uuid.New().String(),
		workerNum: 1,
	}

	for _, option := range options {
		option(&o)
	}

	if o.workerNum < 1 {
		o.workerNum = 1
	}
	if o.codec == nil {
		o.codec = codec.Default()
	}
	if o.validator == nil {
		o.validator = validator.New()
	}

	tel, _ := telemetry.NewNoop()
	ctx, cancel := context.WithCancel(context.Background())

	w := Worker{
		log:        zap.S().With("module", "offload.worker", "name", o.name),
		handlerMap: make(map[string]*Handler),
		options:    &o,

		afterReplyPool: sync.Pool{
			New: func() interface{} {
				return new(AfterReplyEvent)
			},
		},
		workerPool: tunny.NewCallback(o.workerNum),
		mailbox:    newMailbox[inbound](),
		telemetry:  tel,
		ctx:        ctx,
		cancel:     cancel,
	}

	go w.mailbox.run(w.receive)

	return &w
}

// Name returns the worker name.
func (w *Worker) Name() string {
	return w.options.name
}

// SetTelemetry sets the telemetry for the worker
func (w *Worker) SetTelemetry(tel *telemetry.Telemetry) {
	w.telemetry = tel
}

// Register registers a handler for a message type.
// If the type is already registered, it will be overridden.
func (w *Worker) Register(msgType string, hdl *Handler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()

	if _, ok := w.handlerMap[msgType]; ok {
		w.log.Warnf("Message type %s already registered, will override", msgType)
	}

	w.handlerMap[msgType] = hdl
	w.log.Debugf("Message type %s registered", msgType)
}

func (w *Worker) handler(msgType string) (*Handler, bool) {
	w.handlerMu.RLock()
	defer w.handlerMu.RUnlock()

	hdl, ok := w.handlerMap[msgType]
	return hdl, ok
}

// Serve starts handling frames arriving on port. Replies go back through the
// same port. It returns the port subscription index.
func (w *Worker) Serve(port Port) int {
	return port.OnMessage(func(data []byte) {
		if !w.mailbox.put(inbound{port: port, data: data}) {
			w.drop(w.ctx, "", DropClosed)
		}
	})
}

func (w *Worker) receive(in inbound) {
	var msg Message
	if err := w.options.codec.Unmarshal(in.data, &msg); err != nil {
		w.log.Debugf("Malformed frame, ignore: %v", err)
		w.drop(w.ctx, "", DropMalformed)
		return
	}

	if err := w.options.validator.Struct(&msg); err != nil {
		w.log.Debugf("Invalid message, ignore: %v", err)
		w.drop(w.ctx, msg.Type, DropInvalid)
		return
	}

	w.OnMessage(in.port, &msg)
}

// OnMessage handles a message received through port. Messages of a type
// without a handler are dropped silently: no reply is sent.
func (w *Worker) OnMessage(port Port, msg *Message) {
	w.log.Debugf("Received %s (id=%d) from controller", msg.Type, msg.ID)

	hdl, ok := w.handler(msg.Type)
	if !ok {
		w.log.Debugf("Unhandled message type %s, ignore", msg.Type)
		w.drop(w.ctx, msg.Type, DropUnhandled)
		return
	}

	ctx := w.telemetry.Extract(w.ctx, msg.Metadata)
	c := NewMessageContext(ctx, msg, w.options.validator, func(reply *Message) {
		w.reply(ctx, port, reply)
	})

	if w.options.workerNum == 1 {
		w.Call(c, hdl)
		return
	}

	w.inflight.Add(1)
	go func() {
		defer w.inflight.Done()
		w.Call(c, hdl)
	}()
}

type abandoner interface {
	abandon() bool
}

// Call runs hdl for c on the worker pool after the configured delay. Panics,
// timeouts and missing replies are logged; nothing is sent back for them.
func (w *Worker) Call(c Context, hdl *Handler) {
	start := time.Now()
	status := atomic.NewString(StatusOK)

	ctx, span := w.telemetry.StartSpan(c.Ctx(), "Worker.OnMessage "+c.Type())
	defer span.End()

	defer func() {
		duration := time.Since(start).Round(time.Millisecond)

		evt := w.afterReplyPool.Get().(*AfterReplyEvent)
		evt.Labels = c.PrometheusLabels()
		evt.Duration = duration
		evt.Reply = c.GetReply()
		evt.Status = status.Load()

		if w.options.logReply {
			w.log.Infof("Reply to %s (id=%d) [%s] (%v)", c.Type(), c.ID(), evt.Status, duration)
		}

		w.telemetry.RecordMessage(ctx, duration, c.Type(), evt.Status)
		w.emitAfterReply(evt)
	}()

	timeout := hdl.Timeout
	if timeout <= 0 {
		timeout = noTimeout
	}

	_, err := w.workerPool.ProcessTimed(func() {
		defer func() {
			if i := recover(); i != nil {
				status.Store(StatusPanic)
				err := errors.Newf("panic in handler for %s: %v", c.Type(), i)
				w.log.Desugar().WithOptions(zap.AddStacktrace(zapcore.ErrorLevel)).Sugar().Error(err)
			}
		}()

		if !w.sleep(ctx, w.options.delay) {
			status.Store(StatusCanceled)
			return
		}

		hdl.Method(c)
	}, timeout)

	if err != nil {
		if a, ok := c.(abandoner); ok {
			a.abandon()
		}
		if errors.Is(err, tunny.ErrJobTimedOut) {
			status.Store(StatusTimeout)
			w.log.Warnf("Handler for %s (id=%d) timed out after %v, reply suppressed", c.Type(), c.ID(), hdl.Timeout)
			return
		}
		status.Store(StatusCanceled)
		w.log.Warnf("Handler for %s (id=%d) not run: %v", c.Type(), c.ID(), err)
		return
	}

	if status.Load() == StatusOK && c.GetReply() == nil {
		status.Store(StatusNoReply)
		w.log.Warnf("Handler for %s (id=%d): %v", c.Type(), c.ID(), ErrNoReply)
	}
}

// sleep blocks for d or until ctx is done. It is the simulated work of the
// demo; the worker goroutine waits on a timer instead of spinning.
func (w *Worker) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (w *Worker) reply(ctx context.Context, port Port, reply *Message) {
	reply.Metadata = w.telemetry.Inject(ctx, reply.Metadata)

	data, err := w.options.codec.Marshal(reply)
	if err != nil {
		w.log.Errorf("Encode %s (id=%d): %v", reply.Type, reply.ID, err)
		return
	}

	if err := port.Post(ctx, data); err != nil {
		w.log.Errorf("Send %s (id=%d): %v", reply.Type, reply.ID, err)
		return
	}

	w.log.Debugf("Sent %s (id=%d) back to controller, size %d", reply.Type, reply.ID, len(data))
}

func (w *Worker) drop(ctx context.Context, msgType, reason string) {
	w.telemetry.RecordDrop(ctx, msgType, reason)

	w.cbMu.RLock()
	defer w.cbMu.RUnlock()
	for _, cb := range w.dropCbList {
		cb(msgType, reason)
	}
}

// Close stops accepting frames, waits for queued and running handlers and
// shuts the pool down. It must not be called from a handler.
func (w *Worker) Close() error {
	w.closeOnce.Do(func() {
		w.cancel()
		w.mailbox.close(true)
		w.inflight.Wait()
		w.workerPool.Close()
	})
	return nil
}

// AfterReplyEvent describes one handled message.
// Labels are the Prometheus labels of the message, Duration the time from
// arrival to the end of the handler, Reply the reply sent (nil if none) and
// Status one of the Status constants.
type AfterReplyEvent struct {
	Labels   prometheus.Labels
	Duration time.Duration
	Reply    *Message
	Status   string
}

// OnAfterReplyCallback is called after each handled message. The event is
// reused once the callback returns.
type OnAfterReplyCallback func(e *AfterReplyEvent)

// OnDropCallback is called for every message dropped before a handler ran.
type OnDropCallback func(msgType, reason string)

// OnAfterReply registers a callback to be executed after each handled message.
func (w *Worker) OnAfterReply(cb OnAfterReplyCallback) {
	w.cbMu.Lock()
	defer w.cbMu.Unlock()
	w.cbList = append(w.cbList, cb)
}

// OnDrop registers a callback to be executed for each dropped message.
func (w *Worker) OnDrop(cb OnDropCallback) {
	w.cbMu.Lock()
	defer w.cbMu.Unlock()
	w.dropCbList = append(w.dropCbList, cb)
}

func (w *Worker) emitAfterReply(e *AfterReplyEvent) {
	w.cbMu.RLock()
	for _, cb := range w.cbList {
		cb(e)
	}
	w.cbMu.RUnlock()

	*e = AfterReplyEvent{}
	w.afterReplyPool.Put(e)
}

// NewWorkerMetrics creates the collectors expected by RegisterMetrics.
func NewWorkerMetrics(namespace string) (*prometheus.HistogramVec, *prometheus.CounterVec) {
	processTime := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "worker_process_seconds",
		Help:      "Time spent handling a message, including simulated work.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"name", "type", "status"})

	dropCount := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "worker_dropped_total",
		Help:      "Messages dropped without reaching a handler.",
	}, []string{"name", "type", "reason"})

	return processTime, dropCount
}

// RegisterMetrics records handling time and dropped messages.
// processTime is labelled by name, type and status; dropCount by name, type
// and reason. Either may be nil.
func (w *Worker) RegisterMetrics(processTime *prometheus.HistogramVec, dropCount *prometheus.CounterVec) {
	if processTime != nil {
		w.OnAfterReply(func(e *AfterReplyEvent) {
			labels := prometheus.Labels{
				"name":   w.options.name,
				"status": e.Status,
			}
			for k, v := range e.Labels {
				labels[k] = v
			}

			processTime.
				With(labels).
				Observe(e.Duration.Seconds())
		})
	}

	if dropCount != nil {
		w.OnDrop(func(msgType, reason string) {
			dropCount.
				With(prometheus.Labels{
					"name":   w.options.name,
					"type":   msgType,
					"reason": reason,
				}).
				Inc()
		})
	}
}
