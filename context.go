package offload

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
)

// Context is what a worker Handler sees of the message being handled.
type Context interface {
	// ID returns the correlation id of the message, 0 when uncorrelated.
	ID() uint64

	// Type returns the message type.
	Type() string

	// Ctx returns the underlying context.Context.
	Ctx() context.Context

	// Bind decodes the payload into request and validates it.
	Bind(request interface{}) error

	// Reply sends a message of the given type back to the sender, echoing the
	// correlation id. It returns false if a reply was already sent.
	Reply(msgType string, payload interface{}) bool

	// GetReply returns the reply sent so far, or nil.
	GetReply() *Message

	// PrometheusLabels returns the Prometheus labels associated with the context.
	PrometheusLabels() prometheus.Labels
}

// BaseContext implements the reply-once bookkeeping of Context.
type BaseContext struct {
	reply     *Message
	replyMu   sync.Mutex
	replied   atomic.Bool
	BaseReply func(reply *Message) // BaseReply delivers the reply to the transport.
	ctx       context.Context
}

// Ctx returns the context associated with the BaseContext.
// If no context is set, it returns the background context.
func (c *BaseContext) Ctx() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// send stores reply and hands it to BaseReply, at most once.
func (c *BaseContext) send(reply *Message) bool {
	if !c.replied.CompareAndSwap(false, true) {
		return false
	}

	c.replyMu.Lock()
	c.reply = reply
	c.replyMu.Unlock()

	if c.BaseReply != nil {
		c.BaseReply(reply)
	}
	return true
}

// abandon prevents any later reply, e.g. after the handler timed out.
func (c *BaseContext) abandon() bool {
	return c.replied.CompareAndSwap(false, true)
}

// GetReply returns the reply associated with the context.
func (c *BaseContext) GetReply() *Message {
	c.replyMu.Lock()
	defer c.replyMu.Unlock()
	return c.reply
}

// MessageContext is the Context of a message received by a Worker.
type MessageContext struct {
	BaseContext
	msg       *Message
	validator *validator.Validate
}

// NewMessageContext creates a context for msg. Replies are passed to reply.
func NewMessageContext(ctx context.Context, msg *Message, v *validator.Validate, reply func(*Message)) *MessageContext {
	c := &MessageContext{
		msg:       msg,
		validator: v,
	}
	c.ctx = ctx
	c.BaseReply = reply
	return c
}

func (c *MessageContext) ID() uint64 {
	return c.msg.ID
}

func (c *MessageContext) Type() string {
	return c.msg.Type
}

// Bind unmarshals the payload into request and validates it when request is
// a struct. Fields absent from the payload keep their current value.
func (c *MessageContext) Bind(request interface{}) error {
	if err := c.msg.Bind(request); err != nil {
		return errors.Wrapf(err, "bind %s payload", c.msg.Type)
	}
	if c.validator == nil {
		return nil
	}

	err := c.validator.Struct(request)
	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		// Not a struct, nothing to validate.
		return nil
	}
	return err
}

func (c *MessageContext) Reply(msgType string, payload interface{}) bool {
	reply, err := NewMessage(msgType, c.msg.ID, payload)
	if err != nil {
		return false
	}
	return c.send(reply)
}

func (c *MessageContext) PrometheusLabels() prometheus.Labels {
	return prometheus.Labels{
		"type": c.msg.Type,
	}
}
