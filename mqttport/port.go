package mqttport

import (
	"context"
	"time"

	offload "github.com/xizhibei/go-offload"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const unsubscribeTimeout = 5 * time.Second

// Port is an offload.Port over an MQTT client. Frames posted are published
// on one topic; frames arriving on another are handed to the subscribers.
type Port struct {
	client   Client
	pubTopic string
	subTopic string
	qos      byte

	listeners *offload.Listeners
	connIdx   int
	closed    atomic.Bool

	log *zap.SugaredLogger
}

// NewPort creates a port publishing on pubTopic and listening on subTopic.
// The subscription is renewed on every connect.
func NewPort(client Client, pubTopic, subTopic string, qos byte) *Port {
	p := &Port{
		client:    client,
		pubTopic:  pubTopic,
		subTopic:  subTopic,
		qos:       qos,
		listeners: offload.NewListeners(),
		log:       zap.S().With("module", "offload.mqtt.port", "topic", subTopic),
	}

	p.connIdx = client.OnConnect(p.subscribe)
	client.EnsureConnected()

	return p
}

func (p *Port) subscribe() {
	if p.closed.Load() {
		return
	}

	err := p.client.SubscribeWait(context.Background(), p.subTopic, p.qos, func(_ string, payload []byte) {
		p.listeners.Emit(payload)
	})
	if err != nil {
		p.log.Errorf("Subscribe %s: %v", p.subTopic, err)
		return
	}
	p.log.Debugf("Subscribed")
}

// Post publishes data on the publish topic without waiting for the broker.
func (p *Port) Post(ctx context.Context, data []byte) error {
	if p.closed.Load() {
		return offload.ErrPortClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p.client.Publish(ctx, p.pubTopic, p.qos, false, data)
	return nil
}

func (p *Port) OnMessage(cb offload.MessageCallback) int {
	return p.listeners.Add(cb)
}

func (p *Port) OffMessage(idx int) {
	p.listeners.Remove(idx)
}

// Close unsubscribes the port. The client stays connected.
func (p *Port) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}

	p.client.OffConnect(p.connIdx)

	ctx, cancel := context.WithTimeout(context.Background(), unsubscribeTimeout)
	defer cancel()
	return p.client.UnsubscribeWait(ctx, p.subTopic)
}
