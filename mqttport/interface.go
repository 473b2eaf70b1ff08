package mqttport

//go:generate mockgen -source=interface.go -destination=mock/mock_mqttport.go
//go:generate mockgen -package mock_mqtt -destination=mock/mqtt/mock_mqtt_client.go github.com/eclipse/paho.mqtt.golang Client,Message,Token

import (
	"context"
)

// MessageCallback handles a message received on a subscribed topic.
type MessageCallback func(topic string, payload []byte)

// OnConnectCallback is called when a connection is established.
type OnConnectCallback func()

// OnConnectLostCallback is called with the reason when the connection to the
// broker is lost.
type OnConnectLostCallback func(err error)

// Client is the part of an MQTT client the transport needs.
type Client interface {
	// OnConnect registers cb to run on every connect, immediately as well if
	// already connected. It returns an index for OffConnect.
	OnConnect(cb OnConnectCallback) int

	// OffConnect removes the callback associated with the given index.
	OffConnect(idx int)

	// OnConnectLost registers cb to run whenever the connection is lost.
	// It returns an index for OffConnectLost.
	OnConnectLost(cb OnConnectLostCallback) int

	// OffConnectLost removes the callback associated with the given index.
	OffConnectLost(idx int)

	// Connect connects to the broker once.
	Connect(ctx context.Context) error

	// EnsureConnected keeps connecting in the background until it succeeds.
	EnsureConnected()

	// Disconnect disconnects from the broker and stops reconnecting.
	Disconnect()

	// IsConnected reports whether the connection to the broker is open.
	IsConnected() bool

	// SubscribeWait subscribes to topic and waits for the broker to acknowledge.
	SubscribeWait(ctx context.Context, topic string, qos byte, onMsg MessageCallback) error

	// UnsubscribeWait unsubscribes from topic and waits for the broker to acknowledge.
	UnsubscribeWait(ctx context.Context, topic string) error

	// Publish publishes data without waiting; failures are logged.
	Publish(ctx context.Context, topic string, qos byte, retained bool, data []byte)

	// PublishWait publishes data and waits for the publish to complete.
	PublishWait(ctx context.Context, topic string, qos byte, retained bool, data []byte) error
}
