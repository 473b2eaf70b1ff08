package mqttport

import (
	"context"
	stdlog "log"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const retryConnectInterval = 10 * time.Second

type client struct {
	client        mqtt.Client
	clientOptions *ClientOptions

	onConnectCallbackCount     int
	onConnectCallbackMutex     sync.Mutex
	onConnectCallbacks         map[int]OnConnectCallback
	onConnectLostCallbackCount int
	onConnectLostCallbackMutex sync.Mutex
	onConnectLostCallbacks     map[int]OnConnectLostCallback

	stopRetryConnect atomic.Bool
	printableURL     string

	log *zap.SugaredLogger
}

// NewClient creates an MQTT client for the broker at uri ("tcp://host:port"
// or "ssl://host:port"). It does not connect; call Connect or EnsureConnected.
func NewClient(uri, clientID string, options ...Option) (Client, error) {
	server, err := url.Parse(uri)
	if err != nil {
		return nil, errors.Wrapf(err, "parse broker url")
	}

	log := zap.S().With("module", "offload.mqtt")

	clonedServer := *server
	clonedServer.User = nil
	c := &client{
		log:                    log,
		printableURL:           clonedServer.String(),
		onConnectCallbacks:     make(map[int]OnConnectCallback),
		onConnectLostCallbacks: make(map[int]OnConnectLostCallback),
	}

	mqttClientOptions := mqtt.NewClientOptions().
		AddBroker(uri).
		SetClientID(clientID).
		SetKeepAlive(60 * time.Second).
		SetDefaultPublishHandler(func(_ mqtt.Client, m mqtt.Message) {
			log.Debugf("Unrouted message on %s, ignore", m.Topic())
		}).
		SetAutoReconnect(true).
		SetOnConnectHandler(func(mqtt.Client) {
			log.Infof("Connected %s", c.printableURL)
			for _, cb := range c.connectCallbacks() {
				go cb()
			}
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Infof("Connection lost %s %v", c.printableURL, err)
			for _, cb := range c.connectLostCallbacks() {
				go cb(err)
			}
		})

	if server.User != nil {
		pass, _ := server.User.Password()
		mqttClientOptions.SetUsername(server.User.Username())
		mqttClientOptions.SetPassword(pass)
	}

	clientOptions := &ClientOptions{
		ClientOptions: mqttClientOptions,
	}

	for _, o := range options {
		o(clientOptions)
	}

	c.client = mqtt.NewClient(clientOptions.ClientOptions)

	if clientOptions.enableStatus {
		c.OnConnect(func() {
			c.Publish(
				context.Background(),
				clientOptions.onlineTopic,
				1,
				true,
				clientOptions.onlinePayload,
			)
		})
	}

	if clientOptions.enableDebug {
		mqtt.DEBUG = stdlog.New(os.Stderr, "DEBUG - ", stdlog.LstdFlags)
		mqtt.CRITICAL = stdlog.New(os.Stderr, "CRITICAL - ", stdlog.LstdFlags)
		mqtt.WARN = stdlog.New(os.Stderr, "WARN - ", stdlog.LstdFlags)
		mqtt.ERROR = stdlog.New(os.Stderr, "ERROR - ", stdlog.LstdFlags)
	}

	c.clientOptions = clientOptions

	return c, nil
}

func (c *client) connectCallbacks() []OnConnectCallback {
	c.onConnectCallbackMutex.Lock()
	defer c.onConnectCallbackMutex.Unlock()

	cbs := make([]OnConnectCallback, 0, len(c.onConnectCallbacks))
	for _, cb := range c.onConnectCallbacks {
		cbs = append(cbs, cb)
	}
	return cbs
}

func (c *client) connectLostCallbacks() []OnConnectLostCallback {
	c.onConnectLostCallbackMutex.Lock()
	defer c.onConnectLostCallbackMutex.Unlock()

	cbs := make([]OnConnectLostCallback, 0, len(c.onConnectLostCallbacks))
	for _, cb := range c.onConnectLostCallbacks {
		cbs = append(cbs, cb)
	}
	return cbs
}

func (c *client) OnConnect(cb OnConnectCallback) int {
	if c.client.IsConnected() {
		cb()
	}

	c.onConnectCallbackMutex.Lock()
	defer c.onConnectCallbackMutex.Unlock()

	idx := c.onConnectCallbackCount
	c.onConnectCallbackCount++
	c.onConnectCallbacks[idx] = cb
	return idx
}

func (c *client) OffConnect(idx int) {
	c.onConnectCallbackMutex.Lock()
	defer c.onConnectCallbackMutex.Unlock()

	delete(c.onConnectCallbacks, idx)
}

func (c *client) OnConnectLost(cb OnConnectLostCallback) int {
	c.onConnectLostCallbackMutex.Lock()
	defer c.onConnectLostCallbackMutex.Unlock()

	idx := c.onConnectLostCallbackCount
	c.onConnectLostCallbackCount++
	c.onConnectLostCallbacks[idx] = cb
	return idx
}

func (c *client) OffConnectLost(idx int) {
	c.onConnectLostCallbackMutex.Lock()
	defer c.onConnectLostCallbackMutex.Unlock()

	delete(c.onConnectLostCallbacks, idx)
}

func (c *client) Connect(ctx context.Context) error {
	return wait(ctx, c.client.Connect())
}

func (c *client) EnsureConnected() {
	go c.connectAndWaitForSuccess()
}

// connectAndWaitForSuccess retries every retryConnectInterval until connected
// or Disconnect is called.
func (c *client) connectAndWaitForSuccess() {
	ctx := context.Background()
	for !c.stopRetryConnect.Load() {
		if c.IsConnected() {
			return
		}
		err := c.Connect(ctx)
		if err == nil {
			return
		}
		c.log.Errorf("Connect failed %s %v", c.printableURL, err)
		time.Sleep(retryConnectInterval)
		c.log.Infof("Try reconnect %s", c.printableURL)
	}
	c.log.Infof("Stop retry connect %s", c.printableURL)
}

func (c *client) Disconnect() {
	c.stopRetryConnect.Store(true)
	c.client.Disconnect(1000)
}

func (c *client) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

func (c *client) SubscribeWait(ctx context.Context, topic string, qos byte, onMsg MessageCallback) error {
	c.log.Debugf("Subscribe topic=%s qos=%d", topic, qos)

	callback := func(_ mqtt.Client, m mqtt.Message) {
		onMsg(m.Topic(), m.Payload())
	}

	return wait(ctx, c.client.Subscribe(topic, qos, callback))
}

func (c *client) UnsubscribeWait(ctx context.Context, topic string) error {
	c.log.Debugf("Unsubscribe topic=%s", topic)
	return wait(ctx, c.client.Unsubscribe(topic))
}

func (c *client) Publish(ctx context.Context, topic string, qos byte, retained bool, data []byte) {
	token := c.client.Publish(topic, qos, retained, data)
	go func() {
		if err := wait(ctx, token); err != nil {
			c.log.Errorf("Publish to %s: %v", topic, err)
		}
	}()
}

func (c *client) PublishWait(ctx context.Context, topic string, qos byte, retained bool, data []byte) error {
	return wait(ctx, c.client.Publish(topic, qos, retained, data))
}

func wait(ctx context.Context, token mqtt.Token) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
		return token.Error()
	}
}
