package mqttport

import (
	"crypto/tls"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
)

func TestWithDebug(t *testing.T) {
	options := &ClientOptions{ClientOptions: mqtt.NewClientOptions()}
	WithDebug(true)(options)
	assert.True(t, options.enableDebug)
}

func TestWithUserPass(t *testing.T) {
	options := &ClientOptions{ClientOptions: mqtt.NewClientOptions()}
	WithUserPass("username", "password")(options)
	assert.Equal(t, "username", options.Username)
	assert.Equal(t, "password", options.Password)
}

func TestWithKeepAlive(t *testing.T) {
	options := &ClientOptions{ClientOptions: mqtt.NewClientOptions()}
	WithKeepAlive(30 * time.Second)(options)
	assert.Equal(t, int64(30), options.KeepAlive)
}

func TestWithConnectRetryInterval(t *testing.T) {
	options := &ClientOptions{ClientOptions: mqtt.NewClientOptions()}
	WithConnectRetryInterval(5 * time.Second)(options)
	assert.True(t, options.ConnectRetry)
	assert.Equal(t, 5*time.Second, options.ConnectRetryInterval)
}

func TestWithMaxReconnectInterval(t *testing.T) {
	options := &ClientOptions{ClientOptions: mqtt.NewClientOptions()}
	WithMaxReconnectInterval(10 * time.Second)(options)
	assert.Equal(t, 10*time.Second, options.MaxReconnectInterval)
}

func TestWithTLSConfig(t *testing.T) {
	options := &ClientOptions{ClientOptions: mqtt.NewClientOptions()}
	tlsConfig := &tls.Config{}
	WithTLSConfig(tlsConfig)(options)
	assert.Equal(t, tlsConfig, options.TLSConfig)
}

func TestWithStatus(t *testing.T) {
	options := &ClientOptions{ClientOptions: mqtt.NewClientOptions()}
	WithStatus("onlineTopic", []byte("onlinePayload"), "offlineTopic", []byte("offlinePayload"))(options)
	assert.True(t, options.enableStatus)
	assert.Equal(t, "onlineTopic", options.onlineTopic)
	assert.Equal(t, []byte("onlinePayload"), options.onlinePayload)
	assert.Equal(t, "offlineTopic", options.WillTopic)
	assert.Equal(t, []byte("offlinePayload"), options.WillPayload)
	assert.Equal(t, byte(1), options.WillQos)
	assert.True(t, options.WillRetained)
}

func TestWithWorkerStatus(t *testing.T) {
	options := &ClientOptions{ClientOptions: mqtt.NewClientOptions()}
	WithWorkerStatus("demo", "w1")(options)
	assert.True(t, options.enableStatus)
	assert.Equal(t, "demo/w1/status", options.onlineTopic)
	assert.Equal(t, []byte(StatusOnline), options.onlinePayload)
	assert.Equal(t, "demo/w1/status", options.WillTopic)
	assert.Equal(t, []byte(StatusOffline), options.WillPayload)
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "demo/w1/request", RequestTopic("demo", "w1"))
	assert.Equal(t, "demo/w1/response", ResponseTopic("demo", "w1"))
	assert.Equal(t, "demo/w1/status", StatusTopic("demo/", "w1"))
}
