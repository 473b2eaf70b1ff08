package wsport_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
	offload "github.com/xizhibei/go-offload"
	"github.com/xizhibei/go-offload/wsport"
	"go.uber.org/zap"
)

type WSTestSuite struct {
	suite.Suite
	worker *offload.Worker
	server *httptest.Server
	url    string
}

func (suite *WSTestSuite) SetupSuite() {
	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	zap.ReplaceGlobals(log)
}

func (suite *WSTestSuite) SetupTest() {
	suite.worker = offload.NewMultiplyWorker(offload.WithWorkerName("ws-worker"))
	suite.server = httptest.NewServer(wsport.Handler(suite.worker))
	suite.url = "ws" + strings.TrimPrefix(suite.server.URL, "http")
}

func (suite *WSTestSuite) TearDownTest() {
	suite.server.Close()
	suite.NoError(suite.worker.Close())
}

func (suite *WSTestSuite) TestControllerRoundTrip() {
	display := &lastDisplay{texts: make(chan string, 8)}
	c := offload.NewController(&wsport.Host{URL: suite.url}, display)
	defer c.Close()
	suite.Require().NoError(c.Start(context.Background()))

	c.OnInputChange("3", "4")

	select {
	case text := <-display.texts:
		suite.Equal("Result: 12", text)
	case <-time.After(time.Second):
		suite.Fail("no result rendered")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := c.Multiply(ctx, offload.ParseNumber("abc"), 5)
	suite.NoError(err)
	suite.True(got.IsNaN())
}

func (suite *WSTestSuite) TestDialFailure() {
	c := offload.NewController(&wsport.Host{URL: "ws://127.0.0.1:1/none"}, nil)
	defer c.Close()

	suite.Error(c.Start(context.Background()))
	suite.False(c.Enabled())
}

func (suite *WSTestSuite) TestNonBinaryIgnored() {
	conn, _, err := websocket.DefaultDialer.Dial(suite.url, nil)
	suite.Require().NoError(err)
	defer conn.Close()

	suite.NoError(conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"multiply"}`)))

	port := wsport.NewPort(conn)
	replies := make(chan []byte, 1)
	port.OnMessage(func(data []byte) { replies <- data })

	select {
	case <-replies:
		suite.Fail("text message must not be answered")
	case <-time.After(100 * time.Millisecond):
	}
	suite.NoError(port.Close())
}

func (suite *WSTestSuite) TestClose() {
	port, err := wsport.Dial(context.Background(), suite.url)
	suite.Require().NoError(err)

	suite.NoError(port.Close())
	suite.NoError(port.Close())
	suite.ErrorIs(port.Post(context.Background(), []byte("x")), offload.ErrPortClosed)

	select {
	case <-port.Done():
	default:
		suite.Fail("read loop still running")
	}
}

func (suite *WSTestSuite) TestServerGone() {
	upgrader := websocket.Upgrader{}
	gone := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(rw, r, nil)
		if err == nil {
			_ = conn.Close()
		}
	}))
	defer gone.Close()

	port, err := wsport.Dial(context.Background(), "ws"+strings.TrimPrefix(gone.URL, "http"))
	suite.Require().NoError(err)

	select {
	case <-port.Done():
	case <-time.After(time.Second):
		suite.Fail("port not closed with the connection")
	}
	suite.ErrorIs(port.Post(context.Background(), []byte("x")), offload.ErrPortClosed)
}

func TestWSTestSuite(t *testing.T) {
	suite.Run(t, new(WSTestSuite))
}

type lastDisplay struct {
	texts chan string
}

func (d *lastDisplay) Render(text string) {
	d.texts <- text
}
