package wsport

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	offload "github.com/xizhibei/go-offload"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const closeTimeout = time.Second

// Port is an offload.Port over a websocket connection. Frames travel as
// binary messages; anything else is ignored.
type Port struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	listeners *offload.Listeners
	closed    atomic.Bool
	done      chan struct{}

	log *zap.SugaredLogger
}

// NewPort wraps conn and starts reading from it. The port closes itself when
// the connection fails.
func NewPort(conn *websocket.Conn) *Port {
	p := &Port{
		conn:      conn,
		listeners: offload.NewListeners(),
		done:      make(chan struct{}),
		log:       zap.S().With("module", "offload.ws", "remote", conn.RemoteAddr().String()),
	}

	go p.readLoop()

	return p
}

func (p *Port) readLoop() {
	defer close(p.done)

	for {
		mt, data, err := p.conn.ReadMessage()
		if err != nil {
			if !p.closed.Swap(true) {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					p.log.Errorf("Read: %v", err)
				} else {
					p.log.Debugf("Connection closed by peer")
				}
				_ = p.conn.Close()
			}
			return
		}

		if mt != websocket.BinaryMessage {
			p.log.Debugf("Non-binary message, ignore")
			continue
		}

		p.listeners.Emit(data)
	}
}

// Post writes data as one binary message.
func (p *Port) Post(ctx context.Context, data []byte) error {
	if p.closed.Load() {
		return offload.ErrPortClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := p.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return p.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (p *Port) OnMessage(cb offload.MessageCallback) int {
	return p.listeners.Add(cb)
}

func (p *Port) OffMessage(idx int) {
	p.listeners.Remove(idx)
}

// Done is closed once the connection is gone.
func (p *Port) Done() <-chan struct{} {
	return p.done
}

// Close sends a close message to the peer, closes the connection and waits
// for the read loop to stop.
func (p *Port) Close() error {
	if p.closed.Swap(true) {
		<-p.done
		return nil
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = p.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeTimeout))
	err := p.conn.Close()
	<-p.done
	return err
}
