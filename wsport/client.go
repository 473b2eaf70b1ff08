package wsport

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	offload "github.com/xizhibei/go-offload"
)

// Dial connects to a worker served by Handler at url ("ws://host/path").
func Dial(ctx context.Context, url string) (*Port, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", url)
	}
	return NewPort(conn), nil
}

// Host reaches a worker served over websocket.
type Host struct {
	URL string
}

// Spawn dials the worker and returns the controller's end of the connection.
func (h *Host) Spawn(ctx context.Context) (offload.Port, error) {
	port, err := Dial(ctx, h.URL)
	if err != nil {
		return nil, err
	}
	return port, nil
}
