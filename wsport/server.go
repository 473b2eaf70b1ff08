package wsport

import (
	"net/http"

	"github.com/gorilla/websocket"
	offload "github.com/xizhibei/go-offload"
	"go.uber.org/zap"
)

// Handler upgrades each request to a websocket and serves w on it until the
// connection closes.
func Handler(w *offload.Worker) http.Handler {
	log := zap.S().With("module", "offload.ws.server", "worker", w.Name())
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(rw, r, nil)
		if err != nil {
			log.Errorf("Upgrade: %v", err)
			return
		}

		port := NewPort(conn)
		idx := w.Serve(port)
		log.Infof("Controller connected from %s", r.RemoteAddr)

		<-port.Done()
		port.OffMessage(idx)
		log.Infof("Controller %s disconnected", r.RemoteAddr)
	})
}
