package mqttport

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	offload "github.com/xizhibei/go-offload"
)

// Host reaches a worker served elsewhere through an MQTT broker.
type Host struct {
	Client   Client
	Prefix   string
	WorkerID string
	QoS      byte

	// WaitOnline, when set, makes Spawn wait that long for the worker to be
	// announced online on its status topic. A worker that stays offline is
	// reported as offload.ErrWorkersUnsupported.
	WaitOnline time.Duration
}

// Spawn returns the controller's end of the channel to the worker.
func (h *Host) Spawn(ctx context.Context) (offload.Port, error) {
	if h.WaitOnline > 0 {
		if err := h.waitOnline(ctx); err != nil {
			return nil, err
		}
	}

	return NewPort(
		h.Client,
		RequestTopic(h.Prefix, h.WorkerID),
		ResponseTopic(h.Prefix, h.WorkerID),
		h.QoS,
	), nil
}

func (h *Host) waitOnline(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, h.WaitOnline)
	defer cancel()

	online := make(chan struct{}, 1)
	topic := StatusTopic(h.Prefix, h.WorkerID)

	err := h.Client.SubscribeWait(ctx, topic, 1, func(_ string, payload []byte) {
		if string(payload) != StatusOnline {
			return
		}
		select {
		case online <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return errors.Wrapf(err, "subscribe %s", topic)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), unsubscribeTimeout)
		defer cancel()
		_ = h.Client.UnsubscribeWait(ctx, topic)
	}()

	select {
	case <-online:
		return nil
	case <-ctx.Done():
		return errors.Wrapf(offload.ErrWorkersUnsupported, "worker %s not online", h.WorkerID)
	}
}

// ServeWorker serves w on the request topic of workerID and publishes its
// replies on the response topic. Closing the returned port stops serving.
func ServeWorker(client Client, prefix, workerID string, qos byte, w *offload.Worker) *Port {
	port := NewPort(
		client,
		ResponseTopic(prefix, workerID),
		RequestTopic(prefix, workerID),
		qos,
	)
	w.Serve(port)
	return port
}
