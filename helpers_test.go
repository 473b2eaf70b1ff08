package offload_test

import (
	"context"
	"encoding/json"
	"time"

	offload "github.com/xizhibei/go-offload"
	"github.com/xizhibei/go-offload/codec"
)

// replyRecorder decodes every frame arriving on a port.
type replyRecorder struct {
	replies chan *offload.Message
}

func recordReplies(port offload.Port) *replyRecorder {
	r := &replyRecorder{replies: make(chan *offload.Message, 64)}
	port.OnMessage(func(data []byte) {
		var msg offload.Message
		if err := codec.Default().Unmarshal(data, &msg); err != nil {
			return
		}
		r.replies <- &msg
	})
	return r
}

func (r *replyRecorder) next(timeout time.Duration) (*offload.Message, bool) {
	select {
	case msg := <-r.replies:
		return msg, true
	case <-time.After(timeout):
		return nil, false
	}
}

func postMessage(port offload.Port, msgType string, id uint64, payload interface{}) error {
	msg, err := offload.NewMessage(msgType, id, payload)
	if err != nil {
		return err
	}
	data, err := codec.Default().Marshal(msg)
	if err != nil {
		return err
	}
	return port.Post(context.Background(), data)
}

func postRaw(port offload.Port, msgType string, id uint64, payload string) error {
	data, err := codec.Default().Marshal(&offload.Message{
		Type:    msgType,
		ID:      id,
		Payload: json.RawMessage(payload),
	})
	if err != nil {
		return err
	}
	return port.Post(context.Background(), data)
}

func resultOf(msg *offload.Message) offload.Number {
	n := offload.NaN()
	if err := msg.Bind(&n); err != nil {
		return offload.NaN()
	}
	return n
}
