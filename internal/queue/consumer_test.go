package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
)

// fakeMsg records how a message was settled. Methods not overridden panic.
type fakeMsg struct {
	jetstream.Msg
	delivered uint64

	acked    bool
	nakDelay time.Duration
	nakked   bool
	termed   bool
}

func (m *fakeMsg) Subject() string { return "detections.cam" }

func (m *fakeMsg) Metadata() (*jetstream.MsgMetadata, error) {
	return &jetstream.MsgMetadata{NumDelivered: m.delivered}, nil
}

func (m *fakeMsg) Ack() error {
	m.acked = true
	return nil
}

func (m *fakeMsg) NakWithDelay(d time.Duration) error {
	m.nakked = true
	m.nakDelay = d
	return nil
}

func (m *fakeMsg) Term() error {
	m.termed = true
	return nil
}

func TestSettle(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name      string
		delivered uint64
		err       error
		wantAck   bool
		wantNak   time.Duration
		wantTerm  bool
	}{
		{name: "success acks", delivered: 1, wantAck: true},
		{name: "first failure naks", delivered: 1, err: boom, wantNak: time.Second},
		{name: "second failure backs off", delivered: 2, err: boom, wantNak: 2 * time.Second},
		{name: "last delivery terminates", delivered: maxDeliveries, err: boom, wantTerm: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &fakeMsg{delivered: tt.delivered}
			settle(context.Background(), msg, func(context.Context, jetstream.Msg) error { return tt.err })

			assert.Equal(t, tt.wantAck, msg.acked)
			assert.Equal(t, tt.wantNak != 0, msg.nakked)
			assert.Equal(t, tt.wantNak, msg.nakDelay)
			assert.Equal(t, tt.wantTerm, msg.termed)
		})
	}
}
