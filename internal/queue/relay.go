package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/facewatch/pkg/dto"
)

// EventSink receives relayed events. The WebSocket hub implements it.
type EventSink interface {
	PublishResult(ctx context.Context, cameraID string, r dto.DetectionResult) error
	PublishError(ctx context.Context, cameraID string, e dto.DetectionError) error
}

// Relay forwards events published by workers to a local sink, keyed by the
// camera id carried in the payload.
type Relay struct {
	sink EventSink
}

func NewRelay(sink EventSink) *Relay {
	return &Relay{sink: sink}
}

func (r *Relay) Handler() MessageHandler {
	return func(ctx context.Context, msg jetstream.Msg) error {
		return r.Handle(ctx, msg.Subject(), msg.Data())
	}
}

// Handle decodes one event. Malformed payloads are dropped without error so
// they are acked and not redelivered.
func (r *Relay) Handle(ctx context.Context, subject string, data []byte) error {
	switch {
	case strings.HasPrefix(subject, ResultsSubjectBase+"."):
		var res dto.DetectionResult
		if err := json.Unmarshal(data, &res); err != nil {
			return nil
		}
		if err := r.sink.PublishResult(ctx, res.CameraID, res); err != nil {
			return fmt.Errorf("relay result: %w", err)
		}
	case strings.HasPrefix(subject, ErrorsSubjectBase+"."):
		var e dto.DetectionError
		if err := json.Unmarshal(data, &e); err != nil {
			return nil
		}
		if err := r.sink.PublishError(ctx, e.CameraID, e); err != nil {
			return fmt.Errorf("relay error: %w", err)
		}
	}
	return nil
}
