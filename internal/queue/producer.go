package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/facewatch/internal/models"
	"github.com/your-org/facewatch/pkg/dto"
)

const (
	DetectionsStreamName  = "DETECTIONS"
	DetectionsSubjectBase = "detections"
	EventsStreamName      = "EVENTS"
	EventsSubjectBase     = "events"

	ResultsSubjectBase = EventsSubjectBase + ".results"
	ErrorsSubjectBase  = EventsSubjectBase + ".errors"
)

type Producer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func connect(natsURL string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create jetstream context: %w", err)
	}
	return nc, js, nil
}

func NewProducer(natsURL string) (*Producer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Producer{nc: nc, js: js}, nil
}

// streamConfigs describes the two streams: a work queue of detection tasks
// and a short-lived fan-out of results and errors.
func streamConfigs() []jetstream.StreamConfig {
	return []jetstream.StreamConfig{
		{
			Name:        DetectionsStreamName,
			Description: "Queued detection submissions",
			Subjects:    []string{DetectionsSubjectBase + ".>"},
			Retention:   jetstream.WorkQueuePolicy,
			Storage:     jetstream.FileStorage,
			Discard:     jetstream.DiscardOld,
			MaxAge:      time.Hour,
			MaxMsgs:     100_000,
			Duplicates:  30 * time.Second,
		},
		{
			Name:        EventsStreamName,
			Description: "Detection results and errors for realtime subscribers",
			Subjects:    []string{EventsSubjectBase + ".>"},
			Retention:   jetstream.InterestPolicy,
			Storage:     jetstream.FileStorage,
			MaxAge:      time.Hour,
			MaxMsgs:     1_000_000,
		},
	}
}

// EnsureStreams creates or updates both streams, waiting up to
// streamSetupAttempts seconds for JetStream to come up.
func (p *Producer) EnsureStreams(ctx context.Context) error {
	const streamSetupAttempts = 30

	pending := streamConfigs()
	for attempt := 1; ; attempt++ {
		var err error
		pending, err = p.createStreams(ctx, pending)
		if err == nil {
			return nil
		}
		if attempt == streamSetupAttempts {
			return fmt.Errorf("ensure streams after %d attempts: %w", attempt, err)
		}
		slog.Warn("ensure nats streams, retrying", "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

// createStreams applies each config in order and returns the ones not yet
// created, starting with the first failure.
func (p *Producer) createStreams(ctx context.Context, cfgs []jetstream.StreamConfig) ([]jetstream.StreamConfig, error) {
	for i, cfg := range cfgs {
		opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, err := p.js.CreateOrUpdateStream(opCtx, cfg)
		cancel()
		if err != nil {
			return cfgs[i:], fmt.Errorf("stream %s: %w", cfg.Name, err)
		}
		slog.Info("nats stream ready", "stream", cfg.Name)
	}
	return nil, nil
}

// PublishTask enqueues a detection task for the workers. The task id is used
// as the message id so retried publishes are deduplicated.
func (p *Producer) PublishTask(ctx context.Context, task models.DetectionTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal detection task: %w", err)
	}

	subject := DetectionsSubjectBase + "." + SubjectToken(task.Meta.CameraID)
	_, err = p.js.Publish(ctx, subject, payload, jetstream.WithMsgID(task.TaskID.String()))
	if err != nil {
		return fmt.Errorf("publish detection task: %w", err)
	}
	return nil
}

// PublishResult relays a recorded detection to the API processes.
func (p *Producer) PublishResult(ctx context.Context, cameraID string, r dto.DetectionResult) error {
	return p.publishEvent(ctx, ResultsSubjectBase+"."+SubjectToken(cameraID), r)
}

// PublishError relays a failed submission to the API processes.
func (p *Producer) PublishError(ctx context.Context, cameraID string, e dto.DetectionError) error {
	return p.publishEvent(ctx, ErrorsSubjectBase+"."+SubjectToken(cameraID), e)
}

func (p *Producer) publishEvent(ctx context.Context, subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	_, err = p.js.Publish(ctx, subject, payload)
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// QueueDepth returns the number of pending messages in the DETECTIONS stream.
func (p *Producer) QueueDepth(ctx context.Context) (uint64, error) {
	stream, err := p.js.Stream(ctx, DetectionsStreamName)
	if err != nil {
		return 0, err
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return 0, err
	}
	return info.State.Msgs, nil
}

func (p *Producer) Ping() error {
	if !p.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

func (p *Producer) Close() {
	p.nc.Close()
}

// SubjectToken maps a camera id to a single NATS subject token.
func SubjectToken(s string) string {
	if s == "" {
		return "_"
	}
	b := []byte(s)
	for i, c := range b {
		switch c {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			b[i] = '_'
		}
	}
	return string(b)
}
