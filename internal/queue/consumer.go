package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	maxDeliveries = 3
	fetchWait     = 5 * time.Second
	eventBatch    = 10
)

// MessageHandler processes one message. Returning nil acks it; an error
// asks for redelivery until maxDeliveries is reached.
type MessageHandler func(ctx context.Context, msg jetstream.Msg) error

type Consumer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewConsumer(natsURL string) (*Consumer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Consumer{nc: nc, js: js}, nil
}

// ConsumeDetections hands queued detection tasks to workerCount goroutines.
// All workers share one durable consumer, so each task runs once.
func (c *Consumer) ConsumeDetections(ctx context.Context, consumerName string, handler MessageHandler, workerCount int) error {
	cons, err := c.durable(ctx, DetectionsStreamName, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    maxDeliveries,
		FilterSubject: DetectionsSubjectBase + ".>",
	})
	if err != nil {
		return err
	}

	tasks := make(chan jetstream.Msg, workerCount*2)
	go func() {
		defer close(tasks)
		pull(ctx, consumerName, cons, workerCount, func(msg jetstream.Msg) bool {
			select {
			case tasks <- msg:
				return true
			case <-ctx.Done():
				return false
			}
		})
	}()

	for i := 0; i < workerCount; i++ {
		go func(worker int) {
			for msg := range tasks {
				settle(ctx, msg, handler, "worker", worker)
			}
		}(i)
	}

	slog.Info("detection consumer started", "consumer", consumerName, "workers", workerCount)
	return nil
}

// ConsumeEvents feeds worker results and errors to handler in order. Each API
// instance passes its own consumer name so every instance sees every event.
func (c *Consumer) ConsumeEvents(ctx context.Context, consumerName string, handler MessageHandler) error {
	cons, err := c.durable(ctx, EventsStreamName, jetstream.ConsumerConfig{
		Name:              consumerName,
		Durable:           consumerName,
		AckPolicy:         jetstream.AckExplicitPolicy,
		AckWait:           10 * time.Second,
		MaxDeliver:        maxDeliveries,
		FilterSubject:     EventsSubjectBase + ".>",
		DeliverPolicy:     jetstream.DeliverNewPolicy,
		InactiveThreshold: 10 * time.Minute,
	})
	if err != nil {
		return err
	}

	go pull(ctx, consumerName, cons, eventBatch, func(msg jetstream.Msg) bool {
		settle(ctx, msg, handler)
		return true
	})

	slog.Info("event consumer started", "consumer", consumerName)
	return nil
}

func (c *Consumer) Close() {
	c.nc.Close()
}

func (c *Consumer) durable(ctx context.Context, streamName string, cfg jetstream.ConsumerConfig) (jetstream.Consumer, error) {
	stream, err := c.js.Stream(ctx, streamName)
	if err != nil {
		return nil, fmt.Errorf("get stream %s: %w", streamName, err)
	}
	cons, err := stream.CreateOrUpdateConsumer(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create consumer %s: %w", cfg.Name, err)
	}
	return cons, nil
}

// pull fetches batches until ctx ends or deliver reports that it stopped
// accepting messages.
func pull(ctx context.Context, name string, cons jetstream.Consumer, batch int, deliver func(jetstream.Msg) bool) {
	for ctx.Err() == nil {
		msgs, err := cons.Fetch(batch, jetstream.FetchMaxWait(fetchWait))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("fetch messages", "consumer", name, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		for msg := range msgs.Messages() {
			if !deliver(msg) {
				return
			}
		}
	}
}

// settle runs handler and acknowledges the outcome. Failed messages are
// redelivered with a delay that grows per attempt and terminated on the last.
func settle(ctx context.Context, msg jetstream.Msg, handler MessageHandler, logAttrs ...any) {
	err := handler(ctx, msg)
	if err == nil {
		_ = msg.Ack()
		return
	}

	attempt := uint64(1)
	if md, mdErr := msg.Metadata(); mdErr == nil {
		attempt = md.NumDelivered
	}
	log := slog.With(logAttrs...).With("subject", msg.Subject(), "attempt", attempt, "error", err)

	if attempt >= maxDeliveries {
		log.Error("message failed on final delivery")
		_ = msg.Term()
		return
	}
	log.Warn("message failed, redelivering")
	_ = msg.NakWithDelay(time.Duration(attempt) * time.Second)
}
