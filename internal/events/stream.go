package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/sheetcart-ai/ops-platform/internal/model"
)

const (
	// StreamName is the name of the domain-event stream.
	StreamName = "OPS"

	// SubjectOrderUpserted carries order.upserted events.
	SubjectOrderUpserted = "ops.orders.upserted"
	// SubjectConversationStart carries conversation.start events.
	SubjectConversationStart = "ops.conv.start"
	// SubjectConversationInbound carries conversation.user_message events.
	SubjectConversationInbound = "ops.conv.inbound"
)

// StreamManager handles JetStream stream operations.
type StreamManager struct {
	client *Client
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client) *StreamManager {
	return &StreamManager{client: client}
}

// EnsureStream ensures the domain-event stream exists.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil // Stream already exists
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{"ops.>"},
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      7 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Description: "Order ingestion and conversation domain events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

func (m *StreamManager) publish(ctx context.Context, subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := m.client.JetStream().Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	return nil
}

// PublishOrderUpserted emits an order.upserted event.
func (m *StreamManager) PublishOrderUpserted(ctx context.Context, evt model.OrderUpserted) error {
	return m.publish(ctx, SubjectOrderUpserted, evt)
}

// PublishConversationStart emits a conversation.start event.
func (m *StreamManager) PublishConversationStart(ctx context.Context, evt model.ConversationStart) error {
	return m.publish(ctx, SubjectConversationStart, evt)
}

// PublishConversationInbound emits a conversation.user_message event.
func (m *StreamManager) PublishConversationInbound(ctx context.Context, evt model.ConversationUserMessage) error {
	return m.publish(ctx, SubjectConversationInbound, evt)
}

// Handler processes one delivered event payload. Returning
// jetstream-retryable errors causes redelivery; ErrDrop terminates the
// message instead.
type Handler func(ctx context.Context, data []byte) error

// ErrDrop tells the consumer to terminate the message: the job failed in
// a way a retry cannot fix (configuration errors, malformed payloads).
var ErrDrop = errors.New("drop event")

// Consume starts a durable pull consumer for one subject with bounded
// concurrency. Delivery is at-least-once: handlers must be idempotent.
func (m *StreamManager) Consume(ctx context.Context, durable, subject string, concurrency int, handler Handler) (jetstream.ConsumeContext, error) {
	if concurrency <= 0 {
		concurrency = 1
	}

	consumer, err := m.client.JetStream().CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       durable,
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       2 * time.Minute,
		MaxDeliver:    5,
		MaxAckPending: concurrency,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer %s: %w", durable, err)
	}

	sem := make(chan struct{}, concurrency)
	log := m.client.logger.With(zap.String("consumer", durable))

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		sem <- struct{}{}
		go func() {
			defer func() { <-sem }()

			err := handler(ctx, msg.Data())
			switch {
			case err == nil:
				if ackErr := msg.Ack(); ackErr != nil {
					log.Warn("failed to ack message", zap.Error(ackErr))
				}
			case errors.Is(err, ErrDrop):
				log.Error("dropping event", zap.String("subject", msg.Subject()), zap.Error(err))
				if termErr := msg.Term(); termErr != nil {
					log.Warn("failed to term message", zap.Error(termErr))
				}
			default:
				log.Warn("event handling failed, will redeliver",
					zap.String("subject", msg.Subject()), zap.Error(err))
				if nakErr := msg.NakWithDelay(10 * time.Second); nakErr != nil {
					log.Warn("failed to nak message", zap.Error(nakErr))
				}
			}
		}()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start consumer %s: %w", durable, err)
	}
	return cc, nil
}
