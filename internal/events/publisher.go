// Package events publishes order and payment lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/dukalink/checkout-service/internal/order"
	"github.com/dukalink/checkout-service/internal/payment"
)

const (
	TypeOrderCreated     = "order.created"
	TypePaymentCompleted = "payment.completed"
)

type envelope struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

type Publisher struct {
	writer *kafka.Writer
}

func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
		},
	}
}

func (p *Publisher) PublishOrderCreated(ctx context.Context, o *order.Order) error {
	return p.publish(ctx, TypeOrderCreated, o.ID.String(), o)
}

func (p *Publisher) PublishPaymentCompleted(ctx context.Context, tx *payment.Transaction) error {
	return p.publish(ctx, TypePaymentCompleted, tx.CheckoutRequestID, tx)
}

func (p *Publisher) publish(ctx context.Context, eventType, key string, payload any) error {
	body, err := json.Marshal(envelope{
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	})
	if err != nil {
		return fmt.Errorf("events: failed to marshal %s event: %w", eventType, err)
	}

	msg := kafka.Message{
		Key:   []byte(fmt.Sprintf("%s-%s", eventType, key)),
		Value: body,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("events: failed to write %s event: %w", eventType, err)
	}

	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
