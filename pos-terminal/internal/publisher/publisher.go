// Package publisher emits completed purchases to downstream consumers.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fjod/go_pos/pos-terminal/internal/cart"
	"github.com/fjod/go_pos/pos-terminal/internal/domain"
	"github.com/segmentio/kafka-go"
)

const (
	DefaultTopic       = "pos-receipts"
	EventTypeCompleted = "purchase.completed"
)

type ReceiptPublisher interface {
	Publish(ctx context.Context, r domain.Receipt) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaReceiptPublisher struct {
	writer messageWriter
}

func NewKafkaReceiptPublisher(topic string, brokers ...string) *KafkaReceiptPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return &KafkaReceiptPublisher{writer: w}
}

// ReceiptEvent is the message value written for every completed purchase.
type ReceiptEvent struct {
	TransactionID string               `json:"transaction_id"`
	ItemsCount    int                  `json:"items_count"`
	TotalAmount   int64                `json:"total_amount"`
	TotalWithTax  int64                `json:"total_with_tax"`
	Items         []domain.GroupedLine `json:"items"`
	CompletedAt   time.Time            `json:"completed_at"`
}

func NewReceiptEvent(r domain.Receipt) ReceiptEvent {
	return ReceiptEvent{
		TransactionID: r.TransactionID.String(),
		ItemsCount:    r.ItemsCount,
		TotalAmount:   r.TotalAmount,
		TotalWithTax:  r.TotalWithTax,
		Items:         cart.Group(r.Lines),
		CompletedAt:   r.CompletedAt,
	}
}

func (p *KafkaReceiptPublisher) Publish(ctx context.Context, r domain.Receipt) error {
	payload, err := json.Marshal(NewReceiptEvent(r))
	if err != nil {
		return fmt.Errorf("marshal receipt: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(r.TransactionID.String()),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventTypeCompleted)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write receipt %s: %w", r.TransactionID, err)
	}
	return nil
}

func (p *KafkaReceiptPublisher) Close() error {
	return p.writer.Close()
}

// Noop drops every receipt. It is used when no brokers are configured.
type Noop struct{}

func (Noop) Publish(context.Context, domain.Receipt) error { return nil }
func (Noop) Close() error                                  { return nil }
