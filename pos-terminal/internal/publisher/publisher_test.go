package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/fjod/go_pos/pos-terminal/internal/domain"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type writerMock struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (m *writerMock) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if m.err != nil {
		return m.err
	}
	m.msgs = append(m.msgs, msgs...)
	return nil
}

func (m *writerMock) Close() error {
	m.closed = true
	return nil
}

func testReceipt() domain.Receipt {
	pen := domain.Product{ID: 1, Code: "4589901001018", Name: "pen", Price: 100}
	note := domain.Product{ID: 2, Code: "4589901001025", Name: "notebook", Price: 250}
	return domain.Receipt{
		TransactionID: "42",
		ItemsCount:    3,
		TotalAmount:   450,
		TotalWithTax:  495,
		Lines:         []domain.CartLine{{Product: pen}, {Product: pen}, {Product: note}},
		CompletedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestPublish_WritesReceiptEvent(t *testing.T) {
	w := &writerMock{}
	p := &KafkaReceiptPublisher{writer: w}

	require.NoError(t, p.Publish(context.Background(), testReceipt()))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "42", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, EventTypeCompleted, string(msg.Headers[0].Value))

	var event ReceiptEvent
	require.NoError(t, json.Unmarshal(msg.Value, &event))
	assert.Equal(t, "42", event.TransactionID)
	assert.Equal(t, 3, event.ItemsCount)
	assert.Equal(t, int64(450), event.TotalAmount)
	assert.Equal(t, int64(495), event.TotalWithTax)
	require.Len(t, event.Items, 2)
	assert.Equal(t, 2, event.Items[0].Quantity)
	assert.Equal(t, int64(200), event.Items[0].Subtotal)
}

func TestPublish_WriterError(t *testing.T) {
	w := &writerMock{err: errors.New("leader not available")}
	p := &KafkaReceiptPublisher{writer: w}

	err := p.Publish(context.Background(), testReceipt())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "42")
}

func TestClose(t *testing.T) {
	w := &writerMock{}
	p := &KafkaReceiptPublisher{writer: w}

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestNewKafkaReceiptPublisher_DefaultTopic(t *testing.T) {
	p := NewKafkaReceiptPublisher("", "localhost:9092")
	kw, ok := p.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, DefaultTopic, kw.Topic)
}

func TestNoop(t *testing.T) {
	var p ReceiptPublisher = Noop{}
	assert.NoError(t, p.Publish(context.Background(), testReceipt()))
	assert.NoError(t, p.Close())
}
