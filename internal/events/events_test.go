package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/orderbot/internal/model"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisherKeysByOrderNumber(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w}

	o := model.Order{
		Number:         10207903,
		UserID:         5,
		Status:         model.OrderStatusPaid,
		PaymentMethod:  "usdt",
		AmountBase:     decimal.NewFromInt(100),
		AmountCurrency: decimal.RequireFromString("1.11111111"),
		CurrencyCode:   "USDT",
	}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, p.Publish(context.Background(), NewOrderEvent(OrderPaid, o, at)))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "10207903", string(msg.Key))
	assert.Equal(t, at, msg.Time)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "order.paid", string(msg.Headers[0].Value))

	var got OrderEvent
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, OrderPaid, got.Type)
	assert.Equal(t, model.OrderStatusPaid, got.Status)
	assert.True(t, got.AmountCurrency.Equal(o.AmountCurrency))
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, got.ID, string(msg.Headers[1].Value))

	other := NewOrderEvent(OrderPaid, o, at)
	assert.NotEqual(t, got.ID, other.ID)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisherWrapsWriteError(t *testing.T) {
	boom := errors.New("broker down")
	p := &KafkaPublisher{writer: &fakeWriter{err: boom}}

	err := p.Publish(context.Background(), OrderEvent{Type: OrderCreated, OrderNumber: 1})
	assert.ErrorIs(t, err, boom)
}

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, ParseBrokers(" a:9092, ,b:9092 "))
	assert.Empty(t, ParseBrokers(""))
}
