// Package events публикует события жизненного цикла заявок.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/orderbot/internal/model"
)

// Type описывает тип события заявки.
type Type string

const (
	OrderCreated   Type = "order.created"
	OrderPaid      Type = "order.paid"
	OrderCancelled Type = "order.cancelled"
	OrderExpired   Type = "order.expired"
)

// OrderEvent описывает изменение заявки. ID позволяет потребителю отбросить повторную доставку.
type OrderEvent struct {
	ID             string            `json:"id"`
	Type           Type              `json:"type"`
	OrderNumber    int64             `json:"order_number"`
	UserID         int64             `json:"user_id"`
	Status         model.OrderStatus `json:"status"`
	PaymentMethod  string            `json:"payment_method,omitempty"`
	AmountBase     decimal.Decimal   `json:"amount_base"`
	AmountCurrency decimal.Decimal   `json:"amount_currency"`
	CurrencyCode   string            `json:"currency_code,omitempty"`
	OccurredAt     time.Time         `json:"occurred_at"`
}

// NewOrderEvent собирает событие из заявки.
func NewOrderEvent(t Type, o model.Order, at time.Time) OrderEvent {
	return OrderEvent{
		ID:             uuid.NewString(),
		Type:           t,
		OrderNumber:    o.Number,
		UserID:         o.UserID,
		Status:         o.Status,
		PaymentMethod:  o.PaymentMethod,
		AmountBase:     o.AmountBase,
		AmountCurrency: o.AmountCurrency,
		CurrencyCode:   o.CurrencyCode,
		OccurredAt:     at.UTC(),
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher пишет события в топик Kafka. Ключ сообщения равен номеру заявки,
// поэтому события одной заявки попадают в одну партицию.
type KafkaPublisher struct {
	writer messageWriter
}

// ParseBrokers разбирает список брокеров, заданный через запятую.
func ParseBrokers(csv string) []string {
	var brokers []string
	for _, b := range strings.Split(csv, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// NewKafkaPublisher создаёт publisher для указанных брокеров и топика.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
			WriteTimeout:           5 * time.Second,
		},
	}
}

// Publish отправляет событие.
func (p *KafkaPublisher) Publish(ctx context.Context, e OrderEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(e.OrderNumber, 10)),
		Value: data,
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
			{Key: "event_id", Value: []byte(e.ID)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write event %s: %w", e.Type, err)
	}
	return nil
}

// Close сбрасывает буферы и закрывает соединения.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher отбрасывает события. Используется, когда брокеры не заданы.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, OrderEvent) error { return nil }

func (NopPublisher) Close() error { return nil }
