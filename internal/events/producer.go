package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

const (
	PurchaseInitialized = "purchase.initialized"
	PurchaseVerified    = "purchase.verified"
	PurchaseFailed      = "purchase.failed"
)

type PurchaseEvent struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Reference     string          `json:"reference"`
	SessionID     string          `json:"sessionId"`
	Method        string          `json:"method"`
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	AttendeeEmail string          `json:"attendeeEmail,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	OccurredAt    time.Time       `json:"occurredAt"`
}

func NewPurchaseEvent(eventType, reference string, now time.Time) PurchaseEvent {
	return PurchaseEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		Reference:  reference,
		OccurredAt: now.UTC(),
	}
}

type Producer struct {
	brokers    []string
	writer     *kafka.Writer
	maxRetries int
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}

	return &Producer{
		brokers:    brokers,
		writer:     writer,
		maxRetries: 3,
	}
}

func (p *Producer) Publish(ctx context.Context, key string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
	}

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}
	return nil
}

func (p *Producer) PublishWithRetry(ctx context.Context, key string, payload interface{}, maxRetries int) error {
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		err := p.Publish(ctx, key, payload)
		if err == nil {
			return nil
		}

		lastErr = err
		log.Printf("Publish attempt %d for %s failed: %v", i+1, key, err)

		if i < maxRetries-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(i+1) * 500 * time.Millisecond):
			}
		}
	}

	return fmt.Errorf("failed after %d retries: %w", maxRetries, lastErr)
}

// PublishPurchaseEvent keys by reference so one purchase's events stay
// ordered on a single partition.
func (p *Producer) PublishPurchaseEvent(ctx context.Context, event PurchaseEvent) error {
	return p.PublishWithRetry(ctx, event.Reference, event, p.maxRetries)
}

func (p *Producer) CheckConnection(ctx context.Context) error {
	if len(p.brokers) == 0 {
		return fmt.Errorf("no Kafka brokers configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", p.brokers[0])
	if err != nil {
		return fmt.Errorf("failed to connect to Kafka: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Brokers(); err != nil {
		return fmt.Errorf("failed to read brokers: %w", err)
	}
	return nil
}

func (p *Producer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}
