// Package kafka publishes audit events to a Kafka topic using franz-go.
//
// The broker is the durable sink in multi-node deployments; downstream
// consumers fan events out to long-retention storage. Publishing is
// synchronous so compliance events keep fail-closed semantics.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	audit "tranche/pkg/platform/audit"
)

// DefaultTopic is the audit trail topic. Keyed by subject identity so a
// holder's history stays in one partition, in order.
const DefaultTopic = "tranche.audit.events"

// Publisher implements audit.Emitter against a Kafka cluster.
type Publisher struct {
	client *kgo.Client
	topic  string
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithTopic overrides the destination topic.
func WithTopic(topic string) Option {
	return func(p *Publisher) {
		p.topic = topic
	}
}

// New connects a producer to the given seed brokers.
func New(brokers []string, opts ...Option) (*Publisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.ProduceRequestTimeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	p := &Publisher{client: client, topic: DefaultTopic}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// wireEvent is the JSON structure published to the topic.
type wireEvent struct {
	ID        string `json:"id"`
	Category  string `json:"category"`
	Timestamp string `json:"timestamp"`
	Actor     string `json:"actor,omitempty"`
	Subject   string `json:"subject,omitempty"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Action    string `json:"action"`
	Amount    uint64 `json:"amount"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Device    string `json:"device,omitempty"`
}

// Emit produces the event and waits for broker acknowledgement.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	wire := wireEvent{
		ID:        event.ID.String(),
		Category:  string(event.Category),
		Timestamp: event.Timestamp.Format(time.RFC3339Nano),
		Action:    string(event.Action),
		Amount:    event.Amount,
		Reason:    event.Reason,
		RequestID: event.RequestID,
		Device:    event.Device,
	}
	if !event.Actor.IsNil() {
		wire.Actor = event.Actor.String()
	}
	if !event.Subject.IsNil() {
		wire.Subject = event.Subject.String()
	}
	if !event.From.IsNil() {
		wire.From = event.From.String()
	}
	if !event.To.IsNil() {
		wire.To = event.To.String()
	}

	payload, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(wire.Subject),
		Value: payload,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

// Close flushes and releases the underlying client.
func (p *Publisher) Close() {
	p.client.Close()
}
