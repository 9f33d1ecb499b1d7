// Package kafka publishes audit events to a Kafka topic with franz-go.
// Kafka is a sink here: querying happens against the materialized store, so
// ListByUser is intentionally unsupported.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	id "shopgate/pkg/domain"
	audit "shopgate/pkg/platform/audit"
	"shopgate/pkg/platform/sentinel"
)

type Publisher struct {
	client *kgo.Client
	topic  string
}

// payload is the JSON structure written to the topic. Field names are stable
// so downstream consumers can deserialize without this package.
type payload struct {
	ID        string `json:"id"`
	Category  string `json:"category"`
	Timestamp string `json:"timestamp"`
	UserID    string `json:"user_id,omitempty"`
	Action    string `json:"action"`
	Decision  string `json:"decision,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Scope     string `json:"scope,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	ActorID   string `json:"actor_id,omitempty"`
}

// New connects a producer and ensures the topic exists. Topic creation is
// idempotent so multiple gateway replicas can race it safely.
func New(ctx context.Context, brokers []string, topic string) (*Publisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	adm := kadm.NewClient(client)
	if _, err := adm.CreateTopic(ctx, 1, 1, nil, topic); err != nil {
		// Already-exists responses come back as errors from kadm; ignore
		// anything but a transport failure by probing metadata.
		if _, merr := adm.ListTopics(ctx, topic); merr != nil {
			client.Close()
			return nil, fmt.Errorf("ensure audit topic: %w", err)
		}
	}

	return &Publisher{client: client, topic: topic}, nil
}

// Append produces one event, keyed by user ID so per-user ordering holds.
func (p *Publisher) Append(ctx context.Context, event audit.Event) error {
	msg := payload{
		ID:        uuid.NewString(),
		Category:  string(event.Category),
		Timestamp: event.Timestamp.Format(time.RFC3339Nano),
		Action:    event.Action,
		Decision:  event.Decision,
		Reason:    event.Reason,
		Scope:     event.Scope,
		RequestID: event.RequestID,
		ActorID:   event.ActorID,
	}
	if !event.UserID.IsNil() {
		msg.UserID = event.UserID.String()
	}

	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(msg.UserID),
		Value: value,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

// ListByUser is unsupported on the Kafka sink.
func (p *Publisher) ListByUser(context.Context, id.UserID) ([]audit.Event, error) {
	return nil, sentinel.ErrUnavailable
}

func (p *Publisher) Close() {
	p.client.Close()
}
