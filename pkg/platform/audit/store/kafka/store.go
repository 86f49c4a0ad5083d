// Package kafka streams audit events to a Kafka topic. Append waits for the
// broker acknowledgement, so a failed produce fails the calling operation.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "rxvc/pkg/platform/audit"
)

// Producer is the subset of *kgo.Client used by the store.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Store produces audit events keyed by subject, so every event for one
// credential lands on the same partition in order.
type Store struct {
	producer Producer
	topic    string
}

// New creates a Kafka-backed audit store.
func New(producer Producer, topic string) *Store {
	return &Store{producer: producer, topic: topic}
}

// payload is the JSON structure published to Kafka.
type payload struct {
	ID               string `json:"id"`
	Category         string `json:"category"`
	Timestamp        string `json:"timestamp"`
	ActorID          string `json:"actorId"`
	Subject          string `json:"subject"`
	Action           string `json:"action"`
	Decision         string `json:"decision,omitempty"`
	Reason           string `json:"reason,omitempty"`
	RequestID        string `json:"requestId,omitempty"`
	Client           string `json:"client,omitempty"`
	TokenFingerprint string `json:"tokenFingerprint,omitempty"`
	FrameVersion     string `json:"frameVersion,omitempty"`
	EntryHash        string `json:"entryHash,omitempty"`
}

// Append publishes event and waits for the acknowledgement.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	body, err := json.Marshal(payload{
		ID:               event.ID,
		Category:         string(audit.AuditEvent(event.Action).Category()),
		Timestamp:        event.Timestamp.UTC().Format(time.RFC3339Nano),
		ActorID:          event.ActorID,
		Subject:          event.Subject,
		Action:           event.Action,
		Decision:         event.Decision,
		Reason:           event.Reason,
		RequestID:        event.RequestID,
		Client:           event.Client,
		TokenFingerprint: event.TokenFingerprint,
		FrameVersion:     event.FrameVersion,
		EntryHash:        event.EntryHash,
	})
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	rec := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.Subject),
		Value: body,
		Headers: []kgo.RecordHeader{
			{Key: "event_id", Value: []byte(event.ID)},
			{Key: "action", Value: []byte(event.Action)},
		},
	}
	if err := s.producer.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

// Decode parses a record produced by Append (consumers, tests).
func Decode(rec *kgo.Record) (audit.Event, error) {
	var p payload
	if err := json.Unmarshal(rec.Value, &p); err != nil {
		return audit.Event{}, fmt.Errorf("decode audit payload: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, p.Timestamp)
	if err != nil {
		return audit.Event{}, fmt.Errorf("decode audit timestamp: %w", err)
	}
	return audit.Event{
		ID:               p.ID,
		Category:         audit.EventCategory(p.Category),
		Timestamp:        ts,
		ActorID:          p.ActorID,
		Subject:          p.Subject,
		Action:           p.Action,
		Decision:         p.Decision,
		Reason:           p.Reason,
		RequestID:        p.RequestID,
		Client:           p.Client,
		TokenFingerprint: p.TokenFingerprint,
		FrameVersion:     p.FrameVersion,
		EntryHash:        p.EntryHash,
	}, nil
}
