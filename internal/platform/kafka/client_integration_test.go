//go:build integration

package kafka_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"rxvc/internal/platform/config"
	"rxvc/internal/platform/kafka"
	audit "rxvc/pkg/platform/audit"
	kafkastore "rxvc/pkg/platform/audit/store/kafka"
	"rxvc/pkg/testutil/containers"
)

func TestAuditStreamRoundTrip(t *testing.T) {
	rp := containers.NewRedpandaContainer(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cfg := config.KafkaConfig{Brokers: rp.Brokers, Topic: "rxvc.audit.it"}
	producer, err := kafka.NewProducer(cfg)
	require.NoError(t, err)
	defer producer.Close()

	require.NoError(t, kafka.Health(ctx, producer))
	require.NoError(t, kafka.EnsureTopic(ctx, producer, cfg.Topic, 3, 1))
	require.NoError(t, kafka.EnsureTopic(ctx, producer, cfg.Topic, 3, 1), "existing topic is not an error")

	store := kafkastore.New(producer, cfg.Topic)
	at := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.Append(ctx, audit.Event{
		Timestamp: at,
		ActorID:   "did:example:auditor",
		Subject:   "urn:uuid:rx-1",
		Action:    string(audit.EventAuditFullDisclosure),
		EntryHash: "abc123",
	}))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(rp.Brokers...),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	var records []*kgo.Record
	for len(records) == 0 {
		fetches := consumer.PollFetches(ctx)
		require.NoError(t, ctx.Err())
		fetches.EachRecord(func(r *kgo.Record) { records = append(records, r) })
	}

	require.Len(t, records, 1)
	assert.Equal(t, "urn:uuid:rx-1", string(records[0].Key))
	got, err := kafkastore.Decode(records[0])
	require.NoError(t, err)
	assert.Equal(t, "abc123", got.EntryHash)
	assert.True(t, got.Timestamp.Equal(at))
}
