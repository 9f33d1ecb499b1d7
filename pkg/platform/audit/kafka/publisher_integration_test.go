//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	id "shopgate/pkg/domain"
	"shopgate/pkg/platform/audit"
	auditkafka "shopgate/pkg/platform/audit/kafka"
	"shopgate/pkg/platform/sentinel"
	"shopgate/pkg/testutil/containers"
)

func TestPublishAndConsumeRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	broker := containers.NewRedpandaContainer(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	const topic = "shopgate.audit.test"
	publisher, err := auditkafka.New(ctx, broker.Brokers, topic)
	require.NoError(t, err)
	t.Cleanup(publisher.Close)

	// Topic creation must be idempotent across replicas.
	second, err := auditkafka.New(ctx, broker.Brokers, topic)
	require.NoError(t, err)
	second.Close()

	userID := id.NewUserID()
	event := audit.Event{
		Category:  audit.CategorySecurity,
		Timestamp: time.Now(),
		UserID:    userID,
		Action:    string(audit.EventAdminGranted),
		Scope:     "scope-1",
		RequestID: "req-123",
	}
	require.NoError(t, publisher.Append(ctx, event))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	t.Cleanup(consumer.Close)

	fetches := consumer.PollFetches(ctx)
	require.NoError(t, fetches.Err())
	records := fetches.Records()
	require.Len(t, records, 1)

	// Keyed by user so per-user ordering survives partitioning.
	require.Equal(t, userID.String(), string(records[0].Key))

	var got map[string]any
	require.NoError(t, json.Unmarshal(records[0].Value, &got))
	require.Equal(t, string(audit.EventAdminGranted), got["action"])
	require.Equal(t, userID.String(), got["user_id"])
	require.Equal(t, "scope-1", got["scope"])
}

func TestListByUserUnsupported(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	broker := containers.NewRedpandaContainer(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	publisher, err := auditkafka.New(ctx, broker.Brokers, "shopgate.audit.test")
	require.NoError(t, err)
	t.Cleanup(publisher.Close)

	_, err = publisher.ListByUser(ctx, id.NewUserID())
	require.True(t, errors.Is(err, sentinel.ErrUnavailable))
}
