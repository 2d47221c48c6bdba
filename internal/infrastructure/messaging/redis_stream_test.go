package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pestctl/internal/core/id"
	"pestctl/internal/domain/events"
	"pestctl/internal/infrastructure/storage/postgres"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestStreamPublisher_Handle(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()
	pub := NewStreamPublisher(client, "pestctl.events")

	msg := &postgres.OutboxMessage{
		ID:            id.New(),
		AggregateType: events.AggregateMovement,
		AggregateID:   id.New(),
		EventType:     events.MovementCreated,
		Payload:       []byte(`{"number":"MI-2026-00001","kind":"ISSUE"}`),
		CreatedAt:     time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
	}
	require.NoError(t, pub.Handle(ctx, msg))

	entries, err := client.XRange(ctx, "pestctl.events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	values := entries[0].Values
	assert.Equal(t, msg.ID.String(), values["message_id"])
	assert.Equal(t, events.MovementCreated, values["event_type"])
	assert.Equal(t, msg.AggregateID.String(), values["aggregate_id"])
	assert.JSONEq(t, string(msg.Payload), values["payload"].(string))
	assert.Equal(t, "2026-03-01T09:30:00Z", values["created_at"])
}

func TestStreamPublisher_PreservesOrder(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()
	pub := NewStreamPublisher(client, "pestctl.events").WithMaxLen(0)

	types := []string{events.MovementCreated, events.ApprovalResolved, events.IssueReceived}
	for _, et := range types {
		require.NoError(t, pub.Handle(ctx, &postgres.OutboxMessage{
			ID: id.New(), AggregateID: id.New(), EventType: et, Payload: []byte(`{}`),
		}))
	}

	entries, err := client.XRange(ctx, "pestctl.events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, len(types))
	for i, et := range types {
		assert.Equal(t, et, entries[i].Values["event_type"])
	}
}

func TestStreamPublisher_ErrorWhenRedisDown(t *testing.T) {
	mr, client := newTestClient(t)
	mr.Close()

	err := NewStreamPublisher(client, "pestctl.events").Handle(context.Background(), &postgres.OutboxMessage{
		ID: id.New(), AggregateID: id.New(), EventType: events.MovementCreated, Payload: []byte(`{}`),
	})
	assert.Error(t, err)
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), mr.Addr())
	require.NoError(t, err)
	require.NoError(t, client.Close())

	addr := mr.Addr()
	mr.Close()
	_, err = NewRedisClient(context.Background(), addr)
	assert.Error(t, err)
}
