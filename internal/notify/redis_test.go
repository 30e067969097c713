package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStreamObserver_Deliver(t *testing.T) {
	_, client := setupTestRedis(t)
	obs := NewRedisStreamObserver(client, "psurops:events", 100)
	ctx := context.Background()

	require.NoError(t, obs.Ping(ctx))

	e := Event{
		ID:        "evt-1",
		Seq:       7,
		Kind:      EventUpdate,
		Payload:   map[string]interface{}{"identifier": "TD001"},
		Timestamp: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, obs.Deliver(ctx, e))

	msgs, err := client.XRange(ctx, "psurops:events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	values := msgs[0].Values
	assert.Equal(t, "update", values["event_kind"])
	assert.Equal(t, "7", values["seq"])

	var decoded Event
	require.NoError(t, json.Unmarshal([]byte(values["data"].(string)), &decoded))
	assert.Equal(t, "TD001", decoded.Payload["identifier"])
}

func TestRedisStreamObserver_ThroughNotifier(t *testing.T) {
	_, client := setupTestRedis(t)
	n := New(Options{})
	defer n.Close()

	n.Subscribe("redis", NewRedisStreamObserver(client, "events", 0))
	n.Publish(EventAdd, map[string]interface{}{"identifier": "TD002"})
	n.Publish(EventDelete, map[string]interface{}{"identifier": "TD002"})

	assert.Eventually(t, func() bool {
		n, err := client.XLen(context.Background(), "events").Result()
		return err == nil && n == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRedisStreamObserver_ServerGone(t *testing.T) {
	mr, client := setupTestRedis(t)
	obs := NewRedisStreamObserver(client, "events", 0)
	mr.Close()

	err := obs.Deliver(context.Background(), Event{Kind: EventAdd})
	assert.Error(t, err)
}
