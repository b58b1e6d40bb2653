package redisclient

import (
	"context"
	"os"
	"testing"
	"time"

	"inventory-service/internal/notify"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("Integration test - requires redis")
	}
	c, err := NewClient(addr, "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestIdempotencyKeyFormat(t *testing.T) {
	assert.Equal(t, "idempotency:abc", idempotencyKey("abc"))
}

func TestResponseRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	key := uuid.New().String()

	_, ok, err := c.LoadResponse(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	want := &CachedResponse{Status: 201, ContentType: "application/json", Body: []byte(`{"id":1}`)}
	require.NoError(t, c.SaveResponse(ctx, key, want, time.Minute))

	got, ok, err := c.LoadResponse(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, want, got)
}

func TestLock(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	key := uuid.New().String()

	acquired, err := c.AcquireLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)

	acquired, err = c.AcquireLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, acquired)

	require.NoError(t, c.ReleaseLock(ctx, key))
	acquired, err = c.AcquireLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestPublish(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	sub := c.GetClient().Subscribe(ctx, EventsChannel)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, c.Publish(ctx, notify.NewEvent("inventory:update", "product-1", nil)))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Contains(t, msg.Payload, "inventory:update")
}
