package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQueue(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisFromClient(client, "routeopt:requests"), mr
}

func TestSendReceiveAck(t *testing.T) {
	q, _ := newQueue(t)
	ctx := context.Background()

	id1, err := q.Send(ctx, []byte(`{"problemId":"p1"}`))
	require.NoError(t, err)
	_, err = q.Send(ctx, []byte(`{"problemId":"p2"}`))
	require.NoError(t, err)

	msg, err := q.Receive(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, id1, msg.ID)
	assert.JSONEq(t, `{"problemId":"p1"}`, string(msg.Body))

	pending, processing, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)
	assert.Equal(t, int64(1), processing)

	require.NoError(t, q.Ack(ctx, msg))
	_, processing, err = q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, processing)
}

func TestReceiveEmpty(t *testing.T) {
	q, _ := newQueue(t)
	_, err := q.Receive(context.Background(), 0)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestRequeueStale(t *testing.T) {
	q, _ := newQueue(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }

	_, err := q.Send(ctx, []byte("a"))
	require.NoError(t, err)
	_, err = q.Send(ctx, []byte("b"))
	require.NoError(t, err)
	first, err := q.Receive(ctx, 0)
	require.NoError(t, err)

	now = now.Add(10 * time.Minute)
	second, err := q.Receive(ctx, 0)
	require.NoError(t, err)

	moved, err := q.Requeue(ctx, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	pending, processing, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)
	assert.Equal(t, int64(1), processing)

	again, err := q.Receive(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	require.NoError(t, q.Ack(ctx, second))
}

func TestRequeueMovesToDeadAfterMaxDeliveries(t *testing.T) {
	q, mr := newQueue(t)
	q.MaxDeliveries = 2
	ctx := context.Background()

	id, err := q.Send(ctx, []byte("a"))
	require.NoError(t, err)

	first, err := q.Receive(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, first.Deliveries)
	moved, err := q.Requeue(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	second, err := q.Receive(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, id, second.ID)
	assert.Equal(t, 1, second.Deliveries)
	assert.Equal(t, "a", string(second.Body))

	moved, err = q.Requeue(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, moved)

	_, err = q.Receive(ctx, 0)
	assert.ErrorIs(t, err, ErrEmpty)
	dead, err := q.Dead(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), dead)
	assert.True(t, mr.Exists("routeopt:requests:dead"))
}

func TestExtendKeepsLease(t *testing.T) {
	q, _ := newQueue(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }

	_, err := q.Send(ctx, []byte("a"))
	require.NoError(t, err)
	msg, err := q.Receive(ctx, 0)
	require.NoError(t, err)

	now = now.Add(10 * time.Minute)
	require.NoError(t, q.Extend(ctx, msg))
	moved, err := q.Requeue(ctx, 5*time.Minute)
	require.NoError(t, err)
	assert.Zero(t, moved)
	require.NoError(t, q.Ack(ctx, msg))

	assert.ErrorIs(t, q.Extend(ctx, msg), ErrLeaseLost)
}

func TestAckAfterRequeueReportsLostLease(t *testing.T) {
	q, _ := newQueue(t)
	ctx := context.Background()

	_, err := q.Send(ctx, []byte("a"))
	require.NoError(t, err)
	msg, err := q.Receive(ctx, 0)
	require.NoError(t, err)
	_, err = q.Requeue(ctx, 0)
	require.NoError(t, err)

	assert.ErrorIs(t, q.Ack(ctx, msg), ErrLeaseLost)
	pending, _, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)
}

func TestPingAndClose(t *testing.T) {
	q, _ := newQueue(t)
	require.NoError(t, q.Ping(context.Background()))
	assert.NoError(t, q.Close())
}
