package notify

import (
	"context"
	"testing"
	"time"

	"yqhp/scheduler/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisQueue_EmitPopRequeue(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	q := NewRedisQueue(client)
	ctx := context.Background()

	q.Emit(ctx, Event{Code: "EXECUTION_TIMEOUT", TargetType: "execution", TargetID: 1, Recipients: []int64{5}})
	q.Emit(ctx, Event{Code: "EXECUTION_FAILED", TargetType: "execution", TargetID: 2, Recipients: []int64{6}})
	_, err := mr.Lpush(QueueKey, "not json")
	require.NoError(t, err)

	events, err := q.Pop(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2, "无法解析的事件被丢弃")
	assert.NotEmpty(t, events[0].ID)
	assert.False(t, events[0].CreatedAt.IsZero())
	assert.Equal(t, int64(1), events[0].TargetID)

	empty, err := q.Pop(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, q.Requeue(ctx, events[:1]))
	again, err := q.Pop(ctx, 10)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, events[0].ID, again[0].ID)
}

func TestRedisQueue_EmitNeverFails(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	q := NewRedisQueue(client)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NotPanics(t, func() {
		q.Emit(ctx, Event{Code: "EXECUTION_TIMEOUT", TargetID: 1})
	})
}

func TestNoticeStore_DeliverIdempotent(t *testing.T) {
	db := testutil.NewDB(t)
	store := NewNoticeStore(db)
	ctx := context.Background()

	e := Event{ID: "evt-1", Code: "EXECUTION_TIMEOUT", TargetType: "execution", TargetID: 3, Recipients: []int64{7, 8, 7, 0}, CreatedAt: time.Now()}
	n, err := store.Deliver(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = store.Deliver(ctx, e)
	require.NoError(t, err)

	list, err := store.ListByRecipient(ctx, 7, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "EXECUTION_TIMEOUT", list[0].Code)
}

func TestRecipients(t *testing.T) {
	assert.Equal(t, []int64{3, 4}, Recipients(3, 0, 4, 3, -1))
	assert.Empty(t, Recipients(0))
}

func TestMemoryQueue(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()
	q.Emit(ctx, Event{Code: "A"})
	q.Emit(ctx, Event{Code: "B"})
	got, err := q.Pop(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].Code)
	assert.Len(t, q.Pending(), 1)
}
