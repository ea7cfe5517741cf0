// Package notify 生命周期事件的投递，发送失败不影响触发它的状态迁移
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"yqhp/common/logger"
	"yqhp/common/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// QueueKey 事件队列键
const QueueKey = "yqhp:scheduler:events"

// Event 生命周期事件
type Event struct {
	ID         string    `json:"id"`
	Code       string    `json:"code"`
	TargetType string    `json:"target_type"`
	TargetID   int64     `json:"target_id"`
	Message    string    `json:"message"`
	Recipients []int64   `json:"recipients"`
	TenantID   int64     `json:"tenant_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Sink 事件发送，错误只记录不返回
type Sink interface {
	Emit(ctx context.Context, e Event)
}

// Source 事件消费
type Source interface {
	Pop(ctx context.Context, n int) ([]Event, error)
	Requeue(ctx context.Context, events []Event) error
}

// Recipients 去重并过滤无效用户
func Recipients(ids ...int64) []int64 {
	valid := utils.SliceFilter(ids, func(_ int, id int64) bool { return id > 0 })
	return utils.SliceUnique(valid)
}

func prepare(e *Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
}

// RedisQueue 基于 Redis 列表的事件队列
type RedisQueue struct {
	client redis.UniversalClient
	key    string
}

// NewRedisQueue 创建事件队列
func NewRedisQueue(client redis.UniversalClient) *RedisQueue {
	return &RedisQueue{client: client, key: QueueKey}
}

// Emit 追加到队列尾部
func (q *RedisQueue) Emit(ctx context.Context, e Event) {
	prepare(&e)
	data, err := utils.Marshal(e)
	if err != nil {
		logger.Warn("序列化事件失败", zap.String("code", e.Code), zap.Error(err))
		return
	}
	if err := q.client.RPush(ctx, q.key, data).Err(); err != nil {
		logger.Warn("发送事件失败",
			zap.String("code", e.Code),
			zap.Int64("target_id", e.TargetID),
			zap.Error(err),
		)
	}
}

// Pop 从队列头部取出至多 n 个事件，无法解析的事件丢弃
func (q *RedisQueue) Pop(ctx context.Context, n int) ([]Event, error) {
	raw, err := q.client.LPopCount(ctx, q.key, n).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	events := make([]Event, 0, len(raw))
	for _, s := range raw {
		var e Event
		if err := utils.UnmarshalString(s, &e); err != nil {
			logger.Warn("丢弃无法解析的事件", zap.String("raw", s), zap.Error(err))
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

// Requeue 投递失败的事件放回队列
func (q *RedisQueue) Requeue(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	values := make([]any, 0, len(events))
	for _, e := range events {
		data, err := utils.Marshal(e)
		if err != nil {
			return err
		}
		values = append(values, data)
	}
	return q.client.RPush(ctx, q.key, values...).Err()
}

// MemoryQueue 进程内事件队列，单实例部署和测试使用
type MemoryQueue struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryQueue 创建进程内队列
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Emit(_ context.Context, e Event) {
	prepare(&e)
	q.mu.Lock()
	q.events = append(q.events, e)
	q.mu.Unlock()
}

func (q *MemoryQueue) Pop(_ context.Context, n int) ([]Event, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n > len(q.events) {
		n = len(q.events)
	}
	out := append([]Event(nil), q.events[:n]...)
	q.events = q.events[n:]
	return out, nil
}

func (q *MemoryQueue) Requeue(_ context.Context, events []Event) error {
	q.mu.Lock()
	q.events = append(q.events, events...)
	q.mu.Unlock()
	return nil
}

// Pending 队列中的事件快照
func (q *MemoryQueue) Pending() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Event(nil), q.events...)
}
