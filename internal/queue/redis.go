package queue

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisQueue publishes over Redis pub/sub. Delivery is at-most-once and only
// reaches subscribers connected at publish time.
type RedisQueue struct {
	ctx    context.Context
	rdb    *redis.Client
	mu     sync.Mutex
	subs   []*redis.PubSub
	logger *zap.Logger
}

func NewRedisQueue(ctx context.Context, rdb *redis.Client, logger *zap.Logger) *RedisQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisQueue{ctx: ctx, rdb: rdb, logger: logger}
}

func (q *RedisQueue) Publish(topic string, payload []byte) error {
	return q.rdb.Publish(q.ctx, topic, payload).Err()
}

func (q *RedisQueue) Subscribe(topic string, handler Handler) error {
	ps := q.rdb.Subscribe(q.ctx, topic)
	if _, err := ps.Receive(q.ctx); err != nil {
		ps.Close()
		return err
	}

	q.mu.Lock()
	q.subs = append(q.subs, ps)
	q.mu.Unlock()

	go func() {
		for msg := range ps.Channel() {
			if err := handler([]byte(msg.Payload)); err != nil {
				q.logger.Warn("redis handler failed", zap.String("topic", topic), zap.Error(err))
			}
		}
	}()
	return nil
}

func (q *RedisQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, ps := range q.subs {
		ps.Close()
	}
	return q.rdb.Close()
}
