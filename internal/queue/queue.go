package queue

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Topic carrying new waitlist signup notices
const TopicSignups = "waitlist.signups"

var ErrNoSubscribers = errors.New("no subscribers for topic")

// Handler consumes one JSON payload. A non-nil error asks the queue to retry
// where the implementation supports it.
type Handler func(payload []byte) error

// Queue interface
type Queue interface {
	Publish(topic string, payload []byte) error
	Subscribe(topic string, handler Handler) error
	Close() error
}

// InMemoryQueue fans payloads out to in-process handlers with retry. It only
// reaches subscribers in the same process.
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]Handler
	wg       sync.WaitGroup

	Logger     *zap.Logger
	MaxRetries int
	Backoff    time.Duration
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue(logger *zap.Logger) *InMemoryQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryQueue{
		handlers:   make(map[string][]Handler),
		Logger:     logger,
		MaxRetries: 3,
		Backoff:    500 * time.Millisecond,
	}
}

// job wraps a message payload with retry info
type job struct {
	topic      string
	payload    []byte
	retryCount int
}

// Publish sends a message to all subscribers
func (q *InMemoryQueue) Publish(topic string, payload []byte) error {
	q.mu.Lock()
	handlers := append([]Handler(nil), q.handlers[topic]...)
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("%w %s", ErrNoSubscribers, topic)
	}

	for _, h := range handlers {
		q.wg.Add(1)
		go q.process(h, job{topic: topic, payload: payload})
	}
	return nil
}

// process runs the handler with linear backoff until it succeeds or the
// retries are spent.
func (q *InMemoryQueue) process(h Handler, j job) {
	defer q.wg.Done()
	for {
		err := h(j.payload)
		if err == nil {
			return
		}

		j.retryCount++
		if j.retryCount > q.MaxRetries {
			q.Logger.Error("job permanently failed",
				zap.String("topic", j.topic), zap.Int("attempts", j.retryCount), zap.Error(err))
			return
		}
		q.Logger.Warn("job failed, retrying",
			zap.String("topic", j.topic), zap.Int("attempt", j.retryCount), zap.Int("max_retries", q.MaxRetries), zap.Error(err))

		time.Sleep(time.Duration(j.retryCount) * q.Backoff)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Close waits for in-flight jobs to finish.
func (q *InMemoryQueue) Close() error {
	q.wg.Wait()
	return nil
}
