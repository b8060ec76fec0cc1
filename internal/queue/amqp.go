package queue

import (
	"fmt"
	"sync"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// AMQPQueue maps each topic to a fanout exchange. Every subscriber gets its
// own exclusive, auto-deleted queue bound to that exchange, so all processes
// see every notice.
type AMQPQueue struct {
	conn   *amqp.Connection
	mu     sync.Mutex
	pub    *amqp.Channel
	subs   []*amqp.Channel
	logger *zap.Logger
}

func NewAMQPQueue(url string, logger *zap.Logger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open publish channel: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AMQPQueue{conn: conn, pub: ch, logger: logger}, nil
}

func declareExchange(ch *amqp.Channel, topic string) error {
	return ch.ExchangeDeclare(
		topic,    // name
		"fanout", // kind
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
}

func (q *AMQPQueue) Publish(topic string, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := declareExchange(q.pub, topic); err != nil {
		return fmt.Errorf("declare exchange %s: %w", topic, err)
	}
	return q.pub.Publish(
		topic, // exchange
		"",    // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        payload,
		},
	)
}

func (q *AMQPQueue) Subscribe(topic string, handler Handler) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("open consume channel: %w", err)
	}
	if err := declareExchange(ch, topic); err != nil {
		ch.Close()
		return fmt.Errorf("declare exchange %s: %w", topic, err)
	}

	dq, err := ch.QueueDeclare(
		"",    // name, server generated
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return fmt.Errorf("declare queue for %s: %w", topic, err)
	}
	if err := ch.QueueBind(dq.Name, "", topic, false, nil); err != nil {
		ch.Close()
		return fmt.Errorf("bind queue for %s: %w", topic, err)
	}

	msgs, err := ch.Consume(
		dq.Name,
		"",
		false, // autoAck = false for reliability
		true,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		return fmt.Errorf("consume %s: %w", topic, err)
	}

	q.mu.Lock()
	q.subs = append(q.subs, ch)
	q.mu.Unlock()

	go func() {
		for d := range msgs {
			if err := handler(d.Body); err != nil {
				q.logger.Warn("amqp handler failed, dropping message", zap.String("topic", topic), zap.Error(err))
				d.Nack(false, false)
				continue
			}
			d.Ack(false)
		}
	}()
	return nil
}

func (q *AMQPQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, ch := range q.subs {
		ch.Close()
	}
	q.pub.Close()
	return q.conn.Close()
}
