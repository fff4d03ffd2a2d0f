package rabbitmq

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type Publisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	queue    string
	ownsConn bool
}

func NewPublisher(url, queue string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	p, err := NewPublisherOnConn(conn, queue)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	p.ownsConn = true
	return p, nil
}

// NewPublisherOnConn opens its own channel on an existing connection. Close
// leaves the connection open.
func NewPublisherOnConn(conn *amqp.Connection, queue string) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := DeclareTopology(ch, queue); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return &Publisher{conn: conn, ch: ch, queue: queue}, nil
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil && p.ownsConn {
		return p.conn.Close()
	}
	return nil
}

// PublishRun enqueues a run for the workers.
func (p *Publisher) PublishRun(ctx context.Context, runID string) error {
	msg, err := runPublishing(runID, 0)
	if err != nil {
		return err
	}
	return p.publish(ctx, p.queue, msg)
}

// Retry sends the run back through the retry queue; it reaches the main
// queue again after delay.
func (p *Publisher) Retry(ctx context.Context, runID string, attempt int, delay time.Duration) error {
	msg, err := retryPublishing(runID, attempt, delay)
	if err != nil {
		return err
	}
	return p.publish(ctx, RetryQueue(p.queue), msg)
}

func (p *Publisher) publish(ctx context.Context, routingKey string, msg amqp.Publishing) error {
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return p.ch.PublishWithContext(cctx,
		"",         // default exchange
		routingKey, // routing key = queue
		false,
		false,
		msg,
	)
}
