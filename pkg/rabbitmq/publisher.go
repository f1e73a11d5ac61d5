package rabbitmq

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"comment-map/config"
)

// Publisher sends JSON messages of type T to the topology's exchange. It
// keeps one channel open and serializes publishes on it.
type Publisher[T any] struct {
	conn     *amqp.Connection
	topology Topology

	mu sync.Mutex
	ch *amqp.Channel
}

func NewPublisher[T any](conn *amqp.Connection, cfg *config.RabbitMQ) *Publisher[T] {
	return &Publisher[T]{
		conn:     conn,
		topology: NewTopology(cfg),
	}
}

func (p *Publisher[T]) Publish(ctx context.Context, message T) error {
	body, err := json.Marshal(message)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx, p.topology.Exchange, p.topology.RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		// Drop the channel so the next publish reopens it.
		_ = ch.Close()
		p.ch = nil
	}
	return err
}

func (p *Publisher[T]) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := p.topology.Declare(ch); err != nil {
		_ = ch.Close()
		return nil, err
	}
	p.ch = ch
	return ch, nil
}

func (p *Publisher[T]) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return nil
	}
	err := p.ch.Close()
	p.ch = nil
	return err
}
