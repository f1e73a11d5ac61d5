package rabbitmq

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"comment-map/config"
)

type Consumer[T any] interface {
	Consume(ctx context.Context, dependencies T) error
}

// DeadLetterFunc is told about a message before it is dead-lettered, with
// the error that exhausted its retries.
type DeadLetterFunc[T any] func(ctx context.Context, msg amqp.Delivery, dependencies T, cause error)

type consumer[T any] struct {
	conn       *amqp.Connection
	topology   Topology
	maxRetries uint
	handler    func(ctx context.Context, msg amqp.Delivery, dependencies T) error
	deadLetter DeadLetterFunc[T]
	numWorkers int
}

// Consume dispatches deliveries to a pool of workers until ctx is cancelled
// or the channel closes. A handler error is retried with exponential backoff;
// once retries are exhausted, or the error is backoff.Permanent, the message
// is dead-lettered. Messages interrupted by cancellation are requeued.
func (c consumer[T]) Consume(ctx context.Context, dependencies T) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	queueName := c.topology.Queue
	if err := c.topology.Declare(ch); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("queue", queueName).Msg("failed to declare topology")
		return err
	}

	err = ch.Qos(c.numWorkers, 0, false)
	if err != nil {
		zerolog.Ctx(ctx).Error().Str("queue", queueName).Msg("failed to set QoS")
		return err
	}

	deliveries, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		zerolog.Ctx(ctx).Error().Str("queue", queueName).Msg("failed to consume queue")
		return err
	}

	zerolog.Ctx(ctx).Info().
		Str("queue", queueName).
		Str("exchange", c.topology.Exchange).
		Str("routing_key", c.topology.RoutingKey).
		Int("workers", c.numWorkers).
		Msg("consumer started")

	jobs := make(chan amqp.Delivery, c.numWorkers)
	var wg sync.WaitGroup
	for i := 1; i <= c.numWorkers; i++ {
		wg.Add(1)
		go func(workerId int) {
			defer wg.Done()
			logger := zerolog.Ctx(ctx).With().Int("worker_id", workerId).Logger()
			workerCtx := logger.WithContext(ctx)
			for msg := range jobs {
				c.handle(workerCtx, msg, dependencies)
			}
		}(i)
	}

	for {
		select {
		case delivery, ok := <-deliveries:
			if !ok {
				close(jobs)
				wg.Wait()
				return nil
			}

			jobs <- delivery
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return ctx.Err()
		}
	}
}

func (c consumer[T]) handle(ctx context.Context, msg amqp.Delivery, dependencies T) {
	operation := func() (struct{}, error) {
		return struct{}{}, c.handler(ctx, msg, dependencies)
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = 10 * time.Second

	_, err := backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxTries(c.maxRetries))
	if err != nil && ctx.Err() != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("message_id", msg.MessageId).Msg("shutting down, requeueing message")
		if nackErr := msg.Nack(false, true); nackErr != nil {
			zerolog.Ctx(ctx).Error().Err(nackErr).Msg("failed to requeue message")
		}
		return
	}
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("message_id", msg.MessageId).Msg("failed to handle message, dead-lettering")
		if c.deadLetter != nil {
			c.deadLetter(ctx, msg, dependencies, err)
		}
		if nackErr := msg.Nack(false, false); nackErr != nil {
			zerolog.Ctx(ctx).Error().Err(nackErr).Msg("failed to nack message to send to DLQ")
		}
		return
	}
	if ackErr := msg.Ack(false); ackErr != nil {
		zerolog.Ctx(ctx).Error().Err(ackErr).Msg("failed to acknowledge message")
	}
}

func NewConsumer[T any](
	conn *amqp.Connection,
	cfg *config.RabbitMQ,
	numWorkers int,
	handler func(ctx context.Context, msg amqp.Delivery, dependencies T) error,
	deadLetter DeadLetterFunc[T],
) Consumer[T] {
	if numWorkers < 1 {
		numWorkers = 1
	}
	maxRetries := uint(cfg.MaxRetries)
	if maxRetries < 1 {
		maxRetries = 5
	}
	return &consumer[T]{
		conn:       conn,
		topology:   NewTopology(cfg),
		maxRetries: maxRetries,
		handler:    handler,
		deadLetter: deadLetter,
		numWorkers: numWorkers,
	}
}
