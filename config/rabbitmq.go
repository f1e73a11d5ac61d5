package config

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

func NewRabbitMQConn(ctx context.Context, cfg *RabbitMQ) (*amqp.Connection, error) {
	connAddr := cfg.URL()

	operation := func() (*amqp.Connection, error) {
		conn, err := amqp.Dial(connAddr)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("host", cfg.Host).Msg("failed to connect to rabbitmq, retrying")
			return nil, err
		}

		return conn, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = 10 * time.Second
	maxRetries := uint(5)
	conn, err := backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxTries(maxRetries))
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("giving up connecting to rabbitmq")
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}

	zerolog.Ctx(ctx).Info().Msg("connected to rabbitmq")
	go func() {
		<-ctx.Done()
		if err := conn.Close(); err != nil && !conn.IsClosed() {
			zerolog.Ctx(ctx).Error().Err(err).Msg("failed to close rabbitmq connection")
		}
		zerolog.Ctx(ctx).Info().Msg("rabbitmq connection closed")
	}()

	return conn, nil
}

func (cfg *RabbitMQ) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/", cfg.User, cfg.Pass, cfg.Host, cfg.Port)
}
