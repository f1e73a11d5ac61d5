package rabbitmq

import (
	amqp "github.com/rabbitmq/amqp091-go"

	"comment-map/config"
)

// Topology names the exchange, queue and dead-letter pair a consumer and its
// publishers agree on.
type Topology struct {
	Exchange      string
	Kind          string
	Queue         string
	RoutingKey    string
	DeadExchange  string
	DeadQueue     string
	DeadLetterKey string
}

func NewTopology(cfg *config.RabbitMQ) Topology {
	kind := cfg.Kind
	if kind == "" {
		kind = amqp.ExchangeDirect
	}
	return Topology{
		Exchange:      cfg.ExchangeName,
		Kind:          kind,
		Queue:         cfg.QueueName,
		RoutingKey:    cfg.RoutingKey,
		DeadExchange:  cfg.ExchangeName + "_dlx",
		DeadQueue:     cfg.QueueName + "_dlq",
		DeadLetterKey: "dlq." + cfg.RoutingKey,
	}
}

// Declare creates the exchanges and queues idempotently. Messages rejected
// without requeue are routed to the dead-letter queue.
func (t Topology) Declare(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(t.Exchange, t.Kind, true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(t.DeadExchange, t.Kind, true, false, false, false, nil); err != nil {
		return err
	}

	dlq, err := ch.QueueDeclare(t.DeadQueue, true, false, false, false, nil)
	if err != nil {
		return err
	}
	if err := ch.QueueBind(dlq.Name, t.DeadLetterKey, t.DeadExchange, false, nil); err != nil {
		return err
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    t.DeadExchange,
		"x-dead-letter-routing-key": t.DeadLetterKey,
	}
	q, err := ch.QueueDeclare(t.Queue, true, false, false, false, args)
	if err != nil {
		return err
	}
	return ch.QueueBind(q.Name, t.RoutingKey, t.Exchange, false, nil)
}
