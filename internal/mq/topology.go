package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeTriggers   Exchange = "dagflow.triggers"
	ExchangeExecutions Exchange = "dagflow.executions"
	ExchangeDLQ        Exchange = "dagflow.dlq"
)

// Queues — имена очередей.
const (
	QueueTriggers    Queue = "workflow.triggers"
	QueueDLQTriggers Queue = "dlq.triggers"
)

// Routing keys.
const (
	RoutingKeyTriggerEvent RoutingKey = "trigger.event"
	RoutingKeyDLQTriggers  RoutingKey = "triggers"

	// RoutingKeyAllExecutions — шаблон для подписки на все события execution.
	RoutingKeyAllExecutions RoutingKey = "execution.#"
)

// exchangeSpec — описание обменника.
type exchangeSpec struct {
	name Exchange
	kind string
}

// queueSpec — описание очереди.
type queueSpec struct {
	name Queue
	args amqp.Table
}

// bindingSpec — привязка очереди к обменнику.
type bindingSpec struct {
	queue      Queue
	routingKey RoutingKey
	exchange   Exchange
}

// exchanges возвращает обменники топологии.
func exchanges() []exchangeSpec {
	return []exchangeSpec{
		{ExchangeTriggers, amqp.ExchangeDirect},
		// topic: потребители подписываются на execution.completed, execution.# и т.п.
		{ExchangeExecutions, amqp.ExchangeTopic},
		{ExchangeDLQ, amqp.ExchangeDirect},
	}
}

// queues возвращает очереди топологии.
// Необработанные триггеры уходят в DLQ: повторов нет.
func queues() []queueSpec {
	return []queueSpec{
		{QueueTriggers, amqp.Table{
			"x-dead-letter-exchange":    string(ExchangeDLQ),
			"x-dead-letter-routing-key": string(RoutingKeyDLQTriggers),
		}},
		{QueueDLQTriggers, nil},
	}
}

// bindings возвращает привязки очередей.
func bindings() []bindingSpec {
	return []bindingSpec{
		{QueueTriggers, RoutingKeyTriggerEvent, ExchangeTriggers},
		{QueueDLQTriggers, RoutingKeyDLQTriggers, ExchangeDLQ},
	}
}

// SetupTopology объявляет exchanges, queues и bindings.
// Операции идемпотентны, вызывается при каждом старте.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		for _, ex := range exchanges() {
			err := ch.ExchangeDeclare(
				string(ex.name), // name
				ex.kind,         // type
				true,            // durable
				false,           // auto-deleted
				false,           // internal
				false,           // no-wait
				nil,             // arguments
			)
			if err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex.name, err)
			}
		}

		for _, q := range queues() {
			_, err := ch.QueueDeclare(
				string(q.name), // name
				true,           // durable
				false,          // delete when unused
				false,          // exclusive
				false,          // no-wait
				q.args,         // arguments
			)
			if err != nil {
				return fmt.Errorf("declare queue %s: %w", q.name, err)
			}
		}

		for _, b := range bindings() {
			err := ch.QueueBind(
				string(b.queue),      // queue name
				string(b.routingKey), // routing key
				string(b.exchange),   // exchange
				false,                // no-wait
				nil,                  // arguments
			)
			if err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
			}
		}

		return nil
	})
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  dagflow RabbitMQ topology:

    dagflow.triggers (direct)
    └── workflow.triggers [routing: trigger.event]
            Consumer: trigger.Router
            DLQ: dlq.triggers

    dagflow.executions (topic)
    └── execution.started | execution.completed | execution.failed | execution.cancelled
            Consumers: external subscribers

    dagflow.dlq (direct)
    └── dlq.triggers [routing: triggers]
            Manual processing
`
}
