package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/dagflow/internal/domain"
)

// MessageType — тип сообщения в очереди.
//
// Для событий execution тип совпадает с domain.EventType
// (execution.started, execution.completed, ...).
type MessageType string

// MessageTypeTriggerEvent — внешнее событие, запускающее workflow.
const MessageTypeTriggerEvent MessageType = "trigger.event"

// Message — конверт сообщения.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// TriggerPayload — payload сообщения trigger.event.
//
// С WorkflowID запускается указанный workflow, без него — все workflow
// с триггером {type: event, config: {event: <Event>}}.
type TriggerPayload struct {
	Event      string         `json:"event"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	Variables  map[string]any `json:"variables,omitempty"`
}

// NewMessage создаёт сообщение с новым ID.
func NewMessage(msgType MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// Publisher публикует сообщения в RabbitMQ.
//
// Реализует orchestrator.EventPublisher.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Publish публикует сообщение в exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	publishing, err := buildPublishing(msg)
	if err != nil {
		return err
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,              // mandatory
			false,              // immediate
			publishing,
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// PublishExecutionEvent публикует событие жизненного цикла execution.
// Routing key — тип события.
func (p *Publisher) PublishExecutionEvent(ctx context.Context, event domain.ExecutionEvent) error {
	msg := NewMessage(MessageType(event.Type), event)
	return p.Publish(ctx, ExchangeExecutions, RoutingKey(event.Type), msg)
}

// PublishTrigger публикует событие-триггер.
func (p *Publisher) PublishTrigger(ctx context.Context, payload TriggerPayload) error {
	if payload.Event == "" && payload.WorkflowID == "" {
		return fmt.Errorf("trigger requires event or workflow_id")
	}
	msg := NewMessage(MessageTypeTriggerEvent, payload)
	return p.Publish(ctx, ExchangeTriggers, RoutingKeyTriggerEvent, msg)
}

// buildPublishing сериализует сообщение в amqp.Publishing.
func buildPublishing(msg *Message) (amqp.Publishing, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal message: %w", err)
	}

	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
		MessageId:    msg.ID,
		Type:         string(msg.Type),
		Timestamp:    msg.Timestamp,
		Body:         body,
	}, nil
}
