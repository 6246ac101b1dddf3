package notify

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/pairwave/chat-backend/pkg/logger"
)

const actionHeader = "x-action"

// AMQPNotifier publishes notifications to a RabbitMQ queue consumed by
// the notification workers.
type AMQPNotifier struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
}

// AMQPConfig holds the RabbitMQ connection settings
type AMQPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Queue    string
}

// NewAMQPNotifier connects to RabbitMQ and declares the notification queue
func NewAMQPNotifier(cfg AMQPConfig) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(fmt.Sprintf("amqp://%s:%s@%s:%d/", cfg.User, cfg.Password, cfg.Host, cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a RabbitMQ channel: %w", err)
	}

	if _, err := channel.QueueDeclare(
		cfg.Queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", cfg.Queue, err)
	}

	logger.GetLogger().Info().Str("queue", cfg.Queue).Msg("connected to RabbitMQ")

	return &AMQPNotifier{
		conn:    conn,
		channel: channel,
		queue:   cfg.Queue,
	}, nil
}

// Notify publishes a notification to the queue
func (n *AMQPNotifier) Notify(ctx context.Context, notification Notification) error {
	body, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	err = n.channel.PublishWithContext(
		ctx,
		"",      // exchange
		n.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Headers: amqp.Table{
				actionHeader: "chat.message",
			},
			Body: body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// Close tears down the AMQP channel and connection
func (n *AMQPNotifier) Close() error {
	if n.channel != nil {
		n.channel.Close()
	}
	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}
