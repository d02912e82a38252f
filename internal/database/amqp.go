package database

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPBroker bundles the connection and channel used to publish lifecycle events.
type AMQPBroker struct {
	Conn     *amqp.Connection
	Channel  *amqp.Channel
	Exchange string
}

// Close releases the channel and the connection.
func (b *AMQPBroker) Close() error {
	if b == nil {
		return nil
	}
	if b.Channel != nil {
		_ = b.Channel.Close()
	}
	if b.Conn != nil {
		return b.Conn.Close()
	}
	return nil
}

// ConnectAMQP dials RabbitMQ and declares the durable topic exchange events are published to.
func ConnectAMQP(url, exchange string) (*AMQPBroker, error) {
	if url == "" {
		return nil, fmt.Errorf("amqp url must not be empty")
	}
	if exchange == "" {
		return nil, fmt.Errorf("amqp exchange must not be empty")
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := channel.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	return &AMQPBroker{Conn: conn, Channel: channel, Exchange: exchange}, nil
}
