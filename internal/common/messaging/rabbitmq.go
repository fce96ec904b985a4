package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rizkirmdhn/paipu/internal/common/config"
	"github.com/sirupsen/logrus"
)

// Publisher publishes JSON events
type Publisher interface {
	// PublishJSON publishes a JSON message to the exchange with the given routing key
	PublishJSON(exchange, routingKey string, data interface{}) error
}

// Client defines the messaging client interface
type Client interface {
	Publisher

	// DeclareQueue declares a queue with the given name
	DeclareQueue(name string) error

	// BindQueue binds a queue to an exchange with the given routing key
	BindQueue(queueName, exchange, routingKey string) error

	// ConsumeWithContext consumes messages from the given queue until ctx is done
	ConsumeWithContext(ctx context.Context, queueName string, handler func([]byte) error) error

	// Close closes the connection
	Close() error
}

// RabbitMQClient implements the Client interface using RabbitMQ
type RabbitMQClient struct {
	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel
	config  *config.RabbitMQConfig
	log     *logrus.Logger
}

// NewRabbitMQClient creates a new RabbitMQ client
func NewRabbitMQClient(config *config.RabbitMQConfig, log *logrus.Logger) (*RabbitMQClient, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("rabbitmq URL is required")
	}

	if config.Exchange == "" {
		return nil, fmt.Errorf("rabbitmq exchange name is required")
	}

	client := &RabbitMQClient{
		config: config,
		log:    log,
	}

	if err := client.connect(); err != nil {
		return nil, err
	}

	return client, nil
}

// connect establishes a connection to RabbitMQ
func (c *RabbitMQClient) connect() error {
	conn, err := amqp.Dial(c.config.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open a channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		c.config.Exchange,         // name
		config.ExchangeTypeDirect, // type
		true,                      // durable
		false,                     // auto-deleted
		false,                     // internal
		false,                     // no-wait
		nil,                       // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("failed to declare an exchange: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = channel
	c.mu.Unlock()

	go c.handleReconnect(conn)

	return nil
}

// handleReconnect attempts to reconnect to RabbitMQ when the connection is lost
func (c *RabbitMQClient) handleReconnect(conn *amqp.Connection) {
	err, ok := <-conn.NotifyClose(make(chan *amqp.Error, 1))
	if !ok || err == nil {
		// closed on purpose
		return
	}

	c.log.WithError(err).Warn("RabbitMQ connection closed, attempting to reconnect")

	for i := 0; i < c.config.ReconnectRetries; i++ {
		time.Sleep(time.Duration(c.config.ReconnectTimeout) * time.Millisecond)

		if err := c.connect(); err == nil {
			c.log.Info("Successfully reconnected to RabbitMQ")
			return
		}

		c.log.WithFields(logrus.Fields{
			"attempt": i + 1,
			"retries": c.config.ReconnectRetries,
		}).Warn("Failed to reconnect to RabbitMQ")
	}

	c.log.Error("Failed to reconnect to RabbitMQ after multiple attempts")
}

func (c *RabbitMQClient) ch() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// PublishJSON publishes a JSON message to the exchange with the given routing key
func (c *RabbitMQClient) PublishJSON(exchange, routingKey string, data interface{}) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON message: %w", err)
	}

	return c.publish(exchange, routingKey, "application/json", body)
}

func (c *RabbitMQClient) publish(exchange, routingKey, contentType string, body []byte) error {
	if exchange == "" {
		exchange = c.config.Exchange
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return c.ch().PublishWithContext(ctx,
		exchange,   // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  contentType,
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
}

// DeclareQueue declares a queue with the given name
func (c *RabbitMQClient) DeclareQueue(name string) error {
	_, err := c.ch().QueueDeclare(
		name,  // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)

	return err
}

// BindQueue binds a queue to an exchange with the given routing key
func (c *RabbitMQClient) BindQueue(queueName, exchange, routingKey string) error {
	if exchange == "" {
		exchange = c.config.Exchange
	}

	return c.ch().QueueBind(
		queueName,  // queue name
		routingKey, // routing key
		exchange,   // exchange
		false,      // no-wait
		nil,        // arguments
	)
}

// ConsumeWithContext consumes messages from the given queue with context support
func (c *RabbitMQClient) ConsumeWithContext(ctx context.Context, queueName string, handler func([]byte) error) error {
	// Ensure queue exists
	if err := c.DeclareQueue(queueName); err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	msgs, err := c.ch().Consume(
		queueName, // queue
		"",        // consumer
		false,     // auto-ack
		false,     // exclusive
		false,     // no-local
		false,     // no-wait
		nil,       // args
	)
	if err != nil {
		return fmt.Errorf("failed to register a consumer: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.log.WithField("queue", queueName).Debug("Consumer stopped due to context cancellation")
				return
			case msg, ok := <-msgs:
				if !ok {
					c.log.WithField("queue", queueName).Debug("Consumer channel closed")
					return
				}

				if err := handler(msg.Body); err != nil {
					c.log.WithError(err).Error("Error processing message")
					// malformed events are dropped, not requeued
					msg.Nack(false, false)
				} else {
					msg.Ack(false)
				}
			}
		}
	}()

	return nil
}

// Close closes the connection and channel
func (c *RabbitMQClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil {
		c.channel.Close()
	}

	if c.conn != nil {
		return c.conn.Close()
	}

	return nil
}

// NoopClient discards everything. Used when no broker is configured.
type NoopClient struct{}

func (NoopClient) PublishJSON(string, string, interface{}) error { return nil }
func (NoopClient) DeclareQueue(string) error { return nil }
func (NoopClient) BindQueue(string, string, string) error { return nil }
func (NoopClient) Close() error { return nil }
func (NoopClient) ConsumeWithContext(context.Context, string, func([]byte) error) error {
	return nil
}

// New connects to RabbitMQ when a URL is configured and returns a NoopClient
// otherwise
func New(cfg *config.RabbitMQConfig, log *logrus.Logger) (Client, error) {
	if cfg.URL == "" {
		log.Debug("RabbitMQ URL not configured, events are not published")
		return NoopClient{}, nil
	}
	return NewRabbitMQClient(cfg, log)
}
