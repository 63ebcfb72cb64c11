package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dafibh/tally/tally-backend/internal/websocket"
	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const publishTimeout = 5 * time.Second

// Envelope is the message body published for every event
type Envelope struct {
	UserID uuid.UUID       `json:"userId"`
	Event  websocket.Event `json:"event"`
}

// channel is the subset of *amqp091.Channel the publisher needs
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// AMQPPublisher fans events out to a durable RabbitMQ topic exchange, routed
// by event type (e.g. "budget.threshold_triggered").
type AMQPPublisher struct {
	conn     *amqp091.Connection
	mu       sync.Mutex // amqp091 channels are not safe for concurrent publishing
	ch       channel
	exchange string
	logger   zerolog.Logger
}

var _ websocket.EventPublisher = (*AMQPPublisher)(nil)

// NewAMQPPublisher dials the broker and declares the exchange
func NewAMQPPublisher(url, exchange string, logger zerolog.Logger) (*AMQPPublisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	p := newPublisher(ch, exchange, logger)
	p.conn = conn
	return p, nil
}

func newPublisher(ch channel, exchange string, logger zerolog.Logger) *AMQPPublisher {
	return &AMQPPublisher{
		ch:       ch,
		exchange: exchange,
		logger:   logger.With().Str("component", "amqp_publisher").Logger(),
	}
}

// Publish implements websocket.EventPublisher. Delivery failures are logged;
// the aggregates they describe can always be re-read from the API.
func (p *AMQPPublisher) Publish(userID uuid.UUID, event websocket.Event) {
	body, err := json.Marshal(Envelope{UserID: userID, Event: event})
	if err != nil {
		p.logger.Error().Err(err).Str("event_type", event.Type).Msg("Failed to marshal event")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	p.mu.Lock()
	err = p.ch.PublishWithContext(
		ctx,
		p.exchange, // exchange
		event.Type, // routing key
		false,      // mandatory
		false,      // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    event.Timestamp,
			MessageId:    uuid.NewString(),
			Type:         event.Type,
			Body:         body,
		},
	)
	p.mu.Unlock()

	if err != nil {
		p.logger.Error().
			Err(err).
			Str("event_type", event.Type).
			Str("user_id", userID.String()).
			Msg("Failed to publish event")
		return
	}

	p.logger.Debug().
		Str("event_type", event.Type).
		Str("user_id", userID.String()).
		Str("exchange", p.exchange).
		Msg("Published event")
}

// Close closes the channel and connection
func (p *AMQPPublisher) Close() error {
	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
