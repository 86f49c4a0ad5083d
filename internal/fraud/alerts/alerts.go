// Package alerts publishes high-risk fraud events to RabbitMQ.
package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"rxvc/internal/fraud"
)

// RoutingKeyPrefix is followed by the stage ("fraud.alert.dispensing").
const RoutingKeyPrefix = "fraud.alert."

// Alert is the message body.
type Alert struct {
	Stage          fraud.Stage `json:"stage"`
	PrescriptionID string      `json:"prescriptionId"`
	DispensingID   string      `json:"dispensingId,omitempty"`
	Actor          string      `json:"actor"`
	Score          int         `json:"score"`
	Band           fraud.Band  `json:"band"`
	FailedChecks   []string    `json:"failedChecks"`
	RaisedAt       time.Time   `json:"raisedAt"`
}

// Publisher sends alerts. Implementations must not block the caller for
// long; a failed publish is reported, never retried.
type Publisher interface {
	Publish(ctx context.Context, alert Alert) error
}

// Channel is the subset of *amqp.Channel the publisher uses.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitPublisher publishes alerts to a topic exchange.
type RabbitPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  Channel
	exchange string
}

// Dial connects to RabbitMQ and declares the durable topic exchange.
func Dial(url, exchange string) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &RabbitPublisher{conn: conn, channel: ch, exchange: exchange}, nil
}

// NewRabbitPublisher wraps an already-open channel.
func NewRabbitPublisher(ch Channel, exchange string) *RabbitPublisher {
	return &RabbitPublisher{channel: ch, exchange: exchange}
}

// Publish sends alert as a persistent JSON message.
func (p *RabbitPublisher) Publish(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal fraud alert: %w", err)
	}
	// amqp channels are not safe for concurrent publishing.
	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.channel.PublishWithContext(ctx, p.exchange, RoutingKeyPrefix+string(alert.Stage), false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		Timestamp:    alert.RaisedAt,
		DeliveryMode: amqp.Persistent,
		Type:         "fraud.alert",
	})
	if err != nil {
		return fmt.Errorf("publish fraud alert: %w", err)
	}
	return nil
}

// Close closes the channel and, when Dial opened it, the connection.
func (p *RabbitPublisher) Close() error {
	err := p.channel.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// LogPublisher logs alerts when no broker is configured.
type LogPublisher struct {
	Logger *slog.Logger
}

func (p LogPublisher) Publish(ctx context.Context, alert Alert) error {
	p.Logger.WarnContext(ctx, "fraud alert",
		"stage", string(alert.Stage),
		"prescription_id", alert.PrescriptionID,
		"score", alert.Score,
		"failed_checks", alert.FailedChecks,
	)
	return nil
}
