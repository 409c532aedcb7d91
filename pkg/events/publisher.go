package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/multierr"

	"github.com/angelmondragon/library-backend/pkg/config"
	"github.com/angelmondragon/library-backend/pkg/logger"
)

// Publisher sends circulation events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, eventType string, data any) error
	Close() error
}

// New returns the publisher for the configured transport, or a no-op
// publisher when events are disabled.
func New(ctx context.Context, cfg config.EventsConfig, logg *logger.Logger) (Publisher, error) {
	switch backend := cfg.Backend(); backend {
	case config.EventsTransportAMQP:
		return newAMQP(ctx, cfg, logg)
	case config.EventsTransportPubSub:
		return newPubSub(ctx, cfg, logg)
	case config.EventsTransportNone:
		if logg != nil {
			logg.Info(ctx, "event publishing disabled")
		}
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown events transport %q", backend)
	}
}

func newAMQP(ctx context.Context, cfg config.EventsConfig, logg *logger.Logger) (Publisher, error) {
	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "exchange", cfg.Exchange), "amqp publisher ready")
	}
	return newAMQPPublisher(ch, conn, cfg.Exchange), nil
}

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type closer interface {
	Close() error
}

// AMQPPublisher publishes JSON envelopes to a topic exchange, routed by
// event type. Messages are persistent.
type AMQPPublisher struct {
	mu       sync.Mutex
	ch       amqpChannel
	conn     closer
	exchange string
	now      func() time.Time
}

func newAMQPPublisher(ch amqpChannel, conn closer, exchange string) *AMQPPublisher {
	return &AMQPPublisher{
		ch:       ch,
		conn:     conn,
		exchange: exchange,
		now:      time.Now,
	}
}

func (p *AMQPPublisher) Publish(ctx context.Context, eventType string, data any) error {
	envelope, body, err := encode(eventType, data, p.now())
	if err != nil {
		return err
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    envelope.EventID,
		Type:         eventType,
		Timestamp:    envelope.OccurredAt,
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.PublishWithContext(ctx, p.exchange, eventType, false, false, msg); err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var err error
	if p.ch != nil {
		err = multierr.Append(err, p.ch.Close())
	}
	if p.conn != nil {
		err = multierr.Append(err, p.conn.Close())
	}
	return err
}

// Noop drops every event.
type Noop struct{}

func (Noop) Publish(context.Context, string, any) error { return nil }

func (Noop) Close() error { return nil }
