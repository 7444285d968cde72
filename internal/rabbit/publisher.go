package rabbit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"warranty-proxy-service/internal/model"
)

type channelPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// Publisher sends WarrantyEvents to the warranty_events fanout exchange.
type Publisher struct {
	mu       sync.Mutex
	ch       channelPublisher
	exchange string
	logger   *zap.Logger
}

// DeclareEventsExchange makes sure the exchange the Publisher writes to exists.
func DeclareEventsExchange(ch *amqp091.Channel) error {
	if err := ch.ExchangeDeclare(EventsExchange, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", EventsExchange, err)
	}
	return nil
}

func NewPublisher(ch channelPublisher, logger *zap.Logger) *Publisher {
	return &Publisher{ch: ch, exchange: EventsExchange, logger: logger}
}

func (p *Publisher) Publish(ctx context.Context, event model.WarrantyEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Type, err)
	}

	// a channel must not be published on concurrently
	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.PublishWithContext(ctx, p.exchange, event.Type, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    event.EventID,
		Timestamp:    event.OccurredAt,
		Type:         event.Type,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s event: %w", event.Type, err)
	}

	p.logger.Debug("warranty event published", zap.String("type", event.Type), zap.String("event_id", event.EventID))
	return nil
}
