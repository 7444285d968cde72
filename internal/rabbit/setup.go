// setup.go
package rabbit

import (
	"context"
	"fmt"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	PlaceOrderQueue    = "warranty_service_orders"
	PlaceOrderExchange = "order_placed"
	EventsExchange     = "warranty_events"
)

// SetupConsumers binds the service queue to the order_placed fanout exchange
// and handles deliveries until ctx is done or the channel closes. The
// returned channel is closed when the delivery loop exits.
func SetupConsumers(ctx context.Context, ch *amqp091.Channel, svc Registrar, logger *zap.Logger) (<-chan struct{}, error) {
	consumer := NewPlaceOrderConsumer(svc, logger)

	q, err := ch.QueueDeclare(
		PlaceOrderQueue,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", PlaceOrderQueue, err)
	}

	// fanout ignores the routing key
	if err := ch.QueueBind(q.Name, "", PlaceOrderExchange, false, nil); err != nil {
		return nil, fmt.Errorf("bind %s to %s: %w", q.Name, PlaceOrderExchange, err)
	}

	msgs, err := ch.Consume(
		q.Name,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", q.Name, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		consumeLoop(ctx, msgs, consumer, logger)
	}()

	logger.Info("subscribed to exchange", zap.String("exchange", PlaceOrderExchange), zap.String("queue", q.Name))
	return done, nil
}

// consumeLoop acks handled deliveries and drops failed ones without requeue;
// warranty registration is never retried.
func consumeLoop(ctx context.Context, msgs <-chan amqp091.Delivery, consumer *PlaceOrderConsumer, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-msgs:
			if !ok {
				logger.Warn("delivery channel closed")
				return
			}
			if err := consumer.Handle(ctx, m.Body); err != nil {
				if nackErr := m.Nack(false, false); nackErr != nil {
					logger.Error("nack failed", zap.Uint64("delivery_tag", m.DeliveryTag), zap.Error(nackErr))
				}
				continue
			}
			if err := m.Ack(false); err != nil {
				logger.Error("ack failed", zap.Uint64("delivery_tag", m.DeliveryTag), zap.Error(err))
			}
		}
	}
}
