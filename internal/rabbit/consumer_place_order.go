package rabbit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"warranty-proxy-service/internal/model"
)

// Registrar is the slice of WarrantyService the consumer needs.
type Registrar interface {
	Register(ctx context.Context, customerID string, newWarranty model.WarrantyRecord) (*model.Metafield, error)
}

type PlaceOrderConsumer struct {
	Service Registrar
	logger  *zap.Logger
}

func NewPlaceOrderConsumer(s Registrar, logger *zap.Logger) *PlaceOrderConsumer {
	return &PlaceOrderConsumer{Service: s, logger: logger}
}

// PlacedOrderMessage is the order_placed envelope. Only orders carrying a
// customer and a purchase date produce a warranty; Warranty holds any extra
// fields to store alongside it.
type PlacedOrderMessage struct {
	CorrelationID string `json:"correlation_id"`
	Exchange      string `json:"exchange"`
	RoutingKey    string `json:"routing_key"`
	Message       struct {
		OrderID      json.RawMessage `json:"orderId"`
		CustomerID   string          `json:"customerId"`
		PurchaseDate string          `json:"purchaseDate"`
		Warranty     json.RawMessage `json:"warranty"`
	} `json:"message"`
}

// Handle registers the warranty described by one order_placed message.
func (c *PlaceOrderConsumer) Handle(ctx context.Context, msg []byte) error {
	dec := json.NewDecoder(bytes.NewReader(msg))
	dec.UseNumber()

	var event PlacedOrderMessage
	if err := dec.Decode(&event); err != nil {
		c.logger.Warn("order_placed message is not valid JSON", zap.Error(err))
		return fmt.Errorf("decode order_placed: %w", err)
	}

	record, err := event.warrantyRecord()
	if err != nil {
		c.logger.Warn("order_placed message rejected",
			zap.String("correlation_id", event.CorrelationID),
			zap.Error(err),
		)
		return err
	}

	mf, err := c.Service.Register(ctx, event.Message.CustomerID, record)
	if err != nil {
		c.logger.Error("warranty registration from order_placed failed",
			zap.String("correlation_id", event.CorrelationID),
			zap.String("customer_id", event.Message.CustomerID),
			zap.Error(err),
		)
		return err
	}

	c.logger.Info("warranty registered from order_placed",
		zap.String("correlation_id", event.CorrelationID),
		zap.Int64("metafield_id", mf.ID),
	)
	return nil
}

func (m *PlacedOrderMessage) warrantyRecord() (model.WarrantyRecord, error) {
	record := model.WarrantyRecord{}
	if len(m.Message.Warranty) > 0 && string(m.Message.Warranty) != "null" {
		dec := json.NewDecoder(bytes.NewReader(m.Message.Warranty))
		dec.UseNumber()
		if err := dec.Decode(&record); err != nil {
			return nil, fmt.Errorf("decode warranty fields: %w", err)
		}
	}

	if len(m.Message.OrderID) == 0 {
		return nil, errors.New("order_placed message has no orderId")
	}
	dec := json.NewDecoder(bytes.NewReader(m.Message.OrderID))
	dec.UseNumber()
	var orderID any
	if err := dec.Decode(&orderID); err != nil {
		return nil, fmt.Errorf("decode orderId: %w", err)
	}

	record[model.FieldOrderID] = orderID
	record[model.FieldPurchaseDate] = m.Message.PurchaseDate
	return record, nil
}
