//go:generate mockgen -source ./service.go -destination=./mocks/service.go -package=mocks
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"warranty-proxy-service/internal/metrics"
	"warranty-proxy-service/internal/model"
	"warranty-proxy-service/internal/shopify"
	"warranty-proxy-service/internal/warranty"
)

// MetafieldStore is the remote home of a customer's warranty list.
// Fetch returns (nil, nil) when the customer has no warranty metafield.
// Write creates the metafield when existingID is 0, otherwise updates it.
type MetafieldStore interface {
	Fetch(ctx context.Context, customerID string) (*model.Metafield, error)
	Write(ctx context.Context, customerID, value string, existingID int64) (*model.Metafield, error)
}

type AuditRepository interface {
	Save(ctx context.Context, entry *model.AuditEntry) error
	FindByCustomerID(ctx context.Context, customerID string, limit int64) ([]*model.AuditEntry, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event model.WarrantyEvent) error
}

const sideEffectTimeout = 5 * time.Second

type WarrantyService struct {
	store  MetafieldStore
	audit  AuditRepository
	events EventPublisher
	logger *zap.Logger
	now    func() time.Time
}

type Option func(*WarrantyService)

func WithAudit(repo AuditRepository) Option {
	return func(s *WarrantyService) { s.audit = repo }
}

func WithEvents(p EventPublisher) Option {
	return func(s *WarrantyService) { s.events = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *WarrantyService) { s.now = now }
}

func NewWarrantyService(store MetafieldStore, logger *zap.Logger, opts ...Option) *WarrantyService {
	s := &WarrantyService{
		store:  store,
		audit:  nopAudit{},
		events: nopPublisher{},
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register computes the warranty end date for newWarranty and upserts it into
// the customer's list by order_id. It returns the metafield as written.
func (s *WarrantyService) Register(ctx context.Context, customerID string, newWarranty model.WarrantyRecord) (*model.Metafield, error) {
	mf, err := s.register(ctx, customerID, newWarranty)
	observe("register", err)
	return mf, err
}

func (s *WarrantyService) register(ctx context.Context, customerID string, newWarranty model.WarrantyRecord) (*model.Metafield, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, validationError("customerId is required")
	}
	id, err := shopify.ParseCustomerID(customerID)
	if err != nil {
		return nil, validationError(err.Error())
	}
	if newWarranty == nil {
		return nil, validationError("newWarranty is required")
	}
	orderKey, ok := warranty.OrderKey(newWarranty[model.FieldOrderID])
	if !ok {
		return nil, validationError("newWarranty.order_id is required")
	}
	purchaseDate, ok := newWarranty[model.FieldPurchaseDate].(string)
	if !ok || strings.TrimSpace(purchaseDate) == "" {
		return nil, validationError("newWarranty.purchase_date is required")
	}

	coverage, err := warranty.Compute(purchaseDate)
	if err != nil {
		return nil, invalidDateError(err)
	}

	// Computed fields win over anything the caller sent under the same name.
	record := newWarranty.Clone()
	record[model.FieldEndDate] = coverage.EndDate

	existing, list, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := warranty.Upsert(list, record)

	written, err := s.write(ctx, id, updated, existing)
	if err != nil {
		return nil, err
	}

	s.logger.Info("warranty registered",
		zap.String("customer_id", id),
		zap.String("order_id", orderKey),
		zap.String("end_date", coverage.EndDate),
		zap.Int64("metafield_id", written.ID),
		zap.Bool("created", existing == nil),
	)
	s.afterWrite(ctx, model.ActionRegister, id, orderKey, coverage.EndDate, record, written, len(updated))

	return written, nil
}

// Delete removes the record with orderID from the customer's list and writes
// the list back, even when nothing matched.
func (s *WarrantyService) Delete(ctx context.Context, customerID string, orderID any) (*model.Metafield, error) {
	mf, err := s.delete(ctx, customerID, orderID)
	observe("delete", err)
	return mf, err
}

func (s *WarrantyService) delete(ctx context.Context, customerID string, orderID any) (*model.Metafield, error) {
	orderKey, ok := warranty.OrderKey(orderID)
	if strings.TrimSpace(customerID) == "" || !ok {
		return nil, validationError(MsgDeleteRequiredFields)
	}
	id, err := shopify.ParseCustomerID(customerID)
	if err != nil {
		return nil, validationError(err.Error())
	}

	existing, list, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, notFoundError(MsgWarrantyNotFound)
	}

	updated, removed := warranty.Delete(list, orderID)

	written, err := s.write(ctx, id, updated, existing)
	if err != nil {
		return nil, err
	}

	s.logger.Info("warranty deleted",
		zap.String("customer_id", id),
		zap.String("order_id", orderKey),
		zap.Bool("removed", removed),
		zap.Int64("metafield_id", written.ID),
	)
	if removed {
		s.afterWrite(ctx, model.ActionDelete, id, orderKey, "", nil, written, len(updated))
	}

	return written, nil
}

// List returns the customer's warranties with state and days_remaining
// computed for the current time. Those two fields are never persisted.
func (s *WarrantyService) List(ctx context.Context, customerID string) (model.WarrantyList, error) {
	list, err := s.list(ctx, customerID)
	observe("list", err)
	return list, err
}

func (s *WarrantyService) list(ctx context.Context, customerID string) (model.WarrantyList, error) {
	id, err := shopify.ParseCustomerID(customerID)
	if err != nil {
		return nil, validationError(err.Error())
	}

	_, list, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := make(model.WarrantyList, 0, len(list))
	for _, r := range list {
		view := r.Clone()
		endDate, _ := view[model.FieldEndDate].(string)
		if endDate == "" {
			if pd, ok := view[model.FieldPurchaseDate].(string); ok {
				if cov, err := warranty.Compute(pd); err == nil {
					endDate = cov.EndDate
					view[model.FieldEndDate] = endDate
				}
			}
		}
		if state, days, err := warranty.StatusAt(endDate, now); err == nil {
			view[model.FieldState] = state
			view[model.FieldDaysRemaining] = days
		}
		out = append(out, view)
	}
	return out, nil
}

// History returns the newest audit entries for the customer.
func (s *WarrantyService) History(ctx context.Context, customerID string, limit int64) ([]*model.AuditEntry, error) {
	id, err := shopify.ParseCustomerID(customerID)
	if err != nil {
		return nil, validationError(err.Error())
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	entries, err := s.audit.FindByCustomerID(ctx, id, limit)
	if err != nil {
		return nil, remoteError("load warranty history", err)
	}
	if entries == nil {
		entries = []*model.AuditEntry{}
	}
	return entries, nil
}

func (s *WarrantyService) load(ctx context.Context, customerID string) (*model.Metafield, model.WarrantyList, error) {
	mf, err := s.store.Fetch(ctx, customerID)
	if err != nil {
		return nil, nil, remoteError("fetch warranty metafield", err)
	}
	if mf == nil {
		return nil, model.WarrantyList{}, nil
	}

	list, err := warranty.DecodeList(mf.Value)
	if err != nil {
		return nil, nil, remoteError(fmt.Sprintf("metafield %d holds an unreadable warranty list", mf.ID), err)
	}
	return mf, list, nil
}

func (s *WarrantyService) write(ctx context.Context, customerID string, list model.WarrantyList, existing *model.Metafield) (*model.Metafield, error) {
	value, err := warranty.EncodeList(list)
	if err != nil {
		return nil, remoteError("encode warranty list", err)
	}

	var existingID int64
	if existing != nil {
		existingID = existing.ID
	}

	written, err := s.store.Write(ctx, customerID, value, existingID)
	if err != nil {
		return nil, remoteError("write warranty metafield", err)
	}
	metrics.WarrantyListSize.Observe(float64(len(list)))
	return written, nil
}

// afterWrite records the audit entry and publishes the event. Both are
// best-effort: the metafield is already written.
func (s *WarrantyService) afterWrite(ctx context.Context, action, customerID, orderKey, endDate string, record model.WarrantyRecord, written *model.Metafield, size int) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	now := s.now().UTC()

	entry := &model.AuditEntry{
		ID:          uuid.NewString(),
		CustomerID:  customerID,
		OrderID:     orderKey,
		Action:      action,
		Record:      record,
		MetafieldID: written.ID,
		ListSize:    size,
		CreatedAt:   now,
	}
	if err := s.audit.Save(ctx, entry); err != nil {
		metrics.SideEffectErrorsTotal.WithLabelValues("audit").Inc()
		s.logger.Error("audit entry not saved", zap.String("customer_id", customerID), zap.String("order_id", orderKey), zap.Error(err))
	}

	eventType := model.EventWarrantyRegistered
	if action == model.ActionDelete {
		eventType = model.EventWarrantyDeleted
	}
	event := model.WarrantyEvent{
		EventID:    uuid.NewString(),
		Type:       eventType,
		CustomerID: customerID,
		OrderID:    orderKey,
		EndDate:    endDate,
		OccurredAt: now,
	}
	if err := s.events.Publish(ctx, event); err != nil {
		metrics.SideEffectErrorsTotal.WithLabelValues("event").Inc()
		s.logger.Error("warranty event not published", zap.String("type", eventType), zap.String("order_id", orderKey), zap.Error(err))
	}
}

func observe(op string, err error) {
	outcome := metrics.OutcomeSuccess
	switch {
	case err == nil:
	case errors.Is(err, ErrValidation):
		outcome = metrics.OutcomeValidation
	case errors.Is(err, ErrInvalidDate):
		outcome = metrics.OutcomeInvalidDate
	case errors.Is(err, ErrNotFound):
		outcome = metrics.OutcomeNotFound
	default:
		outcome = metrics.OutcomeRemoteFailed
	}
	metrics.WarrantyOperationsTotal.WithLabelValues(op, outcome).Inc()
}

type nopAudit struct{}

func (nopAudit) Save(context.Context, *model.AuditEntry) error { return nil }
func (nopAudit) FindByCustomerID(context.Context, string, int64) ([]*model.AuditEntry, error) {
	return nil, nil
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, model.WarrantyEvent) error { return nil }
