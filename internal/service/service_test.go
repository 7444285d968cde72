package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"warranty-proxy-service/internal/model"
	"warranty-proxy-service/internal/service/mocks"
	"warranty-proxy-service/internal/shopify"
	"warranty-proxy-service/internal/warranty"
)

const customerID = "6543210"

// memStore is an in-memory MetafieldStore keyed by customer id.
type memStore struct {
	mu     sync.Mutex
	nextID int64
	data   map[string]*model.Metafield
	writes int
}

func newMemStore() *memStore {
	return &memStore{nextID: 100, data: map[string]*model.Metafield{}}
}

func (m *memStore) Fetch(_ context.Context, customerID string) (*model.Metafield, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mf, ok := m.data[customerID]
	if !ok {
		return nil, nil
	}
	cp := *mf
	return &cp, nil
}

func (m *memStore) Write(_ context.Context, customerID, value string, existingID int64) (*model.Metafield, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	id := existingID
	if id == 0 {
		m.nextID++
		id = m.nextID
	}
	mf := &model.Metafield{
		ID:            id,
		Namespace:     model.WarrantyNamespace,
		Key:           model.WarrantyKey,
		Type:          model.WarrantyType,
		Value:         value,
		OwnerID:       json.Number(customerID),
		OwnerResource: model.OwnerCustomer,
	}
	m.data[customerID] = mf
	cp := *mf
	return &cp, nil
}

func (m *memStore) list(t *testing.T, customerID string) model.WarrantyList {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	mf, ok := m.data[customerID]
	require.True(t, ok, "no metafield stored for %s", customerID)
	list, err := warranty.DecodeList(mf.Value)
	require.NoError(t, err)
	return list
}

func warrantyMetafield(t *testing.T, id int64, list model.WarrantyList) *model.Metafield {
	t.Helper()
	value, err := warranty.EncodeList(list)
	require.NoError(t, err)
	return &model.Metafield{ID: id, Namespace: model.WarrantyNamespace, Key: model.WarrantyKey, Type: model.WarrantyType, Value: value}
}

func decodeValue(t *testing.T, value string) model.WarrantyList {
	t.Helper()
	list, err := warranty.DecodeList(value)
	require.NoError(t, err)
	return list
}

func TestRegister_EmptyListCreatesMetafield(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockMetafieldStore(ctrl)
	svc := NewWarrantyService(store, zap.NewNop())

	gomock.InOrder(
		store.EXPECT().Fetch(gomock.Any(), customerID).Return(nil, nil),
		store.EXPECT().
			Write(gomock.Any(), customerID, gomock.Any(), int64(0)).
			DoAndReturn(func(_ context.Context, _ string, value string, _ int64) (*model.Metafield, error) {
				list := decodeValue(t, value)
				require.Len(t, list, 1)
				assert.Equal(t, "1001", list[0][model.FieldOrderID])
				assert.Equal(t, "01/01/2024", list[0][model.FieldPurchaseDate])
				assert.Equal(t, "2025-07-01", list[0][model.FieldEndDate])
				return &model.Metafield{ID: 555, Namespace: model.WarrantyNamespace, Key: model.WarrantyKey, Value: value}, nil
			}),
	)

	mf, err := svc.Register(context.Background(), customerID, model.WarrantyRecord{
		model.FieldOrderID:      "1001",
		model.FieldPurchaseDate: "01/01/2024",
	})

	require.NoError(t, err)
	assert.Equal(t, int64(555), mf.ID)
}

func TestRegister_SameOrderUpdatesInPlace(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockMetafieldStore(ctrl)
	svc := NewWarrantyService(store, zap.NewNop())

	existing := warrantyMetafield(t, 77, model.WarrantyList{
		{model.FieldOrderID: "1001", model.FieldPurchaseDate: "01/01/2024", model.FieldEndDate: "2025-07-01"},
	})

	store.EXPECT().Fetch(gomock.Any(), customerID).Return(existing, nil)
	store.EXPECT().
		Write(gomock.Any(), customerID, gomock.Any(), int64(77)).
		DoAndReturn(func(_ context.Context, _ string, value string, id int64) (*model.Metafield, error) {
			list := decodeValue(t, value)
			require.Len(t, list, 1)
			assert.Equal(t, "15/03/2024", list[0][model.FieldPurchaseDate])
			assert.Equal(t, "2025-09-15", list[0][model.FieldEndDate])
			return &model.Metafield{ID: id, Value: value}, nil
		})

	_, err := svc.Register(context.Background(), customerID, model.WarrantyRecord{
		model.FieldOrderID:      "1001",
		model.FieldPurchaseDate: "15/03/2024",
	})
	require.NoError(t, err)
}

func TestRegister_ComputedEndDateWins(t *testing.T) {
	store := newMemStore()
	svc := NewWarrantyService(store, zap.NewNop())

	_, err := svc.Register(context.Background(), customerID, model.WarrantyRecord{
		model.FieldOrderID:      "1",
		model.FieldPurchaseDate: "31/08/2023",
		model.FieldEndDate:      "2099-01-01",
		"serial":                "SN-1",
	})
	require.NoError(t, err)

	list := store.list(t, customerID)
	require.Len(t, list, 1)
	assert.Equal(t, "2025-03-03", list[0][model.FieldEndDate])
	assert.Equal(t, "SN-1", list[0]["serial"])
}

func TestRegister_DoesNotMutateCallerRecord(t *testing.T) {
	svc := NewWarrantyService(newMemStore(), zap.NewNop())
	in := model.WarrantyRecord{model.FieldOrderID: "1", model.FieldPurchaseDate: "01/01/2024"}

	_, err := svc.Register(context.Background(), customerID, in)
	require.NoError(t, err)

	assert.NotContains(t, in, model.FieldEndDate)
}

func TestRegister_ValidationFailuresMakeNoRemoteCalls(t *testing.T) {
	tests := []struct {
		name       string
		customerID string
		record     model.WarrantyRecord
		wantMsg    string
	}{
		{name: "missing customer", customerID: "", record: model.WarrantyRecord{"order_id": "1", "purchase_date": "01/01/2024"}, wantMsg: "customerId is required"},
		{name: "malformed customer", customerID: "abc", record: model.WarrantyRecord{"order_id": "1", "purchase_date": "01/01/2024"}, wantMsg: shopify.ErrInvalidCustomerID.Error()},
		{name: "missing warranty", customerID: customerID, record: nil, wantMsg: "newWarranty is required"},
		{name: "missing order id", customerID: customerID, record: model.WarrantyRecord{"purchase_date": "01/01/2024"}, wantMsg: "newWarranty.order_id is required"},
		{name: "blank order id", customerID: customerID, record: model.WarrantyRecord{"order_id": "  ", "purchase_date": "01/01/2024"}, wantMsg: "newWarranty.order_id is required"},
		{name: "missing purchase date", customerID: customerID, record: model.WarrantyRecord{"order_id": "1"}, wantMsg: "newWarranty.purchase_date is required"},
		{name: "numeric purchase date", customerID: customerID, record: model.WarrantyRecord{"order_id": "1", "purchase_date": json.Number("20240101")}, wantMsg: "newWarranty.purchase_date is required"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			store := mocks.NewMockMetafieldStore(ctrl)
			svc := NewWarrantyService(store, zap.NewNop())

			_, err := svc.Register(context.Background(), tc.customerID, tc.record)

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
			var svcErr *Error
			require.True(t, errors.As(err, &svcErr))
			assert.Equal(t, tc.wantMsg, svcErr.Message)
		})
	}
}

func TestRegister_InvalidDateMakesNoRemoteCalls(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockMetafieldStore(ctrl)
	svc := NewWarrantyService(store, zap.NewNop())

	_, err := svc.Register(context.Background(), customerID, model.WarrantyRecord{
		model.FieldOrderID:      "1",
		model.FieldPurchaseDate: "31/02/2024",
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidDate)
	assert.False(t, errors.Is(err, ErrRemoteCall))
}

func TestRegister_FetchFailureSkipsWrite(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockMetafieldStore(ctrl)
	svc := NewWarrantyService(store, zap.NewNop())

	remote := &shopify.RemoteError{Op: "fetch_metafields", StatusCode: http.StatusUnauthorized, Payload: json.RawMessage(`{"errors":"bad token"}`)}
	store.EXPECT().Fetch(gomock.Any(), customerID).Return(nil, remote)

	_, err := svc.Register(context.Background(), customerID, model.WarrantyRecord{
		model.FieldOrderID:      "1",
		model.FieldPurchaseDate: "01/01/2024",
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRemoteCall)
	var got *shopify.RemoteError
	require.True(t, errors.As(err, &got))
	assert.Equal(t, http.StatusUnauthorized, got.StatusCode)
}

func TestRegister_WriteFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockMetafieldStore(ctrl)
	audit := mocks.NewMockAuditRepository(ctrl)
	events := mocks.NewMockEventPublisher(ctrl)
	svc := NewWarrantyService(store, zap.NewNop(), WithAudit(audit), WithEvents(events))

	store.EXPECT().Fetch(gomock.Any(), customerID).Return(nil, nil)
	store.EXPECT().Write(gomock.Any(), customerID, gomock.Any(), int64(0)).Return(nil, errors.New("connection reset"))

	_, err := svc.Register(context.Background(), customerID, model.WarrantyRecord{
		model.FieldOrderID:      "1",
		model.FieldPurchaseDate: "01/01/2024",
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRemoteCall)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestRegister_CorruptMetafieldSkipsWrite(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockMetafieldStore(ctrl)
	svc := NewWarrantyService(store, zap.NewNop())

	store.EXPECT().Fetch(gomock.Any(), customerID).Return(&model.Metafield{ID: 9, Value: `{"not":"a list"}`}, nil)

	_, err := svc.Register(context.Background(), customerID, model.WarrantyRecord{
		model.FieldOrderID:      "1",
		model.FieldPurchaseDate: "01/01/2024",
	})

	assert.ErrorIs(t, err, ErrRemoteCall)
}

func TestRegister_AuditsAndPublishes(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockMetafieldStore(ctrl)
	audit := mocks.NewMockAuditRepository(ctrl)
	events := mocks.NewMockEventPublisher(ctrl)
	now := time.Date(2024, time.May, 1, 9, 0, 0, 0, time.UTC)
	svc := NewWarrantyService(store, zap.NewNop(), WithAudit(audit), WithEvents(events), WithClock(func() time.Time { return now }))

	store.EXPECT().Fetch(gomock.Any(), customerID).Return(nil, nil)
	store.EXPECT().Write(gomock.Any(), customerID, gomock.Any(), int64(0)).Return(&model.Metafield{ID: 321}, nil)
	audit.EXPECT().Save(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, e *model.AuditEntry) error {
		assert.NotEmpty(t, e.ID)
		assert.Equal(t, customerID, e.CustomerID)
		assert.Equal(t, "1001", e.OrderID)
		assert.Equal(t, model.ActionRegister, e.Action)
		assert.Equal(t, int64(321), e.MetafieldID)
		assert.Equal(t, 1, e.ListSize)
		assert.Equal(t, "2025-07-01", e.Record[model.FieldEndDate])
		assert.True(t, now.Equal(e.CreatedAt))
		return nil
	})
	events.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, ev model.WarrantyEvent) error {
		assert.Equal(t, model.EventWarrantyRegistered, ev.Type)
		assert.Equal(t, "1001", ev.OrderID)
		assert.Equal(t, "2025-07-01", ev.EndDate)
		return nil
	})

	_, err := svc.Register(context.Background(), "gid://shopify/Customer/"+customerID, model.WarrantyRecord{
		model.FieldOrderID:      json.Number("1001"),
		model.FieldPurchaseDate: "01/01/2024",
	})
	require.NoError(t, err)
}

func TestRegister_SideEffectFailuresDoNotFailRequest(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockMetafieldStore(ctrl)
	audit := mocks.NewMockAuditRepository(ctrl)
	events := mocks.NewMockEventPublisher(ctrl)
	svc := NewWarrantyService(store, zap.NewNop(), WithAudit(audit), WithEvents(events))

	store.EXPECT().Fetch(gomock.Any(), customerID).Return(nil, nil)
	store.EXPECT().Write(gomock.Any(), customerID, gomock.Any(), int64(0)).Return(&model.Metafield{ID: 1}, nil)
	audit.EXPECT().Save(gomock.Any(), gomock.Any()).Return(errors.New("mongo down"))
	events.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("channel closed"))

	mf, err := svc.Register(context.Background(), customerID, model.WarrantyRecord{
		model.FieldOrderID:      "1",
		model.FieldPurchaseDate: "01/01/2024",
	})

	require.NoError(t, err)
	assert.Equal(t, int64(1), mf.ID)
}

func TestDelete_MissingFieldsMakeNoRemoteCalls(t *testing.T) {
	tests := []struct {
		name       string
		customerID string
		orderID    any
	}{
		{name: "missing order id", customerID: customerID, orderID: nil},
		{name: "empty order id", customerID: customerID, orderID: ""},
		{name: "missing customer", customerID: "", orderID: "1001"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			store := mocks.NewMockMetafieldStore(ctrl)
			svc := NewWarrantyService(store, zap.NewNop())

			_, err := svc.Delete(context.Background(), tc.customerID, tc.orderID)

			assert.ErrorIs(t, err, ErrValidation)
			assert.EqualError(t, err, MsgDeleteRequiredFields)
		})
	}
}

func TestDelete_NoMetafieldIsNotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockMetafieldStore(ctrl)
	svc := NewWarrantyService(store, zap.NewNop())

	store.EXPECT().Fetch(gomock.Any(), customerID).Return(nil, nil)

	_, err := svc.Delete(context.Background(), customerID, "1001")

	assert.ErrorIs(t, err, ErrNotFound)
	assert.EqualError(t, err, MsgWarrantyNotFound)
}

func TestDelete_UnknownOrderStillWritesBack(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockMetafieldStore(ctrl)
	audit := mocks.NewMockAuditRepository(ctrl)
	svc := NewWarrantyService(store, zap.NewNop(), WithAudit(audit))

	before := model.WarrantyList{
		{model.FieldOrderID: "1", model.FieldEndDate: "2025-07-01"},
		{model.FieldOrderID: "2", model.FieldEndDate: "2025-08-01"},
	}
	existing := warrantyMetafield(t, 12, before)

	store.EXPECT().Fetch(gomock.Any(), customerID).Return(existing, nil)
	store.EXPECT().Write(gomock.Any(), customerID, existing.Value, int64(12)).Return(existing, nil)

	mf, err := svc.Delete(context.Background(), customerID, "999")

	require.NoError(t, err)
	assert.Equal(t, int64(12), mf.ID)
}

func TestDelete_RemovesRecordAndPublishes(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockMetafieldStore(ctrl)
	events := mocks.NewMockEventPublisher(ctrl)
	svc := NewWarrantyService(store, zap.NewNop(), WithEvents(events))

	existing := warrantyMetafield(t, 12, model.WarrantyList{
		{model.FieldOrderID: "1"},
		{model.FieldOrderID: json.Number("2")},
		{model.FieldOrderID: "3"},
	})

	store.EXPECT().Fetch(gomock.Any(), customerID).Return(existing, nil)
	store.EXPECT().
		Write(gomock.Any(), customerID, gomock.Any(), int64(12)).
		DoAndReturn(func(_ context.Context, _ string, value string, id int64) (*model.Metafield, error) {
			list := decodeValue(t, value)
			require.Len(t, list, 2)
			assert.Equal(t, "1", list[0][model.FieldOrderID])
			assert.Equal(t, "3", list[1][model.FieldOrderID])
			return &model.Metafield{ID: id, Value: value}, nil
		})
	events.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, ev model.WarrantyEvent) error {
		assert.Equal(t, model.EventWarrantyDeleted, ev.Type)
		assert.Equal(t, "2", ev.OrderID)
		return nil
	})

	_, err := svc.Delete(context.Background(), customerID, "2")
	require.NoError(t, err)
}

func TestDelete_FetchFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockMetafieldStore(ctrl)
	svc := NewWarrantyService(store, zap.NewNop())

	store.EXPECT().Fetch(gomock.Any(), customerID).Return(nil, context.DeadlineExceeded)

	_, err := svc.Delete(context.Background(), customerID, "1")

	assert.ErrorIs(t, err, ErrRemoteCall)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestScenario_RegisterUpdateDelete(t *testing.T) {
	store := newMemStore()
	svc := NewWarrantyService(store, zap.NewNop())
	ctx := context.Background()

	_, err := svc.Register(ctx, customerID, model.WarrantyRecord{"order_id": "1001", "purchase_date": "01/01/2024"})
	require.NoError(t, err)
	_, err = svc.Register(ctx, customerID, model.WarrantyRecord{"order_id": "1002", "purchase_date": "05/01/2024", "product": "kettle"})
	require.NoError(t, err)

	list := store.list(t, customerID)
	require.Len(t, list, 2)
	assert.Equal(t, "2025-07-01", list[0]["end_date"])
	assert.Equal(t, "2025-07-05", list[1]["end_date"])

	// Updating 1001 moves it behind 1002.
	mf, err := svc.Register(ctx, customerID, model.WarrantyRecord{"order_id": "1001", "purchase_date": "01/02/2024"})
	require.NoError(t, err)
	assert.Equal(t, int64(101), mf.ID)

	list = store.list(t, customerID)
	require.Len(t, list, 2)
	assert.Equal(t, "1002", list[0]["order_id"])
	assert.Equal(t, "1001", list[1]["order_id"])
	assert.Equal(t, "2025-08-01", list[1]["end_date"])

	_, err = svc.Delete(ctx, customerID, "1002")
	require.NoError(t, err)
	_, err = svc.Delete(ctx, customerID, "1001")
	require.NoError(t, err)

	assert.Empty(t, store.list(t, customerID))
	assert.Equal(t, 5, store.writes)

	// The slot survives with an empty list; deleting again is not a 404.
	_, err = svc.Delete(ctx, customerID, "1001")
	require.NoError(t, err)
}

func TestList_AnnotatesStatus(t *testing.T) {
	store := newMemStore()
	now := time.Date(2025, time.July, 1, 12, 0, 0, 0, time.UTC)
	svc := NewWarrantyService(store, zap.NewNop(), WithClock(func() time.Time { return now }))

	_, err := store.Write(context.Background(), customerID, `[
		{"order_id":"1","purchase_date":"01/01/2024","end_date":"2025-07-01"},
		{"order_id":"2","purchase_date":"01/06/2024","end_date":"2025-12-01"},
		{"order_id":"3","purchase_date":"10/01/2024"},
		{"order_id":"4","purchase_date":"garbage"}
	]`, 0)
	require.NoError(t, err)

	list, err := svc.List(context.Background(), customerID)
	require.NoError(t, err)
	require.Len(t, list, 4)

	assert.Equal(t, warranty.StateExpired, list[0][model.FieldState])
	assert.Equal(t, -1, list[0][model.FieldDaysRemaining])
	assert.Equal(t, warranty.StateUnderWarranty, list[1][model.FieldState])
	assert.Equal(t, 152, list[1][model.FieldDaysRemaining])
	assert.Equal(t, "2025-07-10", list[2][model.FieldEndDate])
	assert.Equal(t, warranty.StateUnderWarranty, list[2][model.FieldState])
	assert.NotContains(t, list[3], model.FieldState)

	// Read-time fields are never written back.
	assert.NotContains(t, store.list(t, customerID)[0], model.FieldState)
}

func TestList_NoMetafieldIsEmpty(t *testing.T) {
	svc := NewWarrantyService(newMemStore(), zap.NewNop())

	list, err := svc.List(context.Background(), customerID)

	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestHistory(t *testing.T) {
	ctrl := gomock.NewController(t)
	audit := mocks.NewMockAuditRepository(ctrl)
	svc := NewWarrantyService(mocks.NewMockMetafieldStore(ctrl), zap.NewNop(), WithAudit(audit))

	audit.EXPECT().FindByCustomerID(gomock.Any(), customerID, int64(50)).Return(nil, nil)
	entries, err := svc.History(context.Background(), customerID, 0)
	require.NoError(t, err)
	assert.NotNil(t, entries)

	audit.EXPECT().FindByCustomerID(gomock.Any(), customerID, int64(5)).Return(nil, errors.New("boom"))
	_, err = svc.History(context.Background(), customerID, 5)
	assert.ErrorIs(t, err, ErrRemoteCall)

	_, err = svc.History(context.Background(), "nope", 5)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestHistory_DisabledAuditIsEmpty(t *testing.T) {
	svc := NewWarrantyService(newMemStore(), zap.NewNop())

	entries, err := svc.History(context.Background(), customerID, 10)

	require.NoError(t, err)
	assert.Empty(t, entries)
}
