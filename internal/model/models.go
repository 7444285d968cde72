// models.go
package model

import (
	"encoding/json"
	"time"
)

// Metafield slot holding a customer's warranty list.
const (
	WarrantyNamespace = "custom"
	WarrantyKey       = "shopify_warranty"
	WarrantyType      = "json"
	OwnerCustomer     = "customer"
)

// Field names inside a warranty record.
const (
	FieldOrderID       = "order_id"
	FieldPurchaseDate  = "purchase_date"
	FieldEndDate       = "end_date"
	FieldState         = "state"
	FieldDaysRemaining = "days_remaining"
)

// WarrantyRecord is one warranty as stored in the metafield. It is a plain
// JSON object so fields the service does not know about survive a round trip.
type WarrantyRecord map[string]any

// WarrantyList is the ordered, order_id-unique content of the metafield.
type WarrantyList []WarrantyRecord

// Clone returns a shallow copy; nested values are shared.
func (r WarrantyRecord) Clone() WarrantyRecord {
	out := make(WarrantyRecord, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Metafield mirrors the Shopify Admin REST metafield resource.
type Metafield struct {
	ID                int64       `json:"id,omitempty"`
	Namespace         string      `json:"namespace"`
	Key               string      `json:"key"`
	Type              string      `json:"type,omitempty"`
	Value             string      `json:"value"`
	OwnerID           json.Number `json:"owner_id,omitempty"`
	OwnerResource     string      `json:"owner_resource,omitempty"`
	Description       string      `json:"description,omitempty"`
	AdminGraphqlAPIID string      `json:"admin_graphql_api_id,omitempty"`
	CreatedAt         *time.Time  `json:"created_at,omitempty"`
	UpdatedAt         *time.Time  `json:"updated_at,omitempty"`
}

// IsWarrantySlot reports whether m is the custom.shopify_warranty metafield.
func (m Metafield) IsWarrantySlot() bool {
	return m.Namespace == WarrantyNamespace && m.Key == WarrantyKey
}

// Audit actions.
const (
	ActionRegister = "register"
	ActionDelete   = "delete"
)

// AuditEntry records one successful mutation of a customer's warranty list.
type AuditEntry struct {
	ID          string         `bson:"_id" json:"id"`
	CustomerID  string         `bson:"customer_id" json:"customerId"`
	OrderID     string         `bson:"order_id" json:"orderId"`
	Action      string         `bson:"action" json:"action"`
	Record      map[string]any `bson:"record,omitempty" json:"record,omitempty"`
	MetafieldID int64          `bson:"metafield_id" json:"metafieldId"`
	ListSize    int            `bson:"list_size" json:"listSize"`
	CreatedAt   time.Time      `bson:"created_at" json:"createdAt"`
}

// Event types published after a mutation.
const (
	EventWarrantyRegistered = "warranty.registered"
	EventWarrantyDeleted    = "warranty.deleted"
)

type WarrantyEvent struct {
	EventID    string    `json:"event_id"`
	Type       string    `json:"type"`
	CustomerID string    `json:"customer_id"`
	OrderID    string    `json:"order_id"`
	EndDate    string    `json:"end_date,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
