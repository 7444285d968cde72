// dto.go
package dto

import (
	"bytes"
	"encoding/json"
	"fmt"

	"warranty-proxy-service/internal/model"
)

// FlexibleID accepts an id sent either as a JSON string or a JSON number.
type FlexibleID string

func (f *FlexibleID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or a number: %w", err)
	}
	*f = FlexibleID(n.String())
	return nil
}

func (f FlexibleID) String() string { return string(f) }

// RegisterWarrantyRequest is the body of POST /proxy. NewWarranty is kept raw
// so unknown fields and numeric order ids survive untouched.
type RegisterWarrantyRequest struct {
	CustomerID  FlexibleID      `json:"customerId"`
	NewWarranty json.RawMessage `json:"newWarranty"`
}

// DeleteWarrantyRequest is the body of POST /delete.
type DeleteWarrantyRequest struct {
	CustomerID FlexibleID      `json:"customerId"`
	OrderID    json.RawMessage `json:"order_id"`
}

// OrderIDValue returns the order id as decoded JSON (string or json.Number),
// or nil when absent.
func (r *DeleteWarrantyRequest) OrderIDValue() (any, error) {
	if len(r.OrderID) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(r.OrderID))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

type MetafieldResponse struct {
	Success   bool             `json:"success"`
	Metafield *model.Metafield `json:"metafield"`
}

type WarrantiesResponse struct {
	Success    bool               `json:"success"`
	Warranties model.WarrantyList `json:"warranties"`
}

type HistoryResponse struct {
	Success bool                `json:"success"`
	History []*model.AuditEntry `json:"history"`
}

// ErrorResponse carries either a message or the remote store's raw error payload.
type ErrorResponse struct {
	Success bool `json:"success"`
	Error   any  `json:"error"`
}
