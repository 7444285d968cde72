package warranty

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"warranty-proxy-service/internal/model"
)

var ErrNotObject = errors.New("warranty record must be a JSON object")

// OrderKey normalises an order_id value so "1001" and 1001 compare equal.
// ok is false for missing, empty or non-scalar ids.
func OrderKey(v any) (key string, ok bool) {
	switch id := v.(type) {
	case string:
		key = strings.TrimSpace(id)
	case json.Number:
		key = numberKey(id)
	case float64:
		key = strconv.FormatFloat(id, 'f', -1, 64)
	case int:
		key = strconv.Itoa(id)
	case int64:
		key = strconv.FormatInt(id, 10)
	default:
		return "", false
	}
	return key, key != ""
}

// numberKey keeps integer literals exact. Only literals with a fraction or
// exponent that denote a small integer, like 1001.0, fold into that integer.
func numberKey(id json.Number) string {
	lit := strings.TrimSpace(id.String())
	if n, err := id.Int64(); err == nil {
		return strconv.FormatInt(n, 10)
	}
	if !strings.ContainsAny(lit, ".eE") {
		return lit
	}
	if f, err := id.Float64(); err == nil && f == math.Trunc(f) && math.Abs(f) <= 1<<53 {
		return strconv.FormatInt(int64(f), 10)
	}
	return lit
}

// Upsert drops every record sharing record's order_id and appends record at
// the end. An updated record therefore moves to the back of the list.
// The input list is not modified.
func Upsert(list model.WarrantyList, record model.WarrantyRecord) model.WarrantyList {
	key, hasKey := OrderKey(record[model.FieldOrderID])

	out := make(model.WarrantyList, 0, len(list)+1)
	for _, r := range list {
		if hasKey && matches(r, key) {
			continue
		}
		out = append(out, r)
	}
	return append(out, record)
}

// Delete removes the record with orderID. Deleting an unknown id returns an
// equal list and removed=false.
func Delete(list model.WarrantyList, orderID any) (out model.WarrantyList, removed bool) {
	key, hasKey := OrderKey(orderID)

	out = make(model.WarrantyList, 0, len(list))
	for _, r := range list {
		if hasKey && matches(r, key) {
			removed = true
			continue
		}
		out = append(out, r)
	}
	return out, removed
}

func matches(r model.WarrantyRecord, key string) bool {
	k, ok := OrderKey(r[model.FieldOrderID])
	return ok && k == key
}

// DecodeList parses a metafield value. An empty value is an empty list.
func DecodeList(value string) (model.WarrantyList, error) {
	if strings.TrimSpace(value) == "" {
		return model.WarrantyList{}, nil
	}

	dec := json.NewDecoder(strings.NewReader(value))
	dec.UseNumber()

	var raw []map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode warranty list: %w", err)
	}

	list := make(model.WarrantyList, 0, len(raw))
	for i, r := range raw {
		if r == nil {
			return nil, fmt.Errorf("decode warranty list: element %d: %w", i, ErrNotObject)
		}
		list = append(list, r)
	}
	return list, nil
}

// EncodeList renders list as a metafield value; nil encodes as [].
func EncodeList(list model.WarrantyList) (string, error) {
	if list == nil {
		list = model.WarrantyList{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("encode warranty list: %w", err)
	}
	return string(b), nil
}

// DecodeRecord parses a caller-supplied warranty object, keeping numbers exact.
func DecodeRecord(raw []byte) (model.WarrantyRecord, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, ErrNotObject
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var rec map[string]any
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotObject, err)
	}
	if rec == nil {
		return nil, ErrNotObject
	}
	return rec, nil
}
