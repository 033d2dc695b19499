package service

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	"stockledger/internal/model"
)

// itemFields accepts both camelCase and snake_case spellings seen from older clients
type itemFields struct {
	Key          string       `json:"key"`
	ProductID    string       `json:"productId"`
	ProductIDAlt string       `json:"product_id"`
	Name         string       `json:"name"`
	ProductName  string       `json:"productName"`
	ProductAlt   string       `json:"product_name"`
	Qty          *json.Number `json:"qty"`
	Quantity     *json.Number `json:"quantity"`
}

// ParseRequestItems normalizes the three accepted item shapes into request items:
//
//	[{"productId": "p1", "name": "Soap", "qty": 3}]
//	{"p1": {"name": "Soap", "qty": 3}}
//	{"p1": 3}
//
// Keys default to the product id and must be unique.
func ParseRequestItems(raw json.RawMessage) ([]model.RequestItem, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, validationError("items are required")
	}

	var items []model.RequestItem
	switch trimmed[0] {
	case '[':
		var list []itemFields
		if err := decodeNumbers(trimmed, &list); err != nil {
			return nil, validationError("items: %v", err)
		}
		for i, f := range list {
			item, err := f.toItem("")
			if err != nil {
				return nil, validationError("items[%d]: %v", i, err)
			}
			items = append(items, item)
		}

	case '{':
		var byKey map[string]json.RawMessage
		if err := decodeNumbers(trimmed, &byKey); err != nil {
			return nil, validationError("items: %v", err)
		}
		keys := make([]string, 0, len(byKey))
		for k := range byKey {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			item, err := parseKeyedItem(k, byKey[k])
			if err != nil {
				return nil, validationError("items[%q]: %v", k, err)
			}
			items = append(items, item)
		}

	default:
		return nil, validationError("items must be a list or an object")
	}

	if len(items) == 0 {
		return nil, validationError("items are required")
	}

	seen := make(map[string]bool, len(items))
	for _, it := range items {
		if seen[it.Key] {
			return nil, validationError("duplicate item key %q", it.Key)
		}
		seen[it.Key] = true
	}
	return items, nil
}

func parseKeyedItem(key string, raw json.RawMessage) (model.RequestItem, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		var f itemFields
		if err := decodeNumbers(raw, &f); err != nil {
			return model.RequestItem{}, err
		}
		return f.toItem(key)
	}

	var n json.Number
	if err := decodeNumbers(raw, &n); err != nil {
		return model.RequestItem{}, errString("expected a quantity or an object")
	}
	return itemFields{Qty: &n}.toItem(key)
}

func (f itemFields) toItem(key string) (model.RequestItem, error) {
	productID := strings.TrimSpace(firstNonEmpty(f.ProductID, f.ProductIDAlt, key))
	if productID == "" {
		return model.RequestItem{}, errString("product id is required")
	}
	if k := strings.TrimSpace(f.Key); k != "" {
		key = k
	}
	if key == "" {
		key = productID
	}

	num := f.Qty
	if num == nil {
		num = f.Quantity
	}
	if num == nil {
		return model.RequestItem{}, errString("quantity is required")
	}
	qty, err := num.Int64()
	if err != nil {
		return model.RequestItem{}, errString("quantity must be a whole number")
	}
	if qty <= 0 {
		return model.RequestItem{}, errString("quantity must be positive")
	}
	if qty > model.MaxQuantity {
		return model.RequestItem{}, errString("quantity is too large")
	}

	return model.RequestItem{
		Key:         key,
		ProductID:   productID,
		ProductName: firstNonEmpty(f.Name, f.ProductName, f.ProductAlt),
		Quantity:    int(qty),
	}, nil
}

func decodeNumbers(raw []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

type errString string

func (e errString) Error() string { return string(e) }
