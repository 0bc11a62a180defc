package crawler

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ShapeMatcher extracts the item list from one known payload layout.
// It returns nil when the payload does not have that layout.
type ShapeMatcher func(Payload) []any

const productListWidget = "PRODUCT_LIST"

var itemListKeys = []string{"products", "cards", "items"}

// ShapeMatchers are tried in order; the first non-empty result wins
var ShapeMatchers = []ShapeMatcher{
	topLevelItems,
	widgetItems,
	nestedListingItems,
}

// ResolveItems returns the item list carried by p, or an empty slice when no
// known layout matches
func ResolveItems(p Payload) []any {
	for _, match := range ShapeMatchers {
		if items := match(p); len(items) > 0 {
			return items
		}
	}
	return []any{}
}

// HasMore reads the explicit has-more flag. nil means the payload says nothing.
func HasMore(p Payload) *bool {
	d := p
	if data, ok := p["data"].(map[string]any); ok && len(data) > 0 {
		d = data
	}
	if v, ok := d["hasMore"].(bool); ok {
		return &v
	}
	if pagination, ok := d["pagination"].(map[string]any); ok {
		if v, ok := pagination["hasMore"].(bool); ok {
			return &v
		}
	}
	return nil
}

// DecodePayload parses a response body. Numbers keep their upstream text.
func DecodePayload(body []byte) (Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("payload is %T, not an object", v)
	}
	return Payload(obj), nil
}

// topLevelItems binds to the first key holding a list, even an empty one,
// so a present but empty products list does not fall through to cards
func topLevelItems(p Payload) []any {
	for _, key := range itemListKeys {
		if list, ok := p[key].([]any); ok {
			return list
		}
	}
	return nil
}

func widgetItems(p Payload) []any {
	var widgets []any
	if data, ok := p["data"].(map[string]any); ok {
		widgets, _ = data["widgets"].([]any)
	}
	if len(widgets) == 0 {
		widgets, _ = p["pageWidgets"].([]any)
	}

	var items []any
	for _, w := range widgets {
		widget, ok := w.(map[string]any)
		if !ok || widgetType(widget) != productListWidget {
			continue
		}
		switch data := widget["data"].(type) {
		case []any:
			items = append(items, data...)
		case map[string]any:
			for _, key := range itemListKeys {
				if list, ok := data[key].([]any); ok {
					items = append(items, list...)
				}
			}
		}
	}
	return items
}

func nestedListingItems(p Payload) []any {
	for _, key := range []string{"categoryListing", "plp"} {
		if obj, ok := p[key].(map[string]any); ok {
			if items := firstList(obj, "products"); len(items) > 0 {
				return items
			}
		}
	}
	return nil
}

func widgetType(w map[string]any) string {
	if info, ok := w["widgetInfo"].(map[string]any); ok {
		if t, ok := info["widgetType"].(string); ok && t != "" {
			return t
		}
	}
	t, _ := w["type"].(string)
	return t
}

func firstList(obj map[string]any, keys ...string) []any {
	for _, key := range keys {
		if list, ok := obj[key].([]any); ok && len(list) > 0 {
			return list
		}
	}
	return nil
}
