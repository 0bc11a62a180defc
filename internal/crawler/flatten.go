package crawler

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/vishalnemlekar/instabot/internal/catalog"
)

var discountTagPattern = regexp.MustCompile(`\d+%`)

// Flatten expands one raw item into one row per variant, or a single row
// when the item has no variants. Items that are not objects yield nothing.
func Flatten(raw any, attr Attribution) []catalog.Row {
	item, ok := raw.(map[string]any)
	if !ok {
		return nil
	}

	base := catalog.Row{
		Brand:     pick(item, "brand", "info.brand"),
		Name:      pick(item, "display_name", "title", "name", "info.name"),
		Discount:  discountTag(item),
		ProductID: pick(item, "id", "product_id", "itemId", "info.id"),
		TileID:    attr.TileID,
		TileName:  attr.TileName,
		Category:  attr.Category,
	}

	if variations, ok := item["variations"].([]any); ok && len(variations) > 0 {
		rows := make([]catalog.Row, 0, len(variations))
		for _, v := range variations {
			variant, _ := v.(map[string]any)
			rows = append(rows, variantRow(base, item, variant))
		}
		return rows
	}
	return []catalog.Row{singleRow(base, item)}
}

// FlattenAll flattens every item of a page
func FlattenAll(items []any, attr Attribution) []catalog.Row {
	var rows []catalog.Row
	for _, it := range items {
		rows = append(rows, Flatten(it, attr)...)
	}
	return rows
}

func variantRow(row catalog.Row, item, variant map[string]any) catalog.Row {
	price, _ := first(variant, "price").(map[string]any)

	row.MRP = firstString(
		lookup(price, "mrp"), lookup(item, "mrp"), lookup(item, "price.mrp"))
	row.OfferPrice = firstString(
		lookup(price, "offer_price"), lookup(item, "offer_price"), lookup(item, "finalPrice"))
	row.StorePrice = firstString(
		lookup(price, "store_price"), lookup(price, "price"), lookup(price, "mrp"), lookup(item, "store_price"))
	row.SKU = pick(variant, "sku", "code", "barcode")
	row.VarID = pick(variant, "id", "skuId", "sku_id", "variation_id")
	return row
}

func singleRow(row catalog.Row, item map[string]any) catalog.Row {
	price, _ := first(item, "price").(map[string]any)

	row.MRP = firstString(lookup(price, "mrp"), lookup(item, "mrp"))
	row.OfferPrice = firstString(
		lookup(price, "offer_price"), lookup(item, "offer_price"), lookup(item, "finalPrice"))
	row.StorePrice = firstString(
		lookup(price, "store_price"), lookup(price, "price"), lookup(price, "mrp"), lookup(item, "store_price"))
	row.SKU = pick(item, "sku", "code", "barcode")
	row.VarID = pick(item, "skuId", "sku_id", "variation_id")
	if row.VarID == "" {
		row.VarID = catalog.DefaultVarID
	}
	return row
}

func discountTag(item map[string]any) string {
	tag, _ := first(item, "listing_description", "product_description").(string)
	return discountTagPattern.FindString(tag)
}

// pick resolves the first truthy value among dotted paths in obj
func pick(obj map[string]any, paths ...string) string {
	vals := make([]any, len(paths))
	for i, p := range paths {
		vals[i] = lookup(obj, p)
	}
	return firstString(vals...)
}

// first returns the first truthy value among top-level keys of obj
func first(obj map[string]any, keys ...string) any {
	for _, k := range keys {
		if v := obj[k]; truthy(v) {
			return v
		}
	}
	return nil
}

func lookup(obj map[string]any, path string) any {
	var cur any = obj
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[part]
	}
	return cur
}

func firstString(vals ...any) string {
	for _, v := range vals {
		if truthy(v) {
			return stringify(v)
		}
	}
	return ""
}

// truthy skips nil, blank strings, zero numbers, false and empty containers
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case json.Number:
		f, err := t.Float64()
		return err != nil || f != 0
	case float64:
		return t != 0
	case int:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
