// Package catalog holds the canonical row format shared by the crawler, the
// sync stage and the alerting consumer.
package catalog

// DefaultVarID is the variant id used when the upstream item has no variants
const DefaultVarID = "default"

// Row is one sellable unit of a catalog item. Empty strings mean absent.
type Row struct {
	Brand      string `json:"brand,omitempty"`
	Name       string `json:"name,omitempty"`
	Discount   string `json:"discount,omitempty"`
	MRP        string `json:"mrp,omitempty"`
	OfferPrice string `json:"offer_price,omitempty"`
	StorePrice string `json:"store_price,omitempty"`
	ProductID  string `json:"product_id"`
	VarID      string `json:"var_id"`
	SKU        string `json:"sku,omitempty"`
	TileID     string `json:"tile_id,omitempty"`
	TileName   string `json:"tile_name,omitempty"`
	Category   string `json:"category,omitempty"`
}

// Key identifies a row in the store
type Key struct {
	ProductID string
	VarID     string
}

// String renders the key the way alert state is indexed
func (k Key) String() string {
	return k.ProductID + ":" + k.VarID
}

// Key returns the row's logical identity
func (r Row) Key() Key {
	return Key{ProductID: r.ProductID, VarID: r.VarID}
}

// Keyed reports whether the row can be safely written
func (r Row) Keyed() bool {
	return r.ProductID != "" && r.VarID != ""
}

// PersistedRow is a Row plus the fingerprint of its content fields
type PersistedRow struct {
	Row
	DataHash string `json:"data_hash"`
}

// Persist resolves the discount and computes the fingerprint for r
func Persist(r Row) PersistedRow {
	r.Discount = ResolveDiscountString(r.MRP, r.OfferPrice, r.Discount)
	return PersistedRow{Row: r, DataHash: Fingerprint(r)}
}
