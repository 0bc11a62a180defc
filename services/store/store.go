// Package store persists catalog rows keyed by (product_id, var_id).
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/vishalnemlekar/instabot/internal/catalog"
	pkgerrors "github.com/vishalnemlekar/instabot/pkg/errors"
)

// Store is the backing table shared by the crawler and the alerter
type Store interface {
	// ExistingHashes returns the stored fingerprint of every row whose product
	// id is in productIDs and whose var id is in varIDs. A missing fingerprint
	// is returned as "".
	ExistingHashes(ctx context.Context, productIDs, varIDs []string) (map[catalog.Key]string, error)

	// ExistingKeys is ExistingHashes without reading the fingerprint column
	ExistingKeys(ctx context.Context, productIDs, varIDs []string) (map[catalog.Key]struct{}, error)

	// Upsert writes rows in one unit, replacing rows with the same key
	Upsert(ctx context.Context, rows []catalog.PersistedRow) error

	// Page returns rows ordered by key
	Page(ctx context.Context, offset, limit int) ([]catalog.PersistedRow, error)

	// Migrate creates the table and adds missing columns
	Migrate(ctx context.Context) error

	// Table returns the table name
	Table() string

	Close() error
}

// Open connects to the store selected by driver
func Open(ctx context.Context, driver, dsn, table string) (Store, error) {
	switch driver {
	case "postgres":
		return NewPostgresStore(ctx, dsn, table)
	case "sqlite":
		return NewSQLiteStore(dsn, table)
	default:
		return nil, pkgerrors.NewConfiguration(fmt.Sprintf("unknown store driver %q", driver), nil)
	}
}

// quoteTable quotes a possibly schema qualified table name
func quoteTable(table string) string {
	return pgx.Identifier(strings.Split(table, ".")).Sanitize()
}

// nullable stores absent values as NULL
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// scanner is satisfied by pgx.Rows and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

const selectColumns = `product_id, var_id, brand, name, discount, mrp, offer_price, store_price, sku, tile_id, tile_name, category, data_hash`

func scanRow(s scanner) (catalog.PersistedRow, error) {
	var (
		productID, varID                              string
		brand, name, discount, mrp, offer, storePrice *string
		sku, tileID, tileName, category, hash         *string
	)
	if err := s.Scan(&productID, &varID, &brand, &name, &discount, &mrp, &offer, &storePrice,
		&sku, &tileID, &tileName, &category, &hash); err != nil {
		return catalog.PersistedRow{}, err
	}
	return catalog.PersistedRow{
		Row: catalog.Row{
			Brand:      deref(brand),
			Name:       deref(name),
			Discount:   deref(discount),
			MRP:        deref(mrp),
			OfferPrice: deref(offer),
			StorePrice: deref(storePrice),
			ProductID:  productID,
			VarID:      varID,
			SKU:        deref(sku),
			TileID:     deref(tileID),
			TileName:   deref(tileName),
			Category:   deref(category),
		},
		DataHash: deref(hash),
	}, nil
}

// rowArgs returns the insert arguments in column order
func rowArgs(r catalog.PersistedRow) []any {
	return []any{
		r.ProductID, r.VarID,
		nullable(r.Brand), nullable(r.Name), nullable(r.Discount),
		nullable(r.MRP), nullable(r.OfferPrice), nullable(r.StorePrice),
		nullable(r.SKU), nullable(r.TileID), nullable(r.TileName), nullable(r.Category),
		nullable(r.DataHash),
	}
}
