package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vishalnemlekar/instabot/internal/catalog"
	"github.com/vishalnemlekar/instabot/logger"
	pkgerrors "github.com/vishalnemlekar/instabot/pkg/errors"
)

// PostgresStore implements Store on a pgx connection pool
type PostgresStore struct {
	pool  *pgxpool.Pool
	table string
	ident string
	log   *logger.Logger
}

// NewPostgresStore opens a pool for dsn
func NewPostgresStore(ctx context.Context, dsn, table string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, pkgerrors.NewConfiguration("invalid postgres DSN", err)
	}
	if cfg.MaxConns <= 0 || cfg.MaxConns > 4 {
		cfg.MaxConns = 4
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, pkgerrors.NewStoreRead(table, "failed to connect", err)
	}

	return &PostgresStore{pool: pool, table: table, ident: quoteTable(table), log: logger.ForStore()}, nil
}

// Table implements Store
func (s *PostgresStore) Table() string { return s.table }

// ExistingHashes implements Store
func (s *PostgresStore) ExistingHashes(ctx context.Context, productIDs, varIDs []string) (map[catalog.Key]string, error) {
	out := map[catalog.Key]string{}
	if len(productIDs) == 0 || len(varIDs) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT product_id, var_id, data_hash FROM `+s.ident+`
		 WHERE product_id = ANY($1) AND var_id = ANY($2)`,
		productIDs, varIDs)
	if err != nil {
		return nil, pkgerrors.NewStoreRead(s.table, "failed to read fingerprints", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pid, vid string
		var hash *string
		if err := rows.Scan(&pid, &vid, &hash); err != nil {
			return nil, pkgerrors.NewStoreRead(s.table, "failed to scan fingerprint", err)
		}
		out[catalog.Key{ProductID: pid, VarID: vid}] = deref(hash)
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.NewStoreRead(s.table, "failed to read fingerprints", err)
	}
	return out, nil
}

// ExistingKeys implements Store
func (s *PostgresStore) ExistingKeys(ctx context.Context, productIDs, varIDs []string) (map[catalog.Key]struct{}, error) {
	out := map[catalog.Key]struct{}{}
	if len(productIDs) == 0 || len(varIDs) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT product_id, var_id FROM `+s.ident+`
		 WHERE product_id = ANY($1) AND var_id = ANY($2)`,
		productIDs, varIDs)
	if err != nil {
		return nil, pkgerrors.NewStoreRead(s.table, "failed to read keys", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pid, vid string
		if err := rows.Scan(&pid, &vid); err != nil {
			return nil, pkgerrors.NewStoreRead(s.table, "failed to scan key", err)
		}
		out[catalog.Key{ProductID: pid, VarID: vid}] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.NewStoreRead(s.table, "failed to read keys", err)
	}
	return out, nil
}

// Upsert implements Store. All rows go out in one batch inside one transaction.
func (s *PostgresStore) Upsert(ctx context.Context, rows []catalog.PersistedRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return pkgerrors.NewStoreWrite(s.table, "failed to begin", err)
	}
	defer tx.Rollback(ctx)

	query := `INSERT INTO ` + s.ident + `
		(product_id, var_id, brand, name, discount, mrp, offer_price, store_price,
		 sku, tile_id, tile_name, category, data_hash, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13, now())
		ON CONFLICT (product_id, var_id) DO UPDATE SET
			brand = EXCLUDED.brand,
			name = EXCLUDED.name,
			discount = EXCLUDED.discount,
			mrp = EXCLUDED.mrp,
			offer_price = EXCLUDED.offer_price,
			store_price = EXCLUDED.store_price,
			sku = EXCLUDED.sku,
			tile_id = EXCLUDED.tile_id,
			tile_name = EXCLUDED.tile_name,
			category = EXCLUDED.category,
			data_hash = EXCLUDED.data_hash,
			updated_at = now()`

	b := &pgx.Batch{}
	for _, r := range rows {
		b.Queue(query, rowArgs(r)...)
	}

	br := tx.SendBatch(ctx, b)
	for i := 0; i < len(rows); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return pkgerrors.NewStoreWrite(s.table, fmt.Sprintf("failed to upsert row %d", i), err)
		}
	}
	if err := br.Close(); err != nil {
		return pkgerrors.NewStoreWrite(s.table, "failed to close batch", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return pkgerrors.NewStoreWrite(s.table, "failed to commit", err)
	}
	return nil
}

// Page implements Store
func (s *PostgresStore) Page(ctx context.Context, offset, limit int) ([]catalog.PersistedRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT product_id, var_id, brand, name, discount, mrp::text, offer_price::text, store_price::text,
		        sku, tile_id, tile_name, category, data_hash
		 FROM `+s.ident+`
		 ORDER BY product_id, var_id
		 LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, pkgerrors.NewStoreRead(s.table, "failed to page rows", err)
	}
	defer rows.Close()

	var out []catalog.PersistedRow
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, pkgerrors.NewStoreRead(s.table, "failed to scan row", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.NewStoreRead(s.table, "failed to page rows", err)
	}
	return out, nil
}

// Migrate implements Store
func (s *PostgresStore) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + s.ident + ` (
			product_id  TEXT NOT NULL,
			var_id      TEXT NOT NULL,
			brand       TEXT,
			name        TEXT,
			discount    TEXT,
			mrp         TEXT,
			offer_price TEXT,
			store_price TEXT,
			sku         TEXT,
			tile_id     TEXT,
			tile_name   TEXT,
			category    TEXT,
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (product_id, var_id)
		)`,
		`ALTER TABLE ` + s.ident + ` ADD COLUMN IF NOT EXISTS data_hash TEXT`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return pkgerrors.NewStoreWrite(s.table, "failed to migrate", err)
		}
	}
	s.log.Info().Str("table", s.table).Msg("Table migrated")
	return nil
}

// Close implements Store
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
