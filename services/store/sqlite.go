package store

import (
	"context"
	"database/sql"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/vishalnemlekar/instabot/internal/catalog"
	"github.com/vishalnemlekar/instabot/logger"
	pkgerrors "github.com/vishalnemlekar/instabot/pkg/errors"
)

// SQLiteStore implements Store on a local SQLite file
type SQLiteStore struct {
	db    *sql.DB
	table string
	ident string
	log   *logger.Logger
}

// NewSQLiteStore opens the database at dsn
func NewSQLiteStore(dsn, table string) (*SQLiteStore, error) {
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, pkgerrors.NewStoreRead(table, "opening database", err)
	}
	// one writer at a time
	db.SetMaxOpenConns(1)

	return &SQLiteStore{db: db, table: table, ident: quoteTable(table), log: logger.ForStore()}, nil
}

// Table implements Store
func (s *SQLiteStore) Table() string { return s.table }

// inClause returns "?,?,..." for n values
func inClause(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func keyFilterArgs(productIDs, varIDs []string) []any {
	args := make([]any, 0, len(productIDs)+len(varIDs))
	for _, p := range productIDs {
		args = append(args, p)
	}
	for _, v := range varIDs {
		args = append(args, v)
	}
	return args
}

// ExistingHashes implements Store
func (s *SQLiteStore) ExistingHashes(ctx context.Context, productIDs, varIDs []string) (map[catalog.Key]string, error) {
	out := map[catalog.Key]string{}
	if len(productIDs) == 0 || len(varIDs) == 0 {
		return out, nil
	}

	query := `SELECT product_id, var_id, data_hash FROM ` + s.ident +
		` WHERE product_id IN (` + inClause(len(productIDs)) + `) AND var_id IN (` + inClause(len(varIDs)) + `)`
	rows, err := s.db.QueryContext(ctx, query, keyFilterArgs(productIDs, varIDs)...)
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
func (s *SQLiteStore) ExistingKeys(ctx context.Context, productIDs, varIDs []string) (map[catalog.Key]struct{}, error) {
	out := map[catalog.Key]struct{}{}
	if len(productIDs) == 0 || len(varIDs) == 0 {
		return out, nil
	}

	query := `SELECT product_id, var_id FROM ` + s.ident +
		` WHERE product_id IN (` + inClause(len(productIDs)) + `) AND var_id IN (` + inClause(len(varIDs)) + `)`
	rows, err := s.db.QueryContext(ctx, query, keyFilterArgs(productIDs, varIDs)...)
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

// Upsert implements Store
func (s *SQLiteStore) Upsert(ctx context.Context, rows []catalog.PersistedRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return pkgerrors.NewStoreWrite(s.table, "failed to begin", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO `+s.ident+`
		(product_id, var_id, brand, name, discount, mrp, offer_price, store_price,
		 sku, tile_id, tile_name, category, data_hash, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?, CURRENT_TIMESTAMP)
		ON CONFLICT(product_id, var_id) DO UPDATE SET
			brand = excluded.brand,
			name = excluded.name,
			discount = excluded.discount,
			mrp = excluded.mrp,
			offer_price = excluded.offer_price,
			store_price = excluded.store_price,
			sku = excluded.sku,
			tile_id = excluded.tile_id,
			tile_name = excluded.tile_name,
			category = excluded.category,
			data_hash = excluded.data_hash,
			updated_at = CURRENT_TIMESTAMP`)
	if err != nil {
		return pkgerrors.NewStoreWrite(s.table, "failed to prepare upsert", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, rowArgs(r)...); err != nil {
			return pkgerrors.NewStoreWrite(s.table, "failed to upsert "+r.Key().String(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return pkgerrors.NewStoreWrite(s.table, "failed to commit", err)
	}
	return nil
}

// Page implements Store
func (s *SQLiteStore) Page(ctx context.Context, offset, limit int) ([]catalog.PersistedRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM `+s.ident+` ORDER BY product_id, var_id LIMIT ? OFFSET ?`,
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
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+s.ident+` (
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
		updated_at  TEXT DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (product_id, var_id)
	)`)
	if err != nil {
		return pkgerrors.NewStoreWrite(s.table, "failed to create table", err)
	}

	has, err := s.hasColumn(ctx, "data_hash")
	if err != nil {
		return pkgerrors.NewStoreRead(s.table, "failed to inspect table", err)
	}
	if !has {
		if _, err := s.db.ExecContext(ctx, `ALTER TABLE `+s.ident+` ADD COLUMN data_hash TEXT`); err != nil {
			return pkgerrors.NewStoreWrite(s.table, "failed to add data_hash", err)
		}
	}
	s.log.Info().Str("table", s.table).Msg("Table migrated")
	return nil
}

func (s *SQLiteStore) hasColumn(ctx context.Context, column string) (bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, s.table)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// Close implements Store
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
