package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vishalnemlekar/instabot/internal/catalog"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "catalog.db"), "instamart_products")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func persisted(pid, vid, name, mrp, offer string) catalog.PersistedRow {
	return catalog.Persist(catalog.Row{
		Brand:      "Amul",
		Name:       name,
		MRP:        mrp,
		OfferPrice: offer,
		ProductID:  pid,
		VarID:      vid,
		TileID:     "F1",
		TileName:   "Milk",
		Category:   "Dairy",
	})
}

func TestSQLiteUpsertAndRead(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a := persisted("P1", "V1", "Taaza Milk", "30", "27")
	b := persisted("P2", catalog.DefaultVarID, "Butter", "60", "")
	require.NoError(t, s.Upsert(ctx, []catalog.PersistedRow{a, b}))

	hashes, err := s.ExistingHashes(ctx, []string{"P1", "P2", "P3"}, []string{"V1", catalog.DefaultVarID})
	require.NoError(t, err)
	assert.Equal(t, map[catalog.Key]string{
		a.Key(): a.DataHash,
		b.Key(): b.DataHash,
	}, hashes)

	keys, err := s.ExistingKeys(ctx, []string{"P1"}, []string{"V1"})
	require.NoError(t, err)
	assert.Equal(t, map[catalog.Key]struct{}{a.Key(): {}}, keys)

	rows, err := s.Page(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, a, rows[0])
	assert.Equal(t, "", rows[1].OfferPrice)
	assert.Equal(t, "", rows[1].Discount)
}

func TestSQLiteUpsertReplaces(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Upsert(ctx, []catalog.PersistedRow{persisted("P1", "V1", "Milk", "30", "27")}))
	updated := persisted("P1", "V1", "Milk", "30", "15")
	require.NoError(t, s.Upsert(ctx, []catalog.PersistedRow{updated}))

	rows, err := s.Page(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "15", rows[0].OfferPrice)
	assert.Equal(t, "50%", rows[0].Discount)
	assert.Equal(t, updated.DataHash, rows[0].DataHash)
}

func TestSQLiteEmptyFilters(t *testing.T) {
	s := newTestStore(t)

	hashes, err := s.ExistingHashes(context.Background(), nil, []string{"V1"})
	require.NoError(t, err)
	assert.Empty(t, hashes)

	assert.NoError(t, s.Upsert(context.Background(), nil))
}

func TestSQLitePaging(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var rows []catalog.PersistedRow
	for _, pid := range []string{"P3", "P1", "P2"} {
		rows = append(rows, persisted(pid, "V1", "Item "+pid, "10", "9"))
	}
	require.NoError(t, s.Upsert(ctx, rows))

	first, err := s.Page(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "P1", first[0].ProductID)
	assert.Equal(t, "P2", first[1].ProductID)

	rest, err := s.Page(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "P3", rest[0].ProductID)

	none, err := s.Page(ctx, 3, 2)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteTableWithoutFingerprint(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "legacy.db")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE instamart_products (
		product_id TEXT NOT NULL, var_id TEXT NOT NULL, name TEXT,
		PRIMARY KEY (product_id, var_id))`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO instamart_products (product_id, var_id, name) VALUES ('P1', 'V1', 'Milk')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := NewSQLiteStore(path, "instamart_products")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.ExistingHashes(ctx, []string{"P1"}, []string{"V1"})
	assert.Error(t, err)

	keys, err := s.ExistingKeys(ctx, []string{"P1"}, []string{"V1"})
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}

func TestSQLiteMigrateAddsFingerprint(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "legacy.db")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE instamart_products (
		product_id TEXT NOT NULL, var_id TEXT NOT NULL, brand TEXT, name TEXT,
		discount TEXT, mrp TEXT, offer_price TEXT, store_price TEXT, sku TEXT,
		tile_id TEXT, tile_name TEXT, category TEXT, updated_at TEXT,
		PRIMARY KEY (product_id, var_id))`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := NewSQLiteStore(path, "instamart_products")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Migrate(ctx))

	hashes, err := s.ExistingHashes(ctx, []string{"P1"}, []string{"V1"})
	require.NoError(t, err)
	assert.Empty(t, hashes)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "dsn", "t")
	assert.Error(t, err)
}
