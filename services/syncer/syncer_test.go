package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vishalnemlekar/instabot/internal/catalog"
	"github.com/vishalnemlekar/instabot/services/publisher"
	"github.com/vishalnemlekar/instabot/services/store"
)

// fakeStore keeps rows in memory and can be told to fail
type fakeStore struct {
	mu        sync.Mutex
	rows      map[catalog.Key]catalog.PersistedRow
	hashErr   error
	keysErr   error
	upsertErr func(batch []catalog.PersistedRow) error
	upserts   [][]catalog.PersistedRow
	lookups   [][2][]string
}

var _ store.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{rows: map[catalog.Key]catalog.PersistedRow{}}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (f *fakeStore) ExistingHashes(_ context.Context, productIDs, varIDs []string) (map[catalog.Key]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups = append(f.lookups, [2][]string{productIDs, varIDs})
	if f.hashErr != nil {
		return nil, f.hashErr
	}
	out := map[catalog.Key]string{}
	for k, r := range f.rows {
		if contains(productIDs, k.ProductID) && contains(varIDs, k.VarID) {
			out[k] = r.DataHash
		}
	}
	return out, nil
}

func (f *fakeStore) ExistingKeys(_ context.Context, productIDs, varIDs []string) (map[catalog.Key]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keysErr != nil {
		return nil, f.keysErr
	}
	out := map[catalog.Key]struct{}{}
	for k := range f.rows {
		if contains(productIDs, k.ProductID) && contains(varIDs, k.VarID) {
			out[k] = struct{}{}
		}
	}
	return out, nil
}

func (f *fakeStore) Upsert(_ context.Context, rows []catalog.PersistedRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		if err := f.upsertErr(rows); err != nil {
			return err
		}
	}
	f.upserts = append(f.upserts, rows)
	for _, r := range rows {
		f.rows[r.Key()] = r
	}
	return nil
}

func (f *fakeStore) Page(context.Context, int, int) ([]catalog.PersistedRow, error) {
	return nil, nil
}

func (f *fakeStore) Migrate(context.Context) error { return nil }
func (f *fakeStore) Table() string { return "fake" }
func (f *fakeStore) Close() error { return nil }

type fakePublisher struct {
	events []publisher.ChangeEvent
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, key string, message []byte) error {
	if p.err != nil {
		return p.err
	}
	if key != publisher.ChangeMessageKey {
		return fmt.Errorf("unexpected key %q", key)
	}
	var ev publisher.ChangeEvent
	if err := json.Unmarshal(message, &ev); err != nil {
		return err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePublisher) TrimStreams(context.Context) error { return nil }
func (p *fakePublisher) Close() error { return nil }

func row(pid, vid, offer string) catalog.Row {
	return catalog.Row{
		Name:       "Item " + pid,
		MRP:        "100",
		OfferPrice: offer,
		ProductID:  pid,
		VarID:      vid,
		TileID:     "parent",
		TileName:   "Parent",
	}
}

func TestSyncClassifiesRows(t *testing.T) {
	st := newFakeStore()
	pub := &fakePublisher{}
	s := NewSyncer(st, pub, 0)

	first := s.Sync(context.Background(), "run-1", []catalog.Row{
		row("P1", "V1", "80"),
		row("P2", "V1", "90"),
	})
	assert.Equal(t, Summary{New: 2, Written: 2}, first)

	second := s.Sync(context.Background(), "run-2", []catalog.Row{
		row("P1", "V1", "80"),
		row("P2", "V1", "50"),
		row("P3", "V1", "70"),
	})
	assert.Equal(t, Summary{New: 1, Changed: 1, Skipped: 1, Written: 2}, second)

	stored := st.rows[catalog.Key{ProductID: "P2", VarID: "V1"}]
	assert.Equal(t, "50%", stored.Discount)

	require.Len(t, pub.events, 4)
	assert.Equal(t, "run-2", pub.events[2].RunID)
	assert.Equal(t, publisher.ChangeChanged, pub.events[2].Kind)
	assert.Equal(t, "P2", pub.events[2].Row.ProductID)
	assert.Equal(t, publisher.ChangeNew, pub.events[3].Kind)
}

func TestSyncUnchangedRowsAreNotWritten(t *testing.T) {
	st := newFakeStore()
	s := NewSyncer(st, nil, 0)
	rows := []catalog.Row{row("P1", "V1", "80")}

	s.Sync(context.Background(), "run-1", rows)
	sum := s.Sync(context.Background(), "run-2", rows)

	assert.Equal(t, Summary{Skipped: 1}, sum)
	assert.Len(t, st.upserts, 1)
}

func TestSyncDropsUnkeyedRows(t *testing.T) {
	st := newFakeStore()
	s := NewSyncer(st, nil, 0)

	sum := s.Sync(context.Background(), "run", []catalog.Row{
		row("", "V1", "80"),
		row("P1", "", "80"),
		row("P2", "V1", "80"),
	})
	assert.Equal(t, 2, sum.Invalid)
	assert.Equal(t, 1, sum.New)
	assert.Len(t, st.rows, 1)
}

func TestSyncBatches(t *testing.T) {
	st := newFakeStore()
	s := NewSyncer(st, nil, 2)

	var rows []catalog.Row
	for i := range 5 {
		rows = append(rows, row(fmt.Sprintf("P%d", i), "V1", "80"))
	}
	sum := s.Sync(context.Background(), "run", rows)

	assert.Equal(t, 5, sum.Written)
	require.Len(t, st.upserts, 3)
	assert.Len(t, st.upserts[0], 2)
	assert.Len(t, st.upserts[2], 1)
	require.Len(t, st.lookups, 3)
	assert.Equal(t, []string{"P0", "P1"}, st.lookups[0][0])
	assert.Equal(t, []string{"V1"}, st.lookups[0][1])
}

func TestSyncDegradedKeyLookup(t *testing.T) {
	st := newFakeStore()
	s := NewSyncer(st, nil, 0)
	s.Sync(context.Background(), "run-1", []catalog.Row{row("P1", "V1", "80")})

	st.hashErr = errors.New(`column "data_hash" does not exist`)
	sum := s.Sync(context.Background(), "run-2", []catalog.Row{
		row("P1", "V1", "80"),
		row("P2", "V1", "80"),
	})

	// without fingerprints every present key is rewritten
	assert.Equal(t, Summary{New: 1, Changed: 1, Written: 2}, sum)
}

func TestSyncAllLookupsFail(t *testing.T) {
	st := newFakeStore()
	st.hashErr = errors.New("down")
	st.keysErr = errors.New("down")
	s := NewSyncer(st, nil, 0)

	sum := s.Sync(context.Background(), "run", []catalog.Row{row("P1", "V1", "80")})
	assert.Equal(t, Summary{New: 1, Written: 1}, sum)
}

func TestSyncWriteFailureSkipsBatchOnly(t *testing.T) {
	st := newFakeStore()
	calls := 0
	st.upsertErr = func([]catalog.PersistedRow) error {
		calls++
		if calls == 1 {
			return errors.New("deadlock detected")
		}
		return nil
	}
	pub := &fakePublisher{}
	s := NewSyncer(st, pub, 1)

	sum := s.Sync(context.Background(), "run", []catalog.Row{
		row("P1", "V1", "80"),
		row("P2", "V1", "80"),
	})

	assert.Equal(t, 1, sum.FailedBatches)
	assert.Equal(t, 1, sum.Written)
	assert.Equal(t, 2, sum.New)
	require.Len(t, pub.events, 1)
	assert.Equal(t, "P2", pub.events[0].Row.ProductID)
}

func TestSyncPublishFailureDoesNotFailWrite(t *testing.T) {
	st := newFakeStore()
	s := NewSyncer(st, &fakePublisher{err: errors.New("redis down")}, 0)

	sum := s.Sync(context.Background(), "run", []catalog.Row{row("P1", "V1", "80")})
	assert.Equal(t, 1, sum.Written)
	assert.Len(t, st.rows, 1)
}

func TestSyncStopsOnCancelledContext(t *testing.T) {
	st := newFakeStore()
	s := NewSyncer(st, nil, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sum := s.Sync(ctx, "run", []catalog.Row{row("P1", "V1", "80")})

	assert.Zero(t, sum.Written)
	assert.Empty(t, st.upserts)
}

func TestSummaryAdd(t *testing.T) {
	s := Summary{New: 1, Written: 1}
	s.Add(Summary{Changed: 2, Written: 2, FailedBatches: 1})
	assert.Equal(t, Summary{New: 1, Changed: 2, Written: 3, FailedBatches: 1}, s)
}
