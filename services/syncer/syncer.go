// Package syncer writes crawled rows to the store, touching only rows whose
// content changed since the last pass.
package syncer

import (
	"context"
	"time"

	"github.com/vishalnemlekar/instabot/internal/catalog"
	"github.com/vishalnemlekar/instabot/logger"
	"github.com/vishalnemlekar/instabot/services/publisher"
	"github.com/vishalnemlekar/instabot/services/store"
)

// DefaultBatchSize is the number of rows compared and written per round trip
const DefaultBatchSize = 400

// Summary counts what one Sync call did
type Summary struct {
	New           int `json:"new"`
	Changed       int `json:"changed"`
	Skipped       int `json:"skipped"`
	Invalid       int `json:"invalid"`
	Written       int `json:"written"`
	FailedBatches int `json:"failed_batches"`
}

// Add accumulates o into s
func (s *Summary) Add(o Summary) {
	s.New += o.New
	s.Changed += o.Changed
	s.Skipped += o.Skipped
	s.Invalid += o.Invalid
	s.Written += o.Written
	s.FailedBatches += o.FailedBatches
}

// Syncer compares rows against the store by fingerprint and upserts the delta
type Syncer struct {
	store     store.Store
	publisher publisher.Publisher
	batchSize int
	log       *logger.Logger
	now       func() time.Time
}

// NewSyncer creates a syncer. pub may be nil to disable the change feed.
func NewSyncer(st store.Store, pub publisher.Publisher, batchSize int) *Syncer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Syncer{
		store:     st,
		publisher: pub,
		batchSize: batchSize,
		log:       logger.ForSync(),
		now:       time.Now,
	}
}

// Sync processes rows in batches. Failures are logged and counted, never
// returned; a failed batch does not stop the ones after it.
func (s *Syncer) Sync(ctx context.Context, runID string, rows []catalog.Row) Summary {
	var total Summary

	valid := make([]catalog.PersistedRow, 0, len(rows))
	for _, r := range rows {
		if !r.Keyed() {
			total.Invalid++
			continue
		}
		valid = append(valid, catalog.Persist(r))
	}

	for start := 0; start < len(valid); start += s.batchSize {
		if ctx.Err() != nil {
			break
		}
		end := min(start+s.batchSize, len(valid))
		total.Add(s.syncBatch(ctx, runID, valid[start:end]))
	}

	s.log.Info().
		Str("run_id", runID).
		Int("new", total.New).
		Int("changed", total.Changed).
		Int("skipped", total.Skipped).
		Int("invalid", total.Invalid).
		Int("failed_batches", total.FailedBatches).
		Msg("Sync finished")
	return total
}

type pending struct {
	row  catalog.PersistedRow
	kind publisher.ChangeKind
}

func (s *Syncer) syncBatch(ctx context.Context, runID string, batch []catalog.PersistedRow) Summary {
	var sum Summary

	classify := s.classifier(ctx, batch)

	delta := make([]pending, 0, len(batch))
	for _, r := range batch {
		kind, write := classify(r)
		if !write {
			sum.Skipped++
			continue
		}
		if kind == publisher.ChangeNew {
			sum.New++
		} else {
			sum.Changed++
		}
		delta = append(delta, pending{row: r, kind: kind})
	}
	if len(delta) == 0 {
		return sum
	}

	toWrite := make([]catalog.PersistedRow, len(delta))
	for i, p := range delta {
		toWrite[i] = p.row
	}
	if err := s.store.Upsert(ctx, toWrite); err != nil {
		s.log.WithError(err).Error().
			Str("run_id", runID).
			Int("rows", len(toWrite)).
			Msg("Batch write failed, skipping batch")
		sum.FailedBatches++
		return sum
	}
	sum.Written = len(toWrite)

	s.publish(ctx, runID, delta)
	return sum
}

// classifier reads the stored state of batch and returns a function deciding
// whether a row must be written and why
func (s *Syncer) classifier(ctx context.Context, batch []catalog.PersistedRow) func(catalog.PersistedRow) (publisher.ChangeKind, bool) {
	productIDs, varIDs := distinctIDs(batch)

	hashes, err := s.store.ExistingHashes(ctx, productIDs, varIDs)
	if err == nil {
		return func(r catalog.PersistedRow) (publisher.ChangeKind, bool) {
			old, ok := hashes[r.Key()]
			switch {
			case !ok:
				return publisher.ChangeNew, true
			case old != r.DataHash:
				return publisher.ChangeChanged, true
			default:
				return "", false
			}
		}
	}
	s.log.WithError(err).Warn().Msg("Fingerprint lookup failed, comparing by key only")

	keys, err := s.store.ExistingKeys(ctx, productIDs, varIDs)
	if err == nil {
		return func(r catalog.PersistedRow) (publisher.ChangeKind, bool) {
			if _, ok := keys[r.Key()]; ok {
				return publisher.ChangeChanged, true
			}
			return publisher.ChangeNew, true
		}
	}
	s.log.WithError(err).Warn().Msg("Key lookup failed, treating batch as new")

	return func(catalog.PersistedRow) (publisher.ChangeKind, bool) {
		return publisher.ChangeNew, true
	}
}

func (s *Syncer) publish(ctx context.Context, runID string, delta []pending) {
	if s.publisher == nil {
		return
	}
	at := s.now().UTC()
	for _, p := range delta {
		ev := publisher.ChangeEvent{RunID: runID, Kind: p.kind, Row: p.row, WrittenAt: at}
		if err := publisher.PublishChange(ctx, s.publisher, ev); err != nil {
			s.log.WithError(err).Warn().
				Str("key", p.row.Key().String()).
				Msg("Failed to publish change")
		}
	}
}

// distinctIDs returns the product ids and var ids of batch, each deduplicated
// in first-seen order
func distinctIDs(batch []catalog.PersistedRow) ([]string, []string) {
	seenP := make(map[string]struct{}, len(batch))
	seenV := make(map[string]struct{}, len(batch))
	var productIDs, varIDs []string
	for _, r := range batch {
		if _, ok := seenP[r.ProductID]; !ok {
			seenP[r.ProductID] = struct{}{}
			productIDs = append(productIDs, r.ProductID)
		}
		if _, ok := seenV[r.VarID]; !ok {
			seenV[r.VarID] = struct{}{}
			varIDs = append(varIDs, r.VarID)
		}
	}
	return productIDs, varIDs
}
