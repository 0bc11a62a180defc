// Package alerter scans the backing table for deep discounts and notifies an
// operator channel once per row, again only when the discount deepens.
package alerter

import (
	"context"
	"time"

	"github.com/vishalnemlekar/instabot/internal/catalog"
	"github.com/vishalnemlekar/instabot/logger"
	"github.com/vishalnemlekar/instabot/services/store"
)

const (
	// DefaultThreshold is the minimum percentage off that triggers an alert
	DefaultThreshold = 70
	// DefaultPageSize is the number of rows read per store page
	DefaultPageSize = 1000
	// DefaultInterval is the time between scans
	DefaultInterval = 10 * time.Minute
)

// ScanResult counts one pass over the table
type ScanResult struct {
	Rows       int
	Candidates int
	Sent       int
	Failed     int
}

// Alerter polls the store and sends discount alerts
type Alerter struct {
	store     store.Store
	state     StateStore
	notifier  Notifier
	threshold int
	pageSize  int
	interval  time.Duration
	log       *logger.Logger
	now       func() time.Time
}

// NewAlerter creates an alerter. Zero threshold or page size use the defaults.
func NewAlerter(st store.Store, state StateStore, n Notifier, threshold, pageSize int, interval time.Duration) *Alerter {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Alerter{
		store:     st,
		state:     state,
		notifier:  n,
		threshold: threshold,
		pageSize:  pageSize,
		interval:  interval,
		log:       logger.ForAlerter(),
		now:       time.Now,
	}
}

// ShouldAlert reports whether pct warrants a notification given the last
// notified percentage for the same row
func ShouldAlert(pct, threshold, prev int, seen bool) bool {
	if pct < threshold {
		return false
	}
	return !seen || prev < threshold || pct > prev
}

// Run announces itself, scans immediately and then once per interval until
// ctx is cancelled
func (a *Alerter) Run(ctx context.Context) error {
	if err := a.notifier.Send(ctx, StartupMessage(a.interval), false); err != nil {
		a.log.WithError(err).Warn().Msg("Failed to send startup notice")
	}

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		if _, err := a.Scan(ctx); err != nil {
			a.log.WithError(err).Error().Msg("Scan failed")
		}

		select {
		case <-ctx.Done():
			a.log.Info().Msg("Alerter stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Scan reads the whole table page by page and sends due alerts. State for a
// row is recorded only after its alert was delivered.
func (a *Alerter) Scan(ctx context.Context) (ScanResult, error) {
	var res ScanResult
	a.log.Info().Str("table", a.store.Table()).Int("threshold", a.threshold).Msg("Scanning table")

	notified, err := a.state.Load(ctx)
	if err != nil {
		return res, err
	}

	for offset := 0; ; offset += a.pageSize {
		page, err := a.store.Page(ctx, offset, a.pageSize)
		if err != nil {
			return res, err
		}
		res.Rows += len(page)

		for _, r := range page {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			a.consider(ctx, r, notified, &res)
		}

		if len(page) < a.pageSize {
			break
		}
	}

	a.log.Info().
		Int("rows", res.Rows).
		Int("candidates", res.Candidates).
		Int("sent", res.Sent).
		Int("failed", res.Failed).
		Msg("Scan done")
	return res, nil
}

func (a *Alerter) consider(ctx context.Context, r catalog.PersistedRow, notified map[string]int, res *ScanResult) {
	pct, ok := catalog.PercentOff(r.Row)
	if !ok || pct < a.threshold {
		return
	}
	res.Candidates++

	key := stateKey(r)
	prev, seen := notified[key]
	if !ShouldAlert(pct, a.threshold, prev, seen) {
		return
	}

	if err := a.notifier.Send(ctx, FormatMessage(r, pct, a.now()), true); err != nil {
		a.log.WithError(err).Warn().Str("key", key).Msg("Failed to send alert")
		res.Failed++
		return
	}
	res.Sent++
	notified[key] = pct

	if err := a.state.Save(ctx, key, pct); err != nil {
		a.log.WithError(err).Warn().Str("key", key).Msg("Failed to record alert")
	}
}

// stateKey indexes alert state by product and variant
func stateKey(r catalog.PersistedRow) string {
	pid := orDefault(r.ProductID, "?")
	vid := orDefault(r.VarID, catalog.DefaultVarID)
	return pid + ":" + vid
}
