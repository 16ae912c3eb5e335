// Package digest summarizes which vendors still owe a response and pushes the
// summary on a cron schedule.
package digest

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"supply_tracker/internal/filter"
	"supply_tracker/internal/normalize"
	"supply_tracker/internal/notifications"
	"supply_tracker/internal/sheets"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Build counts tracked and unresponded lines per vendor, most unresponded
// first.
func Build(view filter.View) []notifications.VendorBacklog {
	byVendor := make(map[string]*notifications.VendorBacklog)
	for _, row := range view.Rows {
		b, ok := byVendor[row.Vendor]
		if !ok {
			b = &notifications.VendorBacklog{Vendor: row.Vendor}
			byVendor[row.Vendor] = b
		}
		b.Open++
		if !row.Responded() {
			b.Unresponded++
		}
	}

	out := make([]notifications.VendorBacklog, 0, len(byVendor))
	for _, b := range byVendor {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Unresponded != out[j].Unresponded {
			return out[i].Unresponded > out[j].Unresponded
		}
		return out[i].Vendor < out[j].Vendor
	})
	return out
}

// Notifier is the part of the ntfy client the digest needs.
type Notifier interface {
	NotifyDigest(ctx context.Context, backlog []notifications.VendorBacklog) error
}

// metricsSource is implemented by notifiers that count their deliveries.
type metricsSource interface {
	GetMetrics() (sent, failed, retries int64)
}

// Runner loads the sheet and sends one digest per run.
type Runner struct {
	store    sheets.Store
	notifier Notifier
	year     string
	running  int32
}

func NewRunner(store sheets.Store, notifier Notifier, year string) *Runner {
	return &Runner{store: store, notifier: notifier, year: year}
}

// Run sends one digest and returns the backlog it reported.
func (r *Runner) Run(ctx context.Context) ([]notifications.VendorBacklog, error) {
	header, records, err := r.store.FetchAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load sheet for digest: %w", err)
	}
	table := normalize.Normalize(header, records)
	view, _ := filter.Apply(table, filter.Predicates{Year: r.year})

	backlog := Build(view)
	err = r.notifier.NotifyDigest(ctx, backlog)
	r.logDelivery()
	if err != nil {
		return backlog, fmt.Errorf("send digest: %w", err)
	}
	return backlog, nil
}

func (r *Runner) logDelivery() {
	m, ok := r.notifier.(metricsSource)
	if !ok {
		return
	}
	sent, failed, retries := m.GetMetrics()
	log.Info().
		Int64("ntfy_sent", sent).
		Int64("ntfy_failed", failed).
		Int64("ntfy_retries", retries).
		Msg("Notification totals")
}

// Schedule registers Run on c under schedule. A run that is still in progress
// when the next tick fires causes that tick to be skipped.
func (r *Runner) Schedule(ctx context.Context, c *cron.Cron, schedule string, timeout time.Duration) (cron.EntryID, error) {
	id, err := c.AddFunc(schedule, func() {
		if !atomic.CompareAndSwapInt32(&r.running, 0, 1) {
			log.Warn().Msg("Previous digest still running, skipping")
			return
		}
		defer atomic.StoreInt32(&r.running, 0)

		runCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		backlog, err := r.Run(runCtx)
		if err != nil {
			log.Error().Err(err).Msg("Digest run failed")
			return
		}
		log.Info().Int("vendors", len(backlog)).Msg("Digest run complete")
	})
	if err != nil {
		return 0, fmt.Errorf("schedule digest %q: %w", schedule, err)
	}
	return id, nil
}

// NewCron builds a cron scheduler that logs through zerolog.
func NewCron(loc *time.Location) *cron.Cron {
	if loc == nil {
		loc = time.Local
	}
	return cron.New(cron.WithLocation(loc), cron.WithLogger(cronLogger{}))
}

type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg(msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
