// Package monitor periodically flags batches whose production has run past
// their product's standard duration.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/zulandar/reactoryard/internal/metrics"
	"github.com/zulandar/reactoryard/internal/models"
	"github.com/zulandar/reactoryard/internal/notify"
	"github.com/zulandar/reactoryard/internal/store"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Overrun is one in-progress batch past its limit.
type Overrun struct {
	TransactionID uint
	ReactorID     uint
	ProductCode   string
	WorkOrderNo   string
	LotNo         string
	Elapsed       time.Duration
	Limit         time.Duration
}

// Opts configures a Monitor.
type Opts struct {
	Schedule      string
	OverrunFactor float64
	Events        *notify.Fanout
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
	Now           func() time.Time
}

// Monitor scans for overrunning batches on a cron schedule. Each batch is
// announced once per overrun; it is announced again only if it drops out of
// the overrun set and re-enters it.
type Monitor struct {
	store    *store.Store
	schedule cron.Schedule
	spec     string
	factor   float64
	events   *notify.Fanout
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	notified map[uint]bool
}

// New validates the schedule and creates a Monitor.
func New(st *store.Store, opts Opts) (*Monitor, error) {
	sched, err := cronParser.Parse(opts.Schedule)
	if err != nil {
		return nil, fmt.Errorf("monitor: parse schedule %q: %w", opts.Schedule, err)
	}
	if opts.OverrunFactor < 1 {
		return nil, fmt.Errorf("monitor: overrun factor must be at least 1, got %v", opts.OverrunFactor)
	}
	m := &Monitor{
		store:    st,
		schedule: sched,
		spec:     opts.Schedule,
		factor:   opts.OverrunFactor,
		events:   opts.Events,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		now:      opts.Now,
		notified: make(map[uint]bool),
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m, nil
}

// Next returns the next scheduled scan after t.
func (m *Monitor) Next(t time.Time) time.Time { return m.schedule.Next(t) }

// Scan finds overrunning batches, updates the gauge and notifies sinks of
// batches not yet announced.
func (m *Monitor) Scan(ctx context.Context) ([]Overrun, error) {
	db := m.store.DB(ctx)

	var running []models.PktTransaction
	if err := db.Where("status = ? AND start_of_work IS NOT NULL", models.StatusInProgress).
		Order("id ASC").Find(&running).Error; err != nil {
		return nil, store.Classify("scan", fmt.Errorf("monitor: list running batches: %w", err))
	}
	if len(running) == 0 {
		m.reset(nil)
		m.metrics.SetOverrun(0)
		return nil, nil
	}

	productIDs := make([]uint, 0, len(running))
	for _, t := range running {
		productIDs = append(productIDs, t.ProductID)
	}
	var products []models.Product
	if err := db.Where("id IN ?", productIDs).Find(&products).Error; err != nil {
		return nil, store.Classify("scan", fmt.Errorf("monitor: load products: %w", err))
	}
	byID := make(map[uint]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	now := m.now()
	var overruns []Overrun
	for _, t := range running {
		p, ok := byID[t.ProductID]
		if !ok || p.StandardDuration <= 0 {
			continue
		}
		limit := time.Duration(float64(p.StandardDuration) * m.factor)
		elapsed := now.Sub(*t.StartOfWork)
		if elapsed <= limit {
			continue
		}
		overruns = append(overruns, Overrun{
			TransactionID: t.ID,
			ReactorID:     t.ReactorID,
			ProductCode:   p.Code,
			WorkOrderNo:   t.WorkOrderNo,
			LotNo:         t.LotNo,
			Elapsed:       elapsed,
			Limit:         limit,
		})
	}

	m.metrics.SetOverrun(len(overruns))
	for _, o := range m.reset(overruns) {
		m.logger.Warn("monitor: batch overrunning",
			"transaction_id", o.TransactionID, "reactor_id", o.ReactorID, "elapsed", o.Elapsed, "limit", o.Limit)
		if m.events == nil {
			continue
		}
		_ = m.events.Publish(ctx, notify.Event{
			EventID:       uuid.New().String(),
			Kind:          notify.KindOverrun,
			TransactionID: o.TransactionID,
			ReactorID:     o.ReactorID,
			WorkOrderNo:   o.WorkOrderNo,
			LotNo:         o.LotNo,
			To:            models.StatusInProgress,
			Elapsed:       o.Elapsed,
			Note:          fmt.Sprintf("%s limit %s", o.ProductCode, o.Limit),
			OccurredAt:    now,
		})
	}
	return overruns, nil
}

// reset replaces the announced set with current and returns the overruns
// that were not announced before.
func (m *Monitor) reset(current []Overrun) []Overrun {
	m.mu.Lock()
	defer m.mu.Unlock()

	var fresh []Overrun
	next := make(map[uint]bool, len(current))
	for _, o := range current {
		next[o.TransactionID] = true
		if !m.notified[o.TransactionID] {
			fresh = append(fresh, o)
		}
	}
	m.notified = next
	return fresh
}

// Run scans on the schedule until ctx is cancelled, then waits for a
// running scan to finish.
func (m *Monitor) Run(ctx context.Context) error {
	c := cron.New(cron.WithParser(cronParser))
	_, err := c.AddFunc(m.spec, func() {
		if _, err := m.Scan(ctx); err != nil {
			m.logger.Error("monitor: scan failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("monitor: schedule scan: %w", err)
	}

	m.logger.Info("monitor: started", "schedule", m.spec, "next", m.Next(time.Now()).Format(time.RFC3339))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
