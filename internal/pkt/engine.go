// Package pkt is the production-transaction lifecycle engine. Every
// operation runs in one store transaction that reloads the row, checks the
// transition, writes the new state behind a version guard and appends a
// TransactionEvent. Events and metrics are emitted only after commit.
package pkt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/reactoryard/internal/errs"
	"github.com/zulandar/reactoryard/internal/metrics"
	"github.com/zulandar/reactoryard/internal/models"
	"github.com/zulandar/reactoryard/internal/notify"
	"github.com/zulandar/reactoryard/internal/occupancy"
	"github.com/zulandar/reactoryard/internal/registry"
	"github.com/zulandar/reactoryard/internal/store"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Clock returns the current time.
type Clock func() time.Time

// Engine applies lifecycle operations. It is safe for concurrent use.
type Engine struct {
	store   *store.Store
	now     Clock
	logger  *slog.Logger
	events  *notify.Fanout
	metrics *metrics.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock substitutes the time source.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.now = c }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithNotifier publishes committed transitions to f.
func WithNotifier(f *notify.Fanout) Option {
	return func(e *Engine) { e.events = f }
}

// WithMetrics records transitions and failures on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an Engine over st.
func New(st *store.Store, opts ...Option) *Engine {
	e := &Engine{store: st, now: time.Now, logger: slog.Default()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// At returns a copy of e whose clock is fixed at t. The import pipeline uses
// it to replay historical timestamps.
func (e *Engine) At(t time.Time) *Engine {
	c := *e
	c.now = func() time.Time { return t }
	return &c
}

// WithoutNotifier returns a copy of e that publishes no events. Transitions
// are still persisted and logged.
func (e *Engine) WithoutNotifier() *Engine {
	c := *e
	c.events = nil
	return &c
}

// Store returns the underlying store.
func (e *Engine) Store() *store.Store { return e.store }

// CreateOpts holds parameters for creating a transaction.
type CreateOpts struct {
	ReactorID     uint
	ProductID     uint
	WorkOrderNo   string
	LotNo         string
	DelayReasonID *uint // expected delay, noted in the description
	Description   string
}

// CompleteProductionOpts holds the optional delay recorded when production
// completes. DelayDuration and DelayReasonID must be given together.
type CompleteProductionOpts struct {
	DelayReasonID *uint
	DelayDuration *time.Duration
}

// applied is what a committed operation reports for post-commit hooks.
type applied struct {
	tx      models.PktTransaction
	from    models.Status
	eventID string
	note    string
	at      time.Time
}

// Create plans a new batch on a free reactor.
func (e *Engine) Create(ctx context.Context, opts CreateOpts) (*models.PktTransaction, error) {
	now := e.now()
	if strings.TrimSpace(opts.WorkOrderNo) == "" {
		return nil, e.fail("create", errs.Invalid("workOrderNo", "is required"))
	}

	var res applied
	err := e.store.Run(ctx, func(tx *gorm.DB) error {
		reactor, err := registry.GetReactor(tx, opts.ReactorID)
		if err != nil {
			return err
		}
		if !reactor.Active {
			return errs.Invalid("reactorId", "reactor %s is inactive", reactor.Name)
		}
		if _, err := registry.GetProduct(tx, opts.ProductID); err != nil {
			return err
		}
		desc := opts.Description
		if opts.DelayReasonID != nil {
			// delay_reason_id is only written together with a duration.
			reason, err := registry.GetDelayReason(tx, *opts.DelayReasonID)
			if err != nil {
				return err
			}
			desc = appendLine(desc, "expected delay: "+reason.Name)
		}

		lease, err := occupancy.Acquire(tx, opts.ReactorID, now)
		if err != nil {
			return err
		}

		t := models.PktTransaction{
			Status:          models.StatusPlanned,
			ReactorID:       opts.ReactorID,
			ProductID:       opts.ProductID,
			WorkOrderNo:     strings.TrimSpace(opts.WorkOrderNo),
			LotNo:           strings.TrimSpace(opts.LotNo),
			Description:     desc,
			ActiveReactorID: &lease.ReactorID,
			Version:         1,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.Create(&t).Error; err != nil {
			if busy := occupancy.BusyFromInsert(err, opts.ReactorID); busy != err {
				return busy
			}
			return fmt.Errorf("pkt: create transaction: %w", err)
		}

		res = applied{tx: t, at: now}
		res.eventID, err = writeEvent(tx, &t, "", "", now)
		return err
	})
	if err != nil {
		return nil, e.fail("create", err)
	}
	e.committed(ctx, res)
	return &res.tx, nil
}

// Start moves a planned batch into production and stamps StartOfWork.
func (e *Engine) Start(ctx context.Context, id uint) (*models.PktTransaction, error) {
	return e.apply(ctx, "start", id, models.StatusInProgress, func(db *gorm.DB, t *models.PktTransaction, now time.Time) (map[string]any, string, error) {
		return map[string]any{"start_of_work": now}, "", nil
	})
}

// CompleteProduction ends the production phase and records the actual
// production duration and any delay.
func (e *Engine) CompleteProduction(ctx context.Context, id uint, opts CompleteProductionOpts) (*models.PktTransaction, error) {
	if err := validateDelay(opts); err != nil {
		return nil, e.fail("complete_production", err)
	}
	return e.apply(ctx, "complete_production", id, models.StatusProductionCompleted, func(db *gorm.DB, t *models.PktTransaction, now time.Time) (map[string]any, string, error) {
		if t.StartOfWork == nil {
			return nil, "", errs.Invalid("startOfWork", "transaction %d has no start of work", t.ID)
		}
		if now.Before(*t.StartOfWork) {
			return nil, "", errs.Invalid("productionCompletedAt", "%s is before start of work %s",
				now.Format(time.RFC3339), t.StartOfWork.Format(time.RFC3339))
		}

		updates := map[string]any{
			"production_completed_at":    now,
			"actual_production_duration": int64(now.Sub(*t.StartOfWork)),
			"delay_duration":             nil,
			"delay_reason_id":            nil,
		}
		var note string
		if opts.DelayDuration != nil {
			if _, err := registry.GetDelayReason(db, *opts.DelayReasonID); err != nil {
				return nil, "", err
			}
			updates["delay_duration"] = int64(*opts.DelayDuration)
			updates["delay_reason_id"] = *opts.DelayReasonID
			note = "delay " + opts.DelayDuration.String()
		}
		return updates, note, nil
	})
}

// StartWashing begins the washing phase using causticKg of washing agent.
func (e *Engine) StartWashing(ctx context.Context, id uint, causticKg float64) (*models.PktTransaction, error) {
	if !(causticKg > 0) {
		return nil, e.fail("start_washing", errs.Invalid("causticAmountKg", "must be greater than zero, got %v", causticKg))
	}
	return e.apply(ctx, "start_washing", id, models.StatusWashing, func(db *gorm.DB, t *models.PktTransaction, now time.Time) (map[string]any, string, error) {
		return map[string]any{
			"washing_started_at": now,
			"caustic_amount_kg":  causticKg,
		}, "caustic " + strconv.FormatFloat(causticKg, 'f', -1, 64) + " kg", nil
	})
}

// CompleteWashing ends the washing phase and records its duration.
func (e *Engine) CompleteWashing(ctx context.Context, id uint) (*models.PktTransaction, error) {
	return e.apply(ctx, "complete_washing", id, models.StatusWashingCompleted, func(db *gorm.DB, t *models.PktTransaction, now time.Time) (map[string]any, string, error) {
		if t.WashingStartedAt == nil {
			return nil, "", errs.Invalid("washingStartedAt", "transaction %d has no washing start", t.ID)
		}
		if now.Before(*t.WashingStartedAt) {
			return nil, "", errs.Invalid("washingCompletedAt", "%s is before washing start %s",
				now.Format(time.RFC3339), t.WashingStartedAt.Format(time.RFC3339))
		}
		return map[string]any{
			"washing_completed_at": now,
			"washing_duration":     int64(now.Sub(*t.WashingStartedAt)),
		}, "", nil
	})
}

// Finish completes the batch, stamps End and frees the reactor.
func (e *Engine) Finish(ctx context.Context, id uint) (*models.PktTransaction, error) {
	return e.apply(ctx, "finish", id, models.StatusCompleted, func(db *gorm.DB, t *models.PktTransaction, now time.Time) (map[string]any, string, error) {
		if t.StartOfWork != nil && now.Before(*t.StartOfWork) {
			return nil, "", errs.Invalid("end", "%s is before start of work %s",
				now.Format(time.RFC3339), t.StartOfWork.Format(time.RFC3339))
		}
		return map[string]any{"end": now}, "", nil
	})
}

// Cancel abandons a non-terminal batch and frees the reactor. The reason is
// appended to the description. A delay reason without a recorded delay
// duration is cleared.
func (e *Engine) Cancel(ctx context.Context, id uint, reason string) (*models.PktTransaction, error) {
	reason = strings.TrimSpace(reason)
	return e.apply(ctx, "cancel", id, models.StatusCancelled, func(db *gorm.DB, t *models.PktTransaction, now time.Time) (map[string]any, string, error) {
		line := "cancelled"
		if reason != "" {
			line += ": " + reason
		}
		updates := map[string]any{"description": appendLine(t.Description, line)}
		if t.DelayDuration == nil || *t.DelayDuration == 0 {
			updates["delay_duration"] = nil
			updates["delay_reason_id"] = nil
		}
		return updates, reason, nil
	})
}

func appendLine(desc, line string) string {
	if desc == "" {
		return line
	}
	return desc + "\n" + line
}

// mutation computes the column updates for one transition given the row as
// loaded inside the transaction. It may also return an event note. db is the
// open transaction; lookups must use it.
type mutation func(db *gorm.DB, t *models.PktTransaction, now time.Time) (map[string]any, string, error)

func (e *Engine) apply(ctx context.Context, op string, id uint, to models.Status, mut mutation) (*models.PktTransaction, error) {
	now := e.now()

	var res applied
	err := e.store.Run(ctx, func(db *gorm.DB) error {
		t, err := loadForUpdate(db, id)
		if err != nil {
			return err
		}
		if err := checkTransition(t.ID, t.Status, to); err != nil {
			return err
		}

		updates, note, err := mut(db, t, now)
		if err != nil {
			return err
		}
		updates["status"] = to
		updates["version"] = t.Version + 1
		updates["updated_at"] = now

		result := db.Model(&models.PktTransaction{}).
			Where("id = ? AND version = ?", t.ID, t.Version).
			Updates(updates)
		if result.Error != nil {
			return fmt.Errorf("pkt: update transaction %d: %w", t.ID, result.Error)
		}
		if result.RowsAffected == 0 {
			return &errs.ConflictError{Reason: errs.ConcurrentModified, ReactorID: t.ReactorID, TxID: t.ID}
		}
		if to.IsTerminal() {
			if err := occupancy.Release(db, t.ReactorID); err != nil {
				return err
			}
		}

		var out models.PktTransaction
		if err := db.First(&out, t.ID).Error; err != nil {
			return fmt.Errorf("pkt: reload transaction %d: %w", t.ID, err)
		}
		res = applied{tx: out, from: t.Status, note: note, at: now}
		res.eventID, err = writeEvent(db, &out, t.Status, note, now)
		return err
	})
	if err != nil {
		return nil, e.fail(op, err)
	}
	e.committed(ctx, res)
	return &res.tx, nil
}

func loadForUpdate(db *gorm.DB, id uint) (*models.PktTransaction, error) {
	var t models.PktTransaction
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&t, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("transaction", id)
		}
		return nil, fmt.Errorf("pkt: load transaction %d: %w", id, err)
	}
	return &t, nil
}

func writeEvent(db *gorm.DB, t *models.PktTransaction, from models.Status, note string, at time.Time) (string, error) {
	ev := models.TransactionEvent{
		EventID:       uuid.New().String(),
		TransactionID: t.ID,
		ReactorID:     t.ReactorID,
		FromStatus:    from,
		ToStatus:      t.Status,
		Note:          note,
		OccurredAt:    at,
	}
	if err := db.Create(&ev).Error; err != nil {
		return "", fmt.Errorf("pkt: write event for transaction %d: %w", t.ID, err)
	}
	return ev.EventID, nil
}

// validateDelay enforces that a delay duration and its reason come together.
func validateDelay(opts CompleteProductionOpts) error {
	switch {
	case opts.DelayDuration != nil && *opts.DelayDuration < 0:
		return errs.Invalid("delayDuration", "must not be negative")
	case opts.DelayDuration != nil && opts.DelayReasonID == nil:
		return errs.Invalid("delayReasonId", "is required when delayDuration is given")
	case opts.DelayReasonID != nil && (opts.DelayDuration == nil || *opts.DelayDuration == 0):
		return errs.Invalid("delayDuration", "must be greater than zero when delayReasonId is given")
	}
	return nil
}

func (e *Engine) fail(op string, err error) error {
	e.metrics.ObserveFailure(op, errs.Kind(err))
	e.logger.Debug("pkt: operation failed", "op", op, "error", err)
	return err
}

// committed runs the post-commit hooks: log, metrics, notification.
func (e *Engine) committed(ctx context.Context, res applied) {
	t := res.tx
	e.logger.Info("pkt: transition",
		"transaction_id", t.ID, "reactor_id", t.ReactorID, "from", string(res.from), "to", string(t.Status))

	e.metrics.ObserveTransition(res.from, t.Status)
	reactor := strconv.FormatUint(uint64(t.ReactorID), 10)
	switch {
	case t.Status == models.StatusProductionCompleted && t.ActualProductionDuration != nil:
		e.metrics.ObserveProduction(reactor, *t.ActualProductionDuration)
	case t.Status == models.StatusWashingCompleted && t.WashingDuration != nil:
		e.metrics.ObserveWashing(reactor, *t.WashingDuration)
	}

	if e.events == nil {
		return
	}
	// Detached from the request context: a client disconnect must not drop
	// an event for a write that already committed.
	_ = e.events.Publish(context.WithoutCancel(ctx), notify.Event{
		EventID:       res.eventID,
		Kind:          notify.KindTransition,
		TransactionID: t.ID,
		ReactorID:     t.ReactorID,
		ProductID:     t.ProductID,
		WorkOrderNo:   t.WorkOrderNo,
		LotNo:         t.LotNo,
		From:          res.from,
		To:            t.Status,
		Note:          res.note,
		OccurredAt:    res.at,
	})
}
