package pkt

import (
	"context"
	"errors"
	"fmt"

	"github.com/zulandar/reactoryard/internal/errs"
	"github.com/zulandar/reactoryard/internal/models"
	"github.com/zulandar/reactoryard/internal/store"
	"gorm.io/gorm"
)

// ListFilters holds optional filters for listing transactions.
type ListFilters struct {
	ReactorID   uint
	ProductID   uint
	Status      models.Status
	WorkOrderNo string
	ActiveOnly  bool
	Limit       int
}

// Get loads one transaction.
func (e *Engine) Get(ctx context.Context, id uint) (*models.PktTransaction, error) {
	var t models.PktTransaction
	if err := e.store.DB(ctx).First(&t, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("transaction", id)
		}
		return nil, store.Classify("get", fmt.Errorf("pkt: get transaction %d: %w", id, err))
	}
	return &t, nil
}

// List returns transactions matching filters, newest first.
func (e *Engine) List(ctx context.Context, filters ListFilters) ([]models.PktTransaction, error) {
	q := e.store.DB(ctx).Model(&models.PktTransaction{})
	if filters.ReactorID != 0 {
		q = q.Where("reactor_id = ?", filters.ReactorID)
	}
	if filters.ProductID != 0 {
		q = q.Where("product_id = ?", filters.ProductID)
	}
	if filters.Status != "" {
		if !filters.Status.Valid() {
			return nil, errs.Invalid("status", "unknown status %q", filters.Status)
		}
		q = q.Where("status = ?", filters.Status)
	}
	if filters.WorkOrderNo != "" {
		q = q.Where("work_order_no = ?", filters.WorkOrderNo)
	}
	if filters.ActiveOnly {
		q = q.Where("status IN ?", models.ActiveStatuses)
	}
	if filters.Limit > 0 {
		q = q.Limit(filters.Limit)
	}

	var out []models.PktTransaction
	if err := q.Order("id DESC").Find(&out).Error; err != nil {
		return nil, store.Classify("list", fmt.Errorf("pkt: list transactions: %w", err))
	}
	return out, nil
}

// History returns the status changes of a transaction in the order they
// were applied.
func (e *Engine) History(ctx context.Context, id uint) ([]models.TransactionEvent, error) {
	if _, err := e.Get(ctx, id); err != nil {
		return nil, err
	}
	var events []models.TransactionEvent
	err := e.store.DB(ctx).
		Where("transaction_id = ?", id).
		Order("id ASC").
		Find(&events).Error
	if err != nil {
		return nil, store.Classify("history", fmt.Errorf("pkt: history of transaction %d: %w", id, err))
	}
	return events, nil
}

// ActiveCount returns the number of reactors holding a non-terminal batch.
func (e *Engine) ActiveCount(ctx context.Context) (int, error) {
	var n int64
	err := e.store.DB(ctx).Model(&models.PktTransaction{}).
		Where("status IN ?", models.ActiveStatuses).
		Count(&n).Error
	if err != nil {
		return 0, store.Classify("count", fmt.Errorf("pkt: count active transactions: %w", err))
	}
	return int(n), nil
}

// SyncActiveGauge sets the occupancy gauge from the database.
func (e *Engine) SyncActiveGauge(ctx context.Context) error {
	n, err := e.ActiveCount(ctx)
	if err != nil {
		return err
	}
	e.metrics.SetActiveReactors(n)
	return nil
}

// EventsAfter returns up to limit events with an id greater than afterID,
// oldest first. A limit of zero means no limit.
func (e *Engine) EventsAfter(ctx context.Context, afterID uint, limit int) ([]models.TransactionEvent, error) {
	q := e.store.DB(ctx).Where("id > ?", afterID).Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var events []models.TransactionEvent
	if err := q.Find(&events).Error; err != nil {
		return nil, store.Classify("events", fmt.Errorf("pkt: events after %d: %w", afterID, err))
	}
	return events, nil
}

// LastEventID returns the id of the newest event, or zero when there are none.
func (e *Engine) LastEventID(ctx context.Context) (uint, error) {
	var last models.TransactionEvent
	err := e.store.DB(ctx).Order("id DESC").Limit(1).Find(&last).Error
	if err != nil {
		return 0, store.Classify("events", fmt.Errorf("pkt: last event id: %w", err))
	}
	return last.ID, nil
}
