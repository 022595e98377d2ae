// Package occupancy enforces that a reactor runs at most one active batch.
//
// All functions take the caller's transaction handle: the availability
// check and the write that changes it must commit together, otherwise two
// concurrent creates could both observe a free reactor.
package occupancy

import (
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/reactoryard/internal/errs"
	"github.com/zulandar/reactoryard/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Lease is proof that a reactor was free inside the current transaction.
// It is materialized by writing the new transaction row with
// ActiveReactorID set to ReactorID.
type Lease struct {
	ReactorID  uint
	AcquiredAt time.Time
}

// Holder returns the id of the non-terminal transaction on reactorID, if
// any.
func Holder(tx *gorm.DB, reactorID uint) (uint, bool, error) {
	var t models.PktTransaction
	result := tx.Select("id").
		Where("reactor_id = ? AND status IN ?", reactorID, models.ActiveStatuses).
		Order("id ASC").
		Limit(1).
		Find(&t)
	if result.Error != nil {
		return 0, false, fmt.Errorf("occupancy: query reactor %d: %w", reactorID, result.Error)
	}
	if result.RowsAffected == 0 {
		return 0, false, nil
	}
	return t.ID, true, nil
}

// IsAvailable reports whether reactorID has no non-terminal transaction.
func IsAvailable(tx *gorm.DB, reactorID uint) (bool, error) {
	_, held, err := Holder(tx, reactorID)
	if err != nil {
		return false, err
	}
	return !held, nil
}

// Acquire locks the reactor row (SELECT ... FOR UPDATE; SQLite ignores the
// clause and serializes writers instead) and checks that no other batch is
// active on it. It fails with NotFoundError for an unknown reactor and
// ConflictError(ReactorBusy) when the reactor is occupied.
func Acquire(tx *gorm.DB, reactorID uint, now time.Time) (*Lease, error) {
	var r models.Reactor
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&r, reactorID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("reactor", reactorID)
		}
		return nil, fmt.Errorf("occupancy: lock reactor %d: %w", reactorID, err)
	}

	holder, held, err := Holder(tx, reactorID)
	if err != nil {
		return nil, err
	}
	if held {
		return nil, &errs.ConflictError{Reason: errs.ReactorBusy, ReactorID: reactorID, HolderID: holder}
	}
	return &Lease{ReactorID: reactorID, AcquiredAt: now}, nil
}

// Release clears the active marker on reactorID so a new batch can be
// created. The caller moves the holding transaction to a terminal status
// in the same database transaction.
func Release(tx *gorm.DB, reactorID uint) error {
	err := tx.Model(&models.PktTransaction{}).
		Where("active_reactor_id = ?", reactorID).
		Update("active_reactor_id", nil).Error
	if err != nil {
		return fmt.Errorf("occupancy: release reactor %d: %w", reactorID, err)
	}
	return nil
}

// BusyFromInsert maps a unique-index violation on active_reactor_id to
// ConflictError(ReactorBusy). Other errors are returned unchanged.
func BusyFromInsert(err error, reactorID uint) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return &errs.ConflictError{Reason: errs.ReactorBusy, ReactorID: reactorID}
	}
	return err
}
