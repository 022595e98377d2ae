package models

import "time"

// PktTransaction is one production batch on one reactor, from planning
// through washing to completion. Rows are never deleted; they end in
// completed or cancelled.
type PktTransaction struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	Status      Status `gorm:"size:32;not null;default:planned;index"`
	ReactorID   uint   `gorm:"not null;index"`
	ProductID   uint   `gorm:"not null;index"`
	WorkOrderNo string `gorm:"size:64;index"`
	LotNo       string `gorm:"size:64"`

	StartOfWork *time.Time
	End         *time.Time

	ActualProductionDuration *time.Duration
	DelayDuration            *time.Duration
	WashingDuration          *time.Duration
	CausticAmountKg          *float64
	DelayReasonID            *uint
	Description              string `gorm:"type:text"`

	ProductionCompletedAt *time.Time
	WashingStartedAt      *time.Time
	WashingCompletedAt    *time.Time

	// ActiveReactorID mirrors ReactorID while the transaction is
	// non-terminal and is NULL afterwards. The unique index rejects a
	// second active batch on the same reactor.
	ActiveReactorID *uint `gorm:"uniqueIndex"`

	// Version increments on every write; updates are conditional on it.
	Version int64 `gorm:"not null;default:1"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TransactionEvent records one applied status change. It is written in the
// same database transaction as the status update.
type TransactionEvent struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	EventID       string `gorm:"size:36;uniqueIndex"`
	TransactionID uint   `gorm:"not null;index"`
	ReactorID     uint   `gorm:"not null;index"`
	FromStatus    Status `gorm:"size:32"`
	ToStatus      Status `gorm:"size:32;not null"`
	Note          string `gorm:"type:text"`
	OccurredAt    time.Time
	CreatedAt     time.Time
}
