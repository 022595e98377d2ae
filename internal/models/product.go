package models

import "time"

// Product is a planned output of a reactor batch. StandardDuration is the
// planning baseline for one production run.
type Product struct {
	ID               uint          `gorm:"primaryKey;autoIncrement"`
	SBU              string        `gorm:"size:64;index"`
	Code             string        `gorm:"size:64;not null;uniqueIndex"`
	Name             string        `gorm:"size:255"`
	MinQuantity      float64       `gorm:"default:0"`
	MaxQuantity      float64       `gorm:"default:0"`
	StandardDuration time.Duration `gorm:"default:0"`
	Notes            string        `gorm:"type:text"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
