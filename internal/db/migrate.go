package db

import (
	"fmt"
	"time"

	"github.com/zulandar/reactoryard/internal/config"
	"github.com/zulandar/reactoryard/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AllModels returns every GORM model for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Reactor{},
		&models.Product{},
		&models.DelayReason{},
		&models.PktTransaction{},
		&models.TransactionEvent{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// SeedReference upserts reactors, products and delay reasons from
// configuration. Existing rows are matched by name or code.
func SeedReference(db *gorm.DB, ref config.ReferenceConfig) error {
	for _, name := range ref.Reactors {
		r := models.Reactor{Name: name, Active: true}
		result := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"active"}),
		}).Create(&r)
		if result.Error != nil {
			return fmt.Errorf("db: seed reactor %q: %w", name, result.Error)
		}
	}

	for _, pc := range ref.Products {
		var std time.Duration
		if pc.StandardDuration != "" {
			d, err := time.ParseDuration(pc.StandardDuration)
			if err != nil {
				return fmt.Errorf("db: product %q standard_duration: %w", pc.Code, err)
			}
			std = d
		}
		p := models.Product{
			Code:             pc.Code,
			Name:             pc.Name,
			SBU:              pc.SBU,
			MinQuantity:      pc.MinQuantity,
			MaxQuantity:      pc.MaxQuantity,
			StandardDuration: std,
			Notes:            pc.Notes,
		}
		result := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "sbu", "min_quantity", "max_quantity", "standard_duration", "notes"}),
		}).Create(&p)
		if result.Error != nil {
			return fmt.Errorf("db: seed product %q: %w", pc.Code, result.Error)
		}
	}

	for _, name := range ref.DelayReasons {
		dr := models.DelayReason{Name: name}
		result := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoNothing: true,
		}).Create(&dr)
		if result.Error != nil {
			return fmt.Errorf("db: seed delay reason %q: %w", name, result.Error)
		}
	}
	return nil
}
