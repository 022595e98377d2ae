// Package registry provides read-only lookups of reactors, products and
// delay reasons. Creating or changing them is plain CRUD done elsewhere.
package registry

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/zulandar/reactoryard/internal/errs"
	"github.com/zulandar/reactoryard/internal/models"
	"gorm.io/gorm"
)

// GetReactor loads a reactor by id.
func GetReactor(db *gorm.DB, id uint) (*models.Reactor, error) {
	var r models.Reactor
	if err := db.First(&r, id).Error; err != nil {
		return nil, lookupErr("reactor", strconv.FormatUint(uint64(id), 10), err)
	}
	return &r, nil
}

// GetProduct loads a product by id.
func GetProduct(db *gorm.DB, id uint) (*models.Product, error) {
	var p models.Product
	if err := db.First(&p, id).Error; err != nil {
		return nil, lookupErr("product", strconv.FormatUint(uint64(id), 10), err)
	}
	return &p, nil
}

// GetDelayReason loads a delay reason by id.
func GetDelayReason(db *gorm.DB, id uint) (*models.DelayReason, error) {
	var d models.DelayReason
	if err := db.First(&d, id).Error; err != nil {
		return nil, lookupErr("delay reason", strconv.FormatUint(uint64(id), 10), err)
	}
	return &d, nil
}

// FindReactorByName loads a reactor by its unique name.
func FindReactorByName(db *gorm.DB, name string) (*models.Reactor, error) {
	var r models.Reactor
	if err := db.Where("name = ?", name).First(&r).Error; err != nil {
		return nil, lookupErr("reactor", strconv.Quote(name), err)
	}
	return &r, nil
}

// FindProductByCode loads a product by its unique code.
func FindProductByCode(db *gorm.DB, code string) (*models.Product, error) {
	var p models.Product
	if err := db.Where("code = ?", code).First(&p).Error; err != nil {
		return nil, lookupErr("product", strconv.Quote(code), err)
	}
	return &p, nil
}

// FindDelayReasonByName loads a delay reason by its unique name.
func FindDelayReasonByName(db *gorm.DB, name string) (*models.DelayReason, error) {
	var d models.DelayReason
	if err := db.Where("name = ?", name).First(&d).Error; err != nil {
		return nil, lookupErr("delay reason", strconv.Quote(name), err)
	}
	return &d, nil
}

// ListReactors returns all reactors ordered by name.
func ListReactors(db *gorm.DB) ([]models.Reactor, error) {
	var out []models.Reactor
	if err := db.Order("name ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("registry: list reactors: %w", err)
	}
	return out, nil
}

func lookupErr(entity, key string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &errs.NotFoundError{Entity: entity, ID: key}
	}
	return fmt.Errorf("registry: get %s %s: %w", entity, key, err)
}
