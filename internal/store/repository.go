package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/zulandar/reactoryard/internal/errs"
	"gorm.io/gorm"
)

// Repository is the generic point-lookup and predicate-query contract for
// plain record storage (reactors, products, delay reasons). Production
// transactions are not written through it; they change only through the
// lifecycle engine.
type Repository[T any] struct {
	store  *Store
	entity string
}

// NewRepository builds a Repository for entity type T. entity names the
// type in not-found errors.
func NewRepository[T any](s *Store, entity string) *Repository[T] {
	return &Repository[T]{store: s, entity: entity}
}

// Create inserts v.
func (r *Repository[T]) Create(ctx context.Context, v *T) error {
	if err := r.store.DB(ctx).Create(v).Error; err != nil {
		return Classify("create "+r.entity, err)
	}
	return nil
}

// Get loads the row with primary key id.
func (r *Repository[T]) Get(ctx context.Context, id uint) (*T, error) {
	var v T
	if err := r.store.DB(ctx).First(&v, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound(r.entity, id)
		}
		return nil, Classify("get "+r.entity, err)
	}
	return &v, nil
}

// Update saves every field of v.
func (r *Repository[T]) Update(ctx context.Context, v *T) error {
	if err := r.store.DB(ctx).Save(v).Error; err != nil {
		return Classify("update "+r.entity, err)
	}
	return nil
}

// Delete removes the row with primary key id.
func (r *Repository[T]) Delete(ctx context.Context, id uint) error {
	var v T
	result := r.store.DB(ctx).Delete(&v, id)
	if result.Error != nil {
		return Classify("delete "+r.entity, result.Error)
	}
	if result.RowsAffected == 0 {
		return errs.NotFound(r.entity, id)
	}
	return nil
}

// Find returns rows matching a SQL predicate, e.g. Find(ctx, "name = ?", "R1").
func (r *Repository[T]) Find(ctx context.Context, query string, args ...any) ([]T, error) {
	var out []T
	if err := r.store.DB(ctx).Where(query, args...).Find(&out).Error; err != nil {
		return nil, Classify(fmt.Sprintf("find %s", r.entity), err)
	}
	return out, nil
}
