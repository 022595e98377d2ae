// Package store is the transactional persistence gateway. Every state
// change goes through Run, which commits all writes or none.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/reactoryard/internal/errs"
	"gorm.io/gorm"
)

// DefaultTimeout bounds a transaction when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// Store wraps a GORM handle with begin/commit/rollback semantics and a
// per-transaction deadline.
type Store struct {
	db      *gorm.DB
	timeout time.Duration
}

// New creates a Store. A non-positive timeout selects DefaultTimeout.
func New(db *gorm.DB, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Store{db: db, timeout: timeout}
}

// DB returns a session for reads outside a transaction, bound to ctx.
func (s *Store) DB(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// Timeout returns the per-transaction deadline.
func (s *Store) Timeout() time.Duration { return s.timeout }

// Tx is an open database transaction. It must be finished with Commit or
// Rollback; Run does this automatically.
type Tx struct {
	DB     *gorm.DB
	cancel context.CancelFunc
	done   bool
}

// Begin opens a transaction bounded by the store timeout.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		cancel()
		return nil, &errs.StoreError{Op: "begin", Err: tx.Error}
	}
	return &Tx{DB: tx, cancel: cancel}, nil
}

// Commit makes the transaction's writes durable. On failure nothing is
// visible to later reads and a StoreError is returned.
func (t *Tx) Commit() error {
	if t.done {
		return &errs.StoreError{Op: "commit", Err: errors.New("transaction already finished")}
	}
	t.done = true
	defer t.cancel()
	if err := t.DB.Commit().Error; err != nil {
		return &errs.StoreError{Op: "commit", Err: err}
	}
	return nil
}

// Rollback discards the transaction's writes. It is a no-op after Commit.
func (t *Tx) Rollback() {
	if t.done {
		return
	}
	t.done = true
	defer t.cancel()
	t.DB.Rollback()
}

// Run executes fn inside one transaction. fn's error is returned unchanged
// after rollback, so typed domain errors reach the caller intact. A panic
// inside fn rolls back and is re-raised. Infrastructure failures surface
// as *errs.StoreError.
func (s *Store) Run(ctx context.Context, fn func(tx *gorm.DB) error) error {
	t, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			t.Rollback()
			panic(p)
		}
	}()

	if err := fn(t.DB); err != nil {
		t.Rollback()
		return Classify("run", err)
	}
	return t.Commit()
}

// Classify leaves typed domain errors alone and wraps everything else,
// including deadline expiry and driver failures, as a StoreError.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		nf *errs.NotFoundError
		it *errs.InvalidTransitionError
		ce *errs.ConflictError
		ve *errs.ValidationError
		se *errs.StoreError
	)
	if errors.As(err, &nf) || errors.As(err, &it) || errors.As(err, &ce) || errors.As(err, &ve) || errors.As(err, &se) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &errs.StoreError{Op: op, Err: fmt.Errorf("timed out: %w", err)}
	}
	return &errs.StoreError{Op: op, Err: err}
}
