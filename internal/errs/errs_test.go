package errs

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestNotFoundError_Message(t *testing.T) {
	tests := []struct {
		err  *NotFoundError
		want string
	}{
		{&NotFoundError{Entity: "reactor"}, "reactor not found"},
		{NotFound("transaction", 42), "transaction 42 not found"},
		{&NotFoundError{Entity: "product", ID: `"P-9"`}, `product "P-9" not found`},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestConflictError_Message(t *testing.T) {
	err := &ConflictError{Reason: ReactorBusy, ReactorID: 3, HolderID: 17}
	want := "conflict(ReactorBusy): reactor 3 is occupied by transaction 17"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"conflict", &ConflictError{Reason: ReactorBusy}, true},
		{"wrapped conflict", fmt.Errorf("create: %w", &ConflictError{Reason: ReactorBusy}), true},
		{"store", &StoreError{Op: "commit", Err: context.DeadlineExceeded}, true},
		{"not found", NotFound("reactor", 1), false},
		{"invalid transition", &InvalidTransitionError{ID: 1, From: "planned", To: "completed"}, false},
		{"validation", Invalid("delay_reason_id", "required"), false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{NotFound("reactor", 1), "not_found"},
		{&InvalidTransitionError{}, "invalid_transition"},
		{&ConflictError{}, "conflict"},
		{Invalid("f", "bad"), "validation"},
		{&StoreError{Op: "begin", Err: errors.New("x")}, "store"},
		{errors.New("other"), "internal"},
	}
	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.want {
			t.Errorf("Kind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestStoreError_Unwrap(t *testing.T) {
	err := &StoreError{Op: "commit", Err: context.DeadlineExceeded}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("StoreError should unwrap to its cause")
	}
}
