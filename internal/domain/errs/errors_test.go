package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errReason = errors.New("order has been cancelled")

func TestKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
		want string
	}{
		{"validation", Validation("cart", "cart is empty"), ErrValidation, "validation"},
		{"transition", &InvalidTransitionError{OrderID: "LOC-1", Reason: errReason}, ErrInvalidTransition, "invalid_transition"},
		{"conflict", &ConflictError{AggregateID: "LOC-1", ExpectedVersion: 2}, ErrConflict, "conflict"},
		{"unavailable", Unavailable("event store", errors.New("connection refused")), ErrCollaboratorUnavailable, "unavailable"},
		{"wrapped", fmt.Errorf("checkout: %w", Validation("cart", "cart is empty")), ErrValidation, "validation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.kind)
			assert.Equal(t, tt.want, Kind(tt.err))
			assert.True(t, Classified(tt.err))
		})
	}
}

func TestInvalidTransitionError_UnwrapsReason(t *testing.T) {
	err := &InvalidTransitionError{OrderID: "LOC-1", From: "Cancelled", Action: "cancel", Reason: errReason}

	assert.ErrorIs(t, err, errReason)
	assert.Contains(t, err.Error(), "order has been cancelled")

	var target *InvalidTransitionError
	assert.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &target))
	assert.Equal(t, "cancel", target.Action)
}

func TestUnavailable_KeepsClassifiedErrors(t *testing.T) {
	conflict := &ConflictError{AggregateID: "cart-a", ExpectedVersion: 3}

	assert.Same(t, error(conflict), Unavailable("event store", conflict))
	assert.Nil(t, Unavailable("event store", nil))
	assert.Equal(t, "internal", Kind(errors.New("boom")))
}

func TestKind_LookupErrors(t *testing.T) {
	notFound := fmt.Errorf("%w: order LOC-9", ErrNotFound)
	forbidden := fmt.Errorf("%w: product belongs to another store", ErrForbidden)

	assert.Equal(t, "not_found", Kind(notFound))
	assert.Equal(t, "forbidden", Kind(forbidden))
	assert.Same(t, notFound, Unavailable("read store", notFound))
}
