package store

import (
	"context"
	"errors"
)

// ErrUnknownCollection is returned for collections a store does not hold.
var ErrUnknownCollection = errors.New("unknown read model collection")

// ReadStoreInterface defines the interface for read model storage
type ReadStoreInterface interface {
	Set(ctx context.Context, collection, id string, data any) error

	// Get returns false when the id is absent.
	Get(ctx context.Context, collection, id string) (any, bool, error)

	GetAll(ctx context.Context, collection string) ([]any, error)

	Delete(ctx context.Context, collection, id string) error

	// Update applies updateFn to the current value. It returns false
	// without calling updateFn when the id is absent.
	Update(ctx context.Context, collection, id string, updateFn func(current any) any) (bool, error)
}
