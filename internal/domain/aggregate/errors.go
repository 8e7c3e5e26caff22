package aggregate

import (
	"errors"

	"github.com/example/localmart/internal/domain/errs"
	"github.com/example/localmart/internal/infrastructure/store"
)

// AppendError classifies a failed append: a version clash becomes a
// ConflictError, anything else means the store is unavailable.
func AppendError(aggregateID string, expectedVersion int, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrVersionConflict) {
		return &errs.ConflictError{AggregateID: aggregateID, ExpectedVersion: expectedVersion, Err: err}
	}
	return errs.Unavailable("event store", err)
}

// LoadError classifies a failed load.
func LoadError(err error) error {
	return errs.Unavailable("event store", err)
}
