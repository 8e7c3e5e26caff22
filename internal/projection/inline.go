package projection

import (
	"context"
	"fmt"

	"github.com/example/localmart/internal/infrastructure/store"
)

// Inline is a store.Publisher that projects events in the committing
// process instead of sending them to Kafka. It backs single-node runs
// and tests.
type Inline struct {
	projector *Projector
}

func NewInline(projector *Projector) *Inline {
	return &Inline{projector: projector}
}

func (i *Inline) Publish(ctx context.Context, _ string, event any) error {
	e, ok := event.(store.Event)
	if !ok {
		return fmt.Errorf("inline projection: unexpected event type %T", event)
	}
	return i.projector.Apply(ctx, e)
}
