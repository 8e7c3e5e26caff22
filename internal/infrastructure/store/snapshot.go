package store

import (
	"encoding/json"
	"time"
)

// SnapshotThreshold is how many events an aggregate accumulates between snapshots
const SnapshotThreshold = 10

// Snapshot represents a point-in-time state of an aggregate
type Snapshot struct {
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	Version       int             `json:"version"` // Event version at snapshot time
	State         json.RawMessage `json:"state"`
	CreatedAt     time.Time       `json:"created_at"`
}
