package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// uniqueViolation is the PostgreSQL error code raised by the
// (aggregate_id, version) constraint when two writers race.
const uniqueViolation = "23505"

const eventColumns = `id, aggregate_id, aggregate_type, event_type, data, version, created_at`

// PostgresEventStore stores events in PostgreSQL
type PostgresEventStore struct {
	db        *sql.DB
	publisher Publisher
	logger    *zap.Logger
}

func NewPostgresEventStore(db *sql.DB, publisher Publisher, logger *zap.Logger) *PostgresEventStore {
	return &PostgresEventStore{
		db:        db,
		publisher: publisher,
		logger:    logger.Named("postgres_event_store"),
	}
}

// Append stores an event in PostgreSQL and publishes it
func (es *PostgresEventStore) Append(ctx context.Context, rec Record) (*Event, error) {
	events, err := es.AppendAll(ctx, rec)
	if err != nil {
		return nil, err
	}
	return &events[0], nil
}

// AppendAll inserts all records in one transaction.
func (es *PostgresEventStore) AppendAll(ctx context.Context, recs ...Record) ([]Event, error) {
	if len(recs) == 0 {
		return nil, nil
	}

	tx, err := es.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now()
	next := make(map[string]int, len(recs))
	created := make([]Event, 0, len(recs))

	for _, rec := range recs {
		current, ok := next[rec.AggregateID]
		if !ok {
			if err := tx.QueryRowContext(ctx,
				"SELECT COALESCE(MAX(version), 0) FROM events WHERE aggregate_id = $1",
				rec.AggregateID,
			).Scan(&current); err != nil {
				return nil, fmt.Errorf("failed to read version of %s: %w", rec.AggregateID, err)
			}
		}
		if rec.ExpectedVersion != AnyVersion && rec.ExpectedVersion != current {
			return nil, fmt.Errorf("%w: %s at version %d, expected %d",
				ErrVersionConflict, rec.AggregateID, current, rec.ExpectedVersion)
		}

		data, err := json.Marshal(rec.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s: %w", rec.EventType, err)
		}

		event := Event{
			ID:            uuid.New().String(),
			AggregateID:   rec.AggregateID,
			AggregateType: rec.AggregateType,
			EventType:     rec.EventType,
			Data:          data,
			Timestamp:     now,
			Version:       current + 1,
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO events (`+eventColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			event.ID,
			event.AggregateID,
			event.AggregateType,
			event.EventType,
			[]byte(event.Data),
			event.Version,
			event.Timestamp,
		)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
				return nil, fmt.Errorf("%w: %s version %d already written", ErrVersionConflict, rec.AggregateID, event.Version)
			}
			return nil, fmt.Errorf("failed to insert event: %w", err)
		}

		next[rec.AggregateID] = event.Version
		created = append(created, event)
	}

	if err := tx.Commit(); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, fmt.Errorf("%w: %v", ErrVersionConflict, err)
		}
		return nil, fmt.Errorf("failed to commit events: %w", err)
	}

	publishCommitted(ctx, es.publisher, es.logger, created)
	return created, nil
}

// GetEvents returns all events for an aggregate from PostgreSQL
func (es *PostgresEventStore) GetEvents(ctx context.Context, aggregateID string) ([]Event, error) {
	return es.query(ctx,
		`SELECT `+eventColumns+` FROM events WHERE aggregate_id = $1 ORDER BY version ASC`,
		aggregateID,
	)
}

// GetEventsFromVersion returns events newer than fromVersion
func (es *PostgresEventStore) GetEventsFromVersion(ctx context.Context, aggregateID string, fromVersion int) ([]Event, error) {
	return es.query(ctx,
		`SELECT `+eventColumns+` FROM events WHERE aggregate_id = $1 AND version > $2 ORDER BY version ASC`,
		aggregateID, fromVersion,
	)
}

// GetAllEvents returns all events from PostgreSQL
func (es *PostgresEventStore) GetAllEvents(ctx context.Context) ([]Event, error) {
	return es.query(ctx,
		`SELECT `+eventColumns+` FROM events ORDER BY created_at ASC, version ASC`,
	)
}

// GetEventsAfter returns events created after a specific time (for replay)
func (es *PostgresEventStore) GetEventsAfter(ctx context.Context, after time.Time) ([]Event, error) {
	return es.query(ctx,
		`SELECT `+eventColumns+` FROM events WHERE created_at > $1 ORDER BY created_at ASC, version ASC`,
		after,
	)
}

func (es *PostgresEventStore) query(ctx context.Context, q string, args ...any) ([]Event, error) {
	rows, err := es.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var data []byte
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.AggregateType, &e.EventType, &data, &e.Version, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Data = json.RawMessage(data)
		events = append(events, e)
	}
	return events, rows.Err()
}

// SaveSnapshot upserts the latest snapshot for an aggregate
func (es *PostgresEventStore) SaveSnapshot(ctx context.Context, snapshot *Snapshot) error {
	_, err := es.db.ExecContext(ctx, `
		INSERT INTO snapshots (aggregate_id, aggregate_type, version, state, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (aggregate_id) DO UPDATE SET
			aggregate_type = EXCLUDED.aggregate_type,
			version = EXCLUDED.version,
			state = EXCLUDED.state,
			created_at = EXCLUDED.created_at
		WHERE snapshots.version < EXCLUDED.version
	`, snapshot.AggregateID, snapshot.AggregateType, snapshot.Version, []byte(snapshot.State), snapshot.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns nil when the aggregate has no snapshot
func (es *PostgresEventStore) GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error) {
	var s Snapshot
	var state []byte
	err := es.db.QueryRowContext(ctx,
		`SELECT aggregate_id, aggregate_type, version, state, created_at FROM snapshots WHERE aggregate_id = $1`,
		aggregateID,
	).Scan(&s.AggregateID, &s.AggregateType, &s.Version, &state, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	s.State = json.RawMessage(state)
	return &s, nil
}

// ConnectPostgres establishes a connection to PostgreSQL
func ConnectPostgres(ctx context.Context, connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}
