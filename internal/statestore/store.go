package statestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/whereabouts/internal/infrastructure/database"
)

// maxWriteAttempts bounds RecordState, counting the first try.
const maxWriteAttempts = 3

// Store errors. Use errors.Is() to check for these errors in calling code.
var (
	// ErrWriteFailed is returned when an insert fails for a reason other
	// than a missing schema. It is not retried.
	ErrWriteFailed = errors.New("statestore: write failed")

	// ErrRetriesExhausted is returned when the schema could not be made
	// usable within maxWriteAttempts.
	ErrRetriesExhausted = errors.New("statestore: write attempts exhausted")

	// ErrSchema is returned when schema creation fails.
	ErrSchema = errors.New("statestore: creating schema failed")
)

// Logger defines the logging interface used by the Store.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Record is one persisted observation of an identity.
type Record struct {
	Identity string
	ZoneName string
	Angle    int

	// Timestamp is in unix seconds.
	Timestamp int64
}

// Time returns the record timestamp as a time.Time in local time.
func (r Record) Time() time.Time {
	return time.Unix(r.Timestamp, 0)
}

// Store persists location history in SQLite.
//
// A Store is used by a single writer; it adds no locking of its own.
type Store struct {
	db     *sql.DB
	logger Logger
}

// New creates a Store on an open database. No schema is touched until the
// first read or write.
func New(db *sql.DB) *Store {
	return &Store{db: db, logger: noopLogger{}}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// EnsureSchema creates the history table, index, views and trigger.
// It is a no-op when they already exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	s.logger.Info("creating state schema")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSchema, err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	for _, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: %w", ErrSchema, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", ErrSchema, err)
	}
	return nil
}

// RecordState appends a history record.
//
// If the insert fails because the schema is missing, the schema is created
// and the insert retried, for at most maxWriteAttempts attempts. Any other
// failure is logged and abandoned.
//
// Parameters:
//   - ctx: Context for cancellation
//   - identity: Tracker identity ("user/device")
//   - zoneName: Resolved zone name
//   - angle: Angle the actuator was driven to
//   - at: Observation time, stored with second precision
//
// Returns:
//   - error: nil on success, ErrWriteFailed or ErrRetriesExhausted otherwise
func (s *Store) RecordState(ctx context.Context, identity, zoneName string, angle int, at time.Time) error {
	ts := at.Unix()

	var lastErr error
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		_, err := s.db.ExecContext(ctx, insertLocationSQL, identity, zoneName, angle, ts)
		if err == nil {
			s.logger.Debug("saved state", "identity", identity, "zone", zoneName, "attempt", attempt)
			return nil
		}
		lastErr = err

		if !database.IsMissingTable(err) {
			s.logger.Error("saving state failed", "identity", identity, "error", err)
			return fmt.Errorf("%w: %w", ErrWriteFailed, err)
		}

		if schemaErr := s.EnsureSchema(ctx); schemaErr != nil {
			s.logger.Error("unable to create state schema", "error", schemaErr)
		}
	}

	s.logger.Error("unable to save state", "identity", identity, "attempts", maxWriteAttempts, "error", lastErr)
	return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, maxWriteAttempts, lastErr)
}

// LatestStates returns the newest record of every identity, ordered by
// identity.
//
// A missing schema is created and an empty result returned; the read is not
// retried.
func (s *Store) LatestStates(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, selectLatestSQL)
	if err != nil {
		if database.IsMissingTable(err) {
			if schemaErr := s.EnsureSchema(ctx); schemaErr != nil {
				return nil, schemaErr
			}
			return nil, nil
		}
		return nil, fmt.Errorf("querying latest states: %w", err)
	}
	defer rows.Close()

	var records []Record
	seen := make(map[string]bool)
	for rows.Next() {
		var r Record
		var ts float64 // older state files hold fractional seconds
		if err := rows.Scan(&r.Identity, &r.ZoneName, &r.Angle, &ts); err != nil {
			return nil, fmt.Errorf("scanning latest state: %w", err)
		}
		r.Timestamp = int64(ts)
		// State files written before the locations view picked a single row
		// can still yield ties.
		if seen[r.Identity] {
			continue
		}
		seen[r.Identity] = true
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating latest states: %w", err)
	}

	return records, nil
}
