// Package history pkg/history/store.go
//
// Package history persists published snapshots to SQLite so value trends
// survive restarts and can be served over the API.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	// SQLite driver.
	_ "github.com/mattn/go-sqlite3"

	"github.com/DucuSandu/ha-snmp-r1d1/pkg/coordinator"
)

const dbOperationTimeout = 5 * time.Second

var (
	errOpenDB       = errors.New("failed to open history database")
	errInitSchema   = errors.New("failed to initialize history schema")
	errBeginTx      = errors.New("failed to begin transaction")
	errSaveReading  = errors.New("failed to save reading")
	errQueryHistory = errors.New("failed to query history")
	errScanRow      = errors.New("failed to scan row")
	errPruneHistory = errors.New("failed to prune history")
)

const schema = `
	CREATE TABLE IF NOT EXISTS readings (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		device    TEXT NOT NULL,
		entity    TEXT NOT NULL,
		kind      TEXT NOT NULL,
		state     TEXT NOT NULL,
		value     TEXT,
		unit      TEXT,
		timestamp TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_readings_lookup
		ON readings (device, entity, timestamp);
`

// Store is a SQLite-backed reading log. It implements coordinator.Recorder.
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the history database at path.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errOpenDB, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", errInitSchema, err)
	}

	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends the entries this snapshot actually refreshed. Entries
// carried over from earlier cycles keep their original Updated stamp and are
// skipped, so a fast cycle does not re-log the hourly attributes.
func (s *Store) Record(device string, snap *coordinator.Snapshot) error {
	ctx, cancel := context.WithTimeout(context.Background(), dbOperationTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", errBeginTx, err)
	}

	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			log.Printf("Error rolling back history transaction: %v", err)
		}
	}()

	const insert = `
		INSERT INTO readings (device, entity, kind, state, value, unit, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	for key, entry := range snap.Entries {
		if !entry.Updated.Equal(snap.Timestamp) {
			continue
		}

		value, err := encodeValue(entry.Outcome.Value)
		if err != nil {
			log.Printf("History: skipping %s/%s: %v", device, key, err)
			continue
		}

		_, err = tx.ExecContext(ctx, insert,
			device, key.String(), string(entry.Kind), string(entry.Outcome.State),
			value, entry.Outcome.Unit, entry.Updated,
		)
		if err != nil {
			return fmt.Errorf("%w: %w", errSaveReading, err)
		}
	}

	return tx.Commit()
}

// Reading is one logged value.
type Reading struct {
	Device    string    `json:"device"`
	Entity    string    `json:"entity"`
	Kind      string    `json:"kind"`
	State     string    `json:"state"`
	Value     string    `json:"value"`
	Unit      string    `json:"unit,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Query returns readings for one device entity in descending time order.
// A zero since/until leaves that bound open; limit <= 0 means no limit.
func (s *Store) Query(ctx context.Context, device, entity string, since, until time.Time, limit int) ([]Reading, error) {
	ctx, cancel := context.WithTimeout(ctx, dbOperationTimeout)
	defer cancel()

	query := `
		SELECT device, entity, kind, state, value, unit, timestamp
		FROM readings
		WHERE device = ? AND entity = ?
	`
	args := []interface{}{device, entity}

	if !since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, since)
	}

	if !until.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, until)
	}

	query += " ORDER BY timestamp DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errQueryHistory, err)
	}
	defer rows.Close()

	var out []Reading

	for rows.Next() {
		var r Reading

		var value, unit sql.NullString

		if err := rows.Scan(&r.Device, &r.Entity, &r.Kind, &r.State, &value, &unit, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("%w: %w", errScanRow, err)
		}

		r.Value = value.String
		r.Unit = unit.String

		out = append(out, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", errQueryHistory, err)
	}

	return out, nil
}

// Prune deletes readings older than the cutoff and reports how many went.
func (s *Store) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, dbOperationTimeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, "DELETE FROM readings WHERE timestamp < ?", olderThan)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", errPruneHistory, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", errPruneHistory, err)
	}

	return n, nil
}

// encodeValue renders an outcome value as its JSON text form so numbers,
// booleans and strings round-trip unambiguously.
func encodeValue(v interface{}) (string, error) {
	if v == nil {
		return "", nil
	}

	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}

	return string(b), nil
}
