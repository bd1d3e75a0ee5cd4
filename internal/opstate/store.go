// Package opstate is the SQLite-backed lookup index over the JSON
// operation journal in internal/store (§4.7). The journal files
// remain the source of truth; this index exists purely so listing and
// status-filtering operations ("all pending software_update ops")
// don't require a directory walk plus a JSON parse per file. Every
// row here is reconstructible from the journal, so losing the index
// database is not a data-loss event. This package has no routine
// that repopulates the index from the journal.
package opstate

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Record is one row of the lookup index: enough to answer "what
// operations of kind X are in status Y" without opening the journal
// file for every candidate.
type Record struct {
	Kind      string
	OpID      string
	Status    string
	UpdatedAt time.Time
}

// Store is the lookup index. All public methods are safe for
// concurrent use (SQLite serializes writes).
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if absent) the lookup index database at
// dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS operation_index (
		kind       TEXT NOT NULL,
		op_id      TEXT NOT NULL,
		status     TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (kind, op_id)
	);
	CREATE INDEX IF NOT EXISTS idx_operation_index_status ON operation_index (kind, status);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Upsert records or updates an operation's current status. Called
// whenever internal/operation transitions a state machine and writes
// a new journal record.
func (s *Store) Upsert(kind, opID, status string) error {
	_, err := s.db.Exec(
		`INSERT INTO operation_index (kind, op_id, status, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (kind, op_id) DO UPDATE
		 SET status = excluded.status, updated_at = excluded.updated_at`,
		kind, opID, status, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upsert %s/%s: %w", kind, opID, err)
	}
	return nil
}

// Remove deletes an operation's index row, called when its journal
// record is deleted on terminal status.
func (s *Store) Remove(kind, opID string) error {
	_, err := s.db.Exec(`DELETE FROM operation_index WHERE kind = ? AND op_id = ?`, kind, opID)
	if err != nil {
		return fmt.Errorf("remove %s/%s: %w", kind, opID, err)
	}
	return nil
}

// Status returns the indexed status for an operation, or "" if it is
// not present (completed and removed, or never indexed).
func (s *Store) Status(kind, opID string) (string, error) {
	var status string
	err := s.db.QueryRow(
		`SELECT status FROM operation_index WHERE kind = ? AND op_id = ?`, kind, opID,
	).Scan(&status)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("status %s/%s: %w", kind, opID, err)
	}
	return status, nil
}

// ListByStatus returns every operation id of a kind currently indexed
// with the given status, ordered by op_id for deterministic output.
func (s *Store) ListByStatus(kind, status string) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT op_id FROM operation_index WHERE kind = ? AND status = ? ORDER BY op_id`,
		kind, status,
	)
	if err != nil {
		return nil, fmt.Errorf("list %s/%s: %w", kind, status, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan %s/%s: %w", kind, status, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// All returns every indexed record across all kinds, ordered by kind
// then op id, for callers comparing the index against the journal's
// actual contents.
func (s *Store) All() ([]Record, error) {
	rows, err := s.db.Query(`SELECT kind, op_id, status, updated_at FROM operation_index ORDER BY kind, op_id`)
	if err != nil {
		return nil, fmt.Errorf("list all: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var r Record
		var ts string
		if err := rows.Scan(&r.Kind, &r.OpID, &r.Status, &ts); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			r.UpdatedAt = t
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}
