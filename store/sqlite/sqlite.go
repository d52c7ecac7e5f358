/*
Package sqlite provides the SQLite-backed snapshot store.

PURPOSE:
  Persists goal snapshots (per-client goals plus category targets for one
  month) as JSON documents keyed by (month_key, supplier, brand). In
  production the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

UPSERT SEMANTICS:
  Saving a snapshot for an existing key replaces the stored document and
  its updated_at timestamp. There is exactly one document per key; history
  is not kept.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of SQLite's single-writer
  model. The database is opened in WAL mode so readers never block.

USAGE:
  store, err := sqlite.New("./data/sales.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - goals/snapshot.go: Snapshot document shape and validation
  - api/handlers.go:   HTTP surface persisting and restoring snapshots
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/sales-engine/goals"
)

// Store persists goal snapshots in SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a snapshot store at the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS goals_snapshots (
		month_key TEXT NOT NULL,
		supplier TEXT NOT NULL,
		brand TEXT NOT NULL,
		goals_json TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (month_key, supplier, brand)
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_updated_at
		ON goals_snapshots(updated_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveSnapshot inserts or replaces the snapshot for its key.
func (s *Store) SaveSnapshot(ctx context.Context, snap *goals.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("invalid snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(snap.GoalsData)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO goals_snapshots (month_key, supplier, brand, goals_json, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(month_key, supplier, brand) DO UPDATE SET
			goals_json = excluded.goals_json,
			updated_at = excluded.updated_at
	`, snap.MonthKey, snap.Supplier, snap.Brand, string(payload), snap.UpdatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns the snapshot for a key, or sql.ErrNoRows when none
// is stored.
func (s *Store) LoadSnapshot(ctx context.Context, monthKey, supplier, brand string) (*goals.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		payload   string
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT goals_json, updated_at FROM goals_snapshots
		WHERE month_key = ? AND supplier = ? AND brand = ?
	`, monthKey, supplier, brand).Scan(&payload, &updatedAt)
	if err != nil {
		return nil, err
	}

	snap := &goals.Snapshot{
		MonthKey: monthKey,
		Supplier: supplier,
		Brand:    brand,
	}
	if err := json.Unmarshal([]byte(payload), &snap.GoalsData); err != nil {
		return nil, fmt.Errorf("corrupt snapshot %s/%s/%s: %w", monthKey, supplier, brand, err)
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		snap.UpdatedAt = t
	}
	return snap, nil
}

// DeleteSnapshot removes the snapshot for a key. Deleting a missing key
// is not an error.
func (s *Store) DeleteSnapshot(ctx context.Context, monthKey, supplier, brand string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		DELETE FROM goals_snapshots
		WHERE month_key = ? AND supplier = ? AND brand = ?
	`, monthKey, supplier, brand)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// ListMonths returns the month keys having a stored snapshot, newest
// update first.
func (s *Store) ListMonths(ctx context.Context, supplier, brand string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT month_key FROM goals_snapshots
		WHERE supplier = ? AND brand = ?
		ORDER BY updated_at DESC
	`, supplier, brand)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var months []string
	for rows.Next() {
		var mk string
		if err := rows.Scan(&mk); err != nil {
			return nil, err
		}
		months = append(months, mk)
	}
	return months, rows.Err()
}
