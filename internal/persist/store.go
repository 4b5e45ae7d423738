// Package persist is a SQLite-backed store for serialized Patch
// snapshots, with schema changes tracked by goose migrations.
package persist

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/atom/superstring/patch"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Store persists patch.Patch snapshots for named documents.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) a SQLite database at path and brings
// its schema up to date.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("persist: open %s: %w", path, err)
	}
	goose.SetBaseFS(migrationFiles)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return nil, fmt.Errorf("persist: set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return nil, fmt.Errorf("persist: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSnapshot persists p under the given sequence number for documentID.
// Saving a sequence number that documentID already has fails.
func (s *Store) SaveSnapshot(documentID string, sequence int, p *patch.Patch) error {
	_, err := s.db.Exec(
		`INSERT INTO snapshots (document_id, sequence, patch_bytes) VALUES (?, ?, ?)`,
		documentID, sequence, p.Serialize(),
	)
	if err != nil {
		return fmt.Errorf("persist: save snapshot %s#%d: %w", documentID, sequence, err)
	}
	return nil
}

// LoadSnapshot returns the most recently saved patch for documentID.
func (s *Store) LoadSnapshot(documentID string) (*patch.Patch, int, error) {
	var sequence int
	var data []byte
	err := s.db.QueryRow(
		`SELECT sequence, patch_bytes FROM snapshots WHERE document_id = ? ORDER BY sequence DESC LIMIT 1`,
		documentID,
	).Scan(&sequence, &data)
	if err == sql.ErrNoRows {
		return nil, 0, fmt.Errorf("persist: no snapshot for document %s", documentID)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("persist: load snapshot %s: %w", documentID, err)
	}
	return patch.Deserialize(data), sequence, nil
}
