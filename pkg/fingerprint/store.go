package fingerprint

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists a fingerprint map across daemon restarts when --incremental
// is active, backed by a pure-Go SQLite driver so the daemon binary stays a
// single static artifact with no cgo dependency.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if necessary) the fingerprint database at path.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("unable to create fingerprint store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("unable to open fingerprint store: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS fingerprints (
			path         TEXT PRIMARY KEY,
			size         INTEGER NOT NULL,
			mod_time_unix INTEGER NOT NULL,
			content_hash TEXT NOT NULL DEFAULT ''
		)`)
	if err != nil {
		return fmt.Errorf("unable to create fingerprints table: %w", err)
	}
	return nil
}

// Load reads the full fingerprint map from the store.
func (s *Store) Load() (map[string]Fingerprint, error) {
	rows, err := s.db.Query(`SELECT path, size, mod_time_unix, content_hash FROM fingerprints`)
	if err != nil {
		return nil, fmt.Errorf("unable to query fingerprints: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]Fingerprint)
	for rows.Next() {
		var path, hash string
		var size, modTimeUnix int64
		if err := rows.Scan(&path, &size, &modTimeUnix, &hash); err != nil {
			return nil, fmt.Errorf("unable to scan fingerprint row: %w", err)
		}
		entries[path] = Fingerprint{
			Size:        size,
			ModTime:     time.Unix(0, modTimeUnix),
			ContentHash: hash,
		}
	}
	return entries, rows.Err()
}

// Save replaces the store's contents with entries, as a single transaction
// so a crash mid-save never leaves a partially written table.
func (s *Store) Save(entries map[string]Fingerprint) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("unable to begin fingerprint save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM fingerprints`); err != nil {
		return fmt.Errorf("unable to clear fingerprints table: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO fingerprints (path, size, mod_time_unix, content_hash) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("unable to prepare fingerprint insert: %w", err)
	}
	defer stmt.Close()

	for path, fp := range entries {
		if _, err := stmt.Exec(path, fp.Size, fp.ModTime.UnixNano(), fp.ContentHash); err != nil {
			return fmt.Errorf("unable to insert fingerprint for %s: %w", path, err)
		}
	}

	return tx.Commit()
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
