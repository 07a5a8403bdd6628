package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/phroun/mindmap"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id         TEXT PRIMARY KEY,
	format     TEXT NOT NULL,
	data       BLOB NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLiteStore keeps snapshots in a single SQLite database file.
type SQLiteStore struct {
	db    *sql.DB
	codec Codec
}

// OpenSQLite opens (or creates) the database at path. A nil codec means JSON.
func OpenSQLite(ctx context.Context, path string, codec Codec) (*SQLiteStore, error) {
	if codec == nil {
		codec = JSON
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One writer at a time; SQLite serializes anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db, codec: codec}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save writes the snapshot, replacing any earlier version.
func (s *SQLiteStore) Save(ctx context.Context, snap *mindmap.Snapshot) error {
	if err := validID(snap.ID); err != nil {
		return err
	}
	data, err := s.codec.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode %s: %w", snap.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (id, format, data, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET format = excluded.format, data = excluded.data, updated_at = excluded.updated_at`,
		snap.ID, s.codec.Name(), data, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("save %s: %w", snap.ID, err)
	}
	return nil
}

// Load reads a document's snapshot. Rows written with another codec are
// decoded with that codec.
func (s *SQLiteStore) Load(ctx context.Context, id string) (*mindmap.Snapshot, error) {
	var format string
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT format, data FROM snapshots WHERE id = ?`, id).Scan(&format, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", mindmap.ErrDocumentNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", id, err)
	}
	codec, err := CodecFor(format)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", mindmap.ErrMalformedSnapshot, err)
	}
	return codec.Unmarshal(data)
}

// Delete removes a document's snapshot.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", mindmap.ErrDocumentNotFound, id)
	}
	return nil
}

// List returns the stored document IDs, sorted.
func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM snapshots ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
