// Package store persists named index snapshots in a SQLite catalog.
// The snapshot bytes stay opaque (the binary format in pkg/persist);
// the catalog rows carry enough shape columns — dimensions, metric,
// counts — to browse and filter saved indexes without deserializing
// them.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/edgevec/edgevec"
)

var (
	// ErrCatalogClosed is returned when using a closed catalog.
	ErrCatalogClosed = errors.New("catalog is closed")
	// ErrSnapshotNotFound is returned when no snapshot has the given
	// name.
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

// SnapshotInfo describes one catalog row.
type SnapshotInfo struct {
	ID         string
	Name       string
	IndexType  string
	Dimensions int
	Metric     string
	Count      int
	SizeBytes  int64
}

// Catalog is a SQLite-backed store of named index snapshots.
type Catalog struct {
	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

// Open opens or creates a catalog database at path. ":memory:" gives
// an ephemeral catalog.
func Open(path string) (*Catalog, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		name TEXT UNIQUE NOT NULL,
		index_type TEXT NOT NULL,
		dimensions INTEGER NOT NULL,
		metric TEXT NOT NULL,
		count INTEGER NOT NULL,
		size_bytes INTEGER NOT NULL,
		data BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_name ON snapshots(name);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Catalog{db: db}, nil
}

// Save serializes the index and upserts it under name, returning the
// snapshot record id.
func (c *Catalog) Save(ctx context.Context, name string, idx *edgevec.Index) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", ErrCatalogClosed
	}

	data := idx.Save()
	cfg := idx.Config()
	id := uuid.NewString()

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO snapshots (id, name, index_type, dimensions, metric, count, size_bytes, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			id = excluded.id,
			index_type = excluded.index_type,
			dimensions = excluded.dimensions,
			metric = excluded.metric,
			count = excluded.count,
			size_bytes = excluded.size_bytes,
			data = excluded.data`,
		id, name, string(cfg.IndexType), cfg.Dimensions, cfg.Metric,
		idx.Count(), int64(len(data)), data)
	if err != nil {
		return "", fmt.Errorf("failed to save snapshot %q: %w", name, err)
	}
	return id, nil
}

// Load deserializes the named snapshot into a fresh index.
func (c *Catalog) Load(ctx context.Context, name string) (*edgevec.Index, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrCatalogClosed
	}

	var data []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT data FROM snapshots WHERE name = ?`, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrSnapshotNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot %q: %w", name, err)
	}
	return edgevec.Load(data)
}

// List returns all catalog rows ordered by name.
func (c *Catalog) List(ctx context.Context) ([]SnapshotInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrCatalogClosed
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, name, index_type, dimensions, metric, count, size_bytes
		FROM snapshots ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var infos []SnapshotInfo
	for rows.Next() {
		var info SnapshotInfo
		if err := rows.Scan(&info.ID, &info.Name, &info.IndexType,
			&info.Dimensions, &info.Metric, &info.Count, &info.SizeBytes); err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// Delete removes the named snapshot. Deleting an unknown name returns
// ErrSnapshotNotFound.
func (c *Catalog) Delete(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrCatalogClosed
	}

	res, err := c.db.ExecContext(ctx, `DELETE FROM snapshots WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %q", ErrSnapshotNotFound, name)
	}
	return nil
}

// Close closes the catalog database.
func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.db.Close()
}
