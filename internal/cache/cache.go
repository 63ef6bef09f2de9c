package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is a cached Telegram file ID for a previously delivered download.
type Entry struct {
	SourceKey string
	Format    string
	FileID    string
	Title     string
	Hits      int64
	CreatedAt time.Time
}

// Cache persists Telegram file IDs so repeated requests for the same
// source are re-sent without downloading again.
type Cache struct {
	db *sql.DB
}

// Open opens (or creates) the cache database at path.
func Open(path string) (*Cache, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping cache database: %w", err)
	}

	return &Cache{db: db}, nil
}

// Migrate runs all cache schema migrations
func (c *Cache) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS file_cache (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source_key TEXT NOT NULL,
			format TEXT NOT NULL,
			file_id TEXT NOT NULL,
			title TEXT,
			hits INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(source_key, format)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_file_cache_created_at ON file_cache(created_at)`,
	}

	for i, migration := range migrations {
		if _, err := c.db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}

	return nil
}

// Lookup returns the cached entry for a source and format, or nil when
// the pair has never been delivered.
func (c *Cache) Lookup(ctx context.Context, sourceKey, format string) (*Entry, error) {
	query := `
		SELECT source_key, format, file_id, title, hits, created_at
		FROM file_cache
		WHERE source_key = ? AND format = ?
	`

	entry := &Entry{}
	var title sql.NullString

	err := c.db.QueryRowContext(ctx, query, sourceKey, format).Scan(
		&entry.SourceKey,
		&entry.Format,
		&entry.FileID,
		&title,
		&entry.Hits,
		&entry.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up cache entry: %w", err)
	}

	entry.Title = title.String

	return entry, nil
}

// Store records the file ID for a source and format, replacing any
// earlier entry for the same pair.
func (c *Cache) Store(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry is nil")
	}

	query := `
		INSERT INTO file_cache (source_key, format, file_id, title, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(source_key, format) DO UPDATE SET
			file_id = excluded.file_id,
			title = excluded.title
	`

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := c.db.ExecContext(ctx, query,
		entry.SourceKey,
		entry.Format,
		entry.FileID,
		entry.Title,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}

	return nil
}

// Touch increments the hit counter for a source and format. A miss is
// not an error.
func (c *Cache) Touch(ctx context.Context, sourceKey, format string) error {
	query := `UPDATE file_cache SET hits = hits + 1 WHERE source_key = ? AND format = ?`
	if _, err := c.db.ExecContext(ctx, query, sourceKey, format); err != nil {
		return fmt.Errorf("failed to touch cache entry: %w", err)
	}
	return nil
}

// Size returns the number of cached entries.
func (c *Cache) Size(ctx context.Context) (int64, error) {
	var count int64
	err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM file_cache").Scan(&count)
	return count, err
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}
