package config

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// Schema for the chat_pages table.
const Schema = `
CREATE TABLE IF NOT EXISTS chat_pages (
	id         TEXT PRIMARY KEY,
	url        TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'active',
	updated_at INTEGER NOT NULL
);
`

// OpenDB opens the page table database with WAL and a busy timeout, and
// creates the schema.
func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("config: open db: %w", err)
	}
	for _, p := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("config: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("config: schema: %w", err)
	}
	return db, nil
}

// LoadPages reads the active pages ordered by id.
func LoadPages(ctx context.Context, db *sql.DB) ([]PageConfig, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, url FROM chat_pages
		WHERE status = 'active'
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("config: load pages: %w", err)
	}
	defer rows.Close()

	var pages []PageConfig
	for rows.Next() {
		var p PageConfig
		if err := rows.Scan(&p.ID, &p.URL); err != nil {
			return nil, fmt.Errorf("config: scan page: %w", err)
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// UpsertPage inserts or reactivates a page.
func UpsertPage(ctx context.Context, db *sql.DB, p PageConfig) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO chat_pages (id, url, status, updated_at) VALUES (?, ?, 'active', ?)
		ON CONFLICT(id) DO UPDATE SET url = excluded.url, status = 'active', updated_at = excluded.updated_at
	`, p.ID, p.URL, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("config: upsert page %s: %w", p.ID, err)
	}
	return nil
}

// DisablePage marks a page inactive.
func DisablePage(ctx context.Context, db *sql.DB, id string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE chat_pages SET status = 'disabled', updated_at = ? WHERE id = ?`,
		time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("config: disable page %s: %w", id, err)
	}
	return nil
}

// WatchPages polls the page table and calls reload with the active pages
// whenever another process writes to it. reload is not called for the
// initial state. It blocks until ctx is cancelled. A failed reload is
// retried on the next change.
func WatchPages(ctx context.Context, db *sql.DB, interval time.Duration, logger *slog.Logger, reload func([]PageConfig) error) {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	// data_version is per connection: pin one for the whole watch.
	conn, err := db.Conn(ctx)
	if err != nil {
		logger.Error("config: watch pages", "error", err)
		return
	}
	defer conn.Close()

	version := func() (int64, error) {
		var v int64
		err := conn.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v)
		return v, err
	}

	last, err := version()
	if err != nil {
		logger.Warn("config: initial data version", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cur, err := version()
		if err != nil {
			logger.Warn("config: data version", "error", err)
			continue
		}
		if cur == last {
			continue
		}

		pages, err := LoadPages(ctx, db)
		if err == nil {
			err = reload(pages)
		}
		if err != nil {
			logger.Error("config: page reload failed", "error", err)
			continue
		}
		last = cur
		logger.Info("config: pages reloaded", "pages", len(pages), "version", cur)
	}
}
