package navwatch

import (
	"context"
	"database/sql"

	"github.com/hazyhaar/chatnav/navwatch/internal/config"
)

// Config is the top-level chatnav configuration.
type Config = config.Config

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig = config.BrowserConfig

// PageConfig defines a chat tab to observe.
type PageConfig = config.PageConfig

// NavigatorConfig tunes the message index.
type NavigatorConfig = config.NavigatorConfig

// ObserverConfig tunes page record batching.
type ObserverConfig = config.ObserverConfig

// SinkConfig defines a snapshot output.
type SinkConfig = config.SinkConfig

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// OpenPageDB opens (and creates) the SQLite page table at path.
func OpenPageDB(path string) (*sql.DB, error) {
	return config.OpenDB(path)
}

// LoadPages returns the active pages of the page table.
func LoadPages(ctx context.Context, db *sql.DB) ([]PageConfig, error) {
	return config.LoadPages(ctx, db)
}

// UpsertPage adds or reactivates a page.
func UpsertPage(ctx context.Context, db *sql.DB, p PageConfig) error {
	return config.UpsertPage(ctx, db, p)
}

// DisablePage marks a page inactive.
func DisablePage(ctx context.Context, db *sql.DB, id string) error {
	return config.DisablePage(ctx, db, id)
}
