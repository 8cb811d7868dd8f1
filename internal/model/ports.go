package model

import (
	"context"
	"time"
)

// ── Storage Port Interfaces ──
// These interfaces decouple the downloader and the catalogue cache from
// concrete storage implementations (Redis, SQLite).

// BarWriter persists downloaded bars.
type BarWriter interface {
	// WriteBars writes a batch of bars for one symbol and resolution.
	WriteBars(ctx context.Context, bars []Bar) error

	// Close releases underlying resources.
	Close() error
}

// BarReader reads bars back for inspection and backfill.
type BarReader interface {
	// ReadBars returns bars of one symbol and period with start in [from, to).
	ReadBars(ctx context.Context, sym Symbol, period time.Duration, from, to time.Time) ([]Bar, error)

	// Close releases underlying resources.
	Close() error
}

// CatalogueStore shares a downloaded scrip master between processes.
type CatalogueStore interface {
	// LoadCatalogue returns the stored CSV for the given trading day key
	// ("2006-01-02"). Returns nil, nil when nothing is stored.
	LoadCatalogue(ctx context.Context, day string) ([]byte, error)

	// SaveCatalogue stores the CSV for the given day, expiring after ttl.
	SaveCatalogue(ctx context.Context, day string, csv []byte, ttl time.Duration) error

	// DeleteCatalogue removes the CSV stored for the given day.
	DeleteCatalogue(ctx context.Context, day string) error
}
