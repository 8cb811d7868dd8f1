package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"samco-bridge/internal/model"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// Reader provides read-only access to stored bars.
type Reader struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (r *Reader) DB() *sql.DB { return r.db }

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	// the API may start before the first download
	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// ReadBars returns bars of sym and period starting in [from, to), oldest first.
func (r *Reader) ReadBars(ctx context.Context, sym model.Symbol, period time.Duration, from, to time.Time) ([]model.Bar, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND period = ? AND ts >= ? AND ts < ?
		ORDER BY ts ASC
	`, sym.Key(), int64(period/time.Second), from.Unix(), to.Unix())
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var (
			tsUnix     int64
			o, h, l, c string
			volume     sql.NullInt64
		)
		if err := rows.Scan(&tsUnix, &o, &h, &l, &c, &volume); err != nil {
			return nil, fmt.Errorf("sqlite scan bars: %w", err)
		}
		b := model.Bar{Symbol: sym, Time: time.Unix(tsUnix, 0).UTC(), Period: period, Volume: volume.Int64}
		for _, f := range []struct {
			raw string
			dst *decimal.Decimal
		}{{o, &b.Open}, {h, &b.High}, {l, &b.Low}, {c, &b.Close}} {
			if *f.dst, err = decimal.NewFromString(f.raw); err != nil {
				return nil, fmt.Errorf("sqlite bar %s@%d: %w", sym.Key(), tsUnix, err)
			}
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
