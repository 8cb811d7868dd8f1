package execution

import (
	"database/sql"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Journal persists order results to SQLite for audit.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// NewJournal opens (or creates) a SQLite order journal.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS order_journal (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id    TEXT,
		action      TEXT NOT NULL,
		status      TEXT NOT NULL,
		symbol      TEXT NOT NULL,
		direction   TEXT NOT NULL,
		order_type  TEXT NOT NULL,
		qty         INTEGER NOT NULL,
		limit_price TEXT,
		stop_price  TEXT,
		message     TEXT,
		at          DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_order_journal_order ON order_journal(order_id);
	CREATE INDEX IF NOT EXISTS idx_order_journal_at ON order_journal(at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("[journal] opened order journal at %s", dbPath)
	return &Journal{db: db}, nil
}

// RecordResult appends one order result.
func (j *Journal) RecordResult(r OrderResult) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO order_journal (order_id, action, status, symbol, direction, order_type, qty, limit_price, stop_price, message, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.OrderID,
		r.Action,
		r.Status,
		r.Order.Symbol.Key(),
		string(r.Order.Direction),
		string(r.Order.Type),
		r.Order.Quantity,
		r.Order.LimitPrice.String(),
		r.Order.StopPrice.String(),
		r.Message,
		r.At.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// JournalEntry is a row from the order journal.
type JournalEntry struct {
	ID         int64  `json:"id"`
	OrderID    string `json:"order_id"`
	Action     string `json:"action"`
	Status     string `json:"status"`
	Symbol     string `json:"symbol"`
	Direction  string `json:"direction"`
	OrderType  string `json:"order_type"`
	Qty        int64  `json:"qty"`
	LimitPrice string `json:"limit_price"`
	StopPrice  string `json:"stop_price"`
	Message    string `json:"message"`
	At         string `json:"at"`
}

// Entries returns the last N entries, newest first.
func (j *Journal) Entries(limit int) ([]JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, order_id, action, status, symbol, direction, order_type, qty, limit_price, stop_price, message, at
		 FROM order_journal ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		var e JournalEntry
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Action, &e.Status, &e.Symbol, &e.Direction,
			&e.OrderType, &e.Qty, &e.LimitPrice, &e.StopPrice, &e.Message, &e.At); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
