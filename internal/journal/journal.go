// Package journal persists fills to SQLite for audit and post-trade analysis.
package journal

import (
	"database/sql"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"pairs-execd/internal/model"
)

// Journal is a SQLite-backed fill log. Writes are serialized under a mutex;
// the database opens in WAL mode so reads do not block the writer.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens (or creates) the journal database at dbPath.
func Open(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS fills (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id     INTEGER NOT NULL,
		symbol       TEXT NOT NULL,
		action       TEXT NOT NULL,
		qty          INTEGER NOT NULL,
		price        REAL NOT NULL,
		realized_pnl REAL DEFAULT 0,
		filled_at    DATETIME NOT NULL,
		created_at   DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_fills_symbol ON fills(symbol);
	CREATE INDEX IF NOT EXISTS idx_fills_order ON fills(order_id);
	CREATE INDEX IF NOT EXISTS idx_fills_filled_at ON fills(filled_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("[journal] opened fill journal at %s", dbPath)
	return &Journal{db: db}, nil
}

// DB exposes the underlying handle for liveness checks.
func (j *Journal) DB() *sql.DB {
	return j.db
}

// RecordFill persists one fill.
func (j *Journal) RecordFill(fill model.Fill) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO fills (order_id, symbol, action, qty, price, realized_pnl, filled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		fill.OrderID,
		fill.Symbol,
		string(fill.Action),
		fill.Quantity,
		fill.Price,
		fill.RealizedPnL,
		fill.FilledAt.Format(time.RFC3339),
	)
	return err
}

// FillRecord is a row from the fills table.
type FillRecord struct {
	ID          int64   `json:"id"`
	OrderID     int64   `json:"order_id"`
	Symbol      string  `json:"symbol"`
	Action      string  `json:"action"`
	Qty         int64   `json:"qty"`
	Price       float64 `json:"price"`
	RealizedPnL float64 `json:"realized_pnl"`
	FilledAt    string  `json:"filled_at"`
}

// RecentFills returns the last N fills, newest first.
func (j *Journal) RecentFills(limit int) ([]FillRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, order_id, symbol, action, qty, price, realized_pnl, filled_at
		 FROM fills ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fills []FillRecord
	for rows.Next() {
		var f FillRecord
		if err := rows.Scan(&f.ID, &f.OrderID, &f.Symbol, &f.Action,
			&f.Qty, &f.Price, &f.RealizedPnL, &f.FilledAt); err != nil {
			continue
		}
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
