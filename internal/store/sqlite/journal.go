// Package sqlite persists the trade ledger, equity curve and open position
// so a paper-trading session survives restarts. Single-writer: the engine's
// cycle goroutine is the only producer.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"pattern-traderv1/internal/model"
)

// Config configures the journal.
type Config struct {
	Path string // e.g. "data/trader.db"
}

// Journal is a model.Sink backed by SQLite in WAL mode. Sink write failures
// are logged, never propagated: persistence must not stall a cycle.
type Journal struct {
	db         *sql.DB
	instrument string
}

// Open opens (creating if needed) the journal database.
func Open(cfg Config, instrument string) (*Journal, error) {
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single-writer discipline.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened journal at %s", cfg.Path)
	return &Journal{db: db, instrument: instrument}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS trades (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			instrument   TEXT    NOT NULL,
			direction    TEXT    NOT NULL,
			pattern      TEXT    NOT NULL,
			entry_price  REAL    NOT NULL,
			exit_price   REAL    NOT NULL,
			size         REAL    NOT NULL,
			opened_at    INTEGER NOT NULL,
			closed_at    INTEGER NOT NULL,
			exit_reason  TEXT    NOT NULL,
			realized_pnl REAL    NOT NULL,
			pnl_percent  REAL    NOT NULL,
			equity_after REAL    NOT NULL
		);

		CREATE TABLE IF NOT EXISTS equity_curve (
			instrument TEXT    NOT NULL,
			idx        INTEGER NOT NULL,
			ts         INTEGER NOT NULL,
			equity     REAL    NOT NULL,
			PRIMARY KEY (instrument, idx)
		);

		CREATE TABLE IF NOT EXISTS open_positions (
			instrument TEXT PRIMARY KEY,
			data       TEXT    NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS rejections (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			instrument TEXT    NOT NULL,
			pattern    TEXT    NOT NULL,
			reason     TEXT    NOT NULL,
			created_at INTEGER NOT NULL
		);
	`)
	return err
}

// Close closes the database.
func (j *Journal) Close() error { return j.db.Close() }

// DB exposes the underlying handle for liveness probes.
func (j *Journal) DB() *sql.DB { return j.db }

// ──────────────────────────── sink ────────────────────────────

func (j *Journal) PositionOpened(pos model.Position) {
	data, _ := json.Marshal(pos)
	_, err := j.db.Exec(`
		INSERT INTO open_positions (instrument, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(instrument) DO UPDATE SET data=excluded.data, updated_at=excluded.updated_at`,
		j.instrument, string(data), time.Now().UnixMilli())
	if err != nil {
		log.Printf("[sqlite] position upsert: %v", err)
	}
}

func (j *Journal) TradeClosed(t model.Trade, equity float64) {
	tx, err := j.db.Begin()
	if err != nil {
		log.Printf("[sqlite] trade tx: %v", err)
		return
	}
	_, err = tx.Exec(`
		INSERT INTO trades (instrument, direction, pattern, entry_price, exit_price, size,
			opened_at, closed_at, exit_reason, realized_pnl, pnl_percent, equity_after)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.instrument, string(t.Direction), t.Pattern, t.EntryPrice, t.ExitPrice, t.Size,
		t.OpenedAt.UnixMilli(), t.ClosedAt.UnixMilli(), string(t.ExitReason),
		t.RealizedPnL, t.PnLPercent, equity)
	if err == nil {
		_, err = tx.Exec(`DELETE FROM open_positions WHERE instrument = ?`, j.instrument)
	}
	if err != nil {
		tx.Rollback()
		log.Printf("[sqlite] trade insert: %v", err)
		return
	}
	if err := tx.Commit(); err != nil {
		log.Printf("[sqlite] trade commit: %v", err)
	}
}

func (j *Journal) EquityAppended(pt model.EquityPoint) {
	_, err := j.db.Exec(`
		INSERT OR REPLACE INTO equity_curve (instrument, idx, ts, equity) VALUES (?, ?, ?, ?)`,
		j.instrument, pt.Index, pt.TS.UnixMilli(), pt.Equity)
	if err != nil {
		log.Printf("[sqlite] equity insert: %v", err)
	}
}

func (j *Journal) SignalRejected(pattern, reason string) {
	_, err := j.db.Exec(`
		INSERT INTO rejections (instrument, pattern, reason, created_at) VALUES (?, ?, ?, ?)`,
		j.instrument, pattern, reason, time.Now().UnixMilli())
	if err != nil {
		log.Printf("[sqlite] rejection insert: %v", err)
	}
}

// ──────────────────────────── readers ────────────────────────────

// Trades returns the newest limit trades, oldest first. limit <= 0 means all.
func (j *Journal) Trades(limit int) ([]model.Trade, error) {
	q := `
		SELECT direction, pattern, entry_price, exit_price, size,
		       opened_at, closed_at, exit_reason, realized_pnl, pnl_percent
		FROM trades WHERE instrument = ? ORDER BY id DESC`
	args := []any{j.instrument}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := j.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("trades query: %w", err)
	}
	defer rows.Close()

	var out []model.Trade
	for rows.Next() {
		var t model.Trade
		var dir, reason string
		var openedMs, closedMs int64
		if err := rows.Scan(&dir, &t.Pattern, &t.EntryPrice, &t.ExitPrice, &t.Size,
			&openedMs, &closedMs, &reason, &t.RealizedPnL, &t.PnLPercent); err != nil {
			return nil, fmt.Errorf("trades scan: %w", err)
		}
		t.Direction = model.Direction(dir)
		t.ExitReason = model.ExitReason(reason)
		t.OpenedAt = time.UnixMilli(openedMs).UTC()
		t.ClosedAt = time.UnixMilli(closedMs).UTC()
		out = append(out, t)
	}
	// DESC query, flip to ledger order.
	for i, k := 0, len(out)-1; i < k; i, k = i+1, k-1 {
		out[i], out[k] = out[k], out[i]
	}
	return out, rows.Err()
}

// Equity returns the persisted equity curve in index order.
func (j *Journal) Equity() ([]model.EquityPoint, error) {
	rows, err := j.db.Query(`
		SELECT idx, ts, equity FROM equity_curve WHERE instrument = ? ORDER BY idx`,
		j.instrument)
	if err != nil {
		return nil, fmt.Errorf("equity query: %w", err)
	}
	defer rows.Close()

	var out []model.EquityPoint
	for rows.Next() {
		var pt model.EquityPoint
		var ms int64
		if err := rows.Scan(&pt.Index, &ms, &pt.Equity); err != nil {
			return nil, fmt.Errorf("equity scan: %w", err)
		}
		pt.TS = time.UnixMilli(ms).UTC()
		out = append(out, pt)
	}
	return out, rows.Err()
}

// OpenPosition returns the persisted open position, if one exists.
func (j *Journal) OpenPosition() (model.Position, bool, error) {
	var data string
	err := j.db.QueryRow(`
		SELECT data FROM open_positions WHERE instrument = ?`, j.instrument).Scan(&data)
	if err == sql.ErrNoRows {
		return model.Position{}, false, nil
	}
	if err != nil {
		return model.Position{}, false, fmt.Errorf("position query: %w", err)
	}
	var pos model.Position
	if err := json.Unmarshal([]byte(data), &pos); err != nil {
		return model.Position{}, false, fmt.Errorf("position decode: %w", err)
	}
	return pos, true, nil
}
