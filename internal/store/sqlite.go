package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"bracket-trader/internal/models"
)

// SQLiteStore implements Journal using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the journal at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- One row per bracket placement
	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		group_id TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		entry_price REAL NOT NULL,
		stop_price REAL NOT NULL,
		target_price REAL NOT NULL,
		signal_price REAL,
		state TEXT NOT NULL,
		reason TEXT,
		order_ids TEXT,
		is_paper INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Bracket state changes
	CREATE TABLE IF NOT EXISTS bracket_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		group_id TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		symbol TEXT NOT NULL,
		event TEXT NOT NULL,
		role TEXT,
		order_id TEXT,
		detail TEXT
	);

	-- End of day PnL per symbol
	CREATE TABLE IF NOT EXISTS daily_pnl (
		date TEXT NOT NULL,
		symbol TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		pnl REAL NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (date, symbol)
	);

	CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
	CREATE INDEX IF NOT EXISTS idx_trades_timestamp ON trades(timestamp);
	CREATE INDEX IF NOT EXISTS idx_events_group ON bracket_events(group_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// LogTrade appends a trade. Timestamps are stored in UTC so range filters
// compare consistently.
func (s *SQLiteStore) LogTrade(ctx context.Context, trade *models.Trade) error {
	isPaper := 0
	if trade.IsPaper {
		isPaper = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (id, group_id, timestamp, symbol, side, quantity, entry_price, stop_price, target_price, signal_price, state, reason, order_ids, is_paper)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, trade.ID, trade.GroupID, trade.Timestamp.UTC(), trade.Symbol, string(trade.Side), trade.Quantity, trade.EntryPrice, trade.StopPrice, trade.Target, trade.SignalPx, trade.State, trade.Reason, trade.OrderIDs, isPaper)
	if err != nil {
		return fmt.Errorf("failed to log trade: %w", err)
	}
	return nil
}

// GetTrades returns trades matching filter, newest first.
func (s *SQLiteStore) GetTrades(ctx context.Context, filter TradeFilter) ([]models.Trade, error) {
	query := "SELECT id, group_id, timestamp, symbol, side, quantity, entry_price, stop_price, target_price, signal_price, state, reason, order_ids, is_paper FROM trades WHERE 1=1"
	args := []interface{}{}

	if filter.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, filter.Symbol)
	}
	if !filter.StartDate.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, filter.StartDate.UTC())
	}
	if !filter.EndDate.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, filter.EndDate.UTC())
	}
	if filter.Side != "" {
		query += " AND side = ?"
		args = append(args, filter.Side)
	}
	if filter.IsPaper != nil {
		isPaper := 0
		if *filter.IsPaper {
			isPaper = 1
		}
		query += " AND is_paper = ?"
		args = append(args, isPaper)
	}

	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		var t models.Trade
		var side string
		var signal sql.NullFloat64
		var reason, orderIDs sql.NullString
		var isPaper int

		if err := rows.Scan(&t.ID, &t.GroupID, &t.Timestamp, &t.Symbol, &side, &t.Quantity, &t.EntryPrice, &t.StopPrice, &t.Target, &signal, &t.State, &reason, &orderIDs, &isPaper); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}

		t.Side = models.OrderSide(side)
		t.SignalPx = signal.Float64
		t.Reason = reason.String
		t.OrderIDs = orderIDs.String
		t.IsPaper = isPaper == 1
		trades = append(trades, t)
	}

	return trades, rows.Err()
}

// RecordEvent appends a bracket event.
func (s *SQLiteStore) RecordEvent(ctx context.Context, event *models.BracketEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bracket_events (group_id, timestamp, symbol, event, role, order_id, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, event.GroupID, event.Timestamp.UTC(), event.Symbol, event.Event, string(event.Role), event.OrderID, event.Detail)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// GetEvents returns the events of a group in the order they happened.
func (s *SQLiteStore) GetEvents(ctx context.Context, groupID string) ([]models.BracketEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT group_id, timestamp, symbol, event, role, order_id, detail
		FROM bracket_events WHERE group_id = ? ORDER BY id ASC
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []models.BracketEvent
	for rows.Next() {
		var e models.BracketEvent
		var role, orderID, detail sql.NullString
		if err := rows.Scan(&e.GroupID, &e.Timestamp, &e.Symbol, &e.Event, &role, &orderID, &detail); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Role = models.LegRole(role.String)
		e.OrderID = orderID.String
		e.Detail = detail.String
		events = append(events, e)
	}

	return events, rows.Err()
}

// SaveDailyPnL writes the day's PnL rows in one transaction. Saving the same
// date and symbol again replaces the earlier figure.
func (s *SQLiteStore) SaveDailyPnL(ctx context.Context, pnl []models.DailyPnL) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO daily_pnl (date, symbol, quantity, pnl)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(date, symbol) DO UPDATE SET quantity = excluded.quantity, pnl = excluded.pnl, updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, row := range pnl {
		if _, err := stmt.ExecContext(ctx, row.Date, row.Symbol, row.Quantity, row.PnL); err != nil {
			return fmt.Errorf("failed to save pnl for %s: %w", row.Symbol, err)
		}
	}

	return tx.Commit()
}

// GetDailyPnL returns the PnL rows for date (YYYY-MM-DD).
func (s *SQLiteStore) GetDailyPnL(ctx context.Context, date string) ([]models.DailyPnL, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, symbol, quantity, pnl FROM daily_pnl WHERE date = ? ORDER BY symbol
	`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query pnl: %w", err)
	}
	defer rows.Close()

	var out []models.DailyPnL
	for rows.Next() {
		var p models.DailyPnL
		if err := rows.Scan(&p.Date, &p.Symbol, &p.Quantity, &p.PnL); err != nil {
			return nil, fmt.Errorf("failed to scan pnl: %w", err)
		}
		out = append(out, p)
	}

	return out, rows.Err()
}

var _ Journal = (*SQLiteStore)(nil)
