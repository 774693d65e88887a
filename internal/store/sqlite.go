// Package store provides data persistence implementations.
package store

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "nifty-options-trader/internal/errors"
	"nifty-options-trader/internal/models"
)

// SQLiteStore implements TradeStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based trade store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
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
	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id TEXT NOT NULL UNIQUE,
		symbol TEXT NOT NULL,
		direction TEXT NOT NULL,
		strike REAL NOT NULL,
		expiry DATETIME NOT NULL,
		quantity INTEGER NOT NULL,
		lots INTEGER NOT NULL,
		entry_price REAL NOT NULL,
		stop_loss REAL NOT NULL,
		target REAL NOT NULL,
		exit_price REAL,
		pnl REAL,
		status TEXT NOT NULL,
		reason TEXT,
		is_paper INTEGER DEFAULT 0,
		entered_at DATETIME NOT NULL,
		exited_at DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
	CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status);
	CREATE INDEX IF NOT EXISTS idx_trades_entered_at ON trades(entered_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// LogTrade inserts a new trade record.
func (s *SQLiteStore) LogTrade(ctx context.Context, trade *models.TradeRecord) error {
	isPaper := 0
	if trade.IsPaper {
		isPaper = 1
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (order_id, symbol, direction, strike, expiry, quantity, lots, entry_price, stop_loss, target, exit_price, pnl, status, reason, is_paper, entered_at, exited_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, trade.OrderID, trade.Symbol, trade.Direction, trade.Strike, trade.Expiry, trade.Quantity, trade.Lots, trade.EntryPrice, trade.StopLoss, trade.Target, trade.ExitPrice, trade.PnL, trade.Status, trade.Reason, isPaper, trade.EnteredAt, trade.ExitedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return apperrors.Wrapf(apperrors.ErrDuplicateTrade, "order %s", trade.OrderID)
		}
		return fmt.Errorf("failed to log trade: %w", err)
	}

	if id, err := res.LastInsertId(); err == nil {
		trade.ID = id
	}
	return nil
}

// UpdateTradeExit records the exit of a trade by order ID.
func (s *SQLiteStore) UpdateTradeExit(ctx context.Context, orderID string, exitPrice, pnl float64, reason string, status models.TradeStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE trades SET exit_price = ?, pnl = ?, reason = ?, status = ?, exited_at = ?
		WHERE order_id = ?
	`, exitPrice, pnl, reason, status, time.Now(), orderID)
	if err != nil {
		return fmt.Errorf("failed to update trade exit: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.Wrapf(apperrors.ErrTradeNotFound, "order %s", orderID)
	}
	return nil
}

// UpdateTradeStatus moves a trade to a new lifecycle state.
func (s *SQLiteStore) UpdateTradeStatus(ctx context.Context, orderID string, status models.TradeStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE trades SET status = ? WHERE order_id = ?`, status, orderID)
	if err != nil {
		return fmt.Errorf("failed to update trade status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.Wrapf(apperrors.ErrTradeNotFound, "order %s", orderID)
	}
	return nil
}

const tradeColumns = "id, order_id, symbol, direction, strike, expiry, quantity, lots, entry_price, stop_loss, target, exit_price, pnl, status, reason, is_paper, entered_at, exited_at"

// GetTradeByOrderID returns the trade with the given order ID.
func (s *SQLiteStore) GetTradeByOrderID(ctx context.Context, orderID string) (*models.TradeRecord, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+tradeColumns+" FROM trades WHERE order_id = ?", orderID)
	trade, err := scanTrade(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.Wrapf(apperrors.ErrTradeNotFound, "order %s", orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trade: %w", err)
	}
	return trade, nil
}

// GetTrades retrieves trades matching the filter, newest first.
func (s *SQLiteStore) GetTrades(ctx context.Context, filter models.TradeFilter) ([]models.TradeRecord, error) {
	query := "SELECT " + tradeColumns + " FROM trades WHERE 1=1"
	args := []interface{}{}

	if filter.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, filter.Symbol)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	if !filter.From.IsZero() {
		query += " AND entered_at >= ?"
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		query += " AND entered_at <= ?"
		args = append(args, filter.To)
	}

	query += " ORDER BY entered_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []models.TradeRecord
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, *trade)
	}

	return trades, rows.Err()
}

// ExportCSV writes trades matching the filter as CSV.
func (s *SQLiteStore) ExportCSV(ctx context.Context, w io.Writer, filter models.TradeFilter) error {
	trades, err := s.GetTrades(ctx, filter)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	header := []string{"order_id", "symbol", "direction", "strike", "expiry", "quantity", "lots", "entry_price", "stop_loss", "target", "exit_price", "pnl", "status", "reason", "is_paper", "entered_at", "exited_at"}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, t := range trades {
		exitedAt := ""
		if t.ExitedAt != nil {
			exitedAt = t.ExitedAt.Format(time.RFC3339)
		}
		record := []string{
			t.OrderID,
			t.Symbol,
			string(t.Direction),
			strconv.FormatFloat(t.Strike, 'f', 2, 64),
			t.Expiry.Format("2006-01-02"),
			strconv.Itoa(t.Quantity),
			strconv.Itoa(t.Lots),
			strconv.FormatFloat(t.EntryPrice, 'f', 2, 64),
			strconv.FormatFloat(t.StopLoss, 'f', 2, 64),
			strconv.FormatFloat(t.Target, 'f', 2, 64),
			strconv.FormatFloat(t.ExitPrice, 'f', 2, 64),
			strconv.FormatFloat(t.PnL, 'f', 2, 64),
			string(t.Status),
			t.Reason,
			strconv.FormatBool(t.IsPaper),
			t.EnteredAt.Format(time.RFC3339),
			exitedAt,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTrade(row scanner) (*models.TradeRecord, error) {
	var t models.TradeRecord
	var isPaper int
	var exitPrice, pnl sql.NullFloat64
	var reason sql.NullString
	var exitedAt sql.NullTime

	err := row.Scan(&t.ID, &t.OrderID, &t.Symbol, &t.Direction, &t.Strike, &t.Expiry, &t.Quantity, &t.Lots, &t.EntryPrice, &t.StopLoss, &t.Target, &exitPrice, &pnl, &t.Status, &reason, &isPaper, &t.EnteredAt, &exitedAt)
	if err != nil {
		return nil, err
	}

	t.IsPaper = isPaper == 1
	t.ExitPrice = exitPrice.Float64
	t.PnL = pnl.Float64
	t.Reason = reason.String
	if exitedAt.Valid {
		ts := exitedAt.Time
		t.ExitedAt = &ts
	}
	return &t, nil
}
