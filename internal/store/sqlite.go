package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Mason55/stock/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ Repository = (*SQLiteRepository)(nil)

// ErrOrderNotFound is returned by GetOrder for unknown IDs.
var ErrOrderNotFound = errors.New("order not found")

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	id              TEXT PRIMARY KEY,
	broker_order_id TEXT NOT NULL DEFAULT '',
	symbol          TEXT NOT NULL,
	side            TEXT NOT NULL,
	type            TEXT NOT NULL,
	qty             INTEGER NOT NULL,
	limit_price     TEXT NOT NULL DEFAULT '0',
	filled_qty      INTEGER NOT NULL DEFAULT 0,
	avg_fill_price  TEXT NOT NULL DEFAULT '0',
	status          TEXT NOT NULL,
	reject_reason   TEXT NOT NULL DEFAULT '',
	strategy_id     TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMP NOT NULL,
	updated_at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);

CREATE TABLE IF NOT EXISTS fills (
	id           TEXT PRIMARY KEY,
	order_id     TEXT NOT NULL,
	symbol       TEXT NOT NULL,
	side         TEXT NOT NULL,
	qty          INTEGER NOT NULL,
	price        TEXT NOT NULL,
	commission   TEXT NOT NULL DEFAULT '0',
	stamp_tax    TEXT NOT NULL DEFAULT '0',
	transfer_fee TEXT NOT NULL DEFAULT '0',
	ts           TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fills_order ON fills(order_id);

CREATE TABLE IF NOT EXISTS equity_curve (
	ts     TIMESTAMP PRIMARY KEY,
	equity TEXT NOT NULL,
	cash   TEXT NOT NULL
);
`

// SQLiteRepository implements Repository backed by a SQLite database.
// Monetary values are stored as decimal strings to avoid float drift.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens (or creates) a SQLite database at dbPath and
// runs the schema.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite at %s: %w", dbPath, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteRepository) Close() error {
	return s.db.Close()
}

// SaveOrder inserts a new order.
func (s *SQLiteRepository) SaveOrder(ctx context.Context, o *domain.Order) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (id, broker_order_id, symbol, side, type, qty,
			limit_price, filled_qty, avg_fill_price, status, reject_reason,
			strategy_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.BrokerOrderID, o.Symbol, string(o.Side), string(o.Type), o.Qty,
		o.LimitPrice.String(), o.FilledQty, o.AvgFillPrice.String(),
		string(o.Status), o.RejectReason, o.StrategyID, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving order %s: %w", o.ID, err)
	}
	return nil
}

// UpdateOrder persists changes to an existing order.
func (s *SQLiteRepository) UpdateOrder(ctx context.Context, o *domain.Order) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET broker_order_id = ?, filled_qty = ?,
			avg_fill_price = ?, status = ?, reject_reason = ?, updated_at = ?
		WHERE id = ?`,
		o.BrokerOrderID, o.FilledQty, o.AvgFillPrice.String(),
		string(o.Status), o.RejectReason, o.UpdatedAt, o.ID)
	if err != nil {
		return fmt.Errorf("updating order %s: %w", o.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("updating order %s: %w", o.ID, ErrOrderNotFound)
	}
	return nil
}

// GetOrder retrieves a single order by its ID.
func (s *SQLiteRepository) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, broker_order_id, symbol, side, type, qty, limit_price,
			filled_qty, avg_fill_price, status, reject_reason, strategy_id,
			created_at, updated_at
		FROM orders WHERE id = ?`, id)

	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, ErrOrderNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching order %s: %w", id, err)
	}
	return o, nil
}

// PendingOrders returns all orders in a non-terminal status, oldest first.
func (s *SQLiteRepository) PendingOrders(ctx context.Context) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, broker_order_id, symbol, side, type, qty, limit_price,
			filled_qty, avg_fill_price, status, reject_reason, strategy_id,
			created_at, updated_at
		FROM orders
		WHERE status NOT IN ('filled', 'canceled', 'rejected', 'expired')
		ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing pending orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning pending order: %w", err)
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (*domain.Order, error) {
	var (
		o                      domain.Order
		side, typ, status      string
		limitPrice, avgPrice   string
	)
	err := row.Scan(&o.ID, &o.BrokerOrderID, &o.Symbol, &side, &typ, &o.Qty,
		&limitPrice, &o.FilledQty, &avgPrice, &status, &o.RejectReason,
		&o.StrategyID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.Side = domain.OrderSide(side)
	o.Type = domain.OrderType(typ)
	o.Status = domain.OrderStatus(status)
	if o.LimitPrice, err = decimal.NewFromString(limitPrice); err != nil {
		return nil, fmt.Errorf("parsing limit price %q: %w", limitPrice, err)
	}
	if o.AvgFillPrice, err = decimal.NewFromString(avgPrice); err != nil {
		return nil, fmt.Errorf("parsing avg fill price %q: %w", avgPrice, err)
	}
	return &o, nil
}

// SaveFill inserts an execution record.
func (s *SQLiteRepository) SaveFill(ctx context.Context, f *domain.Fill) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fills (id, order_id, symbol, side, qty, price,
			commission, stamp_tax, transfer_fee, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.OrderID, f.Symbol, string(f.Side), f.Qty, f.Price.String(),
		f.Fees.Commission.String(), f.Fees.StampTax.String(),
		f.Fees.TransferFee.String(), f.Timestamp)
	if err != nil {
		return fmt.Errorf("saving fill %s: %w", f.ID, err)
	}
	return nil
}

// ListFills returns all fills for an order in execution order.
func (s *SQLiteRepository) ListFills(ctx context.Context, orderID string) ([]domain.Fill, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, symbol, side, qty, price, commission, stamp_tax,
			transfer_fee, ts
		FROM fills WHERE order_id = ? ORDER BY ts`, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing fills for %s: %w", orderID, err)
	}
	defer rows.Close()

	var fills []domain.Fill
	for rows.Next() {
		var (
			f                               domain.Fill
			side                            string
			price, commission, stamp, xfer  string
		)
		if err := rows.Scan(&f.ID, &f.OrderID, &f.Symbol, &side, &f.Qty,
			&price, &commission, &stamp, &xfer, &f.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning fill: %w", err)
		}
		f.Side = domain.OrderSide(side)
		if f.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parsing fill price %q: %w", price, err)
		}
		if f.Fees.Commission, err = decimal.NewFromString(commission); err != nil {
			return nil, err
		}
		if f.Fees.StampTax, err = decimal.NewFromString(stamp); err != nil {
			return nil, err
		}
		if f.Fees.TransferFee, err = decimal.NewFromString(xfer); err != nil {
			return nil, err
		}
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// SaveEquityPoint appends a sample to the equity curve. Re-recording the
// same timestamp overwrites it.
func (s *SQLiteRepository) SaveEquityPoint(ctx context.Context, p domain.EquityPoint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO equity_curve (ts, equity, cash)
		VALUES (?, ?, ?)`,
		p.Timestamp, p.Equity.String(), p.Cash.String())
	if err != nil {
		return fmt.Errorf("saving equity point: %w", err)
	}
	return nil
}

// ListEquityPoints returns equity samples within [start, end].
func (s *SQLiteRepository) ListEquityPoints(ctx context.Context, start, end time.Time) ([]domain.EquityPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, equity, cash FROM equity_curve
		WHERE ts >= ? AND ts <= ? ORDER BY ts`, start, end)
	if err != nil {
		return nil, fmt.Errorf("listing equity points: %w", err)
	}
	defer rows.Close()

	var points []domain.EquityPoint
	for rows.Next() {
		var (
			p            domain.EquityPoint
			equity, cash string
		)
		if err := rows.Scan(&p.Timestamp, &equity, &cash); err != nil {
			return nil, fmt.Errorf("scanning equity point: %w", err)
		}
		if p.Equity, err = decimal.NewFromString(equity); err != nil {
			return nil, err
		}
		if p.Cash, err = decimal.NewFromString(cash); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}
