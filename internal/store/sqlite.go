package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/datalab/internal/product"
	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
)

// foldFunc lowercases text with Unicode case rules. SQLite's own lower()
// and LIKE only fold ASCII.
const foldFunc = "datalab_fold"

func init() {
	sqlite.MustRegisterDeterministicScalarFunction(foldFunc, 1, fold)
}

func fold(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return v, nil
	}
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS products (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	sku        TEXT    NOT NULL UNIQUE,
	name       TEXT    NOT NULL,
	category   TEXT    NOT NULL DEFAULT '',
	price      TEXT    NOT NULL,
	quantity   INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
	tx_date    TEXT    NOT NULL,
	created_at TEXT    NOT NULL,
	updated_at TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS products_tx_date_idx ON products (tx_date DESC, id DESC);
`

const sqliteUpsert = `
INSERT INTO products (sku, name, category, price, quantity, tx_date, created_at, updated_at)
VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?7)
ON CONFLICT (sku) DO UPDATE SET
	name       = excluded.name,
	category   = excluded.category,
	price      = excluded.price,
	quantity   = excluded.quantity,
	tx_date    = excluded.tx_date,
	updated_at = excluded.updated_at`

const sqliteSelect = `SELECT id, sku, name, category, price, quantity, tx_date, created_at, updated_at FROM products`

// timestampLayout keeps sub-second precision in TEXT timestamp columns.
const timestampLayout = time.RFC3339Nano

// SQLiteStore is the SQLite engine. Writes go through a single connection.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens the database at dsn (":memory:" for an in-process one).
func OpenSQLite(ctx context.Context, dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		dsn = ":memory:"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &StoreError{Op: "open", Err: err}
	}
	// one connection: serializes writers and keeps :memory: alive
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &StoreError{Op: "ping", Err: err}
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, &StoreError{Op: "open", Err: err}
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteSchema)
	return wrap("migrate", err)
}

func (s *SQLiteStore) Upsert(ctx context.Context, row product.NormalizedRow) error {
	_, err := s.db.ExecContext(ctx, sqliteUpsert,
		row.SKU,
		row.Name,
		row.Category,
		row.Price.StringFixed(product.PricePlaces),
		row.Quantity,
		row.TxDate.Format(product.DateLayout),
		s.now().UTC().Format(timestampLayout),
	)
	return wrap("upsert", err)
}

func (s *SQLiteStore) All(ctx context.Context) ([]product.Record, error) {
	return s.query(ctx, "all", sqliteSelect+" ORDER BY id")
}

func (s *SQLiteStore) List(ctx context.Context, f Filter) ([]product.Record, error) {
	wb := NewWhereBuilder(SQLite)
	wb.AddFilter(f)
	where, args := wb.Build()

	return s.query(ctx, "list", sqliteSelect+where+f.Order.clause(), args...)
}

func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM products").Scan(&n)
	return n, wrap("count", err)
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return wrap("ping", s.db.PingContext(ctx))
}

func (s *SQLiteStore) Close() error {
	return wrap("close", s.db.Close())
}

func (s *SQLiteStore) query(ctx context.Context, op, query string, args ...any) ([]product.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap(op, err)
	}
	defer rows.Close()

	records := []product.Record{}
	for rows.Next() {
		r, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, wrap(op, err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(op, err)
	}
	return records, nil
}

func scanSQLiteRecord(rows *sql.Rows) (product.Record, error) {
	var (
		r                    product.Record
		price, txDate        string
		createdAt, updatedAt string
	)
	if err := rows.Scan(&r.ID, &r.SKU, &r.Name, &r.Category, &price, &r.Quantity,
		&txDate, &createdAt, &updatedAt); err != nil {
		return r, err
	}

	var err error
	if r.Price, err = decimal.NewFromString(price); err != nil {
		return r, fmt.Errorf("price %q: %w", price, err)
	}
	if r.TxDate, err = time.Parse(product.DateLayout, txDate); err != nil {
		return r, fmt.Errorf("tx_date %q: %w", txDate, err)
	}
	if r.CreatedAt, err = time.Parse(timestampLayout, createdAt); err != nil {
		return r, fmt.Errorf("created_at %q: %w", createdAt, err)
	}
	if r.UpdatedAt, err = time.Parse(timestampLayout, updatedAt); err != nil {
		return r, fmt.Errorf("updated_at %q: %w", updatedAt, err)
	}
	return r, nil
}
