package store

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/datalab/internal/product"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS products (
	id         BIGSERIAL PRIMARY KEY,
	sku        VARCHAR(64)    NOT NULL UNIQUE,
	name       VARCHAR(255)   NOT NULL,
	category   VARCHAR(120)   NOT NULL DEFAULT '',
	price      NUMERIC(12, 2) NOT NULL,
	quantity   INTEGER        NOT NULL DEFAULT 0 CHECK (quantity >= 0),
	tx_date    DATE           NOT NULL,
	created_at TIMESTAMPTZ    NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ    NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS products_tx_date_idx ON products (tx_date DESC, id DESC);
`

const postgresUpsert = `
INSERT INTO products (sku, name, category, price, quantity, tx_date)
VALUES ($1, $2, $3, $4::numeric, $5, $6)
ON CONFLICT (sku) DO UPDATE SET
	name       = EXCLUDED.name,
	category   = EXCLUDED.category,
	price      = EXCLUDED.price,
	quantity   = EXCLUDED.quantity,
	tx_date    = EXCLUDED.tx_date,
	updated_at = now()`

const postgresSelect = `SELECT id, sku, name, category, price::text, quantity, tx_date, created_at, updated_at FROM products`

// PostgresStore is the PostgreSQL engine backed by a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres creates the pool and pings the server.
func OpenPostgres(ctx context.Context, opts Options) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		return nil, &StoreError{Op: "open", Err: fmt.Errorf("parse database URL: %w", err)}
	}

	if opts.MaxConns > 0 {
		poolConfig.MaxConns = int32(opts.MaxConns)
	}
	if opts.MinConns > 0 {
		poolConfig.MinConns = int32(opts.MinConns)
	}
	if opts.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = opts.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, &StoreError{Op: "open", Err: err}
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &StoreError{Op: "ping", Err: err}
	}

	return &PostgresStore{pool: pool}, nil
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresSchema)
	return wrap("migrate", err)
}

func (s *PostgresStore) Upsert(ctx context.Context, row product.NormalizedRow) error {
	_, err := s.pool.Exec(ctx, postgresUpsert,
		row.SKU,
		row.Name,
		row.Category,
		row.Price.StringFixed(product.PricePlaces),
		row.Quantity,
		product.DateOf(row.TxDate),
	)
	return wrap("upsert", err)
}

func (s *PostgresStore) All(ctx context.Context) ([]product.Record, error) {
	return s.query(ctx, "all", postgresSelect+" ORDER BY id")
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]product.Record, error) {
	wb := NewWhereBuilder(Postgres)
	wb.AddFilter(f)
	where, args := wb.Build()

	return s.query(ctx, "list", postgresSelect+where+f.Order.clause(), args...)
}

func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM products").Scan(&n)
	return n, wrap("count", err)
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return wrap("ping", s.pool.Ping(ctx))
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) query(ctx context.Context, op, sql string, args ...any) ([]product.Record, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, wrap(op, err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (product.Record, error) {
		var (
			r     product.Record
			price string
		)
		if err := row.Scan(&r.ID, &r.SKU, &r.Name, &r.Category, &price, &r.Quantity,
			&r.TxDate, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return r, err
		}
		d, err := decimal.NewFromString(price)
		if err != nil {
			return r, fmt.Errorf("price %q: %w", price, err)
		}
		r.Price = d
		r.TxDate = product.DateOf(r.TxDate)
		return r, nil
	})
	if err != nil {
		return nil, wrap(op, err)
	}
	return records, nil
}
