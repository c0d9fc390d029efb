// Package store persists product records keyed by SKU.
//
// Two engines implement Store: PostgreSQL through a pgx connection pool and
// SQLite through modernc.org/sqlite. Both upsert with the database's own
// INSERT ... ON CONFLICT (sku) DO UPDATE, so concurrent writers of the same
// SKU never produce duplicates.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/datalab/internal/product"
)

// Store is the persistent record set.
type Store interface {
	// Upsert creates the record for row.SKU or overwrites its business
	// fields and bumps updated_at.
	Upsert(ctx context.Context, row product.NormalizedRow) error

	// All returns every record in insertion order.
	All(ctx context.Context) ([]product.Record, error)

	// List returns the records matching f in f.Order.
	List(ctx context.Context, f Filter) ([]product.Record, error)

	// Count returns the number of records.
	Count(ctx context.Context) (int64, error)

	// Migrate creates the schema if it does not exist.
	Migrate(ctx context.Context) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	Close() error
}

// Order selects the sort order of List.
type Order int

const (
	// OrderRecent sorts by tx_date desc, id desc.
	OrderRecent Order = iota
	// OrderExport sorts by tx_date desc, sku asc.
	OrderExport
)

func (o Order) clause() string {
	if o == OrderExport {
		return " ORDER BY tx_date DESC, sku ASC"
	}
	return " ORDER BY tx_date DESC, id DESC"
}

// Filter narrows List. Zero fields are ignored.
type Filter struct {
	DateFrom time.Time // inclusive
	DateTo   time.Time // inclusive
	Category string    // case-insensitive substring
	Search   string    // case-insensitive substring of sku or name
	Order    Order
}

// IsZero reports whether f has no conditions.
func (f Filter) IsZero() bool {
	return f.DateFrom.IsZero() && f.DateTo.IsZero() &&
		strings.TrimSpace(f.Category) == "" && strings.TrimSpace(f.Search) == ""
}

// StoreError wraps a failed store operation.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// ErrUnknownDriver is returned by Open for an unsupported driver name.
var ErrUnknownDriver = errors.New("unknown database driver")

// Options configures Open.
type Options struct {
	Driver string // "postgres" or "sqlite"
	URL    string

	// Pool settings, PostgreSQL only.
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Open connects to the configured engine and verifies the connection.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(opts.Driver) {
	case "postgres", "postgresql", "pgx":
		s, err := OpenPostgres(ctx, opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite", "sqlite3":
		s, err := OpenSQLite(ctx, opts.URL)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, &StoreError{Op: "open", Err: fmt.Errorf("%w: %q", ErrUnknownDriver, opts.Driver)}
	}
}
