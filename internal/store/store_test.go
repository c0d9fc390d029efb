package store

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/JonMunkholm/datalab/internal/product"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(s string) time.Time {
	t, err := time.Parse(product.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func nrow(sku, name, category, price string, qty int64, txDate string) product.NormalizedRow {
	return product.NormalizedRow{
		SKU:      sku,
		Name:     name,
		Category: category,
		Price:    decimal.RequireFromString(price),
		Quantity: qty,
		TxDate:   date(txDate),
	}
}

func skus(records []product.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.SKU
	}
	return out
}

func newSQLite(t *testing.T) Store {
	t.Helper()
	s, err := OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

// newPostgres returns a store on TEST_DATABASE_URL with an empty products
// table, or skips when the variable is unset.
func newPostgres(t *testing.T) Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	s, err := OpenPostgres(ctx, Options{URL: url, MaxConns: 4})
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))
	_, err = s.pool.Exec(ctx, "TRUNCATE products RESTART IDENTITY")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, newSQLite)
}

func TestPostgresStore(t *testing.T) {
	runStoreSuite(t, newPostgres)
}

func runStoreSuite(t *testing.T, open func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("upsert creates then overwrites", func(t *testing.T) {
		s := open(t)

		require.NoError(t, s.Upsert(ctx, nrow("A1", "Widget", "", "2.50", 10, "2024-01-05")))
		first, err := s.All(ctx)
		require.NoError(t, err)
		require.Len(t, first, 1)

		require.NoError(t, s.Upsert(ctx, nrow("A1", "Widget", "", "3.00", 0, "2024-02-01")))
		all, err := s.All(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)

		got := all[0]
		assert.Equal(t, "A1", got.SKU)
		assert.Equal(t, int64(0), got.Quantity)
		assert.True(t, got.Price.Equal(decimal.RequireFromString("3.00")))
		assert.Equal(t, "2024-02-01", got.TxDate.Format(product.DateLayout))
		assert.Equal(t, first[0].ID, got.ID)
		assert.True(t, got.CreatedAt.Equal(first[0].CreatedAt), "created_at must not change")
		assert.False(t, got.UpdatedAt.Before(first[0].UpdatedAt))
	})

	t.Run("upsert is idempotent", func(t *testing.T) {
		s := open(t)
		rows := []product.NormalizedRow{
			nrow("B1", "Hammer", "Tools", "10", 2, "2024-01-15"),
			nrow("B2", "Wrench", "Tools", "5", 1, "2024-01-20"),
		}

		for i := 0; i < 2; i++ {
			for _, r := range rows {
				require.NoError(t, s.Upsert(ctx, r))
			}
		}

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		all, err := s.All(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"B1", "B2"}, skus(all))
		assert.Equal(t, "Tools", all[0].Category)
	})

	t.Run("empty store", func(t *testing.T) {
		s := open(t)

		all, err := s.All(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("list order and filters", func(t *testing.T) {
		s := open(t)
		for _, r := range []product.NormalizedRow{
			nrow("C1", "Paint", "Home & Garden", "12.50", 4, "2024-03-01"),
			nrow("C2", "Paint brush", "Home & Garden", "4", 1, "2024-03-01"),
			nrow("D1", "Ball", "Toys", "3.99", 10, "2024-04-11"),
			nrow("E1", "Mystery", "", "1", 0, "2023-11-30"),
			nrow("F1", "50% off lamp", "home", "20", 3, "2024-01-02"),
		} {
			require.NoError(t, s.Upsert(ctx, r))
		}

		recent, err := s.List(ctx, Filter{})
		require.NoError(t, err)
		assert.Equal(t, []string{"D1", "C2", "C1", "F1", "E1"}, skus(recent))

		export, err := s.List(ctx, Filter{Order: OrderExport})
		require.NoError(t, err)
		assert.Equal(t, []string{"D1", "C1", "C2", "F1", "E1"}, skus(export))

		ranged, err := s.List(ctx, Filter{DateFrom: date("2024-01-02"), DateTo: date("2024-03-01")})
		require.NoError(t, err)
		assert.Equal(t, []string{"C2", "C1", "F1"}, skus(ranged))

		cat, err := s.List(ctx, Filter{Category: "HOME"})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"C1", "C2", "F1"}, skus(cat))

		search, err := s.List(ctx, Filter{Search: "paint"})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"C1", "C2"}, skus(search))

		bySKU, err := s.List(ctx, Filter{Search: "d1"})
		require.NoError(t, err)
		assert.Equal(t, []string{"D1"}, skus(bySKU))

		literal, err := s.List(ctx, Filter{Search: "50%"})
		require.NoError(t, err)
		assert.Equal(t, []string{"F1"}, skus(literal))

		none, err := s.List(ctx, Filter{Search: "%"})
		require.NoError(t, err)
		assert.Equal(t, []string{"F1"}, skus(none), "percent sign matches literally")
	})

	t.Run("filters fold non-ascii case", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Upsert(ctx, nrow("U1", "Crème Brûlée", "Épicerie", "6", 1, "2024-01-01")))
		require.NoError(t, s.Upsert(ctx, nrow("U2", "Bread", "Bakery", "2", 1, "2024-01-01")))

		cat, err := s.List(ctx, Filter{Category: "épicerie"})
		require.NoError(t, err)
		assert.Equal(t, []string{"U1"}, skus(cat))

		search, err := s.List(ctx, Filter{Search: "CRÈME BRÛLÉE"})
		require.NoError(t, err)
		assert.Equal(t, []string{"U1"}, skus(search))
	})

	t.Run("concurrent upserts of one sku", func(t *testing.T) {
		s := open(t)

		var wg sync.WaitGroup
		errs := make(chan error, 16)
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs <- s.Upsert(ctx, nrow("SAME", "Same", "", "1", int64(i), "2024-01-01"))
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})
}

func TestSQLiteStore_UpdatedAtBumps(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(ctx, "")
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Migrate(ctx))

	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }
	require.NoError(t, s.Upsert(ctx, nrow("A", "a", "", "1", 1, "2024-01-01")))

	clock = clock.Add(time.Hour)
	require.NoError(t, s.Upsert(ctx, nrow("A", "a2", "", "1", 1, "2024-01-01")))

	all, err := s.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "a2", all[0].Name)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), all[0].CreatedAt)
	assert.Equal(t, time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC), all[0].UpdatedAt)
}

func TestSQLiteStore_FileDatabase(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir() + "/products.db"

	s, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Upsert(ctx, nrow("P", "Persisted", "", "1", 1, "2024-01-01")))
	require.NoError(t, s.Close())

	reopened, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()
	require.NoError(t, reopened.Migrate(ctx))

	n, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestStoreError_WrapsCause(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(ctx, "")
	require.NoError(t, err)
	defer s.Close()

	// no Migrate: the table does not exist
	err = s.Upsert(ctx, nrow("A", "a", "", "1", 1, "2024-01-01"))

	var se *StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "upsert", se.Op)
	assert.NotNil(t, errors.Unwrap(err))
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Options{Driver: "oracle"})

	assert.ErrorIs(t, err, ErrUnknownDriver)
	var se *StoreError
	assert.ErrorAs(t, err, &se)
}

func TestOpen_SQLite(t *testing.T) {
	s, err := Open(context.Background(), Options{Driver: "SQLite", URL: ":memory:"})
	require.NoError(t, err)
	defer s.Close()

	assert.NoError(t, s.Ping(context.Background()))
}

func TestFilter_IsZero(t *testing.T) {
	assert.True(t, Filter{}.IsZero())
	assert.True(t, Filter{Category: "  ", Order: OrderExport}.IsZero())
	assert.False(t, Filter{Search: "x"}.IsZero())
	assert.False(t, Filter{DateTo: date("2024-01-01")}.IsZero())
}
