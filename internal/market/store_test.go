package market_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MiniMarket/internal/locker"
	"MiniMarket/internal/market"
	"MiniMarket/internal/storage"
)

var fixedNow = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

type fixture struct {
	fs    afero.Fs
	files *storage.FileStore
	locks *locker.Manager
	store *market.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	fsys := afero.NewMemMapFs()
	f := &fixture{
		fs:    fsys,
		files: storage.NewFileStore(fsys, "/data"),
		locks: locker.New("", time.Millisecond),
	}
	f.store = f.open(market.Deps{})
	return f
}

// open builds another Store over the same files and locks.
func (f *fixture) open(deps market.Deps) *market.Store {
	if deps.Persist == nil {
		deps.Persist = f.files
	}
	if deps.Locks == nil {
		deps.Locks = f.locks
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return fixedNow }
	}
	return market.New(deps)
}

func (f *fixture) write(t *testing.T, collection, body string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(f.fs, f.files.Path(collection), []byte(body), 0o644))
}

func requireStock(t *testing.T, s *market.Store, productID, want int) {
	t.Helper()
	got, found, err := s.GetStock(context.Background(), productID)
	require.NoError(t, err)
	require.True(t, found, "product %d has no stock entry", productID)
	require.Equal(t, want, got, "stock of product %d", productID)
}

func requireNoStock(t *testing.T, s *market.Store, productID int) {
	t.Helper()
	_, found, err := s.GetStock(context.Background(), productID)
	require.NoError(t, err)
	require.False(t, found, "product %d still has a stock entry", productID)
}

func assertPrice(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "price=%s want=%s", got, want)
}

func assertSameProduct(t *testing.T, want, got market.Product) {
	t.Helper()
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Name, got.Name)
	assert.Equal(t, want.Category, got.Category)
	assert.Equal(t, want.Description, got.Description)
	assert.True(t, want.Price.Equal(got.Price), "price=%s want=%s", got.Price, want.Price)
}

func TestStore_FirstRunSeeds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	items, err := f.store.Inventory(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)

	names := []string{items[0].Product.Name, items[1].Product.Name, items[2].Product.Name}
	assert.Equal(t, []string{"banana", "apple", "Television"}, names)
	assert.Equal(t, market.Grocery, items[0].Product.Category)
	assert.Equal(t, market.Electronic, items[2].Product.Category)
	assertPrice(t, "1.67", items[0].Product.Price)
	assertPrice(t, "2.67", items[1].Product.Price)
	assertPrice(t, "1600.59", items[2].Product.Price)
	assert.Equal(t, []int{100, 200, 300}, []int{items[0].Count, items[1].Count, items[2].Count})

	receipts, err := f.store.Receipts(ctx)
	require.NoError(t, err)
	assert.Empty(t, receipts)
}

func TestStore_ReinitializeResetsEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.AddProduct(ctx, &market.Product{Name: "pear", Category: market.Grocery, Price: decimal.RequireFromString("0.99")})
	require.NoError(t, err)
	require.NoError(t, f.store.IncreaseStock(ctx, 4, 7))
	_, err = f.store.Checkout(ctx, []market.RequestLine{{ProductID: 1, Count: 1}})
	require.NoError(t, err)

	require.NoError(t, f.store.Reinitialize(ctx))

	items, err := f.store.Inventory(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	requireStock(t, f.store, 1, 100)
	requireStock(t, f.store, 2, 200)
	requireStock(t, f.store, 3, 300)
	requireNoStock(t, f.store, 4)

	receipts, err := f.store.Receipts(ctx)
	require.NoError(t, err)
	assert.Empty(t, receipts)

	p, err := f.store.AddProduct(ctx, &market.Product{Name: "plum", Price: decimal.NewFromInt(1)})
	require.NoError(t, err)
	assert.Equal(t, 4, p.ID)
}

func TestStore_AddProductRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := &market.Product{
		Name:        "kettle",
		Category:    market.Household,
		Description: "Electric kettle",
		Price:       decimal.RequireFromString("24.50"),
	}
	created, err := f.store.AddProduct(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, 4, created.ID)
	assert.Zero(t, in.ID, "input must not be modified")

	got, found, err := f.store.FindProduct(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, found)
	assertSameProduct(t, created, got)

	reopened := f.open(market.Deps{})
	got, found, err = reopened.FindProduct(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, found)
	assertSameProduct(t, created, got)
}

func TestStore_AddProductDefaultsDescription(t *testing.T) {
	f := newFixture(t)

	created, err := f.store.AddProduct(context.Background(), &market.Product{Name: "socks", Category: market.Clothing, Description: "  "})
	require.NoError(t, err)
	assert.Equal(t, "socks", created.Description)
}

func TestStore_AddProductIDsIncreaseAcrossReloads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	last := 0
	for i := 0; i < 5; i++ {
		s := f.open(market.Deps{})
		p, err := s.AddProduct(ctx, &market.Product{Name: "item", Price: decimal.NewFromInt(int64(i))})
		require.NoError(t, err)
		assert.Greater(t, p.ID, last)
		last = p.ID
	}

	// Removing the newest product must not free its id.
	require.NoError(t, f.store.RemoveProduct(ctx, last))
	p, err := f.store.AddProduct(ctx, &market.Product{Name: "again", Price: decimal.Zero})
	require.NoError(t, err)
	assert.Equal(t, last+1, p.ID)
}

func TestStore_AddProductRejectsInvalid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := map[string]*market.Product{
		"nil":            nil,
		"empty name":     {Name: "", Price: decimal.NewFromInt(1)},
		"blank name":     {Name: " \t ", Price: decimal.NewFromInt(1)},
		"negative price": {Name: "x", Price: decimal.RequireFromString("-0.01")},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.store.AddProduct(ctx, p)
			assert.ErrorIs(t, err, market.ErrInvalidArgument)
		})
	}

	items, err := f.store.Inventory(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestStore_FindProductMissing(t *testing.T) {
	f := newFixture(t)

	_, found, err := f.store.FindProduct(context.Background(), 42)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_RemoveProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.store.RemoveProduct(ctx, 1)
	assert.ErrorIs(t, err, market.ErrConflict)

	err = f.store.RemoveProduct(ctx, 99)
	assert.ErrorIs(t, err, market.ErrNotFound)

	require.NoError(t, f.store.DecreaseStock(ctx, 1, 100))
	require.NoError(t, f.store.RemoveProduct(ctx, 1))

	_, found, err := f.store.FindProduct(ctx, 1)
	require.NoError(t, err)
	assert.False(t, found)

	err = f.store.RemoveProduct(ctx, 1)
	assert.ErrorIs(t, err, market.ErrNotFound)
}

func TestStore_IncreaseThenDecrease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.IncreaseStock(ctx, 2, 15))
	requireStock(t, f.store, 2, 215)
	require.NoError(t, f.store.DecreaseStock(ctx, 2, 15))
	requireStock(t, f.store, 2, 200)

	p, err := f.store.AddProduct(ctx, &market.Product{Name: "lamp", Category: market.Household, Price: decimal.NewFromInt(30)})
	require.NoError(t, err)
	requireNoStock(t, f.store, p.ID)

	require.NoError(t, f.store.IncreaseStock(ctx, p.ID, 4))
	requireStock(t, f.store, p.ID, 4)

	require.NoError(t, f.store.DecreaseStock(ctx, p.ID, 4))
	requireNoStock(t, f.store, p.ID)
}

func TestStore_StockRejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, n := range []int{0, -3} {
		assert.ErrorIs(t, f.store.IncreaseStock(ctx, 1, n), market.ErrInvalidArgument)
		assert.ErrorIs(t, f.store.DecreaseStock(ctx, 1, n), market.ErrInvalidArgument)
	}

	assert.ErrorIs(t, f.store.IncreaseStock(ctx, 77, 1), market.ErrNotFound)
	assert.ErrorIs(t, f.store.DecreaseStock(ctx, 77, 1), market.ErrNotFound)

	assert.ErrorIs(t, f.store.DecreaseStock(ctx, 3, 301), market.ErrConflict)
	requireStock(t, f.store, 3, 300)

	require.NoError(t, f.store.DecreaseStock(ctx, 3, 300))
	assert.ErrorIs(t, f.store.DecreaseStock(ctx, 3, 1), market.ErrConflict)
}

func TestStore_IncreaseStockRejectsOverflow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.store.IncreaseStock(ctx, 1, math.MaxInt), market.ErrInvalidArgument)
	requireStock(t, f.store, 1, 100)

	require.NoError(t, f.store.IncreaseStock(ctx, 1, math.MaxInt-100))
	requireStock(t, f.store, 1, math.MaxInt)
	assert.ErrorIs(t, f.store.IncreaseStock(ctx, 1, 1), market.ErrInvalidArgument)
	requireStock(t, f.store, 1, math.MaxInt)
}

func TestStore_LoadFailureReseedsCatalog(t *testing.T) {
	for _, collection := range []string{"products", "stocks"} {
		t.Run(collection, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			_, err := f.store.AddProduct(ctx, &market.Product{Name: "pear", Price: decimal.NewFromInt(1)})
			require.NoError(t, err)
			_, err = f.store.Checkout(ctx, []market.RequestLine{{ProductID: 2, Count: 5}})
			require.NoError(t, err)

			f.write(t, collection, "{broken")

			items, err := f.store.Inventory(ctx)
			require.NoError(t, err)
			require.Len(t, items, 3)
			assert.Equal(t, 200, items[1].Count)

			receipts, err := f.store.Receipts(ctx)
			require.NoError(t, err)
			assert.Empty(t, receipts, "reseed clears the ledger too")
		})
	}
}

func TestStore_ReceiptLoadFailureKeepsCatalog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	added, err := f.store.AddProduct(ctx, &market.Product{Name: "pear", Price: decimal.NewFromInt(1)})
	require.NoError(t, err)
	first, err := f.store.Checkout(ctx, []market.RequestLine{{ProductID: 1, Count: 2}})
	require.NoError(t, err)
	require.Equal(t, 1, first.ID)

	f.write(t, "receipts", "not json at all")

	receipts, err := f.store.Receipts(ctx)
	require.NoError(t, err)
	assert.Empty(t, receipts)

	_, found, err := f.store.FindProduct(ctx, added.ID)
	require.NoError(t, err)
	assert.True(t, found)
	requireStock(t, f.store, 1, 98)

	next, err := f.store.Checkout(ctx, []market.RequestLine{{ProductID: 1, Count: 1}})
	require.NoError(t, err)
	assert.Equal(t, 1, next.ID)
}

func TestStore_StorageErrorsSurface(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Reinitialize(ctx))

	readOnly := storage.NewFileStore(afero.NewReadOnlyFs(f.fs), "/data")
	s := f.open(market.Deps{Persist: readOnly})

	_, found, err := s.FindProduct(ctx, 1)
	require.NoError(t, err)
	require.True(t, found)

	_, err = s.AddProduct(ctx, &market.Product{Name: "x", Price: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, market.ErrStorage)

	err = s.IncreaseStock(ctx, 1, 1)
	assert.ErrorIs(t, err, market.ErrStorage)
	requireStock(t, f.store, 1, 100)
}

func TestStore_LockTimeout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	held, err := f.locks.Acquire(ctx, market.ProductAndStockLock)
	require.NoError(t, err)
	defer held.Release()

	s := f.open(market.Deps{LockTimeout: 20 * time.Millisecond})
	_, err = s.AddProduct(ctx, &market.Product{Name: "x", Price: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, market.ErrLockTimeout)
	assert.Equal(t, "lock_timeout", market.Kind(err))

	// The receipt domain is independent.
	_, err = s.Receipts(ctx)
	assert.NoError(t, err)
}

func TestStore_Listings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.store.ListReceipts(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", out)

	out, err = f.store.ListProducts(ctx)
	require.NoError(t, err)
	assert.Equal(t,
		"Product Id = 1, Name = banana, Category = grocery, Description = Banana from Mexico, Price = 1.67 Stock = 100\n"+
			"Product Id = 2, Name = apple, Category = grocery, Description = Apple from China, Price = 2.67 Stock = 200\n"+
			"Product Id = 3, Name = Television, Category = electronic, Description = Sony 65\", Price = 1600.59 Stock = 300",
		out)

	require.NoError(t, f.store.DecreaseStock(ctx, 2, 200))
	out, err = f.store.ListProducts(ctx)
	require.NoError(t, err)
	assert.Contains(t, out, "Name = apple, Category = grocery, Description = Apple from China, Price = 2.67 Stock = 0")

	f.write(t, "stocks", `[{"product_id":1,"count":5},{"product_id":99,"count":2}]`)
	out, err = f.store.ListStocks(ctx)
	require.NoError(t, err)
	assert.Equal(t,
		"Product Id = 1, Name = banana, Category = grocery, Description = Banana from Mexico, Price = 1.67 Stock = 5\n"+
			"Product Info : Unknown Stock = 2",
		out)

	_, err = f.store.Checkout(ctx, []market.RequestLine{{ProductID: 1, Count: 3}})
	require.NoError(t, err)
	out, err = f.store.ListReceipts(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Receipt Id = 1, Time = 2026-03-14T15:09:26Z, Items = [banana x 3 @ 1.67], Total = 5.01", out)

	f.write(t, "products", `{"next_product_id":3,"products":[]}`)
	f.write(t, "stocks", `[]`)
	out, err = f.store.ListProducts(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", out)
	out, err = f.store.ListStocks(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func TestStore_FindReceipt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.store.Checkout(ctx, []market.RequestLine{{ProductID: 3, Count: 1}})
	require.NoError(t, err)

	got, found, err := f.store.FindReceipt(ctx, r.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, r.ID, got.ID)
	assert.True(t, r.TransactionTime.Equal(got.TransactionTime))
	assertPrice(t, "1600.59", got.Total())

	_, found, err = f.store.FindReceipt(ctx, r.ID+1)
	require.NoError(t, err)
	assert.False(t, found)
}
