package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"MiniMarket/internal/locker"
	"MiniMarket/internal/storage"
)

const (
	productsCollection = "products"
	stocksCollection   = "stocks"
	receiptsCollection = "receipts"

	// ProductAndStockLock guards products and stocks together. ReceiptsLock
	// guards receipts. Nothing may request ProductAndStockLock while holding
	// ReceiptsLock.
	ProductAndStockLock = "product-and-stock-lock"
	ReceiptsLock        = "receipts-lock"
)

type Locker interface {
	Acquire(ctx context.Context, name string) (locker.Releaser, error)
}

type Deps struct {
	Persist storage.Persister
	Locks   Locker
	Log     *zap.Logger
	Metrics *Metrics

	// LockTimeout bounds each lock acquisition. Zero waits until ctx ends.
	LockTimeout time.Duration
	Now         func() time.Time
}

// Store owns the product, stock and receipt collections. It keeps no state
// between calls: every operation takes its locks, loads what it needs from
// the Persister, and writes back before releasing.
type Store struct {
	persist     storage.Persister
	locks       Locker
	log         *zap.Logger
	metrics     *Metrics
	lockTimeout time.Duration
	now         func() time.Time
}

func New(deps Deps) *Store {
	s := &Store{
		persist:     deps.Persist,
		locks:       deps.Locks,
		log:         deps.Log,
		metrics:     deps.Metrics,
		lockTimeout: deps.LockTimeout,
		now:         deps.Now,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.persist.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return nil
}

// Reinitialize overwrites all three collections with the seed catalog, seed
// stock and an empty receipt ledger.
func (s *Store) Reinitialize(ctx context.Context) (err error) {
	defer func() { s.metrics.observe("reinitialize", err) }()

	release, err := s.lock(ctx, ProductAndStockLock)
	if err != nil {
		return err
	}
	defer release()

	_, _, err = s.reinitialize(ctx)
	return err
}

func (s *Store) lock(ctx context.Context, name string) (func(), error) {
	if s.lockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.lockTimeout)
		defer cancel()
	}

	h, err := s.locks.Acquire(ctx, name)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%w: %s: %w", ErrLockTimeout, name, err)
		}
		return nil, fmt.Errorf("%w: acquire %s: %w", ErrStorage, name, err)
	}

	return func() {
		if err := h.Release(); err != nil {
			s.log.Error("release lock failed", zap.String("lock", name), zap.Error(err))
		}
	}, nil
}

// reinitialize requires ProductAndStockLock; it takes ReceiptsLock itself.
func (s *Store) reinitialize(ctx context.Context) (productCollection, []StockEntry, error) {
	products, stocks := seedProducts(), seedStocks()

	if err := s.save(ctx, productsCollection, products); err != nil {
		return productCollection{}, nil, err
	}
	if err := s.saveStocks(ctx, stocks); err != nil {
		return productCollection{}, nil, err
	}

	release, err := s.lock(ctx, ReceiptsLock)
	if err != nil {
		return productCollection{}, nil, err
	}
	defer release()

	if err := s.save(ctx, receiptsCollection, emptyReceipts()); err != nil {
		return productCollection{}, nil, err
	}

	return products, stocks, nil
}

// loadProducts and loadStocks require ProductAndStockLock. A missing or
// corrupt collection reseeds everything, receipts included.
func (s *Store) loadProducts(ctx context.Context) (productCollection, error) {
	var pc productCollection
	err := s.persist.Load(ctx, productsCollection, &pc)
	switch {
	case err == nil:
		return pc, nil
	case errors.Is(err, storage.ErrNotAvailable):
		s.log.Warn("products unavailable, reseeding store", zap.Error(err))
		pc, _, err = s.reinitialize(ctx)
		if err == nil {
			s.metrics.reseeded()
		}
		return pc, err
	default:
		return productCollection{}, fmt.Errorf("%w: load %s: %w", ErrStorage, productsCollection, err)
	}
}

func (s *Store) loadStocks(ctx context.Context) (stocks []StockEntry, reseeded bool, err error) {
	err = s.persist.Load(ctx, stocksCollection, &stocks)
	switch {
	case err == nil:
		return stocks, false, nil
	case errors.Is(err, storage.ErrNotAvailable):
		s.log.Warn("stocks unavailable, reseeding store", zap.Error(err))
		_, stocks, err = s.reinitialize(ctx)
		if err != nil {
			return nil, false, err
		}
		s.metrics.reseeded()
		return stocks, true, nil
	default:
		return nil, false, fmt.Errorf("%w: load %s: %w", ErrStorage, stocksCollection, err)
	}
}

// loadCatalog returns a consistent products/stocks pair: if the stock load
// reseeds, the products loaded before it are stale and replaced.
func (s *Store) loadCatalog(ctx context.Context) (productCollection, []StockEntry, error) {
	products, err := s.loadProducts(ctx)
	if err != nil {
		return productCollection{}, nil, err
	}
	stocks, reseeded, err := s.loadStocks(ctx)
	if err != nil {
		return productCollection{}, nil, err
	}
	if reseeded {
		products = seedProducts()
	}
	return products, stocks, nil
}

// loadReceipts requires ReceiptsLock. A missing or corrupt ledger is replaced
// by an empty one; the catalog is left alone.
func (s *Store) loadReceipts(ctx context.Context) (receiptCollection, error) {
	var rc receiptCollection
	err := s.persist.Load(ctx, receiptsCollection, &rc)
	switch {
	case err == nil:
		return rc, nil
	case errors.Is(err, storage.ErrNotAvailable):
		s.log.Warn("receipts unavailable, starting empty ledger", zap.Error(err))
		rc = emptyReceipts()
		if err := s.save(ctx, receiptsCollection, rc); err != nil {
			return receiptCollection{}, err
		}
		s.metrics.reset(receiptsCollection)
		return rc, nil
	default:
		return receiptCollection{}, fmt.Errorf("%w: load %s: %w", ErrStorage, receiptsCollection, err)
	}
}

func (s *Store) save(ctx context.Context, name string, v any) error {
	if err := s.persist.Save(ctx, name, v); err != nil {
		return fmt.Errorf("%w: save %s: %w", ErrStorage, name, err)
	}
	return nil
}

// saveStocks never writes a JSON null; a null stock file reads back as
// unavailable and would reseed the store.
func (s *Store) saveStocks(ctx context.Context, stocks []StockEntry) error {
	if stocks == nil {
		stocks = []StockEntry{}
	}
	return s.save(ctx, stocksCollection, stocks)
}
