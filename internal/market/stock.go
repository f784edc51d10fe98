package market

import (
	"context"
	"fmt"
	"math"
)

func (s *Store) IncreaseStock(ctx context.Context, productID, count int) error {
	_, err := s.increaseStock(ctx, productID, count)
	return err
}

func (s *Store) DecreaseStock(ctx context.Context, productID, count int) error {
	_, err := s.decreaseStock(ctx, productID, count)
	return err
}

// increaseStock returns the count left under the lock that changed it.
func (s *Store) increaseStock(ctx context.Context, productID, count int) (after int, err error) {
	defer func() { s.metrics.observe("increase_stock", err) }()

	if count <= 0 {
		return 0, fmt.Errorf("%w: cannot increase stock by %d", ErrInvalidArgument, count)
	}

	release, err := s.lock(ctx, ProductAndStockLock)
	if err != nil {
		return 0, err
	}
	defer release()

	pc, stocks, err := s.loadCatalog(ctx)
	if err != nil {
		return 0, err
	}
	if pc.index(productID) < 0 {
		return 0, fmt.Errorf("%w: product %d does not exist", ErrNotFound, productID)
	}

	if i := stockIndex(stocks, productID); i >= 0 {
		if stocks[i].Count > math.MaxInt-count {
			return 0, fmt.Errorf("%w: stock of product %d would exceed %d", ErrInvalidArgument, productID, math.MaxInt)
		}
		stocks[i].Count += count
		after = stocks[i].Count
	} else {
		stocks = append(stocks, StockEntry{ProductID: productID, Count: count})
		after = count
	}
	if err := s.saveStocks(ctx, stocks); err != nil {
		return 0, err
	}
	return after, nil
}

func (s *Store) decreaseStock(ctx context.Context, productID, count int) (after int, err error) {
	defer func() { s.metrics.observe("decrease_stock", err) }()

	if count <= 0 {
		return 0, fmt.Errorf("%w: cannot decrease stock by %d", ErrInvalidArgument, count)
	}

	release, err := s.lock(ctx, ProductAndStockLock)
	if err != nil {
		return 0, err
	}
	defer release()

	pc, stocks, err := s.loadCatalog(ctx)
	if err != nil {
		return 0, err
	}
	if pc.index(productID) < 0 {
		return 0, fmt.Errorf("%w: product %d does not exist", ErrNotFound, productID)
	}

	i := stockIndex(stocks, productID)
	if i < 0 || stocks[i].Count < count {
		return 0, fmt.Errorf("%w: product %d is out of stock or not enough", ErrConflict, productID)
	}

	after = stocks[i].Count - count
	stocks = take(stocks, i, count)
	if err := s.saveStocks(ctx, stocks); err != nil {
		return 0, err
	}
	return after, nil
}

// GetStock reports the stock count for productID. found is false when there
// is no entry, which is distinct from a zero count: empty entries are removed.
func (s *Store) GetStock(ctx context.Context, productID int) (count int, found bool, err error) {
	defer func() { s.metrics.observe("get_stock", err) }()

	release, err := s.lock(ctx, ProductAndStockLock)
	if err != nil {
		return 0, false, err
	}
	defer release()

	stocks, _, err := s.loadStocks(ctx)
	if err != nil {
		return 0, false, err
	}
	i := stockIndex(stocks, productID)
	if i < 0 {
		return 0, false, nil
	}
	return stocks[i].Count, true, nil
}

// take subtracts count from stocks[i] and drops the entry once it is empty.
func take(stocks []StockEntry, i, count int) []StockEntry {
	stocks[i].Count -= count
	if stocks[i].Count == 0 {
		return append(stocks[:i], stocks[i+1:]...)
	}
	return stocks
}
