package market

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"
)

// Checkout validates every requested line against the catalog and stock,
// then decrements stock and appends a receipt. Nothing is written unless all
// lines pass. Lines naming the same product are merged first.
//
// ProductAndStockLock is held throughout; ReceiptsLock is taken only after
// validation and released first.
func (s *Store) Checkout(ctx context.Context, lines []RequestLine) (receipt Receipt, err error) {
	defer func() { s.metrics.observe("checkout", err) }()

	wanted, err := mergeLines(lines)
	if err != nil {
		return Receipt{}, err
	}

	release, err := s.lock(ctx, ProductAndStockLock)
	if err != nil {
		return Receipt{}, err
	}
	defer release()

	pc, stocks, err := s.loadCatalog(ctx)
	if err != nil {
		return Receipt{}, err
	}

	if missing := missingProducts(pc, wanted); len(missing) > 0 {
		return Receipt{}, fmt.Errorf("%w: some products do not exist: %v", ErrConflict, missing)
	}
	if short := shortProducts(stocks, wanted); len(short) > 0 {
		return Receipt{}, fmt.Errorf("%w: some products are out of stock or not enough: %v", ErrConflict, short)
	}

	receipt = Receipt{
		TransactionTime: s.now(),
		Lines:           make([]ShoppingLine, 0, len(wanted)),
	}
	for _, w := range wanted {
		stocks = take(stocks, stockIndex(stocks, w.ProductID), w.Count)

		p := pc.Products[pc.index(w.ProductID)]
		receipt.Lines = append(receipt.Lines, ShoppingLine{
			ProductID:   p.ID,
			ProductName: p.Name,
			Price:       p.Price,
			Count:       w.Count,
		})
	}

	releaseReceipts, err := s.lock(ctx, ReceiptsLock)
	if err != nil {
		return Receipt{}, err
	}
	defer releaseReceipts()

	rc, err := s.loadReceipts(ctx)
	if err != nil {
		return Receipt{}, err
	}
	rc.NextReceiptID++
	receipt.ID = rc.NextReceiptID
	rc.Receipts = append(rc.Receipts, receipt)

	// A crash between these two writes leaves a receipt whose stock was not
	// yet decremented on disk.
	if err := s.save(ctx, receiptsCollection, rc); err != nil {
		return Receipt{}, err
	}
	if err := s.saveStocks(ctx, stocks); err != nil {
		return Receipt{}, err
	}

	s.metrics.checkout(len(receipt.Lines))
	s.log.Info("checkout committed",
		zap.Int("receipt_id", receipt.ID),
		zap.Int("lines", len(receipt.Lines)),
		zap.String("total", receipt.Total().StringFixed(2)),
	)
	return receipt, nil
}

func mergeLines(lines []RequestLine) ([]RequestLine, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: there is nothing to check out", ErrInvalidArgument)
	}

	out := make([]RequestLine, 0, len(lines))
	pos := make(map[int]int, len(lines))
	for _, l := range lines {
		if l.Count <= 0 {
			return nil, fmt.Errorf("%w: product %d requested with count %d", ErrInvalidArgument, l.ProductID, l.Count)
		}
		if i, ok := pos[l.ProductID]; ok {
			if l.Count > math.MaxInt-out[i].Count {
				return nil, fmt.Errorf("%w: product %d requested in a total exceeding %d", ErrInvalidArgument, l.ProductID, math.MaxInt)
			}
			out[i].Count += l.Count
			continue
		}
		pos[l.ProductID] = len(out)
		out = append(out, l)
	}
	return out, nil
}

func missingProducts(pc productCollection, wanted []RequestLine) []int {
	var ids []int
	for _, w := range wanted {
		if pc.index(w.ProductID) < 0 {
			ids = append(ids, w.ProductID)
		}
	}
	sort.Ints(ids)
	return ids
}

func shortProducts(stocks []StockEntry, wanted []RequestLine) []int {
	var ids []int
	for _, w := range wanted {
		if i := stockIndex(stocks, w.ProductID); i < 0 || stocks[i].Count < w.Count {
			ids = append(ids, w.ProductID)
		}
	}
	sort.Ints(ids)
	return ids
}
