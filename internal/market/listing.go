package market

import (
	"context"
	"fmt"
	"strings"
)

const unknownProduct = "Product Info : Unknown"

// Inventory returns every catalog product with its stock count, 0 when the
// product has no entry.
func (s *Store) Inventory(ctx context.Context) (items []InventoryItem, err error) {
	defer func() { s.metrics.observe("inventory", err) }()

	release, err := s.lock(ctx, ProductAndStockLock)
	if err != nil {
		return nil, err
	}
	defer release()

	pc, stocks, err := s.loadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	return joinInventory(pc, stocks), nil
}

func (s *Store) ListProducts(ctx context.Context) (string, error) {
	items, err := s.Inventory(ctx)
	if err != nil {
		return "", err
	}

	lines := make([]string, 0, len(items))
	for _, it := range items {
		lines = append(lines, fmt.Sprintf("%s Stock = %d", it.Product, it.Count))
	}
	return strings.Join(lines, "\n"), nil
}

func (s *Store) ListStocks(ctx context.Context) (out string, err error) {
	defer func() { s.metrics.observe("list_stocks", err) }()

	release, err := s.lock(ctx, ProductAndStockLock)
	if err != nil {
		return "", err
	}
	defer release()

	pc, stocks, err := s.loadCatalog(ctx)
	if err != nil {
		return "", err
	}

	lines := make([]string, 0, len(stocks))
	for _, st := range stocks {
		info := unknownProduct
		if i := pc.index(st.ProductID); i >= 0 {
			info = pc.Products[i].String()
		}
		lines = append(lines, fmt.Sprintf("%s Stock = %d", info, st.Count))
	}
	return strings.Join(lines, "\n"), nil
}

// Receipts returns the ledger in append order.
func (s *Store) Receipts(ctx context.Context) (receipts []Receipt, err error) {
	defer func() { s.metrics.observe("receipts", err) }()

	release, err := s.lock(ctx, ReceiptsLock)
	if err != nil {
		return nil, err
	}
	defer release()

	rc, err := s.loadReceipts(ctx)
	if err != nil {
		return nil, err
	}
	return rc.Receipts, nil
}

func (s *Store) FindReceipt(ctx context.Context, id int) (Receipt, bool, error) {
	receipts, err := s.Receipts(ctx)
	if err != nil {
		return Receipt{}, false, err
	}
	for _, r := range receipts {
		if r.ID == id {
			return r, true, nil
		}
	}
	return Receipt{}, false, nil
}

func (s *Store) ListReceipts(ctx context.Context) (string, error) {
	receipts, err := s.Receipts(ctx)
	if err != nil {
		return "", err
	}

	lines := make([]string, 0, len(receipts))
	for _, r := range receipts {
		lines = append(lines, r.String())
	}
	return strings.Join(lines, "\n"), nil
}

func joinInventory(pc productCollection, stocks []StockEntry) []InventoryItem {
	items := make([]InventoryItem, 0, len(pc.Products))
	for _, p := range pc.Products {
		count := 0
		if i := stockIndex(stocks, p.ID); i >= 0 {
			count = stocks[i].Count
		}
		items = append(items, InventoryItem{Product: p, Count: count})
	}
	return items
}
