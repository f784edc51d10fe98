package market

import (
	"context"
	"fmt"
	"strings"
)

// AddProduct assigns the next product id and appends p to the catalog. An
// empty description defaults to the name. p itself is not modified.
func (s *Store) AddProduct(ctx context.Context, p *Product) (created Product, err error) {
	defer func() { s.metrics.observe("add_product", err) }()

	if p == nil {
		return Product{}, fmt.Errorf("%w: product is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(p.Name) == "" {
		return Product{}, fmt.Errorf("%w: product name is required", ErrInvalidArgument)
	}
	if p.Price.IsNegative() {
		return Product{}, fmt.Errorf("%w: price %s is negative", ErrInvalidArgument, p.Price)
	}

	release, err := s.lock(ctx, ProductAndStockLock)
	if err != nil {
		return Product{}, err
	}
	defer release()

	pc, err := s.loadProducts(ctx)
	if err != nil {
		return Product{}, err
	}

	pc.NextProductID++
	created = *p
	created.ID = pc.NextProductID
	if strings.TrimSpace(created.Description) == "" {
		created.Description = created.Name
	}
	pc.Products = append(pc.Products, created)

	if err := s.save(ctx, productsCollection, pc); err != nil {
		return Product{}, err
	}
	return created, nil
}

func (s *Store) FindProduct(ctx context.Context, id int) (p Product, found bool, err error) {
	defer func() { s.metrics.observe("find_product", err) }()

	release, err := s.lock(ctx, ProductAndStockLock)
	if err != nil {
		return Product{}, false, err
	}
	defer release()

	return s.findProduct(ctx, id)
}

// findProduct requires ProductAndStockLock.
func (s *Store) findProduct(ctx context.Context, id int) (Product, bool, error) {
	pc, err := s.loadProducts(ctx)
	if err != nil {
		return Product{}, false, err
	}
	i := pc.index(id)
	if i < 0 {
		return Product{}, false, nil
	}
	return pc.Products[i], true, nil
}

// RemoveProduct deletes a product that has no stock entry.
func (s *Store) RemoveProduct(ctx context.Context, id int) (err error) {
	defer func() { s.metrics.observe("remove_product", err) }()

	release, err := s.lock(ctx, ProductAndStockLock)
	if err != nil {
		return err
	}
	defer release()

	pc, stocks, err := s.loadCatalog(ctx)
	if err != nil {
		return err
	}

	i := pc.index(id)
	if i < 0 {
		return fmt.Errorf("%w: product %d does not exist", ErrNotFound, id)
	}
	if stockIndex(stocks, id) >= 0 {
		return fmt.Errorf("%w: cannot remove product %d which is still in stock", ErrConflict, id)
	}

	pc.Products = append(pc.Products[:i], pc.Products[i+1:]...)
	return s.save(ctx, productsCollection, pc)
}
