package market

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Category string

const (
	Grocery    Category = "grocery"
	Electronic Category = "electronic"
	Clothing   Category = "clothing"
	Household  Category = "household"
	Other      Category = "other"
)

type Product struct {
	ID          int             `json:"id"`
	Name        string          `json:"name"`
	Category    Category        `json:"category"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
}

func (p Product) String() string {
	return fmt.Sprintf("Product Id = %d, Name = %s, Category = %s, Description = %s, Price = %s",
		p.ID, p.Name, p.Category, p.Description, p.Price.StringFixed(2))
}

// StockEntry is present only while Count > 0.
type StockEntry struct {
	ProductID int `json:"product_id"`
	Count     int `json:"count"`
}

type RequestLine struct {
	ProductID int `json:"product_id"`
	Count     int `json:"count"`
}

// ShoppingLine copies the product name and price at checkout time so later
// catalog changes never rewrite history.
type ShoppingLine struct {
	ProductID   int             `json:"product_id"`
	ProductName string          `json:"product_name"`
	Price       decimal.Decimal `json:"price"`
	Count       int             `json:"count"`
}

func (l ShoppingLine) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Count)))
}

type Receipt struct {
	ID              int            `json:"id"`
	TransactionTime time.Time      `json:"transaction_time"`
	Lines           []ShoppingLine `json:"lines"`
}

func (r Receipt) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range r.Lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

func (r Receipt) String() string {
	items := make([]string, 0, len(r.Lines))
	for _, l := range r.Lines {
		items = append(items, fmt.Sprintf("%s x %d @ %s", l.ProductName, l.Count, l.Price.StringFixed(2)))
	}
	return fmt.Sprintf("Receipt Id = %d, Time = %s, Items = [%s], Total = %s",
		r.ID, r.TransactionTime.Format(time.RFC3339), strings.Join(items, "; "), r.Total().StringFixed(2))
}

// InventoryItem is a product joined with its current stock count.
type InventoryItem struct {
	Product Product `json:"product"`
	Count   int     `json:"count"`
}

type productCollection struct {
	NextProductID int       `json:"next_product_id"`
	Products      []Product `json:"products"`
}

type receiptCollection struct {
	NextReceiptID int       `json:"next_receipt_id"`
	Receipts      []Receipt `json:"receipts"`
}

func (c productCollection) index(id int) int {
	for i, p := range c.Products {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func stockIndex(stocks []StockEntry, productID int) int {
	for i, s := range stocks {
		if s.ProductID == productID {
			return i
		}
	}
	return -1
}
