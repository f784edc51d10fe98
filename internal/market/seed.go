package market

import "github.com/shopspring/decimal"

func seedProducts() productCollection {
	return productCollection{
		NextProductID: 3,
		Products: []Product{
			{ID: 1, Name: "banana", Category: Grocery, Description: "Banana from Mexico", Price: decimal.RequireFromString("1.67")},
			{ID: 2, Name: "apple", Category: Grocery, Description: "Apple from China", Price: decimal.RequireFromString("2.67")},
			{ID: 3, Name: "Television", Category: Electronic, Description: `Sony 65"`, Price: decimal.RequireFromString("1600.59")},
		},
	}
}

func seedStocks() []StockEntry {
	return []StockEntry{
		{ProductID: 1, Count: 100},
		{ProductID: 2, Count: 200},
		{ProductID: 3, Count: 300},
	}
}

func emptyReceipts() receiptCollection {
	return receiptCollection{Receipts: []Receipt{}}
}
