package stock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pluteo/webshop/internal/catalog"
	"github.com/pluteo/webshop/internal/supplier"
)

func TestPlanUpdates(t *testing.T) {
	products := []catalog.Product{
		{ID: 1, SupplierSKU: "S0103120"},
		{ID: 2, SupplierSKU: "s0103015"}, // mixed case in catalog
		{ID: 3, SupplierSKU: "S0199999"}, // missing from feed
	}
	feed := []supplier.StockFeedItem{
		{SKU: "S0103120", Stocks: []struct {
			Quantity int `json:"quantity"`
		}{{Quantity: 3}, {Quantity: 4}}},
		{SKU: "S0103015", Stocks: []struct {
			Quantity int `json:"quantity"`
		}{{Quantity: 1}}},
		{SKU: "S0888888"}, // not in catalog, ignored
	}

	updates := PlanUpdates(products, feed)
	require.Len(t, updates, 3)

	byID := map[int64]int{}
	for _, u := range updates {
		byID[u.ProductID] = u.Quantity
	}
	assert.Equal(t, 7, byID[1])
	assert.Equal(t, 1, byID[2], "SKU matching must be case insensitive")
	assert.Equal(t, 0, byID[3], "products missing from the feed go out of stock")
}

func TestPlanUpdates_EmptyFeed(t *testing.T) {
	products := []catalog.Product{{ID: 1, SupplierSKU: "S0103120"}}
	updates := PlanUpdates(products, nil)
	require.Len(t, updates, 1)
	assert.Equal(t, 0, updates[0].Quantity)
}
