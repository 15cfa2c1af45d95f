// Package stock refreshes catalog stock quantities from the supplier's
// stock feed. This is a plain polling job, deliberately separate from the
// fulfillment pipeline.
package stock

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pluteo/webshop/internal/catalog"
	"github.com/pluteo/webshop/internal/supplier"
)

// FeedFetcher is the slice of the supplier client the job needs.
type FeedFetcher interface {
	FetchStockFeed(ctx context.Context) ([]supplier.StockFeedItem, error)
}

type Syncer struct {
	Catalog *catalog.Store
	Feed    FeedFetcher
	Log     *zap.Logger
}

// Update is one planned stock write.
type Update struct {
	ProductID int64
	Quantity  int
}

// PlanUpdates matches the feed against the catalog's fulfillable products
// by supplier SKU, case-insensitively. Products missing from the feed go
// to zero: the supplier either discontinued them or has none to ship.
func PlanUpdates(products []catalog.Product, feed []supplier.StockFeedItem) []Update {
	bySKU := make(map[string]int, len(feed))
	for _, item := range feed {
		if item.SKU == "" {
			continue
		}
		bySKU[strings.ToUpper(item.SKU)] = item.TotalQuantity()
	}

	out := make([]Update, 0, len(products))
	for _, p := range products {
		qty, ok := bySKU[strings.ToUpper(p.SupplierSKU)]
		if !ok {
			qty = 0
		}
		out = append(out, Update{ProductID: p.ID, Quantity: qty})
	}
	return out
}

// RunOnce fetches the feed and applies one full refresh.
func (s *Syncer) RunOnce(ctx context.Context) error {
	products, err := s.Catalog.ListFulfillable(ctx)
	if err != nil {
		return fmt.Errorf("list fulfillable products: %w", err)
	}
	if len(products) == 0 {
		s.Log.Info("no products with supplier SKUs, nothing to sync")
		return nil
	}

	feed, err := s.Feed.FetchStockFeed(ctx)
	if err != nil {
		return fmt.Errorf("fetch stock feed: %w", err)
	}

	updates := PlanUpdates(products, feed)
	applied := 0
	for _, u := range updates {
		if err := s.Catalog.SetStock(ctx, u.ProductID, u.Quantity); err != nil {
			s.Log.Error("stock update failed", zap.Int64("product_id", u.ProductID), zap.Error(err))
			continue
		}
		applied++
	}
	s.Log.Info("stock sync complete",
		zap.Int("products", len(products)),
		zap.Int("feed_items", len(feed)),
		zap.Int("applied", applied))
	return nil
}

// Run loops RunOnce on the given interval until the context ends. The
// first pass runs immediately.
func (s *Syncer) Run(ctx context.Context, interval time.Duration) {
	if err := s.RunOnce(ctx); err != nil {
		s.Log.Error("stock sync failed", zap.Error(err))
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := s.RunOnce(ctx); err != nil {
				s.Log.Error("stock sync failed", zap.Error(err))
			}
		}
	}
}
