package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("product not found")

// Product is one catalog entry. SupplierSKU is the dropship supplier's
// reference for the item; products without one cannot be fulfilled.
type Product struct {
	ID             int64
	Name           string
	PriceCents     int64
	SalePercentage int
	SupplierSKU    string
	StockQuantity  int
	LastStockCheck time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DiscountedUnitCents applies the sale percentage, rounding down in the
// customer's favor. Amounts stay in integer minor units throughout.
func (p Product) DiscountedUnitCents() int64 {
	if p.SalePercentage <= 0 {
		return p.PriceCents
	}
	return p.PriceCents * int64(100-p.SalePercentage) / 100
}

type Store struct{ DB *pgxpool.Pool }

const productColumns = `id, name, price_cents, sale_percentage,
	COALESCE(supplier_sku, ''), stock_quantity, COALESCE(last_stock_check, 'epoch'), created_at, updated_at`

func (s *Store) GetProduct(ctx context.Context, id int64) (Product, error) {
	row := s.DB.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	return p, err
}

func (s *Store) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListFulfillable returns the products carrying a supplier SKU; the stock
// sync job only refreshes these.
func (s *Store) ListFulfillable(ctx context.Context) ([]Product, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+productColumns+` FROM products
		WHERE supplier_sku IS NOT NULL AND supplier_sku <> '' ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) SetStock(ctx context.Context, productID int64, quantity int) error {
	_, err := s.DB.Exec(ctx, `UPDATE products
		SET stock_quantity=$2, last_stock_check=now(), updated_at=now()
		WHERE id=$1`, productID, quantity)
	if err != nil {
		return fmt.Errorf("set stock for product %d: %w", productID, err)
	}
	return nil
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.PriceCents, &p.SalePercentage,
		&p.SupplierSKU, &p.StockQuantity, &p.LastStockCheck, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}
