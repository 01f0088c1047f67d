package market

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// InventoryRepo is the seller-side management surface. The checkout path
// never goes through here; it locks and decrements rows inside its own
// transaction.
type InventoryRepo struct{ DB *pgxpool.Pool }

func (r *InventoryRepo) ForSeller(ctx context.Context, sellerID int64) ([]InventoryEntry, error) {
	return r.list(ctx, `
		SELECT seller_id, product_id, price_cents, quantity_on_hand, updated_at
		FROM inventory WHERE seller_id = $1
		ORDER BY updated_at DESC, product_id`, sellerID)
}

// OffersForProduct lists every seller's offer of a product, cheapest first.
func (r *InventoryRepo) OffersForProduct(ctx context.Context, productID int64) ([]InventoryEntry, error) {
	return r.list(ctx, `
		SELECT seller_id, product_id, price_cents, quantity_on_hand, updated_at
		FROM inventory WHERE product_id = $1
		ORDER BY price_cents, seller_id`, productID)
}

func (r *InventoryRepo) list(ctx context.Context, sql string, arg any) ([]InventoryEntry, error) {
	rows, err := r.DB.Query(ctx, sql, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []InventoryEntry
	for rows.Next() {
		var e InventoryEntry
		if err := rows.Scan(&e.SellerID, &e.ProductID, &e.PriceCents, &e.QuantityOnHand, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Upsert creates or updates the seller's offer. Price and quantity must be
// non-negative; stock removed by checkouts cannot be resurrected here by
// accident because this write is absolute, not a delta.
func (r *InventoryRepo) Upsert(ctx context.Context, e InventoryEntry) error {
	if e.PriceCents < 0 {
		return fmt.Errorf("negative price %d", e.PriceCents)
	}
	if e.QuantityOnHand < 0 {
		return fmt.Errorf("negative quantity %d", e.QuantityOnHand)
	}
	_, err := r.DB.Exec(ctx, `
		INSERT INTO inventory(seller_id, product_id, price_cents, quantity_on_hand, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (seller_id, product_id)
		DO UPDATE SET price_cents = EXCLUDED.price_cents,
		              quantity_on_hand = EXCLUDED.quantity_on_hand,
		              updated_at = now()`,
		e.SellerID, e.ProductID, e.PriceCents, e.QuantityOnHand)
	return err
}
