package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SweepExpiredReservations deletes stale soft holds and the cart lines that
// referenced the swept (user, item) pairs, so an expired hold does not leave a
// cart implying availability that no longer exists. Safe to run twice on the
// same data.
func (r *PostgresRepository) SweepExpiredReservations(ctx context.Context, now time.Time) (int64, int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin sweep transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	deleteQuery := `
		WITH swept AS (
			DELETE FROM stock_reservations
			WHERE expires_at < $1
			RETURNING user_id, item_id
		),
		removed AS (
			DELETE FROM cart_lines cl
			USING carts c, swept s
			WHERE cl.cart_id = c.id AND c.user_id = s.user_id AND cl.item_id = s.item_id
			RETURNING cl.cart_id
		)
		SELECT (SELECT COUNT(*) FROM swept),
		       (SELECT COUNT(*) FROM removed),
		       (SELECT COALESCE(ARRAY_AGG(DISTINCT cart_id), '{}'::uuid[]) FROM removed)
	`
	var reservations, cartLines int64
	var affectedCarts []uuid.UUID
	if err := tx.QueryRow(ctx, deleteQuery, now).Scan(&reservations, &cartLines, &affectedCarts); err != nil {
		return 0, 0, mapTxError(fmt.Errorf("failed to sweep reservations: %w", err))
	}

	// Only carts that lost lines get their totals recomputed. This runs as a
	// second statement so the subquery sees the deletions above.
	if len(affectedCarts) > 0 {
		recompute := `
			UPDATE carts
			SET total_amount = COALESCE(
				(SELECT SUM(price_at_time * quantity) FROM cart_lines WHERE cart_id = carts.id), 0),
			    updated_at = NOW()
			WHERE id = ANY($1)
		`
		if _, err := tx.Exec(ctx, recompute, affectedCarts); err != nil {
			return 0, 0, mapTxError(fmt.Errorf("failed to recompute cart totals: %w", err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, mapTxError(err)
	}
	return reservations, cartLines, nil
}
