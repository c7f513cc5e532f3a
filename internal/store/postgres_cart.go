/**
 * @description
 * Cart persistence. Every line mutation runs in a transaction that ends by
 * recomputing the cart's total from its remaining lines, so a read immediately
 * after a mutation never observes a stale total. Cart adds also place
 * time-boxed soft holds (stock reservations) on the units they stage, which
 * keeps one unit from being added to two carts at once; checkout does not
 * trust these holds.
 */

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/streamhub/store-service/internal/domain"
)

const cartLineColumns = `id, cart_id, item_id, is_exclusive, item_name, quantity, sale_type, price_at_time, created_at`

func scanCartLine(row pgx.Row) (*domain.CartLine, error) {
	var line domain.CartLine
	err := row.Scan(
		&line.ID, &line.CartID, &line.Ref.ItemID, &line.Ref.Exclusive, &line.ItemName,
		&line.Quantity, &line.SaleType, &line.PriceAtTime, &line.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrCartLineNotFound
		}
		return nil, err
	}
	return &line, nil
}

// ensureCartTx creates the user's cart row if it does not exist and returns its id.
func ensureCartTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (uuid.UUID, error) {
	var cartID uuid.UUID
	query := `
		INSERT INTO carts (id, user_id, total_amount, updated_at)
		VALUES ($1, $2, 0, NOW())
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING id
	`
	if err := tx.QueryRow(ctx, query, uuid.New(), userID).Scan(&cartID); err != nil {
		return uuid.Nil, fmt.Errorf("failed to ensure cart: %w", err)
	}
	return cartID, nil
}

// recomputeCartTotalTx rewrites the derived total from the surviving lines.
func recomputeCartTotalTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.Cart, error) {
	var cart domain.Cart
	query := `
		UPDATE carts
		SET total_amount = COALESCE(
			(SELECT SUM(price_at_time * quantity) FROM cart_lines WHERE cart_id = carts.id), 0),
		    updated_at = NOW()
		WHERE user_id = $1
		RETURNING id, user_id, total_amount, updated_at
	`
	err := tx.QueryRow(ctx, query, userID).Scan(&cart.ID, &cart.UserID, &cart.TotalAmount, &cart.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to recompute cart total: %w", err)
	}
	return &cart, nil
}

// availableForUserTx counts units that are sellable to this user right now:
// available and not soft-held by someone else's unexpired reservation.
func availableForUserTx(ctx context.Context, tx pgx.Tx, itemID uuid.UUID, kind domain.UnitKind, userID uuid.UUID) (int, error) {
	var count int
	query := `
		SELECT COUNT(*)
		FROM stock_units su
		WHERE su.item_id = $1 AND su.unit_kind = $2 AND su.is_available = TRUE
		  AND NOT EXISTS (
			SELECT 1 FROM stock_reservations sr
			WHERE sr.stock_unit_id = su.id AND sr.user_id <> $3 AND sr.expires_at > NOW()
		  )
	`
	if err := tx.QueryRow(ctx, query, itemID, kind, userID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// GetCart returns the user's cart and its lines, creating an empty cart on
// first read.
func (r *PostgresRepository) GetCart(ctx context.Context, userID uuid.UUID) (*domain.Cart, []domain.CartLine, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin cart transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := ensureCartTx(ctx, tx, userID); err != nil {
		return nil, nil, err
	}
	cart, err := recomputeCartTotalTx(ctx, tx, userID)
	if err != nil {
		return nil, nil, err
	}

	rows, err := tx.Query(ctx, `SELECT `+cartLineColumns+` FROM cart_lines WHERE cart_id = $1 ORDER BY created_at`, cart.ID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var lines []domain.CartLine
	for rows.Next() {
		line, err := scanCartLine(rows)
		if err != nil {
			return nil, nil, err
		}
		lines = append(lines, *line)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, mapTxError(err)
	}
	return cart, lines, nil
}

// AddCartLine stages a line, soft-validates availability, places reservations
// on the staged units, and recomputes the total, all in one transaction.
func (r *PostgresRepository) AddCartLine(ctx context.Context, userID uuid.UUID, line domain.CartLine, reservationTTL time.Duration) (*domain.Cart, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin cart transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	cartID, err := ensureCartTx(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	kind := domain.UnitKindForSale(line.SaleType)
	available, err := availableForUserTx(ctx, tx, line.Ref.ItemID, kind, userID)
	if err != nil {
		return nil, mapTxError(err)
	}
	if available < line.Quantity {
		return nil, fmt.Errorf("%w: %s has %d of %d requested units", ErrInsufficientStock, line.ItemName, available, line.Quantity)
	}

	insertQuery := `
		INSERT INTO cart_lines (id, cart_id, item_id, is_exclusive, item_name, quantity, sale_type, price_at_time, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	`
	_, err = tx.Exec(ctx, insertQuery,
		uuid.New(), cartID, line.Ref.ItemID, line.Ref.Exclusive, line.ItemName,
		line.Quantity, line.SaleType, line.PriceAtTime,
	)
	if err != nil {
		return nil, mapTxError(fmt.Errorf("failed to insert cart line: %w", err))
	}

	ttlSeconds := int(reservationTTL.Seconds())
	if ttlSeconds > 0 {
		reserveQuery := `
			INSERT INTO stock_reservations (id, user_id, item_id, stock_unit_id, expires_at, created_at)
			SELECT gen_random_uuid(), $1, su.item_id, su.id, NOW() + ($4 * INTERVAL '1 second'), NOW()
			FROM stock_units su
			WHERE su.item_id = $2 AND su.unit_kind = $3 AND su.is_available = TRUE
			  AND NOT EXISTS (
				SELECT 1 FROM stock_reservations sr
				WHERE sr.stock_unit_id = su.id AND sr.expires_at > NOW()
			  )
			ORDER BY su.created_at
			LIMIT $5
			ON CONFLICT (user_id, stock_unit_id) DO NOTHING
		`
		if _, err := tx.Exec(ctx, reserveQuery, userID, line.Ref.ItemID, kind, ttlSeconds, line.Quantity); err != nil {
			return nil, mapTxError(fmt.Errorf("failed to reserve stock units: %w", err))
		}
	}

	cart, err := recomputeCartTotalTx(ctx, tx, userID)
	if err != nil {
		return nil, mapTxError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, mapTxError(err)
	}
	return cart, nil
}

// UpdateCartLineQuantity changes a line's quantity after re-validating it
// against currently available stock, then recomputes the total.
func (r *PostgresRepository) UpdateCartLineQuantity(ctx context.Context, userID, lineID uuid.UUID, quantity int) (*domain.Cart, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin cart transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	lineQuery := `
		SELECT cl.item_id, cl.item_name, cl.sale_type
		FROM cart_lines cl
		JOIN carts c ON c.id = cl.cart_id
		WHERE cl.id = $1 AND c.user_id = $2
		FOR UPDATE OF cl
	`
	var itemID uuid.UUID
	var itemName string
	var saleType domain.SaleType
	if err := tx.QueryRow(ctx, lineQuery, lineID, userID).Scan(&itemID, &itemName, &saleType); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrCartLineNotFound
		}
		return nil, mapTxError(err)
	}

	available, err := availableForUserTx(ctx, tx, itemID, domain.UnitKindForSale(saleType), userID)
	if err != nil {
		return nil, mapTxError(err)
	}
	if available < quantity {
		return nil, fmt.Errorf("%w: %s has %d of %d requested units", ErrInsufficientStock, itemName, available, quantity)
	}

	if _, err := tx.Exec(ctx, `UPDATE cart_lines SET quantity = $2 WHERE id = $1`, lineID, quantity); err != nil {
		return nil, mapTxError(fmt.Errorf("failed to update cart line: %w", err))
	}

	cart, err := recomputeCartTotalTx(ctx, tx, userID)
	if err != nil {
		return nil, mapTxError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, mapTxError(err)
	}
	return cart, nil
}

// RemoveCartLine deletes a line, drops the user's soft holds on that item, and
// recomputes the total.
func (r *PostgresRepository) RemoveCartLine(ctx context.Context, userID, lineID uuid.UUID) (*domain.Cart, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin cart transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var itemID uuid.UUID
	deleteQuery := `
		DELETE FROM cart_lines cl
		USING carts c
		WHERE cl.id = $1 AND cl.cart_id = c.id AND c.user_id = $2
		RETURNING cl.item_id
	`
	if err := tx.QueryRow(ctx, deleteQuery, lineID, userID).Scan(&itemID); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrCartLineNotFound
		}
		return nil, mapTxError(err)
	}

	releaseQuery := `DELETE FROM stock_reservations WHERE user_id = $1 AND item_id = $2`
	if _, err := tx.Exec(ctx, releaseQuery, userID, itemID); err != nil {
		return nil, mapTxError(fmt.Errorf("failed to release reservations: %w", err))
	}

	cart, err := recomputeCartTotalTx(ctx, tx, userID)
	if err != nil {
		return nil, mapTxError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, mapTxError(err)
	}
	return cart, nil
}

// ClearCart removes all lines and reservations for a user and zeroes the total.
func (r *PostgresRepository) ClearCart(ctx context.Context, userID uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin cart transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := clearCartTx(ctx, tx, userID); err != nil {
		return mapTxError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return mapTxError(err)
	}
	return nil
}

// clearCartTx empties a user's cart inside an existing transaction; checkout
// calls this as its final step.
func clearCartTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error {
	deleteLines := `
		DELETE FROM cart_lines
		USING carts
		WHERE cart_lines.cart_id = carts.id AND carts.user_id = $1
	`
	if _, err := tx.Exec(ctx, deleteLines, userID); err != nil {
		return fmt.Errorf("failed to delete cart lines: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM stock_reservations WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete reservations: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE carts SET total_amount = 0, updated_at = NOW() WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to zero cart total: %w", err)
	}
	return nil
}
