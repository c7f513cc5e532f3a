/**
 * @description
 * This file implements the order engine's atomic state transitions: checkout,
 * renewal, rehabilitation, and cancellation. Each runs as one PostgreSQL
 * transaction so that the two load-bearing invariants hold under concurrency:
 * credits never go negative (conditional debit, zero rows affected is the
 * business failure) and a stock unit is sold at most once (FOR UPDATE SKIP
 * LOCKED allocation flips availability in the same transaction that creates the
 * order).
 *
 * @dependencies
 * - context, fmt, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
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

const orderColumns = `id, user_id, item_id, is_exclusive, stock_unit_id, item_name, email, password,
	       profile_name, profile_pin, quantity, sale_type, total_price, status,
	       expires_at, renewal_count, created_at, updated_at`

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var order domain.Order
	err := row.Scan(
		&order.ID, &order.UserID, &order.Ref.ItemID, &order.Ref.Exclusive, &order.StockUnitID,
		&order.ItemName, &order.Email, &order.Password, &order.ProfileName, &order.ProfilePIN,
		&order.Quantity, &order.SaleType, &order.TotalPrice, &order.Status,
		&order.ExpiresAt, &order.RenewalCount, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// CheckoutAtomic executes the whole checkout as one transaction: verify the
// user, debit the total, allocate and retire stock per line, create one order
// per allocated unit, and optionally clear the cart. Any failure rolls back
// every effect.
func (r *PostgresRepository) CheckoutAtomic(ctx context.Context, userID uuid.UUID, lines []domain.CheckoutLine, clearCart bool) ([]domain.Order, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin checkout transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// 1. Lock the user row for the duration of the checkout.
	var user domain.User
	userQuery := `
		SELECT id, is_blocked, blocked_until, credits
		FROM users
		WHERE id = $1
		FOR UPDATE
	`
	err = tx.QueryRow(ctx, userQuery, userID).Scan(&user.ID, &user.IsBlocked, &user.BlockedUntil, &user.Credits)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, mapTxError(fmt.Errorf("failed to lock user row: %w", err))
	}
	if user.Blocked(time.Now()) {
		return nil, ErrUserBlocked
	}

	// 2-4. Debit the full total and bump total_spent in one conditional write.
	var total int64
	for _, line := range lines {
		total += line.Total()
	}
	debitQuery := `
		UPDATE users
		SET credits = credits - $2, total_spent = total_spent + $2
		WHERE id = $1 AND credits >= $2
	`
	debitResult, err := tx.Exec(ctx, debitQuery, userID, total)
	if err != nil {
		return nil, mapTxError(fmt.Errorf("failed to debit credits: %w", err))
	}
	if debitResult.RowsAffected() == 0 {
		return nil, ErrInsufficientCredit
	}

	// 5. Allocate stock and create orders line by line, in line order.
	var orders []domain.Order
	var allocated []uuid.UUID
	for _, line := range lines {
		item, err := findCatalogItemTx(ctx, tx, line.Ref.ItemID)
		if err != nil {
			return nil, mapTxError(err)
		}
		if !item.IsActive {
			return nil, fmt.Errorf("%w: %s", ErrItemInactive, item.Name)
		}
		if item.IsExclusive {
			var granted bool
			grantQuery := `SELECT EXISTS (SELECT 1 FROM exclusive_grants WHERE item_id = $1 AND user_id = $2)`
			if err := tx.QueryRow(ctx, grantQuery, item.ID, userID).Scan(&granted); err != nil {
				return nil, mapTxError(err)
			}
			if !granted {
				return nil, fmt.Errorf("%w: %s", ErrAccessDenied, item.Name)
			}
		}

		kind := domain.UnitKindForSale(line.SaleType)
		units, err := allocateStockTx(ctx, tx, item.ID, kind, line.Quantity)
		if err != nil {
			return nil, mapTxError(err)
		}
		if len(units) < line.Quantity {
			return nil, fmt.Errorf("%w: %s has %d of %d requested units", ErrInsufficientStock, item.Name, len(units), line.Quantity)
		}

		now := time.Now()
		expiresAt := now.Add(time.Duration(item.DurationDays) * 24 * time.Hour)
		for _, unit := range units {
			allocated = append(allocated, unit.ID)

			markQuery := `
				UPDATE stock_units
				SET is_available = FALSE, sold_to = $2, sold_at = NOW()
				WHERE id = $1 AND is_available = TRUE
			`
			markResult, err := tx.Exec(ctx, markQuery, unit.ID, userID)
			if err != nil {
				return nil, mapTxError(fmt.Errorf("failed to mark stock unit sold: %w", err))
			}
			if markResult.RowsAffected() == 0 {
				// The FOR UPDATE lock makes this unreachable; treat it as a conflict.
				return nil, fmt.Errorf("%w: stock unit %s concurrently sold", ErrConflict, unit.ID)
			}

			order := domain.Order{
				ID:          uuid.New(),
				UserID:      userID,
				Ref:         domain.CatalogRef{ItemID: item.ID, Exclusive: item.IsExclusive},
				StockUnitID: &unit.ID,
				ItemName:    item.Name,
				Email:       unit.Email,
				Password:    unit.Password,
				ProfileName: unit.ProfileName,
				ProfilePIN:  unit.ProfilePIN,
				Quantity:    1,
				SaleType:    line.SaleType,
				TotalPrice:  line.PriceAtTime,
				Status:      domain.OrderStatusCompleted,
				ExpiresAt:   expiresAt,
			}
			insertQuery := `
				INSERT INTO orders (
					id, user_id, item_id, is_exclusive, stock_unit_id, item_name, email, password,
					profile_name, profile_pin, quantity, sale_type, total_price, status,
					expires_at, renewal_count, created_at, updated_at
				)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, 0, NOW(), NOW())
				RETURNING created_at, updated_at
			`
			err = tx.QueryRow(ctx, insertQuery,
				order.ID, order.UserID, order.Ref.ItemID, order.Ref.Exclusive, order.StockUnitID,
				order.ItemName, order.Email, order.Password, order.ProfileName, order.ProfilePIN,
				order.Quantity, order.SaleType, order.TotalPrice, order.Status, order.ExpiresAt,
			).Scan(&order.CreatedAt, &order.UpdatedAt)
			if err != nil {
				return nil, mapTxError(fmt.Errorf("failed to create order: %w", err))
			}
			orders = append(orders, order)
		}
	}

	// Release this buyer's soft holds on the units they just purchased.
	if len(allocated) > 0 {
		releaseQuery := `DELETE FROM stock_reservations WHERE user_id = $1 AND stock_unit_id = ANY($2)`
		if _, err := tx.Exec(ctx, releaseQuery, userID, allocated); err != nil {
			return nil, mapTxError(fmt.Errorf("failed to release reservations: %w", err))
		}
	}

	// 6. Empty the cart inside the same transaction.
	if clearCart {
		if err := clearCartTx(ctx, tx, userID); err != nil {
			return nil, mapTxError(err)
		}
	}

	// 7. Commit. Event publication happens outside, in the service layer.
	if err := tx.Commit(ctx); err != nil {
		return nil, mapTxError(err)
	}
	return orders, nil
}

// findCatalogItemTx loads an item inside the checkout transaction.
func findCatalogItemTx(ctx context.Context, tx pgx.Tx, itemID uuid.UUID) (*domain.CatalogItem, error) {
	query := `SELECT ` + catalogColumns + ` FROM catalog_items WHERE id = $1`
	return scanCatalogItem(tx.QueryRow(ctx, query, itemID))
}

// allocateStockTx selects up to count available units for an item and kind,
// locking the selected rows. SKIP LOCKED keeps concurrent checkouts on the same
// pool from blocking on (or double-claiming) each other's rows.
func allocateStockTx(ctx context.Context, tx pgx.Tx, itemID uuid.UUID, kind domain.UnitKind, count int) ([]domain.StockUnit, error) {
	query := `
		SELECT id, email, password, profile_name, profile_pin
		FROM stock_units
		WHERE item_id = $1 AND unit_kind = $2 AND is_available = TRUE
		ORDER BY created_at
		LIMIT $3
		FOR UPDATE SKIP LOCKED
	`
	rows, err := tx.Query(ctx, query, itemID, kind, count)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate stock units: %w", err)
	}
	defer rows.Close()

	var units []domain.StockUnit
	for rows.Next() {
		unit := domain.StockUnit{ItemID: itemID, Kind: kind}
		if err := rows.Scan(&unit.ID, &unit.Email, &unit.Password, &unit.ProfileName, &unit.ProfilePIN); err != nil {
			return nil, err
		}
		units = append(units, unit)
	}
	return units, rows.Err()
}

// RenewOrderAtomic re-debits the order's snapshot price and extends a
// COMPLETED order by one duration unit. Orders bind one unit each, so the
// snapshot is the per-unit price; later catalog edits never change what a
// renewal costs. The debit uses the same conditional write as checkout, so a
// failed renewal leaves the order untouched.
func (r *PostgresRepository) RenewOrderAtomic(ctx context.Context, orderID, userID uuid.UUID) (*domain.Order, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin renewal transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	lockQuery := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 AND user_id = $2 FOR UPDATE`
	order, err := scanOrder(tx.QueryRow(ctx, lockQuery, orderID, userID))
	if err != nil {
		return nil, mapTxError(err)
	}
	if order.Status != domain.OrderStatusCompleted {
		return nil, fmt.Errorf("%w: status is %s", ErrOrderNotRenewable, order.Status)
	}

	// The item is only needed for its duration; the price is the order's own.
	item, err := findCatalogItemTx(ctx, tx, order.Ref.ItemID)
	if err != nil {
		return nil, mapTxError(err)
	}
	price := order.TotalPrice

	debitQuery := `
		UPDATE users
		SET credits = credits - $2, total_spent = total_spent + $2
		WHERE id = $1 AND credits >= $2
	`
	debitResult, err := tx.Exec(ctx, debitQuery, userID, price)
	if err != nil {
		return nil, mapTxError(fmt.Errorf("failed to debit renewal: %w", err))
	}
	if debitResult.RowsAffected() == 0 {
		return nil, ErrInsufficientCredit
	}

	// An expired order renews from now; a live one extends from its current expiry.
	extendQuery := `
		UPDATE orders
		SET expires_at = GREATEST(expires_at, NOW()) + ($2 * INTERVAL '1 day'),
		    renewal_count = renewal_count + 1,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING expires_at, renewal_count, updated_at
	`
	err = tx.QueryRow(ctx, extendQuery, orderID, item.DurationDays).Scan(&order.ExpiresAt, &order.RenewalCount, &order.UpdatedAt)
	if err != nil {
		return nil, mapTxError(fmt.Errorf("failed to extend order: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, mapTxError(err)
	}
	return order, nil
}

// RehabilitateOrderAtomic re-creates a fresh available stock unit from a
// cancelled order's credential snapshot and flips the order to REHABILITATED.
// The original unit row does not need to exist.
func (r *PostgresRepository) RehabilitateOrderAtomic(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin rehabilitation transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	lockQuery := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`
	order, err := scanOrder(tx.QueryRow(ctx, lockQuery, orderID))
	if err != nil {
		return nil, mapTxError(err)
	}
	if order.Status != domain.OrderStatusCancelled {
		return nil, fmt.Errorf("%w: status is %s", ErrOrderNotCancelled, order.Status)
	}

	unitID := uuid.New()
	insertQuery := `
		INSERT INTO stock_units (id, item_id, unit_kind, email, password, profile_name, profile_pin, is_available, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, NOW())
	`
	_, err = tx.Exec(ctx, insertQuery,
		unitID, order.Ref.ItemID, domain.UnitKindForSale(order.SaleType),
		order.Email, order.Password, order.ProfileName, order.ProfilePIN,
	)
	if err != nil {
		return nil, mapTxError(fmt.Errorf("failed to re-create stock unit: %w", err))
	}

	statusQuery := `
		UPDATE orders
		SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	if err := tx.QueryRow(ctx, statusQuery, orderID, domain.OrderStatusRehabilitated).Scan(&order.UpdatedAt); err != nil {
		return nil, mapTxError(fmt.Errorf("failed to update order status: %w", err))
	}
	order.Status = domain.OrderStatusRehabilitated

	if err := tx.Commit(ctx); err != nil {
		return nil, mapTxError(err)
	}
	return order, nil
}

// CancelOrder marks an order CANCELLED. Already-cancelled and rehabilitated
// orders are left alone.
func (r *PostgresRepository) CancelOrder(ctx context.Context, orderID uuid.UUID) error {
	query := `
		UPDATE orders
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ($3, $4)
	`
	result, err := r.db.Exec(ctx, query, orderID,
		domain.OrderStatusCancelled, domain.OrderStatusCompleted, domain.OrderStatusPending)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		if _, err := r.FindOrderByID(ctx, orderID); err != nil {
			return err
		}
		return ErrOrderNotCancellable
	}
	return nil
}

// FindOrderByID retrieves a single order.
func (r *PostgresRepository) FindOrderByID(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return scanOrder(r.db.QueryRow(ctx, query, orderID))
}

// FindOrdersByUserID retrieves all orders for a user, newest first.
func (r *PostgresRepository) FindOrdersByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}
