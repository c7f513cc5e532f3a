package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/streamhub/store-service/internal/domain"
)

// AddStockUnits bulk-inserts fresh available units into an item's pool.
func (r *PostgresRepository) AddStockUnits(ctx context.Context, units []domain.StockUnit) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin stock transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO stock_units (id, item_id, unit_kind, email, password, profile_name, profile_pin, is_available, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, NOW())
	`
	for i := range units {
		unit := &units[i]
		if unit.ID == uuid.Nil {
			unit.ID = uuid.New()
		}
		if _, err := tx.Exec(ctx, query,
			unit.ID, unit.ItemID, unit.Kind, unit.Email, unit.Password,
			unit.ProfileName, unit.ProfilePIN,
		); err != nil {
			return fmt.Errorf("failed to insert stock unit: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return mapTxError(err)
	}
	return nil
}

// ListStockUnits returns an item's whole pool, available units first.
func (r *PostgresRepository) ListStockUnits(ctx context.Context, itemID uuid.UUID) ([]domain.StockUnit, error) {
	query := `
		SELECT id, item_id, unit_kind, email, password, profile_name, profile_pin,
		       is_available, sold_to, sold_at, created_at
		FROM stock_units
		WHERE item_id = $1
		ORDER BY is_available DESC, created_at
	`
	rows, err := r.db.Query(ctx, query, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var units []domain.StockUnit
	for rows.Next() {
		var unit domain.StockUnit
		err := rows.Scan(
			&unit.ID, &unit.ItemID, &unit.Kind, &unit.Email, &unit.Password,
			&unit.ProfileName, &unit.ProfilePIN, &unit.IsAvailable,
			&unit.SoldTo, &unit.SoldAt, &unit.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		units = append(units, unit)
	}
	return units, rows.Err()
}

// CountAvailableStock counts units sellable to forUser: available and not
// soft-held by another user's unexpired reservation. This is the soft UX
// number; checkout re-checks under row locks.
func (r *PostgresRepository) CountAvailableStock(ctx context.Context, itemID uuid.UUID, kind domain.UnitKind, forUser uuid.UUID) (int, error) {
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
	if err := r.db.QueryRow(ctx, query, itemID, kind, forUser).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
