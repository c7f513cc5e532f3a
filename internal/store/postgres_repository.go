/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface
 * for users, the credit ledger, the catalog, and back-office records. The
 * checkout, cart, stock, and reservation methods live in sibling files of this
 * package.
 *
 * @dependencies
 * - context, errors, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/streamhub/store-service/internal/domain"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// isSerializationFailure reports whether err is a transient conflict the caller
// may retry: serialization failure (40001) or deadlock detected (40P01).
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// mapTxError translates driver-level conflicts into ErrConflict so the API
// layer can signal a retryable failure.
func mapTxError(err error) error {
	if isSerializationFailure(err) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

const userColumns = `id, username, credits, total_spent, is_blocked, blocked_until, is_admin, created_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	err := row.Scan(
		&user.ID, &user.Username, &user.Credits, &user.TotalSpent,
		&user.IsBlocked, &user.BlockedUntil, &user.IsAdmin, &user.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindUserByID retrieves a user from the database by their ID.
func (r *PostgresRepository) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRow(ctx, query, userID))
}

// FindUserByUsername retrieves a user from the database by their username.
func (r *PostgresRepository) FindUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(btrim(username)) = lower(btrim($1))`
	return scanUser(r.db.QueryRow(ctx, query, username))
}

// CreditUser atomically increments a user's balance and records the recharge in
// the same transaction. Returns the new balance.
func (r *PostgresRepository) CreditUser(ctx context.Context, userID uuid.UUID, amount int64, note string) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var newBalance int64
	query := `
		UPDATE users
		SET credits = credits + $2
		WHERE id = $1
		RETURNING credits
	`
	if err := tx.QueryRow(ctx, query, userID, amount).Scan(&newBalance); err != nil {
		if err == pgx.ErrNoRows {
			return 0, ErrUserNotFound
		}
		return 0, err
	}

	insertQuery := `
		INSERT INTO recharges (id, user_id, amount, note, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`
	if _, err := tx.Exec(ctx, insertQuery, uuid.New(), userID, amount, note); err != nil {
		return 0, fmt.Errorf("failed to record recharge: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, mapTxError(err)
	}
	return newBalance, nil
}

// BlockUser marks a user blocked, optionally until a given time.
func (r *PostgresRepository) BlockUser(ctx context.Context, userID uuid.UUID, until *time.Time) error {
	query := `UPDATE users SET is_blocked = TRUE, blocked_until = $2 WHERE id = $1`
	result, err := r.db.Exec(ctx, query, userID, until)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UnblockUser clears a user's block flag and expiry.
func (r *PostgresRepository) UnblockUser(ctx context.Context, userID uuid.UUID) error {
	query := `UPDATE users SET is_blocked = FALSE, blocked_until = NULL WHERE id = $1`
	result, err := r.db.Exec(ctx, query, userID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// CreateWarning records an admin warning against a user.
func (r *PostgresRepository) CreateWarning(ctx context.Context, warning *domain.Warning) error {
	query := `
		INSERT INTO warnings (id, user_id, message, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING created_at
	`
	return r.db.QueryRow(ctx, query, warning.ID, warning.UserID, warning.Message).Scan(&warning.CreatedAt)
}

const catalogColumns = `id, name, description, price, price_per_profile, max_profiles,
	       sale_type, duration_days, is_exclusive, is_active, created_at, updated_at`

func scanCatalogItem(row pgx.Row) (*domain.CatalogItem, error) {
	var item domain.CatalogItem
	err := row.Scan(
		&item.ID, &item.Name, &item.Description, &item.Price, &item.PricePerProfile,
		&item.MaxProfiles, &item.SaleType, &item.DurationDays, &item.IsExclusive,
		&item.IsActive, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	return &item, nil
}

// ListCatalogItems returns active items visible to the viewer: all public items
// plus exclusive items the viewer has been granted.
func (r *PostgresRepository) ListCatalogItems(ctx context.Context, viewerID uuid.UUID) ([]domain.CatalogItem, error) {
	query := `
		SELECT ` + catalogColumns + `
		FROM catalog_items
		WHERE is_active = TRUE
		  AND (
			is_exclusive = FALSE
			OR EXISTS (
				SELECT 1 FROM exclusive_grants
				WHERE item_id = catalog_items.id AND user_id = $1
			)
		  )
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, viewerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.CatalogItem
	for rows.Next() {
		item, err := scanCatalogItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// FindCatalogItem retrieves a single catalog item by ID.
func (r *PostgresRepository) FindCatalogItem(ctx context.Context, itemID uuid.UUID) (*domain.CatalogItem, error) {
	query := `SELECT ` + catalogColumns + ` FROM catalog_items WHERE id = $1`
	return scanCatalogItem(r.db.QueryRow(ctx, query, itemID))
}

// CreateCatalogItem inserts a new listing.
func (r *PostgresRepository) CreateCatalogItem(ctx context.Context, item *domain.CatalogItem) error {
	query := `
		INSERT INTO catalog_items (
			id, name, description, price, price_per_profile, max_profiles,
			sale_type, duration_days, is_exclusive, is_active, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	return r.db.QueryRow(ctx, query,
		item.ID, item.Name, item.Description, item.Price, item.PricePerProfile,
		item.MaxProfiles, item.SaleType, item.DurationDays, item.IsExclusive, item.IsActive,
	).Scan(&item.CreatedAt, &item.UpdatedAt)
}

// UpdateCatalogItem edits a listing. Existing cart lines and orders keep their
// price snapshots; this only affects future adds.
func (r *PostgresRepository) UpdateCatalogItem(ctx context.Context, item *domain.CatalogItem) error {
	query := `
		UPDATE catalog_items
		SET name = $2, description = $3, price = $4, price_per_profile = $5,
		    max_profiles = $6, duration_days = $7, is_active = $8, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query,
		item.ID, item.Name, item.Description, item.Price, item.PricePerProfile,
		item.MaxProfiles, item.DurationDays, item.IsActive,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

// GrantExclusiveAccess adds a user to an exclusive item's allow-list. Granting
// twice is a no-op.
func (r *PostgresRepository) GrantExclusiveAccess(ctx context.Context, itemID, userID uuid.UUID) error {
	query := `
		INSERT INTO exclusive_grants (item_id, user_id, granted_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (item_id, user_id) DO NOTHING
	`
	_, err := r.db.Exec(ctx, query, itemID, userID)
	return err
}

// RevokeExclusiveAccess removes a user from an exclusive item's allow-list.
func (r *PostgresRepository) RevokeExclusiveAccess(ctx context.Context, itemID, userID uuid.UUID) error {
	query := `DELETE FROM exclusive_grants WHERE item_id = $1 AND user_id = $2`
	_, err := r.db.Exec(ctx, query, itemID, userID)
	return err
}

// HasExclusiveAccess reports whether a user is on an item's allow-list.
func (r *PostgresRepository) HasExclusiveAccess(ctx context.Context, itemID, userID uuid.UUID) (bool, error) {
	var granted bool
	query := `SELECT EXISTS (SELECT 1 FROM exclusive_grants WHERE item_id = $1 AND user_id = $2)`
	if err := r.db.QueryRow(ctx, query, itemID, userID).Scan(&granted); err != nil {
		return false, err
	}
	return granted, nil
}

// CreateExpense records an outgoing cost for the financial report.
func (r *PostgresRepository) CreateExpense(ctx context.Context, expense *domain.Expense) error {
	query := `
		INSERT INTO expenses (id, label, amount, spent_at, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING created_at
	`
	return r.db.QueryRow(ctx, query, expense.ID, expense.Label, expense.Amount, expense.SpentAt).Scan(&expense.CreatedAt)
}

// CreateBroadcast stores an admin announcement.
func (r *PostgresRepository) CreateBroadcast(ctx context.Context, broadcast *domain.Broadcast) error {
	query := `
		INSERT INTO broadcasts (id, title, body, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING created_at
	`
	return r.db.QueryRow(ctx, query, broadcast.ID, broadcast.Title, broadcast.Body).Scan(&broadcast.CreatedAt)
}

// FinancialReport totals recharges against expenses over [from, to).
func (r *PostgresRepository) FinancialReport(ctx context.Context, from, to time.Time) (*domain.FinancialReport, error) {
	report := &domain.FinancialReport{From: from, To: to}

	rechargeQuery := `
		SELECT COALESCE(SUM(amount), 0)
		FROM recharges
		WHERE created_at >= $1 AND created_at < $2
	`
	if err := r.db.QueryRow(ctx, rechargeQuery, from, to).Scan(&report.TotalRecharges); err != nil {
		return nil, err
	}

	expenseQuery := `
		SELECT COALESCE(SUM(amount), 0)
		FROM expenses
		WHERE spent_at >= $1 AND spent_at < $2
	`
	if err := r.db.QueryRow(ctx, expenseQuery, from, to).Scan(&report.TotalExpenses); err != nil {
		return nil, err
	}

	report.Net = report.TotalRecharges - report.TotalExpenses
	return report, nil
}
