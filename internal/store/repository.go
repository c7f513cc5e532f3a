/**
 * @description
 * This file defines the `Repository` interface, the contract for all data access
 * required by the store-service. Decoupling the business logic from the concrete
 * PostgreSQL implementation keeps the checkout engine testable against in-memory
 * fakes while the production path runs on real transactions.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For entity identifiers.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/streamhub/store-service/internal/domain"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrUserBlocked         = errors.New("user is blocked")
	ErrItemNotFound        = errors.New("catalog item not found")
	ErrItemInactive        = errors.New("catalog item is not active")
	ErrAccessDenied        = errors.New("access to exclusive item denied")
	ErrInsufficientCredit  = errors.New("insufficient credit")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrOrderNotFound       = errors.New("order not found")
	ErrOrderNotRenewable   = errors.New("order is not renewable")
	ErrOrderNotCancelled   = errors.New("order is not cancelled")
	ErrOrderNotCancellable = errors.New("order cannot be cancelled")
	ErrCartLineNotFound    = errors.New("cart line not found")
	ErrUnitReserved        = errors.New("stock unit already reserved")
	ErrConflict            = errors.New("transaction conflict")
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Users and credit ledger
	FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	FindUserByUsername(ctx context.Context, username string) (*domain.User, error)
	// CreditUser atomically increments the balance and records the recharge row.
	// Returns the new balance.
	CreditUser(ctx context.Context, userID uuid.UUID, amount int64, note string) (int64, error)
	BlockUser(ctx context.Context, userID uuid.UUID, until *time.Time) error
	UnblockUser(ctx context.Context, userID uuid.UUID) error
	CreateWarning(ctx context.Context, warning *domain.Warning) error

	// Catalog
	ListCatalogItems(ctx context.Context, viewerID uuid.UUID) ([]domain.CatalogItem, error)
	FindCatalogItem(ctx context.Context, itemID uuid.UUID) (*domain.CatalogItem, error)
	CreateCatalogItem(ctx context.Context, item *domain.CatalogItem) error
	UpdateCatalogItem(ctx context.Context, item *domain.CatalogItem) error
	GrantExclusiveAccess(ctx context.Context, itemID, userID uuid.UUID) error
	RevokeExclusiveAccess(ctx context.Context, itemID, userID uuid.UUID) error
	HasExclusiveAccess(ctx context.Context, itemID, userID uuid.UUID) (bool, error)

	// Stock pool
	AddStockUnits(ctx context.Context, units []domain.StockUnit) error
	ListStockUnits(ctx context.Context, itemID uuid.UUID) ([]domain.StockUnit, error)
	// CountAvailableStock counts units that are available and not soft-held by
	// another user's unexpired reservation.
	CountAvailableStock(ctx context.Context, itemID uuid.UUID, kind domain.UnitKind, forUser uuid.UUID) (int, error)

	// Cart. Every mutation recomputes the cart total in the same transaction.
	GetCart(ctx context.Context, userID uuid.UUID) (*domain.Cart, []domain.CartLine, error)
	AddCartLine(ctx context.Context, userID uuid.UUID, line domain.CartLine, reservationTTL time.Duration) (*domain.Cart, error)
	UpdateCartLineQuantity(ctx context.Context, userID, lineID uuid.UUID, quantity int) (*domain.Cart, error)
	RemoveCartLine(ctx context.Context, userID, lineID uuid.UUID) (*domain.Cart, error)
	ClearCart(ctx context.Context, userID uuid.UUID) error

	// Reservations
	SweepExpiredReservations(ctx context.Context, now time.Time) (reservations int64, cartLines int64, err error)

	// Checkout and orders. These run as single all-or-nothing transactions.
	CheckoutAtomic(ctx context.Context, userID uuid.UUID, lines []domain.CheckoutLine, clearCart bool) ([]domain.Order, error)
	RenewOrderAtomic(ctx context.Context, orderID, userID uuid.UUID) (*domain.Order, error)
	RehabilitateOrderAtomic(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)
	CancelOrder(ctx context.Context, orderID uuid.UUID) error
	FindOrderByID(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)
	FindOrdersByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Order, error)

	// Back-office
	CreateExpense(ctx context.Context, expense *domain.Expense) error
	CreateBroadcast(ctx context.Context, broadcast *domain.Broadcast) error
	FinancialReport(ctx context.Context, from, to time.Time) (*domain.FinancialReport, error)
}
