/**
 * @description
 * Back-office operations: inventory loading, catalog management, exclusive
 * grants, credit recharges, user discipline (warnings and blocks), order
 * cancellation and rehabilitation, broadcasts, and the financial report.
 * These are invoked through the internal-key-protected admin routes.
 *
 * @dependencies
 * - context, fmt, log, strings, time: Standard Go libraries.
 * - github.com/google/uuid: For identifiers.
 * - internal/domain, internal/store: For models and data access.
 */

package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/streamhub/store-service/internal/domain"
)

// AddStock bulk-loads credential units into an item's pool and emits a fresh
// availability count. Units are validated against the item's sale type before
// anything is written.
func (s *Service) AddStock(ctx context.Context, itemID uuid.UUID, units []domain.StockUnit) (int, error) {
	if len(units) == 0 {
		return 0, fmt.Errorf("%w: empty batch", ErrInvalidStockUnit)
	}
	item, err := s.repo.FindCatalogItem(ctx, itemID)
	if err != nil {
		return 0, err
	}
	kind := domain.UnitKindForSale(item.SaleType)
	for i := range units {
		unit := &units[i]
		unit.ItemID = itemID
		unit.Kind = kind
		if strings.TrimSpace(unit.Email) == "" || strings.TrimSpace(unit.Password) == "" {
			return 0, fmt.Errorf("%w: unit %d missing email or password", ErrInvalidStockUnit, i)
		}
		if kind == domain.UnitKindProfile && (unit.ProfileName == nil || strings.TrimSpace(*unit.ProfileName) == "") {
			return 0, fmt.Errorf("%w: unit %d missing profile name", ErrInvalidStockUnit, i)
		}
	}

	if err := s.repo.AddStockUnits(ctx, units); err != nil {
		return 0, err
	}

	available, countErr := s.repo.CountAvailableStock(ctx, itemID, kind, uuid.Nil)
	if countErr == nil {
		if err := s.events.PublishStockUpdated(ctx, domain.StockUpdatedEvent{
			ItemID: itemID, Available: available, Timestamp: time.Now(),
		}); err != nil {
			log.Printf("level=warn component=admin msg=\"stock event publish failed\" item_id=%s err=%v", itemID, err)
		}
	}
	log.Printf("level=info component=admin msg=\"stock loaded\" item_id=%s units=%d", itemID, len(units))
	return len(units), nil
}

// ListStock returns an item's full pool, available units first.
func (s *Service) ListStock(ctx context.Context, itemID uuid.UUID) ([]domain.StockUnit, error) {
	return s.repo.ListStockUnits(ctx, itemID)
}

// CreateItem adds a catalog listing.
func (s *Service) CreateItem(ctx context.Context, item *domain.CatalogItem) error {
	if err := validateCatalogItem(item); err != nil {
		return err
	}
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	return s.repo.CreateCatalogItem(ctx, item)
}

// UpdateItem edits a listing. Price changes never touch existing cart lines or
// orders; those carry their own snapshots.
func (s *Service) UpdateItem(ctx context.Context, item *domain.CatalogItem) error {
	if err := validateCatalogItem(item); err != nil {
		return err
	}
	return s.repo.UpdateCatalogItem(ctx, item)
}

func validateCatalogItem(item *domain.CatalogItem) error {
	if strings.TrimSpace(item.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidCatalogItem)
	}
	if !item.SaleType.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidSaleType, item.SaleType)
	}
	if item.Price <= 0 {
		return fmt.Errorf("%w: price must be positive", ErrInvalidCatalogItem)
	}
	if item.PricePerProfile != nil && *item.PricePerProfile <= 0 {
		return fmt.Errorf("%w: per-profile price must be positive", ErrInvalidCatalogItem)
	}
	if item.DurationDays <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrInvalidCatalogItem)
	}
	return nil
}

// GrantAccess allows a user to see and buy an exclusive item.
func (s *Service) GrantAccess(ctx context.Context, itemID, userID uuid.UUID) error {
	return s.repo.GrantExclusiveAccess(ctx, itemID, userID)
}

// RevokeAccess removes a user's exclusive grant. Existing orders are untouched.
func (s *Service) RevokeAccess(ctx context.Context, itemID, userID uuid.UUID) error {
	return s.repo.RevokeExclusiveAccess(ctx, itemID, userID)
}

// Recharge credits a user's ledger and records the top-up. Returns the new
// balance.
func (s *Service) Recharge(ctx context.Context, userID uuid.UUID, amount int64, note string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidAmount, amount)
	}
	balance, err := s.repo.CreditUser(ctx, userID, amount, note)
	if err != nil {
		return 0, err
	}
	log.Printf("level=info component=admin msg=\"user recharged\" user_id=%s amount=%d balance=%d", userID, amount, balance)
	return balance, nil
}

// WarnUser records a disciplinary note against a user.
func (s *Service) WarnUser(ctx context.Context, userID uuid.UUID, message string) error {
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("%w: empty warning message", ErrInvalidAmount)
	}
	warning := &domain.Warning{ID: uuid.New(), UserID: userID, Message: message}
	return s.repo.CreateWarning(ctx, warning)
}

// BlockUser blocks a user from checkout, permanently when until is nil.
func (s *Service) BlockUser(ctx context.Context, userID uuid.UUID, until *time.Time) error {
	if err := s.repo.BlockUser(ctx, userID, until); err != nil {
		return err
	}
	log.Printf("level=info component=admin msg=\"user blocked\" user_id=%s", userID)
	return nil
}

// UnblockUser lifts a block.
func (s *Service) UnblockUser(ctx context.Context, userID uuid.UUID) error {
	return s.repo.UnblockUser(ctx, userID)
}

// Broadcast stores an announcement and pushes it through the event stream.
func (s *Service) Broadcast(ctx context.Context, title, body string) (*domain.Broadcast, error) {
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("%w: empty broadcast title", ErrInvalidAmount)
	}
	broadcast := &domain.Broadcast{ID: uuid.New(), Title: title, Body: body}
	if err := s.repo.CreateBroadcast(ctx, broadcast); err != nil {
		return nil, err
	}
	if err := s.events.PublishBroadcastCreated(ctx, domain.BroadcastCreatedEvent{
		BroadcastID: broadcast.ID, Title: broadcast.Title, Body: broadcast.Body, Timestamp: time.Now(),
	}); err != nil {
		log.Printf("level=warn component=admin msg=\"broadcast event publish failed\" broadcast_id=%s err=%v", broadcast.ID, err)
	}
	return broadcast, nil
}

// RecordExpense stores an outgoing cost for the financial report.
func (s *Service) RecordExpense(ctx context.Context, label string, amount int64, spentAt time.Time) error {
	if amount <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidAmount, amount)
	}
	if spentAt.IsZero() {
		spentAt = time.Now()
	}
	expense := &domain.Expense{ID: uuid.New(), Label: label, Amount: amount, SpentAt: spentAt}
	return s.repo.CreateExpense(ctx, expense)
}

// Report aggregates recharges against expenses over [from, to).
func (s *Service) Report(ctx context.Context, from, to time.Time) (*domain.FinancialReport, error) {
	return s.repo.FinancialReport(ctx, from, to)
}
