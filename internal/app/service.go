/**
 * @description
 * This file contains the core business logic for the store-service. The `Service`
 * struct orchestrates checkout, renewal, and rehabilitation, coordinating between
 * the database repository and the event producer.
 *
 * Key features:
 * - Checkout consumes the caller's cart (or ad-hoc lines) and hands the whole
 *   batch to one atomic repository transaction; there are no partial effects.
 * - Events are published only after the transaction has committed, and a
 *   publish failure never rolls back a committed sale.
 * - An optional Redis-backed rate limiter throttles checkout attempts per user.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/rabbitmq: For event publication.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/streamhub/store-service/internal/domain"
	"github.com/streamhub/store-service/internal/store"
	"github.com/streamhub/store-service/pkg/rabbitmq"
)

var (
	ErrEmptyCheckout      = errors.New("checkout requires at least one line")
	ErrInvalidQuantity    = errors.New("quantity must be positive")
	ErrInvalidSaleType    = errors.New("invalid sale type")
	ErrSaleTypeMismatch   = errors.New("sale type does not match the catalog item")
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrCheckoutRateLimit  = errors.New("too many checkout attempts")
	ErrTooManyProfiles    = errors.New("requested profiles exceed the item limit")
	ErrInvalidStockUnit   = errors.New("stock unit requires credentials")
	ErrInvalidCatalogItem = errors.New("catalog item is missing required fields")
)

// RateLimiter throttles a subject within a scope using a fixed window.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Service provides the core business logic for the storefront and back-office.
type Service struct {
	repo           store.Repository
	events         rabbitmq.Publisher
	reservationTTL time.Duration

	rateLimiter          RateLimiter
	checkoutRateLimit    int
	checkoutRateInterval time.Duration
}

// NewService creates a new store service instance.
func NewService(repo store.Repository, events rabbitmq.Publisher, reservationTTL time.Duration) *Service {
	if events == nil {
		events = &rabbitmq.EventProducerFallback{}
	}
	if reservationTTL <= 0 {
		reservationTTL = 15 * time.Minute
	}
	return &Service{
		repo:                 repo,
		events:               events,
		reservationTTL:       reservationTTL,
		checkoutRateInterval: time.Minute,
	}
}

// SetCheckoutRateLimiter enables per-user checkout throttling.
func (s *Service) SetCheckoutRateLimiter(limiter RateLimiter, perMinute int) {
	s.rateLimiter = limiter
	s.checkoutRateLimit = perMinute
}

// Checkout purchases the given lines for the user, or the user's whole cart
// when lines is empty. The repository executes the batch as one all-or-nothing
// transaction; this layer validates input, resolves ad-hoc prices against the
// catalog, applies rate limiting, and emits events after commit.
func (s *Service) Checkout(ctx context.Context, userID uuid.UUID, lines []domain.CheckoutLine) ([]domain.Order, error) {
	if err := s.consumeCheckoutBudget(ctx, userID); err != nil {
		return nil, err
	}

	clearCart := false
	if len(lines) == 0 {
		_, cartLines, err := s.repo.GetCart(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to load cart: %w", err)
		}
		for _, cl := range cartLines {
			lines = append(lines, domain.CheckoutLine{
				Ref:         cl.Ref,
				Quantity:    cl.Quantity,
				SaleType:    cl.SaleType,
				PriceAtTime: cl.PriceAtTime,
			})
		}
		clearCart = true
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCheckout
	}
	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: got %d", ErrInvalidQuantity, line.Quantity)
		}
		if !line.SaleType.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSaleType, line.SaleType)
		}
	}
	if !clearCart {
		// Ad-hoc lines only name items; the price always comes from the
		// catalog, never the request. Cart lines carry the snapshot taken
		// server-side at add time.
		for i := range lines {
			line := &lines[i]
			item, err := s.repo.FindCatalogItem(ctx, line.Ref.ItemID)
			if err != nil {
				return nil, err
			}
			if line.SaleType != item.SaleType {
				return nil, fmt.Errorf("%w: item %s sells as %s", ErrSaleTypeMismatch, item.Name, item.SaleType)
			}
			line.Ref = item.Ref()
			line.PriceAtTime = item.UnitPrice(line.SaleType)
		}
	}

	orders, err := s.repo.CheckoutAtomic(ctx, userID, lines, clearCart)
	if err != nil {
		return nil, err
	}

	log.Printf("level=info component=checkout msg=\"checkout committed\" user_id=%s orders=%d", userID, len(orders))
	s.publishOrderEvents(ctx, orders)
	s.publishStockEvents(ctx, orders)
	return orders, nil
}

// Renew re-debits the order's snapshot price and extends a COMPLETED order by
// one duration unit.
func (s *Service) Renew(ctx context.Context, userID, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.repo.RenewOrderAtomic(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}

	log.Printf("level=info component=checkout msg=\"order renewed\" order_id=%s renewal_count=%d", order.ID, order.RenewalCount)
	if err := s.events.PublishOrderUpdated(ctx, domain.OrderUpdatedEvent{
		OrderID: order.ID, UserID: order.UserID, Status: order.Status, Timestamp: time.Now(),
	}); err != nil {
		log.Printf("level=warn component=checkout msg=\"order event publish failed\" order_id=%s err=%v", order.ID, err)
	}
	return order, nil
}

// Rehabilitate re-creates a fresh available stock unit from a cancelled
// order's credential snapshot and marks the order REHABILITATED.
func (s *Service) Rehabilitate(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.repo.RehabilitateOrderAtomic(ctx, orderID)
	if err != nil {
		return nil, err
	}

	log.Printf("level=info component=checkout msg=\"order rehabilitated\" order_id=%s item_id=%s", order.ID, order.Ref.ItemID)
	s.publishOrderEvents(ctx, []domain.Order{*order})
	s.publishStockEvents(ctx, []domain.Order{*order})
	return order, nil
}

// CancelOrder marks an order CANCELLED and emits the status change.
func (s *Service) CancelOrder(ctx context.Context, orderID uuid.UUID) error {
	if err := s.repo.CancelOrder(ctx, orderID); err != nil {
		return err
	}
	order, err := s.repo.FindOrderByID(ctx, orderID)
	if err != nil {
		return err
	}
	s.publishOrderEvents(ctx, []domain.Order{*order})
	return nil
}

// GetOrders returns the user's orders, newest first.
func (s *Service) GetOrders(ctx context.Context, userID uuid.UUID) ([]domain.Order, error) {
	return s.repo.FindOrdersByUserID(ctx, userID)
}

// GetBalance returns the user's ledger state.
func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	return s.repo.FindUserByID(ctx, userID)
}

// ListCatalog returns the active items visible to the viewer.
func (s *Service) ListCatalog(ctx context.Context, viewerID uuid.UUID) ([]domain.CatalogItem, error) {
	return s.repo.ListCatalogItems(ctx, viewerID)
}

// GetCatalogItem returns an item plus its availability for the viewer.
// Exclusive items are hidden from users without a grant.
func (s *Service) GetCatalogItem(ctx context.Context, viewerID, itemID uuid.UUID) (*domain.CatalogItem, int, error) {
	item, err := s.repo.FindCatalogItem(ctx, itemID)
	if err != nil {
		return nil, 0, err
	}
	if item.IsExclusive {
		granted, err := s.repo.HasExclusiveAccess(ctx, itemID, viewerID)
		if err != nil {
			return nil, 0, err
		}
		if !granted {
			return nil, 0, fmt.Errorf("%w: %s", store.ErrAccessDenied, item.Name)
		}
	}
	available, err := s.repo.CountAvailableStock(ctx, itemID, domain.UnitKindForSale(item.SaleType), viewerID)
	if err != nil {
		return nil, 0, err
	}
	return item, available, nil
}

func (s *Service) consumeCheckoutBudget(ctx context.Context, userID uuid.UUID) error {
	if s.rateLimiter == nil || s.checkoutRateLimit <= 0 {
		return nil
	}
	count, retryAfter, err := s.rateLimiter.ConsumeRateLimit(ctx, "checkout", userID.String(), s.checkoutRateLimit, s.checkoutRateInterval)
	if err != nil {
		// Rate limiting is a guard, not a dependency; degrade open.
		log.Printf("level=warn component=checkout msg=\"rate limiter unavailable\" user_id=%s err=%v", userID, err)
		return nil
	}
	if count > s.checkoutRateLimit {
		return fmt.Errorf("%w: retry in %ds", ErrCheckoutRateLimit, retryAfter)
	}
	return nil
}

func (s *Service) publishOrderEvents(ctx context.Context, orders []domain.Order) {
	now := time.Now()
	for _, order := range orders {
		err := s.events.PublishOrderUpdated(ctx, domain.OrderUpdatedEvent{
			OrderID: order.ID, UserID: order.UserID, Status: order.Status, Timestamp: now,
		})
		if err != nil {
			log.Printf("level=warn component=checkout msg=\"order event publish failed\" order_id=%s err=%v", order.ID, err)
		}
	}
}

// publishStockEvents emits one stock.updated per distinct item touched by the
// given orders, with a fresh availability count.
func (s *Service) publishStockEvents(ctx context.Context, orders []domain.Order) {
	now := time.Now()
	seen := make(map[uuid.UUID]bool)
	for _, order := range orders {
		if seen[order.Ref.ItemID] {
			continue
		}
		seen[order.Ref.ItemID] = true

		available, err := s.repo.CountAvailableStock(ctx, order.Ref.ItemID, domain.UnitKindForSale(order.SaleType), uuid.Nil)
		if err != nil {
			log.Printf("level=warn component=checkout msg=\"availability count failed\" item_id=%s err=%v", order.Ref.ItemID, err)
			continue
		}
		err = s.events.PublishStockUpdated(ctx, domain.StockUpdatedEvent{
			ItemID: order.Ref.ItemID, Available: available, Timestamp: now,
		})
		if err != nil {
			log.Printf("level=warn component=checkout msg=\"stock event publish failed\" item_id=%s err=%v", order.Ref.ItemID, err)
		}
	}
}
