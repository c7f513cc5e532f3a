/**
 * @description
 * Cart operations for the store service. The cart is a staging area: adding a
 * line validates the item, snapshots its current price, and places soft
 * reservations on stock; nothing here debits credit or retires stock. The
 * authoritative checks happen again inside the checkout transaction.
 *
 * @dependencies
 * - context, fmt: Standard Go libraries.
 * - github.com/google/uuid: For identifiers.
 * - internal/domain, internal/store: For models and data access.
 */

package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/streamhub/store-service/internal/domain"
	"github.com/streamhub/store-service/internal/store"
)

// GetCart returns the user's cart and its lines, creating an empty cart on
// first read.
func (s *Service) GetCart(ctx context.Context, userID uuid.UUID) (*domain.Cart, []domain.CartLine, error) {
	return s.repo.GetCart(ctx, userID)
}

// AddToCart validates the requested item against the catalog, snapshots its
// current unit price into a new line, and stages it. The repository places
// TTL-bound soft holds on matching stock units inside the same transaction
// that recomputes the cart total.
func (s *Service) AddToCart(ctx context.Context, userID, itemID uuid.UUID, saleType domain.SaleType, quantity int) (*domain.Cart, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidQuantity, quantity)
	}
	if !saleType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSaleType, saleType)
	}

	item, err := s.repo.FindCatalogItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if !item.IsActive {
		return nil, fmt.Errorf("%w: %s", store.ErrItemInactive, item.Name)
	}
	if saleType != item.SaleType {
		return nil, fmt.Errorf("%w: item %s sells as %s", ErrSaleTypeMismatch, item.Name, item.SaleType)
	}
	if saleType == domain.SaleTypeProfiles && item.MaxProfiles > 0 && quantity > item.MaxProfiles {
		return nil, fmt.Errorf("%w: max %d", ErrTooManyProfiles, item.MaxProfiles)
	}
	if item.IsExclusive {
		granted, err := s.repo.HasExclusiveAccess(ctx, itemID, userID)
		if err != nil {
			return nil, err
		}
		if !granted {
			return nil, fmt.Errorf("%w: %s", store.ErrAccessDenied, item.Name)
		}
	}

	line := domain.CartLine{
		Ref:         item.Ref(),
		ItemName:    item.Name,
		Quantity:    quantity,
		SaleType:    saleType,
		PriceAtTime: item.UnitPrice(saleType),
	}
	return s.repo.AddCartLine(ctx, userID, line, s.reservationTTL)
}

// UpdateCartQuantity changes a staged line's quantity. The total is recomputed
// in the same transaction.
func (s *Service) UpdateCartQuantity(ctx context.Context, userID, lineID uuid.UUID, quantity int) (*domain.Cart, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidQuantity, quantity)
	}
	return s.repo.UpdateCartLineQuantity(ctx, userID, lineID, quantity)
}

// RemoveFromCart drops a staged line and releases its reservations.
func (s *Service) RemoveFromCart(ctx context.Context, userID, lineID uuid.UUID) (*domain.Cart, error) {
	return s.repo.RemoveCartLine(ctx, userID, lineID)
}

// ClearCart empties the cart and releases every reservation it held.
func (s *Service) ClearCart(ctx context.Context, userID uuid.UUID) error {
	return s.repo.ClearCart(ctx, userID)
}
