package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/streamhub/store-service/internal/domain"
	"github.com/streamhub/store-service/internal/store"
)

type cartRepoStub struct {
	store.Repository

	item    *domain.CatalogItem
	granted bool

	addCalled bool
	addedLine domain.CartLine
	addedTTL  time.Duration
}

func (s *cartRepoStub) FindCatalogItem(ctx context.Context, itemID uuid.UUID) (*domain.CatalogItem, error) {
	if s.item == nil || s.item.ID != itemID {
		return nil, store.ErrItemNotFound
	}
	return s.item, nil
}

func (s *cartRepoStub) HasExclusiveAccess(ctx context.Context, itemID, userID uuid.UUID) (bool, error) {
	return s.granted, nil
}

func (s *cartRepoStub) AddCartLine(ctx context.Context, userID uuid.UUID, line domain.CartLine, ttl time.Duration) (*domain.Cart, error) {
	s.addCalled = true
	s.addedLine = line
	s.addedTTL = ttl
	return &domain.Cart{ID: uuid.New(), UserID: userID, TotalAmount: line.PriceAtTime * int64(line.Quantity)}, nil
}

func activeItem(saleType domain.SaleType) *domain.CatalogItem {
	return &domain.CatalogItem{
		ID: uuid.New(), Name: "Streaming Plus", Price: 2500,
		MaxProfiles: 4, SaleType: saleType, DurationDays: 30, IsActive: true,
	}
}

func TestAddToCart_SnapshotsUnitPrice(t *testing.T) {
	perProfile := int64(700)
	item := activeItem(domain.SaleTypeProfiles)
	item.PricePerProfile = &perProfile
	repo := &cartRepoStub{item: item}
	svc := NewService(repo, &publisherStub{}, 5*time.Minute)

	cart, err := svc.AddToCart(context.Background(), uuid.New(), item.ID, domain.SaleTypeProfiles, 2)
	if err != nil {
		t.Fatalf("expected add to succeed, got %v", err)
	}
	if !repo.addCalled {
		t.Fatal("expected AddCartLine to be called")
	}
	if repo.addedLine.PriceAtTime != perProfile {
		t.Errorf("profiles sales must snapshot the per-profile price, got %d", repo.addedLine.PriceAtTime)
	}
	if repo.addedLine.ItemName != item.Name {
		t.Errorf("line must carry the item name snapshot, got %q", repo.addedLine.ItemName)
	}
	if repo.addedTTL != 5*time.Minute {
		t.Errorf("line must carry the configured reservation TTL, got %v", repo.addedTTL)
	}
	if cart.TotalAmount != 1400 {
		t.Errorf("expected total 1400, got %d", cart.TotalAmount)
	}
}

func TestAddToCart_InactiveItemRejected(t *testing.T) {
	item := activeItem(domain.SaleTypeFull)
	item.IsActive = false
	repo := &cartRepoStub{item: item}
	svc := NewService(repo, &publisherStub{}, time.Minute)

	_, err := svc.AddToCart(context.Background(), uuid.New(), item.ID, domain.SaleTypeFull, 1)
	if !errors.Is(err, store.ErrItemInactive) {
		t.Fatalf("expected ErrItemInactive, got %v", err)
	}
	if repo.addCalled {
		t.Error("inactive item must not be staged")
	}
}

func TestAddToCart_SaleTypeMustMatchItem(t *testing.T) {
	item := activeItem(domain.SaleTypeFull)
	repo := &cartRepoStub{item: item}
	svc := NewService(repo, &publisherStub{}, time.Minute)

	_, err := svc.AddToCart(context.Background(), uuid.New(), item.ID, domain.SaleTypeProfiles, 1)
	if !errors.Is(err, ErrSaleTypeMismatch) {
		t.Fatalf("expected ErrSaleTypeMismatch, got %v", err)
	}
}

func TestAddToCart_ProfileLimitEnforced(t *testing.T) {
	item := activeItem(domain.SaleTypeProfiles)
	repo := &cartRepoStub{item: item}
	svc := NewService(repo, &publisherStub{}, time.Minute)

	_, err := svc.AddToCart(context.Background(), uuid.New(), item.ID, domain.SaleTypeProfiles, item.MaxProfiles+1)
	if !errors.Is(err, ErrTooManyProfiles) {
		t.Fatalf("expected ErrTooManyProfiles, got %v", err)
	}
}

func TestAddToCart_ExclusiveItemRequiresGrant(t *testing.T) {
	item := activeItem(domain.SaleTypeFull)
	item.IsExclusive = true
	repo := &cartRepoStub{item: item, granted: false}
	svc := NewService(repo, &publisherStub{}, time.Minute)

	_, err := svc.AddToCart(context.Background(), uuid.New(), item.ID, domain.SaleTypeFull, 1)
	if !errors.Is(err, store.ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}

	repo.granted = true
	if _, err := svc.AddToCart(context.Background(), uuid.New(), item.ID, domain.SaleTypeFull, 1); err != nil {
		t.Fatalf("granted user must be able to stage the item, got %v", err)
	}
	if !repo.addedLine.Ref.Exclusive {
		t.Error("staged line must carry the exclusive tag")
	}
}

func TestAddToCart_NonPositiveQuantityRejected(t *testing.T) {
	item := activeItem(domain.SaleTypeFull)
	repo := &cartRepoStub{item: item}
	svc := NewService(repo, &publisherStub{}, time.Minute)

	for _, quantity := range []int{0, -1} {
		if _, err := svc.AddToCart(context.Background(), uuid.New(), item.ID, domain.SaleTypeFull, quantity); !errors.Is(err, ErrInvalidQuantity) {
			t.Errorf("quantity %d: expected ErrInvalidQuantity, got %v", quantity, err)
		}
	}
}
