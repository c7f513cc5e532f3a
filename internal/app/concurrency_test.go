package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/streamhub/store-service/internal/domain"
	"github.com/streamhub/store-service/internal/store"
)

// memoryRepo is an in-memory repository whose CheckoutAtomic mirrors the
// transactional semantics of the Postgres implementation: the whole batch
// commits or nothing does, guarded here by a single mutex instead of row
// locks. Used to exercise the service under real goroutine contention.
type memoryRepo struct {
	store.Repository

	mu    sync.Mutex
	users map[uuid.UUID]*domain.User
	items map[uuid.UUID]*domain.CatalogItem
	stock []*domain.StockUnit
	sales []domain.Order
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		users: make(map[uuid.UUID]*domain.User),
		items: make(map[uuid.UUID]*domain.CatalogItem),
	}
}

func (m *memoryRepo) addUser(credits int64) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.users[id] = &domain.User{ID: id, Credits: credits}
	return id
}

func (m *memoryRepo) addItem(saleType domain.SaleType, price int64, units int) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.items[id] = &domain.CatalogItem{
		ID: id, Name: "item", Price: price, SaleType: saleType,
		DurationDays: 30, IsActive: true,
	}
	kind := domain.UnitKindForSale(saleType)
	for i := 0; i < units; i++ {
		m.stock = append(m.stock, &domain.StockUnit{
			ID: uuid.New(), ItemID: id, Kind: kind,
			Email: fmt.Sprintf("unit%d@pool", i), Password: "secret", IsAvailable: true,
		})
	}
	return id
}

func (m *memoryRepo) setPrice(itemID uuid.UUID, price int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[itemID].Price = price
}

func (m *memoryRepo) credits(userID uuid.UUID) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[userID].Credits
}

func (m *memoryRepo) soldCount(itemID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, unit := range m.stock {
		if unit.ItemID == itemID && !unit.IsAvailable {
			n++
		}
	}
	return n
}

func (m *memoryRepo) CheckoutAtomic(ctx context.Context, userID uuid.UUID, lines []domain.CheckoutLine, clearCart bool) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[userID]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	if user.Blocked(time.Now()) {
		return nil, store.ErrUserBlocked
	}

	var total int64
	for _, line := range lines {
		total += line.Total()
	}
	if user.Credits < total {
		return nil, store.ErrInsufficientCredit
	}

	// Stage allocations before mutating anything so a shortfall on any line
	// leaves the whole batch untouched.
	var allocated []*domain.StockUnit
	taken := make(map[uuid.UUID]bool)
	for _, line := range lines {
		item, ok := m.items[line.Ref.ItemID]
		if !ok {
			return nil, store.ErrItemNotFound
		}
		if !item.IsActive {
			return nil, store.ErrItemInactive
		}
		kind := domain.UnitKindForSale(line.SaleType)
		picked := 0
		for _, unit := range m.stock {
			if picked == line.Quantity {
				break
			}
			if unit.ItemID == item.ID && unit.Kind == kind && unit.IsAvailable && !taken[unit.ID] {
				taken[unit.ID] = true
				allocated = append(allocated, unit)
				picked++
			}
		}
		if picked < line.Quantity {
			return nil, fmt.Errorf("%w: %s has %d of %d requested units", store.ErrInsufficientStock, item.Name, picked, line.Quantity)
		}
	}

	user.Credits -= total
	user.TotalSpent += total
	now := time.Now()
	var orders []domain.Order
	for _, unit := range allocated {
		unit.IsAvailable = false
		unit.SoldTo = &user.ID
		unit.SoldAt = &now
		item := m.items[unit.ItemID]
		orders = append(orders, domain.Order{
			ID: uuid.New(), UserID: user.ID, Ref: item.Ref(),
			StockUnitID: &unit.ID, ItemName: item.Name,
			Email: unit.Email, Password: unit.Password,
			Quantity: 1, SaleType: item.SaleType,
			TotalPrice: item.UnitPrice(item.SaleType),
			Status:     domain.OrderStatusCompleted,
			ExpiresAt:  now.AddDate(0, 0, item.DurationDays),
			CreatedAt:  now,
		})
	}
	m.sales = append(m.sales, orders...)
	return orders, nil
}

// RenewOrderAtomic mirrors the SQL renewal: lock, status gate, conditional
// debit of the order's snapshot price, then extend from max(now, expiry).
func (m *memoryRepo) RenewOrderAtomic(ctx context.Context, orderID, userID uuid.UUID) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var order *domain.Order
	for i := range m.sales {
		if m.sales[i].ID == orderID && m.sales[i].UserID == userID {
			order = &m.sales[i]
			break
		}
	}
	if order == nil {
		return nil, store.ErrOrderNotFound
	}
	if order.Status != domain.OrderStatusCompleted {
		return nil, store.ErrOrderNotRenewable
	}
	item, ok := m.items[order.Ref.ItemID]
	if !ok {
		return nil, store.ErrItemNotFound
	}

	user := m.users[userID]
	price := order.TotalPrice
	if user.Credits < price {
		return nil, store.ErrInsufficientCredit
	}
	user.Credits -= price
	user.TotalSpent += price

	start := order.ExpiresAt
	if now := time.Now(); start.Before(now) {
		start = now
	}
	order.ExpiresAt = start.AddDate(0, 0, item.DurationDays)
	order.RenewalCount++
	renewed := *order
	return &renewed, nil
}

func (m *memoryRepo) FindCatalogItem(ctx context.Context, itemID uuid.UUID) (*domain.CatalogItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[itemID]
	if !ok {
		return nil, store.ErrItemNotFound
	}
	found := *item
	return &found, nil
}

func (m *memoryRepo) FindOrderByID(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.sales {
		if m.sales[i].ID == orderID {
			found := m.sales[i]
			return &found, nil
		}
	}
	return nil, store.ErrOrderNotFound
}

func (m *memoryRepo) CountAvailableStock(ctx context.Context, itemID uuid.UUID, kind domain.UnitKind, forUser uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, unit := range m.stock {
		if unit.ItemID == itemID && unit.Kind == kind && unit.IsAvailable {
			n++
		}
	}
	return n, nil
}

func TestCheckout_TwoBuyersOneUnit(t *testing.T) {
	repo := newMemoryRepo()
	buyerA := repo.addUser(100)
	buyerB := repo.addUser(100)
	itemID := repo.addItem(domain.SaleTypeFull, 60, 1)
	svc := NewService(repo, &publisherStub{}, time.Minute)

	line := []domain.CheckoutLine{
		{Ref: domain.CatalogRef{ItemID: itemID}, Quantity: 1, SaleType: domain.SaleTypeFull, PriceAtTime: 60},
	}

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, buyer := range []uuid.UUID{buyerA, buyerB} {
		wg.Add(1)
		go func(slot int, userID uuid.UUID) {
			defer wg.Done()
			_, results[slot] = svc.Checkout(context.Background(), userID, line)
		}(i, buyer)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
		} else if !errors.Is(err, store.ErrInsufficientStock) {
			t.Errorf("loser must fail on stock, got %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("exactly one buyer must win the last unit, got %d winners", successes)
	}
	if got := repo.soldCount(itemID); got != 1 {
		t.Errorf("the unit must be retired exactly once, sold=%d", got)
	}
	// Exactly one debit of 60 across both buyers.
	if total := repo.credits(buyerA) + repo.credits(buyerB); total != 140 {
		t.Errorf("expected combined balance 140, got %d", total)
	}
}

func TestCheckout_ZeroPriceLineStillDebitsCatalogPrice(t *testing.T) {
	repo := newMemoryRepo()
	userID := repo.addUser(100)
	itemID := repo.addItem(domain.SaleTypeFull, 60, 1)
	svc := NewService(repo, &publisherStub{}, time.Minute)

	// The request claims the unit is free; the ledger must disagree.
	orders, err := svc.Checkout(context.Background(), userID, []domain.CheckoutLine{
		{Ref: domain.CatalogRef{ItemID: itemID}, Quantity: 1, SaleType: domain.SaleTypeFull, PriceAtTime: 0},
	})
	if err != nil {
		t.Fatalf("expected checkout to succeed at the catalog price, got %v", err)
	}
	if len(orders) != 1 || orders[0].TotalPrice != 60 {
		t.Fatalf("order must carry the catalog price, got %+v", orders)
	}
	if got := repo.credits(userID); got != 40 {
		t.Errorf("expected balance 40 after a 60-credit purchase, got %d", got)
	}
	if got := repo.soldCount(itemID); got != 1 {
		t.Errorf("expected the unit retired once, sold=%d", got)
	}
}

func TestCheckout_StockShortfallLeavesCreditUntouched(t *testing.T) {
	repo := newMemoryRepo()
	userID := repo.addUser(50)
	itemID := repo.addItem(domain.SaleTypeProfiles, 10, 2)
	svc := NewService(repo, &publisherStub{}, time.Minute)

	_, err := svc.Checkout(context.Background(), userID, []domain.CheckoutLine{
		{Ref: domain.CatalogRef{ItemID: itemID}, Quantity: 3, SaleType: domain.SaleTypeProfiles, PriceAtTime: 10},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if got := repo.credits(userID); got != 50 {
		t.Errorf("failed checkout must not debit credit, balance=%d", got)
	}
	if got := repo.soldCount(itemID); got != 0 {
		t.Errorf("failed checkout must not retire stock, sold=%d", got)
	}
}

func TestCheckout_ConcurrentSpendCannotOverdraw(t *testing.T) {
	repo := newMemoryRepo()
	userID := repo.addUser(100)
	itemID := repo.addItem(domain.SaleTypeFull, 60, 5)
	svc := NewService(repo, &publisherStub{}, time.Minute)

	line := []domain.CheckoutLine{
		{Ref: domain.CatalogRef{ItemID: itemID}, Quantity: 1, SaleType: domain.SaleTypeFull, PriceAtTime: 60},
	}

	const attempts = 4
	var wg sync.WaitGroup
	results := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			_, results[slot] = svc.Checkout(context.Background(), userID, line)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
		} else if !errors.Is(err, store.ErrInsufficientCredit) {
			t.Errorf("losers must fail on credit, got %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("100 credits buy exactly one 60-credit unit, got %d purchases", successes)
	}
	if got := repo.credits(userID); got != 40 {
		t.Errorf("expected balance 40 after one purchase, got %d", got)
	}
	if got := repo.soldCount(itemID); got != 1 {
		t.Errorf("expected exactly one unit retired, sold=%d", got)
	}
}

func TestCheckout_MultiLineBatchIsAllOrNothing(t *testing.T) {
	repo := newMemoryRepo()
	userID := repo.addUser(1000)
	stockedItem := repo.addItem(domain.SaleTypeFull, 100, 3)
	emptyItem := repo.addItem(domain.SaleTypeFull, 100, 0)
	svc := NewService(repo, &publisherStub{}, time.Minute)

	_, err := svc.Checkout(context.Background(), userID, []domain.CheckoutLine{
		{Ref: domain.CatalogRef{ItemID: stockedItem}, Quantity: 2, SaleType: domain.SaleTypeFull, PriceAtTime: 100},
		{Ref: domain.CatalogRef{ItemID: emptyItem}, Quantity: 1, SaleType: domain.SaleTypeFull, PriceAtTime: 100},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if got := repo.soldCount(stockedItem); got != 0 {
		t.Errorf("a failing line must roll back the whole batch, sold=%d", got)
	}
	if got := repo.credits(userID); got != 1000 {
		t.Errorf("a failing batch must not debit credit, balance=%d", got)
	}
}
