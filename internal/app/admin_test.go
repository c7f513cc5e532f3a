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

type adminRepoStub struct {
	store.Repository

	item      *domain.CatalogItem
	available int
	balance   int64
	creditErr error

	addedUnits      []domain.StockUnit
	createdItem     *domain.CatalogItem
	creditedAmount  int64
	creditedNote    string
	blockedUntil    *time.Time
	blockCalled     bool
	broadcastStored *domain.Broadcast
	expenseStored   *domain.Expense
}

func (s *adminRepoStub) FindCatalogItem(ctx context.Context, itemID uuid.UUID) (*domain.CatalogItem, error) {
	if s.item == nil || s.item.ID != itemID {
		return nil, store.ErrItemNotFound
	}
	return s.item, nil
}

func (s *adminRepoStub) AddStockUnits(ctx context.Context, units []domain.StockUnit) error {
	s.addedUnits = append(s.addedUnits, units...)
	return nil
}

func (s *adminRepoStub) CountAvailableStock(ctx context.Context, itemID uuid.UUID, kind domain.UnitKind, forUser uuid.UUID) (int, error) {
	return s.available, nil
}

func (s *adminRepoStub) CreateCatalogItem(ctx context.Context, item *domain.CatalogItem) error {
	s.createdItem = item
	return nil
}

func (s *adminRepoStub) CreditUser(ctx context.Context, userID uuid.UUID, amount int64, note string) (int64, error) {
	if s.creditErr != nil {
		return 0, s.creditErr
	}
	s.creditedAmount = amount
	s.creditedNote = note
	s.balance += amount
	return s.balance, nil
}

func (s *adminRepoStub) BlockUser(ctx context.Context, userID uuid.UUID, until *time.Time) error {
	s.blockCalled = true
	s.blockedUntil = until
	return nil
}

func (s *adminRepoStub) CreateBroadcast(ctx context.Context, broadcast *domain.Broadcast) error {
	s.broadcastStored = broadcast
	return nil
}

func (s *adminRepoStub) CreateExpense(ctx context.Context, expense *domain.Expense) error {
	s.expenseStored = expense
	return nil
}

func profileName(name string) *string { return &name }

func TestAddStock_StampsItemAndKindOntoUnits(t *testing.T) {
	item := activeItem(domain.SaleTypeProfiles)
	repo := &adminRepoStub{item: item, available: 4}
	events := &publisherStub{}
	svc := NewService(repo, events, time.Minute)

	units := []domain.StockUnit{
		{Email: "a@pool", Password: "pw", ProfileName: profileName("P1")},
		{Email: "b@pool", Password: "pw", ProfileName: profileName("P2")},
	}
	loaded, err := svc.AddStock(context.Background(), item.ID, units)
	if err != nil {
		t.Fatalf("expected stock load to succeed, got %v", err)
	}
	if loaded != 2 || len(repo.addedUnits) != 2 {
		t.Fatalf("expected 2 units loaded, got %d stored %d", loaded, len(repo.addedUnits))
	}
	for _, unit := range repo.addedUnits {
		if unit.ItemID != item.ID {
			t.Error("unit must be stamped with the target item")
		}
		if unit.Kind != domain.UnitKindProfile {
			t.Errorf("PROFILES item must receive profile units, got %s", unit.Kind)
		}
	}
	if len(events.stockEvents) != 1 || events.stockEvents[0].Available != 4 {
		t.Errorf("expected one stock event with the fresh count, got %+v", events.stockEvents)
	}
}

func TestAddStock_ProfileUnitsRequireProfileName(t *testing.T) {
	item := activeItem(domain.SaleTypeProfiles)
	repo := &adminRepoStub{item: item}
	svc := NewService(repo, &publisherStub{}, time.Minute)

	_, err := svc.AddStock(context.Background(), item.ID, []domain.StockUnit{
		{Email: "a@pool", Password: "pw"},
	})
	if !errors.Is(err, ErrInvalidStockUnit) {
		t.Fatalf("expected ErrInvalidStockUnit, got %v", err)
	}
	if len(repo.addedUnits) != 0 {
		t.Error("invalid batch must not be stored")
	}
}

func TestAddStock_MissingCredentialsRejected(t *testing.T) {
	item := activeItem(domain.SaleTypeFull)
	repo := &adminRepoStub{item: item}
	svc := NewService(repo, &publisherStub{}, time.Minute)

	_, err := svc.AddStock(context.Background(), item.ID, []domain.StockUnit{
		{Email: "a@pool", Password: "pw"},
		{Email: " ", Password: "pw"},
	})
	if !errors.Is(err, ErrInvalidStockUnit) {
		t.Fatalf("expected ErrInvalidStockUnit, got %v", err)
	}
}

func TestCreateItem_ValidatesListing(t *testing.T) {
	repo := &adminRepoStub{}
	svc := NewService(repo, &publisherStub{}, time.Minute)

	bad := []*domain.CatalogItem{
		{Name: "", SaleType: domain.SaleTypeFull, Price: 100, DurationDays: 30},
		{Name: "x", SaleType: "BUNDLE", Price: 100, DurationDays: 30},
		{Name: "x", SaleType: domain.SaleTypeFull, Price: 0, DurationDays: 30},
		{Name: "x", SaleType: domain.SaleTypeFull, Price: 100, DurationDays: 0},
	}
	for i, item := range bad {
		if err := svc.CreateItem(context.Background(), item); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}

	good := &domain.CatalogItem{Name: "Streaming Plus", SaleType: domain.SaleTypeFull, Price: 2500, DurationDays: 30, IsActive: true}
	if err := svc.CreateItem(context.Background(), good); err != nil {
		t.Fatalf("expected valid listing to be created, got %v", err)
	}
	if repo.createdItem == nil || repo.createdItem.ID == uuid.Nil {
		t.Error("created listing must be assigned an ID")
	}
}

func TestRecharge_PositiveAmountsOnly(t *testing.T) {
	repo := &adminRepoStub{balance: 100}
	svc := NewService(repo, &publisherStub{}, time.Minute)
	userID := uuid.New()

	for _, amount := range []int64{0, -50} {
		if _, err := svc.Recharge(context.Background(), userID, amount, "top-up"); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("amount %d: expected ErrInvalidAmount, got %v", amount, err)
		}
	}

	balance, err := svc.Recharge(context.Background(), userID, 250, "manual top-up")
	if err != nil {
		t.Fatalf("expected recharge to succeed, got %v", err)
	}
	if balance != 350 {
		t.Errorf("expected new balance 350, got %d", balance)
	}
	if repo.creditedNote != "manual top-up" {
		t.Errorf("recharge note must be recorded, got %q", repo.creditedNote)
	}
}

func TestBlockUser_PassesDeadlineThrough(t *testing.T) {
	repo := &adminRepoStub{}
	svc := NewService(repo, &publisherStub{}, time.Minute)

	until := time.Now().Add(48 * time.Hour)
	if err := svc.BlockUser(context.Background(), uuid.New(), &until); err != nil {
		t.Fatalf("expected block to succeed, got %v", err)
	}
	if !repo.blockCalled || repo.blockedUntil == nil || !repo.blockedUntil.Equal(until) {
		t.Error("block deadline must reach the repository unchanged")
	}

	if err := svc.BlockUser(context.Background(), uuid.New(), nil); err != nil {
		t.Fatalf("expected permanent block to succeed, got %v", err)
	}
	if repo.blockedUntil != nil {
		t.Error("permanent block must carry a nil deadline")
	}
}

func TestBroadcast_StoresThenPublishes(t *testing.T) {
	repo := &adminRepoStub{}
	events := &publisherStub{}
	svc := NewService(repo, events, time.Minute)

	broadcast, err := svc.Broadcast(context.Background(), "Maintenance", "Down at midnight")
	if err != nil {
		t.Fatalf("expected broadcast to succeed, got %v", err)
	}
	if repo.broadcastStored == nil || repo.broadcastStored.ID != broadcast.ID {
		t.Error("broadcast must be stored before publication")
	}
	if len(events.broadcastEvents) != 1 || events.broadcastEvents[0].Title != "Maintenance" {
		t.Errorf("expected one broadcast event, got %+v", events.broadcastEvents)
	}
}

func TestRecordExpense_DefaultsSpentAt(t *testing.T) {
	repo := &adminRepoStub{}
	svc := NewService(repo, &publisherStub{}, time.Minute)

	if err := svc.RecordExpense(context.Background(), "upstream accounts", 5000, time.Time{}); err != nil {
		t.Fatalf("expected expense to be recorded, got %v", err)
	}
	if repo.expenseStored == nil || repo.expenseStored.SpentAt.IsZero() {
		t.Error("zero spent_at must default to now")
	}
	if err := svc.RecordExpense(context.Background(), "bad", -1, time.Now()); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount for negative expense, got %v", err)
	}
}
