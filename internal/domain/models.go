/**
 * @description
 * This file defines the core domain models for the store-service: users with their
 * credit balances, catalog items, stock units, carts, orders, and the supporting
 * back-office entities (reservations, recharges, expenses, warnings, broadcasts).
 * These structs are used across the repository, service, and API layers.
 *
 * @dependencies
 * - time: Standard Go library.
 * - github.com/google/uuid: For entity identifiers.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// SaleType distinguishes whole-account sales from per-profile sales.
type SaleType string

const (
	SaleTypeFull     SaleType = "FULL"
	SaleTypeProfiles SaleType = "PROFILES"
)

// Valid reports whether the sale type is one of the two supported modes.
func (s SaleType) Valid() bool {
	return s == SaleTypeFull || s == SaleTypeProfiles
}

// UnitKind is the shape of a stock unit. FULL sales consume account units,
// PROFILES sales consume profile units.
type UnitKind string

const (
	UnitKindAccount UnitKind = "account"
	UnitKindProfile UnitKind = "profile"
)

// UnitKindForSale maps a sale type to the stock unit kind it consumes.
func UnitKindForSale(s SaleType) UnitKind {
	if s == SaleTypeProfiles {
		return UnitKindProfile
	}
	return UnitKindAccount
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusCompleted     OrderStatus = "COMPLETED"
	OrderStatusPending       OrderStatus = "PENDING"
	OrderStatusCancelled     OrderStatus = "CANCELLED"
	OrderStatusRehabilitated OrderStatus = "REHABILITATED"
)

// User represents a storefront customer. Credits is an int64 amount in
// credit-cents; it is only mutated by the conditional debit inside checkout and
// by recharges, and never goes negative.
type User struct {
	ID           uuid.UUID  `json:"id"`
	Username     string     `json:"username"`
	Credits      int64      `json:"credits"`
	TotalSpent   int64      `json:"total_spent"`
	IsBlocked    bool       `json:"is_blocked"`
	BlockedUntil *time.Time `json:"blocked_until,omitempty"`
	IsAdmin      bool       `json:"is_admin"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Blocked reports whether the user currently has an active block. A block with
// an expiry in the past no longer gates checkout.
func (u *User) Blocked(now time.Time) bool {
	if !u.IsBlocked {
		return false
	}
	if u.BlockedUntil == nil {
		return true
	}
	return now.Before(*u.BlockedUntil)
}

// CatalogRef identifies either a regular or an exclusive catalog item. The
// engine dispatches on the Exclusive tag instead of probing optional fields.
type CatalogRef struct {
	ItemID    uuid.UUID `json:"item_id"`
	Exclusive bool      `json:"exclusive"`
}

// CatalogItem is a sellable listing. Price and PricePerProfile are snapshotted
// into cart lines and orders at add time, so later edits never change in-flight
// purchases.
type CatalogItem struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	Price           int64     `json:"price"`
	PricePerProfile *int64    `json:"price_per_profile,omitempty"`
	MaxProfiles     int       `json:"max_profiles"`
	SaleType        SaleType  `json:"sale_type"`
	DurationDays    int       `json:"duration_days"`
	IsExclusive     bool      `json:"is_exclusive"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Ref returns the tagged reference for this item.
func (c *CatalogItem) Ref() CatalogRef {
	return CatalogRef{ItemID: c.ID, Exclusive: c.IsExclusive}
}

// UnitPrice returns the price charged per allocated unit for the given sale
// type: the per-profile price for PROFILES items that define one, the listing
// price otherwise.
func (c *CatalogItem) UnitPrice(s SaleType) int64 {
	if s == SaleTypeProfiles && c.PricePerProfile != nil {
		return *c.PricePerProfile
	}
	return c.Price
}

// StockUnit is one single-use credential record in an item's pool. It
// transitions available -> sold exactly once, atomically with order creation.
type StockUnit struct {
	ID          uuid.UUID  `json:"id"`
	ItemID      uuid.UUID  `json:"item_id"`
	Kind        UnitKind   `json:"kind"`
	Email       string     `json:"email"`
	Password    string     `json:"password"`
	ProfileName *string    `json:"profile_name,omitempty"`
	ProfilePIN  *string    `json:"profile_pin,omitempty"`
	IsAvailable bool       `json:"is_available"`
	SoldTo      *uuid.UUID `json:"sold_to,omitempty"`
	SoldAt      *time.Time `json:"sold_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Cart is the per-user staging area. TotalAmount is recomputed inside the same
// transaction as every line mutation, never lazily.
type Cart struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	TotalAmount int64     `json:"total_amount"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CartLine is one (item, quantity) entry with its price snapshot.
type CartLine struct {
	ID          uuid.UUID  `json:"id"`
	CartID      uuid.UUID  `json:"cart_id"`
	Ref         CatalogRef `json:"ref"`
	ItemName    string     `json:"item_name"`
	Quantity    int        `json:"quantity"`
	SaleType    SaleType   `json:"sale_type"`
	PriceAtTime int64      `json:"price_at_time"`
	CreatedAt   time.Time  `json:"created_at"`
}

// CheckoutLine is one line of a checkout request, either materialized from the
// cart or supplied directly by the caller.
type CheckoutLine struct {
	Ref         CatalogRef `json:"ref"`
	Quantity    int        `json:"quantity"`
	SaleType    SaleType   `json:"sale_type"`
	PriceAtTime int64      `json:"price_at_time"`
}

// Total returns quantity times the price snapshot.
func (l CheckoutLine) Total() int64 {
	return l.PriceAtTime * int64(l.Quantity)
}

// Order is a completed (or later cancelled/rehabilitated) purchase of exactly
// one stock unit. Credentials and price are immutable snapshots taken inside
// the checkout transaction.
type Order struct {
	ID           uuid.UUID   `json:"id"`
	UserID       uuid.UUID   `json:"user_id"`
	Ref          CatalogRef  `json:"ref"`
	StockUnitID  *uuid.UUID  `json:"stock_unit_id,omitempty"`
	ItemName     string      `json:"item_name"`
	Email        string      `json:"email"`
	Password     string      `json:"password"`
	ProfileName  *string     `json:"profile_name,omitempty"`
	ProfilePIN   *string     `json:"profile_pin,omitempty"`
	Quantity     int         `json:"quantity"`
	SaleType     SaleType    `json:"sale_type"`
	TotalPrice   int64       `json:"total_price"`
	Status       OrderStatus `json:"status"`
	ExpiresAt    time.Time   `json:"expires_at"`
	RenewalCount int         `json:"renewal_count"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// StockReservation is a time-boxed soft hold placed when a unit is staged into
// a cart. It only gates cart adds; checkout re-locks rows and never trusts it.
type StockReservation struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	ItemID      uuid.UUID `json:"item_id"`
	StockUnitID uuid.UUID `json:"stock_unit_id"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// Recharge records a credit top-up applied to a user's ledger.
type Recharge struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Amount    int64     `json:"amount"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"created_at"`
}

// Expense records an outgoing cost (e.g. upstream account purchases) for the
// financial report.
type Expense struct {
	ID        uuid.UUID `json:"id"`
	Label     string    `json:"label"`
	Amount    int64     `json:"amount"`
	SpentAt   time.Time `json:"spent_at"`
	CreatedAt time.Time `json:"created_at"`
}

// FinancialReport aggregates recharges against expenses over a period.
type FinancialReport struct {
	From           time.Time `json:"from"`
	To             time.Time `json:"to"`
	TotalRecharges int64     `json:"total_recharges"`
	TotalExpenses  int64     `json:"total_expenses"`
	Net            int64     `json:"net"`
}

// Warning is an admin-issued note against a user.
type Warning struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Broadcast is an admin announcement delivered through the event stream.
type Broadcast struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}
