package domain

import (
	"time"

	"github.com/google/uuid"
)

// StockUpdatedEvent is published after any operation that changes an item's
// availability (checkout, stock add, rehabilitation). Delivery is best-effort.
type StockUpdatedEvent struct {
	ItemID    uuid.UUID `json:"item_id"`
	Available int       `json:"available"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderUpdatedEvent is published after an order is created or changes status.
type OrderUpdatedEvent struct {
	OrderID   uuid.UUID   `json:"order_id"`
	UserID    uuid.UUID   `json:"user_id"`
	Status    OrderStatus `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
}

// BroadcastCreatedEvent is published when an admin posts an announcement.
type BroadcastCreatedEvent struct {
	BroadcastID uuid.UUID `json:"broadcast_id"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Timestamp   time.Time `json:"timestamp"`
}
