package orders

import (
	"encoding/json"
	"time"
)

type MenuItem struct {
	ID        string
	Name      string
	Price     float64 // rands
	Available bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Order struct {
	ID                  string
	Number              int64 // human-readable order number
	UserID              string
	Status              Status
	PaymentStatus       PaymentStatus
	Total               float64 // rands
	DeliveryMethod      string  // pickup | delivery
	DeliveryAddress     string
	Phone               string
	SpecialInstructions string
	CheckoutID          string // active payment session, if any
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type OrderItem struct {
	ID                  int64
	OrderID             string
	MenuItemID          *string // nil for fully customized items
	Qty                 int
	Price               float64 // rands, snapshotted at order time
	Customization       json.RawMessage
	SpecialInstructions string
}

// CartEntry is a client-side candidate line item; never persisted as-is.
type CartEntry struct {
	MenuItemID          string          `json:"menu_item_id,omitempty"`
	Name                string          `json:"name,omitempty"`
	Qty                 int             `json:"qty"`
	Price               float64         `json:"price,omitempty"` // trusted only for customized items
	Customization       json.RawMessage `json:"customization,omitempty"`
	SpecialInstructions string          `json:"special_instructions,omitempty"`
}

// Customized reports whether the entry is a made-to-order item without a
// menu row backing it.
func (e CartEntry) Customized() bool { return len(e.Customization) > 0 && e.MenuItemID == "" }

// StatusUpdate is fanned out to subscribers after a committed transition.
type StatusUpdate struct {
	OrderID       string        `json:"order_id"`
	Status        Status        `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	UpdatedAt     time.Time     `json:"updated_at"`
}
