package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPaid      OrderStatus = "paid"
	OrderDelivered OrderStatus = "delivered"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
	OrderRefunded  OrderStatus = "refunded"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:   {OrderPaid, OrderCancelled},
	OrderPaid:      {OrderDelivered, OrderRefunded},
	OrderDelivered: {OrderCompleted, OrderRefunded},
	OrderCompleted: {},
	OrderCancelled: {},
	OrderRefunded:  {},
}

func (s OrderStatus) CanTransition(to OrderStatus) bool {
	for _, next := range orderTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// SecretsVisible reports whether an order's card secrets may be shown at all.
// Visibility additionally requires the caller to be the owner or an admin.
func (s OrderStatus) SecretsVisible() bool {
	switch s {
	case OrderPaid, OrderDelivered, OrderCompleted:
		return true
	}
	return false
}

type Order struct {
	ID          int64
	OrderNo     string
	UserID      *int64 // nil = guest order
	GoodID      int64
	GoodName    string          // denormalized at creation
	GoodPrice   decimal.Decimal // denormalized at creation
	Quantity    int
	TotalAmount decimal.Decimal
	ContactInfo string
	Status      OrderStatus
	PaidAt      *time.Time
	DeliveredAt *time.Time
	TradeNo     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OrderDetail binds one delivered card to one order. Rows exist only for paid
// orders; their presence is what distinguishes a delivered claim from a
// reversible reservation.
type OrderDetail struct {
	ID        int64
	OrderID   int64
	CardID    int64
	CreatedAt time.Time
}

// OrderTotal computes price × quantity in decimal. Totals are frozen on the
// order row so later price edits never change what the buyer owes.
func OrderTotal(price decimal.Decimal, quantity int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(quantity)))
}
