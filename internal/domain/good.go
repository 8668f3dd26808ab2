package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type GoodStatus int

const (
	GoodUnlisted GoodStatus = 0
	GoodListed   GoodStatus = 1
)

// Good is a catalog entry backed by a pool of cards. The order ledger reads
// goods but never mutates them; name and price are copied onto orders at
// creation time so later edits don't leak into existing orders.
type Good struct {
	ID        int64
	Name      string
	Price     decimal.Decimal
	BuyLimit  int // max units per purchase, 0 = unlimited
	Status    GoodStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (g *Good) Listed() bool {
	return g.Status == GoodListed
}
