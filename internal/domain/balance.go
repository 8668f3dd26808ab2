package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type BalanceRecordType string

const (
	BalanceRecharge BalanceRecordType = "recharge"
	BalanceConsume  BalanceRecordType = "consume"
	BalanceRefund   BalanceRecordType = "refund"
	BalanceReward   BalanceRecordType = "reward"
)

type User struct {
	ID        int64
	Email     string
	Balance   decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BalanceRecord is an append-only entry of a stored-value change with the
// before/after snapshot taken under the user's row lock. Never updated or
// deleted after creation.
type BalanceRecord struct {
	ID            int64
	UserID        int64
	Type          BalanceRecordType
	Amount        decimal.Decimal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	Description   string
	RelatedID     *int64 // originating order/payment id
	CreatedAt     time.Time
}
