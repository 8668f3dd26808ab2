package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSuccess   PaymentStatus = "success"
	PaymentFailed    PaymentStatus = "failed"
	PaymentCancelled PaymentStatus = "cancelled"
	PaymentExpired   PaymentStatus = "expired"
)

// An expired payment may still succeed: the provider can have taken the money
// before our sweep ran, and the late callback must not strand a paid buyer.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:   {PaymentSuccess, PaymentFailed, PaymentCancelled, PaymentExpired},
	PaymentExpired:   {PaymentSuccess},
	PaymentSuccess:   {},
	PaymentFailed:    {},
	PaymentCancelled: {},
}

func (s PaymentStatus) CanTransition(to PaymentStatus) bool {
	for _, next := range paymentTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s PaymentStatus) Terminal() bool {
	return s == PaymentSuccess || s == PaymentFailed || s == PaymentCancelled
}

// Payment is one attempt to pay for an order. An order may accumulate several
// attempts; at most one ever reaches success.
type Payment struct {
	ID          int64
	PaymentNo   string
	OrderID     int64
	Method      string
	Amount      decimal.Decimal
	Status      PaymentStatus
	TradeNo     string // provider transaction id
	IntentData  string // opaque provider payload (signed params as JSON)
	PaidAt      *time.Time
	ExpiresAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PaymentMethod is a configured way to pay. Bounds are inclusive; a zero max
// means unbounded.
type PaymentMethod struct {
	ID        int64
	Code      string
	Name      string
	Provider  string
	MinAmount decimal.Decimal
	MaxAmount decimal.Decimal
	FeeRate   decimal.Decimal
	Active    bool
	CreatedAt time.Time
}

func (m *PaymentMethod) Accepts(amount decimal.Decimal) bool {
	if !m.Active {
		return false
	}
	if amount.LessThan(m.MinAmount) {
		return false
	}
	if m.MaxAmount.IsPositive() && amount.GreaterThan(m.MaxAmount) {
		return false
	}
	return true
}

// PaymentIntent is what the buyer needs to complete a payment: where to go,
// what to encode in a QR, and the provider-signed parameters.
type PaymentIntent struct {
	PaymentNo   string            `json:"payment_no"`
	RedirectURL string            `json:"redirect_url"`
	QRContent   string            `json:"qr_content,omitempty"`
	Params      map[string]string `json:"params,omitempty"`
	ExpiresAt   time.Time         `json:"expires_at"`
}

type NotificationOutcome string

const (
	OutcomeSuccess NotificationOutcome = "success"
	OutcomeFailure NotificationOutcome = "failure"
)
