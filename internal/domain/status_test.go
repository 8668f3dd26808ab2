package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestOrderTransitions(t *testing.T) {
	assert.True(t, OrderPending.CanTransition(OrderPaid))
	assert.True(t, OrderPending.CanTransition(OrderCancelled))
	assert.True(t, OrderPaid.CanTransition(OrderDelivered))
	assert.True(t, OrderPaid.CanTransition(OrderRefunded))
	assert.True(t, OrderDelivered.CanTransition(OrderCompleted))
	assert.True(t, OrderDelivered.CanTransition(OrderRefunded))

	// terminal states go nowhere
	for _, s := range []OrderStatus{OrderCompleted, OrderCancelled, OrderRefunded} {
		for _, to := range []OrderStatus{OrderPending, OrderPaid, OrderDelivered, OrderCompleted, OrderCancelled, OrderRefunded} {
			assert.False(t, s.CanTransition(to), "%s -> %s should be illegal", s, to)
		}
	}

	// no going backwards
	assert.False(t, OrderDelivered.CanTransition(OrderPending))
	assert.False(t, OrderPaid.CanTransition(OrderPending))
	assert.False(t, OrderPaid.CanTransition(OrderCancelled))
}

func TestPaymentTransitions(t *testing.T) {
	assert.True(t, PaymentPending.CanTransition(PaymentSuccess))
	assert.True(t, PaymentPending.CanTransition(PaymentFailed))
	assert.True(t, PaymentPending.CanTransition(PaymentExpired))
	// late provider success after our sweep already expired the attempt
	assert.True(t, PaymentExpired.CanTransition(PaymentSuccess))
	assert.False(t, PaymentExpired.CanTransition(PaymentFailed))

	assert.False(t, PaymentSuccess.CanTransition(PaymentFailed))
	assert.False(t, PaymentFailed.CanTransition(PaymentSuccess))
}

func TestCardTransitions(t *testing.T) {
	assert.True(t, CardUnused.CanTransition(CardReserved))
	assert.True(t, CardReserved.CanTransition(CardUsed))
	assert.True(t, CardReserved.CanTransition(CardUnused)) // release
	assert.False(t, CardUsed.CanTransition(CardUnused))
	assert.False(t, CardUsed.CanTransition(CardReserved))
	assert.False(t, CardExpired.CanTransition(CardUnused))
}

func TestSecretsVisible(t *testing.T) {
	assert.False(t, OrderPending.SecretsVisible())
	assert.False(t, OrderCancelled.SecretsVisible())
	assert.True(t, OrderPaid.SecretsVisible())
	assert.True(t, OrderDelivered.SecretsVisible())
	assert.True(t, OrderCompleted.SecretsVisible())
}

func TestOrderTotal(t *testing.T) {
	price := decimal.RequireFromString("9.99")
	total := OrderTotal(price, 2)
	assert.True(t, total.Equal(decimal.RequireFromString("19.98")), "got %s", total)

	// decimal arithmetic, no float drift at awkward quantities
	total = OrderTotal(decimal.RequireFromString("0.10"), 3)
	assert.True(t, total.Equal(decimal.RequireFromString("0.30")), "got %s", total)
}

func TestMethodAccepts(t *testing.T) {
	m := PaymentMethod{
		MinAmount: decimal.RequireFromString("1.00"),
		MaxAmount: decimal.RequireFromString("100.00"),
		Active:    true,
	}
	assert.True(t, m.Accepts(decimal.RequireFromString("1.00")))
	assert.True(t, m.Accepts(decimal.RequireFromString("100.00")))
	assert.False(t, m.Accepts(decimal.RequireFromString("0.99")))
	assert.False(t, m.Accepts(decimal.RequireFromString("100.01")))

	unbounded := PaymentMethod{Active: true}
	assert.True(t, unbounded.Accepts(decimal.RequireFromString("99999.99")))

	m.Active = false
	assert.False(t, m.Accepts(decimal.RequireFromString("50.00")))
}
