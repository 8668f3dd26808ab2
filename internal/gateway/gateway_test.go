package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/jhzhou002/card-shop/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPayment() (*domain.Payment, *domain.Order) {
	payment := &domain.Payment{
		PaymentNo: domain.NewPaymentNo(),
		Amount:    decimal.RequireFromString("19.98"),
		ExpiresAt: time.Now().Add(30 * time.Minute),
	}
	order := &domain.Order{
		OrderNo:  domain.NewOrderNo(),
		GoodName: "Steam Gift Card",
	}
	return payment, order
}

func TestWechatIntentSigned(t *testing.T) {
	p := NewWechatProvider("wx-app", "secret-key")
	payment, order := testPayment()

	intent, err := p.CreateIntent(context.Background(), payment, order)
	require.NoError(t, err)

	assert.Equal(t, payment.PaymentNo, intent.PaymentNo)
	assert.Contains(t, intent.RedirectURL, payment.PaymentNo)
	assert.Equal(t, "prepay_id="+payment.PaymentNo, intent.Params["package"])
	assert.NotEmpty(t, intent.Params["paySign"])
	// signature covers the params: recomputing with the skip field removed
	// must reproduce it
	assert.Equal(t, md5Sign(intent.Params, "secret-key", "paySign"), intent.Params["paySign"])
}

func TestWechatVerifyNotification(t *testing.T) {
	p := NewWechatProvider("wx-app", "secret-key")

	params := map[string]string{
		"out_trade_no":   "PAY01ABCDEF",
		"result_code":    "SUCCESS",
		"transaction_id": "wx-txn-1",
	}
	params["sign"] = md5Sign(params, "secret-key", "sign")

	n, err := p.VerifyNotification(params)
	require.NoError(t, err)
	assert.Equal(t, "PAY01ABCDEF", n.PaymentNo)
	assert.Equal(t, domain.OutcomeSuccess, n.Outcome)
	assert.Equal(t, "wx-txn-1", n.TradeNo)
}

func TestWechatVerifyRejectsTampering(t *testing.T) {
	p := NewWechatProvider("wx-app", "secret-key")

	params := map[string]string{
		"out_trade_no":   "PAY01ABCDEF",
		"result_code":    "FAIL",
		"transaction_id": "wx-txn-1",
	}
	params["sign"] = md5Sign(params, "secret-key", "sign")
	params["result_code"] = "SUCCESS" // flip outcome after signing

	_, err := p.VerifyNotification(params)
	assert.ErrorIs(t, err, ErrBadSignature)

	delete(params, "sign")
	_, err = p.VerifyNotification(params)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestAlipayVerifyRoundTrip(t *testing.T) {
	p := NewAlipayProvider("ali-app", "ali-key")
	payment, order := testPayment()

	intent, err := p.CreateIntent(context.Background(), payment, order)
	require.NoError(t, err)
	assert.Equal(t, payment.Amount.StringFixed(2), intent.Params["total_amount"])

	params := map[string]string{
		"out_trade_no": payment.PaymentNo,
		"trade_status": "TRADE_SUCCESS",
		"trade_no":     "ali-txn-9",
	}
	params["sign"] = p.sign(params)

	n, err := p.VerifyNotification(params)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSuccess, n.Outcome)

	// wrong key fails
	other := NewAlipayProvider("ali-app", "different-key")
	_, err = other.VerifyNotification(params)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestMockProviderOnlyKnowsItsIntents(t *testing.T) {
	p := NewMockProvider()
	payment, order := testPayment()

	_, err := p.VerifyNotification(map[string]string{
		"payment_no": payment.PaymentNo, "outcome": "success",
	})
	assert.ErrorIs(t, err, ErrBadSignature)

	_, err = p.CreateIntent(context.Background(), payment, order)
	require.NoError(t, err)

	n, err := p.VerifyNotification(map[string]string{
		"payment_no": payment.PaymentNo, "outcome": "success",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSuccess, n.Outcome)
	assert.NotEmpty(t, n.TradeNo)
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry(NewMockProvider(), NewWechatProvider("a", "k"))

	p, ok := r.Get("wechat")
	require.True(t, ok)
	assert.Equal(t, "wechat", p.Code())

	_, ok = r.Get("stripe")
	assert.False(t, ok)
}
