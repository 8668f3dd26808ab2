package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/jhzhou002/card-shop/internal/domain"
)

// AlipayProvider produces precreate-style payment params. Callbacks are
// verified with an HMAC-SHA256 over the sorted parameter string; the upstream
// demo left its callbacks unsigned, which is not acceptable here.
type AlipayProvider struct {
	AppID string
	Key   string
}

func NewAlipayProvider(appID, key string) *AlipayProvider {
	return &AlipayProvider{AppID: appID, Key: key}
}

func (p *AlipayProvider) Code() string { return "alipay" }

func (p *AlipayProvider) CreateIntent(ctx context.Context, payment *domain.Payment, order *domain.Order) (*domain.PaymentIntent, error) {
	params := map[string]string{
		"app_id":       p.AppID,
		"method":       "alipay.trade.precreate",
		"charset":      "utf-8",
		"sign_type":    "HMAC-SHA256",
		"timestamp":    time.Now().Format("2006-01-02 15:04:05"),
		"version":      "1.0",
		"out_trade_no": payment.PaymentNo,
		"total_amount": payment.Amount.StringFixed(2),
		"subject":      order.GoodName,
	}
	params["sign"] = p.sign(params)

	url := "/payment/alipay/" + payment.PaymentNo
	return &domain.PaymentIntent{
		PaymentNo:   payment.PaymentNo,
		RedirectURL: url,
		QRContent:   url,
		Params:      params,
		ExpiresAt:   payment.ExpiresAt,
	}, nil
}

func (p *AlipayProvider) VerifyNotification(params map[string]string) (*Notification, error) {
	sign, ok := params["sign"]
	if !ok {
		return nil, ErrBadSignature
	}
	if !hmac.Equal([]byte(sign), []byte(p.sign(params))) {
		return nil, ErrBadSignature
	}

	outcome := domain.OutcomeFailure
	if params["trade_status"] == "TRADE_SUCCESS" {
		outcome = domain.OutcomeSuccess
	}
	return &Notification{
		PaymentNo: params["out_trade_no"],
		Outcome:   outcome,
		TradeNo:   params["trade_no"],
	}, nil
}

func (p *AlipayProvider) sign(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "sign" || params[k] == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}

	mac := hmac.New(sha256.New, []byte(p.Key))
	mac.Write([]byte(b.String()))
	return hex.EncodeToString(mac.Sum(nil))
}
