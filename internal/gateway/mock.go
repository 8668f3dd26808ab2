package gateway

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jhzhou002/card-shop/internal/domain"
)

// MockProvider is an in-memory provider for tests and local development. It
// remembers the intents it issued and accepts unsigned notifications only for
// payment numbers it has seen.
type MockProvider struct {
	mu      sync.RWMutex
	intents map[string]bool
}

func NewMockProvider() *MockProvider {
	return &MockProvider{intents: make(map[string]bool)}
}

func (p *MockProvider) Code() string { return "mock" }

func (p *MockProvider) CreateIntent(ctx context.Context, payment *domain.Payment, order *domain.Order) (*domain.PaymentIntent, error) {
	p.mu.Lock()
	p.intents[payment.PaymentNo] = true
	p.mu.Unlock()

	url := "/payment/mock/" + payment.PaymentNo
	return &domain.PaymentIntent{
		PaymentNo:   payment.PaymentNo,
		RedirectURL: url,
		QRContent:   url,
		ExpiresAt:   payment.ExpiresAt,
	}, nil
}

func (p *MockProvider) VerifyNotification(params map[string]string) (*Notification, error) {
	paymentNo := params["payment_no"]

	p.mu.RLock()
	known := p.intents[paymentNo]
	p.mu.RUnlock()
	if !known {
		return nil, ErrBadSignature
	}

	outcome := domain.OutcomeFailure
	if params["outcome"] == "success" {
		outcome = domain.OutcomeSuccess
	}
	tradeNo := params["trade_no"]
	if tradeNo == "" {
		tradeNo = uuid.NewString()
	}
	return &Notification{PaymentNo: paymentNo, Outcome: outcome, TradeNo: tradeNo}, nil
}
