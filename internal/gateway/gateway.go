// Package gateway holds the payment-provider adapters. Providers build
// signed payment intents and verify inbound callbacks; the reconciliation
// engine only ever sees notifications a provider has already verified.
package gateway

import (
	"context"
	"errors"

	"github.com/jhzhou002/card-shop/internal/domain"
)

var ErrBadSignature = errors.New("gateway: bad notification signature")

// Notification is a verified callback: who paid what, with which outcome.
type Notification struct {
	PaymentNo string
	Outcome   domain.NotificationOutcome
	TradeNo   string
}

type Provider interface {
	Code() string
	CreateIntent(ctx context.Context, payment *domain.Payment, order *domain.Order) (*domain.PaymentIntent, error)
	// VerifyNotification checks the callback's signature material and
	// extracts the notification. Unsigned or tampered payloads fail with
	// ErrBadSignature and never reach reconciliation.
	VerifyNotification(params map[string]string) (*Notification, error)
}

type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Code()] = p
	}
	return r
}

func (r *Registry) Get(code string) (Provider, bool) {
	p, ok := r.providers[code]
	return p, ok
}
