package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/jhzhou002/card-shop/internal/repo"
	"github.com/jhzhou002/card-shop/internal/service"
)

const staleOrderBatch = 100

// ExpiryWorker sweeps the payment ledger for pending payments past their
// expiry and, when an order TTL is configured, cancels stale pending orders
// so their cards return to the pool. Every flip is conditional on current
// state, so overlapping sweeps are safe.
type ExpiryWorker struct {
	paymentRepo repo.PaymentRepo
	orderRepo   repo.OrderRepo
	orders      service.OrderService
	interval    time.Duration
	orderTTL    time.Duration // 0 = never cancel pending orders
	logger      *slog.Logger
}

func NewExpiryWorker(
	paymentRepo repo.PaymentRepo,
	orderRepo repo.OrderRepo,
	orders service.OrderService,
	interval, orderTTL time.Duration,
	logger *slog.Logger,
) *ExpiryWorker {
	return &ExpiryWorker{
		paymentRepo: paymentRepo,
		orderRepo:   orderRepo,
		orders:      orders,
		interval:    interval,
		orderTTL:    orderTTL,
		logger:      logger,
	}
}

func (w *ExpiryWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("expiry worker started", "interval", w.interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Process(ctx); err != nil {
				w.logger.Error("expiry sweep failed", "err", err)
			}
		}
	}
}

func (w *ExpiryWorker) Process(ctx context.Context) error {
	n, err := w.paymentRepo.ExpireDue(ctx, time.Now())
	if err != nil {
		return err
	}
	if n > 0 {
		w.logger.Info("payments expired", "count", n)
	}

	if w.orderTTL <= 0 {
		return nil
	}

	stale, err := w.orderRepo.FindStalePending(ctx, w.orderTTL, staleOrderBatch)
	if err != nil {
		return err
	}
	for _, order := range stale {
		if err := w.orders.Cancel(ctx, order.OrderNo, service.Viewer{Admin: true}); err != nil {
			// Lost the race against a payment or another sweep; the next
			// pass will see the final state.
			w.logger.Warn("stale order not cancelled", "order_no", order.OrderNo, "err", err)
		}
	}
	return nil
}
