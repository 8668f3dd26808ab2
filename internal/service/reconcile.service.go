package service

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/jhzhou002/card-shop/internal/domain"
	"github.com/jhzhou002/card-shop/internal/repo"
)

// ReconcileService applies verified provider outcomes to the payment and
// order ledgers. Providers redeliver callbacks, so everything here must be
// idempotent; the payment row lock serializes work per payment number.
type ReconcileService interface {
	// ApplyNotification applies one verified callback. providerCode names the
	// provider whose signature was verified; it must be the provider the
	// payment was issued through, so one provider's valid signature can never
	// confirm another provider's payment.
	ApplyNotification(ctx context.Context, providerCode, paymentNo string, outcome domain.NotificationOutcome, tradeNo string) error
}

type reconcileService struct {
	db          *sql.DB
	orderRepo   repo.OrderRepo
	paymentRepo repo.PaymentRepo
	methodRepo  repo.MethodRepo
	cardRepo    repo.CardRepo
	logger      *slog.Logger
}

func NewReconcileService(
	db *sql.DB,
	orderRepo repo.OrderRepo,
	paymentRepo repo.PaymentRepo,
	methodRepo repo.MethodRepo,
	cardRepo repo.CardRepo,
	logger *slog.Logger,
) ReconcileService {
	return &reconcileService{
		db:          db,
		orderRepo:   orderRepo,
		paymentRepo: paymentRepo,
		methodRepo:  methodRepo,
		cardRepo:    cardRepo,
		logger:      logger,
	}
}

func (s *reconcileService) ApplyNotification(ctx context.Context, providerCode, paymentNo string, outcome domain.NotificationOutcome, tradeNo string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	payment, err := s.paymentRepo.LockByNo(ctx, tx, paymentNo)
	if err != nil {
		return err
	}
	if payment == nil {
		return domain.NotFound("payment", paymentNo)
	}

	method, err := s.methodRepo.FindByCode(ctx, payment.Method)
	if err != nil {
		return err
	}
	if method == nil || method.Provider != providerCode {
		return domain.Conflict(domain.ReasonCallbackConflict,
			"payment %s was not issued via %s", paymentNo, providerCode)
	}

	switch payment.Status {
	case domain.PaymentSuccess:
		if outcome == domain.OutcomeSuccess {
			// duplicate delivery, already applied
			return nil
		}
		return domain.Conflict(domain.ReasonCallbackConflict,
			"payment %s already succeeded, got %s", paymentNo, outcome)
	case domain.PaymentFailed:
		if outcome == domain.OutcomeFailure {
			return nil
		}
		return domain.Conflict(domain.ReasonCallbackConflict,
			"payment %s already failed, got %s", paymentNo, outcome)
	case domain.PaymentCancelled:
		return domain.Conflict(domain.ReasonCallbackConflict,
			"payment %s was cancelled, got %s", paymentNo, outcome)
	}

	// pending or expired from here
	if outcome == domain.OutcomeFailure {
		if payment.Status == domain.PaymentExpired {
			// the sweep already parked it; nothing left to record
			return nil
		}
		if ok, err := s.paymentRepo.MarkFailed(ctx, tx, payment.ID); err != nil {
			return err
		} else if !ok {
			return domain.InvariantViolation("locked payment %s not markable failed", paymentNo)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		s.logger.Info("payment failed", "payment_no", paymentNo, "trade_no", tradeNo)
		return nil
	}

	order, err := s.orderRepo.LockByID(ctx, tx, payment.OrderID)
	if err != nil {
		return err
	}
	if order == nil {
		return domain.InvariantViolation("payment %s references missing order %d", paymentNo, payment.OrderID)
	}
	if order.Status != domain.OrderPending {
		// Money moved but the order got cancelled or paid elsewhere in the
		// meantime. Abort and surface for an operator; never drop silently.
		return domain.Conflict(domain.ReasonCallbackConflict,
			"payment %s succeeded but order %s is %s", paymentNo, order.OrderNo, order.Status)
	}

	now := time.Now()
	if ok, err := s.paymentRepo.MarkSuccess(ctx, tx, payment.ID, tradeNo, now); err != nil {
		return err
	} else if !ok {
		return domain.InvariantViolation("locked payment %s not markable success", paymentNo)
	}

	if err := deliverOrder(ctx, tx, s.orderRepo, s.cardRepo, order, tradeNo, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.logger.Info("payment reconciled",
		"payment_no", paymentNo, "order_no", order.OrderNo, "trade_no", tradeNo)
	return nil
}

// deliverOrder flips a pending order to paid and makes its card claim
// permanent: reserved cards become used and order detail rows are written.
// Runs inside the caller's transaction with the order row locked.
func deliverOrder(ctx context.Context, tx *sql.Tx, orders repo.OrderRepo, cards repo.CardRepo, order *domain.Order, tradeNo string, paidAt time.Time) error {
	ok, err := orders.MarkPaid(ctx, tx, order.ID, tradeNo, paidAt)
	if err != nil {
		return err
	}
	if !ok {
		return domain.InvariantViolation("locked pending order %s not markable paid", order.OrderNo)
	}

	cardIDs, err := cards.ReservedIDs(ctx, tx, order.ID)
	if err != nil {
		return err
	}
	if len(cardIDs) != order.Quantity {
		return domain.InvariantViolation(
			"order %s has %d reserved cards, expected %d",
			order.OrderNo, len(cardIDs), order.Quantity)
	}

	if err := cards.Finalize(ctx, tx, cardIDs, order.ID); err != nil {
		return err
	}
	return orders.InsertDetails(ctx, tx, order.ID, cardIDs)
}
