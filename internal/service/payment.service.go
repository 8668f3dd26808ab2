package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jhzhou002/card-shop/internal/domain"
	"github.com/jhzhou002/card-shop/internal/gateway"
	"github.com/jhzhou002/card-shop/internal/repo"
	"github.com/shopspring/decimal"
)

// balanceProvider is the pseudo provider code for paying with stored value.
// It settles synchronously; no gateway round trip, no callback.
const balanceProvider = "balance"

type CreatePaymentInput struct {
	OrderNo string
	Method  string
	Amount  decimal.Decimal
	UserID  *int64
}

type PaymentService interface {
	Methods(ctx context.Context) ([]domain.PaymentMethod, error)
	CreatePayment(ctx context.Context, in CreatePaymentInput) (*domain.PaymentIntent, error)
	// Cancel abandons a pending payment attempt. The order stays pending and
	// payable by a fresh attempt; a provider callback arriving for the
	// cancelled attempt is a conflict, never a silent apply.
	Cancel(ctx context.Context, paymentNo string, viewer Viewer) error
	Status(ctx context.Context, paymentNo string) (*domain.Payment, error)
}

type paymentService struct {
	db          *sql.DB
	orderRepo   repo.OrderRepo
	paymentRepo repo.PaymentRepo
	methodRepo  repo.MethodRepo
	cardRepo    repo.CardRepo
	balanceRepo repo.BalanceRepo
	providers   *gateway.Registry
	expiry      time.Duration
	logger      *slog.Logger
}

func NewPaymentService(
	db *sql.DB,
	orderRepo repo.OrderRepo,
	paymentRepo repo.PaymentRepo,
	methodRepo repo.MethodRepo,
	cardRepo repo.CardRepo,
	balanceRepo repo.BalanceRepo,
	providers *gateway.Registry,
	expiry time.Duration,
	logger *slog.Logger,
) PaymentService {
	return &paymentService{
		db:          db,
		orderRepo:   orderRepo,
		paymentRepo: paymentRepo,
		methodRepo:  methodRepo,
		cardRepo:    cardRepo,
		balanceRepo: balanceRepo,
		providers:   providers,
		expiry:      expiry,
		logger:      logger,
	}
}

func (s *paymentService) Methods(ctx context.Context) ([]domain.PaymentMethod, error) {
	return s.methodRepo.ListActive(ctx)
}

func (s *paymentService) CreatePayment(ctx context.Context, in CreatePaymentInput) (*domain.PaymentIntent, error) {
	order, err := s.orderRepo.FindByNo(ctx, in.OrderNo)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.NotFound("order", in.OrderNo)
	}
	if order.Status != domain.OrderPending {
		return nil, domain.Conflict(domain.ReasonOrderNotPayable,
			"order %s is %s", in.OrderNo, order.Status)
	}
	// Exact decimal equality; the message never echoes the correct total.
	if !in.Amount.Equal(order.TotalAmount) {
		return nil, domain.Conflict(domain.ReasonAmountMismatch,
			"amount does not match the order")
	}

	method, err := s.methodRepo.FindByCode(ctx, in.Method)
	if err != nil {
		return nil, err
	}
	if method == nil || !method.Accepts(in.Amount) {
		return nil, domain.Conflict(domain.ReasonMethodUnavailable,
			"payment method is not available for this order")
	}

	if method.Provider == balanceProvider {
		return s.payWithBalance(ctx, order, method, in)
	}

	provider, ok := s.providers.Get(method.Provider)
	if !ok {
		return nil, domain.Conflict(domain.ReasonMethodUnavailable,
			"payment method is not available for this order")
	}

	payment, err := s.createPaymentRow(ctx, order, method, in.Amount)
	if err != nil {
		return nil, err
	}

	intent, err := provider.CreateIntent(ctx, payment, order)
	if err != nil {
		// The pending row stays and will be swept to expired; the buyer can
		// retry with a fresh attempt.
		return nil, err
	}
	if data, err := json.Marshal(intent); err == nil {
		if err := s.paymentRepo.UpdateIntentData(ctx, payment.ID, string(data)); err != nil {
			return nil, err
		}
	}

	s.logger.Info("payment intent created",
		"payment_no", payment.PaymentNo, "order_no", order.OrderNo,
		"method", method.Code, "amount", in.Amount.String())
	return intent, nil
}

func (s *paymentService) createPaymentRow(ctx context.Context, order *domain.Order, method *domain.PaymentMethod, amount decimal.Decimal) (*domain.Payment, error) {
	var lastErr error
	for attempt := 0; attempt < numberAttempts; attempt++ {
		payment := &domain.Payment{
			PaymentNo: domain.NewPaymentNo(),
			OrderID:   order.ID,
			Method:    method.Code,
			Amount:    amount,
			Status:    domain.PaymentPending,
			ExpiresAt: time.Now().Add(s.expiry),
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, err
		}
		if err := s.paymentRepo.Create(ctx, tx, payment); err != nil {
			tx.Rollback()
			if repo.IsUniqueViolation(err) {
				lastErr = err
				continue
			}
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return payment, nil
	}
	return nil, lastErr
}

// payWithBalance settles the payment synchronously: debit, payment success,
// order paid and card delivery commit or roll back together.
func (s *paymentService) payWithBalance(ctx context.Context, order *domain.Order, method *domain.PaymentMethod, in CreatePaymentInput) (*domain.PaymentIntent, error) {
	if in.UserID == nil || order.UserID == nil || *in.UserID != *order.UserID {
		return nil, domain.Conflict(domain.ReasonMethodUnavailable,
			"balance payment requires the order's owner")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	locked, err := s.orderRepo.LockByID(ctx, tx, order.ID)
	if err != nil {
		return nil, err
	}
	if locked == nil || locked.Status != domain.OrderPending {
		return nil, domain.Conflict(domain.ReasonOrderNotPayable,
			"order %s is no longer payable", order.OrderNo)
	}

	payment := &domain.Payment{
		PaymentNo: domain.NewPaymentNo(),
		OrderID:   order.ID,
		Method:    method.Code,
		Amount:    in.Amount,
		Status:    domain.PaymentPending,
		ExpiresAt: time.Now().Add(s.expiry),
	}
	if err := s.paymentRepo.Create(ctx, tx, payment); err != nil {
		return nil, err
	}

	if _, err := debitBalance(ctx, tx, s.balanceRepo, *in.UserID, in.Amount,
		"payment for order "+order.OrderNo, &payment.ID); err != nil {
		return nil, err
	}

	now := time.Now()
	tradeNo := "BAL-" + payment.PaymentNo
	if ok, err := s.paymentRepo.MarkSuccess(ctx, tx, payment.ID, tradeNo, now); err != nil {
		return nil, err
	} else if !ok {
		return nil, domain.InvariantViolation("fresh payment %s not markable", payment.PaymentNo)
	}

	if err := deliverOrder(ctx, tx, s.orderRepo, s.cardRepo, locked, tradeNo, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	s.logger.Info("order paid from balance",
		"payment_no", payment.PaymentNo, "order_no", order.OrderNo,
		"amount", in.Amount.String())
	return &domain.PaymentIntent{
		PaymentNo: payment.PaymentNo,
		ExpiresAt: payment.ExpiresAt,
	}, nil
}

func (s *paymentService) Cancel(ctx context.Context, paymentNo string, viewer Viewer) error {
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
	if payment.Status != domain.PaymentPending {
		return domain.Conflict(domain.ReasonIllegalTransition,
			"payment %s is %s", paymentNo, payment.Status)
	}

	order, err := s.orderRepo.LockByID(ctx, tx, payment.OrderID)
	if err != nil {
		return err
	}
	if order == nil {
		return domain.InvariantViolation("payment %s references missing order %d", paymentNo, payment.OrderID)
	}
	if !viewer.Owns(order) {
		return domain.Forbidden("cancel payment " + paymentNo)
	}

	if ok, err := s.paymentRepo.MarkCancelled(ctx, tx, payment.ID); err != nil {
		return err
	} else if !ok {
		return domain.InvariantViolation("locked payment %s not markable cancelled", paymentNo)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.logger.Info("payment cancelled", "payment_no", paymentNo, "order_no", order.OrderNo)
	return nil
}

func (s *paymentService) Status(ctx context.Context, paymentNo string) (*domain.Payment, error) {
	payment, err := s.paymentRepo.FindByNo(ctx, paymentNo)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, domain.NotFound("payment", paymentNo)
	}
	return payment, nil
}
