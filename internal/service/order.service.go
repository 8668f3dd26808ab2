package service

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/jhzhou002/card-shop/internal/domain"
	"github.com/jhzhou002/card-shop/internal/repo"
)

// numberAttempts bounds the regenerate-on-collision loop for order and
// payment numbers. ULID collisions are vanishingly rare; two retries is
// already generous.
const numberAttempts = 3

const (
	minQuantity = 1
	maxQuantity = 100
)

type CreateOrderInput struct {
	GoodID      int64
	Quantity    int
	UserID      *int64 // nil = guest
	ContactInfo string
}

// Viewer identifies who is asking. Identity comes from the external auth
// collaborator; absence means guest.
type Viewer struct {
	UserID *int64
	Admin  bool
}

// Owns reports whether the viewer may act as the order's owner. For guest
// orders the order number itself is the capability, so a guest viewer owns
// any guest order it can name.
func (v Viewer) Owns(order *domain.Order) bool {
	if v.Admin {
		return true
	}
	if v.UserID != nil && order.UserID != nil {
		return *v.UserID == *order.UserID
	}
	return v.UserID == nil && order.UserID == nil
}

// OrderView is the read model for one order. Secrets is nil unless the viewer
// may see the card contents (owner or admin, order paid or later).
type OrderView struct {
	Order    *domain.Order
	Payments []domain.Payment
	Secrets  []string
}

type OrderService interface {
	Create(ctx context.Context, in CreateOrderInput) (*domain.Order, error)
	// Cancel aborts a pending order and releases its cards. Only the order's
	// owner or an admin may cancel; the expiry sweep cancels as admin.
	Cancel(ctx context.Context, orderNo string, viewer Viewer) error
	MarkDelivered(ctx context.Context, orderNo string) error
	MarkCompleted(ctx context.Context, orderNo string) error
	Refund(ctx context.Context, orderNo string) error
	GetDetail(ctx context.Context, orderNo string, viewer Viewer) (*OrderView, error)
	ListByUser(ctx context.Context, userID int64, status domain.OrderStatus, page, limit int) ([]domain.Order, int, error)
}

type orderService struct {
	db          *sql.DB
	goodRepo    repo.GoodRepo
	cardRepo    repo.CardRepo
	orderRepo   repo.OrderRepo
	paymentRepo repo.PaymentRepo
	balanceRepo repo.BalanceRepo
	logger      *slog.Logger
}

func NewOrderService(
	db *sql.DB,
	goodRepo repo.GoodRepo,
	cardRepo repo.CardRepo,
	orderRepo repo.OrderRepo,
	paymentRepo repo.PaymentRepo,
	balanceRepo repo.BalanceRepo,
	logger *slog.Logger,
) OrderService {
	return &orderService{
		db:          db,
		goodRepo:    goodRepo,
		cardRepo:    cardRepo,
		orderRepo:   orderRepo,
		paymentRepo: paymentRepo,
		balanceRepo: balanceRepo,
		logger:      logger,
	}
}

func (s *orderService) Create(ctx context.Context, in CreateOrderInput) (*domain.Order, error) {
	if in.Quantity < minQuantity || in.Quantity > maxQuantity {
		return nil, domain.Invalid("quantity", "must be between 1 and 100")
	}

	// A unique-violation on the order number poisons the whole transaction,
	// so the retry wraps the transaction, not just the insert.
	var lastErr error
	for attempt := 0; attempt < numberAttempts; attempt++ {
		order, err := s.createOnce(ctx, in)
		if err == nil {
			s.logger.Info("order created",
				"order_no", order.OrderNo, "good_id", order.GoodID,
				"quantity", order.Quantity, "total", order.TotalAmount.String())
			return order, nil
		}
		if !repo.IsUniqueViolation(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (s *orderService) createOnce(ctx context.Context, in CreateOrderInput) (*domain.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	good, err := s.goodRepo.FindByIDTx(ctx, tx, in.GoodID)
	if err != nil {
		return nil, err
	}
	if good == nil || !good.Listed() {
		return nil, domain.NotFound("good", "")
	}
	if good.BuyLimit > 0 && in.Quantity > good.BuyLimit {
		return nil, domain.Invalid("quantity", "exceeds the per-purchase limit")
	}

	order := &domain.Order{
		OrderNo:     domain.NewOrderNo(),
		UserID:      in.UserID,
		GoodID:      good.ID,
		GoodName:    good.Name,
		GoodPrice:   good.Price,
		Quantity:    in.Quantity,
		TotalAmount: domain.OrderTotal(good.Price, in.Quantity),
		ContactInfo: in.ContactInfo,
		Status:      domain.OrderPending,
	}
	if err := s.orderRepo.Create(ctx, tx, order); err != nil {
		return nil, err
	}

	reserved, err := s.cardRepo.Reserve(ctx, tx, good.ID, order.ID, in.Quantity)
	if err != nil {
		return nil, err
	}
	if len(reserved) < in.Quantity {
		// Rolling back returns our partial claim; report what a fresh caller
		// would see right now.
		remaining, err := s.cardRepo.CountUnusedTx(ctx, tx, good.ID)
		if err != nil {
			return nil, err
		}
		return nil, domain.InsufficientStock(remaining + len(reserved))
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *orderService) Cancel(ctx context.Context, orderNo string, viewer Viewer) error {
	order, err := s.orderRepo.FindByNo(ctx, orderNo)
	if err != nil {
		return err
	}
	if order == nil {
		return domain.NotFound("order", orderNo)
	}
	if !viewer.Owns(order) {
		return domain.Forbidden("cancel order " + orderNo)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	locked, err := s.orderRepo.LockByID(ctx, tx, order.ID)
	if err != nil {
		return err
	}
	if locked == nil || !locked.Status.CanTransition(domain.OrderCancelled) {
		return domain.Conflict(domain.ReasonIllegalTransition,
			"order %s cannot be cancelled", orderNo)
	}

	ok, err := s.orderRepo.UpdateStatus(ctx, tx, locked.ID, domain.OrderPending, domain.OrderCancelled)
	if err != nil {
		return err
	}
	if !ok {
		return domain.Conflict(domain.ReasonIllegalTransition,
			"order %s cannot be cancelled", orderNo)
	}
	if err := s.cardRepo.Release(ctx, tx, locked.ID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.logger.Info("order cancelled", "order_no", orderNo)
	return nil
}

func (s *orderService) MarkDelivered(ctx context.Context, orderNo string) error {
	return s.transition(ctx, orderNo, domain.OrderPaid, domain.OrderDelivered)
}

func (s *orderService) MarkCompleted(ctx context.Context, orderNo string) error {
	return s.transition(ctx, orderNo, domain.OrderDelivered, domain.OrderCompleted)
}

// transition performs a purely informational status flip with no inventory
// effect, guarded by the transition table and the conditional update.
func (s *orderService) transition(ctx context.Context, orderNo string, from, to domain.OrderStatus) error {
	order, err := s.orderRepo.FindByNo(ctx, orderNo)
	if err != nil {
		return err
	}
	if order == nil {
		return domain.NotFound("order", orderNo)
	}
	if !from.CanTransition(to) {
		return domain.InvariantViolation("transition %s -> %s is not in the table", from, to)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ok, err := s.orderRepo.UpdateStatus(ctx, tx, order.ID, from, to)
	if err != nil {
		return err
	}
	if !ok {
		return domain.Conflict(domain.ReasonIllegalTransition,
			"order %s is not %s", orderNo, from)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.logger.Info("order transitioned", "order_no", orderNo, "from", from, "to", to)
	return nil
}

// Refund flips a paid or delivered order to refunded and credits the buyer's
// balance when the order has an owner. Cards never return to the pool: once
// delivered the secrets are burned.
func (s *orderService) Refund(ctx context.Context, orderNo string) error {
	order, err := s.orderRepo.FindByNo(ctx, orderNo)
	if err != nil {
		return err
	}
	if order == nil {
		return domain.NotFound("order", orderNo)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	locked, err := s.orderRepo.LockByID(ctx, tx, order.ID)
	if err != nil {
		return err
	}
	if locked == nil || !locked.Status.CanTransition(domain.OrderRefunded) {
		return domain.Conflict(domain.ReasonIllegalTransition,
			"order %s cannot be refunded", orderNo)
	}

	ok, err := s.orderRepo.UpdateStatus(ctx, tx, locked.ID, locked.Status, domain.OrderRefunded)
	if err != nil {
		return err
	}
	if !ok {
		return domain.Conflict(domain.ReasonIllegalTransition,
			"order %s cannot be refunded", orderNo)
	}

	if locked.UserID != nil {
		_, err := creditBalance(ctx, tx, s.balanceRepo, *locked.UserID,
			locked.TotalAmount, domain.BalanceRefund,
			"refund for order "+locked.OrderNo, &locked.ID)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.logger.Info("order refunded", "order_no", orderNo)
	return nil
}

func (s *orderService) GetDetail(ctx context.Context, orderNo string, viewer Viewer) (*OrderView, error) {
	order, err := s.orderRepo.FindByNo(ctx, orderNo)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.NotFound("order", orderNo)
	}

	payments, err := s.paymentRepo.ListByOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	view := &OrderView{Order: order, Payments: payments}

	owner := viewer.Owns(order)
	if owner && order.Status.SecretsVisible() {
		secrets, err := s.cardRepo.SecretsByOrder(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		view.Secrets = secrets
	}
	if !owner {
		// don't leak buyer identity or contact info to strangers holding the
		// order number
		order.UserID = nil
		order.ContactInfo = ""
	}
	return view, nil
}

func (s *orderService) ListByUser(ctx context.Context, userID int64, status domain.OrderStatus, page, limit int) ([]domain.Order, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}
	return s.orderRepo.ListByUser(ctx, userID, status, (page-1)*limit, limit)
}
