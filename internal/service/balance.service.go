package service

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/jhzhou002/card-shop/internal/domain"
	"github.com/jhzhou002/card-shop/internal/repo"
	"github.com/shopspring/decimal"
)

type BalanceService interface {
	Recharge(ctx context.Context, userID int64, amount decimal.Decimal, description string) (*domain.BalanceRecord, error)
	Reward(ctx context.Context, userID int64, amount decimal.Decimal, description string) (*domain.BalanceRecord, error)
	Records(ctx context.Context, userID int64, page, limit int) ([]domain.BalanceRecord, error)
}

type balanceService struct {
	db          *sql.DB
	balanceRepo repo.BalanceRepo
	logger      *slog.Logger
}

func NewBalanceService(db *sql.DB, balanceRepo repo.BalanceRepo, logger *slog.Logger) BalanceService {
	return &balanceService{db: db, balanceRepo: balanceRepo, logger: logger}
}

func (s *balanceService) Recharge(ctx context.Context, userID int64, amount decimal.Decimal, description string) (*domain.BalanceRecord, error) {
	return s.credit(ctx, userID, amount, domain.BalanceRecharge, description)
}

func (s *balanceService) Reward(ctx context.Context, userID int64, amount decimal.Decimal, description string) (*domain.BalanceRecord, error) {
	return s.credit(ctx, userID, amount, domain.BalanceReward, description)
}

func (s *balanceService) credit(ctx context.Context, userID int64, amount decimal.Decimal, typ domain.BalanceRecordType, description string) (*domain.BalanceRecord, error) {
	if !amount.IsPositive() {
		return nil, domain.Invalid("amount", "must be positive")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rec, err := creditBalance(ctx, tx, s.balanceRepo, userID, amount, typ, description, nil)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	s.logger.Info("balance credited",
		"user_id", userID, "type", typ, "amount", amount.String())
	return rec, nil
}

func (s *balanceService) Records(ctx context.Context, userID int64, page, limit int) ([]domain.BalanceRecord, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}
	return s.balanceRepo.ListRecords(ctx, userID, (page-1)*limit, limit)
}

// creditBalance appends a balance record and moves the user's balance up,
// all under the user's row lock. Shared by recharge, reward and refund paths.
func creditBalance(ctx context.Context, tx *sql.Tx, balances repo.BalanceRepo, userID int64, amount decimal.Decimal, typ domain.BalanceRecordType, description string, relatedID *int64) (*domain.BalanceRecord, error) {
	user, err := balances.LockUser(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.NotFound("user", "")
	}

	after := user.Balance.Add(amount)
	if err := balances.UpdateBalance(ctx, tx, userID, after); err != nil {
		return nil, err
	}

	rec := &domain.BalanceRecord{
		UserID:        userID,
		Type:          typ,
		Amount:        amount,
		BalanceBefore: user.Balance,
		BalanceAfter:  after,
		Description:   description,
		RelatedID:     relatedID,
	}
	if err := balances.InsertRecord(ctx, tx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// debitBalance appends a consume record and moves the user's balance down.
// Fails with a conflict when the balance cannot cover the amount.
func debitBalance(ctx context.Context, tx *sql.Tx, balances repo.BalanceRepo, userID int64, amount decimal.Decimal, description string, relatedID *int64) (*domain.BalanceRecord, error) {
	user, err := balances.LockUser(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.NotFound("user", "")
	}
	if user.Balance.LessThan(amount) {
		return nil, domain.Conflict(domain.ReasonBalanceTooLow, "balance cannot cover the amount")
	}

	after := user.Balance.Sub(amount)
	if err := balances.UpdateBalance(ctx, tx, userID, after); err != nil {
		return nil, err
	}

	rec := &domain.BalanceRecord{
		UserID:        userID,
		Type:          domain.BalanceConsume,
		Amount:        amount.Neg(),
		BalanceBefore: user.Balance,
		BalanceAfter:  after,
		Description:   description,
		RelatedID:     relatedID,
	}
	if err := balances.InsertRecord(ctx, tx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}
