package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/jhzhou002/card-shop/internal/domain"
	"github.com/jhzhou002/card-shop/internal/repo"
	"github.com/shopspring/decimal"
)

// importBatchLimit caps one card import request. Bigger loads go through
// repeated requests; the insert itself is a single statement either way.
const importBatchLimit = 1000

type CreateGoodInput struct {
	Name     string
	Price    decimal.Decimal
	BuyLimit int
	Listed   bool
}

// GoodStock is one listed good together with its current unused-card count.
type GoodStock struct {
	Good  domain.Good
	Stock int
}

// CatalogService is the admin surface for goods and their card pools. Buyers
// never touch it; the order ledger only reads what it maintains.
type CatalogService interface {
	CreateGood(ctx context.Context, in CreateGoodInput) (*domain.Good, error)
	SetListed(ctx context.Context, goodID int64, listed bool) error
	ListGoods(ctx context.Context) ([]GoodStock, error)
	// ImportCards loads fresh secrets into the good's pool as unused stock.
	ImportCards(ctx context.Context, goodID int64, secrets []string) (int, error)
	// RetireStock expires the good's unused cards so nothing new can reserve
	// them. Orders already holding reservations are unaffected.
	RetireStock(ctx context.Context, goodID int64) (int64, error)
	Stock(ctx context.Context, goodID int64) (int, error)
}

type catalogService struct {
	goodRepo repo.GoodRepo
	cardRepo repo.CardRepo
	logger   *slog.Logger
}

func NewCatalogService(goodRepo repo.GoodRepo, cardRepo repo.CardRepo, logger *slog.Logger) CatalogService {
	return &catalogService{goodRepo: goodRepo, cardRepo: cardRepo, logger: logger}
}

func (s *catalogService) CreateGood(ctx context.Context, in CreateGoodInput) (*domain.Good, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, domain.Invalid("name", "must not be empty")
	}
	if !in.Price.IsPositive() {
		return nil, domain.Invalid("price", "must be positive")
	}
	if in.BuyLimit < 0 {
		return nil, domain.Invalid("buy_limit", "must not be negative")
	}

	good := &domain.Good{
		Name:     strings.TrimSpace(in.Name),
		Price:    in.Price,
		BuyLimit: in.BuyLimit,
		Status:   domain.GoodUnlisted,
	}
	if in.Listed {
		good.Status = domain.GoodListed
	}
	if err := s.goodRepo.Create(ctx, good); err != nil {
		return nil, err
	}
	s.logger.Info("good created", "good_id", good.ID, "name", good.Name, "price", good.Price.String())
	return good, nil
}

func (s *catalogService) SetListed(ctx context.Context, goodID int64, listed bool) error {
	status := domain.GoodUnlisted
	if listed {
		status = domain.GoodListed
	}
	ok, err := s.goodRepo.SetStatus(ctx, goodID, status)
	if err != nil {
		return err
	}
	if !ok {
		return domain.NotFound("good", "")
	}
	return nil
}

func (s *catalogService) ListGoods(ctx context.Context) ([]GoodStock, error) {
	goods, err := s.goodRepo.ListListed(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(goods))
	for _, g := range goods {
		ids = append(ids, g.ID)
	}
	counts, err := s.cardRepo.UnusedCounts(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]GoodStock, 0, len(goods))
	for _, g := range goods {
		out = append(out, GoodStock{Good: g, Stock: counts[g.ID]})
	}
	return out, nil
}

func (s *catalogService) ImportCards(ctx context.Context, goodID int64, secrets []string) (int, error) {
	if len(secrets) == 0 {
		return 0, domain.Invalid("cards", "must not be empty")
	}
	if len(secrets) > importBatchLimit {
		return 0, domain.Invalid("cards", "too many in one batch")
	}
	cleaned := make([]string, 0, len(secrets))
	for _, secret := range secrets {
		secret = strings.TrimSpace(secret)
		if secret == "" {
			return 0, domain.Invalid("cards", "blank secret in batch")
		}
		cleaned = append(cleaned, secret)
	}

	good, err := s.goodRepo.FindByID(ctx, goodID)
	if err != nil {
		return 0, err
	}
	if good == nil {
		return 0, domain.NotFound("good", "")
	}

	if err := s.cardRepo.BulkInsert(ctx, goodID, cleaned); err != nil {
		return 0, err
	}
	s.logger.Info("cards imported", "good_id", goodID, "count", len(cleaned))
	return len(cleaned), nil
}

func (s *catalogService) RetireStock(ctx context.Context, goodID int64) (int64, error) {
	good, err := s.goodRepo.FindByID(ctx, goodID)
	if err != nil {
		return 0, err
	}
	if good == nil {
		return 0, domain.NotFound("good", "")
	}

	n, err := s.cardRepo.ExpireUnused(ctx, goodID)
	if err != nil {
		return 0, err
	}
	s.logger.Info("stock retired", "good_id", goodID, "count", n)
	return n, nil
}

func (s *catalogService) Stock(ctx context.Context, goodID int64) (int, error) {
	good, err := s.goodRepo.FindByID(ctx, goodID)
	if err != nil {
		return 0, err
	}
	if good == nil {
		return 0, domain.NotFound("good", "")
	}
	return s.cardRepo.CountUnused(ctx, goodID)
}
