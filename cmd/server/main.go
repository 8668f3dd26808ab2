package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jhzhou002/card-shop/internal/config"
	"github.com/jhzhou002/card-shop/internal/database"
	"github.com/jhzhou002/card-shop/internal/domain"
	"github.com/jhzhou002/card-shop/internal/gateway"
	"github.com/jhzhou002/card-shop/internal/repo"
	"github.com/jhzhou002/card-shop/internal/server"
	"github.com/jhzhou002/card-shop/internal/service"
	"github.com/jhzhou002/card-shop/internal/worker"
	"github.com/shopspring/decimal"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load()

	db, err := database.NewPostgres(cfg.DSN())
	if err != nil {
		logger.Error("open database", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db); err != nil {
		logger.Error("migrate", "err", err)
		os.Exit(1)
	}

	goodRepo := repo.NewGoodRepo(db)
	cardRepo := repo.NewCardRepo(db)
	orderRepo := repo.NewOrderRepo(db)
	paymentRepo := repo.NewPaymentRepo(db)
	methodRepo := repo.NewMethodRepo(db)
	balanceRepo := repo.NewBalanceRepo(db)

	if err := seedMethods(ctx, methodRepo); err != nil {
		logger.Error("seed payment methods", "err", err)
		os.Exit(1)
	}

	// The mock provider accepts unsigned notifications; it is wired only in
	// tests, never here.
	providers := gateway.NewRegistry(
		gateway.NewWechatProvider(cfg.WechatAppID, cfg.WechatKey),
		gateway.NewAlipayProvider(cfg.AlipayAppID, cfg.AlipayKey),
	)

	catalogService := service.NewCatalogService(goodRepo, cardRepo, logger)
	orderService := service.NewOrderService(db, goodRepo, cardRepo, orderRepo, paymentRepo, balanceRepo, logger)
	paymentService := service.NewPaymentService(db, orderRepo, paymentRepo, methodRepo, cardRepo, balanceRepo, providers, cfg.PaymentExpiry, logger)
	reconcileService := service.NewReconcileService(db, orderRepo, paymentRepo, methodRepo, cardRepo, logger)
	balanceService := service.NewBalanceService(db, balanceRepo, logger)

	sweeper := worker.NewExpiryWorker(paymentRepo, orderRepo, orderService, cfg.SweepInterval, cfg.OrderTTL, logger)
	go sweeper.Run(ctx)

	srv := server.New(catalogService, orderService, paymentService, reconcileService, balanceService,
		providers, database.New(db), logger)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Router(cfg.CORSOrigins),
	}

	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve", "err", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "err", err)
	}
}

func seedMethods(ctx context.Context, methods repo.MethodRepo) error {
	defaults := []domain.PaymentMethod{
		{Code: "wechat", Name: "WeChat Pay", Provider: "wechat",
			MinAmount: decimal.NewFromFloat(0.01), Active: true},
		{Code: "alipay", Name: "Alipay", Provider: "alipay",
			MinAmount: decimal.NewFromFloat(0.01), Active: true},
		{Code: "balance", Name: "Account Balance", Provider: "balance",
			MinAmount: decimal.NewFromFloat(0.01), Active: true},
	}
	for i := range defaults {
		if existing, err := methods.FindByCode(ctx, defaults[i].Code); err != nil {
			return err
		} else if existing != nil {
			continue
		}
		if err := methods.Upsert(ctx, &defaults[i]); err != nil {
			return err
		}
	}
	return nil
}
