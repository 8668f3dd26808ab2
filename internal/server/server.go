package server

import (
	"log/slog"
	"strconv"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jhzhou002/card-shop/internal/database"
	"github.com/jhzhou002/card-shop/internal/gateway"
	"github.com/jhzhou002/card-shop/internal/service"
)

type Server struct {
	catalog   service.CatalogService
	orders    service.OrderService
	payments  service.PaymentService
	reconcile service.ReconcileService
	balances  service.BalanceService
	providers *gateway.Registry
	health    database.Service
	logger    *slog.Logger
}

func New(
	catalog service.CatalogService,
	orders service.OrderService,
	payments service.PaymentService,
	reconcile service.ReconcileService,
	balances service.BalanceService,
	providers *gateway.Registry,
	health database.Service,
	logger *slog.Logger,
) *Server {
	return &Server{
		catalog:   catalog,
		orders:    orders,
		payments:  payments,
		reconcile: reconcile,
		balances:  balances,
		providers: providers,
		health:    health,
		logger:    logger,
	}
}

func (s *Server) Router(corsOrigins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins: corsOrigins,
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Content-Type", "X-User-ID", "X-Admin"},
	}))

	r.GET("/health", s.handleHealth)

	api := r.Group("/api")
	{
		api.GET("/goods", s.handleListGoods)

		api.POST("/orders", s.handleCreateOrder)
		api.GET("/orders", s.handleListOrders)
		api.GET("/orders/:orderNo", s.handleOrderDetail)
		api.POST("/orders/:orderNo/cancel", s.handleCancelOrder)
		api.POST("/orders/:orderNo/complete", s.handleCompleteOrder)

		api.GET("/payment-methods", s.handlePaymentMethods)
		api.POST("/payments", s.handleCreatePayment)
		api.GET("/payments/:paymentNo", s.handlePaymentStatus)
		api.POST("/payments/:paymentNo/cancel", s.handleCancelPayment)
		api.POST("/notify/:provider", s.handleNotify)

		api.POST("/balance/recharge", s.handleRecharge)
		api.GET("/balance/records", s.handleBalanceRecords)
	}

	admin := r.Group("/api/admin", s.requireAdmin)
	{
		admin.POST("/goods", s.handleCreateGood)
		admin.POST("/goods/:goodID/listed", s.handleSetGoodListed)
		admin.POST("/goods/:goodID/cards", s.handleImportCards)
		admin.POST("/goods/:goodID/retire", s.handleRetireStock)
		admin.POST("/orders/:orderNo/deliver", s.handleDeliverOrder)
		admin.POST("/orders/:orderNo/refund", s.handleRefundOrder)
	}
	return r
}

func (s *Server) requireAdmin(c *gin.Context) {
	if !viewer(c).Admin {
		c.AbortWithStatusJSON(403, gin.H{"success": false, "message": "admin required"})
		return
	}
	c.Next()
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(200, s.health.Health())
}

// viewer extracts the caller's identity supplied by the auth collaborator in
// front of this service. No header means guest.
func viewer(c *gin.Context) service.Viewer {
	v := service.Viewer{Admin: c.GetHeader("X-Admin") == "true"}
	if raw := c.GetHeader("X-User-ID"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			v.UserID = &id
		}
	}
	return v
}
