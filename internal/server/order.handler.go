package server

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jhzhou002/card-shop/internal/domain"
	"github.com/jhzhou002/card-shop/internal/service"
)

type createOrderRequest struct {
	GoodID      int64  `json:"good_id" binding:"required"`
	Quantity    int    `json:"quantity"`
	ContactInfo string `json:"contact_info"`
}

func (s *Server) handleCreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, s.logger, domain.Invalid("body", "malformed request"))
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	order, err := s.orders.Create(c.Request.Context(), service.CreateOrderInput{
		GoodID:      req.GoodID,
		Quantity:    req.Quantity,
		UserID:      viewer(c).UserID,
		ContactInfo: req.ContactInfo,
	})
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	created(c, gin.H{
		"order_no":     order.OrderNo,
		"total_amount": order.TotalAmount,
		"created_at":   order.CreatedAt,
	})
}

func (s *Server) handleOrderDetail(c *gin.Context) {
	view, err := s.orders.GetDetail(c.Request.Context(), c.Param("orderNo"), viewer(c))
	if err != nil {
		fail(c, s.logger, err)
		return
	}

	body := gin.H{
		"order_no":     view.Order.OrderNo,
		"good_name":    view.Order.GoodName,
		"good_price":   view.Order.GoodPrice,
		"quantity":     view.Order.Quantity,
		"total_amount": view.Order.TotalAmount,
		"status":       view.Order.Status,
		"created_at":   view.Order.CreatedAt,
		"payments":     paymentSummaries(view.Payments),
	}
	if view.Secrets != nil {
		body["cards"] = view.Secrets
	}
	ok(c, body)
}

func paymentSummaries(payments []domain.Payment) []gin.H {
	out := make([]gin.H, 0, len(payments))
	for _, p := range payments {
		out = append(out, gin.H{
			"payment_no": p.PaymentNo,
			"method":     p.Method,
			"amount":     p.Amount,
			"status":     p.Status,
			"paid_at":    p.PaidAt,
		})
	}
	return out
}

func (s *Server) handleListOrders(c *gin.Context) {
	v := viewer(c)
	if v.UserID == nil {
		fail(c, s.logger, domain.Invalid("user", "authentication required"))
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	status := domain.OrderStatus(c.Query("status"))

	orders, total, err := s.orders.ListByUser(c.Request.Context(), *v.UserID, status, page, limit)
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	ok(c, gin.H{"rows": orders, "total": total, "page": page, "limit": limit})
}

func (s *Server) handleCancelOrder(c *gin.Context) {
	if err := s.orders.Cancel(c.Request.Context(), c.Param("orderNo"), viewer(c)); err != nil {
		fail(c, s.logger, err)
		return
	}
	ok(c, nil)
}

func (s *Server) handleDeliverOrder(c *gin.Context) {
	if err := s.orders.MarkDelivered(c.Request.Context(), c.Param("orderNo")); err != nil {
		fail(c, s.logger, err)
		return
	}
	ok(c, nil)
}

func (s *Server) handleCompleteOrder(c *gin.Context) {
	if err := s.orders.MarkCompleted(c.Request.Context(), c.Param("orderNo")); err != nil {
		fail(c, s.logger, err)
		return
	}
	ok(c, nil)
}

func (s *Server) handleRefundOrder(c *gin.Context) {
	if err := s.orders.Refund(c.Request.Context(), c.Param("orderNo")); err != nil {
		fail(c, s.logger, err)
		return
	}
	ok(c, nil)
}
