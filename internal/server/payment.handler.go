package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jhzhou002/card-shop/internal/domain"
	"github.com/jhzhou002/card-shop/internal/service"
	"github.com/shopspring/decimal"
)

func (s *Server) handlePaymentMethods(c *gin.Context) {
	methods, err := s.payments.Methods(c.Request.Context())
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	out := make([]gin.H, 0, len(methods))
	for _, m := range methods {
		out = append(out, gin.H{
			"code":       m.Code,
			"name":       m.Name,
			"min_amount": m.MinAmount,
			"max_amount": m.MaxAmount,
			"fee_rate":   m.FeeRate,
		})
	}
	ok(c, out)
}

type createPaymentRequest struct {
	OrderNo string `json:"order_no" binding:"required"`
	Method  string `json:"method" binding:"required"`
	Amount  string `json:"amount" binding:"required"`
}

func (s *Server) handleCreatePayment(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, s.logger, domain.Invalid("body", "malformed request"))
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		fail(c, s.logger, domain.Invalid("amount", "not a decimal"))
		return
	}

	intent, err := s.payments.CreatePayment(c.Request.Context(), service.CreatePaymentInput{
		OrderNo: req.OrderNo,
		Method:  req.Method,
		Amount:  amount,
		UserID:  viewer(c).UserID,
	})
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	created(c, intent)
}

func (s *Server) handleCancelPayment(c *gin.Context) {
	if err := s.payments.Cancel(c.Request.Context(), c.Param("paymentNo"), viewer(c)); err != nil {
		fail(c, s.logger, err)
		return
	}
	ok(c, nil)
}

func (s *Server) handlePaymentStatus(c *gin.Context) {
	payment, err := s.payments.Status(c.Request.Context(), c.Param("paymentNo"))
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	ok(c, gin.H{
		"payment_no": payment.PaymentNo,
		"status":     payment.Status,
		"amount":     payment.Amount,
		"expires_at": payment.ExpiresAt,
		"paid_at":    payment.PaidAt,
	})
}

// handleNotify receives provider callbacks. The provider adapter verifies the
// signature before anything reaches reconciliation, and duplicate deliveries
// are acknowledged with 200 so the provider stops retrying.
func (s *Server) handleNotify(c *gin.Context) {
	provider, okProvider := s.providers.Get(c.Param("provider"))
	if !okProvider {
		fail(c, s.logger, domain.NotFound("provider", c.Param("provider")))
		return
	}

	params := map[string]string{}
	if err := c.Request.ParseForm(); err == nil {
		for k, v := range c.Request.PostForm {
			if len(v) > 0 {
				params[k] = v[0]
			}
		}
	}
	if len(params) == 0 {
		if err := c.ShouldBindJSON(&params); err != nil {
			fail(c, s.logger, domain.Invalid("body", "malformed notification"))
			return
		}
	}

	notification, err := provider.VerifyNotification(params)
	if err != nil {
		fail(c, s.logger, err)
		return
	}

	err = s.reconcile.ApplyNotification(c.Request.Context(), provider.Code(),
		notification.PaymentNo, notification.Outcome, notification.TradeNo)
	if err != nil {
		var conflictErr *domain.ConflictError
		if errors.As(err, &conflictErr) {
			// real conflict, operator needs to look; the provider keeps its
			// record, we keep ours
			c.JSON(http.StatusConflict, gin.H{"success": false, "message": conflictErr.Message})
			return
		}
		fail(c, s.logger, err)
		return
	}
	ok(c, nil)
}

type rechargeRequest struct {
	Amount string `json:"amount" binding:"required"`
}

func (s *Server) handleRecharge(c *gin.Context) {
	v := viewer(c)
	if v.UserID == nil {
		fail(c, s.logger, domain.Invalid("user", "authentication required"))
		return
	}
	var req rechargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, s.logger, domain.Invalid("body", "malformed request"))
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		fail(c, s.logger, domain.Invalid("amount", "not a decimal"))
		return
	}

	rec, err := s.balances.Recharge(c.Request.Context(), *v.UserID, amount, "balance recharge")
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	created(c, gin.H{
		"type":           rec.Type,
		"amount":         rec.Amount,
		"balance_after":  rec.BalanceAfter,
		"balance_before": rec.BalanceBefore,
	})
}

func (s *Server) handleBalanceRecords(c *gin.Context) {
	v := viewer(c)
	if v.UserID == nil {
		fail(c, s.logger, domain.Invalid("user", "authentication required"))
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	records, err := s.balances.Records(c.Request.Context(), *v.UserID, page, limit)
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	ok(c, records)
}
