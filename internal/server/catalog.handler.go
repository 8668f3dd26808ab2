package server

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jhzhou002/card-shop/internal/domain"
	"github.com/jhzhou002/card-shop/internal/service"
	"github.com/shopspring/decimal"
)

func (s *Server) handleListGoods(c *gin.Context) {
	goods, err := s.catalog.ListGoods(c.Request.Context())
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	out := make([]gin.H, 0, len(goods))
	for _, g := range goods {
		out = append(out, gin.H{
			"id":        g.Good.ID,
			"name":      g.Good.Name,
			"price":     g.Good.Price,
			"buy_limit": g.Good.BuyLimit,
			"stock":     g.Stock,
		})
	}
	ok(c, out)
}

type createGoodRequest struct {
	Name     string `json:"name" binding:"required"`
	Price    string `json:"price" binding:"required"`
	BuyLimit int    `json:"buy_limit"`
	Listed   bool   `json:"listed"`
}

func (s *Server) handleCreateGood(c *gin.Context) {
	var req createGoodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, s.logger, domain.Invalid("body", "malformed request"))
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		fail(c, s.logger, domain.Invalid("price", "not a decimal"))
		return
	}

	good, err := s.catalog.CreateGood(c.Request.Context(), service.CreateGoodInput{
		Name:     req.Name,
		Price:    price,
		BuyLimit: req.BuyLimit,
		Listed:   req.Listed,
	})
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	created(c, gin.H{"id": good.ID, "name": good.Name, "price": good.Price})
}

type listGoodRequest struct {
	Listed bool `json:"listed"`
}

func (s *Server) handleSetGoodListed(c *gin.Context) {
	goodID, err := strconv.ParseInt(c.Param("goodID"), 10, 64)
	if err != nil {
		fail(c, s.logger, domain.Invalid("good_id", "not a number"))
		return
	}
	var req listGoodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, s.logger, domain.Invalid("body", "malformed request"))
		return
	}
	if err := s.catalog.SetListed(c.Request.Context(), goodID, req.Listed); err != nil {
		fail(c, s.logger, err)
		return
	}
	ok(c, nil)
}

type importCardsRequest struct {
	Cards []string `json:"cards" binding:"required"`
}

func (s *Server) handleImportCards(c *gin.Context) {
	goodID, err := strconv.ParseInt(c.Param("goodID"), 10, 64)
	if err != nil {
		fail(c, s.logger, domain.Invalid("good_id", "not a number"))
		return
	}
	var req importCardsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, s.logger, domain.Invalid("body", "malformed request"))
		return
	}

	n, err := s.catalog.ImportCards(c.Request.Context(), goodID, req.Cards)
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	created(c, gin.H{"imported": n})
}

func (s *Server) handleRetireStock(c *gin.Context) {
	goodID, err := strconv.ParseInt(c.Param("goodID"), 10, 64)
	if err != nil {
		fail(c, s.logger, domain.Invalid("good_id", "not a number"))
		return
	}
	n, err := s.catalog.RetireStock(c.Request.Context(), goodID)
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	ok(c, gin.H{"retired": n})
}
