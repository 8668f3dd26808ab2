package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jhzhou002/card-shop/internal/domain"
	"github.com/jhzhou002/card-shop/internal/gateway"
)

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "ok", "data": data})
}

func created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": "created", "data": data})
}

// fail maps the domain error taxonomy onto HTTP. Invariant violations are a
// locking bug: log loud, answer vague.
func fail(c *gin.Context, logger *slog.Logger, err error) {
	var (
		validationErr *domain.ValidationError
		permissionErr *domain.PermissionError
		notFoundErr   *domain.NotFoundError
		conflictErr   *domain.ConflictError
		invariantErr  *domain.InvariantViolationError
	)
	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": validationErr.Error()})
	case errors.As(err, &permissionErr):
		c.JSON(http.StatusForbidden, gin.H{"success": false, "message": permissionErr.Error()})
	case errors.As(err, &notFoundErr):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": notFoundErr.Error()})
	case errors.As(err, &conflictErr):
		body := gin.H{"success": false, "message": conflictErr.Message, "reason": conflictErr.Reason}
		if conflictErr.Reason == domain.ReasonInsufficientStock {
			body["available"] = conflictErr.Available
		}
		c.JSON(http.StatusConflict, body)
	case errors.As(err, &invariantErr):
		logger.Error("invariant violation", "err", invariantErr.Message, "invariant", true)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "internal error"})
	case errors.Is(err, gateway.ErrBadSignature):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "bad signature"})
	default:
		logger.Error("request failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "internal error"})
	}
}
