package account

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/spinhouse/coinledger/internal/apperror"
	"github.com/spinhouse/coinledger/internal/auth"
)

// Handler provides read endpoints for account balances and history.
type Handler struct {
	service *Service
}

// NewHandler creates a new account handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up account routes. All require authentication.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/accounts/:id/balance", h.balance)
	r.GET("/accounts/:id/history", h.history)
}

// balance handles GET /api/v1/accounts/:id/balance
func (h *Handler) balance(c *gin.Context) {
	id, ok := h.authorize(c)
	if !ok {
		return
	}

	a, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeKind(c, apperror.NotFound, "account not found")
			return
		}
		writeKind(c, apperror.Internal, "account lookup failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"accountId": a.ID,
		"balance":   a.Balance,
		"status":    a.Status,
		"txCode":    a.TxCode,
	})
}

// history handles GET /api/v1/accounts/:id/history
func (h *Handler) history(c *gin.Context) {
	id, ok := h.authorize(c)
	if !ok {
		return
	}

	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	entries, err := h.service.History(c.Request.Context(), id, limit)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeKind(c, apperror.NotFound, "account not found")
			return
		}
		writeKind(c, apperror.Internal, "history lookup failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": entries, "count": len(entries)})
}

// authorize resolves the caller and enforces the self-or-admin rule.
func (h *Handler) authorize(c *gin.Context) (string, bool) {
	if _, ok := auth.IdentityFrom(c); !ok {
		writeKind(c, apperror.Unauthenticated, "authentication required")
		return "", false
	}
	target := c.Param("id")
	if !auth.CanAccessUser(c, target) {
		writeKind(c, apperror.PermissionDenied, "cannot view another user's account")
		return "", false
	}
	return target, true
}

func writeKind(c *gin.Context, kind apperror.Kind, msg string) {
	c.JSON(kind.HTTPStatus(), gin.H{
		"error":   kind.String(),
		"message": msg,
	})
}
