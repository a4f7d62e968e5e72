package transfer

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/spinhouse/coinledger/internal/apperror"
	"github.com/spinhouse/coinledger/internal/auth"
)

// Handler provides HTTP endpoints for transfer operations.
type Handler struct {
	validator *Validator
	executor  *Executor
	stats     *StatsService
}

// NewHandler creates a new transfer handler.
func NewHandler(validator *Validator, executor *Executor, stats *StatsService) *Handler {
	return &Handler{validator: validator, executor: executor, stats: stats}
}

// RegisterRoutes sets up transfer routes. All require authentication.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/transfers/validate", h.ValidateTransfer)
	r.POST("/transfers/execute", h.ExecuteTransfer)
	r.GET("/stats", h.UserStats)
}

type validateRequest struct {
	RecipientTxCode string `json:"recipientTxCode"`
	// Amount accepts a JSON number; strings are rejected at bind time.
	Amount json.Number `json:"amount"`
}

// ValidateTransfer handles POST /api/v1/transfers/validate
func (h *Handler) ValidateTransfer(c *gin.Context) {
	id, ok := auth.IdentityFrom(c)
	if !ok {
		writeKind(c, apperror.Unauthenticated, "authentication required")
		return
	}

	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeKind(c, apperror.InvalidArgument, "invalid request body")
		return
	}

	res, err := h.validator.Validate(c.Request.Context(), id.UserID, req.RecipientTxCode, req.Amount.String())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type executeRequest struct {
	TransactionID string `json:"transactionId"`
}

// ExecuteTransfer handles POST /api/v1/transfers/execute
func (h *Handler) ExecuteTransfer(c *gin.Context) {
	id, ok := auth.IdentityFrom(c)
	if !ok {
		writeKind(c, apperror.Unauthenticated, "authentication required")
		return
	}

	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.TransactionID == "" {
		writeKind(c, apperror.InvalidArgument, "transactionId is required")
		return
	}

	meta := Meta{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
	res, err := h.executor.Execute(c.Request.Context(), id.UserID, req.TransactionID, meta)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// UserStats handles GET /api/v1/stats[?userId=]
func (h *Handler) UserStats(c *gin.Context) {
	id, ok := auth.IdentityFrom(c)
	if !ok {
		writeKind(c, apperror.Unauthenticated, "authentication required")
		return
	}

	target := c.Query("userId")
	if target == "" {
		target = id.UserID
	}
	if target != id.UserID && !id.IsAdmin() {
		writeKind(c, apperror.PermissionDenied, "cannot view another user's stats")
		return
	}

	stats, err := h.stats.UserStats(c.Request.Context(), target)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func writeError(c *gin.Context, err error) {
	kind := apperror.KindOf(err)
	c.JSON(kind.HTTPStatus(), gin.H{
		"error":   kind.String(),
		"message": apperror.MessageOf(err),
	})
}

func writeKind(c *gin.Context, kind apperror.Kind, msg string) {
	c.JSON(kind.HTTPStatus(), gin.H{
		"error":   kind.String(),
		"message": msg,
	})
}
