// Package admin provides back-office HTTP endpoints: account creation,
// the fraud review queue, security alerts, and the manual daily reset.
// Every route requires the admin role; enforcement lives in the auth
// middleware.
package admin

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/spinhouse/coinledger/internal/account"
	"github.com/spinhouse/coinledger/internal/apperror"
	"github.com/spinhouse/coinledger/internal/auth"
	"github.com/spinhouse/coinledger/internal/fraud"
	"github.com/spinhouse/coinledger/internal/velocity"
)

// Handler provides admin HTTP endpoints.
type Handler struct {
	accounts *account.Service
	resetter *account.Resetter
	flags    fraud.FlagStore
	review   *fraud.ReviewService
	alerts   velocity.AlertStore
}

// NewHandler creates a new admin handler.
func NewHandler(
	accounts *account.Service,
	resetter *account.Resetter,
	flags fraud.FlagStore,
	review *fraud.ReviewService,
	alerts velocity.AlertStore,
) *Handler {
	return &Handler{
		accounts: accounts,
		resetter: resetter,
		flags:    flags,
		review:   review,
		alerts:   alerts,
	}
}

// RegisterRoutes sets up admin routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/admin/accounts", h.createAccount)
	r.GET("/admin/flags", h.listFlags)
	r.POST("/admin/flags/:id/review", h.reviewFlag)
	r.GET("/admin/alerts", h.listAlerts)
	r.POST("/admin/alerts/:id/ack", h.ackAlert)
	r.POST("/admin/reset-daily", h.resetDaily)
}

type createAccountRequest struct {
	Username string `json:"username"`
}

// createAccount handles POST /api/v1/admin/accounts
func (h *Handler) createAccount(c *gin.Context) {
	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" {
		writeKind(c, apperror.InvalidArgument, "username is required")
		return
	}

	a, err := h.accounts.Register(c.Request.Context(), req.Username)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

// listFlags handles GET /api/v1/admin/flags[?status=&limit=]
func (h *Handler) listFlags(c *gin.Context) {
	status := fraud.FlagStatus(c.Query("status"))
	switch status {
	case "", fraud.FlagPendingReview, fraud.FlagApproved, fraud.FlagRejected:
	default:
		writeKind(c, apperror.InvalidArgument, "unknown flag status")
		return
	}

	flags, err := h.flags.List(c.Request.Context(), status, queryLimit(c, 100, 1000))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"flags": flags, "count": len(flags)})
}

type reviewRequest struct {
	Action string `json:"action"` // approve or reject
	Reason string `json:"reason"`
}

// reviewFlag handles POST /api/v1/admin/flags/:id/review
func (h *Handler) reviewFlag(c *gin.Context) {
	id, _ := auth.IdentityFrom(c)

	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Action == "" {
		writeKind(c, apperror.InvalidArgument, "action is required")
		return
	}

	msg, err := h.review.Review(c.Request.Context(), c.Param("id"),
		fraud.Action(req.Action), id.UserID, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": msg})
}

// listAlerts handles GET /api/v1/admin/alerts[?limit=]
func (h *Handler) listAlerts(c *gin.Context) {
	alerts, err := h.alerts.List(c.Request.Context(), queryLimit(c, 100, 1000))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "count": len(alerts)})
}

// ackAlert handles POST /api/v1/admin/alerts/:id/ack
func (h *Handler) ackAlert(c *gin.Context) {
	err := h.alerts.Acknowledge(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, velocity.ErrAlertNotFound) {
			writeKind(c, apperror.NotFound, "security alert not found")
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"acknowledged": true})
}

// resetDaily handles POST /api/v1/admin/reset-daily
func (h *Handler) resetDaily(c *gin.Context) {
	if err := h.resetter.ResetAll(c.Request.Context()); err != nil {
		writeKind(c, apperror.Internal, "daily reset failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"reset": true})
}

func queryLimit(c *gin.Context, def, max int) int {
	limit := def
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= max {
			limit = parsed
		}
	}
	return limit
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
