package identity

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/electio/votegate/internal/logging"
	"github.com/electio/votegate/internal/session"
)

// Handler exposes identity-check recording over HTTP
type Handler struct {
	service *Service
}

// NewHandler creates an identity handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterProtectedRoutes sets up auth-required identity routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/identity/check", h.RecordCheck)
	r.GET("/identity/status", h.Status)
}

type checkRequest struct {
	Verified         bool    `json:"verified"`
	FaceDistance     float64 `json:"faceDistance"`
	VerificationTime float64 `json:"verificationTime"`
}

// RecordCheck handles POST /v1/identity/check. The capture and matching
// step runs client-side; this endpoint persists its outcome for the
// caller's own account.
func (h *Handler) RecordCheck(c *gin.Context) {
	var req checkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	result := &CheckResult{
		AccountID:        session.AccountID(c),
		Verified:         req.Verified,
		FaceDistance:     req.FaceDistance,
		VerificationTime: req.VerificationTime,
	}

	if err := h.service.RecordCheck(c.Request.Context(), result); err != nil {
		logging.L(c.Request.Context()).Error("failed to record identity check", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to record identity check. Please try again.",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"verified": req.Verified})
}

// Status handles GET /v1/identity/status
func (h *Handler) Status(c *gin.Context) {
	verified, err := h.service.IsVerified(c.Request.Context(), session.AccountID(c))
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to load identity status", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load identity status. Please try again.",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"verified": verified})
}
