package vote

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/electio/votegate/internal/account"
	"github.com/electio/votegate/internal/session"
)

// Handler provides HTTP endpoints for vote operations.
type Handler struct {
	service *Service
}

// NewHandler creates a new vote handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterProtectedRoutes sets up auth-required vote routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/votes", h.CastVote)
	r.GET("/votes/status", h.VoteStatus)
}

// RegisterAdminRoutes sets up admin-only vote routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/elections/:electionID/votes", h.ListByElection)
	r.GET("/votes/flagged", h.ListFlagged)
}

// CastVote handles POST /v1/votes
func (h *Handler) CastVote(c *gin.Context) {
	accountID := session.AccountID(c)

	var req CastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "electionId and choice are required",
		})
		return
	}
	req.IPAddress = c.ClientIP()
	req.DeviceFingerprint = c.GetHeader("X-Device-Fingerprint")

	record, assessment, err := h.service.Cast(c.Request.Context(), accountID, &req)
	if err != nil {
		status := http.StatusInternalServerError
		code := "internal_error"
		message := "vote could not be recorded, try again"
		switch err {
		case ErrAlreadyVoted:
			status = http.StatusConflict
			code = "already_voted"
			message = err.Error()
		case ErrHighRisk:
			status = http.StatusForbidden
			code = "high_risk"
			message = err.Error()
		case ErrIdentityRequired:
			status = http.StatusForbidden
			code = "identity_unverified"
			message = err.Error()
		case account.ErrNotFound:
			status = http.StatusNotFound
			code = "not_found"
			message = err.Error()
		}
		resp := gin.H{"error": code, "message": message}
		if err == ErrHighRisk && assessment != nil {
			resp["tier"] = assessment.Tier
		}
		c.JSON(status, resp)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"vote": gin.H{
			"id":         record.ID,
			"electionId": record.ElectionID,
			"castAt":     record.CastAt,
		},
		"tier": assessment.Tier,
	})
}

// VoteStatus handles GET /v1/votes/status?electionId=...
func (h *Handler) VoteStatus(c *gin.Context) {
	accountID := session.AccountID(c)
	electionID := c.Query("electionId")
	if electionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "electionId query parameter is required",
		})
		return
	}

	voted, err := h.service.store.HasVoted(c.Request.Context(), accountID, electionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"electionId": electionID, "voted": voted})
}

// ListByElection handles GET /v1/admin/elections/:electionID/votes
func (h *Handler) ListByElection(c *gin.Context) {
	limit := 100
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	votes, err := h.service.store.ListByElection(c.Request.Context(), c.Param("electionID"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"votes": votes, "count": len(votes)})
}

// ListFlagged handles GET /v1/admin/votes/flagged
func (h *Handler) ListFlagged(c *gin.Context) {
	limit := 100
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	votes, err := h.service.store.ListFlagged(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"votes": votes, "count": len(votes)})
}
