package fraud

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Handler provides admin HTTP endpoints for fraud assessments.
type Handler struct {
	store Store
	model *ModelScorer
}

// NewHandler creates a new fraud handler. model may be nil.
func NewHandler(store Store, model *ModelScorer) *Handler {
	return &Handler{store: store, model: model}
}

// RegisterAdminRoutes sets up admin-only fraud routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/assessments", h.ListAssessments)
	r.GET("/voters/:voterID/assessments", h.ListByAccount)
	r.POST("/model/reload", h.ReloadModel)
}

// ListAssessments handles GET /v1/admin/assessments?tier=high
func (h *Handler) ListAssessments(c *gin.Context) {
	limit := 100
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	tier := Tier(c.Query("tier"))
	switch tier {
	case TierLow, TierMedium, TierHigh:
	case "":
		tier = TierHigh
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "tier must be low, medium, or high",
		})
		return
	}

	assessments, err := h.store.ListByTier(c.Request.Context(), tier, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"assessments": assessments,
		"count":       len(assessments),
		"tier":        tier,
	})
}

// ListByAccount handles GET /v1/admin/voters/:voterID/assessments
func (h *Handler) ListByAccount(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	assessments, err := h.store.ListByAccount(c.Request.Context(), c.Param("voterID"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"assessments": assessments, "count": len(assessments)})
}

// ReloadModel handles POST /v1/admin/model/reload
func (h *Handler) ReloadModel(c *gin.Context) {
	if h.model == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_configured",
			"message": "no classifier artifact path configured",
		})
		return
	}

	if err := h.model.TryLoad(); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "reload_failed",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "classifier artifact reloaded"})
}
