package anomaly

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/electio/votegate/internal/behavior"
)

// Handler provides admin HTTP endpoints for anomaly scanning.
type Handler struct {
	scanner *Scanner
	store   Store
	logs    behavior.Store
}

// NewHandler creates a new anomaly handler.
func NewHandler(scanner *Scanner, store Store, logs behavior.Store) *Handler {
	return &Handler{scanner: scanner, store: store, logs: logs}
}

// RegisterAdminRoutes sets up admin-only anomaly routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/anomaly/scan", h.TriggerScan)
	r.GET("/anomaly/scans", h.ListScans)
	r.GET("/anomaly/flagged", h.ListFlagged)
}

// TriggerScan handles POST /v1/admin/anomaly/scan
func (h *Handler) TriggerScan(c *gin.Context) {
	result, err := h.scanner.Scan(c.Request.Context(), TriggerManual)
	if err != nil {
		if err == ErrScanRunning {
			c.JSON(http.StatusConflict, gin.H{
				"error":   "scan_running",
				"message": err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"scan": result})
}

// ListScans handles GET /v1/admin/anomaly/scans
func (h *Handler) ListScans(c *gin.Context) {
	limit := queryLimit(c, 20)
	scans, err := h.store.ListRecent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"scans": scans, "count": len(scans)})
}

// ListFlagged handles GET /v1/admin/anomaly/flagged
func (h *Handler) ListFlagged(c *gin.Context) {
	limit := queryLimit(c, 100)
	entries, err := h.logs.ListFlagged(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

func queryLimit(c *gin.Context, def int) int {
	limit := def
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	return limit
}
