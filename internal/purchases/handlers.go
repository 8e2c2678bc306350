package purchases

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const defaultHistoryLimit = 50

// Handler provides read-only HTTP endpoints over the purchase ledger.
type Handler struct {
	ledger *Ledger
	logger *slog.Logger
}

// NewHandler creates a new purchases handler.
func NewHandler(ledger *Ledger, logger *slog.Logger) *Handler {
	return &Handler{ledger: ledger, logger: logger}
}

// RegisterRoutes sets up purchase history routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/users/:id/purchases", h.GetHistory)
}

// GetHistory handles GET /users/:id/purchases?limit=N
func (h *Handler) GetHistory(c *gin.Context) {
	id := c.Param("id")

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit", "message": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	records := h.ledger.MostRecent(id, limit)
	if records == nil {
		records = []Record{}
	}

	c.JSON(http.StatusOK, gin.H{
		"user":      id,
		"purchases": records,
		"count":     len(records),
		"total":     h.ledger.CountFor(id),
	})
}
