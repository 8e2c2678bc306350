package neighborhood

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Handler serves the network purchase feed.
type Handler struct {
	agg           *Aggregator
	defaultDegree int
	defaultLimit  int
	logger        *slog.Logger
}

// NewHandler creates a feed handler with the service's configured
// degree and limit as defaults.
func NewHandler(agg *Aggregator, defaultDegree, defaultLimit int, logger *slog.Logger) *Handler {
	return &Handler{agg: agg, defaultDegree: defaultDegree, defaultLimit: defaultLimit, logger: logger}
}

// RegisterRoutes sets up feed routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/users/:id/feed", h.GetFeed)
}

// GetFeed handles GET /users/:id/feed?degree=N&limit=N
func (h *Handler) GetFeed(c *gin.Context) {
	id := c.Param("id")

	degree, ok := h.queryInt(c, "degree", h.defaultDegree)
	if !ok {
		return
	}
	limit, ok := h.queryInt(c, "limit", h.defaultLimit)
	if !ok {
		return
	}

	feed := h.agg.TopRecentPurchases(id, degree, limit)
	out := make([]gin.H, len(feed))
	for i, rec := range feed {
		out[i] = gin.H{
			"user":      rec.User,
			"seq":       rec.Seq,
			"timestamp": rec.Timestamp,
			"amount":    rec.Amount,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"user":      id,
		"degree":    degree,
		"limit":     limit,
		"purchases": out,
		"count":     len(out),
	})
}

func (h *Handler) queryInt(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_" + name,
			"message": name + " must be a positive integer",
		})
		return 0, false
	}
	return n, true
}
