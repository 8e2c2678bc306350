package flags

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nwtnsqrd/peerflag/internal/pagination"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Handler provides HTTP endpoints over flag history.
type Handler struct {
	store  Store
	logger *slog.Logger
}

// NewHandler creates a new flags handler.
func NewHandler(store Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// RegisterRoutes sets up flag history routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/flags", h.ListFlags)
	r.GET("/flags/:id", h.GetFlag)
	r.GET("/users/:id/flags", h.ListUserFlags)
}

// ListFlags handles GET /flags?cursor=&limit=&flagged=
func (h *Handler) ListFlags(c *gin.Context) {
	h.list(c, ListFilter{
		FlaggedOnly: c.Query("flagged") == "true",
	})
}

// ListUserFlags handles GET /users/:id/flags?cursor=&limit=&flagged=
func (h *Handler) ListUserFlags(c *gin.Context) {
	h.list(c, ListFilter{
		User:        c.Param("id"),
		FlaggedOnly: c.Query("flagged") == "true",
	})
}

// GetFlag handles GET /flags/:id
func (h *Handler) GetFlag(c *gin.Context) {
	d, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"decision": d})
}

func (h *Handler) list(c *gin.Context, filter ListFilter) {
	limit := defaultPageSize
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxPageSize {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_limit",
				"message": "limit must be between 1 and " + strconv.Itoa(maxPageSize),
			})
			return
		}
		limit = n
	}

	cursor, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_cursor", "message": "cursor is malformed"})
		return
	}

	var before time.Time
	var beforeID string
	if cursor != nil {
		before, beforeID = cursor.CreatedAt, cursor.ID
	}

	// Fetch one extra row to learn whether another page exists.
	items, err := h.store.List(c.Request.Context(), filter, before, beforeID, limit+1)
	if err != nil {
		h.logger.Error("failed to list flags", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed", "message": "Failed to list flag decisions"})
		return
	}

	page, next, hasMore := pagination.ComputePage(items, limit, func(d *Decision) (time.Time, string) {
		return d.CreatedAt, d.ID
	})
	if page == nil {
		page = []*Decision{}
	}

	c.JSON(http.StatusOK, gin.H{
		"decisions":  page,
		"count":      len(page),
		"nextCursor": next,
		"hasMore":    hasMore,
	})
}
