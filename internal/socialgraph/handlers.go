package socialgraph

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// EdgeWriter applies friendship mutations through the event pipeline so
// they keep their position in the single ingestion order.
type EdgeWriter interface {
	Befriend(ctx context.Context, a, b string, at time.Time) error
	Unfriend(ctx context.Context, a, b string, at time.Time) error
}

// Handler provides HTTP endpoints for graph queries and edge mutations.
type Handler struct {
	graph         *Graph
	writer        EdgeWriter
	defaultDegree int
	logger        *slog.Logger
}

// NewHandler creates a new graph handler. defaultDegree is used when a
// neighborhood query does not specify one.
func NewHandler(graph *Graph, writer EdgeWriter, defaultDegree int, logger *slog.Logger) *Handler {
	return &Handler{graph: graph, writer: writer, defaultDegree: defaultDegree, logger: logger}
}

// RegisterRoutes sets up graph routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/friendships", h.Befriend)
	r.DELETE("/friendships", h.Unfriend)
	r.GET("/users/:id/friends", h.GetFriends)
	r.GET("/users/:id/neighborhood", h.GetNeighborhood)
}

type edgeRequest struct {
	UserA     string `json:"userA" binding:"required"`
	UserB     string `json:"userB" binding:"required"`
	Timestamp string `json:"timestamp,omitempty"`
}

func (r *edgeRequest) at() time.Time {
	if r.Timestamp != "" {
		if ts, err := time.Parse("2006-01-02 15:04:05", r.Timestamp); err == nil {
			return ts
		}
	}
	return time.Now().UTC()
}

// Befriend handles POST /friendships
func (h *Handler) Befriend(c *gin.Context) {
	var req edgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	if req.UserA == req.UserB {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "a user cannot befriend themselves"})
		return
	}

	if err := h.writer.Befriend(c.Request.Context(), req.UserA, req.UserB, req.at()); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "event_rejected", "message": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"userA": req.UserA, "userB": req.UserB, "status": "friends"})
}

// Unfriend handles DELETE /friendships
func (h *Handler) Unfriend(c *gin.Context) {
	var req edgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	if err := h.writer.Unfriend(c.Request.Context(), req.UserA, req.UserB, req.at()); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "event_rejected", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"userA": req.UserA, "userB": req.UserB, "status": "unfriended"})
}

// GetFriends handles GET /users/:id/friends
func (h *Handler) GetFriends(c *gin.Context) {
	id := c.Param("id")
	friends := sortedMembers(h.graph.Neighbors(id))

	c.JSON(http.StatusOK, gin.H{
		"user":    id,
		"friends": friends,
		"count":   len(friends),
	})
}

// GetNeighborhood handles GET /users/:id/neighborhood?degree=N
func (h *Handler) GetNeighborhood(c *gin.Context) {
	id := c.Param("id")

	degree := h.defaultDegree
	if raw := c.Query("degree"); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil || d < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_degree", "message": "degree must be a non-negative integer"})
			return
		}
		degree = d
	}

	neighbors := sortedMembers(h.graph.NeighborsWithinDegree(id, degree))

	c.JSON(http.StatusOK, gin.H{
		"user":      id,
		"degree":    degree,
		"neighbors": neighbors,
		"count":     len(neighbors),
	})
}

func sortedMembers(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for member := range set {
		out = append(out, member)
	}
	sort.Strings(out)
	return out
}
