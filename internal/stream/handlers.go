package stream

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nwtnsqrd/peerflag/internal/events"
)

// Handler provides the event-ingest HTTP endpoints.
type Handler struct {
	proc   *Processor
	logger *slog.Logger
}

// NewHandler creates a new ingest handler.
func NewHandler(proc *Processor, logger *slog.Logger) *Handler {
	return &Handler{proc: proc, logger: logger}
}

// RegisterRoutes sets up ingest routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/events", h.IngestEvent)
	r.POST("/purchases", h.RecordPurchase)
	r.POST("/purchases/check", h.CheckPurchase)
}

// IngestEvent handles POST /events: one raw JSON-lines record, applied
// in the processor's current phase.
func (h *Handler) IngestEvent(c *gin.Context) {
	line, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "failed to read request body"})
		return
	}

	decision, err := h.proc.ApplyRaw(c.Request.Context(), line)
	if err != nil {
		rejectJSON(c, err)
		return
	}

	resp := gin.H{"status": "applied", "phase": h.proc.Phase().String()}
	if decision != nil {
		resp["decision"] = decision
	}
	c.JSON(http.StatusAccepted, resp)
}

type purchaseRequest struct {
	User      string  `json:"user" binding:"required"`
	Amount    float64 `json:"amount"`
	Timestamp string  `json:"timestamp,omitempty"`
}

func (r *purchaseRequest) at() (time.Time, bool) {
	if r.Timestamp == "" {
		return time.Now().UTC(), true
	}
	ts, err := time.Parse(events.TimeLayout, r.Timestamp)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// RecordPurchase handles POST /purchases: a typed purchase, returning
// the evaluation decision when the processor is streaming.
func (h *Handler) RecordPurchase(c *gin.Context) {
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	at, ok := req.at()
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_timestamp", "message": "timestamp must use layout " + events.TimeLayout})
		return
	}

	decision, err := h.proc.RecordPurchase(c.Request.Context(), req.User, req.Amount, at)
	if err != nil {
		rejectJSON(c, err)
		return
	}

	resp := gin.H{"status": "recorded", "phase": h.proc.Phase().String()}
	if decision != nil {
		resp["decision"] = decision
	}
	c.JSON(http.StatusCreated, resp)
}

// CheckPurchase handles POST /purchases/check: evaluate without
// recording anything.
func (h *Handler) CheckPurchase(c *gin.Context) {
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	if req.Amount < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_amount", "message": "amount must be non-negative"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"decision": h.proc.Check(req.User, req.Amount)})
}

// rejectJSON maps a rejection to an HTTP error response.
func rejectJSON(c *gin.Context, err error) {
	var rej *events.Rejection
	if errors.As(err, &rej) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   string(rej.Reason),
			"message": rej.Err.Error(),
		})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
}
