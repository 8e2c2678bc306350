// Package stripefeed ingests Stripe payment webhooks as purchase events.
//
// Deployments that process real card payments point a Stripe webhook
// endpoint here; each successful payment intent becomes a purchase in
// the pipeline and is evaluated like any other streamed purchase. The
// user is taken from the payment intent's metadata.
package stripefeed

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/nwtnsqrd/peerflag/internal/flags"
)

// MetadataUserKey is the payment intent metadata key that carries the
// purchasing user's ID.
const MetadataUserKey = "user_id"

// maxBodyBytes caps webhook payload size, per Stripe's recommendation.
const maxBodyBytes = 65536

// Recorder applies a purchase through the event pipeline.
type Recorder interface {
	RecordPurchase(ctx context.Context, user string, amount float64, at time.Time) (*flags.Decision, error)
}

// Handler verifies and ingests Stripe webhook deliveries.
type Handler struct {
	recorder Recorder
	secret   string
	logger   *slog.Logger
}

// NewHandler creates a Stripe ingest handler. secret is the endpoint's
// signing secret from the Stripe dashboard.
func NewHandler(recorder Recorder, secret string, logger *slog.Logger) *Handler {
	return &Handler{recorder: recorder, secret: secret, logger: logger}
}

// RegisterRoutes sets up the Stripe ingest route.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/ingest/stripe", h.HandleWebhook)
}

// HandleWebhook handles POST /ingest/stripe.
//
// Unknown event types are acknowledged with 200 so Stripe does not
// retry them. Signature failures return 400.
func (h *Handler) HandleWebhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error":   "payload_too_large",
			"message": "webhook payload exceeds size limit",
		})
		return
	}

	// Endpoints can be pinned to a different API version than the SDK;
	// the amount and metadata fields we read are stable across versions.
	event, err := webhook.ConstructEventWithOptions(payload, c.GetHeader("Stripe-Signature"), h.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		h.logger.Warn("stripe signature verification failed", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_signature",
			"message": "webhook signature verification failed",
		})
		return
	}

	if event.Type != stripe.EventTypePaymentIntentSucceeded {
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "type": string(event.Type)})
		return
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		h.logger.Error("failed to parse payment intent", "event", event.ID, "error", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "malformed_event",
			"message": "payment intent payload is malformed",
		})
		return
	}

	user := pi.Metadata[MetadataUserKey]
	if user == "" {
		// Nothing to attribute the purchase to; acknowledge so Stripe
		// stops retrying, but record nothing.
		h.logger.Warn("payment intent without user metadata", "event", event.ID, "intent", pi.ID)
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "missing " + MetadataUserKey + " metadata"})
		return
	}

	// Stripe amounts are in the smallest currency unit.
	amount := float64(pi.Amount) / 100
	at := time.Unix(event.Created, 0).UTC()

	decision, err := h.recorder.RecordPurchase(c.Request.Context(), user, amount, at)
	if err != nil {
		h.logger.Error("failed to record stripe purchase",
			"event", event.ID, "user", user, "amount", amount, "error", err)
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "event_rejected",
			"message": err.Error(),
		})
		return
	}

	h.logger.Info("stripe purchase recorded",
		"event", event.ID, "user", user, "amount", amount)

	resp := gin.H{"status": "recorded", "user": user, "amount": amount}
	if decision != nil {
		resp["decision"] = decision
	}
	c.JSON(http.StatusOK, resp)
}
