package webhooks

import (
	"context"
	"log/slog"
	"time"

	"github.com/nwtnsqrd/peerflag/internal/events"
	"github.com/nwtnsqrd/peerflag/internal/flags"
	"github.com/nwtnsqrd/peerflag/internal/idgen"
)

// Emitter turns applied pipeline events into webhook dispatches. All
// methods are fire-and-forget: errors are logged, never returned, so
// the event path cannot stall on webhook trouble. It satisfies the
// stream processor's notifier surface.
type Emitter struct {
	d      *Dispatcher
	logger *slog.Logger
}

// NewEmitter creates a new webhook emitter.
func NewEmitter(d *Dispatcher, logger *slog.Logger) *Emitter {
	return &Emitter{d: d, logger: logger}
}

func (e *Emitter) emit(eventType EventType, data map[string]any) {
	if e == nil || e.d == nil {
		return
	}
	event := &Event{
		ID:        idgen.WithPrefix("evt_"),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := e.d.Dispatch(ctx, event); err != nil {
		e.logger.Warn("webhook emit failed", "event", eventType, "error", err)
	}
}

// PurchaseRecorded emits a purchase.recorded event.
func (e *Emitter) PurchaseRecorded(d *flags.Decision) {
	e.emit(EventPurchaseRecorded, decisionData(d))
}

// PurchaseFlagged emits a purchase.flagged event.
func (e *Emitter) PurchaseFlagged(d *flags.Decision) {
	e.emit(EventPurchaseFlagged, decisionData(d))
}

// FriendshipCreated emits a friendship.created event.
func (e *Emitter) FriendshipCreated(a, b string) {
	e.emit(EventFriendshipCreated, map[string]any{
		"userA": a,
		"userB": b,
	})
}

// FriendshipRemoved emits a friendship.removed event.
func (e *Emitter) FriendshipRemoved(a, b string) {
	e.emit(EventFriendshipRemoved, map[string]any{
		"userA": a,
		"userB": b,
	})
}

func decisionData(d *flags.Decision) map[string]any {
	return map[string]any{
		"decisionId": d.ID,
		"user":       d.User,
		"amount":     d.Amount,
		"timestamp":  d.Timestamp.Format(events.TimeLayout),
		"mean":       d.Mean,
		"stddev":     d.Stddev,
		"refCount":   d.RefCount,
		"flagged":    d.Flagged,
	}
}
