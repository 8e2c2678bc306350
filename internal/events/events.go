// Package events defines the typed event boundary of the flagging
// pipeline and its JSON-lines wire codec.
//
// The same three event kinds flow through both the batch (seed) phase
// and the live stream: purchases, befriendings, and unfriendings. The
// core consumes already-typed events; this package is where raw wire
// records become typed or get rejected with a reason code.
package events

import (
	"fmt"
	"time"
)

// Kind identifies an event variant.
type Kind string

const (
	KindPurchase Kind = "purchase"
	KindBefriend Kind = "befriend"
	KindUnfriend Kind = "unfriend"
)

// TimeLayout is the wire timestamp format.
const TimeLayout = "2006-01-02 15:04:05"

// Event is one well-typed event. Purchase events carry User and Amount;
// befriend/unfriend events carry UserA and UserB.
type Event struct {
	Kind      Kind
	Timestamp time.Time

	// Purchase fields
	User   string
	Amount float64

	// Friendship fields
	UserA string
	UserB string
}

// Purchase builds a typed purchase event.
func Purchase(user string, amount float64, at time.Time) Event {
	return Event{Kind: KindPurchase, User: user, Amount: amount, Timestamp: at}
}

// Befriend builds a typed befriend event.
func Befriend(a, b string, at time.Time) Event {
	return Event{Kind: KindBefriend, UserA: a, UserB: b, Timestamp: at}
}

// Unfriend builds a typed unfriend event.
func Unfriend(a, b string, at time.Time) Event {
	return Event{Kind: KindUnfriend, UserA: a, UserB: b, Timestamp: at}
}

// Validate checks the structural invariants a typed event must satisfy
// before it may mutate any state. Returns a *Rejection on failure.
func (e Event) Validate() error {
	switch e.Kind {
	case KindPurchase:
		if e.User == "" {
			return Malformed(fmt.Errorf("purchase missing user id"))
		}
		if e.Timestamp.IsZero() {
			return Malformed(fmt.Errorf("purchase missing timestamp"))
		}
		if e.Amount < 0 {
			return InvalidValue(fmt.Errorf("purchase amount must be non-negative, got %g", e.Amount))
		}
	case KindBefriend, KindUnfriend:
		if e.UserA == "" || e.UserB == "" {
			return Malformed(fmt.Errorf("%s missing a user id", e.Kind))
		}
		if e.UserA == e.UserB {
			return InvalidValue(fmt.Errorf("%s between a user and themselves", e.Kind))
		}
	default:
		return UnknownKind(fmt.Errorf("unknown event kind %q", string(e.Kind)))
	}
	return nil
}

// Params is the batch-file parameter header.
type Params struct {
	Degree  int // D: friend-degree radius
	Tracked int // T: max reference purchases
}

// Validate checks the parameter header. Bad parameters are fatal to a
// run, not recoverable per-event.
func (p Params) Validate() error {
	if p.Degree < 1 {
		return fmt.Errorf("D must be a positive integer, got %d", p.Degree)
	}
	if p.Tracked < 1 {
		return fmt.Errorf("T must be a positive integer, got %d", p.Tracked)
	}
	return nil
}
