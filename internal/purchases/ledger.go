// Package purchases tracks the append-only purchase history of every user.
//
// Records carry a globally injective, strictly increasing sequence index
// assigned at ingestion time. The index doubles as the tie-breaker when
// purchases share a timestamp, so recency is unambiguous across users.
package purchases

import (
	"sync"
	"time"
)

// Record is one immutable purchase observation.
type Record struct {
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Amount    float64   `json:"amount"`
	Seeded    bool      `json:"seeded,omitempty"` // true for batch-phase records
}

// UserRecord pairs a record with its owner, used for bulk loads.
type UserRecord struct {
	User string `json:"user"`
	Record
}

// Ledger is the in-memory purchase history. Per-user sequences are append
// only and never reordered; reads return copies.
type Ledger struct {
	mu     sync.RWMutex
	byUser map[string][]Record
	total  int
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		byUser: make(map[string][]Record),
	}
}

// Append adds rec to the end of user's sequence. The caller assigns Seq
// from its global counter; Append never reorders.
func (l *Ledger) Append(user string, rec Record) {
	done := observeOp("append")
	defer done()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.byUser[user] = append(l.byUser[user], rec)
	l.total++
}

// MostRecent returns up to k of user's records, most recent first.
// Unknown users and k <= 0 yield an empty result, never an error.
func (l *Ledger) MostRecent(user string, k int) []Record {
	done := observeOp("most_recent")
	defer done()

	l.mu.RLock()
	defer l.mu.RUnlock()

	seq := l.byUser[user]
	if k <= 0 || len(seq) == 0 {
		return nil
	}
	if k > len(seq) {
		k = len(seq)
	}

	out := make([]Record, 0, k)
	for i := len(seq) - 1; i >= len(seq)-k; i-- {
		out = append(out, seq[i])
	}
	return out
}

// MostRecentUnseeded is MostRecent restricted to records ingested during
// the streaming phase. Seeded records do not consume slots of k.
func (l *Ledger) MostRecentUnseeded(user string, k int) []Record {
	done := observeOp("most_recent_unseeded")
	defer done()

	l.mu.RLock()
	defer l.mu.RUnlock()

	seq := l.byUser[user]
	if k <= 0 || len(seq) == 0 {
		return nil
	}

	var out []Record
	for i := len(seq) - 1; i >= 0 && len(out) < k; i-- {
		if seq[i].Seeded {
			continue
		}
		out = append(out, seq[i])
	}
	return out
}

// CountFor returns the number of purchases recorded for user.
func (l *Ledger) CountFor(user string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byUser[user])
}

// Total returns the number of records across all users.
func (l *Ledger) Total() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total
}

// Users returns the number of users with at least one purchase.
func (l *Ledger) Users() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byUser)
}
