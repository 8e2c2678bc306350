// Package flags records the outcome of every stream-phase purchase
// evaluation and serves flag history queries.
package flags

import (
	"context"
	"time"
)

// Decision is the result of evaluating one stream purchase against its
// neighborhood. Mean and Stddev are the population statistics of the
// reference set; RefCount is how many reference purchases backed the
// evaluation (fewer than two means the test was inconclusive and the
// purchase was never flagged).
type Decision struct {
	ID        string    `json:"id"`
	Seq       uint64    `json:"seq"`
	User      string    `json:"user"`
	Amount    float64   `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
	Mean      float64   `json:"mean"`
	Stddev    float64   `json:"stddev"`
	RefCount  int       `json:"refCount"`
	Flagged   bool      `json:"flagged"`
	CreatedAt time.Time `json:"createdAt"`
}

// ListFilter narrows a flag history query.
type ListFilter struct {
	User        string // empty matches all users
	FlaggedOnly bool
}

// Store persists evaluation decisions.
type Store interface {
	Save(ctx context.Context, d *Decision) error
	Get(ctx context.Context, id string) (*Decision, error)
	// List returns decisions created before the cursor position, newest
	// first, up to limit. Pass a zero time for the first page.
	List(ctx context.Context, filter ListFilter, before time.Time, beforeID string, limit int) ([]*Decision, error)
	Count(ctx context.Context, flaggedOnly bool) (int, error)
}
