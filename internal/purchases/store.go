package purchases

import (
	"context"
)

// Store persists purchase records so the in-memory ledger can be rebuilt
// on startup.
type Store interface {
	SaveRecord(ctx context.Context, user string, rec Record) error
	RecentByUser(ctx context.Context, user string, limit int) ([]Record, error)
	// LoadAll returns every persisted record ordered by Seq ascending.
	LoadAll(ctx context.Context) ([]UserRecord, error)
}

// Rehydrate loads every persisted record into l and returns the highest
// sequence index seen, so the caller can resume its counter past it.
func Rehydrate(ctx context.Context, l *Ledger, store Store) (maxSeq uint64, n int, err error) {
	records, err := store.LoadAll(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, ur := range records {
		l.Append(ur.User, ur.Record)
		if ur.Seq > maxSeq {
			maxSeq = ur.Seq
		}
	}
	return maxSeq, len(records), nil
}
