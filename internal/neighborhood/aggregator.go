// Package neighborhood merges recent purchase activity across a user's
// bounded social radius.
//
// The aggregator is stateless: every call reads the current graph and
// ledger and returns a value; nothing is cached between invocations, so
// the same state always yields the same answer.
package neighborhood

import (
	"sort"

	"github.com/nwtnsqrd/peerflag/internal/purchases"
	"github.com/nwtnsqrd/peerflag/internal/socialgraph"
)

// Aggregator answers top-T recent purchase queries over the degree-D
// neighborhood of an anchor user.
type Aggregator struct {
	graph  *socialgraph.Graph
	ledger *purchases.Ledger

	// includeSeeded controls whether batch-seeded history counts as
	// reference data. On by default: the reference set is the whole
	// ledger state at evaluation time.
	includeSeeded bool
}

// New creates an aggregator over graph and ledger. Seeded history is
// eligible as reference data unless disabled with ExcludeSeeded.
func New(graph *socialgraph.Graph, ledger *purchases.Ledger) *Aggregator {
	return &Aggregator{graph: graph, ledger: ledger, includeSeeded: true}
}

// ExcludeSeeded makes batch-seeded records invisible to aggregation.
func (a *Aggregator) ExcludeSeeded() *Aggregator {
	a.includeSeeded = false
	return a
}

// TopRecentPurchases returns the up-to-limit most recent purchases made
// by users within 1..degree hops of anchor, excluding anchor itself.
// Recency orders by (timestamp, sequence index) descending; the sequence
// index breaks exact timestamp ties by true ingestion order.
//
// An anchor with no reachable neighborhood yields an empty result:
// insufficient data, not an invalid request.
func (a *Aggregator) TopRecentPurchases(anchor string, degree, limit int) []purchases.UserRecord {
	top, _ := a.Reference(anchor, degree, limit)
	return top
}

// Reference is TopRecentPurchases plus the size of the discovered
// neighborhood, so callers can report both without traversing twice.
func (a *Aggregator) Reference(anchor string, degree, limit int) ([]purchases.UserRecord, int) {
	if limit <= 0 {
		return nil, 0
	}

	neighbors := a.graph.NeighborsWithinDegree(anchor, degree)
	if len(neighbors) == 0 {
		return nil, 0
	}

	// No neighbor can contribute more than limit records to a global
	// top-limit, so cap each fetch before merging. This keeps the merge
	// O(limit*|N| log(limit*|N|)) instead of scanning whole histories.
	candidates := make([]purchases.UserRecord, 0, limit*2)
	for user := range neighbors {
		var recent []purchases.Record
		if a.includeSeeded {
			recent = a.ledger.MostRecent(user, limit)
		} else {
			recent = a.ledger.MostRecentUnseeded(user, limit)
		}
		for _, rec := range recent {
			candidates = append(candidates, purchases.UserRecord{User: user, Record: rec})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		ti, tj := candidates[i].Timestamp, candidates[j].Timestamp
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return candidates[i].Seq > candidates[j].Seq
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, len(neighbors)
}

// ReferenceAmounts projects the top recent purchases down to their
// amounts, the shape the anomaly test consumes.
func (a *Aggregator) ReferenceAmounts(anchor string, degree, limit int) []float64 {
	top := a.TopRecentPurchases(anchor, degree, limit)
	if len(top) == 0 {
		return nil
	}
	amounts := make([]float64, len(top))
	for i, rec := range top {
		amounts[i] = rec.Amount
	}
	return amounts
}
