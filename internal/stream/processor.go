// Package stream orchestrates the event pipeline: it owns the social
// graph and the purchase ledger, applies events in a single total
// order, and classifies stream-phase purchases against their social
// neighborhood.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nwtnsqrd/peerflag/internal/anomaly"
	"github.com/nwtnsqrd/peerflag/internal/events"
	"github.com/nwtnsqrd/peerflag/internal/flags"
	"github.com/nwtnsqrd/peerflag/internal/idgen"
	"github.com/nwtnsqrd/peerflag/internal/metrics"
	"github.com/nwtnsqrd/peerflag/internal/neighborhood"
	"github.com/nwtnsqrd/peerflag/internal/purchases"
	"github.com/nwtnsqrd/peerflag/internal/socialgraph"
)

// Phase is the processor lifecycle state. Transitions only move
// forward: Initializing -> Streaming -> Done.
type Phase int32

const (
	// Initializing replays seed history: events mutate state but
	// purchases are never evaluated.
	Initializing Phase = iota
	// Streaming is steady state: every purchase is classified before
	// it joins the ledger.
	Streaming
	// Done accepts no further events.
	Done
)

// String returns the lowercase phase name.
func (p Phase) String() string {
	switch p {
	case Initializing:
		return "initializing"
	case Streaming:
		return "streaming"
	case Done:
		return "done"
	}
	return fmt.Sprintf("phase(%d)", int32(p))
}

// Config holds the detection parameters of a run.
type Config struct {
	Degree  int     // D: friend-degree radius
	Tracked int     // T: max reference purchases
	Sigma   float64 // k: flag when amount > mean + k*stddev
	// SeedEligible makes batch-phase purchases count as reference data.
	SeedEligible bool
}

// Validate reports configuration errors. These are fatal at startup.
func (c Config) Validate() error {
	if c.Degree < 1 {
		return fmt.Errorf("friend degree must be a positive integer, got %d", c.Degree)
	}
	if c.Tracked < 1 {
		return fmt.Errorf("tracked purchases must be a positive integer, got %d", c.Tracked)
	}
	if c.Sigma < 0 {
		return fmt.Errorf("sigma threshold must be non-negative, got %g", c.Sigma)
	}
	return nil
}

// Notifier receives applied-event notifications. Implementations must
// not block: they run on the event path.
type Notifier interface {
	PurchaseRecorded(d *flags.Decision)
	PurchaseFlagged(d *flags.Decision)
	FriendshipCreated(a, b string)
	FriendshipRemoved(a, b string)
}

// Processor applies events in arrival order and evaluates stream-phase
// purchases. All state mutation is serialized by one mutex, so
// evaluations always observe the graph and ledger exactly as of the
// triggering event's position in the stream.
type Processor struct {
	cfg    Config
	graph  *socialgraph.Graph
	ledger *purchases.Ledger
	agg    *neighborhood.Aggregator
	det    *anomaly.Detector
	logger *slog.Logger

	mu    sync.Mutex
	seq   uint64
	phase atomic.Int32

	// optional collaborators
	edgeStore     socialgraph.Store
	purchaseStore purchases.Store
	flagStore     flags.Store
	onInvalid     func(*events.Rejection)
	notifiers     []Notifier
}

// Option configures the processor.
type Option func(*Processor)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) { p.logger = logger }
}

// WithEdgeStore persists friendship mutations.
func WithEdgeStore(store socialgraph.Store) Option {
	return func(p *Processor) { p.edgeStore = store }
}

// WithPurchaseStore persists appended purchase records.
func WithPurchaseStore(store purchases.Store) Option {
	return func(p *Processor) { p.purchaseStore = store }
}

// WithFlagStore persists stream-phase evaluation decisions.
func WithFlagStore(store flags.Store) Option {
	return func(p *Processor) { p.flagStore = store }
}

// WithInvalidHandler registers a callback for rejected events. The
// rejection carries the raw record when one exists and a reason code.
func WithInvalidHandler(fn func(*events.Rejection)) Option {
	return func(p *Processor) { p.onInvalid = fn }
}

// WithNotifier registers an applied-event notifier.
func WithNotifier(n Notifier) Option {
	return func(p *Processor) { p.notifiers = append(p.notifiers, n) }
}

// New creates a processor in the Initializing phase over graph and
// ledger. Configuration errors are fatal here, never per-event.
func New(cfg Config, graph *socialgraph.Graph, ledger *purchases.Ledger, opts ...Option) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	det, err := anomaly.NewDetector(cfg.Sigma)
	if err != nil {
		return nil, err
	}

	agg := neighborhood.New(graph, ledger)
	if !cfg.SeedEligible {
		agg.ExcludeSeeded()
	}

	p := &Processor{
		cfg:    cfg,
		graph:  graph,
		ledger: ledger,
		agg:    agg,
		det:    det,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Phase returns the current lifecycle phase.
func (p *Processor) Phase() Phase {
	return Phase(p.phase.Load())
}

// Aggregator exposes the processor's neighborhood view, configured with
// the run's seed-eligibility policy.
func (p *Processor) Aggregator() *neighborhood.Aggregator { return p.agg }

// Config returns the run's detection parameters.
func (p *Processor) Config() Config { return p.cfg }

// NextSeq returns the sequence index the next applied purchase will get.
func (p *Processor) NextSeq() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seq + 1
}

// ResumeSeq advances the sequence counter past maxSeq, used after
// rehydrating the ledger from persistent storage.
func (p *Processor) ResumeSeq(maxSeq uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if maxSeq > p.seq {
		p.seq = maxSeq
	}
}

// StartStreaming transitions Initializing -> Streaming after the seed
// batch has been applied. Idempotent; there is no way back.
func (p *Processor) StartStreaming() {
	if p.phase.CompareAndSwap(int32(Initializing), int32(Streaming)) {
		p.logger.Info("stream processor entering steady state",
			"degree", p.cfg.Degree,
			"tracked", p.cfg.Tracked,
			"sigma", p.cfg.Sigma,
			"seeded_records", p.ledger.Total(),
		)
	}
}

// Finish transitions to Done. Further events are rejected.
func (p *Processor) Finish() {
	p.phase.Store(int32(Done))
}

// Apply validates and applies one event. For stream-phase purchases it
// returns the evaluation decision; for everything else the decision is
// nil. Rejected events return a *events.Rejection, are reported through
// the invalid handler, and leave all state untouched.
func (p *Processor) Apply(ctx context.Context, ev events.Event) (*flags.Decision, error) {
	if p.Phase() == Done {
		return nil, p.rejected(events.InvalidValue(fmt.Errorf("processor is done, event dropped")))
	}

	if err := ev.Validate(); err != nil {
		if rej, ok := err.(*events.Rejection); ok {
			return nil, p.rejected(rej)
		}
		return nil, p.rejected(events.Malformed(err))
	}

	switch ev.Kind {
	case events.KindBefriend:
		p.applyEdge(ctx, ev, true)
		return nil, nil
	case events.KindUnfriend:
		p.applyEdge(ctx, ev, false)
		return nil, nil
	case events.KindPurchase:
		return p.applyPurchase(ctx, ev), nil
	}
	// Unreachable: Validate covers unknown kinds.
	return nil, p.rejected(events.UnknownKind(fmt.Errorf("unknown event kind %q", ev.Kind)))
}

// ApplyRaw parses one JSON-lines record and applies it.
func (p *Processor) ApplyRaw(ctx context.Context, line []byte) (*flags.Decision, error) {
	ev, err := events.Parse(line)
	if err != nil {
		if rej, ok := err.(*events.Rejection); ok {
			return nil, p.rejected(rej)
		}
		return nil, err
	}
	return p.Apply(ctx, ev)
}

func (p *Processor) applyEdge(ctx context.Context, ev events.Event, add bool) {
	p.mu.Lock()
	var changed bool
	if add {
		changed = p.graph.AddEdge(ev.UserA, ev.UserB)
	} else {
		changed = p.graph.RemoveEdge(ev.UserA, ev.UserB)
	}
	p.mu.Unlock()

	metrics.EventsIngestedTotal.WithLabelValues(string(ev.Kind), p.Phase().String()).Inc()
	metrics.GraphEdges.Set(float64(p.graph.EdgeCount()))

	if !changed {
		return
	}
	if p.edgeStore != nil {
		var err error
		if add {
			err = p.edgeStore.SaveEdge(ctx, ev.UserA, ev.UserB)
		} else {
			err = p.edgeStore.DeleteEdge(ctx, ev.UserA, ev.UserB)
		}
		if err != nil {
			p.logger.Warn("failed to persist friendship change", "error", err)
		}
	}
	for _, n := range p.notifiers {
		if add {
			n.FriendshipCreated(ev.UserA, ev.UserB)
		} else {
			n.FriendshipRemoved(ev.UserA, ev.UserB)
		}
	}
}

func (p *Processor) applyPurchase(ctx context.Context, ev events.Event) *flags.Decision {
	phase := p.Phase()
	start := time.Now()

	p.mu.Lock()
	p.seq++
	rec := purchases.Record{
		Seq:       p.seq,
		Timestamp: ev.Timestamp,
		Amount:    ev.Amount,
		Seeded:    phase == Initializing,
	}

	// Evaluate before appending: a purchase is tested against history
	// excluding itself, then becomes history for future evaluations.
	var decision *flags.Decision
	if phase == Streaming {
		decision = p.evaluate(ev, rec.Seq)
	}

	p.ledger.Append(ev.User, rec)
	p.mu.Unlock()

	metrics.EventsIngestedTotal.WithLabelValues(string(ev.Kind), phase.String()).Inc()
	metrics.LedgerRecords.Set(float64(p.ledger.Total()))

	if p.purchaseStore != nil {
		if err := p.purchaseStore.SaveRecord(ctx, ev.User, rec); err != nil {
			p.logger.Warn("failed to persist purchase", "seq", rec.Seq, "error", err)
		}
	}

	if decision == nil {
		return nil
	}

	metrics.EvaluationDuration.Observe(time.Since(start).Seconds())
	if p.flagStore != nil {
		if err := p.flagStore.Save(ctx, decision); err != nil {
			p.logger.Warn("failed to persist decision", "id", decision.ID, "error", err)
		}
	}
	for _, n := range p.notifiers {
		n.PurchaseRecorded(decision)
		if decision.Flagged {
			n.PurchaseFlagged(decision)
		}
	}
	if decision.Flagged {
		p.logger.Info("purchase flagged",
			"user", decision.User,
			"amount", decision.Amount,
			"mean", decision.Mean,
			"stddev", decision.Stddev,
			"refs", decision.RefCount,
		)
	}
	return decision
}

// evaluate runs the neighborhood aggregation and the sigma test for one
// purchase. Caller holds p.mu, so the read is a consistent snapshot.
func (p *Processor) evaluate(ev events.Event, seq uint64) *flags.Decision {
	top, neighborhoodSize := p.agg.Reference(ev.User, p.cfg.Degree, p.cfg.Tracked)
	refs := make([]float64, len(top))
	for i, r := range top {
		refs[i] = r.Amount
	}

	flagged, stats := p.det.Evaluate(ev.Amount, refs)

	metrics.NeighborhoodSize.Observe(float64(neighborhoodSize))
	metrics.ReferenceSetSize.Observe(float64(len(refs)))
	switch {
	case len(refs) < anomaly.MinReferenceSize:
		metrics.EvaluationsTotal.WithLabelValues("insufficient_data").Inc()
	case flagged:
		metrics.EvaluationsTotal.WithLabelValues("flagged").Inc()
	default:
		metrics.EvaluationsTotal.WithLabelValues("clean").Inc()
	}

	return &flags.Decision{
		ID:        idgen.WithPrefix("flag_"),
		Seq:       seq,
		User:      ev.User,
		Amount:    ev.Amount,
		Timestamp: ev.Timestamp,
		Mean:      stats.Mean,
		Stddev:    stats.Stddev,
		RefCount:  stats.N,
		Flagged:   flagged,
		CreatedAt: time.Now().UTC(),
	}
}

// Check evaluates amount for user against the current state without
// mutating anything: no sequence index is consumed, nothing is appended
// or persisted. Works in any phase.
func (p *Processor) Check(user string, amount float64) *flags.Decision {
	p.mu.Lock()
	defer p.mu.Unlock()

	top, _ := p.agg.Reference(user, p.cfg.Degree, p.cfg.Tracked)
	refs := make([]float64, len(top))
	for i, r := range top {
		refs[i] = r.Amount
	}
	flagged, stats := p.det.Evaluate(amount, refs)

	return &flags.Decision{
		User:      user,
		Amount:    amount,
		Mean:      stats.Mean,
		Stddev:    stats.Stddev,
		RefCount:  stats.N,
		Flagged:   flagged,
		CreatedAt: time.Now().UTC(),
	}
}

// rejected reports a rejection through metrics and the invalid handler,
// then returns it.
func (p *Processor) rejected(rej *events.Rejection) error {
	metrics.EventsRejectedTotal.WithLabelValues(string(rej.Reason)).Inc()
	p.logger.Warn("event rejected", "reason", rej.Reason, "error", rej.Err)
	if p.onInvalid != nil {
		p.onInvalid(rej)
	}
	return rej
}

// Befriend applies a typed befriend event; part of the edge-writer
// surface the HTTP handlers use.
func (p *Processor) Befriend(ctx context.Context, a, b string, at time.Time) error {
	_, err := p.Apply(ctx, events.Befriend(a, b, at))
	return err
}

// Unfriend applies a typed unfriend event.
func (p *Processor) Unfriend(ctx context.Context, a, b string, at time.Time) error {
	_, err := p.Apply(ctx, events.Unfriend(a, b, at))
	return err
}

// RecordPurchase applies a typed purchase event and returns its
// decision (nil during the Initializing phase).
func (p *Processor) RecordPurchase(ctx context.Context, user string, amount float64, at time.Time) (*flags.Decision, error) {
	return p.Apply(ctx, events.Purchase(user, amount, at))
}
