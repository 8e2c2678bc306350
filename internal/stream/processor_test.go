package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nwtnsqrd/peerflag/internal/events"
	"github.com/nwtnsqrd/peerflag/internal/flags"
	"github.com/nwtnsqrd/peerflag/internal/purchases"
	"github.com/nwtnsqrd/peerflag/internal/socialgraph"
)

var base = time.Date(2017, 7, 2, 12, 0, 0, 0, time.UTC)

func newProcessor(t *testing.T, cfg Config, opts ...Option) *Processor {
	t.Helper()
	p, err := New(cfg, socialgraph.New(), purchases.NewLedger(), opts...)
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}
	return p
}

func defaultConfig() Config {
	return Config{Degree: 2, Tracked: 5, Sigma: 3, SeedEligible: true}
}

func mustApply(t *testing.T, p *Processor, ev events.Event) *flags.Decision {
	t.Helper()
	d, err := p.Apply(context.Background(), ev)
	if err != nil {
		t.Fatalf("apply %+v: %v", ev, err)
	}
	return d
}

func TestNew_ConfigErrorsAreFatal(t *testing.T) {
	bad := []Config{
		{Degree: 0, Tracked: 5, Sigma: 3},
		{Degree: 2, Tracked: 0, Sigma: 3},
		{Degree: 2, Tracked: 5, Sigma: -1},
	}
	for _, cfg := range bad {
		if _, err := New(cfg, socialgraph.New(), purchases.NewLedger()); err == nil {
			t.Errorf("config %+v must be rejected at startup", cfg)
		}
	}
}

func TestPhaseTransitions_ForwardOnly(t *testing.T) {
	p := newProcessor(t, defaultConfig())
	if p.Phase() != Initializing {
		t.Fatalf("phase = %v, want initializing", p.Phase())
	}

	p.StartStreaming()
	if p.Phase() != Streaming {
		t.Fatalf("phase = %v, want streaming", p.Phase())
	}
	p.StartStreaming() // idempotent
	if p.Phase() != Streaming {
		t.Fatal("repeated StartStreaming must be a no-op")
	}

	p.Finish()
	if p.Phase() != Done {
		t.Fatalf("phase = %v, want done", p.Phase())
	}
	if _, err := p.Apply(context.Background(), events.Purchase("1", 5, base)); err == nil {
		t.Error("a finished processor must reject events")
	}
}

func TestBatchPurchases_SeedButNeverFlag(t *testing.T) {
	p := newProcessor(t, defaultConfig())

	mustApply(t, p, events.Befriend("1", "2", base))
	if d := mustApply(t, p, events.Purchase("2", 1000000, base)); d != nil {
		t.Error("batch-phase purchases must not produce decisions")
	}
}

func TestScenario_SeededNeighborhoodFlagsOutlier(t *testing.T) {
	p := newProcessor(t, defaultConfig())

	// Seed: 1-2-3 chain, purchases by 2 (50) and 3 (60).
	mustApply(t, p, events.Befriend("1", "2", base))
	mustApply(t, p, events.Befriend("2", "3", base))
	mustApply(t, p, events.Purchase("2", 50, base))
	mustApply(t, p, events.Purchase("3", 60, base.Add(time.Second)))

	p.StartStreaming()

	d := mustApply(t, p, events.Purchase("1", 1000, base.Add(2*time.Second)))
	if d == nil {
		t.Fatal("stream purchase must produce a decision")
	}
	if !d.Flagged {
		t.Error("1000 against reference [60 50] must flag")
	}
	if d.Mean != 55 || d.Stddev != 5 || d.RefCount != 2 {
		t.Errorf("stats = mean %g stddev %g n %d, want 55/5/2", d.Mean, d.Stddev, d.RefCount)
	}
	if d.Seq != 3 {
		t.Errorf("seq = %d, want 3 (third purchase ingested)", d.Seq)
	}
}

func TestPurchase_EvaluatedAgainstHistoryExcludingItself(t *testing.T) {
	p := newProcessor(t, defaultConfig())
	mustApply(t, p, events.Befriend("1", "2", base))
	mustApply(t, p, events.Purchase("2", 10, base))
	mustApply(t, p, events.Purchase("2", 10, base))
	p.StartStreaming()

	// If the new purchase leaked into its own reference set, the set
	// would contain 100 and the stats would shift.
	d := mustApply(t, p, events.Purchase("1", 100, base.Add(time.Second)))
	if d.Mean != 10 || d.RefCount != 2 {
		t.Errorf("stats = mean %g n %d, want mean 10 n 2 (self excluded)", d.Mean, d.RefCount)
	}
	if !d.Flagged {
		t.Error("100 against a uniform-10 reference must flag")
	}

	// The purchase is now history: 1's own buys never count for 1, but
	// they do count for 2's neighborhood.
	d2 := mustApply(t, p, events.Purchase("2", 100, base.Add(2*time.Second)))
	if d2.RefCount != 1 {
		t.Errorf("2's reference set should hold only 1's purchase, n = %d", d2.RefCount)
	}
	if d2.Flagged {
		t.Error("a single reference point is inconclusive and must not flag")
	}
}

func TestInsufficientData_NeverFlags(t *testing.T) {
	p := newProcessor(t, defaultConfig())
	p.StartStreaming()

	// No friends at all.
	d := mustApply(t, p, events.Purchase("loner", 1e9, base))
	if d.Flagged {
		t.Error("a user with no neighborhood must never be flagged")
	}
	if d.RefCount != 0 {
		t.Errorf("refCount = %d, want 0", d.RefCount)
	}
}

func TestRejectedEvents_DoNotMutateState(t *testing.T) {
	var rejections []*events.Rejection
	p := newProcessor(t, defaultConfig(), WithInvalidHandler(func(r *events.Rejection) {
		rejections = append(rejections, r)
	}))
	mustApply(t, p, events.Befriend("1", "2", base))
	p.StartStreaming()

	_, err := p.Apply(context.Background(), events.Purchase("2", -5, base))
	if err == nil {
		t.Fatal("negative amount must be rejected")
	}
	var rej *events.Rejection
	if !errors.As(err, &rej) || rej.Reason != events.ReasonInvalidValue {
		t.Fatalf("unexpected rejection %v", err)
	}
	if len(rejections) != 1 {
		t.Fatalf("invalid handler called %d times, want 1", len(rejections))
	}
	if p.NextSeq() != 1 {
		t.Error("rejected purchase must not consume a sequence index")
	}

	// Processing continues: the next valid event lands with seq 1.
	d := mustApply(t, p, events.Purchase("2", 5, base))
	if d == nil || d.Seq != 1 {
		t.Errorf("decision after rejection = %+v, want seq 1", d)
	}
}

func TestApplyRaw_ReportsRawLine(t *testing.T) {
	var got *events.Rejection
	p := newProcessor(t, defaultConfig(), WithInvalidHandler(func(r *events.Rejection) { got = r }))
	p.StartStreaming()

	line := `{"event_type":"purchase", "timestamp":"2017-07-02 12:00:00", "id":"1", "amount":"-5"}`
	if _, err := p.ApplyRaw(context.Background(), []byte(line)); err == nil {
		t.Fatal("expected rejection")
	}
	if got == nil || got.Raw != line {
		t.Errorf("invalid handler must receive the raw record, got %+v", got)
	}
}

func TestUnfriendNarrowsReferenceSet(t *testing.T) {
	p := newProcessor(t, defaultConfig())
	mustApply(t, p, events.Befriend("1", "2", base))
	mustApply(t, p, events.Befriend("2", "3", base))
	mustApply(t, p, events.Purchase("2", 50, base))
	mustApply(t, p, events.Purchase("3", 60, base))
	p.StartStreaming()

	if d := mustApply(t, p, events.Purchase("1", 55, base)); d.RefCount != 2 {
		t.Fatalf("refCount = %d, want 2", d.RefCount)
	}

	mustApply(t, p, events.Unfriend("2", "3", base))

	if d := mustApply(t, p, events.Purchase("1", 55, base)); d.RefCount != 1 {
		t.Errorf("after unfriend, refCount = %d, want 1 (3 is unreachable)", d.RefCount)
	}
}

func TestSeedHistoryIneligible(t *testing.T) {
	cfg := defaultConfig()
	cfg.SeedEligible = false
	p := newProcessor(t, cfg)

	mustApply(t, p, events.Befriend("1", "2", base))
	mustApply(t, p, events.Purchase("2", 50, base))
	mustApply(t, p, events.Purchase("2", 60, base))
	p.StartStreaming()

	d := mustApply(t, p, events.Purchase("1", 1000, base.Add(time.Second)))
	if d.RefCount != 0 {
		t.Errorf("seed-ineligible run: refCount = %d, want 0", d.RefCount)
	}
	if d.Flagged {
		t.Error("without reference data the purchase must not flag")
	}

	// Stream-phase purchases become eligible immediately.
	mustApply(t, p, events.Purchase("2", 70, base.Add(2*time.Second)))
	d2 := mustApply(t, p, events.Purchase("1", 1000, base.Add(3*time.Second)))
	if d2.RefCount != 1 {
		t.Errorf("stream history refCount = %d, want 1", d2.RefCount)
	}
}

func TestFlagStoreAndNotifiers(t *testing.T) {
	store := flags.NewMemoryStore()
	notes := &recordingNotifier{}
	p := newProcessor(t, defaultConfig(), WithFlagStore(store), WithNotifier(notes))

	mustApply(t, p, events.Befriend("1", "2", base))
	mustApply(t, p, events.Purchase("2", 50, base))
	mustApply(t, p, events.Purchase("2", 60, base))
	p.StartStreaming()

	d := mustApply(t, p, events.Purchase("1", 1000, base.Add(time.Second)))
	if !d.Flagged {
		t.Fatal("expected flag")
	}

	saved, err := store.Get(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("decision not persisted: %v", err)
	}
	if saved.Amount != 1000 {
		t.Errorf("persisted amount = %g", saved.Amount)
	}

	if notes.recorded != 1 || notes.flagged != 1 || notes.befriended != 1 {
		t.Errorf("notifier calls = %+v", notes)
	}
}

func TestCheck_IsDryRun(t *testing.T) {
	p := newProcessor(t, defaultConfig())
	mustApply(t, p, events.Befriend("1", "2", base))
	mustApply(t, p, events.Purchase("2", 50, base))
	mustApply(t, p, events.Purchase("2", 60, base))
	p.StartStreaming()

	d := p.Check("1", 1000)
	if !d.Flagged || d.RefCount != 2 {
		t.Errorf("check decision = %+v", d)
	}
	if p.NextSeq() != 3 {
		t.Error("check must not consume a sequence index")
	}
	if p.Check("1", 1000).RefCount != 2 {
		t.Error("check must not append to the ledger")
	}
}

type recordingNotifier struct {
	recorded, flagged, befriended, unfriended int
}

func (r *recordingNotifier) PurchaseRecorded(*flags.Decision) { r.recorded++ }
func (r *recordingNotifier) PurchaseFlagged(*flags.Decision)  { r.flagged++ }
func (r *recordingNotifier) FriendshipCreated(a, b string)    { r.befriended++ }
func (r *recordingNotifier) FriendshipRemoved(a, b string)    { r.unfriended++ }
