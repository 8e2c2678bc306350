package flags

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func seedStore(t *testing.T, n int) *MemoryStore {
	t.Helper()
	store := NewMemoryStore()
	base := time.Date(2017, 7, 2, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		d := &Decision{
			ID:        fmt.Sprintf("flag_%03d", i),
			Seq:       uint64(i + 1),
			User:      fmt.Sprint(i % 3),
			Amount:    float64(10 * i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Flagged:   i%2 == 0,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := store.Save(context.Background(), d); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	return store
}

func TestMemoryStore_GetRoundTrip(t *testing.T) {
	store := seedStore(t, 3)

	d, err := store.Get(context.Background(), "flag_001")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if d.Seq != 2 || d.User != "1" {
		t.Errorf("decision = %+v", d)
	}

	if _, err := store.Get(context.Background(), "flag_999"); err == nil {
		t.Error("missing decision must error")
	}
}

func TestMemoryStore_ListNewestFirst(t *testing.T) {
	store := seedStore(t, 5)

	out, err := store.List(context.Background(), ListFilter{}, time.Time{}, "", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 5 {
		t.Fatalf("expected 5 decisions, got %d", len(out))
	}
	for i := 1; i < len(out); i++ {
		if out[i].CreatedAt.After(out[i-1].CreatedAt) {
			t.Fatal("list must be newest first")
		}
	}
}

func TestMemoryStore_ListFilters(t *testing.T) {
	store := seedStore(t, 9)

	flagged, err := store.List(context.Background(), ListFilter{FlaggedOnly: true}, time.Time{}, "", 20)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, d := range flagged {
		if !d.Flagged {
			t.Errorf("unflagged decision %s leaked into flagged-only list", d.ID)
		}
	}

	user, err := store.List(context.Background(), ListFilter{User: "1"}, time.Time{}, "", 20)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(user) != 3 {
		t.Errorf("expected 3 decisions for user 1, got %d", len(user))
	}
	for _, d := range user {
		if d.User != "1" {
			t.Errorf("wrong user %s in filtered list", d.User)
		}
	}
}

func TestMemoryStore_KeysetPagination(t *testing.T) {
	store := seedStore(t, 7)

	page1, err := store.List(context.Background(), ListFilter{}, time.Time{}, "", 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page1) != 3 {
		t.Fatalf("expected 3, got %d", len(page1))
	}

	last := page1[len(page1)-1]
	page2, err := store.List(context.Background(), ListFilter{}, last.CreatedAt, last.ID, 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page2) != 3 {
		t.Fatalf("expected 3, got %d", len(page2))
	}

	seen := map[string]bool{}
	for _, d := range append(page1, page2...) {
		if seen[d.ID] {
			t.Errorf("decision %s appeared on two pages", d.ID)
		}
		seen[d.ID] = true
	}
}

func TestMemoryStore_Count(t *testing.T) {
	store := seedStore(t, 6)

	total, err := store.Count(context.Background(), false)
	if err != nil || total != 6 {
		t.Errorf("total = %d (%v), want 6", total, err)
	}
	flagged, err := store.Count(context.Background(), true)
	if err != nil || flagged != 3 {
		t.Errorf("flagged = %d (%v), want 3", flagged, err)
	}
}

func TestMemoryStore_SaveCopies(t *testing.T) {
	store := NewMemoryStore()
	d := &Decision{ID: "flag_x", User: "1", CreatedAt: time.Now()}
	if err := store.Save(context.Background(), d); err != nil {
		t.Fatalf("save: %v", err)
	}

	d.User = "mutated"

	got, err := store.Get(context.Background(), "flag_x")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.User != "1" {
		t.Error("store must not alias caller memory")
	}
}
