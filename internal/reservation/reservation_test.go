package reservation

import (
	"testing"
	"time"
)

func mkTime(s int) time.Time { return time.Unix(int64(s), 0) }

func TestStore_ActiveNoneWhenEmpty(t *testing.T) {
	s := NewStore()
	if _, ok := s.Active(mkTime(0)); ok {
		t.Fatal("expected no active reservation on empty store")
	}
}

func TestStore_ActiveRespectsWindow(t *testing.T) {
	s := NewStore()
	s.Replace([]Reservation{
		{ID: "a", Start: mkTime(100), End: mkTime(200), CPUQuotaPct: 10, Priority: 1, Enabled: true},
	})

	if _, ok := s.Active(mkTime(50)); ok {
		t.Fatal("reservation should not be active before start")
	}
	if r, ok := s.Active(mkTime(150)); !ok || r.ID != "a" {
		t.Fatalf("expected reservation a active, got %+v ok=%v", r, ok)
	}
	if _, ok := s.Active(mkTime(250)); ok {
		t.Fatal("reservation should not be active after end")
	}
}

func TestStore_DisabledNeverActive(t *testing.T) {
	s := NewStore()
	s.Replace([]Reservation{
		{ID: "a", Start: mkTime(0), End: mkTime(1000), CPUQuotaPct: 10, Priority: 1, Enabled: false},
	})
	if _, ok := s.Active(mkTime(500)); ok {
		t.Fatal("disabled reservation must never be active")
	}
}

func TestStore_HighestPriorityWins(t *testing.T) {
	s := NewStore()
	s.Replace([]Reservation{
		{ID: "low", Start: mkTime(0), End: mkTime(1000), CPUQuotaPct: 10, Priority: 1, Enabled: true},
		{ID: "high", Start: mkTime(0), End: mkTime(1000), CPUQuotaPct: 20, Priority: 5, Enabled: true},
	})
	r, ok := s.Active(mkTime(500))
	if !ok || r.ID != "high" {
		t.Fatalf("expected high-priority reservation, got %+v ok=%v", r, ok)
	}
}

func TestStore_TieBreakEarliestStart(t *testing.T) {
	s := NewStore()
	s.Replace([]Reservation{
		{ID: "later", Start: mkTime(100), End: mkTime(1000), CPUQuotaPct: 10, Priority: 5, Enabled: true},
		{ID: "earlier", Start: mkTime(50), End: mkTime(1000), CPUQuotaPct: 20, Priority: 5, Enabled: true},
	})
	r, ok := s.Active(mkTime(500))
	if !ok || r.ID != "earlier" {
		t.Fatalf("expected earliest-start reservation on tie, got %+v ok=%v", r, ok)
	}
}

func TestSortByPriority(t *testing.T) {
	rs := []Reservation{
		{ID: "b", Priority: 1, Start: mkTime(10)},
		{ID: "a", Priority: 5, Start: mkTime(5)},
		{ID: "c", Priority: 5, Start: mkTime(1)},
	}
	sortByPriority(rs)
	if rs[0].ID != "c" || rs[1].ID != "a" || rs[2].ID != "b" {
		t.Fatalf("unexpected order: %+v", rs)
	}
}
