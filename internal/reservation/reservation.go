// Package reservation holds the read-only snapshot of scheduled quota
// pins the control loop consults each tick.
package reservation

import (
	"sort"
	"sync/atomic"
	"time"
)

// Reservation pins the ceiling to CPUQuotaPct for [Start, End] while
// Enabled is true. The core never mutates these; an external collaborator
// owns conflict detection (spec.md §9) and publishes snapshots via Store.
type Reservation struct {
	ID          string
	Start       time.Time
	End         time.Time
	CPUQuotaPct float64
	Priority    int
	Enabled     bool
}

// active reports whether the reservation covers t.
func (r Reservation) active(t time.Time) bool {
	return r.Enabled && !t.Before(r.Start) && !t.After(r.End)
}

// Store holds the current set of reservations behind a lock-free snapshot,
// mirroring the teacher's atomic.Value-guarded hot-path reads in its
// resource guard: the control loop calls Active() once per tick without
// ever blocking on a writer.
type Store struct {
	snapshot atomic.Value // []Reservation
}

// NewStore creates an empty Store.
func NewStore() *Store {
	s := &Store{}
	s.snapshot.Store([]Reservation{})
	return s
}

// Replace atomically swaps in a new reservation set. Intended to be called
// by the external collaborator that owns reservation CRUD and overlap
// validation (spec.md §9); the core only ever reads.
func (s *Store) Replace(reservations []Reservation) {
	cp := make([]Reservation, len(reservations))
	copy(cp, reservations)
	s.snapshot.Store(cp)
}

// Active returns the highest-priority enabled reservation covering now,
// breaking ties by earliest start (spec.md §3, §4.4).
func (s *Store) Active(now time.Time) (Reservation, bool) {
	all, _ := s.snapshot.Load().([]Reservation)
	var best Reservation
	found := false
	for _, r := range all {
		if !r.active(now) {
			continue
		}
		if !found {
			best, found = r, true
			continue
		}
		if r.Priority > best.Priority || (r.Priority == best.Priority && r.Start.Before(best.Start)) {
			best = r
		}
	}
	return best, found
}

// sortByPriority is used only by tests to assert the tie-break ordering
// deterministically.
func sortByPriority(rs []Reservation) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Priority != rs[j].Priority {
			return rs[i].Priority > rs[j].Priority
		}
		return rs[i].Start.Before(rs[j].Start)
	})
}
