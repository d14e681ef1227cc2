package window

import "time"

// span is a closed peak period: duration_seconds spent at or above
// threshold starting at start_ts.
type span struct {
	start time.Time
	dur   time.Duration
}

// Peak tracks the total wall time spent at or above a saturation
// threshold over a rolling horizon, including an open-ended "currently
// peaking" span (spec.md §4.3).
type Peak struct {
	horizon   time.Duration
	threshold float64

	closed []span
	// closedHead indexes the oldest live closed span; evicted spans are
	// reclaimed from the front the same way internal/window.Average does.
	closedHead int

	openStart time.Time
	open      bool
}

// NewPeak creates a PeakWindow for the given horizon and saturation
// threshold (percent CPU).
func NewPeak(horizon time.Duration, thresholdPct float64) *Peak {
	return &Peak{horizon: horizon, threshold: thresholdPct}
}

// Update advances the eviction cursor and then folds in one sample
// (spec.md §4.3): evict closed spans whose start is older than
// now-horizon (the whole span is dropped, even if it ended inside the
// horizon), cap an open
// span's start at the horizon boundary, then open/close a span depending
// on whether cpuPct crosses the threshold.
func (p *Peak) Update(now time.Time, cpuPct float64) {
	cutoff := now.Add(-p.horizon)

	for p.closedHead < len(p.closed) && p.closed[p.closedHead].start.Before(cutoff) {
		p.closedHead++
	}
	if p.closedHead >= compactThreshold {
		p.compactClosed()
	}

	if p.open && p.openStart.Before(cutoff) {
		p.openStart = cutoff
	}

	switch {
	case cpuPct >= p.threshold && !p.open:
		p.open = true
		p.openStart = now
	case cpuPct < p.threshold && p.open:
		p.closed = append(p.closed, span{start: p.openStart, dur: now.Sub(p.openStart)})
		p.open = false
	}
}

func (p *Peak) compactClosed() {
	live := len(p.closed) - p.closedHead
	copy(p.closed[:live], p.closed[p.closedHead:])
	p.closed = p.closed[:live]
	p.closedHead = 0
}

// TotalPeakSeconds sums every closed span's duration plus the open span's
// duration-so-far, if one exists.
func (p *Peak) TotalPeakSeconds(now time.Time) float64 {
	var total time.Duration
	for i := p.closedHead; i < len(p.closed); i++ {
		total += p.closed[i].dur
	}
	if p.open {
		total += now.Sub(p.openStart)
	}
	return total.Seconds()
}

// Remaining returns max(0, budgetSeconds - total_peak_seconds()).
func (p *Peak) Remaining(now time.Time, budgetSeconds float64) float64 {
	r := budgetSeconds - p.TotalPeakSeconds(now)
	if r < 0 {
		return 0
	}
	return r
}

// Open reports whether a peak span is currently open.
func (p *Peak) Open() bool { return p.open }
