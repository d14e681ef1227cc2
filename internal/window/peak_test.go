package window

import (
	"math"
	"testing"
	"time"
)

func TestPeak_Monotonicity(t *testing.T) {
	horizon := 24 * time.Hour
	threshold := 95.0
	p := NewPeak(horizon, threshold)

	start := time.Unix(0, 0)
	tick := time.Second
	d := 100 * time.Second // d <= H_peak

	var now time.Time
	for elapsed := time.Duration(0); elapsed <= d; elapsed += tick {
		now = start.Add(elapsed)
		p.Update(now, 98)
	}

	got := p.TotalPeakSeconds(now)
	want := d.Seconds()
	if math.Abs(got-want) > tick.Seconds() {
		t.Fatalf("total_peak_seconds = %v, want ~%v", got, want)
	}
}

func TestPeak_Saturation(t *testing.T) {
	horizon := 5 * time.Second
	threshold := 95.0
	p := NewPeak(horizon, threshold)

	start := time.Unix(0, 0)
	tick := time.Second
	d := 50 * time.Second // d > H_peak

	var now time.Time
	for elapsed := time.Duration(0); elapsed <= d; elapsed += tick {
		now = start.Add(elapsed)
		p.Update(now, 98)
	}

	got := p.TotalPeakSeconds(now)
	want := horizon.Seconds()
	if math.Abs(got-want) > tick.Seconds() {
		t.Fatalf("total_peak_seconds = %v, want ~%v (capped at horizon)", got, want)
	}
}

func TestPeak_ClosesSpanBelowThreshold(t *testing.T) {
	p := NewPeak(time.Minute, 90)
	start := time.Unix(0, 0)

	p.Update(start, 95)
	if !p.Open() {
		t.Fatal("expected open span after exceeding threshold")
	}
	p.Update(start.Add(10*time.Second), 50)
	if p.Open() {
		t.Fatal("expected span closed after dropping below threshold")
	}

	got := p.TotalPeakSeconds(start.Add(10 * time.Second))
	if math.Abs(got-10) > 0.01 {
		t.Fatalf("total_peak_seconds after close = %v, want 10", got)
	}
}

func TestPeak_RemainingNeverNegative(t *testing.T) {
	p := NewPeak(time.Minute, 90)
	start := time.Unix(0, 0)
	p.Update(start, 95)
	now := start.Add(time.Hour)
	if r := p.Remaining(now, 10); r != 0 {
		t.Fatalf("Remaining = %v, want 0", r)
	}
}
