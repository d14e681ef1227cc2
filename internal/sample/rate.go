package sample

import "time"

// RateCounter turns a monotonically increasing cumulative counter into a
// bytes/second rate, the same delta-over-elapsed shape the cgroup sampler
// uses for Δusage_usec/Δt internally (and the one original_source's
// system monitor uses for disk/net counters — SPEC_FULL.md §C.5). The
// first observation establishes a baseline and reports zero.
type RateCounter struct {
	prev   uint64
	prevTs time.Time
	warm   bool
}

// Observe records a new cumulative reading and returns the rate since the
// previous observation in units-per-second.
func (r *RateCounter) Observe(now time.Time, cumulative uint64) float64 {
	if !r.warm {
		r.warm = true
		r.prev = cumulative
		r.prevTs = now
		return 0
	}

	elapsed := now.Sub(r.prevTs).Seconds()
	if cumulative < r.prev {
		// The counted device set shrank (unplugged NIC, disk removed) or
		// the counter itself reset; a uint64 subtraction here would wrap
		// around instead of going negative, so check before subtracting.
		r.prev = cumulative
		r.prevTs = now
		return 0
	}
	delta := cumulative - r.prev
	r.prev = cumulative
	r.prevTs = now

	if elapsed <= 0 {
		return 0
	}
	return float64(delta) / elapsed
}

// DiskNetRates bundles the four auxiliary counters SPEC_FULL.md §C.5 wires
// onto the per-tick metric event.
type DiskNetRates struct {
	DiskReadBps  float64
	DiskWriteBps float64
	NetRecvBps   float64
	NetSentBps   float64
}

// DiskNetSampler owns the four RateCounters needed to populate
// DiskNetRates and the gopsutil calls that feed them.
type DiskNetSampler struct {
	diskRead  RateCounter
	diskWrite RateCounter
	netRecv   RateCounter
	netSent   RateCounter
}

// NewDiskNetSampler constructs an auxiliary disk/net rate sampler.
func NewDiskNetSampler() *DiskNetSampler { return &DiskNetSampler{} }

// Sample reads current cumulative disk and network counters via gopsutil
// and converts them to rates. Errors from either subsystem are non-fatal:
// a zeroed contribution is returned for whichever counter failed, since
// these metrics are auxiliary (spec.md §2: 5% share) and must never
// abandon a tick over them.
func (d *DiskNetSampler) Sample(now time.Time) DiskNetRates {
	var out DiskNetRates

	if readBytes, writeBytes, err := readDiskCounters(); err == nil {
		out.DiskReadBps = d.diskRead.Observe(now, readBytes)
		out.DiskWriteBps = d.diskWrite.Observe(now, writeBytes)
	}
	if recvBytes, sentBytes, err := readNetCounters(); err == nil {
		out.NetRecvBps = d.netRecv.Observe(now, recvBytes)
		out.NetSentBps = d.netSent.Observe(now, sentBytes)
	}
	return out
}
