// Package sample produces one normalized CPU% per tick, either from
// whole-machine host counters or from a cgroup's own accounting (spec.md
// §4.1). It also carries RateCounter, the delta/elapsed helper used for
// auxiliary disk and network rate metrics (SPEC_FULL.md §C.5).
package sample

import (
	"errors"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
)

// ErrTimeDeltaTooSmall is returned when a sample's timestamp is not after
// the previous one's, leaving no elapsed time to compute a percentage over.
var ErrTimeDeltaTooSmall = errors.New("sample: time delta too small")

// Sample is one normalized CPU% reading (spec.md §3). Method names the
// accounting source so downstream events can reconcile against it.
type Sample struct {
	Ts     time.Time
	CPUPct float64
	Method string // "host" or "cgroup"
}

// Sampler produces exactly one Sample per tick. Implementations are
// stateful and must be invoked by a single caller (spec.md §4.1) — the
// control loop owns the one instance in play for a process's lifetime.
type Sampler interface {
	Sample(now time.Time) (Sample, error)
}

// Host is the tagged variant reading whole-machine CPU utilization via
// gopsutil. First call establishes gopsutil's internal baseline and
// returns 0, exactly like the cgroup variant's own baseline call.
type Host struct {
	warm bool
}

// NewHost constructs the host-mode sampler.
func NewHost() *Host { return &Host{} }

func (h *Host) Sample(now time.Time) (Sample, error) {
	if !h.warm {
		h.warm = true
		// gopsutil blocks for the interval; a 0-duration call reads the
		// delta since the process's own prior /proc/stat snapshot, which
		// does not exist yet on the very first call.
		if _, err := cpu.Percent(0, false); err != nil {
			return Sample{}, err
		}
		return Sample{Ts: now, CPUPct: 0, Method: "host"}, nil
	}
	pcts, err := cpu.Percent(0, false)
	if err != nil {
		return Sample{}, err
	}
	if len(pcts) == 0 {
		return Sample{}, errors.New("sample: no host CPU data")
	}
	return Sample{Ts: now, CPUPct: clamp(pcts[0]), Method: "host"}, nil
}

// UsageReader is the narrow interface CgroupSampler needs from the
// actuator's cgroup directory: cumulative CPU microseconds and the number
// of CPUs the limit is normalized against. internal/actuator implements
// this directly against cpu.stat, keeping the sampler ignorant of cgroup
// file paths.
type UsageReader interface {
	UsageUsec() (uint64, error)
	NumCPUs() float64
}

// Cgroup is the tagged variant reading Δusage_usec/Δt/N_cpus from the
// governed cgroup's own accounting (spec.md §4.1) — selected once the
// actuator initializes successfully (spec.md §9: fixed for process
// lifetime).
type Cgroup struct {
	reader   UsageReader
	prevUsec uint64
	prevTs   time.Time
	warm     bool
}

// NewCgroup constructs the cgroup-mode sampler against reader.
func NewCgroup(reader UsageReader) *Cgroup {
	return &Cgroup{reader: reader}
}

func (c *Cgroup) Sample(now time.Time) (Sample, error) {
	usage, err := c.reader.UsageUsec()
	if err != nil {
		return Sample{}, err
	}
	if !c.warm {
		c.warm = true
		c.prevUsec = usage
		c.prevTs = now
		return Sample{Ts: now, CPUPct: 0, Method: "cgroup"}, nil
	}

	deltaUsec := usage - c.prevUsec
	deltaSeconds := now.Sub(c.prevTs).Seconds()
	c.prevUsec = usage
	c.prevTs = now

	if deltaSeconds <= 0 {
		return Sample{}, ErrTimeDeltaTooSmall
	}

	numCPUs := c.reader.NumCPUs()
	if numCPUs <= 0 {
		numCPUs = 1
	}

	pct := (float64(deltaUsec) / (deltaSeconds * 1_000_000 * numCPUs)) * 100.0
	return Sample{Ts: now, CPUPct: clamp(pct), Method: "cgroup"}, nil
}

func clamp(pct float64) float64 {
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	default:
		return pct
	}
}
