// Package actuator owns the governed cgroup v2 directory: writing
// cpu.max, managing cgroup.procs membership, and reading back the
// effective limit (spec.md §4.6).
package actuator

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	gopsproc "github.com/shirou/gopsutil/v3/process"
)

const periodUsec = 100_000

// ResyncStats is resync_all's return shape (spec.md §4.6).
type ResyncStats struct {
	Scanned int
	Added   int
	Skipped int
	Failed  int
}

// Cgroup is the cgroup v2 actuator. It is mutated only by the control
// loop's single task (spec.md §5).
type Cgroup struct {
	path       string
	parentPath string
	numCPUs    float64
	logger     zerolog.Logger

	initialized bool
	// observeOnly is set when initialize fails with Privilege or
	// Environment: set_limit becomes a no-op rather than erroring every
	// tick (spec.md §4.6 "the loop falls back to observe-only mode").
	observeOnly bool

	// systemEssentials names are skipped during resync_all even though
	// they have no cmdline-derived reason to be (e.g. "init", "systemd",
	// "sshd") — the filter is conservative by design (spec.md §4.6).
	systemEssentials map[string]bool
}

// New constructs a Cgroup actuator rooted at path, normalizing limits
// against numCPUs (spec.md §4.6 "Normalization").
func New(path string, numCPUs float64, essentials []string, logger zerolog.Logger) *Cgroup {
	set := make(map[string]bool, len(essentials))
	for _, e := range essentials {
		set[e] = true
	}
	return &Cgroup{
		path:             path,
		parentPath:       filepath.Dir(path),
		numCPUs:          numCPUs,
		logger:           logger,
		systemEssentials: set,
	}
}

// Initialize creates the cgroup directory if absent, enables the cpu
// controller on the parent, and fails fast on missing privilege or a
// missing/wrong-version cgroup hierarchy.
func (c *Cgroup) Initialize() error {
	if os.Geteuid() != 0 {
		c.observeOnly = true
		return ErrInsufficientPrivilege
	}

	if err := probeCgroupVersion(); err != nil {
		c.observeOnly = true
		return err
	}

	if err := os.MkdirAll(c.path, 0o755); err != nil {
		c.observeOnly = true
		return fmt.Errorf("actuator: mkdir %s: %w", c.path, err)
	}

	subtreeControl := filepath.Join(c.parentPath, "cgroup.subtree_control")
	if err := appendFile(subtreeControl, "+cpu\n"); err != nil {
		c.logger.Warn().Err(err).Str("file", subtreeControl).
			Msg("failed to enable cpu controller on parent, continuing (may already be enabled)")
	}

	if _, err := os.Stat(filepath.Join(c.path, "cpu.max")); err != nil {
		c.observeOnly = true
		return fmt.Errorf("%w: cpu.max missing at %s", ErrNoCgroupV2, c.path)
	}

	c.initialized = true
	c.observeOnly = false
	return nil
}

// probeCgroupVersion distinguishes "no cgroup support at all" from "only
// v1 mounted" (SPEC_FULL.md §C.4), so startup logs an accurate
// Environment error instead of a generic one.
func probeCgroupVersion() error {
	root := "/sys/fs/cgroup"
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return ErrNoCgroupV2
	}
	if _, err := os.Stat(filepath.Join(root, "cgroup.controllers")); err == nil {
		return nil
	}
	if _, err := os.Stat(filepath.Join(root, "cpu", "cpu.cfs_period_us")); err == nil {
		return ErrCgroupV1Only
	}
	return ErrNoCgroupV2
}

// ObserveOnly reports whether the actuator is degraded (spec.md §4.6,
// §7): sampling continues, but SetLimit is a no-op and CurrentLimit
// reports none.
func (c *Cgroup) ObserveOnly() bool { return c.observeOnly }

// SetLimit writes cpu.max as "<quota> <period>" for the given normalized
// percent, clamped to [0, 100].
func (c *Cgroup) SetLimit(pct float64) error {
	if c.observeOnly {
		return nil
	}
	pct = clamp01to100(pct)
	quota := int64(pct * c.numCPUs * periodUsec / 100)
	content := fmt.Sprintf("%d %d\n", quota, periodUsec)
	if err := os.WriteFile(filepath.Join(c.path, "cpu.max"), []byte(content), 0o644); err != nil {
		return fmt.Errorf("actuator: write cpu.max: %w", err)
	}
	return nil
}

// CurrentLimit reads cpu.max and returns the normalized percent. The
// second return is false when observe-only (spec.md §4.6, Testable
// property 9).
func (c *Cgroup) CurrentLimit() (float64, bool, error) {
	if c.observeOnly {
		return 0, false, nil
	}
	data, err := os.ReadFile(filepath.Join(c.path, "cpu.max"))
	if err != nil {
		return 0, false, fmt.Errorf("actuator: read cpu.max: %w", err)
	}
	fields := strings.Fields(string(data))
	if len(fields) != 2 {
		return 0, false, fmt.Errorf("actuator: unexpected cpu.max content %q", string(data))
	}
	if fields[0] == "max" {
		return 100, true, nil
	}
	quota, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("actuator: parse quota: %w", err)
	}
	period, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil || period == 0 {
		return 0, false, fmt.Errorf("actuator: parse period: %w", err)
	}
	pct := (float64(quota) / float64(period)) * 100 / c.numCPUs
	return pct, true, nil
}

// AddProcess writes pid to cgroup.procs. A process that has already
// exited is not an error (spec.md §4.6 "Process-gone"); every other
// failure, such as a permission error or a missing cgroup directory, is
// reported.
func (c *Cgroup) AddProcess(pid int32) error {
	if c.observeOnly {
		return nil
	}
	err := os.WriteFile(filepath.Join(c.path, "cgroup.procs"), []byte(strconv.Itoa(int(pid))+"\n"), 0o644)
	if err == nil {
		return nil
	}
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return fmt.Errorf("actuator: add pid %d: %w", pid, err)
}

// UsageUsec reads cpu.stat's usage_usec, implementing sample.UsageReader.
func (c *Cgroup) UsageUsec() (uint64, error) {
	f, err := os.Open(filepath.Join(c.path, "cpu.stat"))
	if err != nil {
		return 0, fmt.Errorf("actuator: read cpu.stat: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 2 && fields[0] == "usage_usec" {
			return strconv.ParseUint(fields[1], 10, 64)
		}
	}
	return 0, fmt.Errorf("actuator: usage_usec not found in cpu.stat")
}

// NumCPUs implements sample.UsageReader.
func (c *Cgroup) NumCPUs() float64 { return c.numCPUs }

// ResyncAll enumerates host processes, filters kernel threads (no
// cmdline) and configured system essentials, and attempts to add the
// rest. The filter is conservative: when in doubt, skip (spec.md §4.6).
func (c *Cgroup) ResyncAll() (ResyncStats, error) {
	var stats ResyncStats
	if c.observeOnly {
		return stats, nil
	}

	procs, err := gopsproc.Processes()
	if err != nil {
		return stats, fmt.Errorf("actuator: enumerate processes: %w", err)
	}

	for _, p := range procs {
		stats.Scanned++

		cmdline, err := p.Cmdline()
		if err != nil || strings.TrimSpace(cmdline) == "" {
			stats.Skipped++ // kernel thread or unreadable — skip
			continue
		}
		name, _ := p.Name()
		if c.systemEssentials[name] {
			stats.Skipped++
			continue
		}

		if err := c.AddProcess(p.Pid); err != nil {
			stats.Failed++
			continue
		}
		stats.Added++
	}
	return stats, nil
}

// Teardown best-effort moves remaining members back to the root cgroup,
// then removes the directory.
func (c *Cgroup) Teardown() error {
	if c.observeOnly || !c.initialized {
		return nil
	}

	data, err := os.ReadFile(filepath.Join(c.path, "cgroup.procs"))
	if err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			_ = appendFile("/sys/fs/cgroup/cgroup.procs", line+"\n")
		}
	}

	if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("actuator: remove %s: %w", c.path, err)
	}
	return nil
}

func appendFile(path, content string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(content)
	return err
}

func clamp01to100(pct float64) float64 {
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	default:
		return pct
	}
}
