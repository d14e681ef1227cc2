package actuator

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

// fakeCgroup builds a Cgroup rooted at a temp directory without going
// through Initialize (which requires root), so SetLimit/CurrentLimit can be
// exercised against a plain file instead of the real cgroupfs.
func fakeCgroup(t *testing.T, numCPUs float64) *Cgroup {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "cpu.max"), []byte("max 100000\n"), 0o644); err != nil {
		t.Fatalf("seed cpu.max: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "cgroup.procs"), nil, 0o644); err != nil {
		t.Fatalf("seed cgroup.procs: %v", err)
	}
	return &Cgroup{
		path:             dir,
		parentPath:       filepath.Dir(dir),
		numCPUs:          numCPUs,
		logger:           zerolog.Nop(),
		initialized:      true,
		systemEssentials: map[string]bool{},
	}
}

func TestCgroup_SetLimitCurrentLimitRoundTrip(t *testing.T) {
	c := fakeCgroup(t, 4)

	if err := c.SetLimit(25); err != nil {
		t.Fatalf("SetLimit: %v", err)
	}
	pct, ok, err := c.CurrentLimit()
	if err != nil {
		t.Fatalf("CurrentLimit: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true for an initialized, non-observe-only cgroup")
	}
	if diff := pct - 25; diff > 0.5 || diff < -0.5 {
		t.Fatalf("CurrentLimit after SetLimit(25) = %v, want ~25", pct)
	}
}

func TestCgroup_CurrentLimitMaxIsHundred(t *testing.T) {
	c := fakeCgroup(t, 4)
	pct, ok, err := c.CurrentLimit()
	if err != nil {
		t.Fatalf("CurrentLimit: %v", err)
	}
	if !ok || pct != 100 {
		t.Fatalf("CurrentLimit on seeded cpu.max=max = (%v, %v), want (100, true)", pct, ok)
	}
}

func TestCgroup_ObserveOnlyIsNoOp(t *testing.T) {
	c := fakeCgroup(t, 4)
	c.observeOnly = true

	before, err := os.ReadFile(filepath.Join(c.path, "cpu.max"))
	if err != nil {
		t.Fatalf("read seed file: %v", err)
	}

	if err := c.SetLimit(10); err != nil {
		t.Fatalf("SetLimit in observe-only mode must not error: %v", err)
	}
	after, err := os.ReadFile(filepath.Join(c.path, "cpu.max"))
	if err != nil {
		t.Fatalf("read after SetLimit: %v", err)
	}
	if string(before) != string(after) {
		t.Fatalf("observe-only SetLimit mutated cpu.max: before=%q after=%q", before, after)
	}

	if _, ok, err := c.CurrentLimit(); ok || err != nil {
		t.Fatalf("CurrentLimit in observe-only mode = (ok=%v, err=%v), want (false, nil)", ok, err)
	}

	if err := c.AddProcess(1234); err != nil {
		t.Fatalf("AddProcess in observe-only mode must not error: %v", err)
	}
	procs, err := os.ReadFile(filepath.Join(c.path, "cgroup.procs"))
	if err != nil {
		t.Fatalf("read cgroup.procs: %v", err)
	}
	if len(procs) != 0 {
		t.Fatalf("observe-only AddProcess wrote to cgroup.procs: %q", procs)
	}
}

func TestCgroup_AddProcessWritesPid(t *testing.T) {
	c := fakeCgroup(t, 4)
	if err := c.AddProcess(4321); err != nil {
		t.Fatalf("AddProcess: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(c.path, "cgroup.procs"))
	if err != nil {
		t.Fatalf("read cgroup.procs: %v", err)
	}
	if strings.TrimSpace(string(data)) != "4321" {
		t.Fatalf("cgroup.procs = %q, want \"4321\"", data)
	}
}

func TestCgroup_AddProcessMissingDirIsAnError(t *testing.T) {
	c := fakeCgroup(t, 4)
	c.path = filepath.Join(c.path, "gone")
	if err := c.AddProcess(1); err == nil {
		t.Fatal("AddProcess against a vanished cgroup directory must error, not be swallowed as process-gone")
	}
}

func TestCgroup_UsageUsecParsesCpuStat(t *testing.T) {
	c := fakeCgroup(t, 2)
	content := "usage_usec 123456\nuser_usec 1000\nsystem_usec 2000\n"
	if err := os.WriteFile(filepath.Join(c.path, "cpu.stat"), []byte(content), 0o644); err != nil {
		t.Fatalf("seed cpu.stat: %v", err)
	}
	got, err := c.UsageUsec()
	if err != nil {
		t.Fatalf("UsageUsec: %v", err)
	}
	if got != 123456 {
		t.Fatalf("UsageUsec = %d, want 123456", got)
	}
}
