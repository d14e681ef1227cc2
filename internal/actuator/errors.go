package actuator

import "errors"

// Error kinds from spec.md §7. initialize surfaces Privilege/Environment;
// everything else surfaces TransientIO.
var (
	ErrInsufficientPrivilege = errors.New("actuator: insufficient privilege (need effective UID 0)")
	ErrNoCgroupV2            = errors.New("actuator: cgroup v2 unified hierarchy not available")
	// ErrCgroupV1Only is SPEC_FULL.md §C.4's refinement: the host has a
	// mounted cgroup v1 hierarchy but no v2, which is a more actionable
	// message than the generic ErrNoCgroupV2.
	ErrCgroupV1Only = errors.New("actuator: only a cgroup v1 hierarchy is mounted, this governor requires v2")
)
