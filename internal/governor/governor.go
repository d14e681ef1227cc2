// Package governor wires every sub-component into a single Controller
// value, replacing the module-global singletons the original sources used
// (spec.md §9).
package governor

import (
	"context"
	"fmt"
	"runtime"

	"github.com/rs/zerolog"

	"github.com/adred-codev/cpugovernor/internal/actuator"
	"github.com/adred-codev/cpugovernor/internal/config"
	"github.com/adred-codev/cpugovernor/internal/control"
	"github.com/adred-codev/cpugovernor/internal/events"
	"github.com/adred-codev/cpugovernor/internal/reservation"
	"github.com/adred-codev/cpugovernor/internal/sample"
	"github.com/adred-codev/cpugovernor/internal/solver"
	"github.com/adred-codev/cpugovernor/internal/window"
	"github.com/prometheus/client_golang/prometheus"
)

// systemEssentials is the conservative default skip-list for resync_all
// (spec.md §4.6): processes that must never be migrated into the
// governed cgroup.
var systemEssentials = []string{"init", "systemd", "sshd", "kthreadd"}

// Controller owns every sub-component for one governed cgroup. External
// callers get Status(), never a mutable reference into the loop's state
// (spec.md §9).
type Controller struct {
	loop    *control.Loop
	Reservs *reservation.Store
	cfg     *config.Config
}

// Build constructs a Controller from cfg. It initializes the actuator
// (falling back to observe-only on Privilege/Environment failures per
// spec.md §4.6/§7), selects the sampler mode, and assembles the event
// sink fan-out.
func Build(cfg *config.Config, logger zerolog.Logger) (*Controller, error) {
	numCPUs := float64(runtime.NumCPU())

	act := actuator.New(cfg.CgroupPath, numCPUs, systemEssentials, logger)
	if err := act.Initialize(); err != nil {
		logger.Warn().Err(err).Msg("actuator initialization failed, continuing in observe-only mode")
	}

	samplerMode := cfg.SamplerMode
	if samplerMode == config.SamplerModeAuto {
		if act.ObserveOnly() {
			samplerMode = config.SamplerModeHost
		} else {
			samplerMode = config.SamplerModeCgroup
		}
	}

	var sampler sample.Sampler
	switch samplerMode {
	case config.SamplerModeCgroup:
		sampler = sample.NewCgroup(act)
	default:
		sampler = sample.NewHost()
	}
	logger.Info().Str("sampler_mode", string(samplerMode)).Bool("observe_only", act.ObserveOnly()).
		Msg("sampler selected")

	var diskNet *sample.DiskNetSampler
	if cfg.EnableDiskNetRates {
		diskNet = sample.NewDiskNetSampler()
	}

	sink, err := buildSink(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("build event sink: %w", err)
	}

	avgWin := window.NewAverage(cfg.AvgHorizon, cfg.TickInterval)
	peakWin := window.NewPeak(cfg.PeakHorizon, cfg.PeakThresholdPct)
	reservs := reservation.NewStore()

	loop := control.New(control.Params{
		Sampler:  sampler,
		DiskNet:  diskNet,
		AvgWin:   avgWin,
		PeakWin:  peakWin,
		Reservs:  reservs,
		Actuator: act,
		Sink:     sink,
		SolverCfg: solver.Config{
			AvgBudgetPct:         cfg.AvgBudgetPct,
			PeakBudgetSeconds:    cfg.PeakBudgetSeconds,
			PeakCriticalSeconds:  cfg.PeakCriticalSeconds,
			EmergencyLimitPct:    cfg.EmergencyLimitPct,
			MinLimitPct:          cfg.MinLimitPct,
			MaxLimitPct:          cfg.MaxLimitPct,
			Safety:               cfg.Safety,
			StartupSafety:        cfg.StartupSafety,
			StartupThresholdFrac: cfg.StartupThresholdFrac,
			ControlStep:          cfg.ControlStep,
			TickInterval:         cfg.TickInterval,
			ResidualFloorPct:     cfg.ResidualFloorPct,
		},
		TickInterval:       cfg.TickInterval,
		ControlStep:        cfg.ControlStep,
		ChangeThresholdPct: cfg.ChangeThresholdPct,
		SmoothFactor:       cfg.SmoothFactor,
		TolerancePct:       cfg.TolerancePct,
		ProcResyncInterval: cfg.ProcResyncInterval,
		ResyncDebounce:     cfg.ResyncDebounce,
		AvgBudgetPct:       cfg.AvgBudgetPct,
		PeakBudgetSeconds:  cfg.PeakBudgetSeconds,
		Logger:             logger,
	})

	return &Controller{loop: loop, Reservs: reservs, cfg: cfg}, nil
}

func buildSink(cfg *config.Config, logger zerolog.Logger) (events.Sink, error) {
	sinks := []events.Sink{events.NewLogSink(logger)}

	if cfg.EnablePromSink {
		sinks = append(sinks, events.NewPromSink(prometheus.DefaultRegisterer))
	}

	if cfg.NATSURL != "" {
		natsSink, err := events.NewNATSSink(cfg.NATSURL, cfg.NATSSubject, logger)
		if err != nil {
			return nil, fmt.Errorf("connect nats sink: %w", err)
		}
		sinks = append(sinks, natsSink)
	}

	return events.NewMulti(sinks...), nil
}

// Run blocks until ctx is canceled, running the control loop.
func (c *Controller) Run(ctx context.Context) {
	c.loop.Run(ctx)
}

// Status returns the immutable control-state view (spec.md §9).
func (c *Controller) Status() control.Status {
	return c.loop.Status()
}
