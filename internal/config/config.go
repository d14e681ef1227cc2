// Package config loads and validates governor configuration.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// SamplerMode selects how the governor measures CPU utilization.
type SamplerMode string

const (
	SamplerModeAuto   SamplerMode = "auto"
	SamplerModeHost   SamplerMode = "host"
	SamplerModeCgroup SamplerMode = "cgroup"
)

// Config holds every tunable named in the control-loop contract.
//
// Tags:
//
//	env: environment variable name
//	envDefault: default value if not set
type Config struct {
	// Sampling
	TickInterval       time.Duration `env:"GOV_TICK_INTERVAL" envDefault:"5s"`
	SamplerMode        SamplerMode   `env:"GOV_SAMPLER_MODE" envDefault:"auto"`
	CgroupPath         string        `env:"GOV_CGROUP_PATH" envDefault:"/sys/fs/cgroup/governor"`
	EnableDiskNetRates bool          `env:"GOV_ENABLE_DISKNET_RATES" envDefault:"true"`

	// Control step and horizons
	ControlStep time.Duration `env:"GOV_CONTROL_STEP" envDefault:"15s"`
	AvgHorizon  time.Duration `env:"GOV_AVG_HORIZON" envDefault:"12h"`
	PeakHorizon time.Duration `env:"GOV_PEAK_HORIZON" envDefault:"24h"`
	PeakThresholdPct float64  `env:"GOV_PEAK_THRESHOLD_PCT" envDefault:"95"`

	// Budgets
	AvgBudgetPct       float64 `env:"GOV_AVG_BUDGET_PCT" envDefault:"30"`
	PeakBudgetSeconds  float64 `env:"GOV_PEAK_BUDGET_SECONDS" envDefault:"600"`
	PeakCriticalSeconds float64 `env:"GOV_PEAK_CRITICAL_SECONDS" envDefault:"0"`
	EmergencyLimitPct  float64 `env:"GOV_EMERGENCY_LIMIT_PCT" envDefault:"20"`

	// Clamps
	MinLimitPct float64 `env:"GOV_MIN_LIMIT_PCT" envDefault:"5"`
	MaxLimitPct float64 `env:"GOV_MAX_LIMIT_PCT" envDefault:"95"`

	// Safety factors
	Safety               float64 `env:"GOV_SAFETY" envDefault:"0.9"`
	StartupSafety        float64 `env:"GOV_STARTUP_SAFETY" envDefault:"0.7"`
	StartupThresholdFrac float64 `env:"GOV_STARTUP_THRESHOLD_FRAC" envDefault:"0.10"`

	// Hysteresis / smoothing
	ChangeThresholdPct float64 `env:"GOV_CHANGE_THRESHOLD_PCT" envDefault:"2"`
	SmoothFactor       float64 `env:"GOV_SMOOTH_FACTOR" envDefault:"0.3"`
	TolerancePct       float64 `env:"GOV_TOLERANCE_PCT" envDefault:"1"`

	// Supplemented (SPEC_FULL.md §C.1): optional floor applied only inside
	// the solver's residual-rule fallback path. Zero disables it, leaving
	// the lookahead rule's raw-sample math untouched.
	ResidualFloorPct float64 `env:"GOV_RESIDUAL_FLOOR_PCT" envDefault:"0"`

	// Process resync
	ProcResyncInterval time.Duration `env:"GOV_PROC_RESYNC_INTERVAL" envDefault:"60s"`
	ResyncDebounce     time.Duration `env:"GOV_RESYNC_DEBOUNCE" envDefault:"5s"`

	// Logging
	LogLevel  string `env:"GOV_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"GOV_LOG_FORMAT" envDefault:"json"`

	// Event sinks
	EnablePromSink bool   `env:"GOV_ENABLE_PROM_SINK" envDefault:"true"`
	PromAddr       string `env:"GOV_PROM_ADDR" envDefault:":9464"`
	NATSURL        string `env:"GOV_NATS_URL" envDefault:""`
	NATSSubject    string `env:"GOV_NATS_SUBJECT" envDefault:"governor.events"`
}

// Load reads configuration from an optional .env file and the environment.
// Priority: environment variables > .env file > struct defaults.
func Load(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("no .env file found, using environment variables only")
		}
	} else if logger != nil {
		logger.Info().Msg("loaded configuration from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate enforces the ranges from the control-loop contract. A
// validation failure is a startup-fatal Configuration error: the loop must
// never start with an inconsistent config.
func (c *Config) Validate() error {
	if c.TickInterval < time.Second || c.TickInterval > 60*time.Second {
		return fmt.Errorf("tick_interval must be 1-60s, got %s", c.TickInterval)
	}
	if c.ControlStep < c.TickInterval {
		return fmt.Errorf("control_step (%s) must be >= tick_interval (%s)", c.ControlStep, c.TickInterval)
	}
	if c.AvgHorizon < time.Hour || c.AvgHorizon > 48*time.Hour {
		return fmt.Errorf("H_avg must be 1-48h, got %s", c.AvgHorizon)
	}
	if c.PeakHorizon < time.Hour || c.PeakHorizon > 48*time.Hour {
		return fmt.Errorf("H_peak must be 1-48h, got %s", c.PeakHorizon)
	}
	if c.PeakThresholdPct < 50 || c.PeakThresholdPct > 100 {
		return fmt.Errorf("T_peak must be 50-100, got %.2f", c.PeakThresholdPct)
	}
	if c.AvgBudgetPct < 0 || c.AvgBudgetPct > 100 {
		return fmt.Errorf("avg_budget must be 0-100, got %.2f", c.AvgBudgetPct)
	}
	if c.PeakBudgetSeconds < 0 {
		return fmt.Errorf("peak_budget_seconds must be >= 0, got %.2f", c.PeakBudgetSeconds)
	}
	if c.MinLimitPct < 0 || c.MaxLimitPct > 100 || c.MinLimitPct > c.MaxLimitPct {
		return fmt.Errorf("min_limit/max_limit invalid: 0 <= %.2f <= %.2f <= 100 required", c.MinLimitPct, c.MaxLimitPct)
	}
	if c.Safety < 0.5 || c.Safety > 1.0 {
		return fmt.Errorf("safety must be in [0.5, 1.0], got %.2f", c.Safety)
	}
	if c.StartupSafety < 0.5 || c.StartupSafety > 1.0 {
		return fmt.Errorf("startup_safety must be in [0.5, 1.0], got %.2f", c.StartupSafety)
	}
	if c.StartupThresholdFrac < 0.01 || c.StartupThresholdFrac > 0.5 {
		return fmt.Errorf("startup_threshold_frac must be in [0.01, 0.5], got %.2f", c.StartupThresholdFrac)
	}
	if c.SmoothFactor < 0 || c.SmoothFactor > 1 {
		return fmt.Errorf("smooth_factor must be in [0, 1], got %.2f", c.SmoothFactor)
	}
	validModes := map[SamplerMode]bool{SamplerModeAuto: true, SamplerModeHost: true, SamplerModeCgroup: true}
	if !validModes[c.SamplerMode] {
		return fmt.Errorf("sampler_mode must be one of auto|host|cgroup, got %q", c.SamplerMode)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("log_level must be one of debug|info|warn|error, got %q", c.LogLevel)
	}
	validFormats := map[string]bool{"json": true, "pretty": true}
	if !validFormats[c.LogFormat] {
		return fmt.Errorf("log_format must be one of json|pretty, got %q", c.LogFormat)
	}
	return nil
}

// LogConfig logs the effective configuration using structured logging.
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Dur("tick_interval", c.TickInterval).
		Str("sampler_mode", string(c.SamplerMode)).
		Str("cgroup_path", c.CgroupPath).
		Dur("control_step", c.ControlStep).
		Dur("avg_horizon", c.AvgHorizon).
		Dur("peak_horizon", c.PeakHorizon).
		Float64("peak_threshold_pct", c.PeakThresholdPct).
		Float64("avg_budget_pct", c.AvgBudgetPct).
		Float64("peak_budget_seconds", c.PeakBudgetSeconds).
		Float64("min_limit_pct", c.MinLimitPct).
		Float64("max_limit_pct", c.MaxLimitPct).
		Float64("safety", c.Safety).
		Float64("startup_safety", c.StartupSafety).
		Float64("change_threshold_pct", c.ChangeThresholdPct).
		Float64("smooth_factor", c.SmoothFactor).
		Float64("tolerance_pct", c.TolerancePct).
		Dur("proc_resync_interval", c.ProcResyncInterval).
		Msg("governor configuration loaded")
}
