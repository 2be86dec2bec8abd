// Package config loads per-process runtime options from YAML documents with
// environment overrides. Options are read once at invocation construction;
// the executor treats them as immutable.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Default caps applied when the corresponding option is zero.
const (
	DefaultMaxIterations = 20
)

type (
	// Options configures one agent process.
	Options struct {
		// PlannerType selects the planning discipline: GOAP, UTILITY, or
		// SUPERVISOR. Empty means GOAP.
		PlannerType string `yaml:"plannerType"`
		// Verbosity tunes diagnostic output.
		Verbosity Verbosity `yaml:"verbosity"`
		// EarlyTermination bounds process-wide resource use.
		EarlyTermination EarlyTermination `yaml:"earlyTermination"`
		// ToolLoop configures the tool loop of model-driven actions.
		ToolLoop ToolLoop `yaml:"toolLoop"`
	}

	// Verbosity toggles diagnostic logging detail.
	Verbosity struct {
		ShowPrompts      bool `yaml:"showPrompts"`
		ShowLLMResponses bool `yaml:"showLlmResponses"`
		ShowLongPlans    bool `yaml:"showLongPlans"`
		Debug            bool `yaml:"debug"`
	}

	// EarlyTermination bounds a process. Zero values disable the bound.
	EarlyTermination struct {
		// MaxActions caps executed actions.
		MaxActions int `yaml:"maxActions"`
		// MaxWallClock caps total process runtime.
		MaxWallClock Duration `yaml:"maxWallClock"`
		// MaxCost caps accumulated model cost in USD.
		MaxCost float64 `yaml:"maxCost"`
	}

	// ToolLoop bounds model-tool iterations.
	ToolLoop struct {
		// MaxIterations caps LLM turns per loop. Zero means
		// DefaultMaxIterations.
		MaxIterations int `yaml:"maxIterations"`
		// Parallel configures single-response tool call fan-out.
		Parallel Parallel `yaml:"parallel"`
	}

	// Parallel configures concurrent tool execution.
	Parallel struct {
		Enabled bool `yaml:"enabled"`
		// MaxConcurrency bounds in-flight tools. Zero means unbounded.
		MaxConcurrency int `yaml:"maxConcurrency"`
		// PerToolTimeout bounds each tool execution.
		PerToolTimeout Duration `yaml:"perToolTimeout"`
		// BatchTimeout bounds the whole fan-out.
		BatchTimeout Duration `yaml:"batchTimeout"`
	}

	// Duration parses Go duration strings ("30s", "5m") from YAML.
	Duration time.Duration
)

// UnmarshalYAML implements yaml.Unmarshaler. Accepts duration strings and
// integer nanoseconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("config: invalid duration %q: %w", s, perr)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("config: invalid duration value")
	}
	*d = Duration(n)
	return nil
}

// Std returns the standard library duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Planner type names accepted in PlannerType.
const (
	PlannerGOAP       = "GOAP"
	PlannerUtility    = "UTILITY"
	PlannerSupervisor = "SUPERVISOR"
)

// Default returns the options applied when no configuration is supplied.
func Default() Options {
	return Options{
		PlannerType: PlannerGOAP,
		ToolLoop:    ToolLoop{MaxIterations: DefaultMaxIterations},
	}
}

// Load parses YAML options, fills defaults, applies ARCLINE_* environment
// overrides, and validates the result.
func Load(data []byte) (Options, error) {
	opts := Default()
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &opts); err != nil {
			return opts, fmt.Errorf("config: parse options: %w", err)
		}
	}
	applyEnv(&opts)
	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

// LoadFile reads and parses the YAML file at path. A missing file yields
// defaults (with environment overrides applied).
func LoadFile(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Load(nil)
		}
		return Default(), fmt.Errorf("config: read %s: %w", path, err)
	}
	return Load(data)
}

// Validate checks option consistency.
func (o Options) Validate() error {
	switch o.PlannerType {
	case PlannerGOAP, PlannerUtility, PlannerSupervisor:
	default:
		return fmt.Errorf("config: unknown planner type %q", o.PlannerType)
	}
	if o.ToolLoop.MaxIterations < 0 {
		return fmt.Errorf("config: toolLoop.maxIterations must be non-negative")
	}
	if o.EarlyTermination.MaxActions < 0 {
		return fmt.Errorf("config: earlyTermination.maxActions must be non-negative")
	}
	if o.EarlyTermination.MaxCost < 0 {
		return fmt.Errorf("config: earlyTermination.maxCost must be non-negative")
	}
	return nil
}

// Environment override variables. Set values replace the corresponding
// option regardless of the YAML document.
const (
	EnvPlannerType    = "ARCLINE_PLANNER_TYPE"
	EnvDebug          = "ARCLINE_DEBUG"
	EnvMaxActions     = "ARCLINE_MAX_ACTIONS"
	EnvMaxWallClock   = "ARCLINE_MAX_WALL_CLOCK"
	EnvMaxCost        = "ARCLINE_MAX_COST"
	EnvMaxIterations  = "ARCLINE_TOOL_LOOP_MAX_ITERATIONS"
	EnvParallelTools  = "ARCLINE_TOOL_LOOP_PARALLEL"
	EnvPerToolTimeout = "ARCLINE_TOOL_LOOP_PER_TOOL_TIMEOUT"
	EnvBatchTimeout   = "ARCLINE_TOOL_LOOP_BATCH_TIMEOUT"
)

func applyEnv(o *Options) {
	if v := os.Getenv(EnvPlannerType); v != "" {
		o.PlannerType = v
	}
	if v := os.Getenv(EnvDebug); v != "" {
		o.Verbosity.Debug, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv(EnvMaxActions); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			o.EarlyTermination.MaxActions = n
		}
	}
	if v := os.Getenv(EnvMaxWallClock); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			o.EarlyTermination.MaxWallClock = Duration(d)
		}
	}
	if v := os.Getenv(EnvMaxCost); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			o.EarlyTermination.MaxCost = f
		}
	}
	if v := os.Getenv(EnvMaxIterations); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			o.ToolLoop.MaxIterations = n
		}
	}
	if v := os.Getenv(EnvParallelTools); v != "" {
		o.ToolLoop.Parallel.Enabled, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv(EnvPerToolTimeout); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			o.ToolLoop.Parallel.PerToolTimeout = Duration(d)
		}
	}
	if v := os.Getenv(EnvBatchTimeout); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			o.ToolLoop.Parallel.BatchTimeout = Duration(d)
		}
	}
}
