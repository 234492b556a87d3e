// Package automation runs scripted scenarios and parameter sweeps over the
// scheduler configuration.
package automation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/actsched/internal/config"
	"github.com/san-kum/actsched/internal/experiment"
	"github.com/san-kum/actsched/internal/metrics"
	"github.com/san-kum/actsched/internal/rollout"
)

// Sweepable scheduler parameters.
const (
	ParamDecay          = "decay"
	ParamReplanInterval = "replan_interval"
	ParamMaxChunkLen    = "max_chunk_len"
	ParamEnsembleMax    = "ensemble_max"
)

// Scenario is a scripted sequence of rollouts.
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep is one rollout. Empty fields keep the base configuration.
type ScenarioStep struct {
	Name      string             `yaml:"name"`
	Preset    string             `yaml:"preset"`
	Mode      string             `yaml:"mode"`
	Steps     int                `yaml:"steps"`
	Policy    string             `yaml:"policy"`
	Source    string             `yaml:"source"`
	FailEvery int                `yaml:"fail_every"`
	Overrides map[string]float64 `yaml:"overrides"`
	Save      bool               `yaml:"save"`
}

type ScenarioResult struct {
	Name   string
	Config *config.Config
	Result *rollout.Result
}

func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("scenario %s has no steps", path)
	}
	return &scenario, nil
}

// Apply returns a copy of base with the step's settings applied.
func (s ScenarioStep) Apply(base *config.Config) (*config.Config, error) {
	cfg := *base
	if s.Preset != "" {
		p, ok := config.GetPreset(s.Preset)
		if !ok {
			return nil, fmt.Errorf("unknown preset: %s", s.Preset)
		}
		cfg.ApplyPreset(p)
	}
	if s.Mode != "" {
		cfg.Scheduler.Mode = s.Mode
	}
	if s.Steps > 0 {
		cfg.Rollout.Steps = s.Steps
	}
	if s.Policy != "" {
		cfg.Rollout.Policy = s.Policy
	}
	if s.Source != "" {
		cfg.Rollout.Source = s.Source
	}
	if s.FailEvery > 0 {
		cfg.Rollout.FailEvery = s.FailEvery
	}
	for k, v := range s.Overrides {
		if err := SetParam(&cfg, k, v); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

func RunScenario(ctx context.Context, scenario *Scenario, base *config.Config, registry *experiment.Registry, logger *slog.Logger) ([]ScenarioResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	results := make([]ScenarioResult, 0, len(scenario.Steps))

	for i, step := range scenario.Steps {
		name := step.Name
		if name == "" {
			name = fmt.Sprintf("step%d", i+1)
		}

		cfg, err := step.Apply(base)
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}
		logger.Info("scenario step", "step", i+1, "of", len(scenario.Steps), "name", name, "mode", cfg.Scheduler.Mode)

		exp := experiment.New(cfg, registry, logger)
		if err := exp.Setup(); err != nil {
			return results, fmt.Errorf("step %d setup: %w", i+1, err)
		}
		result, err := exp.Run(ctx)
		if err != nil {
			return results, fmt.Errorf("step %d run: %w", i+1, err)
		}

		results = append(results, ScenarioResult{Name: name, Config: cfg, Result: result})
	}

	return results, nil
}

// SetParam assigns a sweepable scheduler parameter. Integer parameters are
// rounded.
func SetParam(cfg *config.Config, name string, value float64) error {
	switch name {
	case ParamDecay:
		cfg.Scheduler.Decay = value
	case ParamReplanInterval:
		cfg.Scheduler.ReplanInterval = int(math.Round(value))
	case ParamMaxChunkLen:
		cfg.Scheduler.MaxChunkLen = int(math.Round(value))
	case ParamEnsembleMax:
		cfg.Scheduler.EnsembleMax = int(math.Round(value))
	default:
		return fmt.Errorf("unknown parameter: %s", name)
	}
	return nil
}

// ParameterSweep runs one rollout per evenly spaced value of Param.
type ParameterSweep struct {
	Param    string
	Min      float64
	Max      float64
	NumSteps int
	// Parallel bounds concurrent rollouts; <= 0 runs them all at once.
	Parallel int
}

type SweepResult struct {
	Value     float64
	Metrics   map[string]float64
	Fallbacks int
	Calls     int
}

func (s *ParameterSweep) Values() []float64 {
	if s.NumSteps <= 1 {
		return []float64{s.Min}
	}
	step := (s.Max - s.Min) / float64(s.NumSteps-1)
	vals := make([]float64, s.NumSteps)
	for i := range vals {
		vals[i] = s.Min + float64(i)*step
	}
	return vals
}

func RunSweep(ctx context.Context, sweep *ParameterSweep, base *config.Config, registry *experiment.Registry, logger *slog.Logger) ([]SweepResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	values := sweep.Values()
	jobs := make([]rollout.Job, len(values))

	for i, v := range values {
		cfg := *base
		if err := SetParam(&cfg, sweep.Param, v); err != nil {
			return nil, err
		}
		exp := experiment.New(&cfg, registry, logger)
		if err := exp.Setup(); err != nil {
			return nil, fmt.Errorf("%s=%.4f: %w", sweep.Param, v, err)
		}
		jobs[i] = rollout.Job{
			Scheduler: exp.Runner().Scheduler(),
			Source:    exp.Source(),
			Metrics:   metrics.Default(exp.SchedulerConfig().Layout),
			Steps:     cfg.Rollout.Steps,
		}
	}

	runs, err := rollout.Batch(ctx, jobs, sweep.Parallel, logger)
	if err != nil {
		return nil, err
	}

	results := make([]SweepResult, len(values))
	for i, res := range runs {
		results[i] = SweepResult{
			Value:     values[i],
			Metrics:   res.Metrics,
			Fallbacks: res.Fallbacks,
			Calls:     res.Calls,
		}
		logger.Debug("sweep point", "param", sweep.Param, "value", values[i], "fallbacks", res.Fallbacks)
	}
	return results, nil
}
