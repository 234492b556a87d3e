// Package experiment assembles a policy, a scheduler, an episode source and
// the default metrics from a configuration.
package experiment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/san-kum/actsched/internal/config"
	"github.com/san-kum/actsched/internal/episode"
	"github.com/san-kum/actsched/internal/metrics"
	"github.com/san-kum/actsched/internal/rollout"
	"github.com/san-kum/actsched/internal/sched"
)

type Experiment struct {
	cfg      *config.Config
	registry *Registry
	logger   *slog.Logger

	schedCfg sched.Config
	source   episode.Source
	runner   *rollout.Runner
}

func New(cfg *config.Config, registry *Registry, logger *slog.Logger) *Experiment {
	if registry == nil {
		registry = NewRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Experiment{cfg: cfg, registry: registry, logger: logger}
}

func (e *Experiment) Setup() error {
	if err := e.cfg.Validate(); err != nil {
		return err
	}
	sc, err := e.cfg.SchedulerConfig()
	if err != nil {
		return err
	}

	p, err := e.registry.GetPolicy(e.cfg.Rollout.Policy, e.cfg, sc.Layout, e.logger)
	if err != nil {
		return err
	}
	src, err := e.registry.GetSource(e.cfg.Rollout.Source, e.cfg, sc.Layout)
	if err != nil {
		return err
	}
	s, err := sched.New(sc, p, e.logger)
	if err != nil {
		return err
	}

	e.schedCfg = sc
	e.source = src
	e.runner = rollout.New(s, e.logger)
	for _, m := range metrics.Default(sc.Layout) {
		e.runner.AddMetric(m)
	}
	return nil
}

func (e *Experiment) Run(ctx context.Context) (*rollout.Result, error) {
	if e.runner == nil {
		return nil, fmt.Errorf("experiment not setup")
	}
	return e.runner.Run(ctx, e.source, e.cfg.Rollout.Steps)
}

func (e *Experiment) Runner() *rollout.Runner { return e.runner }

func (e *Experiment) Source() episode.Source { return e.source }

func (e *Experiment) SchedulerConfig() sched.Config { return e.schedCfg }

func (e *Experiment) Config() *config.Config { return e.cfg }
