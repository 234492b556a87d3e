package experiment

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"github.com/san-kum/actsched/internal/action"
	"github.com/san-kum/actsched/internal/config"
	"github.com/san-kum/actsched/internal/episode"
	"github.com/san-kum/actsched/internal/policy"
)

const defaultFailEvery = 3

type PolicyFactory func(cfg *config.Config, layout action.Layout, logger *slog.Logger) (policy.Policy, error)

type SourceFactory func(cfg *config.Config, layout action.Layout) (episode.Source, error)

type Registry struct {
	policies map[string]PolicyFactory
	sources  map[string]SourceFactory
}

func NewRegistry() *Registry {
	r := &Registry{
		policies: make(map[string]PolicyFactory),
		sources:  make(map[string]SourceFactory),
	}

	r.policies["sine"] = func(cfg *config.Config, layout action.Layout, logger *slog.Logger) (policy.Policy, error) {
		return policy.NewSine(layout.Dim, cfg.Scheduler.MaxChunkLen, layout.GripperIndices()), nil
	}
	r.policies["flaky"] = func(cfg *config.Config, layout action.Layout, logger *slog.Logger) (policy.Policy, error) {
		every := cfg.Rollout.FailEvery
		if every <= 0 {
			every = defaultFailEvery
		}
		inner := policy.NewSine(layout.Dim, cfg.Scheduler.MaxChunkLen, layout.GripperIndices())
		return &policy.Flaky{Inner: inner, Every: every}, nil
	}
	r.policies["remote"] = func(cfg *config.Config, layout action.Layout, logger *slog.Logger) (policy.Policy, error) {
		hc := &http.Client{Timeout: cfg.Server.Timeout}
		return policy.NewClient(cfg.ServerURL(), hc, logger), nil
	}

	r.sources["synthetic"] = func(cfg *config.Config, layout action.Layout) (episode.Source, error) {
		return episode.NewSynthetic(layout.Dim, cfg.Rollout.Steps, cfg.Rollout.Seed), nil
	}
	r.sources["recorded"] = func(cfg *config.Config, layout action.Layout) (episode.Source, error) {
		if cfg.Rollout.SourceDir == "" {
			return nil, fmt.Errorf("recorded source requires rollout.source_dir")
		}
		return episode.OpenRecorded(cfg.Rollout.SourceDir)
	}

	return r
}

func (r *Registry) RegisterPolicy(name string, f PolicyFactory) { r.policies[name] = f }
func (r *Registry) RegisterSource(name string, f SourceFactory) { r.sources[name] = f }

func (r *Registry) GetPolicy(name string, cfg *config.Config, layout action.Layout, logger *slog.Logger) (policy.Policy, error) {
	fn, ok := r.policies[name]
	if !ok {
		return nil, fmt.Errorf("unknown policy: %s", name)
	}
	return fn(cfg, layout, logger)
}

func (r *Registry) GetSource(name string, cfg *config.Config, layout action.Layout) (episode.Source, error) {
	fn, ok := r.sources[name]
	if !ok {
		return nil, fmt.Errorf("unknown source: %s", name)
	}
	return fn(cfg, layout)
}

func (r *Registry) ListPolicies() []string { return sortedKeys(r.policies) }
func (r *Registry) ListSources() []string  { return sortedKeys(r.sources) }

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
