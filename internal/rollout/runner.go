// Package rollout drives a scheduler over an episode source, recording the
// issued commands and scoring them with metrics.
package rollout

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/san-kum/actsched/internal/action"
	"github.com/san-kum/actsched/internal/episode"
	"github.com/san-kum/actsched/internal/metrics"
	"github.com/san-kum/actsched/internal/sched"
)

type Observer interface {
	OnStep(res sched.Result, ref action.Vector)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(res sched.Result, ref action.Vector)

func (f ObserverFunc) OnStep(res sched.Result, ref action.Vector) { f(res, ref) }

type Result struct {
	Mode       sched.Mode
	Actions    []action.Vector
	References []action.Vector
	Statuses   []sched.Status
	Replans    []bool
	Fallbacks  int
	Calls      int
	Steps      int
	Metrics    map[string]float64
}

type Runner struct {
	sched     *sched.Scheduler
	prompt    string
	metrics   []metrics.Metric
	observers []Observer
	logger    *slog.Logger
}

func New(s *sched.Scheduler, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runner{
		sched:  s,
		logger: logger,
	}
}

func (r *Runner) AddMetric(m metrics.Metric) { r.metrics = append(r.metrics, m) }
func (r *Runner) AddObserver(o Observer)     { r.observers = append(r.observers, o) }

// SetPrompt overrides the scheduler's instruction for every step.
func (r *Runner) SetPrompt(p string) { r.prompt = p }

func (r *Runner) Scheduler() *sched.Scheduler { return r.sched }

// Begin resets the scheduler and metrics for a new episode.
func (r *Runner) Begin() {
	r.sched.Reset()
	for _, m := range r.metrics {
		m.Reset()
	}
}

// StepAt runs one control step on frame i of src. The returned reference is
// nil when src has none for that frame.
func (r *Runner) StepAt(ctx context.Context, src episode.Source, i int) (sched.Result, action.Vector, error) {
	frame, err := src.Frame(i)
	if err != nil {
		return sched.Result{}, nil, fmt.Errorf("frame %d: %w", i, err)
	}
	obs := action.Single(frame)
	obs.Prompt = r.prompt

	res, err := r.sched.Act(ctx, obs)
	if err != nil {
		return sched.Result{}, nil, err
	}

	ref, ok := src.Reference(i)
	if !ok {
		ref = nil
	}
	for _, m := range r.metrics {
		m.Observe(res.Step, res.Vector, ref)
	}
	for _, o := range r.observers {
		o.OnStep(res, ref)
	}
	return res, ref, nil
}

// Run steps the scheduler over the first steps frames of src; steps <= 0
// means the whole source. On error the partial result is returned with it.
func (r *Runner) Run(ctx context.Context, src episode.Source, steps int) (*Result, error) {
	if steps <= 0 || steps > src.Len() {
		if steps > src.Len() {
			r.logger.Warn("source shorter than requested rollout", "requested", steps, "available", src.Len())
		}
		steps = src.Len()
	}
	if steps == 0 {
		return nil, fmt.Errorf("rollout: empty source")
	}

	result := &Result{
		Mode:       r.sched.Config().Mode,
		Actions:    make([]action.Vector, 0, steps),
		References: make([]action.Vector, 0, steps),
		Statuses:   make([]sched.Status, 0, steps),
		Replans:    make([]bool, 0, steps),
		Metrics:    make(map[string]float64),
	}

	r.Begin()
	callsBefore := r.sched.Calls()

	for i := 0; i < steps; i++ {
		select {
		case <-ctx.Done():
			r.finish(result, callsBefore)
			return result, ctx.Err()
		default:
		}

		res, ref, err := r.StepAt(ctx, src, i)
		if err != nil {
			r.finish(result, callsBefore)
			return result, err
		}

		result.Actions = append(result.Actions, res.Vector)
		result.References = append(result.References, ref)
		result.Statuses = append(result.Statuses, res.Status)
		result.Replans = append(result.Replans, res.Replanned)
		if res.Status == sched.StatusFallback {
			result.Fallbacks++
		}
		result.Steps++
	}

	r.finish(result, callsBefore)
	r.logger.Info("rollout complete",
		"mode", string(result.Mode),
		"steps", result.Steps,
		"calls", result.Calls,
		"fallbacks", result.Fallbacks,
	)
	return result, nil
}

func (r *Runner) finish(result *Result, callsBefore int) {
	result.Calls = r.sched.Calls() - callsBefore
	for _, m := range r.metrics {
		result.Metrics[m.Name()] = m.Value()
	}
}
