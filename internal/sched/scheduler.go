package sched

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/san-kum/actsched/internal/action"
	"github.com/san-kum/actsched/internal/imgproc"
	"github.com/san-kum/actsched/internal/policy"
)

// Status reports how the action for a step was produced.
type Status int

const (
	StatusNominal Status = iota
	// StatusFallback marks a step whose replan failed and was served from
	// the cached chunk instead.
	StatusFallback
)

func (s Status) String() string {
	switch s {
	case StatusNominal:
		return "nominal"
	case StatusFallback:
		return "fallback"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result is the outcome of one control step.
type Result struct {
	Step      int
	Command   action.Command
	Vector    action.Vector
	Status    Status
	Replanned bool
	// Chunks is the number of chunks that contributed to Vector.
	Chunks int
	// InferErr is the swallowed policy error when Status is StatusFallback.
	InferErr error
}

// Scheduler turns policy action chunks into one action per control step.
// It is not safe for concurrent use.
type Scheduler struct {
	cfg      Config
	policy   policy.Policy
	logger   *slog.Logger
	grippers []int

	queue  *ChunkQueue
	newest *action.Chunk
	step   int
	calls  int

	// fallback is the last successful chunk, untruncated, and fallbackAt
	// the step at which it was obtained.
	fallback   *action.Chunk
	fallbackAt int
}

// New validates cfg and returns a scheduler with an empty queue. A nil
// logger discards output.
func New(cfg Config, p policy.Policy, logger *slog.Logger) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("sched: nil policy")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Scheduler{
		cfg:      cfg,
		policy:   p,
		logger:   logger.With("mode", string(cfg.Mode)),
		grippers: cfg.Layout.GripperIndices(),
		queue:    NewChunkQueue(cfg.EnsembleMax),
	}
	return s, nil
}

// Reset prepares the scheduler for a new episode.
func (s *Scheduler) Reset() {
	s.queue.Clear()
	s.newest = nil
	s.step = 0
	s.fallback = nil
	s.fallbackAt = 0
}

func (s *Scheduler) Config() Config { return s.cfg }
func (s *Scheduler) Step() int      { return s.step }
func (s *Scheduler) QueueLen() int  { return s.queue.Len() }

// Calls returns the number of policy calls made over the scheduler's
// lifetime. Reset does not clear it.
func (s *Scheduler) Calls() int { return s.calls }

// Act produces the action for the current control step and advances the
// step counter. Policy failures are absorbed when a previous chunk is
// cached; see Result.Status.
func (s *Scheduler) Act(ctx context.Context, obs action.Observation) (Result, error) {
	if err := obs.Validate(); err != nil {
		return Result{}, &StepError{Step: s.step, Err: err}
	}

	res := Result{Step: s.step, Status: StatusNominal}
	if s.needsReplan() {
		chunk, inferErr, err := s.replan(ctx, obs)
		if err != nil {
			return Result{}, &StepError{Step: s.step, Err: err}
		}
		if chunk != nil {
			s.enqueue(chunk)
		}
		res.Replanned = true
		if inferErr != nil {
			res.Status = StatusFallback
			res.InferErr = inferErr
		}
	}

	heads := s.queue.PopHeads()
	if len(heads) == 0 {
		return Result{}, &StepError{Step: s.step, Err: ErrEmptyQueue}
	}

	var v action.Vector
	if s.cfg.Mode.Blends() {
		v = Blend(heads, ExpWeights(len(heads), s.cfg.Decay))
		newest := heads[len(heads)-1]
		for _, g := range s.grippers {
			v[g] = newest[g]
		}
		res.Chunks = len(heads)
	} else {
		v = heads[len(heads)-1].Clone()
		res.Chunks = 1
	}

	cmd, err := s.cfg.Layout.Decode(v)
	if err != nil {
		return Result{}, &StepError{Step: s.step, Err: err}
	}
	res.Vector = v
	res.Command = cmd
	s.step++
	return res, nil
}

func (s *Scheduler) needsReplan() bool {
	if s.cfg.Mode == ModeRecedingTemporal {
		return s.step%s.cfg.ReplanInterval == 0
	}
	return s.newest == nil || s.newest.Len() == 0
}

func (s *Scheduler) enqueue(c *action.Chunk) {
	if s.cfg.Mode == ModeRecedingHorizon {
		s.queue.Clear()
	}
	if evicted := s.queue.Push(c); evicted > 0 {
		s.logger.Debug("evicted chunks", "step", s.step, "count", evicted)
	}
	s.newest = c
}

// replan queries the policy. On a policy failure with a cached chunk it
// returns the swallowed error and either no chunk, when queued chunks can
// still be consumed, or the cached chunk realigned to the current step. err
// is only set when no action can be produced.
func (s *Scheduler) replan(ctx context.Context, obs action.Observation) (chunk *action.Chunk, inferErr error, err error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	req := s.request(obs)
	s.calls++
	resp, callErr := s.policy.Infer(ctx, req)
	if callErr == nil {
		fresh := action.NewChunk(resp.Actions, 0)
		if callErr = fresh.Validate(s.cfg.Layout.Dim); callErr == nil {
			s.fallback = fresh.Clone()
			s.fallbackAt = s.step
			fresh.Truncate(s.cfg.MaxChunkLen)
			return fresh, nil, nil
		}
	}

	// Cancellation is the caller stopping the rollout, not a flaky server.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, nil, ctxErr
	}
	if s.fallback == nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrNoFallback, callErr)
	}

	if s.queue.Len() > 0 {
		s.logger.Warn("policy inference failed, continuing queued chunks",
			"step", s.step,
			"queued", s.queue.Len(),
			"error", callErr,
		)
		return nil, callErr, nil
	}

	sub := s.fallback.Tail(s.step - s.fallbackAt)
	sub.Truncate(s.cfg.MaxChunkLen)
	s.logger.Warn("policy inference failed, reusing last chunk",
		"step", s.step,
		"chunk_age", s.step-s.fallbackAt,
		"error", callErr,
	)
	return sub, callErr, nil
}

func (s *Scheduler) request(obs action.Observation) *policy.Request {
	f := obs.Latest()
	prompt := s.cfg.Prompt
	if obs.Prompt != "" {
		prompt = obs.Prompt
	}
	size := s.cfg.ResizeSize
	return &policy.Request{
		EgoCamera:     policy.NewImage(imgproc.ResizeWithPad(f.Ego, size)),
		WristLeft:     policy.NewImage(imgproc.ResizeWithPad(f.LeftWrist, size)),
		WristRight:    policy.NewImage(imgproc.ResizeWithPad(f.RightWrist, size)),
		JointPosition: f.Proprio.Clone(),
		Prompt:        prompt,
	}
}
