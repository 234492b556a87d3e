package policy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
)

// ErrInjected is returned by Flaky on its scheduled failures.
var ErrInjected = errors.New("policy: injected failure")

// Sine is a deterministic stand-in for a learned policy. Each chunk eases
// from the current joint position along a sinusoid; gripper dimensions
// follow a square wave.
type Sine struct {
	Dim       int
	Horizon   int
	Amplitude float64
	Period    float64
	Grippers  []int
}

func NewSine(dim, horizon int, grippers []int) *Sine {
	return &Sine{
		Dim:       dim,
		Horizon:   horizon,
		Amplitude: 0.1,
		Period:    40,
		Grippers:  grippers,
	}
}

func (s *Sine) Infer(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Dim <= 0 || s.Horizon <= 0 {
		return nil, fmt.Errorf("sine policy: dim and horizon must be positive")
	}

	gripper := make(map[int]bool, len(s.Grippers))
	for _, g := range s.Grippers {
		gripper[g] = true
	}

	actions := make([][]float64, s.Horizon)
	for j := range actions {
		row := make([]float64, s.Dim)
		phase := 2 * math.Pi * float64(j+1) / s.Period
		for d := range row {
			if gripper[d] {
				if int(float64(j+1)/(s.Period/2))%2 == 0 {
					row[d] = 1
				}
				continue
			}
			base := 0.0
			if d < len(req.JointPosition) {
				base = req.JointPosition[d]
			}
			row[d] = base + s.Amplitude*math.Sin(phase+0.3*float64(d))
		}
		actions[j] = row
	}

	return &Response{
		Actions:  actions,
		Metadata: map[string]any{"policy": "sine"},
	}, nil
}

// Flaky wraps a policy and fails every Every-th call.
type Flaky struct {
	Inner Policy
	Every int

	mu    sync.Mutex
	calls int
}

func (f *Flaky) Infer(ctx context.Context, req *Request) (*Response, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()

	if f.Every > 0 && n%f.Every == 0 {
		return nil, fmt.Errorf("%w: call %d", ErrInjected, n)
	}
	return f.Inner.Infer(ctx, req)
}

// Script replays a fixed sequence of outcomes, one per call. Calls beyond
// the end of the script repeat its final entry.
type Script struct {
	Steps []ScriptStep

	mu       sync.Mutex
	calls    int
	Requests []*Request
}

type ScriptStep struct {
	Actions [][]float64
	Err     error
}

func (s *Script) Infer(ctx context.Context, req *Request) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.Steps) == 0 {
		return nil, errors.New("script policy: no steps")
	}
	i := s.calls
	if i >= len(s.Steps) {
		i = len(s.Steps) - 1
	}
	s.calls++
	s.Requests = append(s.Requests, req)

	step := s.Steps[i]
	if step.Err != nil {
		return nil, step.Err
	}
	rows := make([][]float64, len(step.Actions))
	for r, row := range step.Actions {
		rows[r] = append([]float64(nil), row...)
	}
	return &Response{Actions: rows}, nil
}

func (s *Script) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
