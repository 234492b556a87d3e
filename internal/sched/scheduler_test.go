package sched

import (
	"context"
	"errors"
	"image"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/actsched/internal/action"
	"github.com/san-kum/actsched/internal/policy"
)

var errBoom = errors.New("connection reset by peer")

func testObs(dim int) action.Observation {
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	return action.Single(action.Frame{
		Ego:        img,
		LeftWrist:  img,
		RightWrist: img,
		Proprio:    make(action.Vector, dim),
	})
}

// constChunk returns n rows of val with both r1 gripper dims set to grip.
func constChunk(n int, val, grip float64) [][]float64 {
	rows := make([][]float64, n)
	for i := range rows {
		row := make([]float64, 21)
		for d := range row {
			row[d] = val
		}
		row[13], row[20] = grip, grip
		rows[i] = row
	}
	return rows
}

// rampChunk returns n rows where row i holds i everywhere except the
// grippers, which alternate between 0 and 1.
func rampChunk(n int) [][]float64 {
	rows := make([][]float64, n)
	for i := range rows {
		row := make([]float64, 21)
		for d := range row {
			row[d] = float64(i)
		}
		row[13], row[20] = float64(i%2), float64(i%2)
		rows[i] = row
	}
	return rows
}

func modeConfig(mode Mode) Config {
	cfg := DefaultConfig()
	cfg.Mode = mode
	return cfg
}

func newScheduler(cfg Config, p policy.Policy) *Scheduler {
	s, err := New(cfg, p, nil)
	Expect(err).NotTo(HaveOccurred())
	return s
}

var _ = Describe("Scheduler", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	DescribeTable("decodes every step into sub-fields that cover the layout",
		func(mode Mode, layout action.Layout) {
			cfg := modeConfig(mode)
			cfg.Layout = layout
			s := newScheduler(cfg, policy.NewSine(layout.Dim, 20, layout.GripperIndices()))

			for i := 0; i < 45; i++ {
				res, err := s.Act(ctx, testObs(layout.Dim))
				Expect(err).NotTo(HaveOccurred())
				total := 0
				for _, part := range res.Command {
					total += len(part)
				}
				Expect(total).To(Equal(layout.Dim))
				Expect(res.Command).To(HaveLen(len(layout.Fields)))
				Expect(res.Step).To(Equal(i))
			}
		},
		Entry("receding_horizon r1", ModeRecedingHorizon, action.R1()),
		Entry("temporal_ensemble r1", ModeTemporalEnsemble, action.R1()),
		Entry("receding_temporal r1", ModeRecedingTemporal, action.R1()),
		Entry("receding_temporal bimanual16", ModeRecedingTemporal, action.Bimanual16()),
	)

	Context("receding_horizon", func() {
		It("does not call the policy until the chunk is exhausted", func() {
			script := &policy.Script{Steps: []policy.ScriptStep{
				{Actions: constChunk(5, 0, 0)},
				{Actions: constChunk(5, 1, 1)},
			}}
			s := newScheduler(modeConfig(ModeRecedingHorizon), script)

			for i := 0; i < 5; i++ {
				res, err := s.Act(ctx, testObs(21))
				Expect(err).NotTo(HaveOccurred())
				Expect(res.Replanned).To(Equal(i == 0))
				Expect(res.Vector[0]).To(Equal(0.0))
				Expect(script.Calls()).To(Equal(1))
			}

			res, err := s.Act(ctx, testObs(21))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Replanned).To(BeTrue())
			Expect(res.Vector[0]).To(Equal(1.0))
			Expect(script.Calls()).To(Equal(2))
		})

		It("truncates chunks to the max chunk length", func() {
			cfg := modeConfig(ModeRecedingHorizon)
			cfg.MaxChunkLen = 3
			script := &policy.Script{Steps: []policy.ScriptStep{{Actions: rampChunk(10)}}}
			s := newScheduler(cfg, script)

			for i := 0; i < 3; i++ {
				_, err := s.Act(ctx, testObs(21))
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(script.Calls()).To(Equal(1))

			res, err := s.Act(ctx, testObs(21))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Replanned).To(BeTrue())
			Expect(res.Vector[0]).To(Equal(0.0))
			Expect(script.Calls()).To(Equal(2))
		})
	})

	Context("gripper preservation", func() {
		It("takes grippers from the newest chunk in receding_temporal mode", func() {
			cfg := modeConfig(ModeRecedingTemporal)
			cfg.ReplanInterval = 1
			script := &policy.Script{Steps: []policy.ScriptStep{
				{Actions: constChunk(5, 0, 0)},
				{Actions: constChunk(5, 1, 1)},
			}}
			s := newScheduler(cfg, script)

			_, err := s.Act(ctx, testObs(21))
			Expect(err).NotTo(HaveOccurred())
			res, err := s.Act(ctx, testObs(21))
			Expect(err).NotTo(HaveOccurred())

			w := ExpWeights(2, cfg.Decay)
			Expect(res.Chunks).To(Equal(2))
			Expect(res.Vector[0]).To(BeNumerically("~", w[1], 1e-12))
			Expect(res.Vector[13]).To(Equal(1.0))
			Expect(res.Vector[20]).To(Equal(1.0))
			Expect(res.Command["left_gripper"]).To(Equal(action.Vector{1}))
			Expect(res.Command["right_gripper"]).To(Equal(action.Vector{1}))
		})

		It("does not favour the open gripper when the newest chunk closes it", func() {
			cfg := modeConfig(ModeRecedingTemporal)
			cfg.ReplanInterval = 1
			script := &policy.Script{Steps: []policy.ScriptStep{
				{Actions: constChunk(5, 0, 1)},
				{Actions: constChunk(5, 0, 0)},
			}}
			s := newScheduler(cfg, script)

			_, err := s.Act(ctx, testObs(21))
			Expect(err).NotTo(HaveOccurred())
			res, err := s.Act(ctx, testObs(21))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Vector[13]).To(Equal(0.0))
			Expect(res.Vector[20]).To(Equal(0.0))
		})

		It("takes grippers from the newest chunk in temporal_ensemble mode", func() {
			script := &policy.Script{Steps: []policy.ScriptStep{{Actions: constChunk(5, 1, 1)}}}
			s := newScheduler(modeConfig(ModeTemporalEnsemble), script)
			// A partially consumed chunk left over from earlier planning.
			s.queue.Push(action.NewChunk(constChunk(3, 0, 0), 0))

			res, err := s.Act(ctx, testObs(21))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Replanned).To(BeTrue())
			Expect(res.Chunks).To(Equal(2))
			Expect(res.Vector[0]).To(BeNumerically(">", 0.5))
			Expect(res.Vector[0]).To(BeNumerically("<", 1.0))
			Expect(res.Vector[13]).To(Equal(1.0))
			Expect(res.Vector[20]).To(Equal(1.0))
		})
	})

	Context("ensemble bound", func() {
		It("never blends more than EnsembleMax chunks", func() {
			cfg := modeConfig(ModeRecedingTemporal)
			cfg.ReplanInterval = 1
			cfg.EnsembleMax = 3
			s := newScheduler(cfg, &policy.Script{Steps: []policy.ScriptStep{{Actions: rampChunk(20)}}})

			for i := 0; i < 10; i++ {
				res, err := s.Act(ctx, testObs(21))
				Expect(err).NotTo(HaveOccurred())
				Expect(res.Chunks).To(Equal(min(i+1, 3)))
				Expect(s.QueueLen()).To(BeNumerically("<=", 3))
			}
		})
	})

	Context("reset", func() {
		It("clears state and forces a replan on the next step", func() {
			script := &policy.Script{Steps: []policy.ScriptStep{{Actions: rampChunk(20)}}}
			s := newScheduler(modeConfig(ModeRecedingTemporal), script)

			for i := 0; i < 3; i++ {
				_, err := s.Act(ctx, testObs(21))
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(script.Calls()).To(Equal(1))

			s.Reset()
			Expect(s.QueueLen()).To(Equal(0))
			Expect(s.Step()).To(Equal(0))

			res, err := s.Act(ctx, testObs(21))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Replanned).To(BeTrue())
			Expect(res.Vector[0]).To(Equal(0.0))
			Expect(script.Calls()).To(Equal(2))
		})

		It("drops the fallback cache", func() {
			script := &policy.Script{Steps: []policy.ScriptStep{
				{Actions: rampChunk(2)},
				{Err: errBoom},
			}}
			s := newScheduler(modeConfig(ModeRecedingHorizon), script)
			_, err := s.Act(ctx, testObs(21))
			Expect(err).NotTo(HaveOccurred())

			s.Reset()
			_, err = s.Act(ctx, testObs(21))
			Expect(err).To(MatchError(ErrNoFallback))
		})
	})

	Context("inference failure", func() {
		It("continues the cached chunk from where it would have been", func() {
			cfg := modeConfig(ModeRecedingTemporal)
			cfg.ReplanInterval = 2
			script := &policy.Script{Steps: []policy.ScriptStep{
				{Actions: rampChunk(10)},
				{Err: errBoom},
			}}
			s := newScheduler(cfg, script)

			for i := 0; i < 2; i++ {
				res, err := s.Act(ctx, testObs(21))
				Expect(err).NotTo(HaveOccurred())
				Expect(res.Status).To(Equal(StatusNominal))
				Expect(res.Vector[0]).To(Equal(float64(i)))
			}

			for i := 2; i < 6; i++ {
				res, err := s.Act(ctx, testObs(21))
				Expect(err).NotTo(HaveOccurred())
				if i%2 == 0 {
					Expect(res.Status).To(Equal(StatusFallback))
					Expect(res.InferErr).To(MatchError(errBoom))
				} else {
					Expect(res.Status).To(Equal(StatusNominal))
				}
				Expect(res.Vector[0]).To(BeNumerically("~", float64(i), 1e-12))
				Expect(res.Vector[13]).To(Equal(float64(i % 2)))
			}
		})

		It("keeps blending the queued chunks without re-adding the cached one", func() {
			cfg := modeConfig(ModeRecedingTemporal)
			cfg.ReplanInterval = 2
			script := &policy.Script{Steps: []policy.ScriptStep{
				{Actions: constChunk(10, 0, 0)},
				{Actions: constChunk(10, 100, 1)},
				{Err: errBoom},
			}}
			s := newScheduler(cfg, script)

			for i := 0; i < 4; i++ {
				_, err := s.Act(ctx, testObs(21))
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(s.QueueLen()).To(Equal(2))

			w := ExpWeights(2, cfg.Decay)
			for i := 4; i < 6; i++ {
				res, err := s.Act(ctx, testObs(21))
				Expect(err).NotTo(HaveOccurred())
				Expect(res.Status == StatusFallback).To(Equal(i == 4))
				Expect(res.Chunks).To(Equal(2))
				Expect(res.Vector[0]).To(BeNumerically("~", 100*w[1], 1e-9))
				Expect(res.Vector[13]).To(Equal(1.0))
				Expect(s.QueueLen()).To(Equal(2))
			}
			Expect(script.Calls()).To(Equal(3))
		})

		It("holds the final action once the cached chunk has elapsed", func() {
			script := &policy.Script{Steps: []policy.ScriptStep{
				{Actions: rampChunk(2)},
				{Err: errBoom},
			}}
			s := newScheduler(modeConfig(ModeRecedingHorizon), script)

			want := []float64{0, 1, 1, 1}
			for i, w := range want {
				res, err := s.Act(ctx, testObs(21))
				Expect(err).NotTo(HaveOccurred())
				Expect(res.Vector[0]).To(Equal(w))
				Expect(res.Status == StatusFallback).To(Equal(i >= 2))
			}
		})

		It("propagates the failure when nothing is cached", func() {
			script := &policy.Script{Steps: []policy.ScriptStep{{Err: errBoom}}}
			s := newScheduler(modeConfig(ModeTemporalEnsemble), script)

			res, err := s.Act(ctx, testObs(21))
			Expect(err).To(MatchError(ErrNoFallback))
			Expect(err).To(MatchError(errBoom))
			Expect(res.Vector).To(BeNil())
			Expect(s.Step()).To(Equal(0))

			var stepErr *StepError
			Expect(errors.As(err, &stepErr)).To(BeTrue())
			Expect(stepErr.Step).To(Equal(0))
		})

		It("treats malformed chunks as failures", func() {
			script := &policy.Script{Steps: []policy.ScriptStep{
				{Actions: rampChunk(1)},
				{Actions: [][]float64{{1, 2, 3}}},
			}}
			s := newScheduler(modeConfig(ModeRecedingHorizon), script)

			_, err := s.Act(ctx, testObs(21))
			Expect(err).NotTo(HaveOccurred())
			res, err := s.Act(ctx, testObs(21))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(StatusFallback))
			Expect(res.InferErr).To(MatchError(action.ErrDimensionMismatch))
		})

		It("does not mask cancellation", func() {
			cfg := modeConfig(ModeRecedingTemporal)
			cfg.ReplanInterval = 1
			script := &policy.Script{Steps: []policy.ScriptStep{{Actions: rampChunk(10)}}}
			s := newScheduler(cfg, script)

			_, err := s.Act(ctx, testObs(21))
			Expect(err).NotTo(HaveOccurred())

			cancelled, cancel := context.WithCancel(ctx)
			cancel()
			_, err = s.Act(cancelled, testObs(21))
			Expect(err).To(MatchError(context.Canceled))
		})
	})

	It("fails loudly when the queue drains between replans", func() {
		cfg := modeConfig(ModeRecedingTemporal)
		cfg.ReplanInterval = 3
		script := &policy.Script{Steps: []policy.ScriptStep{{Actions: rampChunk(2)}}}
		s := newScheduler(cfg, script)

		for i := 0; i < 2; i++ {
			_, err := s.Act(ctx, testObs(21))
			Expect(err).NotTo(HaveOccurred())
		}
		_, err := s.Act(ctx, testObs(21))
		Expect(err).To(MatchError(ErrEmptyQueue))
	})

	It("sends resized images, the latest proprio and the prompt", func() {
		script := &policy.Script{Steps: []policy.ScriptStep{{Actions: rampChunk(1)}}}
		s := newScheduler(modeConfig(ModeRecedingHorizon), script)

		obs := testObs(21)
		latest := obs.Latest()
		latest.Proprio = make(action.Vector, 21)
		latest.Proprio[4] = 0.7
		obs.Frames = append(obs.Frames, latest)

		_, err := s.Act(ctx, obs)
		Expect(err).NotTo(HaveOccurred())
		req := script.Requests[0]
		Expect(req.EgoCamera.Width).To(Equal(DefaultResizeSize))
		Expect(req.WristRight.Height).To(Equal(DefaultResizeSize))
		Expect(req.JointPosition[4]).To(Equal(0.7))
		Expect(req.Prompt).To(Equal(DefaultPrompt))

		obs.Prompt = "pick up the green mug"
		_, err = s.Act(ctx, obs)
		Expect(err).NotTo(HaveOccurred())
		Expect(script.Requests[1].Prompt).To(Equal("pick up the green mug"))
	})

	It("rejects invalid observations before touching the policy", func() {
		script := &policy.Script{Steps: []policy.ScriptStep{{Actions: rampChunk(1)}}}
		s := newScheduler(modeConfig(ModeRecedingHorizon), script)

		_, err := s.Act(ctx, action.Observation{})
		Expect(err).To(MatchError(action.ErrInvalidObservation))
		Expect(script.Calls()).To(Equal(0))
	})
})
