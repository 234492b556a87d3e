package metrics

import "github.com/san-kum/actsched/internal/action"

// Jitter is the mean L2 distance between consecutive commands. Lower is
// smoother.
type Jitter struct {
	name    string
	prev    action.Vector
	sum     float64
	samples int
}

func NewJitter() *Jitter {
	return &Jitter{name: "jitter"}
}

func (j *Jitter) Name() string { return j.name }

func (j *Jitter) Observe(step int, u, ref action.Vector) {
	if j.prev != nil && len(j.prev) == len(u) {
		j.sum += u.Sub(j.prev).Norm()
		j.samples++
	}
	j.prev = u.Clone()
}

func (j *Jitter) Value() float64 {
	if j.samples == 0 {
		return 0
	}
	return j.sum / float64(j.samples)
}

func (j *Jitter) Reset() {
	j.prev = nil
	j.sum = 0
	j.samples = 0
}
