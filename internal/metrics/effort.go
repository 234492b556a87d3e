package metrics

import (
	"math"

	"github.com/san-kum/actsched/internal/action"
)

// Effort is the mean absolute command value per step.
type Effort struct {
	name    string
	sum     float64
	samples int
}

func NewEffort() *Effort {
	return &Effort{name: "effort"}
}

func (e *Effort) Name() string { return e.name }

func (e *Effort) Observe(step int, u, ref action.Vector) {
	if len(u) == 0 {
		return
	}
	var s float64
	for _, v := range u {
		s += math.Abs(v)
	}
	e.sum += s / float64(len(u))
	e.samples++
}

func (e *Effort) Value() float64 {
	if e.samples == 0 {
		return 0
	}
	return e.sum / float64(e.samples)
}

func (e *Effort) Reset() {
	e.sum = 0
	e.samples = 0
}
