package metrics

import (
	"math"

	"github.com/san-kum/actsched/internal/action"
)

// Tracking is the RMSE between commands and reference actions. Steps
// without a reference are skipped.
type Tracking struct {
	name    string
	sumSq   float64
	count   int
	samples int
}

func NewTracking() *Tracking {
	return &Tracking{name: "tracking_rmse"}
}

func (t *Tracking) Name() string { return t.name }

func (t *Tracking) Observe(step int, u, ref action.Vector) {
	if ref == nil || len(ref) != len(u) {
		return
	}
	for i := range u {
		d := u[i] - ref[i]
		t.sumSq += d * d
	}
	t.count += len(u)
	t.samples++
}

func (t *Tracking) Value() float64 {
	if t.count == 0 {
		return 0
	}
	return math.Sqrt(t.sumSq / float64(t.count))
}

// Samples is the number of steps that had a reference.
func (t *Tracking) Samples() int { return t.samples }

func (t *Tracking) Reset() {
	t.sumSq = 0
	t.count = 0
	t.samples = 0
}
