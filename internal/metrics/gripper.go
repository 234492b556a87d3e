package metrics

import "github.com/san-kum/actsched/internal/action"

const GripperThreshold = 0.5

// GripperToggles counts open/close transitions across GripperThreshold on
// the given gripper dimensions.
type GripperToggles struct {
	name    string
	indices []int
	prev    []bool
	seen    bool
	toggles int
}

func NewGripperToggles(indices []int) *GripperToggles {
	return &GripperToggles{
		name:    "gripper_toggles",
		indices: indices,
		prev:    make([]bool, len(indices)),
	}
}

func (g *GripperToggles) Name() string { return g.name }

func (g *GripperToggles) Observe(step int, u, ref action.Vector) {
	for k, idx := range g.indices {
		if idx >= len(u) {
			continue
		}
		closed := u[idx] > GripperThreshold
		if g.seen && closed != g.prev[k] {
			g.toggles++
		}
		g.prev[k] = closed
	}
	g.seen = true
}

func (g *GripperToggles) Value() float64 { return float64(g.toggles) }

func (g *GripperToggles) Reset() {
	clear(g.prev)
	g.seen = false
	g.toggles = 0
}
