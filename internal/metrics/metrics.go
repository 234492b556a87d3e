// Package metrics scores a stream of commands produced by a rollout.
package metrics

import "github.com/san-kum/actsched/internal/action"

type Metric interface {
	Name() string
	// Observe records the command u issued at step; ref is nil when the
	// source has no reference action for that step.
	Observe(step int, u, ref action.Vector)
	Value() float64
	Reset()
}

// Default returns the standard metric set for a layout.
func Default(layout action.Layout) []Metric {
	return []Metric{
		NewJitter(),
		NewEffort(),
		NewTracking(),
		NewGripperToggles(layout.GripperIndices()),
	}
}
