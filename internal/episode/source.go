// Package episode provides observation streams for rollouts: a seeded
// synthetic stream and recorded episodes stored as image and CSV files.
package episode

import (
	"errors"

	"github.com/san-kum/actsched/internal/action"
)

var ErrOutOfRange = errors.New("episode: frame index out of range")

// Source is a finite, randomly accessible sequence of frames with optional
// reference actions.
type Source interface {
	Len() int
	Frame(i int) (action.Frame, error)
	// Reference returns the recorded action for frame i, if any.
	Reference(i int) (action.Vector, bool)
}
