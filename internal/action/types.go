package action

import (
	"fmt"
	"math"
)

type Vector []float64

func (v Vector) Clone() Vector {
	c := make(Vector, len(v))
	copy(c, v)
	return c
}

func (v Vector) IsValid() bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func (v Vector) Sub(other Vector) Vector {
	result := make(Vector, len(v))
	for i := range v {
		if i < len(other) {
			result[i] = v[i] - other[i]
		} else {
			result[i] = v[i]
		}
	}
	return result
}

func (v Vector) Norm() float64 {
	sum := 0.0
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// Chunk is a sequence of action vectors predicted by a single policy call.
// Only the front is ever consumed.
type Chunk struct {
	steps []Vector
}

// NewChunk copies rows into a chunk, keeping at most maxLen of them when
// maxLen is positive.
func NewChunk(rows [][]float64, maxLen int) *Chunk {
	n := len(rows)
	if maxLen > 0 && n > maxLen {
		n = maxLen
	}
	steps := make([]Vector, n)
	for i := 0; i < n; i++ {
		steps[i] = Vector(rows[i]).Clone()
	}
	return &Chunk{steps: steps}
}

func (c *Chunk) Len() int { return len(c.steps) }

// Dim returns the dimensionality of the first remaining vector, or 0 when
// the chunk is empty.
func (c *Chunk) Dim() int {
	if len(c.steps) == 0 {
		return 0
	}
	return len(c.steps[0])
}

// Pop removes and returns the oldest unconsumed vector.
func (c *Chunk) Pop() (Vector, bool) {
	if len(c.steps) == 0 {
		return nil, false
	}
	v := c.steps[0]
	c.steps[0] = nil
	c.steps = c.steps[1:]
	return v, true
}

// Clone returns an independent copy of the remaining vectors.
func (c *Chunk) Clone() *Chunk {
	rows := make([][]float64, len(c.steps))
	for i, v := range c.steps {
		rows[i] = v
	}
	return NewChunk(rows, 0)
}

// Tail returns a copy of the chunk with the first skip vectors dropped. When
// skip reaches past the end the final vector is held as a one-step chunk.
func (c *Chunk) Tail(skip int) *Chunk {
	if len(c.steps) == 0 {
		return &Chunk{}
	}
	if skip < 0 {
		skip = 0
	}
	if skip >= len(c.steps) {
		return &Chunk{steps: []Vector{c.steps[len(c.steps)-1].Clone()}}
	}
	rows := make([][]float64, 0, len(c.steps)-skip)
	for _, v := range c.steps[skip:] {
		rows = append(rows, v)
	}
	return NewChunk(rows, 0)
}

// Truncate drops everything past the first n vectors.
func (c *Chunk) Truncate(n int) {
	if n >= 0 && n < len(c.steps) {
		c.steps = c.steps[:n]
	}
}

// Validate checks that the chunk is non-empty, rectangular with width dim,
// and finite.
func (c *Chunk) Validate(dim int) error {
	if len(c.steps) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidChunk)
	}
	for i, v := range c.steps {
		if len(v) != dim {
			return fmt.Errorf("%w: row %d has %d values, want %d", ErrDimensionMismatch, i, len(v), dim)
		}
		if !v.IsValid() {
			return fmt.Errorf("%w: row %d contains NaN or Inf", ErrInvalidChunk, i)
		}
	}
	return nil
}
