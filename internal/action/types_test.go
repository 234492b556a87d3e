package action

import (
	"errors"
	"math"
	"testing"
)

func TestVector_IsValid(t *testing.T) {
	tests := []struct {
		name  string
		v     Vector
		valid bool
	}{
		{"empty", Vector{}, true},
		{"normal", Vector{1, 2, 3}, true},
		{"with NaN", Vector{1, math.NaN()}, false},
		{"with +Inf", Vector{math.Inf(1)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.v.IsValid(); got != tt.valid {
				t.Errorf("IsValid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestChunk_PopOrder(t *testing.T) {
	c := NewChunk([][]float64{{1}, {2}, {3}}, 0)

	for _, want := range []float64{1, 2, 3} {
		v, ok := c.Pop()
		if !ok {
			t.Fatalf("pop failed, expected %v", want)
		}
		if v[0] != want {
			t.Errorf("expected %v, got %v", want, v[0])
		}
	}

	if _, ok := c.Pop(); ok {
		t.Error("expected pop on empty chunk to fail")
	}
}

func TestNewChunk_TruncatesAndCopies(t *testing.T) {
	rows := [][]float64{{1}, {2}, {3}, {4}}
	c := NewChunk(rows, 2)
	if c.Len() != 2 {
		t.Fatalf("expected 2 steps, got %d", c.Len())
	}

	rows[0][0] = 99
	v, _ := c.Pop()
	if v[0] != 1 {
		t.Error("chunk shares memory with source rows")
	}
}

func TestChunk_Tail(t *testing.T) {
	c := NewChunk([][]float64{{1}, {2}, {3}}, 0)

	tail := c.Tail(1)
	if tail.Len() != 2 {
		t.Fatalf("expected 2 steps, got %d", tail.Len())
	}
	v, _ := tail.Pop()
	if v[0] != 2 {
		t.Errorf("expected 2, got %v", v[0])
	}
	if c.Len() != 3 {
		t.Error("Tail consumed the source chunk")
	}

	held := c.Tail(10)
	if held.Len() != 1 {
		t.Fatalf("expected held one-step chunk, got %d", held.Len())
	}
	v, _ = held.Pop()
	if v[0] != 3 {
		t.Errorf("expected final vector 3, got %v", v[0])
	}
}

func TestChunk_Validate(t *testing.T) {
	tests := []struct {
		name string
		rows [][]float64
		want error
	}{
		{"ok", [][]float64{{1, 2}, {3, 4}}, nil},
		{"empty", nil, ErrInvalidChunk},
		{"ragged", [][]float64{{1, 2}, {3}}, ErrDimensionMismatch},
		{"nan", [][]float64{{1, math.NaN()}}, ErrInvalidChunk},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewChunk(tt.rows, 0).Validate(2)
			if tt.want == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestChunk_Truncate(t *testing.T) {
	c := NewChunk([][]float64{{1}, {2}, {3}}, 0)
	c.Truncate(5)
	if c.Len() != 3 {
		t.Errorf("truncate past end changed length to %d", c.Len())
	}
	c.Truncate(1)
	if c.Len() != 1 {
		t.Errorf("expected 1 step, got %d", c.Len())
	}
}
