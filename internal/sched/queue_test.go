package sched

import (
	"testing"

	"github.com/san-kum/actsched/internal/action"
)

func tagged(tag float64, n int) *action.Chunk {
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = []float64{tag}
	}
	return action.NewChunk(rows, 0)
}

func TestChunkQueue_EvictsExactlyTheOldest(t *testing.T) {
	const bound = 3
	q := NewChunkQueue(bound)
	for i := 0; i < bound; i++ {
		if evicted := q.Push(tagged(float64(i), 5)); evicted != 0 {
			t.Fatalf("push %d evicted %d", i, evicted)
		}
	}

	if evicted := q.Push(tagged(bound, 5)); evicted != 1 {
		t.Fatalf("expected 1 eviction, got %d", evicted)
	}
	if q.Len() != bound {
		t.Fatalf("expected %d chunks, got %d", bound, q.Len())
	}

	heads := q.PopHeads()
	for i, want := range []float64{1, 2, 3} {
		if heads[i][0] != want {
			t.Errorf("position %d: got chunk %v, want %v", i, heads[i][0], want)
		}
	}
}

func TestChunkQueue_PopHeadsDropsExhausted(t *testing.T) {
	q := NewChunkQueue(5)
	q.Push(tagged(0, 1))
	q.Push(tagged(1, 3))
	q.Push(tagged(2, 1))

	heads := q.PopHeads()
	if len(heads) != 3 {
		t.Fatalf("expected 3 heads, got %d", len(heads))
	}
	if q.Len() != 1 {
		t.Fatalf("expected 1 live chunk, got %d", q.Len())
	}
	if q.At(0).Len() != 2 {
		t.Errorf("surviving chunk has %d steps, want 2", q.At(0).Len())
	}
}

func TestChunkQueue_IgnoresEmpty(t *testing.T) {
	q := NewChunkQueue(2)
	q.Push(action.NewChunk(nil, 0))
	q.Push(nil)
	if q.Len() != 0 {
		t.Errorf("empty chunks were queued: len %d", q.Len())
	}
}

func TestChunkQueue_Clear(t *testing.T) {
	q := NewChunkQueue(2)
	q.Push(tagged(0, 2))
	q.Clear()
	if q.Len() != 0 {
		t.Errorf("expected empty queue after Clear, got %d", q.Len())
	}
	if heads := q.PopHeads(); len(heads) != 0 {
		t.Errorf("expected no heads, got %d", len(heads))
	}
}
