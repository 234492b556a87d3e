package sched

import "github.com/san-kum/actsched/internal/action"

// ChunkQueue holds at most a fixed number of non-empty chunks, oldest first.
type ChunkQueue struct {
	chunks []*action.Chunk
	max    int
}

func NewChunkQueue(bound int) *ChunkQueue {
	return &ChunkQueue{chunks: make([]*action.Chunk, 0, bound+1), max: bound}
}

// Push appends c and evicts from the front until the bound holds. It
// returns the number of chunks evicted. Empty chunks are ignored.
func (q *ChunkQueue) Push(c *action.Chunk) int {
	if c == nil || c.Len() == 0 {
		return 0
	}
	q.chunks = append(q.chunks, c)
	evicted := 0
	for len(q.chunks) > q.max {
		q.chunks[0] = nil
		q.chunks = q.chunks[1:]
		evicted++
	}
	return evicted
}

func (q *ChunkQueue) Len() int { return len(q.chunks) }

func (q *ChunkQueue) At(i int) *action.Chunk { return q.chunks[i] }

func (q *ChunkQueue) Clear() {
	for i := range q.chunks {
		q.chunks[i] = nil
	}
	q.chunks = q.chunks[:0]
}

// PopHeads pops one vector from every chunk, in queue order, then drops the
// chunks left empty.
func (q *ChunkQueue) PopHeads() []action.Vector {
	heads := make([]action.Vector, 0, len(q.chunks))
	live := q.chunks[:0]
	for _, c := range q.chunks {
		v, ok := c.Pop()
		if !ok {
			continue
		}
		heads = append(heads, v)
		if c.Len() > 0 {
			live = append(live, c)
		}
	}
	for i := len(live); i < len(q.chunks); i++ {
		q.chunks[i] = nil
	}
	q.chunks = live
	return heads
}
