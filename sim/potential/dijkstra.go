package potential

import (
	"container/heap"
	"math"
)

type queueEntry struct {
	idx  int // row*columns + column
	dist float64
}

// distQueue is a min-heap on dist. Stale entries are skipped on pop instead of
// being updated in place.
type distQueue []queueEntry

func (q distQueue) Len() int           { return len(q) }
func (q distQueue) Less(i, j int) bool { return q[i].dist < q[j].dist }
func (q distQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *distQueue) Push(x any)        { *q = append(*q, x.(queueEntry)) }
func (q *distQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	*q = old[:n-1]
	return e
}

// GraphRelaxation runs Dijkstra from target over the 8-connected graph of passable
// cells. Edge weights are the Euclidean step length (1 straight, √2 diagonal).
// The target is always a node. Cells not connected to the target stay Unreachable.
func GraphRelaxation(rows, columns int, target Cell, passable CellFunc) Field {
	f := NewField(rows, columns, Unreachable)
	if !f.Contains(target) {
		return f
	}

	dist := make([]float64, rows*columns)
	for i := range dist {
		dist[i] = math.Inf(1)
	}
	isNode := func(c Cell) bool { return c == target || passable(c) }

	start := target.Row*columns + target.Column
	dist[start] = 0
	q := &distQueue{{idx: start, dist: 0}}

	for q.Len() > 0 {
		e := heap.Pop(q).(queueEntry)
		if e.dist > dist[e.idx] {
			continue // stale
		}
		r, c := e.idx/columns, e.idx%columns
		for _, off := range neighbourOffsets {
			n := Cell{Row: r + off[0], Column: c + off[1]}
			if !f.Contains(n) || !isNode(n) {
				continue
			}
			nd := e.dist + math.Hypot(float64(off[0]), float64(off[1]))
			ni := n.Row*columns + n.Column
			if nd < dist[ni] {
				dist[ni] = nd
				heap.Push(q, queueEntry{idx: ni, dist: nd})
			}
		}
	}

	for i, d := range dist {
		if !math.IsInf(d, 1) {
			f[i/columns][i%columns] = d
		}
	}
	return f
}
