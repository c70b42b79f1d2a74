package potential

import (
	"container/heap"
	"math"
)

// SpeedFunc returns the local propagation speed of a cell (1 on open ground).
type SpeedFunc func(Cell) float64

// UnitSpeed propagates with speed 1 everywhere.
func UnitSpeed(Cell) float64 { return 1 }

type frontierNode struct {
	cell  Cell
	value float64
	index int // position in the heap, maintained by Swap
}

type frontier []*frontierNode

func (f frontier) Len() int           { return len(f) }
func (f frontier) Less(i, j int) bool { return f[i].value < f[j].value }
func (f frontier) Swap(i, j int) {
	f[i], f[j] = f[j], f[i]
	f[i].index = i
	f[j].index = j
}
func (f *frontier) Push(x any) {
	n := x.(*frontierNode)
	n.index = len(*f)
	*f = append(*f, n)
}
func (f *frontier) Pop() any {
	old := *f
	n := len(old)
	node := old[n-1]
	old[n-1] = nil
	node.index = -1
	*f = old[:n-1]
	return node
}

// FastMarching solves the eikonal equation |∇T| = 1/speed outward from target.
// Blocked cells are seeded Unreachable and never updated. Every time a cell is
// finalised, its still-unknown 8-neighbours get a fresh upwind estimate from
// their axial neighbours. Cells never reached end up Unreachable.
func FastMarching(rows, columns int, target Cell, blocked CellFunc, speed SpeedFunc) Field {
	known := NewField(rows, columns, math.Inf(1))
	if !known.Contains(target) {
		return NewField(rows, columns, Unreachable)
	}
	if speed == nil {
		speed = UnitSpeed
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < columns; c++ {
			if blocked(Cell{Row: r, Column: c}) {
				known[r][c] = Unreachable
			}
		}
	}
	known[target.Row][target.Column] = 0

	considered := make(map[Cell]*frontierNode)
	q := &frontier{}
	next, ok := target, true
	for ok {
		for _, off := range neighbourOffsets {
			n := Cell{Row: next.Row + off[0], Column: next.Column + off[1]}
			if !known.Contains(n) || !math.IsInf(known.At(n), 1) {
				continue
			}
			value, valid := upwind(known, n, speed(n))
			if !valid || value >= known.At(n) {
				continue
			}
			if node, seen := considered[n]; seen {
				if value < node.value {
					node.value = value
					heap.Fix(q, node.index)
				}
				continue
			}
			node := &frontierNode{cell: n, value: value}
			considered[n] = node
			heap.Push(q, node)
		}

		ok = q.Len() > 0
		if ok {
			node := heap.Pop(q).(*frontierNode)
			delete(considered, node.cell)
			known[node.cell.Row][node.cell.Column] = node.value
			next = node.cell
		}
	}

	for r := range known {
		for c, v := range known[r] {
			if math.IsInf(v, 1) {
				known[r][c] = Unreachable
			}
		}
	}
	return known
}

// upwind computes the two-axis first-order update for c. It reports false when
// neither axis has a finite value yet.
func upwind(known Field, c Cell, f float64) (float64, bool) {
	v := math.Min(axial(known, Cell{Row: c.Row - 1, Column: c.Column}), axial(known, Cell{Row: c.Row + 1, Column: c.Column}))
	h := math.Min(axial(known, Cell{Row: c.Row, Column: c.Column - 1}), axial(known, Cell{Row: c.Row, Column: c.Column + 1}))
	if math.IsInf(v, 1) && math.IsInf(h, 1) {
		return 0, false
	}
	inv := 1 / f
	if math.Abs(v-h) <= inv {
		return (h+v)/2 + 0.5*math.Sqrt((h+v)*(h+v)-2*(h*h+v*v-inv*inv)), true
	}
	return math.Min(h, v) + inv, true
}

// axial reads a neighbour value for the update, mapping outside cells and
// blocked cells to +Inf.
func axial(known Field, c Cell) float64 {
	if !known.Contains(c) {
		return math.Inf(1)
	}
	if v := known.At(c); v < Unreachable {
		return v
	}
	return math.Inf(1)
}
