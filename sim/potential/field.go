// Package potential computes static potential fields on a rectangular grid.
//
// A field holds, per cell, the cost of reaching a single target cell. Lower is
// closer; the target itself is 0. Cells that cannot reach the target hold
// Unreachable. Solvers are pure: they read the grid through the callbacks they
// are given and never retain them.
package potential

import "math"

// Unreachable marks cells from which the target cannot be reached.
const Unreachable = math.MaxFloat64

// Cell addresses a grid cell.
type Cell struct {
	Row, Column int
}

// CellFunc classifies a cell, e.g. as passable or blocked.
type CellFunc func(Cell) bool

// neighbourOffsets lists the 8-neighbourhood as (row, column) deltas, row-major.
var neighbourOffsets = [8][2]int{
	{-1, -1}, {-1, 0}, {-1, 1},
	{0, -1}, {0, 1},
	{1, -1}, {1, 0}, {1, 1},
}

// Field is a rows x columns grid of potentials, indexed [row][column].
type Field [][]float64

// NewField allocates a field filled with v.
func NewField(rows, columns int, v float64) Field {
	f := make(Field, rows)
	for r := range f {
		f[r] = make([]float64, columns)
		for c := range f[r] {
			f[r][c] = v
		}
	}
	return f
}

// Rows returns the number of rows.
func (f Field) Rows() int { return len(f) }

// Columns returns the number of columns.
func (f Field) Columns() int {
	if len(f) == 0 {
		return 0
	}
	return len(f[0])
}

// At returns the potential of c.
func (f Field) At(c Cell) float64 { return f[c.Row][c.Column] }

// Contains reports whether c lies inside the field.
func (f Field) Contains(c Cell) bool {
	return c.Row >= 0 && c.Row < f.Rows() && c.Column >= 0 && c.Column < f.Columns()
}

// Clone returns a deep copy.
func (f Field) Clone() Field {
	c := make(Field, len(f))
	for r := range f {
		c[r] = append([]float64(nil), f[r]...)
	}
	return c
}

// Reachable reports whether c can reach the target.
func (f Field) Reachable(c Cell) bool { return f.At(c) < Unreachable }
