package potential

import "math"

// Euclidean returns the straight-line distance from every cell to target,
// ignoring obstacles.
func Euclidean(rows, columns int, target Cell) Field {
	f := NewField(rows, columns, 0)
	for r := 0; r < rows; r++ {
		for c := 0; c < columns; c++ {
			f[r][c] = math.Hypot(float64(target.Row-r), float64(target.Column-c))
		}
	}
	return f
}
