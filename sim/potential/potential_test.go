package potential

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openGrid(Cell) bool   { return true }
func noObstacle(Cell) bool { return false }

func TestEuclidean_TargetIsZero(t *testing.T) {
	f := Euclidean(4, 6, Cell{Row: 1, Column: 3})
	assert.Equal(t, 0.0, f.At(Cell{Row: 1, Column: 3}))
	assert.Equal(t, 4, f.Rows())
	assert.Equal(t, 6, f.Columns())
}

func TestEuclidean_NonDecreasingWithDistance(t *testing.T) {
	target := Cell{Row: 2, Column: 2}
	f := Euclidean(5, 5, target)
	for r1 := 0; r1 < 5; r1++ {
		for c1 := 0; c1 < 5; c1++ {
			for r2 := 0; r2 < 5; r2++ {
				for c2 := 0; c2 < 5; c2++ {
					d1 := math.Hypot(float64(r1-2), float64(c1-2))
					d2 := math.Hypot(float64(r2-2), float64(c2-2))
					if d1 < d2 && f[r1][c1] > f[r2][c2] {
						t.Errorf("f(%d,%d)=%v > f(%d,%d)=%v although closer", r1, c1, f[r1][c1], r2, c2, f[r2][c2])
					}
				}
			}
		}
	}
}

// wallAt builds a grid of rows x 5 with column 2 fully blocked.
func wallAt(c Cell) bool { return c.Column == 2 }

func TestGraphRelaxation_WallSeparates_Unreachable(t *testing.T) {
	// GIVEN a continuous wall between target and the right half
	target := Cell{Row: 2, Column: 0}
	passable := func(c Cell) bool { return !wallAt(c) }

	// WHEN the field is relaxed
	f := GraphRelaxation(5, 5, target, passable)

	// THEN cells behind the wall are unreachable and cells in front are not
	for r := 0; r < 5; r++ {
		assert.Equal(t, Unreachable, f[r][3], "row %d", r)
		assert.Equal(t, Unreachable, f[r][4], "row %d", r)
		assert.Less(t, f[r][1], Unreachable, "row %d", r)
	}
	assert.Equal(t, 0.0, f.At(target))
}

func TestFastMarching_WallSeparates_Unreachable(t *testing.T) {
	target := Cell{Row: 2, Column: 0}

	f := FastMarching(5, 5, target, wallAt, UnitSpeed)

	for r := 0; r < 5; r++ {
		assert.Equal(t, Unreachable, f[r][2], "wall row %d", r)
		assert.Equal(t, Unreachable, f[r][3], "row %d", r)
		assert.Equal(t, Unreachable, f[r][4], "row %d", r)
		assert.True(t, f.Reachable(Cell{Row: r, Column: 1}), "row %d", r)
	}
	assert.Equal(t, 0.0, f.At(target))
}

func TestGraphRelaxation_EdgeWeights(t *testing.T) {
	f := GraphRelaxation(3, 3, Cell{Row: 0, Column: 0}, openGrid)
	assert.Equal(t, 1.0, f[0][1])
	assert.InDelta(t, math.Sqrt2, f[1][1], 1e-12)
	assert.InDelta(t, 2*math.Sqrt2, f[2][2], 1e-12)
	assert.InDelta(t, 1+math.Sqrt2, f[2][1], 1e-12)
}

func TestFastMarching_UpwindValues(t *testing.T) {
	f := FastMarching(3, 3, Cell{Row: 1, Column: 1}, noObstacle, nil)
	assert.Equal(t, 0.0, f[1][1])
	assert.Equal(t, 1.0, f[0][1])
	assert.Equal(t, 1.0, f[1][2])
	assert.InDelta(t, 1+0.5*math.Sqrt2, f[0][0], 1e-12)
}

func TestSolvers_OpenGrid_AgreeOnOrdering(t *testing.T) {
	// GIVEN an open 7x7 grid with the target in the centre
	target := Cell{Row: 3, Column: 3}
	fields := map[string]Field{
		"euclidean":     Euclidean(7, 7, target),
		"dijkstra":      GraphRelaxation(7, 7, target, openGrid),
		"fast-marching": FastMarching(7, 7, target, noObstacle, UnitSpeed),
	}
	rays := [][2]int{{0, 1}, {1, 0}, {0, -1}, {-1, 0}, {1, 1}, {-1, -1}, {1, -1}, {-1, 1}}

	for name, f := range fields {
		t.Run(name, func(t *testing.T) {
			// THEN potentials strictly increase walking away from the target along every ray
			for _, ray := range rays {
				prev := f.At(target)
				for k := 1; k <= 3; k++ {
					c := Cell{Row: target.Row + k*ray[0], Column: target.Column + k*ray[1]}
					require.Greater(t, f.At(c), prev, "ray %v step %d", ray, k)
					prev = f.At(c)
				}
			}
		})
	}
}

func TestField_Clone_IsDeep(t *testing.T) {
	f := NewField(2, 2, 1)
	c := f.Clone()
	c[0][0] = 5
	assert.Equal(t, 1.0, f[0][0])
}

func TestSolvers_TargetOutsideGrid_AllUnreachable(t *testing.T) {
	outside := Cell{Row: 9, Column: 9}
	for _, f := range []Field{
		GraphRelaxation(2, 2, outside, openGrid),
		FastMarching(2, 2, outside, noObstacle, UnitSpeed),
	} {
		for _, row := range f {
			for _, v := range row {
				assert.Equal(t, Unreachable, v)
			}
		}
	}
}
