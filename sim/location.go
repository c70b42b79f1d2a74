package sim

import (
	"fmt"
	"math"
)

// Location addresses a single grid cell.
type Location struct {
	Row    int `yaml:"row" json:"row"`
	Column int `yaml:"column" json:"column"`
}

// String renders the location as R<row>C<column>, the key format used in world files.
func (l Location) String() string {
	return fmt.Sprintf("R%dC%d", l.Row, l.Column)
}

// ParseLocation is the inverse of Location.String.
func ParseLocation(key string) (Location, error) {
	var loc Location
	n, err := fmt.Sscanf(key, "R%dC%d", &loc.Row, &loc.Column)
	if err != nil || n != 2 {
		return Location{}, fmt.Errorf("invalid location key %q: want R<row>C<column>", key)
	}
	if loc.String() != key {
		return Location{}, fmt.Errorf("invalid location key %q: want R<row>C<column>", key)
	}
	return loc, nil
}

// Distance is the Euclidean distance between two cells (1 for straight, √2 for diagonal neighbours).
func Distance(from, to Location) float64 {
	return math.Hypot(float64(from.Row-to.Row), float64(from.Column-to.Column))
}

// forEachNeighbour calls fn for every cell in the square window of the given radius
// around loc, clipped to a rows x columns grid, excluding loc itself.
// Iteration is row-major, which keeps all callers deterministic.
func forEachNeighbour(loc Location, rows, columns, radius int, fn func(Location)) {
	for row := max(0, loc.Row-radius); row <= min(loc.Row+radius, rows-1); row++ {
		for column := max(0, loc.Column-radius); column <= min(loc.Column+radius, columns-1); column++ {
			if row == loc.Row && column == loc.Column {
				continue
			}
			fn(Location{Row: row, Column: column})
		}
	}
}
