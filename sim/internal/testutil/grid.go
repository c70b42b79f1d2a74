// Package testutil provides shared test infrastructure for the pedestrian
// simulator: ASCII world maps, sample world files and float assertions used
// across sim/ and its sub-package tests.
package testutil

import (
	"fmt"
	"math"
	"path/filepath"
	"runtime"
	"testing"
)

// Legend maps the characters of an ASCII world map to object type names.
// '.' marks an empty cell.
var Legend = map[rune]string{
	'P': "person",
	'#': "obstacle",
	'S': "source",
	'T': "target",
	'|': "light-barrier",
}

// ParseGrid reads an ASCII world map, one string per row, and returns its
// dimensions and the type name of every non-empty cell keyed as R<row>C<column>.
// All rows must have the same width.
func ParseGrid(t *testing.T, lines ...string) (rows, columns int, cells map[string]string) {
	t.Helper()
	if len(lines) == 0 {
		t.Fatal("ParseGrid: empty map")
	}
	rows, columns = len(lines), len([]rune(lines[0]))
	cells = make(map[string]string)
	for r, line := range lines {
		runes := []rune(line)
		if len(runes) != columns {
			t.Fatalf("ParseGrid: row %d has width %d, want %d", r, len(runes), columns)
		}
		for c, ch := range runes {
			if ch == '.' {
				continue
			}
			name, ok := Legend[ch]
			if !ok {
				t.Fatalf("ParseGrid: unknown cell %q at row %d column %d", ch, r, c)
			}
			cells[fmt.Sprintf("R%dC%d", r, c)] = name
		}
	}
	return rows, columns, cells
}

// WorldFile returns the path of a sample world under the repository's testdata/worlds directory.
func WorldFile(t *testing.T, name string) string {
	t.Helper()

	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	return filepath.Join(filepath.Dir(thisFile), "..", "..", "..", "testdata", "worlds", name)
}

// AssertFloat64Equal compares two float64 values with a relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
