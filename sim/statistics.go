package sim

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Default statistics parameters.
const (
	DefaultDebounce        = 10.0
	DefaultCellsPerMeter   = 2.5
	DefaultMeanSpeedWindow = 5
)

// StatisticsConfig controls how and how often aggregate statistics are computed.
type StatisticsConfig struct {
	// Debounce is the minimum virtual time between two recomputations.
	Debounce float64
	// CellsPerMeter converts grid cells to metres.
	CellsPerMeter float64
	// MeanSpeedWindow is the number of trailing speed samples per person; negative uses the full history.
	MeanSpeedWindow int
}

// DefaultStatisticsConfig returns debounce 10, 2.5 cells per metre and a window of 5 samples.
func DefaultStatisticsConfig() StatisticsConfig {
	return StatisticsConfig{
		Debounce:        DefaultDebounce,
		CellsPerMeter:   DefaultCellsPerMeter,
		MeanSpeedWindow: DefaultMeanSpeedWindow,
	}
}

// Validate rejects non-positive conversion factors and negative debounce.
func (c StatisticsConfig) Validate() error {
	if !(c.CellsPerMeter > 0) {
		return fmt.Errorf("cells per meter must be positive, got %g", c.CellsPerMeter)
	}
	if c.Debounce < 0 || math.IsNaN(c.Debounce) {
		return fmt.Errorf("statistics debounce must be non-negative, got %g", c.Debounce)
	}
	return nil
}

// Statistics is one aggregate snapshot of the world.
type Statistics struct {
	Time   float64 `json:"time"`
	People int     `json:"people"`
	// Density is people per square metre of walkable area.
	Density float64 `json:"density"`
	// MeanSpeed is in metres per time unit.
	MeanSpeed float64 `json:"mean_speed"`
	// Flow is light barrier crossings per metre of barrier per time unit.
	Flow float64 `json:"flow"`
}

// Density returns people / (walkable / cellsPerMeter²), or 0 without walkable area.
func Density(people, walkable int, cellsPerMeter float64) float64 {
	if walkable <= 0 {
		return 0
	}
	area := float64(walkable) / (cellsPerMeter * cellsPerMeter)
	return float64(people) / area
}

// MeanSpeed averages each person's windowed mean speed and converts it to metres.
func MeanSpeed(people []*Person, window int, cellsPerMeter float64) float64 {
	if len(people) == 0 {
		return 0
	}
	speeds := make([]float64, len(people))
	for i, p := range people {
		if window < 0 {
			speeds[i] = p.MeanSpeed()
		} else {
			speeds[i] = p.MeanSpeedWindow(window)
		}
	}
	return stat.Mean(speeds, nil) / cellsPerMeter
}

// Flow returns triggers per metre of barrier per elapsed time unit. Without
// barriers the width counts as 1; without elapsed time the flow is 0.
func Flow(triggers, barriers int, cellsPerMeter, elapsed float64) float64 {
	if elapsed <= 0 {
		return 0
	}
	width := 1.0
	if barriers > 0 {
		width = float64(barriers) / cellsPerMeter
	}
	return float64(triggers) / width / elapsed
}

// statsTracker debounces recomputation on time changes.
type statsTracker struct {
	cfg      StatisticsConfig
	walkable int

	observed   bool
	lastUpdate float64
}

func (t *statsTracker) reset(walkable int) {
	t.walkable = walkable
	t.observed = false
	t.lastUpdate = 0
}

// due reports whether a recomputation is due at now.
func (t *statsTracker) due(now float64) bool {
	return !t.observed || now-t.lastUpdate >= t.cfg.Debounce
}

// compute builds a snapshot at now and resets the light barrier trigger counter.
func (t *statsTracker) compute(now float64, st *State) Statistics {
	elapsed := now - t.lastUpdate
	t.observed = true
	t.lastUpdate = now

	people := st.People()
	barriers := st.ObjectTypeCount(TypeLightBarrier)
	triggers := st.ResetLightBarrierTriggers()
	return Statistics{
		Time:      now,
		People:    len(people),
		Density:   Density(len(people), t.walkable, t.cfg.CellsPerMeter),
		MeanSpeed: MeanSpeed(people, t.cfg.MeanSpeedWindow, t.cfg.CellsPerMeter),
		Flow:      Flow(triggers, barriers, t.cfg.CellsPerMeter, elapsed),
	}
}
