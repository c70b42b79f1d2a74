package sim

import (
	"testing"

	"github.com/streamsim/streamsim/sim/internal/testutil"
)

// testWorld builds a state from an ASCII map. Sources and targets get the
// given descriptors; nil selects the defaults.
func testWorld(t *testing.T, source *SourceDescriptor, target *TargetDescriptor, lines ...string) *State {
	t.Helper()
	rows, columns, cells := testutil.ParseGrid(t, lines...)
	cfg := &WorldConfig{Rows: rows, Columns: columns, Cells: make(map[string]CellDescriptor, len(cells))}
	for key, name := range cells {
		d := CellDescriptor{Type: name}
		switch name {
		case "source":
			d.Source = source
		case "target":
			d.Target = target
		}
		cfg.Cells[key] = d
	}
	st, err := BuildState(cfg)
	if err != nil {
		t.Fatalf("BuildState: %v", err)
	}
	return st
}

// fixedSource is a source spawning every rate time units with deterministic speed and patience.
func fixedSource(rate float64, maxSpawns int, movement string) *SourceDescriptor {
	speed := 1.0
	patience := 0
	return &SourceDescriptor{
		Spawn:     SpawnDescriptor{Strategy: "fixed-rate", Rate: &rate},
		Movement:  MovementDescriptor{Strategy: movement},
		MaxSpawns: maxSpawns,
		Speed:     SpeedDescriptor{Generator: "fixed", Speed: &speed},
		Patience:  PatienceDescriptor{Generator: "fixed", Patience: &patience},
	}
}

// testEnv wraps st with a fresh scheduler.
func testEnv(st *State) Env {
	return Env{State: st, Scheduler: NewScheduler()}
}

// drain processes events until the queue is empty or limit events ran.
func drain(t *testing.T, sched *Scheduler, limit int) int {
	t.Helper()
	n := 0
	for ; n < limit; n++ {
		ok, err := sched.ProcessNext()
		if err != nil {
			t.Fatalf("ProcessNext: %v", err)
		}
		if !ok {
			break
		}
	}
	return n
}
