package recorder

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamsim/streamsim/sim"
)

func TestRecorder_WritesSeriesPerRun(t *testing.T) {
	// GIVEN a recorder with two runs
	path := filepath.Join(t.TempDir(), "stats", "runs.db")
	rec, err := Open(path)
	require.NoError(t, err)

	first := rec.BeginRun(RunInfo{Seed: 1, World: "corridor.yaml", Rows: 5, Columns: 9})
	rec.OnUpdate(sim.Statistics{Time: 10, People: 1, Density: 0.1, MeanSpeed: 1.3, Flow: 0})
	rec.OnUpdate(sim.Statistics{Time: 20, People: 3, Density: 0.3, MeanSpeed: 1.1, Flow: 0.5})
	second := rec.BeginRun(RunInfo{Seed: 2, World: "corridor.yaml", Rows: 5, Columns: 9})
	rec.OnUpdate(sim.Statistics{Time: 10, People: 2})

	// WHEN it is closed
	require.NoError(t, rec.Close())

	// THEN every snapshot is stored under its run, in order
	assert.Equal(t, int64(1), first)
	assert.Equal(t, int64(2), second)
	series, err := ReadSeries(context.Background(), path, first)
	require.NoError(t, err)
	assert.Equal(t, []sim.Statistics{
		{Time: 10, People: 1, Density: 0.1, MeanSpeed: 1.3, Flow: 0},
		{Time: 20, People: 3, Density: 0.3, MeanSpeed: 1.1, Flow: 0.5},
	}, series)

	series, err = ReadSeries(context.Background(), path, second)
	require.NoError(t, err)
	assert.Len(t, series, 1)
	assert.Equal(t, int64(0), rec.Dropped())

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	var seed int64
	var world string
	require.NoError(t, db.QueryRow(`SELECT seed,world FROM runs WHERE run_id=?`, second).Scan(&seed, &world))
	assert.Equal(t, int64(2), seed)
	assert.Equal(t, "corridor.yaml", world)
}

func TestRecorder_ReopenContinuesRunIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	rec, err := Open(path)
	require.NoError(t, err)
	rec.BeginRun(RunInfo{Seed: 1})
	require.NoError(t, rec.Close())

	rec, err = Open(path)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.BeginRun(RunInfo{Seed: 1}))
	require.NoError(t, rec.Close())
	// closing twice is harmless
	assert.NoError(t, rec.Close())
}

func TestRecorder_AfterClose_IgnoresUpdates(t *testing.T) {
	rec, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	require.NoError(t, rec.Close())
	rec.OnUpdate(sim.Statistics{Time: 1})
	assert.Equal(t, int64(0), rec.Dropped())
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}

func TestReadSeries_MissingDatabase(t *testing.T) {
	_, err := ReadSeries(context.Background(), filepath.Join(t.TempDir(), "nope.db"), 1)
	assert.Error(t, err)
}

func TestPrepareStatements_MissingSchema_ReturnsError(t *testing.T) {
	// GIVEN a database without the recorder schema
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "bare.db"))
	require.NoError(t, err)
	defer db.Close()

	// WHEN the insert statements are prepared
	_, _, err = prepareStatements(db)

	// THEN the failure is reported instead of yielding nil statements
	assert.Error(t, err)
}

func TestRecorder_CloseDuringUpdates_DoesNotPanic(t *testing.T) {
	// GIVEN writers publishing snapshots and runs concurrently
	rec, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 2000; j++ {
				if j%500 == 0 {
					rec.BeginRun(RunInfo{Seed: int64(i)})
				}
				rec.OnUpdate(sim.Statistics{Time: float64(j)})
			}
		}(i)
	}

	// WHEN the recorder is closed while they are still sending
	time.Sleep(time.Millisecond)
	assert.NoError(t, rec.Close())

	// THEN every writer finishes without a send on a closed channel
	wg.Wait()
}
