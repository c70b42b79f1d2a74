package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lifecycleLog records lifecycle callbacks in order.
type lifecycleLog struct {
	mu     sync.Mutex
	events []string
}

func (l *lifecycleLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *lifecycleLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *lifecycleLog) listener() LifecycleFuncs {
	return LifecycleFuncs{
		Start:    func() { l.add("start") },
		Pause:    func() { l.add("pause") },
		Continue: func() { l.add("continue") },
		Reset:    func() { l.add("reset") },
		End:      func() { l.add("end") },
	}
}

// singleWalkerWorld is a 3x3 world with a source in one corner and a target in the opposite one.
func singleWalkerWorld(t *testing.T, consume string) *State {
	t.Helper()
	var target *TargetDescriptor
	if consume != "" {
		target = &TargetDescriptor{Consume: consume}
	}
	return testWorld(t, fixedSource(10, 1, MovementEuclidean), target,
		"S..",
		"...",
		"..T",
	)
}

func TestSimulator_SingleWalker_RemovedAtTarget(t *testing.T) {
	// GIVEN one person spawned at t=10 walking to a removing target
	s, err := NewSimulator(singleWalkerWorld(t, ""), Options{Seed: 1})
	require.NoError(t, err)
	log := &lifecycleLog{}
	s.AddLifecycleListener(log.listener())

	// WHEN the simulation runs to completion
	require.NoError(t, s.Run(context.Background()))

	// THEN the person was spawned, walked and removed, and the run ended on its own
	assert.Equal(t, PhaseEnded, s.Phase())
	assert.NoError(t, s.Err())
	assert.Equal(t, 0, s.PeopleCount())
	require.Len(t, s.Sources(), 1)
	assert.Equal(t, 1, s.Sources()[0].SpawnCount())
	assert.Greater(t, s.CurrentTime(), 10.0)
	assert.Equal(t, []string{"start", "end"}, log.snapshot())

	// AND the start state is untouched
	assert.Equal(t, 0, s.StartState().ObjectTypeCount(TypePerson))
	assert.Equal(t, 0, s.StartState().ObjectsOf(TypeSource)[0].(*Source).SpawnCount())
}

func TestSimulator_ReviveTarget_PopulationStaysConstant(t *testing.T) {
	// GIVEN the same world with a reviving target and a horizon
	s, err := NewSimulator(singleWalkerWorld(t, "revive"), Options{Seed: 1, Horizon: 200})
	require.NoError(t, err)

	var counts []int
	s.AddLifecycleListener(LifecycleFuncs{TimeChange: func(float64) {
		counts = append(counts, s.State().ObjectTypeCount(TypePerson))
	}})

	// WHEN it runs up to the horizon
	require.NoError(t, s.Run(context.Background()))

	// THEN after the single spawn the population never changes
	assert.Equal(t, PhaseEnded, s.Phase())
	assert.Equal(t, 1, s.PeopleCount())
	assert.Equal(t, 1, s.Sources()[0].SpawnCount())
	require.NotEmpty(t, counts)
	for i, n := range counts {
		if n != 1 {
			t.Fatalf("event %d: population %d, want 1", i, n)
		}
	}
	assert.LessOrEqual(t, s.CurrentTime(), 200.0)
}

func TestSimulator_Reset_RestoresStartState(t *testing.T) {
	s, err := NewSimulator(singleWalkerWorld(t, "revive"), Options{Seed: 3, Horizon: 50})
	require.NoError(t, err)
	log := &lifecycleLog{}
	s.AddLifecycleListener(log.listener())

	require.NoError(t, s.Run(context.Background()))
	require.False(t, s.State().Equal(s.StartState()))

	s.Reset()

	assert.Equal(t, PhaseNotStarted, s.Phase())
	assert.True(t, s.State().Equal(s.StartState()))
	assert.NotSame(t, s.StartState(), s.State())
	assert.Equal(t, 0.0, s.CurrentTime())
	assert.Equal(t, Statistics{}, s.LastStatistics())
	assert.Equal(t, []string{"start", "end", "reset"}, log.snapshot())

	// AND resetting twice changes nothing
	s.Reset()
	assert.True(t, s.State().Equal(s.StartState()))
}

func TestSimulator_SameSeed_SameTrajectory(t *testing.T) {
	trajectory := func(s *Simulator) []string {
		var moves []string
		s.AddMoveListener(func(time float64, p *Person) {
			moves = append(moves, fmt.Sprintf("%.6f:%d:%s", time, p.ID(), p.Location()))
		})
		require.NoError(t, s.Run(context.Background()))
		return moves
	}
	world := testWorld(t, nil, &TargetDescriptor{Consume: "revive"},
		"S....",
		"..#..",
		"....T",
	)

	a, err := NewSimulator(world, Options{Seed: 9, Horizon: 100})
	require.NoError(t, err)
	first := trajectory(a)
	require.NotEmpty(t, first)

	b, err := NewSimulator(world, Options{Seed: 9, Horizon: 100})
	require.NoError(t, err)
	assert.Equal(t, first, trajectory(b))

	// a reset simulator replays the same run
	a.Reset()
	assert.Equal(t, first, trajectory(a))
}

func TestSimulator_Step_LifecycleAndEnd(t *testing.T) {
	s, err := NewSimulator(singleWalkerWorld(t, ""), Options{Seed: 1})
	require.NoError(t, err)
	log := &lifecycleLog{}
	s.AddLifecycleListener(log.listener())

	// WHEN stepping once
	ok, err := s.Step()
	require.NoError(t, err)
	require.True(t, ok)

	// THEN the run started paused and the first spawn happened at t=10
	assert.Equal(t, PhasePaused, s.Phase())
	assert.Equal(t, 10.0, s.CurrentTime())
	assert.Equal(t, 1, s.PeopleCount())

	// WHEN stepping until nothing is left
	steps := 1
	for ; steps < 100; steps++ {
		ok, err = s.Step()
		require.NoError(t, err)
		if !ok {
			break
		}
	}

	// THEN the run ended and refuses to continue without a reset
	assert.Less(t, steps, 100)
	assert.Equal(t, PhaseEnded, s.Phase())
	_, err = s.Step()
	assert.True(t, errors.Is(err, ErrEnded))
	assert.True(t, errors.Is(s.Play(), ErrEnded))
	assert.Equal(t, []string{"start", "end"}, log.snapshot())
}

func TestSimulator_StepInProgress_RejectsPlayAndStep(t *testing.T) {
	// GIVEN a Step blocked inside an update listener during the first spawn
	s, err := NewSimulator(singleWalkerWorld(t, ""), Options{Seed: 1})
	require.NoError(t, err)
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	s.AddUpdateListener(func([]UpdateEvent) {
		once.Do(func() {
			close(entered)
			<-release
		})
	})
	stepErr := make(chan error, 1)
	go func() {
		_, err := s.Step()
		stepErr <- err
	}()
	<-entered

	// WHEN Play and Step are called while that event is processed
	playErr := s.Play()
	_, secondStepErr := s.Step()

	// THEN both are refused and no pacing worker was started
	assert.True(t, errors.Is(playErr, ErrRunning), "Play during Step: %v", playErr)
	assert.True(t, errors.Is(secondStepErr, ErrRunning), "Step during Step: %v", secondStepErr)
	assert.Equal(t, PhasePaused, s.Phase())

	// WHEN the blocked Step completes
	close(release)
	require.NoError(t, <-stepErr)

	// THEN playing is allowed again and the run finishes normally
	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, PhaseEnded, s.Phase())
	assert.Equal(t, 0, s.PeopleCount())
}

func TestSimulator_ResetDuringStep_WaitsForStep(t *testing.T) {
	s, err := NewSimulator(singleWalkerWorld(t, ""), Options{Seed: 1})
	require.NoError(t, err)
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	s.AddUpdateListener(func([]UpdateEvent) {
		once.Do(func() {
			close(entered)
			<-release
		})
	})
	stepDone := make(chan struct{})
	go func() {
		defer close(stepDone)
		_, _ = s.Step()
	}()
	<-entered

	resetDone := make(chan struct{})
	go func() {
		defer close(resetDone)
		s.Reset()
	}()
	select {
	case <-resetDone:
		t.Fatal("Reset returned while Step was still processing an event")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-stepDone
	<-resetDone
	assert.Equal(t, PhaseNotStarted, s.Phase())
	assert.True(t, s.State().Equal(s.StartState()))
}

func TestSimulator_PlayPauseContinueTerminate(t *testing.T) {
	// GIVEN an endless stream of people paced at one millisecond per time unit
	world := testWorld(t, fixedSource(1, 0, MovementEuclidean), nil, "S...T")
	s, err := NewSimulator(world, Options{Seed: 5, TimeUnit: time.Millisecond})
	require.NoError(t, err)

	log := &lifecycleLog{}
	s.AddLifecycleListener(log.listener())
	ticks := make(chan float64, 1024)
	s.AddLifecycleListener(LifecycleFuncs{TimeChange: func(now float64) {
		select {
		case ticks <- now:
		default:
		}
	}})
	var statsMu sync.Mutex
	var snapshots []Statistics
	s.AddStatisticsListener(StatisticsFunc(func(st Statistics) {
		statsMu.Lock()
		defer statsMu.Unlock()
		snapshots = append(snapshots, st)
	}))

	waitTicks := func(n int) {
		t.Helper()
		timeout := time.After(5 * time.Second)
		for i := 0; i < n; i++ {
			select {
			case <-ticks:
			case <-timeout:
				t.Fatalf("timed out waiting for time change %d", i)
			}
		}
	}

	// WHEN played
	require.NoError(t, s.Play())
	assert.True(t, errors.Is(s.Play(), ErrRunning))
	_, err = s.Step()
	assert.True(t, errors.Is(err, ErrRunning))
	waitTicks(3)

	// AND paused
	s.Pause()
	assert.Equal(t, PhasePaused, s.Phase())
	paused := s.CurrentTime()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, paused, s.CurrentTime(), "clock must not advance while paused")

	// AND continued
	require.NoError(t, s.Play())
	waitTicks(3)
	assert.Greater(t, s.LastStatistics().Time, 0.0)

	// AND terminated
	s.Terminate()

	// THEN a final snapshot was delivered and the world is back at its start
	assert.Equal(t, PhaseNotStarted, s.Phase())
	assert.True(t, s.State().Equal(s.StartState()))
	assert.Equal(t, []string{"start", "pause", "continue", "pause", "reset"}, log.snapshot())
	statsMu.Lock()
	defer statsMu.Unlock()
	assert.GreaterOrEqual(t, len(snapshots), 2)
}

func TestSimulator_Run_ContextCancelPauses(t *testing.T) {
	world := testWorld(t, fixedSource(1, 0, MovementEuclidean), nil, "S...T")
	s, err := NewSimulator(world, Options{Seed: 5, TimeUnit: time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err = s.Run(ctx)

	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, PhasePaused, s.Phase())
	assert.Greater(t, s.CurrentTime(), 0.0)
}

func TestSimulator_UpdateListener_SurvivesReset(t *testing.T) {
	s, err := NewSimulator(singleWalkerWorld(t, ""), Options{Seed: 1})
	require.NoError(t, err)
	var batches int
	id := s.AddUpdateListener(func([]UpdateEvent) { batches++ })

	require.NoError(t, s.Run(context.Background()))
	first := batches
	require.Greater(t, first, 0)

	s.Reset()
	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, 2*first, batches)

	s.RemoveUpdateListener(id)
	s.Reset()
	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, 2*first, batches)
}

func TestSimulator_StatisticsAfterFirstEvent(t *testing.T) {
	s, err := NewSimulator(singleWalkerWorld(t, ""), Options{Seed: 1})
	require.NoError(t, err)
	var got []Statistics
	s.AddStatisticsListener(StatisticsFunc(func(st Statistics) { got = append(got, st) }))

	require.NoError(t, s.Run(context.Background()))

	require.NotEmpty(t, got)
	assert.Equal(t, 10.0, got[0].Time)
	assert.Equal(t, 1, got[0].People)
	assert.InDelta(t, Density(1, 9, DefaultCellsPerMeter), got[0].Density, 1e-12)
}

func TestSimulator_HandlerFailure_EndsRun(t *testing.T) {
	s, err := NewSimulator(singleWalkerWorld(t, ""), Options{Seed: 1})
	require.NoError(t, err)
	boom := errors.New("boom")
	// GIVEN a failing event queued ahead of the first move
	_, err = s.Step()
	require.NoError(t, err)
	require.NoError(t, s.scheduler.ScheduleIn(func() error { return boom }, 0))

	_, err = s.Step()

	assert.True(t, errors.Is(err, boom))
	var execErr *ExecutionError
	assert.True(t, errors.As(s.Err(), &execErr))
	assert.Equal(t, PhaseEnded, s.Phase())
}

func TestNewSimulator_InvalidOptions(t *testing.T) {
	_, err := NewSimulator(nil, Options{})
	assert.Error(t, err)
	st := NewState(1, 1)
	_, err = NewSimulator(st, Options{Horizon: -1})
	assert.Error(t, err)
	_, err = NewSimulator(st, Options{TimeUnit: -time.Second})
	assert.Error(t, err)
	_, err = NewSimulator(st, Options{Statistics: StatisticsConfig{CellsPerMeter: -1}})
	assert.Error(t, err)
}
