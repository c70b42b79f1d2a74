// sim/simulator.go
package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	// ErrRunning is returned by operations that need the pacing worker to be stopped.
	ErrRunning = errors.New("simulation is running")
	// ErrEnded is returned when playing or stepping a finished simulation without resetting it.
	ErrEnded = errors.New("simulation has ended, reset it first")
)

// Phase is the life-cycle phase of a Simulator.
type Phase int

const (
	PhaseNotStarted Phase = iota
	PhaseRunning
	PhasePaused
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseNotStarted:
		return "not-started"
	case PhaseRunning:
		return "running"
	case PhasePaused:
		return "paused"
	case PhaseEnded:
		return "ended"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Options configures a Simulator.
type Options struct {
	// Seed is the master seed of all random streams.
	Seed int64
	// TimeUnit is the wall-clock duration of one virtual time unit. 0 runs as fast as possible.
	TimeUnit time.Duration
	// Horizon stops the run before the first event later than it. 0 means no horizon.
	Horizon    float64
	Statistics StatisticsConfig
}

// Simulator drives a world through virtual time.
//
// Play starts a pacing worker goroutine that processes one event at a time and
// sleeps TimeUnit × Δt between events; Pause stops it without touching pending
// events. Step and Run drive the same loop from the caller's goroutine.
// Listeners are called on whichever goroutine processes events.
type Simulator struct {
	mu sync.Mutex
	// step is held while Step processes an event; Reset and Terminate wait for it.
	step sync.Mutex

	stepping bool

	start     *State
	current   *State
	scheduler *Scheduler
	opts      Options

	phase   Phase
	started bool
	err     error
	sources []*Source

	stats     statsTracker
	lastStats Statistics

	lifecycle      []LifecycleListener
	statsListeners []StatisticsListener
	moveListeners  []func(time float64, p *Person)
	updates        map[int]UpdateListener
	nextUpdateID   int
	attached       []int

	stop chan struct{}
	done chan struct{}
}

// NewSimulator creates a simulator for the given initial state. The state is
// cloned, so later changes to it do not affect the simulation.
func NewSimulator(start *State, opts Options) (*Simulator, error) {
	if start == nil {
		return nil, errors.New("start state must be non-nil")
	}
	if opts.Statistics == (StatisticsConfig{}) {
		opts.Statistics = DefaultStatisticsConfig()
	}
	if err := opts.Statistics.Validate(); err != nil {
		return nil, err
	}
	if opts.TimeUnit < 0 {
		return nil, fmt.Errorf("time unit must be non-negative, got %s", opts.TimeUnit)
	}
	if opts.Horizon < 0 {
		return nil, fmt.Errorf("horizon must be non-negative, got %g", opts.Horizon)
	}
	s := &Simulator{
		start:     start.Clone(),
		scheduler: NewScheduler(),
		opts:      opts,
		updates:   make(map[int]UpdateListener),
		stats:     statsTracker{cfg: opts.Statistics},
	}
	s.current = s.start.Clone()
	return s, nil
}

// Phase returns the current life-cycle phase.
func (s *Simulator) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Err returns the handler fault that ended the run, if any.
func (s *Simulator) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// State returns the mutable state of the current run. It may be read
// concurrently with a running simulation.
func (s *Simulator) State() *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// StartState returns the immutable initial state.
func (s *Simulator) StartState() *State { return s.start }

// PeopleCount returns the number of people in the current state.
func (s *Simulator) PeopleCount() int {
	return s.State().ObjectTypeCount(TypePerson)
}

// CurrentTime returns the virtual clock. Only meaningful while the pacing worker is stopped.
func (s *Simulator) CurrentTime() float64 { return s.scheduler.CurrentTime() }

// Sources returns the sources initialised by the current run.
func (s *Simulator) Sources() []*Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Source(nil), s.sources...)
}

// LastStatistics returns the most recent statistics snapshot.
func (s *Simulator) LastStatistics() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastStats
}

// AddLifecycleListener registers l.
func (s *Simulator) AddLifecycleListener(l LifecycleListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lifecycle = append(s.lifecycle, l)
}

// AddStatisticsListener registers l.
func (s *Simulator) AddStatisticsListener(l StatisticsListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statsListeners = append(s.statsListeners, l)
}

// AddMoveListener registers fn to be called after every movement decision.
func (s *Simulator) AddMoveListener(fn func(time float64, p *Person)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.moveListeners = append(s.moveListeners, fn)
}

// AddUpdateListener registers l on the current state and on every state
// restored by Reset. The returned handle is accepted by RemoveUpdateListener.
func (s *Simulator) AddUpdateListener(l UpdateListener) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextUpdateID
	s.nextUpdateID++
	s.updates[id] = l
	s.detachUpdates()
	s.attachUpdates()
	return id
}

// RemoveUpdateListener unregisters the listener with the given handle.
func (s *Simulator) RemoveUpdateListener(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.updates, id)
	s.detachUpdates()
	s.attachUpdates()
}

func (s *Simulator) attachUpdates() {
	for id := 0; id < s.nextUpdateID; id++ {
		if l, ok := s.updates[id]; ok {
			s.attached = append(s.attached, s.current.AddUpdateListener(l))
		}
	}
}

func (s *Simulator) detachUpdates() {
	for _, h := range s.attached {
		s.current.RemoveUpdateListener(h)
	}
	s.attached = s.attached[:0]
}

// Play starts or continues the simulation on a background pacing worker.
// It returns ErrRunning while a Step is in progress.
func (s *Simulator) Play() error {
	stop, done, err := s.begin()
	if err != nil {
		return err
	}
	go s.loop(stop, done)
	return nil
}

// Run plays the simulation on the calling goroutine until the queue drains,
// the horizon is reached, a handler fails or ctx is cancelled (which pauses it).
func (s *Simulator) Run(ctx context.Context) error {
	stop, done, err := s.begin()
	if err != nil {
		return err
	}

	finished := make(chan struct{})
	watcher := make(chan struct{})
	go func() {
		defer close(watcher)
		select {
		case <-ctx.Done():
			s.Pause()
		case <-finished:
		}
	}()
	s.loop(stop, done)
	close(finished)
	<-watcher

	if err := s.Err(); err != nil {
		return err
	}
	return ctx.Err()
}

// Step processes exactly one event on the calling goroutine. It returns false
// once there is nothing left to process, at which point the simulation ends.
// While the pacing worker or another Step is processing, it returns ErrRunning.
func (s *Simulator) Step() (bool, error) {
	if !s.step.TryLock() {
		return false, ErrRunning
	}
	defer s.step.Unlock()

	s.mu.Lock()
	switch s.phase {
	case PhaseRunning:
		s.mu.Unlock()
		return false, ErrRunning
	case PhaseEnded:
		s.mu.Unlock()
		return false, ErrEnded
	}
	first := !s.started
	if first {
		if err := s.initialise(); err != nil {
			s.mu.Unlock()
			return false, err
		}
		s.phase = PhasePaused
	}
	s.stepping = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.stepping = false
		s.mu.Unlock()
	}()
	if first {
		s.fire(LifecycleListener.OnStart)
	}

	if !s.hasNext() {
		s.finish(nil)
		return false, nil
	}
	if err := s.processNext(); err != nil {
		s.finish(err)
		return true, err
	}
	return true, nil
}

// Pause stops the pacing worker after the event it is processing, if any.
// Pending events stay queued.
func (s *Simulator) Pause() {
	s.mu.Lock()
	if s.phase != PhaseRunning || s.stop == nil {
		s.mu.Unlock()
		return
	}
	stop, done := s.stop, s.done
	s.stop = nil
	close(stop)
	s.mu.Unlock()

	<-done

	s.mu.Lock()
	paused := s.phase == PhaseRunning
	if paused {
		s.phase = PhasePaused
	}
	s.mu.Unlock()
	if paused {
		logrus.Infof("[t=%.3f] simulation paused", s.scheduler.CurrentTime())
		s.fire(LifecycleListener.OnPause)
	}
}

// Reset stops the simulation, drops all pending events and restores the initial state.
// It waits for an in-progress Step to finish.
func (s *Simulator) Reset() {
	s.Pause()
	s.step.Lock()
	defer s.step.Unlock()
	s.reset()
}

func (s *Simulator) reset() {
	s.mu.Lock()
	s.scheduler.Clear()
	s.detachUpdates()
	s.current = s.start.Clone()
	s.attachUpdates()
	s.phase = PhaseNotStarted
	s.started = false
	s.err = nil
	s.sources = nil
	s.stats.reset(0)
	s.lastStats = Statistics{}
	s.mu.Unlock()

	logrus.Infof("simulation reset")
	s.fire(LifecycleListener.OnReset)
}

// Terminate emits a final statistics snapshot and resets the simulation.
func (s *Simulator) Terminate() {
	s.Pause()
	s.step.Lock()
	defer s.step.Unlock()
	if s.Phase() != PhaseNotStarted {
		s.emitStatistics(s.scheduler.CurrentTime())
	}
	s.reset()
}

// begin moves the simulator into PhaseRunning, initialising the run the first time.
func (s *Simulator) begin() (stop, done chan struct{}, err error) {
	s.mu.Lock()
	if s.stepping {
		s.mu.Unlock()
		return nil, nil, ErrRunning
	}
	switch s.phase {
	case PhaseRunning:
		s.mu.Unlock()
		return nil, nil, ErrRunning
	case PhaseEnded:
		s.mu.Unlock()
		return nil, nil, ErrEnded
	}
	first := !s.started
	if first {
		if err := s.initialise(); err != nil {
			s.mu.Unlock()
			return nil, nil, err
		}
	}
	s.phase = PhaseRunning
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	stop, done = s.stop, s.done
	s.mu.Unlock()

	if first {
		logrus.Infof("simulation started (seed %d, %d source(s))", s.opts.Seed, len(s.sources))
		s.fire(LifecycleListener.OnStart)
	} else {
		logrus.Infof("[t=%.3f] simulation continued", s.scheduler.CurrentTime())
		s.fire(LifecycleListener.OnContinue)
	}
	return stop, done, nil
}

// initialise seeds every strategy of the current state and schedules the first
// spawn of each source. Callers hold s.mu.
func (s *Simulator) initialise() error {
	rng := NewPartitionedRNG(s.opts.Seed)
	env := s.env()

	s.sources = s.sources[:0]
	for _, obj := range s.current.ObjectsOf(TypeSource) {
		src := obj.(*Source)
		cfg := src.Config()
		cfg.Spawn.Init(s.current, rng.ForSubsystem(SubsystemSpawn))
		cfg.Movement.Init(s.current, rng.ForSubsystem(SubsystemMovement))
		cfg.Speed.Init(rng.ForSubsystem(SubsystemGenerators))
		cfg.Patience.Init(rng.ForSubsystem(SubsystemGenerators))
		if err := s.scheduler.ScheduleIn(func() error { return cfg.Spawn.Spawn(src, env) }, cfg.Spawn.NextInterval()); err != nil {
			return fmt.Errorf("scheduling first spawn of source %s: %w", src.Location(), err)
		}
		s.sources = append(s.sources, src)
	}
	for _, obj := range s.current.ObjectsOf(TypeTarget) {
		obj.(*Target).Config().Consume.Init(s.current, rng.ForSubsystem(SubsystemConsume))
	}

	s.stats.reset(s.current.WalkableCellCount())
	s.started = true
	return nil
}

func (s *Simulator) env() Env {
	return Env{State: s.current, Scheduler: s.scheduler, OnMove: s.fireMove}
}

// loop is the pacing worker. It owns the scheduler until stop is closed or the run ends.
func (s *Simulator) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		if !s.hasNext() {
			s.finish(nil)
			return
		}
		next, _ := s.scheduler.PeekNextTimestamp()
		delay := time.Duration(float64(s.opts.TimeUnit) * (next - s.scheduler.CurrentTime()))
		if delay > 0 {
			timer.Reset(delay)
			select {
			case <-stop:
				return
			case <-timer.C:
			}
		} else {
			select {
			case <-stop:
				return
			default:
			}
		}

		if err := s.processNext(); err != nil {
			s.finish(err)
			return
		}
	}
}

// hasNext reports whether an event is pending within the horizon.
func (s *Simulator) hasNext() bool {
	next, ok := s.scheduler.PeekNextTimestamp()
	if !ok {
		return false
	}
	return s.opts.Horizon <= 0 || next <= s.opts.Horizon
}

func (s *Simulator) processNext() error {
	if _, err := s.scheduler.ProcessNext(); err != nil {
		return err
	}
	now := s.scheduler.CurrentTime()
	if s.stats.due(now) {
		s.emitStatistics(now)
	}
	s.fire(func(l LifecycleListener) { l.OnTimeChange(now) })
	return nil
}

func (s *Simulator) emitStatistics(now float64) {
	s.mu.Lock()
	st := s.current
	s.mu.Unlock()

	stats := s.stats.compute(now, st)
	logrus.Debugf("[t=%.3f] people=%d density=%.4f speed=%.4f flow=%.4f", now, stats.People, stats.Density, stats.MeanSpeed, stats.Flow)

	s.mu.Lock()
	s.lastStats = stats
	listeners := append([]StatisticsListener(nil), s.statsListeners...)
	s.mu.Unlock()
	for _, l := range listeners {
		l.OnUpdate(stats)
	}
}

// finish ends the run, recording err if a handler failed.
func (s *Simulator) finish(err error) {
	s.mu.Lock()
	s.phase = PhaseEnded
	s.err = err
	s.mu.Unlock()

	if err != nil {
		logrus.Errorf("simulation halted: %v", err)
	} else {
		logrus.Infof("[t=%.3f] simulation ended", s.scheduler.CurrentTime())
	}
	s.fire(LifecycleListener.OnEnd)
}

func (s *Simulator) fire(fn func(LifecycleListener)) {
	s.mu.Lock()
	listeners := append([]LifecycleListener(nil), s.lifecycle...)
	s.mu.Unlock()
	for _, l := range listeners {
		fn(l)
	}
}

func (s *Simulator) fireMove(time float64, p *Person) {
	s.mu.Lock()
	listeners := make([]func(float64, *Person), len(s.moveListeners))
	copy(listeners, s.moveListeners)
	s.mu.Unlock()
	for _, l := range listeners {
		l(time, p)
	}
}
