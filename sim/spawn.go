package sim

import (
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat/distuv"
)

// Default spawn parameters.
const (
	DefaultFixedRate     = 10.0
	DefaultPoissonLambda = 10.0
)

// Env is what a strategy acts on while handling an event.
type Env struct {
	State     *State
	Scheduler *Scheduler
	// OnMove is called after every movement decision, if set.
	OnMove func(time float64, p *Person)
}

func (e Env) observeMove(p *Person) {
	if e.OnMove != nil {
		e.OnMove(e.Scheduler.CurrentTime(), p)
	}
}

// SpawnStrategy decides where and how often a source emits people.
type SpawnStrategy interface {
	// Init caches what the strategy needs from the initial state of a run.
	Init(st *State, rng *rand.Rand)
	// Spawn tries to emit one person next to src and schedules the next attempt.
	Spawn(src *Source, env Env) error
	// NextInterval returns the virtual time until the next spawn.
	NextInterval() float64
}

// spawner is the placement logic shared by all spawn strategies. interval supplies
// the inter-arrival rule of the concrete strategy.
type spawner struct {
	rng     *rand.Rand
	targets []Location
}

func (s *spawner) setup(st *State, rng *rand.Rand) {
	s.rng = rng
	s.targets = st.LocationsOf(TypeTarget)
}

func (s *spawner) spawn(src *Source, env Env, interval func() float64) error {
	cfg := src.Config()
	again := func() error { return cfg.Spawn.Spawn(src, env) }

	candidates := occupiableNeighbours(env.State, src.Location())
	if len(candidates) == 0 {
		logrus.Debugf("[t=%.3f] source %s blocked, retrying spawn", env.Scheduler.CurrentTime(), src.Location())
		return env.Scheduler.ScheduleIn(again, env.Scheduler.retryDelay(s.rng.Float64(), interval()))
	}

	loc := candidates[s.rng.Intn(len(candidates))]
	target := Location{}
	if len(s.targets) > 0 {
		target = s.targets[s.rng.Intn(len(s.targets))]
	}

	now := env.Scheduler.CurrentTime()
	p := NewPerson(env.State.NextPersonID(), src.Location(), target, loc, cfg.Speed.Next(), now, cfg.Patience.Next())
	if err := env.State.SetCellOccupant(p, loc); err != nil {
		return fmt.Errorf("spawning person at %s: %w", loc, err)
	}
	src.increaseSpawnCount()
	logrus.Debugf("[t=%.3f] spawned person %d at %s (source %s, target %s, speed %.3f)",
		now, p.ID(), loc, src.Location(), target, p.Speed())

	distance := Distance(loc, src.Location())
	delta := distance / p.Speed()
	p.AddMovementRecord(now+delta, distance)
	if err := env.Scheduler.ScheduleIn(func() error { return cfg.Movement.Move(p, env) }, delta); err != nil {
		return err
	}

	if src.budgetLeft() {
		return env.Scheduler.ScheduleIn(again, interval())
	}
	return nil
}

// occupiableNeighbours returns the free 8-neighbours of loc in row-major order.
func occupiableNeighbours(st *State, loc Location) []Location {
	var out []Location
	forEachNeighbour(loc, st.Rows(), st.Columns(), 1, func(n Location) {
		if st.CanBeOccupied(n) {
			out = append(out, n)
		}
	})
	return out
}

// FixedRateSpawnStrategy spawns at a constant interval.
type FixedRateSpawnStrategy struct {
	Rate float64

	spawner
}

// NewFixedRateSpawnStrategy creates a fixed-rate strategy with the given interval.
func NewFixedRateSpawnStrategy(rate float64) *FixedRateSpawnStrategy {
	return &FixedRateSpawnStrategy{Rate: rate}
}

func (f *FixedRateSpawnStrategy) Init(st *State, rng *rand.Rand) { f.setup(st, rng) }

func (f *FixedRateSpawnStrategy) Spawn(src *Source, env Env) error {
	return f.spawn(src, env, f.NextInterval)
}

func (f *FixedRateSpawnStrategy) NextInterval() float64 { return f.Rate }

// PoissonSpawnStrategy draws each interval from a Poisson distribution with mean Lambda.
type PoissonSpawnStrategy struct {
	Lambda float64

	spawner
	dist distuv.Poisson
}

// NewPoissonSpawnStrategy creates a Poisson strategy with mean interval lambda.
func NewPoissonSpawnStrategy(lambda float64) *PoissonSpawnStrategy {
	return &PoissonSpawnStrategy{Lambda: lambda}
}

func (p *PoissonSpawnStrategy) Init(st *State, rng *rand.Rand) {
	p.setup(st, rng)
	p.dist = distuv.Poisson{Lambda: p.Lambda, Src: rng}
}

func (p *PoissonSpawnStrategy) Spawn(src *Source, env Env) error {
	return p.spawn(src, env, p.NextInterval)
}

func (p *PoissonSpawnStrategy) NextInterval() float64 { return p.dist.Rand() }
