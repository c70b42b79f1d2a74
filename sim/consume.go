package sim

import (
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"
)

// ConsumeStrategy decides what happens to a person that reached a target.
type ConsumeStrategy interface {
	Init(st *State, rng *rand.Rand)
	ReachedTarget(t *Target, p *Person, env Env) error
}

// RemoveConsumeStrategy takes the person out of the world.
type RemoveConsumeStrategy struct{}

func (RemoveConsumeStrategy) Init(*State, *rand.Rand) {}

func (RemoveConsumeStrategy) ReachedTarget(t *Target, p *Person, env Env) error {
	if !env.State.RemoveOccupant(p.Location()) {
		return fmt.Errorf("%w: person %d not found at %s", ErrNoOccupant, p.ID(), p.Location())
	}
	logrus.Debugf("[t=%.3f] person %d consumed by target %s", env.Scheduler.CurrentTime(), p.ID(), t.Location())
	return nil
}

// ReviveConsumeStrategy puts the person back next to a random source with a new
// random target, keeping the population constant.
type ReviveConsumeStrategy struct {
	rng     *rand.Rand
	sources []Location
	targets []Location
}

func (r *ReviveConsumeStrategy) Init(st *State, rng *rand.Rand) {
	r.rng = rng
	r.sources = st.LocationsOf(TypeSource)
	r.targets = st.LocationsOf(TypeTarget)
}

func (r *ReviveConsumeStrategy) ReachedTarget(t *Target, p *Person, env Env) error {
	if len(r.sources) == 0 {
		logrus.Warnf("no source to revive person %d at, removing it instead", p.ID())
		return RemoveConsumeStrategy{}.ReachedTarget(t, p, env)
	}

	loc := r.sources[r.rng.Intn(len(r.sources))]
	src, ok := env.State.CellOccupant(loc).(*Source)
	if !ok {
		return fmt.Errorf("expected source at %s", loc)
	}
	move := func() error { return src.Config().Movement.Move(p, env) }

	candidates := occupiableNeighbours(env.State, loc)
	if len(candidates) == 0 {
		logrus.Debugf("[t=%.3f] cannot revive person %d, source %s blocked", env.Scheduler.CurrentTime(), p.ID(), loc)
		return env.Scheduler.ScheduleIn(move, env.Scheduler.retryDelay(r.rng.Float64(), 1/p.Speed()))
	}

	spawnAt := candidates[r.rng.Intn(len(candidates))]
	if _, err := env.State.MoveOccupant(p.Location(), spawnAt); err != nil {
		return fmt.Errorf("reviving person %d: %w", p.ID(), err)
	}
	if len(r.targets) > 0 {
		p.SetTarget(r.targets[r.rng.Intn(len(r.targets))])
	} else {
		p.SetTarget(Location{})
	}
	logrus.Debugf("[t=%.3f] revived person %d at %s with target %s", env.Scheduler.CurrentTime(), p.ID(), spawnAt, p.Target())

	return env.Scheduler.ScheduleIn(move, Distance(p.Location(), loc)/p.Speed())
}
