package sim

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/streamsim/streamsim/sim/potential"
)

// ErrUnsupported is returned by CalculatePotential when the strategy does not
// cache exactly one target field.
var ErrUnsupported = errors.New("potential is only available for exactly one target")

// Movement strategy names.
const (
	MovementEuclidean    = "euclidean"
	MovementDijkstra     = "dijkstra"
	MovementFastMarching = "fast-marching"
)

// Default crowd-repulsion parameters.
const (
	DefaultRadius            = 3
	DefaultMollifierRange    = 2
	DefaultMollifierStrength = 1.5
)

// MovementStrategy moves a person one cell at a time towards its target.
type MovementStrategy interface {
	// Name returns the registry name of the strategy.
	Name() string
	// Init computes the potential field of every target in st.
	Init(st *State, rng *rand.Rand)
	// Move decides and performs the next step of p and schedules the one after.
	Move(p *Person, env Env) error
	// CalculatePotential returns the potential of the single known target,
	// raised by the mollifier around every person in st when crowd repulsion
	// is enabled.
	CalculatePotential(st *State) (potential.Field, error)
}

// Mollifier is the smooth, compactly supported repulsion people exert on each other.
type Mollifier struct {
	Range    int     `yaml:"range" json:"range"`
	Strength float64 `yaml:"strength" json:"strength"`
}

// Penalty returns strength·exp(1/((d/range)²−1)) for d < range, else 0.
func (m Mollifier) Penalty(d float64) float64 {
	r := float64(m.Range)
	if d >= r {
		return 0
	}
	x := d / r
	return m.Strength * math.Exp(1/(x*x-1))
}

type (
	fieldSolver        func(st *State, target Location) potential.Field
	diagonalCorrection func(descent float64, p *Person, rng *rand.Rand) float64
)

// PotentialMovementStrategy greedily follows the steepest descent of a static
// potential field, discouraged by nearby people. The solver and the diagonal
// correction are what distinguish the registered strategies.
type PotentialMovementStrategy struct {
	name      string
	radius    int
	mollifier Mollifier
	solve     fieldSolver
	diagonal  diagonalCorrection

	rng     *rand.Rand
	targets []Location
	fields  map[Location]potential.Field
}

// NewEuclideanMovement follows straight-line distance, ignoring obstacles.
func NewEuclideanMovement(radius int, mollifier Mollifier) *PotentialMovementStrategy {
	return &PotentialMovementStrategy{
		name:      MovementEuclidean,
		radius:    radius,
		mollifier: mollifier,
		solve: func(st *State, target Location) potential.Field {
			return potential.Euclidean(st.Rows(), st.Columns(), toCell(target))
		},
		diagonal: axisRatioCorrection,
	}
}

// NewDijkstraMovement follows shortest paths over the free cells of the initial state.
func NewDijkstraMovement(radius int, mollifier Mollifier) *PotentialMovementStrategy {
	return &PotentialMovementStrategy{
		name:      MovementDijkstra,
		radius:    radius,
		mollifier: mollifier,
		solve: func(st *State, target Location) potential.Field {
			return potential.GraphRelaxation(st.Rows(), st.Columns(), toCell(target), func(c potential.Cell) bool {
				return passable(st, fromCell(c))
			})
		},
		diagonal: bandNudgeCorrection,
	}
}

// NewFastMarchingMovement follows arrival times of a front expanding from the target around obstacles.
func NewFastMarchingMovement(radius int, mollifier Mollifier) *PotentialMovementStrategy {
	return &PotentialMovementStrategy{
		name:      MovementFastMarching,
		radius:    radius,
		mollifier: mollifier,
		solve: func(st *State, target Location) potential.Field {
			return potential.FastMarching(st.Rows(), st.Columns(), toCell(target), func(c potential.Cell) bool {
				_, isObstacle := st.CellOccupant(fromCell(c)).(*Obstacle)
				return isObstacle
			}, potential.UnitSpeed)
		},
		diagonal: axisRatioCorrection,
	}
}

func (m *PotentialMovementStrategy) Name() string { return m.name }

// Radius is the neighbourhood in which other people repel.
func (m *PotentialMovementStrategy) Radius() int { return m.radius }

// Mollifier returns the repulsion parameters.
func (m *PotentialMovementStrategy) Mollifier() Mollifier { return m.mollifier }

func (m *PotentialMovementStrategy) Init(st *State, rng *rand.Rand) {
	m.rng = rng
	m.targets = st.LocationsOf(TypeTarget)
	m.fields = make(map[Location]potential.Field, len(m.targets))
	for _, t := range m.targets {
		m.fields[t] = m.solve(st, t)
	}
	logrus.Debugf("%s movement: computed %d potential field(s)", m.name, len(m.fields))
}

func (m *PotentialMovementStrategy) Move(p *Person, env Env) error {
	defer env.observeMove(p)

	field, ok := m.fields[p.Target()]
	if !ok {
		logrus.Warnf("no potential field for target %s of person %d, person stays at %s", p.Target(), p.ID(), p.Location())
		return nil
	}
	now := env.Scheduler.CurrentTime()
	again := func() error { return m.Move(p, env) }

	candidates := m.nextLocations(p, env.State, field)
	if len(candidates) == 0 {
		p.couldNotMove()
		logrus.Debugf("[t=%.3f] person %d at %s could not move (%d failures)", now, p.ID(), p.Location(), p.FailedMoves())
		return env.Scheduler.ScheduleIn(again, env.Scheduler.retryDelay(m.rng.Float64(), 1/p.Speed()))
	}

	next := candidates[0]
	if len(candidates) > 1 {
		next = candidates[m.rng.Intn(len(candidates))]
	}
	p.couldMove()

	if t, ok := env.State.CellOccupant(next).(*Target); ok {
		logrus.Debugf("[t=%.3f] person %d reached target %s", now, p.ID(), next)
		return t.Config().Consume.ReachedTarget(t, p, env)
	}

	from := p.Location()
	distance := Distance(from, next)
	moved, err := env.State.MoveOccupant(from, next)
	if err != nil {
		return fmt.Errorf("moving person %d: %w", p.ID(), err)
	}
	if !moved {
		return fmt.Errorf("moving person %d from %s to %s: destination not occupiable", p.ID(), from, next)
	}

	delta := distance / p.Speed()
	p.AddMovementRecord(now+delta, distance)
	logrus.Debugf("[t=%.3f] person %d moved %s -> %s, next move in %.3f", now, p.ID(), from, next, delta)
	return env.Scheduler.ScheduleIn(again, delta)
}

// nextLocations returns every candidate cell with the greatest adjusted descent, or
// nothing when all options worsen the person's position and it is still patient.
func (m *PotentialMovementStrategy) nextLocations(p *Person, st *State, field potential.Field) []Location {
	others := m.peopleInRadius(p, st)
	current := field.At(toCell(p.Location()))

	greatest := -math.MaxFloat64
	var best []Location
	forEachNeighbour(p.Location(), st.Rows(), st.Columns(), 1, func(n Location) {
		if !passable(st, n) {
			return
		}
		descent := current - field.At(toCell(n))
		if Distance(p.Location(), n) > 1 {
			descent = m.diagonal(descent, p, m.rng)
		}
		if m.radius > 0 {
			for _, o := range others {
				descent -= m.mollifier.Penalty(Distance(n, o))
			}
		}

		switch {
		case descent > greatest:
			greatest = descent
			best = append(best[:0], n)
		case descent == greatest:
			best = append(best, n)
		}
	})

	if greatest < 0 && p.FailedMoves() <= p.Patience() {
		return nil
	}
	return best
}

// peopleInRadius returns the locations of other people within Euclidean distance radius of p.
func (m *PotentialMovementStrategy) peopleInRadius(p *Person, st *State) []Location {
	if m.radius <= 0 {
		return nil
	}
	var out []Location
	forEachNeighbour(p.Location(), st.Rows(), st.Columns(), m.radius, func(n Location) {
		if st.PersonAt(n) != nil && Distance(n, p.Location()) <= float64(m.radius) {
			out = append(out, n)
		}
	})
	return out
}

func (m *PotentialMovementStrategy) CalculatePotential(st *State) (potential.Field, error) {
	if len(m.targets) != 1 {
		return nil, fmt.Errorf("%w: %d targets known", ErrUnsupported, len(m.targets))
	}
	field := m.fields[m.targets[0]].Clone()
	if m.radius <= 0 {
		return field, nil
	}
	for _, p := range st.People() {
		center := p.Location()
		forEachNeighbour(center, st.Rows(), st.Columns(), m.mollifier.Range, func(n Location) {
			field[n.Row][n.Column] += m.mollifier.Penalty(Distance(n, center))
		})
	}
	return field, nil
}

// passable reports whether a person may step onto loc: it is free, or it is a target.
func passable(st *State, loc Location) bool {
	if st.CanBeOccupied(loc) {
		return true
	}
	_, isTarget := st.CellOccupant(loc).(*Target)
	return isTarget
}

// axisRatioCorrection scales diagonal descent down by how far the person's trip
// deviates from a single axis.
func axisRatioCorrection(descent float64, p *Person, _ *rand.Rand) float64 {
	rowDiff := math.Abs(float64(p.Source().Row - p.Target().Row))
	columnDiff := math.Abs(float64(p.Source().Column - p.Target().Column))
	switch {
	case rowDiff == 0 && columnDiff == 0:
		return descent
	case rowDiff > columnDiff:
		return descent / (1 + columnDiff/rowDiff)
	default:
		return descent / (1 + rowDiff/columnDiff)
	}
}

// bandNudgeCorrection replaces a diagonal descent inside (1.4, 1.5) by 0.99 or 1.01,
// favouring diagonal steps in proportion to the diagonal share of the trip.
// Anything outside the band becomes -1.
func bandNudgeCorrection(descent float64, p *Person, rng *rand.Rand) float64 {
	if descent <= 1.4 || descent >= 1.5 {
		return -1.0
	}
	rowDiff := abs(p.Source().Row - p.Target().Row)
	columnDiff := abs(p.Source().Column - p.Target().Column)
	diagonalSteps := min(rowDiff, columnDiff)
	straightSteps := max(rowDiff, columnDiff) - diagonalSteps

	var diagonalShare, straightShare float64
	if total := diagonalSteps + straightSteps; total > 0 {
		diagonalShare = float64(diagonalSteps) / float64(total)
		straightShare = float64(straightSteps) / float64(total)
	}

	u := rng.Float64()
	if diagonalSteps > straightSteps {
		if u < diagonalShare {
			return 1.01
		}
		return 0.99
	}
	if u < straightShare {
		return 0.99
	}
	return 1.01
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func toCell(l Location) potential.Cell    { return potential.Cell{Row: l.Row, Column: l.Column} }
func fromCell(c potential.Cell) Location { return Location{Row: c.Row, Column: c.Column} }
