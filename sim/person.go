package sim

import "fmt"

// Person is a pedestrian walking from its source towards its target.
// Speed is in cells per virtual time unit; both speed and patience are drawn once at spawn.
type Person struct {
	id       int
	source   Location
	target   Location
	loc      Location
	speed    float64
	patience int

	lastMoveTimestamp float64
	failedMoves       int
	speedHistory      []float64
}

// NewPerson creates a person standing at loc. creationTime seeds the last-move timestamp.
func NewPerson(id int, source, target, loc Location, speed float64, creationTime float64, patience int) *Person {
	return &Person{
		id:                id,
		source:            source,
		target:            target,
		loc:               loc,
		speed:             speed,
		patience:          patience,
		lastMoveTimestamp: creationTime,
	}
}

func (p *Person) Type() ObjectType   { return TypePerson }
func (p *Person) Location() Location { return p.loc }
func (p *Person) Walkable() bool     { return false }
func (p *Person) sealed()            {}

func (p *Person) ID() int          { return p.id }
func (p *Person) Source() Location { return p.source }
func (p *Person) Target() Location { return p.target }
func (p *Person) Speed() float64   { return p.speed }
func (p *Person) Patience() int    { return p.patience }

// FailedMoves is the number of consecutive rejected moves.
func (p *Person) FailedMoves() int { return p.failedMoves }

// SetTarget redirects the person, e.g. after being revived.
func (p *Person) SetTarget(target Location) { p.target = target }

// SpeedHistory returns a copy of the recorded speed samples.
func (p *Person) SpeedHistory() []float64 {
	return append([]float64(nil), p.speedHistory...)
}

// AddMovementRecord appends the speed sample for a move of the given distance completing at timestamp.
func (p *Person) AddMovementRecord(timestamp, distance float64) {
	elapsed := timestamp - p.lastMoveTimestamp
	p.lastMoveTimestamp = timestamp
	p.speedHistory = append(p.speedHistory, distance/elapsed)
}

// MeanSpeed averages the whole speed history.
func (p *Person) MeanSpeed() float64 {
	return p.MeanSpeedWindow(len(p.speedHistory))
}

// MeanSpeedWindow averages the last window samples. A window larger than the
// history uses the full history; with no samples the person's own speed is returned.
func (p *Person) MeanSpeedWindow(window int) float64 {
	window = min(window, len(p.speedHistory))
	if window <= 0 {
		return p.speed
	}
	sum := 0.0
	for _, s := range p.speedHistory[len(p.speedHistory)-window:] {
		sum += s
	}
	return sum / float64(window)
}

func (p *Person) couldNotMove() { p.failedMoves++ }
func (p *Person) couldMove()    { p.failedMoves = 0 }

func (p *Person) clone() *Person {
	c := *p
	c.speedHistory = append([]float64(nil), p.speedHistory...)
	return &c
}

func (p *Person) String() string {
	return fmt.Sprintf("Person{id=%d, source=%s, target=%s, speed=%.3f, location=%s}",
		p.id, p.source, p.target, p.speed, p.loc)
}
