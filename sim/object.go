package sim

import "fmt"

// ObjectType tags the closed set of things that can occupy a cell.
// Numeric values match the type IDs used in world files.
type ObjectType int

const (
	TypePerson       ObjectType = 1
	TypeObstacle     ObjectType = 2
	TypeSource       ObjectType = 3
	TypeTarget       ObjectType = 4
	TypeLightBarrier ObjectType = 5
)

// objectTypeNames maps type to display/config name.
var objectTypeNames = map[ObjectType]string{
	TypePerson:       "person",
	TypeObstacle:     "obstacle",
	TypeSource:       "source",
	TypeTarget:       "target",
	TypeLightBarrier: "light-barrier",
}

// AllObjectTypes lists every object type in ID order.
var AllObjectTypes = []ObjectType{TypePerson, TypeObstacle, TypeSource, TypeTarget, TypeLightBarrier}

func (t ObjectType) String() string {
	if name, ok := objectTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ObjectType(%d)", int(t))
}

// ID returns the numeric type ID.
func (t ObjectType) ID() int { return int(t) }

// ParseObjectType accepts either a type name ("source") or nothing, and falls back to
// the numeric ID when name is empty.
func ParseObjectType(name string, id int) (ObjectType, error) {
	if name != "" {
		for t, n := range objectTypeNames {
			if n == name {
				return t, nil
			}
		}
		return 0, fmt.Errorf("unknown object type %q", name)
	}
	t := ObjectType(id)
	if _, ok := objectTypeNames[t]; !ok {
		return 0, fmt.Errorf("unknown object type id %d", id)
	}
	return t, nil
}

// SimObject is implemented by exactly the five occupant kinds of this package.
type SimObject interface {
	Type() ObjectType
	Location() Location
	// Walkable objects never block movement and may carry one person on top of them.
	Walkable() bool

	sealed()
}

// Obstacle blocks its cell permanently.
type Obstacle struct {
	loc Location
}

// NewObstacle creates an obstacle at loc.
func NewObstacle(loc Location) *Obstacle { return &Obstacle{loc: loc} }

func (o *Obstacle) Type() ObjectType   { return TypeObstacle }
func (o *Obstacle) Location() Location { return o.loc }
func (o *Obstacle) Walkable() bool     { return false }
func (o *Obstacle) sealed()            {}

// LightBarrier counts people walking onto it; used for flow statistics.
type LightBarrier struct {
	loc Location
}

// NewLightBarrier creates a light barrier at loc.
func NewLightBarrier(loc Location) *LightBarrier { return &LightBarrier{loc: loc} }

func (b *LightBarrier) Type() ObjectType   { return TypeLightBarrier }
func (b *LightBarrier) Location() Location { return b.loc }
func (b *LightBarrier) Walkable() bool     { return true }
func (b *LightBarrier) sealed()            {}

// SourceConfig holds the strategies a source spawns people with.
type SourceConfig struct {
	Spawn    SpawnStrategy
	Movement MovementStrategy
	// MaxSpawns <= 0 means unlimited.
	MaxSpawns int
	Speed     SpeedGenerator
	Patience  PatienceGenerator
}

// SpawnsUnlimited reports whether the source never stops spawning.
func (c SourceConfig) SpawnsUnlimited() bool { return c.MaxSpawns <= 0 }

// Source spawns people into its neighbourhood.
type Source struct {
	loc     Location
	config  SourceConfig
	spawned int
}

// NewSource creates a source at loc.
func NewSource(loc Location, config SourceConfig) *Source {
	return &Source{loc: loc, config: config}
}

func (s *Source) Type() ObjectType   { return TypeSource }
func (s *Source) Location() Location { return s.loc }
func (s *Source) Walkable() bool     { return true }
func (s *Source) sealed()            {}

// Config returns the source's strategy configuration.
func (s *Source) Config() SourceConfig { return s.config }

// SpawnCount returns how many people this source has spawned since the last reset.
func (s *Source) SpawnCount() int { return s.spawned }

func (s *Source) increaseSpawnCount() { s.spawned++ }

// budgetLeft reports whether another spawn may be scheduled.
func (s *Source) budgetLeft() bool {
	return s.config.SpawnsUnlimited() || s.spawned < s.config.MaxSpawns
}

// TargetConfig holds the strategy deciding what happens to people reaching a target.
type TargetConfig struct {
	Consume ConsumeStrategy
}

// Target is the destination of people.
type Target struct {
	loc    Location
	config TargetConfig
}

// NewTarget creates a target at loc.
func NewTarget(loc Location, config TargetConfig) *Target {
	return &Target{loc: loc, config: config}
}

func (t *Target) Type() ObjectType   { return TypeTarget }
func (t *Target) Location() Location { return t.loc }
func (t *Target) Walkable() bool     { return true }
func (t *Target) sealed()            {}

// Config returns the target's strategy configuration.
func (t *Target) Config() TargetConfig { return t.config }
