package sim

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrOutOfBounds is returned for locations outside the grid.
	ErrOutOfBounds = errors.New("location out of bounds")
	// ErrCellOccupied is returned when placing something on a cell that cannot take it.
	ErrCellOccupied = errors.New("cell already occupied")
	// ErrNoOccupant is returned when moving from a cell without a movable person.
	ErrNoOccupant = errors.New("no movable occupant")
)

// UpdateKind classifies a single cell change.
type UpdateKind int

const (
	UpdateAdded UpdateKind = iota + 1
	UpdateRemoved
	UpdateChanged
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateAdded:
		return "added"
	case UpdateRemoved:
		return "removed"
	case UpdateChanged:
		return "changed"
	}
	return fmt.Sprintf("UpdateKind(%d)", int(k))
}

// UpdateEvent describes one cell change. For CHANGED events on walkable cells New/Old
// hold the rider and the walkable object, in whichever order the change produced them.
type UpdateEvent struct {
	Kind     UpdateKind
	Location Location
	New      SimObject
	Old      SimObject
}

// UpdateListener receives the batch of changes produced by one mutating call.
// It runs synchronously on the mutating goroutine after the state lock is released.
type UpdateListener func(events []UpdateEvent)

// cell holds at most one direct occupant. A walkable occupant may carry one rider.
type cell struct {
	occupant SimObject
	rider    *Person
}

func (c *cell) canBeOccupied() bool {
	return c.occupant == nil || (c.occupant.Walkable() && c.rider == nil)
}

// upper returns the rider if present, else the direct occupant (possibly nil).
func (c *cell) upper() SimObject {
	if c.rider != nil {
		return c.rider
	}
	return c.occupant
}

type listenerEntry struct {
	id int
	fn UpdateListener
}

// State is the spatial occupancy of the simulated world.
// All mutations take the writer lock and keep the type index in sync with the grid;
// readers from other goroutines go through the read lock.
type State struct {
	mu      sync.RWMutex
	rows    int
	columns int
	cells   []cell
	index   map[ObjectType]map[Location]struct{}

	barrierTriggers int
	nextPersonID    int

	listenerMu     sync.Mutex
	listeners      []listenerEntry
	nextListenerID int
}

// NewState creates an empty rows x columns world.
func NewState(rows, columns int) *State {
	return &State{
		rows:    max(rows, 0),
		columns: max(columns, 0),
		cells:   make([]cell, max(rows, 0)*max(columns, 0)),
		index:   make(map[ObjectType]map[Location]struct{}),
	}
}

func (s *State) Rows() int    { return s.rows }
func (s *State) Columns() int { return s.columns }

// InBounds reports whether loc lies on the grid.
func (s *State) InBounds(loc Location) bool {
	return loc.Row >= 0 && loc.Row < s.rows && loc.Column >= 0 && loc.Column < s.columns
}

func (s *State) cellAt(loc Location) *cell {
	return &s.cells[loc.Row*s.columns+loc.Column]
}

func (s *State) checkBounds(loc Location) error {
	if !s.InBounds(loc) {
		return fmt.Errorf("%w: %s not in %dx%d grid", ErrOutOfBounds, loc, s.rows, s.columns)
	}
	return nil
}

func (s *State) indexAdd(t ObjectType, loc Location) {
	set, ok := s.index[t]
	if !ok {
		set = make(map[Location]struct{})
		s.index[t] = set
	}
	set[loc] = struct{}{}
}

func (s *State) indexRemove(t ObjectType, loc Location) {
	delete(s.index[t], loc)
}

// CanBeOccupied reports whether a person could be placed on loc: the cell is empty,
// or holds a walkable object nobody is standing on.
func (s *State) CanBeOccupied(loc Location) bool {
	if !s.InBounds(loc) {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cellAt(loc).canBeOccupied()
}

// SetCellOccupant places obj on loc. On a free walkable object obj becomes its rider,
// which only people can be.
func (s *State) SetCellOccupant(obj SimObject, loc Location) error {
	if obj == nil {
		return errors.New("occupant must be non-nil, use RemoveOccupant to clear a cell")
	}
	if err := s.checkBounds(loc); err != nil {
		return err
	}

	var event UpdateEvent
	s.mu.Lock()
	c := s.cellAt(loc)
	person, isPerson := obj.(*Person)
	switch {
	case c.occupant != nil && c.occupant.Walkable():
		if c.rider != nil {
			s.mu.Unlock()
			return fmt.Errorf("%w: %s at %s already carries a person", ErrCellOccupied, c.occupant.Type(), loc)
		}
		if !isPerson {
			s.mu.Unlock()
			return fmt.Errorf("%w: cannot put %s on top of %s at %s", ErrCellOccupied, obj.Type(), c.occupant.Type(), loc)
		}
		person.loc = loc
		c.rider = person
		s.indexAdd(TypePerson, loc)
		event = UpdateEvent{Kind: UpdateChanged, Location: loc, New: person, Old: c.occupant}
	case c.occupant != nil:
		s.mu.Unlock()
		return fmt.Errorf("%w: %s at %s", ErrCellOccupied, c.occupant.Type(), loc)
	default:
		if isPerson {
			person.loc = loc
		} else if obj.Location() != loc {
			s.mu.Unlock()
			return fmt.Errorf("%s located at %s cannot be placed at %s", obj.Type(), obj.Location(), loc)
		}
		c.occupant = obj
		s.indexAdd(obj.Type(), loc)
		event = UpdateEvent{Kind: UpdateAdded, Location: loc, New: obj}
	}
	s.mu.Unlock()

	s.notify([]UpdateEvent{event})
	return nil
}

// MoveOccupant moves the person at from to to. It returns false without touching
// anything when from == to or to cannot be occupied.
func (s *State) MoveOccupant(from, to Location) (bool, error) {
	if from == to {
		return false, nil
	}
	if err := s.checkBounds(from); err != nil {
		return false, err
	}
	if err := s.checkBounds(to); err != nil {
		return false, err
	}

	events := make([]UpdateEvent, 0, 2)
	s.mu.Lock()
	dst := s.cellAt(to)
	if !dst.canBeOccupied() {
		s.mu.Unlock()
		return false, nil
	}

	src := s.cellAt(from)
	var mover *Person
	switch {
	case src.occupant == nil:
		s.mu.Unlock()
		return false, fmt.Errorf("%w: %s is empty", ErrNoOccupant, from)
	case src.occupant.Walkable():
		if src.rider == nil {
			s.mu.Unlock()
			return false, fmt.Errorf("%w: nobody on %s at %s", ErrNoOccupant, src.occupant.Type(), from)
		}
		mover = src.rider
		src.rider = nil
		events = append(events, UpdateEvent{Kind: UpdateChanged, Location: from, New: src.occupant, Old: mover})
	default:
		p, ok := src.occupant.(*Person)
		if !ok {
			s.mu.Unlock()
			return false, fmt.Errorf("%w: %s at %s cannot move", ErrNoOccupant, src.occupant.Type(), from)
		}
		mover = p
		src.occupant = nil
		events = append(events, UpdateEvent{Kind: UpdateRemoved, Location: from, Old: mover})
	}

	mover.loc = to
	if dst.occupant != nil {
		dst.rider = mover
		if dst.occupant.Type() == TypeLightBarrier {
			s.barrierTriggers++
		}
		events = append(events, UpdateEvent{Kind: UpdateChanged, Location: to, New: mover, Old: dst.occupant})
	} else {
		dst.occupant = mover
		events = append(events, UpdateEvent{Kind: UpdateAdded, Location: to, New: mover})
	}

	s.indexRemove(TypePerson, from)
	s.indexAdd(TypePerson, to)
	s.mu.Unlock()

	s.notify(events)
	return true, nil
}

// RemoveOccupant clears loc. On a walkable object carrying a person only the person
// is removed. Returns false if the cell was empty.
func (s *State) RemoveOccupant(loc Location) bool {
	if !s.InBounds(loc) {
		return false
	}

	var event UpdateEvent
	s.mu.Lock()
	c := s.cellAt(loc)
	switch {
	case c.occupant == nil:
		s.mu.Unlock()
		return false
	case c.rider != nil:
		rider := c.rider
		c.rider = nil
		s.indexRemove(TypePerson, loc)
		event = UpdateEvent{Kind: UpdateChanged, Location: loc, New: c.occupant, Old: rider}
	default:
		old := c.occupant
		c.occupant = nil
		s.indexRemove(old.Type(), loc)
		event = UpdateEvent{Kind: UpdateRemoved, Location: loc, Old: old}
	}
	s.mu.Unlock()

	s.notify([]UpdateEvent{event})
	return true
}

// CellOccupant returns the direct occupant of loc, or nil.
func (s *State) CellOccupant(loc Location) SimObject {
	if !s.InBounds(loc) {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cellAt(loc).occupant
}

// UpperCellOccupant returns the person riding on loc if any, else the direct occupant, or nil.
func (s *State) UpperCellOccupant(loc Location) SimObject {
	if !s.InBounds(loc) {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cellAt(loc).upper()
}

// Rider returns the person standing on a walkable object at loc, or nil.
func (s *State) Rider(loc Location) *Person {
	if !s.InBounds(loc) {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cellAt(loc).rider
}

// PersonAt returns the person standing on loc, directly or on a walkable object.
func (s *State) PersonAt(loc Location) *Person {
	p, _ := s.UpperCellOccupant(loc).(*Person)
	return p
}

// ObjectTypeCount returns the number of locations holding an object of type t.
func (s *State) ObjectTypeCount(t ObjectType) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index[t])
}

// LocationsOf returns the locations holding an object of type t in row-major order.
func (s *State) LocationsOf(t ObjectType) []Location {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.locationsLocked(t)
}

func (s *State) locationsLocked(t ObjectType) []Location {
	locs := make([]Location, 0, len(s.index[t]))
	for loc := range s.index[t] {
		locs = append(locs, loc)
	}
	sortLocations(locs)
	return locs
}

// ObjectsOf returns the objects of type t in row-major order.
func (s *State) ObjectsOf(t ObjectType) []SimObject {
	s.mu.RLock()
	defer s.mu.RUnlock()
	locs := s.locationsLocked(t)
	objs := make([]SimObject, 0, len(locs))
	for _, loc := range locs {
		c := s.cellAt(loc)
		if t == TypePerson {
			objs = append(objs, c.upper())
		} else {
			objs = append(objs, c.occupant)
		}
	}
	return objs
}

// People returns every person currently in the world in row-major order.
func (s *State) People() []*Person {
	s.mu.RLock()
	defer s.mu.RUnlock()
	locs := s.locationsLocked(TypePerson)
	people := make([]*Person, 0, len(locs))
	for _, loc := range locs {
		if p, ok := s.cellAt(loc).upper().(*Person); ok {
			people = append(people, p)
		}
	}
	return people
}

// ReadIndex runs fn with a copy of the type index taken under the read lock.
func (s *State) ReadIndex(fn func(index map[ObjectType][]Location)) {
	s.mu.RLock()
	snapshot := make(map[ObjectType][]Location, len(s.index))
	for t := range s.index {
		snapshot[t] = s.locationsLocked(t)
	}
	s.mu.RUnlock()
	fn(snapshot)
}

// Grid returns the type of the upper occupant of every cell, 0 for empty cells.
func (s *State) Grid() [][]ObjectType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	grid := make([][]ObjectType, s.rows)
	for row := range grid {
		grid[row] = make([]ObjectType, s.columns)
		for column := range grid[row] {
			if obj := s.cellAt(Location{Row: row, Column: column}).upper(); obj != nil {
				grid[row][column] = obj.Type()
			}
		}
	}
	return grid
}

// WalkableCellCount counts cells people can stand on: empty cells and walkable objects.
func (s *State) WalkableCellCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for i := range s.cells {
		if occ := s.cells[i].occupant; occ == nil || occ.Walkable() {
			n++
		}
	}
	return n
}

// LightBarrierTriggers returns how often people stepped onto a light barrier since the last reset of the counter.
func (s *State) LightBarrierTriggers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.barrierTriggers
}

// ResetLightBarrierTriggers zeroes the trigger counter and returns its previous value.
func (s *State) ResetLightBarrierTriggers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.barrierTriggers
	s.barrierTriggers = 0
	return n
}

// NextPersonID hands out person IDs unique within this state and its clones' lineage.
func (s *State) NextPersonID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextPersonID
	s.nextPersonID++
	return id
}

// Clone deep-copies the grid, people, source counters and index. Listeners are not copied.
func (s *State) Clone() *State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := &State{
		rows:            s.rows,
		columns:         s.columns,
		cells:           make([]cell, len(s.cells)),
		index:           make(map[ObjectType]map[Location]struct{}, len(s.index)),
		barrierTriggers: s.barrierTriggers,
		nextPersonID:    s.nextPersonID,
	}
	for i, src := range s.cells {
		dst := &c.cells[i]
		switch occ := src.occupant.(type) {
		case *Person:
			dst.occupant = occ.clone()
		case *Source:
			cp := *occ
			dst.occupant = &cp
		default:
			// obstacles, targets and light barriers carry no mutable state
			dst.occupant = occ
		}
		if src.rider != nil {
			dst.rider = src.rider.clone()
		}
	}
	for t, set := range s.index {
		cp := make(map[Location]struct{}, len(set))
		for loc := range set {
			cp[loc] = struct{}{}
		}
		c.index[t] = cp
	}
	return c
}

// Equal compares two states cell for cell: object types, locations and person identities.
func (s *State) Equal(o *State) bool {
	if s == o {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	o.mu.RLock()
	defer o.mu.RUnlock()

	if s.rows != o.rows || s.columns != o.columns {
		return false
	}
	for i := range s.cells {
		a, b := s.cells[i], o.cells[i]
		if !sameObject(a.occupant, b.occupant) {
			return false
		}
		if (a.rider == nil) != (b.rider == nil) {
			return false
		}
		if a.rider != nil && !sameObject(a.rider, b.rider) {
			return false
		}
	}
	return true
}

func sameObject(a, b SimObject) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Type() != b.Type() || a.Location() != b.Location() {
		return false
	}
	if pa, ok := a.(*Person); ok {
		return pa.id == b.(*Person).id
	}
	return true
}

// AddUpdateListener registers l and returns a handle for RemoveUpdateListener.
func (s *State) AddUpdateListener(l UpdateListener) int {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	id := s.nextListenerID
	s.nextListenerID++
	s.listeners = append(s.listeners, listenerEntry{id: id, fn: l})
	return id
}

// RemoveUpdateListener unregisters the listener with the given handle.
func (s *State) RemoveUpdateListener(id int) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	for i, e := range s.listeners {
		if e.id == id {
			s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
			return
		}
	}
}

func (s *State) notify(events []UpdateEvent) {
	s.listenerMu.Lock()
	listeners := append([]listenerEntry(nil), s.listeners...)
	s.listenerMu.Unlock()
	for _, l := range listeners {
		l.fn(events)
	}
}

// sortLocations orders locations row-major.
func sortLocations(locs []Location) {
	sort.Slice(locs, func(i, j int) bool {
		if locs[i].Row != locs[j].Row {
			return locs[i].Row < locs[j].Row
		}
		return locs[i].Column < locs[j].Column
	})
}
