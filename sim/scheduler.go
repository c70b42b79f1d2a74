package sim

import (
	"container/heap"
	"errors"
	"fmt"
	"math"
)

// ErrNegativeTime is returned when scheduling into the past.
var ErrNegativeTime = errors.New("relative time must be non-negative")

// Handler is the action run when an event fires.
type Handler func() error

// ExecutionError wraps a failure raised by an event handler.
type ExecutionError struct {
	Time float64
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("event at t=%g failed: %v", e.Time, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// scheduledEvent is one pending handler. seq is assigned at insertion and breaks
// timestamp ties in FIFO order.
type scheduledEvent struct {
	timestamp float64
	seq       uint64
	handler   Handler
}

// eventHeap implements heap.Interface ordered by (timestamp, seq).
type eventHeap []scheduledEvent

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].timestamp != h[j].timestamp {
		return h[i].timestamp < h[j].timestamp
	}
	return h[i].seq < h[j].seq
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) { *h = append(*h, x.(scheduledEvent)) }

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = scheduledEvent{}
	*h = old[:n-1]
	return item
}

// Scheduler is a virtual-time priority queue of handlers.
// It is driven by a single goroutine and is not safe for concurrent use.
type Scheduler struct {
	events  eventHeap
	now     float64
	nextSeq uint64
}

// NewScheduler returns an empty scheduler at time 0.
func NewScheduler() *Scheduler {
	s := &Scheduler{events: make(eventHeap, 0)}
	heap.Init(&s.events)
	return s
}

// ScheduleIn enqueues h to run relative time units after the current time.
func (s *Scheduler) ScheduleIn(h Handler, relative float64) error {
	if h == nil {
		return errors.New("handler must be non-nil")
	}
	if !(relative >= 0) {
		return fmt.Errorf("%w: got %g", ErrNegativeTime, relative)
	}
	absolute := s.now + relative
	if math.IsInf(absolute, 1) || absolute >= math.MaxFloat64 {
		s.renormalise()
		absolute = relative
	}
	heap.Push(&s.events, scheduledEvent{timestamp: absolute, seq: s.nextSeq, handler: h})
	s.nextSeq++
	return nil
}

// renormalise shifts the clock and every pending timestamp back by the current time.
// A uniform shift keeps the heap order intact.
func (s *Scheduler) renormalise() {
	for i := range s.events {
		s.events[i].timestamp -= s.now
	}
	s.now = 0
}

// ProcessNext pops the earliest event, advances the clock to it and runs its handler.
// It returns false when the queue is empty. A handler failure is returned as *ExecutionError.
func (s *Scheduler) ProcessNext() (bool, error) {
	if s.events.Len() == 0 {
		return false, nil
	}
	ev := heap.Pop(&s.events).(scheduledEvent)
	s.now = ev.timestamp
	if err := ev.handler(); err != nil {
		return true, &ExecutionError{Time: ev.timestamp, Err: err}
	}
	return true, nil
}

// PeekNextTimestamp returns the timestamp of the earliest pending event.
func (s *Scheduler) PeekNextTimestamp() (float64, bool) {
	if s.events.Len() == 0 {
		return 0, false
	}
	return s.events[0].timestamp, true
}

// CurrentTime returns the virtual clock.
func (s *Scheduler) CurrentTime() float64 { return s.now }

// Len returns the number of pending events.
func (s *Scheduler) Len() int { return s.events.Len() }

// Clear drops all pending events and resets the clock to 0.
func (s *Scheduler) Clear() {
	s.events = s.events[:0]
	s.now = 0
}

// retryDelay returns the delay until the next pending event (0 if none is pending)
// plus a random fraction of spread. Used by strategies that back off and try again later.
func (s *Scheduler) retryDelay(u, spread float64) float64 {
	base := s.now
	if next, ok := s.PeekNextTimestamp(); ok && next > s.now {
		base = next
	}
	return (base - s.now) + u*spread
}
