package observer

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/streamsim/streamsim/sim"
)

// sessionBuffer is the number of pending messages per client before new ones are dropped.
const sessionBuffer = 1024

// Hub fans simulation notifications out to connected sessions. Its listener
// methods run on the simulation goroutine and never block: a session that
// falls behind loses messages.
type Hub struct {
	mu       sync.Mutex
	sessions map[string]chan []byte

	nextID  atomic.Uint64
	dropped atomic.Int64
}

func NewHub() *Hub {
	return &Hub{sessions: make(map[string]chan []byte)}
}

func (h *Hub) join() (string, <-chan []byte) {
	id := fmt.Sprintf("O%d", h.nextID.Add(1))
	out := make(chan []byte, sessionBuffer)
	h.mu.Lock()
	h.sessions[id] = out
	h.mu.Unlock()
	return id, out
}

func (h *Hub) leave(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if out, ok := h.sessions[id]; ok {
		delete(h.sessions, id)
		close(out)
	}
}

// Sessions returns the number of connected sessions.
func (h *Hub) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Dropped returns how many messages were discarded for slow sessions.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

func (h *Hub) broadcast(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		logrus.Errorf("observer: encoding %T: %v", v, err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, out := range h.sessions {
		select {
		case out <- b:
		default:
			h.dropped.Add(1)
		}
	}
}

// Updates is a sim.UpdateListener.
func (h *Hub) Updates(events []sim.UpdateEvent) {
	h.broadcast(UpdateMsg{Type: TypeUpdate, Events: toCellEvents(events)})
}

// OnUpdate implements sim.StatisticsListener.
func (h *Hub) OnUpdate(stats sim.Statistics) {
	h.broadcast(StatsMsg{Type: TypeStats, Stats: stats})
}

func (h *Hub) lifecycle(event string) {
	h.broadcast(LifecycleMsg{Type: TypeLifecycle, Event: event})
}

func (h *Hub) OnStart()             { h.lifecycle("start") }
func (h *Hub) OnPause()             { h.lifecycle("pause") }
func (h *Hub) OnContinue()          { h.lifecycle("continue") }
func (h *Hub) OnReset()             { h.lifecycle("reset") }
func (h *Hub) OnEnd()               { h.lifecycle("end") }
func (h *Hub) OnTimeChange(float64) {}
