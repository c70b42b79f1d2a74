// Package observer streams a running simulation to WebSocket clients: a grid
// snapshot on connect, then every batch of cell changes, statistics snapshots
// and life-cycle events. Clients may send control messages to play, pause,
// step or reset the simulation.
package observer

import (
	"github.com/streamsim/streamsim/sim"
)

// Message types.
const (
	TypeSnapshot  = "SNAPSHOT"
	TypeUpdate    = "UPDATE"
	TypeStats     = "STATS"
	TypeLifecycle = "LIFECYCLE"
	TypeControl   = "CONTROL"
	TypeAck       = "ACK"
	TypeError     = "ERROR"
)

// Control actions.
const (
	ActionPlay  = "play"
	ActionPause = "pause"
	ActionStep  = "step"
	ActionReset = "reset"
)

// SnapshotMsg carries the full grid as object type IDs, 0 for empty cells.
type SnapshotMsg struct {
	Type    string  `json:"type"`
	Phase   string  `json:"phase"`
	Rows    int     `json:"rows"`
	Columns int     `json:"columns"`
	Grid    [][]int `json:"grid"`
}

// CellEvent is the wire form of one sim.UpdateEvent.
type CellEvent struct {
	Kind     string `json:"kind"`
	Row      int    `json:"row"`
	Column   int    `json:"column"`
	New      string `json:"new,omitempty"`
	Old      string `json:"old,omitempty"`
	PersonID *int   `json:"person_id,omitempty"`
}

type UpdateMsg struct {
	Type   string      `json:"type"`
	Events []CellEvent `json:"events"`
}

type StatsMsg struct {
	Type  string         `json:"type"`
	Stats sim.Statistics `json:"stats"`
}

type LifecycleMsg struct {
	Type  string `json:"type"`
	Event string `json:"event"`
}

// ControlMsg is sent by clients.
type ControlMsg struct {
	Type   string `json:"type"`
	Action string `json:"action"`
}

// AckMsg confirms a control action. More is false once a step found nothing left to do.
type AckMsg struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	More   bool   `json:"more,omitempty"`
}

type ErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func toCellEvents(events []sim.UpdateEvent) []CellEvent {
	out := make([]CellEvent, 0, len(events))
	for _, e := range events {
		ce := CellEvent{Kind: e.Kind.String(), Row: e.Location.Row, Column: e.Location.Column}
		if e.New != nil {
			ce.New = e.New.Type().String()
		}
		if e.Old != nil {
			ce.Old = e.Old.Type().String()
		}
		if p, ok := e.New.(*sim.Person); ok {
			id := p.ID()
			ce.PersonID = &id
		} else if p, ok := e.Old.(*sim.Person); ok {
			id := p.ID()
			ce.PersonID = &id
		}
		out = append(out, ce)
	}
	return out
}

func toSnapshot(st *sim.State, phase sim.Phase) SnapshotMsg {
	grid := st.Grid()
	ids := make([][]int, len(grid))
	for r, row := range grid {
		ids[r] = make([]int, len(row))
		for c, t := range row {
			ids[r][c] = t.ID()
		}
	}
	return SnapshotMsg{Type: TypeSnapshot, Phase: phase.String(), Rows: st.Rows(), Columns: st.Columns(), Grid: ids}
}
