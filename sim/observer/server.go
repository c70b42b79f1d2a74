package observer

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/streamsim/streamsim/sim"
)

// Simulation is what the server observes and controls. *sim.Simulator implements it.
type Simulation interface {
	State() *sim.State
	Phase() sim.Phase
	Play() error
	Pause()
	Step() (bool, error)
	Reset()
}

// Options configures a Server.
type Options struct {
	// AllowRemote accepts connections from non-loopback addresses.
	AllowRemote bool
}

type Server struct {
	sim  Simulation
	hub  *Hub
	opts Options

	upgrader websocket.Upgrader
}

func NewServer(s Simulation, opts Options) *Server {
	return &Server{
		sim:  s,
		hub:  NewHub(),
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// Hub returns the fan-out hub; register it as a listener of the simulation.
func (s *Server) Hub() *Hub { return s.hub }

// Attach registers the hub for updates, statistics and life-cycle events of sm.
func (s *Server) Attach(sm *sim.Simulator) {
	sm.AddUpdateListener(s.hub.Updates)
	sm.AddStatisticsListener(s.hub)
	sm.AddLifecycleListener(s.hub)
}

// Handler serves GET /state (JSON snapshot) and /ws (WebSocket stream).
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/state", s.StateHandler())
	mux.HandleFunc("/ws", s.WSHandler())
	return mux
}

func (s *Server) allowed(r *http.Request) bool {
	return s.opts.AllowRemote || isLoopbackRemote(r.RemoteAddr)
}

func (s *Server) StateHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(toSnapshot(s.sim.State(), s.sim.Phase()))
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sid, out := s.hub.join()
		defer s.hub.leave(sid)
		logrus.Infof("observer %s connected from %s", sid, r.RemoteAddr)

		// Replies to control messages go through the same writer as broadcasts.
		replies := make(chan any, 16)
		respond := func(v any) {
			select {
			case replies <- v:
			default:
			}
		}

		snapshot, err := json.Marshal(toSnapshot(s.sim.State(), s.sim.Phase()))
		if err != nil {
			return
		}
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, snapshot); err != nil {
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				var b []byte
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case msg, ok := <-out:
					if !ok {
						writeErr <- nil
						return
					}
					b = msg
				case reply := <-replies:
					msg, err := json.Marshal(reply)
					if err != nil {
						continue
					}
					b = msg
				}
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					writeErr <- err
					return
				}
			}
		}()

		// Reader loop: control messages.
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			var ctl ControlMsg
			if err := json.Unmarshal(msg, &ctl); err != nil || ctl.Type != TypeControl {
				respond(ErrorMsg{Type: TypeError, Message: "expected CONTROL message"})
				continue
			}
			respond(s.control(ctl.Action))
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
		logrus.Infof("observer %s disconnected", sid)
	}
}

// control runs one client action and returns the reply.
func (s *Server) control(action string) any {
	var err error
	more := false
	switch action {
	case ActionPlay:
		err = s.sim.Play()
	case ActionPause:
		s.sim.Pause()
	case ActionStep:
		more, err = s.sim.Step()
	case ActionReset:
		s.sim.Reset()
	default:
		err = errors.New("unknown action " + action)
	}
	if err != nil {
		return ErrorMsg{Type: TypeError, Message: err.Error()}
	}
	return AckMsg{Type: TypeAck, Action: action, More: more}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
