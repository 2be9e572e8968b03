package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"sugarscape.ai/internal/observerproto"
	"sugarscape.ai/internal/sim/world"
)

// Server streams tick frames to read-only observers. It implements world.TickObserver;
// ObserveTick runs on the world goroutine and never blocks.
type Server struct {
	cfg world.WorldConfig
	log *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	last atomic.Pointer[world.TickFrame]

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	out       chan []byte
	every     atomic.Int64
	decisions atomic.Bool
}

func NewServer(cfg world.WorldConfig, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		cfg: cfg,
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		sessions: map[string]*session{},
	}
}

func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) ObserveTick(f world.TickFrame) {
	s.last.Store(&f)

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sessions) == 0 {
		return
	}
	var plain, full []byte
	for _, sess := range s.sessions {
		every := uint64(sess.every.Load())
		if every > 1 && f.Tick%every != 0 && f.Over == "" {
			continue
		}
		var b []byte
		if sess.decisions.Load() {
			if full == nil {
				full, _ = json.Marshal(tickMsg(f, true))
			}
			b = full
		} else {
			if plain == nil {
				plain, _ = json.Marshal(tickMsg(f, false))
			}
			b = plain
		}
		sendLatest(sess.out, b)
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		cfg := s.cfg
		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			EpisodeID:       cfg.ID,
			Params: observerproto.EpisodeParams{
				TickRateHz:          cfg.TickRateHz,
				Arena:               [2]float64{cfg.Arena.Width, cfg.Arena.Height},
				Seed:                cfg.Seed,
				Agents:              cfg.NumAgents,
				FalseBroadcasters:   cfg.FalseBroadcasters,
				DetectionRadius:     cfg.Agent.DetectionRadius,
				CommunicationRadius: cfg.Agent.CommunicationRadius,
				Policy:              cfg.PolicyKind,
				MaxTicks:            cfg.MaxTicks,
			},
		}
		if f := s.last.Load(); f != nil {
			msg := tickMsg(*f, false)
			resp.Tick = f.Tick + 1
			resp.Patches = msg.Patches
			resp.Agents = msg.Agents
		}

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, ok := parseSubscribe(msg)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		sid := fmt.Sprintf("O%d", s.nextID.Add(1))
		sess := &session{out: make(chan []byte, 8)}
		sess.apply(sub)
		s.mu.Lock()
		s.sessions[sid] = sess
		s.mu.Unlock()
		s.log.Printf("observer %s connected from %s", sid, r.RemoteAddr)
		defer func() {
			s.mu.Lock()
			delete(s.sessions, sid)
			s.mu.Unlock()
			s.log.Printf("observer %s disconnected", sid)
		}()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-sess.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if sub, ok := parseSubscribe(msg); ok {
				sess.apply(sub)
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func parseSubscribe(msg []byte) (observerproto.SubscribeMsg, bool) {
	var sub observerproto.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, false
	}
	if sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
		return sub, false
	}
	if sub.EveryTicks < 1 {
		sub.EveryTicks = 1
	}
	if sub.EveryTicks > 3600 {
		sub.EveryTicks = 3600
	}
	return sub, true
}

func (s *session) apply(sub observerproto.SubscribeMsg) {
	s.every.Store(int64(sub.EveryTicks))
	s.decisions.Store(sub.Decisions)
}

func tickMsg(f world.TickFrame, decisions bool) observerproto.TickMsg {
	msg := observerproto.TickMsg{
		Type:            observerproto.TypeTick,
		ProtocolVersion: observerproto.Version,
		Tick:            f.Tick,
		Digest:          f.Digest,
		Deaths:          f.Deaths,
		Over:            f.Over,
		Counters: observerproto.Counters{
			TruePositives:  f.Counters.TruePositives,
			FalsePositives: f.Counters.FalsePositives,
			Explores:       f.Counters.Explores,
			Exploits:       f.Counters.Exploits,
			Consumed:       f.Counters.Consumed,
			Dead:           f.Counters.Dead,
		},
	}
	msg.Agents = make([]observerproto.AgentState, 0, len(f.Agents))
	for _, a := range f.Agents {
		st := observerproto.AgentState{
			ID:               a.ID,
			Pos:              [2]float64{a.X, a.Y},
			Heading:          a.Heading,
			Health:           a.Health,
			FalseBroadcaster: a.FalseBroadcaster,
			Phase:            a.Phase,
		}
		if a.Target != nil {
			st.Target = &[2]int{a.Target.X, a.Target.Y}
		}
		if a.FalseClaim != nil {
			st.FalseClaim = &[2]int{a.FalseClaim.X, a.FalseClaim.Y}
		}
		msg.Agents = append(msg.Agents, st)
	}
	msg.Patches = make([]observerproto.PatchState, 0, len(f.Patches))
	for _, p := range f.Patches {
		msg.Patches = append(msg.Patches, observerproto.PatchState{
			ID:       p.ID,
			Pos:      [2]int{p.Loc.X, p.Loc.Y},
			Radius:   p.Radius,
			Capacity: p.Capacity,
			Consumed: p.Consumed,
		})
	}
	if decisions {
		for _, d := range f.Decisions {
			msg.Decisions = append(msg.Decisions, observerproto.DecisionState{
				Agent:         d.Agent,
				Kind:          d.Kind.String(),
				Target:        [2]int{d.Loc.X, d.Loc.Y},
				TruePositive:  d.TruePositive,
				FalsePositive: d.FalsePositive,
			})
		}
	}
	return msg
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
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
