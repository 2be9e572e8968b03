package observer

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"sugarscape.ai/internal/observerproto"
	"sugarscape.ai/internal/sim/agent"
	"sugarscape.ai/internal/sim/geom"
	"sugarscape.ai/internal/sim/policy"
	"sugarscape.ai/internal/sim/world"
)

func testFrame(tick uint64) world.TickFrame {
	target := geom.Loc{X: 145, Y: 145}
	return world.TickFrame{
		Tick:   tick,
		Digest: "abc",
		Agents: []world.AgentFrame{
			{ID: 0, X: 10, Y: 20, Health: 90, Phase: "traveling", Target: &target},
			{ID: 1, X: 30, Y: 40, Health: 80, Phase: "exploring", FalseBroadcaster: true},
		},
		Patches:   []world.ResourceInfo{{ID: 1, Loc: target, Radius: 20, Capacity: 67, Consumed: 3}},
		Decisions: []agent.DecisionRecord{{Tick: tick, Agent: 0, Kind: policy.KindTarget, Loc: target, TruePositive: true}},
		Counters:  world.Counters{Exploits: 1, TruePositives: 1},
	}
}

func TestBootstrap_LoopbackOnly(t *testing.T) {
	s := NewServer(world.WorldConfig{ID: "ep", TickRateHz: 60}, nil)

	req := httptest.NewRequest(http.MethodGet, "/observer/bootstrap", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	rec := httptest.NewRecorder()
	s.BootstrapHandler()(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	s.ObserveTick(testFrame(41))
	req = httptest.NewRequest(http.MethodGet, "/observer/bootstrap", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	rec = httptest.NewRecorder()
	s.BootstrapHandler()(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp observerproto.BootstrapResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "ep", resp.EpisodeID)
	require.EqualValues(t, 42, resp.Tick)
	require.Len(t, resp.Agents, 2)
	require.Len(t, resp.Patches, 1)
	require.NotNil(t, resp.Agents[0].Target)
	require.Equal(t, [2]int{145, 145}, *resp.Agents[0].Target)
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/observer/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func waitSessions(t *testing.T, s *Server, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return s.Sessions() == n }, 2*time.Second, 5*time.Millisecond,
		"sessions=%d want %d", s.Sessions(), n)
}

func TestWS_StreamsTicks(t *testing.T) {
	s := NewServer(world.WorldConfig{ID: "ep"}, nil)
	mux := http.NewServeMux()
	mux.HandleFunc("/observer/ws", s.WSHandler())
	srv := httptest.NewServer(mux)
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()
	sub := observerproto.SubscribeMsg{Type: observerproto.TypeSubscribe, ProtocolVersion: observerproto.Version, EveryTicks: 2, Decisions: true}
	require.NoError(t, conn.WriteJSON(sub))
	waitSessions(t, s, 1)

	s.ObserveTick(testFrame(3)) // skipped: not a multiple of 2
	s.ObserveTick(testFrame(4))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg observerproto.TickMsg
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, observerproto.TypeTick, msg.Type)
	require.EqualValues(t, 4, msg.Tick)
	require.Len(t, msg.Decisions, 1)
	require.Equal(t, "target", msg.Decisions[0].Kind)
	require.True(t, msg.Decisions[0].TruePositive)
	require.Len(t, msg.Agents, 2)
	require.True(t, msg.Agents[1].FalseBroadcaster)
	require.Len(t, msg.Patches, 1)
	require.Equal(t, 3, msg.Patches[0].Consumed)

	_ = conn.Close()
	waitSessions(t, s, 0)
}

func TestWS_RejectsBadSubscribe(t *testing.T) {
	s := NewServer(world.WorldConfig{ID: "ep"}, nil)
	mux := http.NewServeMux()
	mux.HandleFunc("/observer/ws", s.WSHandler())
	srv := httptest.NewServer(mux)
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "HELLO"}))
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "expected policy violation close, got %v", err)
	require.Zero(t, s.Sessions(), "session registered for a bad subscribe")
}

func TestSendLatest_DropsOldest(t *testing.T) {
	ch := make(chan []byte, 1)
	sendLatest(ch, []byte("a"))
	sendLatest(ch, []byte("b"))
	require.Equal(t, "b", string(<-ch))
}
