package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"robot-link/internal/commands"
	"robot-link/internal/control"
	"robot-link/internal/eventBus"
	"robot-link/internal/mesh"
	"robot-link/internal/message"
	"robot-link/internal/metrics"
	"robot-link/internal/node"
	"robot-link/internal/peer"

	"github.com/gorilla/websocket"
)

var (
	controllerAddr = peer.MustParseAddress("34:85:18:A9:CF:E4")
	robotAddr      = peer.MustParseAddress("EC:DA:3B:62:48:0C")
)

// nopTransport accepts everything and never delivers.
type nopTransport struct{ frames chan mesh.Frame }

func (t *nopTransport) Init() error                         { return nil }
func (t *nopTransport) AddPeer(peer.Peer) error             { return nil }
func (t *nopTransport) Send(mesh.Destination, []byte) error { return nil }
func (t *nopTransport) Frames() <-chan mesh.Frame           { return t.frames }
func (t *nopTransport) Close() error                        { close(t.frames); return nil }

func newController(t *testing.T) (*node.Node, *control.Snapshot) {
	t.Helper()
	snapshot := control.NewSnapshot(message.Control{X1: 1, Y1: 2, X2: 3, Y2: 4}, true)
	n := node.New(node.Config{
		Role:    node.RoleController,
		Address: controllerAddr,
		Peers:   []peer.Peer{peer.New(robotAddr)},
	}, &nopTransport{frames: make(chan mesh.Frame)}, node.WithControlSource(snapshot))
	if err := n.Setup(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { n.Close() })
	return n, snapshot
}

func TestControlEndpoints(t *testing.T) {
	n, snapshot := newController(t)
	srv := httptest.NewServer(New("", Deps{Bus: eventBus.NewEventBus(), Node: n, Snapshot: snapshot}).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/nodeAPI/control", "application/json", strings.NewReader(`{"x1":0.5,"y1":0,"x2":-0.5,"y2":1}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("control status %d", resp.StatusCode)
	}
	if got := snapshot.Load(); got != (message.Control{X1: 0.5, X2: -0.5, Y2: 1}) {
		t.Errorf("snapshot = %v", got)
	}

	resp, err = http.Post(srv.URL+"/nodeAPI/deactivate", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if snapshot.Active() {
		t.Error("still active after deactivate")
	}

	resp, err = http.Post(srv.URL+"/nodeAPI/activate", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if !snapshot.Active() {
		t.Error("inactive after activate")
	}
}

func TestEndpointErrors(t *testing.T) {
	n, snapshot := newController(t)
	h := New("", Deps{Bus: eventBus.NewEventBus(), Node: n, Snapshot: snapshot}).Handler()

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"control needs POST", http.MethodGet, "/nodeAPI/control", "", http.StatusMethodNotAllowed},
		{"control bad body", http.MethodPost, "/nodeAPI/control", "{", http.StatusBadRequest},
		{"status needs GET", http.MethodPost, "/nodeAPI/status", "", http.StatusMethodNotAllowed},
		{"flags only on robots", http.MethodPost, "/nodeAPI/flags", `{"flag":"lost","set":true}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body)))
			if rec.Code != tt.want {
				t.Errorf("%s %s = %d, want %d", tt.method, tt.path, rec.Code, tt.want)
			}
		})
	}
}

func TestControlRejectedBetweenRounds(t *testing.T) {
	n, snapshot := newController(t)
	snapshot.Deactivate()
	h := New("", Deps{Bus: eventBus.NewEventBus(), Node: n, Snapshot: snapshot}).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/nodeAPI/control", strings.NewReader(`{"x1":1}`)))
	if rec.Code != http.StatusConflict {
		t.Errorf("control while inactive = %d, want %d", rec.Code, http.StatusConflict)
	}
	if got := snapshot.Stored(); got != (message.Control{}) {
		t.Errorf("stored = %v, want zero", got)
	}
}

func TestStatusAndPeers(t *testing.T) {
	n, snapshot := newController(t)
	data, _ := message.Status{RobotID: 1}.MarshalBinary()
	n.HandleFrame(mesh.Frame{From: robotAddr, Data: data})

	coll := metrics.NewCollector()
	h := New("", Deps{Bus: eventBus.NewEventBus(), Node: n, Snapshot: snapshot, Collector: coll}).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nodeAPI/status", nil))
	var status commands.StatusResponse
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	if status.Role != node.RoleController || status.State != "initialized" || status.Active == nil || !*status.Active {
		t.Errorf("status = %+v", status)
	}
	if len(status.Statuses) != 1 || status.Statuses[0].From != robotAddr || status.Statuses[0].Status.RobotID != 1 {
		t.Errorf("statuses = %+v", status.Statuses)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nodeAPI/peers", nil))
	var peers []peer.Peer
	if err := json.NewDecoder(rec.Body).Decode(&peers); err != nil {
		t.Fatal(err)
	}
	if len(peers) != 1 || peers[0].Address != robotAddr {
		t.Errorf("peers = %+v", peers)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nodeAPI/metrics", nil))
	var m commands.MetricsResponse
	if err := json.NewDecoder(rec.Body).Decode(&m); err != nil {
		t.Fatal(err)
	}
	if m.Node.Received != 1 || m.Events == nil {
		t.Errorf("metrics = %+v", m)
	}
}

func TestRobotFlags(t *testing.T) {
	status := control.NewStatus(1, 0)
	n := node.New(node.Config{Role: node.RoleRobot, Address: robotAddr}, &nopTransport{frames: make(chan mesh.Frame)})
	h := New("", Deps{Bus: eventBus.NewEventBus(), Node: n, Status: status}).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/nodeAPI/flags", strings.NewReader(`{"flag":"lost","set":true}`)))
	if rec.Code != http.StatusOK || !status.Load().Has(message.FlagLost) {
		t.Errorf("code %d, status %v", rec.Code, status.Load())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/nodeAPI/flags", strings.NewReader(`{"flag":"sleepy","set":true}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown flag code %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/nodeAPI/control", strings.NewReader(`{}`)))
	if rec.Code != http.StatusNotFound {
		t.Errorf("control on a robot = %d, want 404", rec.Code)
	}
}

func TestWebsocketStreamsEvents(t *testing.T) {
	n, snapshot := newController(t)
	bus := eventBus.NewEventBus()
	srv := httptest.NewServer(New("", Deps{Bus: bus, Node: n, Snapshot: snapshot}).Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	bus.Publish(eventBus.Event{Type: eventBus.EventRobotLost, Peer: robotAddr.String()})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev eventBus.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != eventBus.EventRobotLost || ev.Peer != robotAddr.String() {
		t.Errorf("event = %+v", ev)
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	n, snapshot := newController(t)
	s := New("127.0.0.1:0", Deps{Bus: eventBus.NewEventBus(), Node: n, Snapshot: snapshot})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/nodeAPI/status")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
