package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"robot-link/internal/commands"
	"robot-link/internal/control"
	"robot-link/internal/eventBus"
	"robot-link/internal/metrics"
	"robot-link/internal/node"

	logs "github.com/danmuck/smplog"
	"github.com/gorilla/websocket"
)

const shutdownTimeout = 5 * time.Second

// Define a WebSocket upgrader.
var upgrader = websocket.Upgrader{
	// Allow any origin; the dashboard is served from elsewhere.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Deps are what the endpoints read and act on. Snapshot is set on
// controllers, Status on robots; Collector is optional.
type Deps struct {
	Bus       *eventBus.EventBus
	Node      node.INode
	Snapshot  *control.Snapshot
	Status    *control.Status
	Collector *metrics.Collector
}

type Server struct {
	deps Deps
	http *http.Server
	quit chan struct{}
}

func New(addr string, deps Deps) *Server {
	s := &Server{deps: deps, quit: make(chan struct{})}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.wsHandler)

	mux.HandleFunc("/nodeAPI/status", commands.StatusHandler(s.deps.Node, s.deps.Snapshot))
	mux.HandleFunc("/nodeAPI/peers", commands.PeersHandler(s.deps.Node))
	mux.HandleFunc("/nodeAPI/metrics", commands.MetricsHandler(s.deps.Node, s.deps.Collector))
	if s.deps.Snapshot != nil {
		mux.HandleFunc("/nodeAPI/control", commands.SetControlHandler(s.deps.Snapshot))
		mux.HandleFunc("/nodeAPI/activate", commands.ActivateHandler(s.deps.Snapshot))
		mux.HandleFunc("/nodeAPI/deactivate", commands.DeactivateHandler(s.deps.Snapshot))
	}
	if s.deps.Status != nil {
		mux.HandleFunc("/nodeAPI/flags", commands.SetFlagHandler(s.deps.Status))
	}
	return mux
}

// wsHandler upgrades the connection to WebSocket and pushes events from the EventBus.
func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	// Subscribe before the handshake completes so the client sees every
	// event published after its dial returns.
	eventCh := s.deps.Bus.Subscribe()
	defer s.deps.Bus.Unsubscribe(eventCh)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logs.Warnf("[Server] upgrade error: %v", err)
		return
	}
	defer conn.Close()

	// The client never sends; reading only notices when it goes away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event := <-eventCh:
			if err := conn.WriteJSON(event); err != nil {
				logs.Debugf("[Server] websocket write error: %v", err)
				return
			}
		case <-gone:
			return
		case <-s.quit:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(time.Second))
			return
		}
	}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		logs.Infof("[Server] listening on %s", ln.Addr())
		errCh <- s.http.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	close(s.quit)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logs.Info("[Server] stopped")
	return nil
}
