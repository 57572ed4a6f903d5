package node

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"robot-link/internal/control"
	"robot-link/internal/eventBus"
	"robot-link/internal/mesh"
	"robot-link/internal/message"
	"robot-link/internal/peer"

	logs "github.com/danmuck/smplog"
	"github.com/google/uuid"
)

// DefaultInterval is the dispatch period when none is configured.
const DefaultInterval = 1000 * time.Millisecond

var (
	ErrTransportInitFailed    = errors.New("transport init failed")
	ErrPeerRegistrationFailed = peer.ErrPeerRegistrationFailed
	ErrSendFailed             = errors.New("send failed")
	ErrBadState               = errors.New("operation not allowed in current node state")
)

type Role string

const (
	RoleController Role = "controller"
	RoleRobot      Role = "robot"
)

func (r Role) Valid() bool { return r == RoleController || r == RoleRobot }

type State int32

const (
	StateUninitialized State = iota
	StateInitialized
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

type Config struct {
	Role     Role
	Address  peer.Address
	Interval time.Duration
	Peers    []peer.Peer
	// SendTo, when set, sends every tick to this one peer instead of all.
	SendTo *peer.Address
}

// ControlSource yields the controller's current control values.
type ControlSource interface {
	Load() message.Control
}

// StatusSource yields the robot's current status report.
type StatusSource interface {
	Load() message.Status
}

type Option func(*Node)

func WithEventBus(bus *eventBus.EventBus) Option {
	return func(n *Node) { n.bus = bus }
}

func WithControlSource(src ControlSource) Option {
	return func(n *Node) { n.controls = src }
}

func WithStatusSource(src StatusSource) Option {
	return func(n *Node) { n.status = src }
}

// ControlReport is the last control frame a robot received.
type ControlReport struct {
	From       peer.Address    `json:"from"`
	Control    message.Control `json:"control"`
	ReceivedAt time.Time       `json:"received_at"`
}

// StatusReport is the last status frame a controller received from one robot.
type StatusReport struct {
	From       peer.Address   `json:"from"`
	Status     message.Status `json:"status"`
	ReceivedAt time.Time      `json:"received_at"`
}

type Stats struct {
	Ticks        uint64 `json:"ticks"`
	Sent         uint64 `json:"sent"`
	SendFailed   uint64 `json:"send_failed"`
	Received     uint64 `json:"received"`
	DecodeFailed uint64 `json:"decode_failed"`
}

// Node is one endpoint of the link: a controller broadcasting control
// frames or a robot reporting status, plus the handler for what it receives.
type Node struct {
	id        uuid.UUID
	cfg       Config
	transport mesh.ITransport
	registry  *peer.Registry
	bus       *eventBus.EventBus
	controls  ControlSource
	status    StatusSource

	state atomic.Int32

	mu          sync.RWMutex
	lastControl *ControlReport
	statuses    map[peer.Address]StatusReport

	ticks, sent, sendFailed, received, decodeFailed atomic.Uint64

	recvDone chan struct{}
}

var _ INode = (*Node)(nil)

func New(cfg Config, t mesh.ITransport, opts ...Option) *Node {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	n := &Node{
		id:        uuid.New(),
		cfg:       cfg,
		transport: t,
		registry:  peer.NewRegistry(t),
		statuses:  make(map[peer.Address]StatusReport),
		recvDone:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.controls == nil {
		n.controls = control.NewSnapshot(message.Control{}, true)
	}
	if n.status == nil {
		n.status = control.NewStatus(0, 0)
	}
	return n
}

func (n *Node) ID() uuid.UUID         { return n.id }
func (n *Node) Role() Role            { return n.cfg.Role }
func (n *Node) Address() peer.Address { return n.cfg.Address }
func (n *Node) State() State          { return State(n.state.Load()) }
func (n *Node) Peers() []peer.Peer    { return n.registry.Peers() }

func (n *Node) setState(s State) {
	n.state.Store(int32(s))
	logs.Infof("[Node] %s %s -> %s", n.cfg.Role, n.cfg.Address, s)
	n.publish(eventBus.Event{Type: eventBus.EventNodeState, Payload: s.String()})
}

func (n *Node) publish(ev eventBus.Event) {
	ev.NodeID = n.id
	ev.Node = n.cfg.Address.String()
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	n.bus.Publish(ev)
}

// Setup brings up the transport, registers the configured peers and starts
// the receive handler. The first failure aborts setup and leaves the node
// uninitialized.
func (n *Node) Setup() error {
	if n.State() != StateUninitialized {
		return fmt.Errorf("setup: %w: %s", ErrBadState, n.State())
	}
	if err := n.transport.Init(); err != nil {
		logs.Errorf(err, "[Node] transport init failed")
		return fmt.Errorf("%w: %w", ErrTransportInitFailed, err)
	}
	for _, p := range n.cfg.Peers {
		if err := n.registry.Add(p); err != nil {
			logs.Warnf("[Node] registering peer %s: %v", p.Address, err)
			return err
		}
		n.publish(eventBus.Event{Type: eventBus.EventPeerAdded, Peer: p.Address.String()})
	}
	go n.receiveLoop()
	n.setState(StateInitialized)
	return nil
}

func (n *Node) receiveLoop() {
	defer close(n.recvDone)
	for f := range n.transport.Frames() {
		n.HandleFrame(f)
	}
}

// Tick builds one message from the current snapshot and sends it. A failed
// send is reported and dropped; the next tick sends fresh values.
func (n *Node) Tick() error {
	if n.State() == StateUninitialized {
		return fmt.Errorf("tick: %w: %s", ErrBadState, n.State())
	}
	n.ticks.Add(1)

	ev := eventBus.Event{MessageID: uuid.New()}
	var (
		buf  [message.ControlSize]byte
		data []byte
		err  error
	)
	switch n.cfg.Role {
	case RoleController:
		c := n.controls.Load()
		data, err = c.AppendBinary(buf[:0])
		ev.Control = &c
	default:
		s := n.status.Load()
		data, err = s.AppendBinary(buf[:0])
		ev.Status = &s
	}

	dst := mesh.AllPeers
	if n.cfg.SendTo != nil {
		dst = mesh.ToPeer(*n.cfg.SendTo)
	}
	ev.Peer = dst.String()

	if err == nil {
		err = n.transport.Send(dst, data)
	}
	if err != nil {
		n.sendFailed.Add(1)
		logs.Warnf("[Dispatch] %s: send to %s failed: %v", n.cfg.Address, dst, err)
		ev.Type = eventBus.EventSendFailed
		ev.Payload = err.Error()
		n.publish(ev)
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	n.sent.Add(1)
	logs.Debugf("[Dispatch] %s: sent %d bytes to %s", n.cfg.Address, len(data), dst)
	ev.Type = eventBus.EventFrameSent
	n.publish(ev)
	return nil
}

// Run ticks every interval until ctx is done. The first message goes out
// immediately. Send failures do not stop the loop.
func (n *Node) Run(ctx context.Context) error {
	if !n.state.CompareAndSwap(int32(StateInitialized), int32(StateRunning)) {
		return fmt.Errorf("run: %w: %s", ErrBadState, n.State())
	}
	logs.Infof("[Node] %s %s -> %s", n.cfg.Role, n.cfg.Address, StateRunning)
	n.publish(eventBus.Event{Type: eventBus.EventNodeState, Payload: StateRunning.String()})

	ticker := time.NewTicker(n.cfg.Interval)
	defer ticker.Stop()

	_ = n.Tick()
	for {
		select {
		case <-ctx.Done():
			logs.Infof("[Node] %s stopping", n.cfg.Address)
			return nil
		case <-ticker.C:
			_ = n.Tick()
		}
	}
}

// HandleFrame decodes one inbound frame. Controllers expect Status frames,
// robots expect Control frames; anything of the wrong size is rejected.
func (n *Node) HandleFrame(f mesh.Frame) {
	if f.ReceivedAt.IsZero() {
		f.ReceivedAt = time.Now()
	}
	switch n.cfg.Role {
	case RoleController:
		s, err := message.DecodeStatus(f.Data)
		if err != nil {
			n.decodeFailed.Add(1)
			n.rejectFrame(f, err)
			return
		}
		n.mu.Lock()
		prev, seen := n.statuses[f.From]
		n.statuses[f.From] = StatusReport{From: f.From, Status: s, ReceivedAt: f.ReceivedAt}
		n.mu.Unlock()
		n.received.Add(1)
		logs.Debugf("[Receive] %s: %s from %s", n.cfg.Address, s, f.From)
		n.publish(eventBus.Event{Type: eventBus.EventFrameReceived, Peer: f.From.String(), Status: &s, Timestamp: f.ReceivedAt})
		if s.Has(message.FlagLost) {
			n.robotLost(f.From, s, seen && prev.Status.Has(message.FlagLost))
		}
	default:
		c, err := message.DecodeControl(f.Data)
		if err != nil {
			n.decodeFailed.Add(1)
			n.rejectFrame(f, err)
			return
		}
		n.mu.Lock()
		n.lastControl = &ControlReport{From: f.From, Control: c, ReceivedAt: f.ReceivedAt}
		n.mu.Unlock()
		n.received.Add(1)
		logs.Debugf("[Receive] %s: %s from %s", n.cfg.Address, c, f.From)
		n.publish(eventBus.Event{Type: eventBus.EventFrameReceived, Peer: f.From.String(), Control: &c, Timestamp: f.ReceivedAt})
	}
}

func (n *Node) rejectFrame(f mesh.Frame, err error) {
	logs.Warnf("[Receive] %s: dropping frame from %s: %v", n.cfg.Address, f.From, err)
	n.publish(eventBus.Event{Type: eventBus.EventDecodeFailed, Peer: f.From.String(), Payload: err.Error(), Timestamp: f.ReceivedAt})
}

// roundEnder is a control source with rounds; EndRound reports whether a
// round was running.
type roundEnder interface{ EndRound() bool }

var _ roundEnder = (*control.Snapshot)(nil)

// robotLost acts on the frame where a robot's lost flag goes up, not on the
// repeats that follow while it stays set. It ends the running round, if
// any, and names the remaining robots as winners.
func (n *Node) robotLost(from peer.Address, s message.Status, wasLost bool) {
	if wasLost {
		return
	}
	if e, ok := n.controls.(roundEnder); ok && !e.EndRound() {
		return
	}

	var winners []string
	for _, p := range n.registry.Peers() {
		if p.Address != from {
			winners = append(winners, p.Address.String())
		}
	}
	logs.Warnf("[Receive] %s: robot %d at %s reports lost, round over (winner: %v)", n.cfg.Address, s.RobotID, from, winners)
	n.publish(eventBus.Event{Type: eventBus.EventRobotLost, Peer: from.String(), Status: &s, Payload: strings.Join(winners, ",")})
}

// LatestControl reports the last control frame received, if any.
func (n *Node) LatestControl() (ControlReport, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.lastControl == nil {
		return ControlReport{}, false
	}
	return *n.lastControl, true
}

// LatestStatuses reports the last status from each robot, ordered by address.
func (n *Node) LatestStatuses() []StatusReport {
	n.mu.RLock()
	out := make([]StatusReport, 0, len(n.statuses))
	for _, r := range n.statuses {
		out = append(out, r)
	}
	n.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].From.Compare(out[j].From) < 0 })
	return out
}

func (n *Node) Stats() Stats {
	return Stats{
		Ticks:        n.ticks.Load(),
		Sent:         n.sent.Load(),
		SendFailed:   n.sendFailed.Load(),
		Received:     n.received.Load(),
		DecodeFailed: n.decodeFailed.Load(),
	}
}

// Close shuts the transport and waits for the receive handler to drain.
func (n *Node) Close() error {
	err := n.transport.Close()
	if n.State() != StateUninitialized {
		<-n.recvDone
	}
	return err
}
