package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"robot-link/internal/control"
	eb "robot-link/internal/eventBus"
	"robot-link/internal/mesh"
	"robot-link/internal/message"
	"robot-link/internal/metrics"
	"robot-link/internal/network"
	"robot-link/internal/node"
	"robot-link/internal/peer"

	logs "github.com/danmuck/smplog"
	"golang.org/x/sync/errgroup"
)

// ControllerAddress is the controller's station address in every scenario.
var ControllerAddress = peer.MustParseAddress("34:85:18:A9:CF:E4")

// RobotAddress is the station address of the i-th robot (0-based).
func RobotAddress(i int) peer.Address {
	return peer.Address{0x02, 0x00, 0x00, 0x00, byte(i >> 8), byte(i + 1)}
}

// Runner plays one scenario: a controller and its robots on a simulated air.
type Runner struct {
	sc   *Scenario
	bus  *eb.EventBus
	coll *metrics.Collector

	air        *network.Air
	controller *node.Node
	robots     []*node.Node
	statuses   []*control.Status

	quit     chan struct{}
	stopOnce sync.Once
}

func NewRunner(sc *Scenario, bus *eb.EventBus, coll *metrics.Collector) *Runner {
	return &Runner{sc: sc, bus: bus, coll: coll, quit: make(chan struct{})}
}

// Stop ends a running scenario early.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() { close(r.quit) })
}

func (r *Runner) Controller() *node.Node { return r.controller }
func (r *Runner) Robots() []*node.Node   { return r.robots }

func (r *Runner) build() error {
	opts := []network.AirOption{network.WithSeed(r.sc.Seed), network.WithAirTime(r.sc.Air.AirTime)}
	if r.sc.Air.Range > 0 {
		opts = append(opts, network.WithRange(r.sc.Air.Range))
	}
	if r.sc.Air.Loss > 0 {
		opts = append(opts, network.WithLoss(r.sc.Air.Loss))
	}
	if r.sc.Air.CarrierSense {
		opts = append(opts, network.WithCarrierSense(network.DefaultCarrierSense))
	}
	r.air = network.NewAir(opts...)

	robotPeers := make([]peer.Peer, r.sc.Robots.Count)
	for i := range robotPeers {
		robotPeers[i] = peer.New(RobotAddress(i))
	}

	radio, err := r.air.Attach(ControllerAddress, mesh.CreateCoordinates(0, 0))
	if err != nil {
		return err
	}
	c := r.sc.Control
	snapshot := control.NewSnapshot(message.Control{X1: c.X1, Y1: c.Y1, X2: c.X2, Y2: c.Y2}, true)
	r.controller = node.New(node.Config{
		Role:     node.RoleController,
		Address:  ControllerAddress,
		Interval: r.sc.Interval,
		Peers:    robotPeers,
	}, radio, node.WithEventBus(r.bus), node.WithControlSource(snapshot))

	for i := 0; i < r.sc.Robots.Count; i++ {
		pos := mesh.CreateCoordinates(r.sc.Robots.Spacing*float64(i+1), 0)
		radio, err := r.air.Attach(RobotAddress(i), pos)
		if err != nil {
			return err
		}
		status := control.NewStatus(int32(i+1), 0)
		n := node.New(node.Config{
			Role:     node.RoleRobot,
			Address:  RobotAddress(i),
			Interval: r.sc.Interval,
			Peers:    []peer.Peer{peer.New(ControllerAddress)},
		}, radio, node.WithEventBus(r.bus), node.WithStatusSource(status))
		r.robots = append(r.robots, n)
		r.statuses = append(r.statuses, status)
	}
	return nil
}

// closeNodes closes every node built so far, detaching its radio.
func (r *Runner) closeNodes() {
	if r.controller != nil {
		r.controller.Close()
	}
	for _, n := range r.robots {
		n.Close()
	}
}

func (r *Runner) Run() error {
	// ── metrics wire‑up ────────────────────────────────────────────────────
	sub := r.bus.Subscribe()
	consumed := make(chan struct{})
	go func() {
		r.coll.Consume(sub)
		close(consumed)
	}()
	defer func() {
		r.bus.Unsubscribe(sub)
		<-consumed
	}()

	defer r.closeNodes()
	if err := r.build(); err != nil {
		return fmt.Errorf("building scenario: %w", err)
	}
	all := append([]*node.Node{r.controller}, r.robots...)
	for _, n := range all {
		if err := n.Setup(); err != nil {
			return fmt.Errorf("node %s: %w", n.Address(), err)
		}
	}
	logs.Infof("[Sim] running %d robots for %s", len(r.robots), r.sc.Duration)

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	for _, n := range all {
		g.Go(func() error { return n.Run(ctx) })
	}

	if d := r.sc.Robots.LostAfter; d > 0 {
		lost := time.AfterFunc(d, func() {
			logs.Infof("[Sim] robot %s reports lost", r.robots[0].Address())
			r.statuses[0].SetFlag(message.FlagLost)
		})
		defer lost.Stop()
	}

	select {
	case <-time.After(r.sc.Duration):
	case <-r.quit:
		logs.Info("[Sim] stopped early")
	}
	cancel()
	if err := g.Wait(); err != nil {
		return err
	}

	// let in-flight frames land before the stations go away
	deadline := time.Now().Add(r.sc.DrainTimeout)
	for r.air.ActiveTransmissions() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	logs.Infof("[Sim] remaining active transmissions on close: %d", r.air.ActiveTransmissions())
	r.coll.AddAirStats(r.air.Collisions(), r.air.AccessFailures())
	return nil
}
