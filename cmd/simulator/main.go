package main

import (
	"context"
	"time"

	"robot-link/internal/config"
	"robot-link/internal/control"
	"robot-link/internal/logcfg"
	"robot-link/internal/mesh"
	"robot-link/internal/message"
	"robot-link/internal/network"
	"robot-link/internal/node"
	"robot-link/internal/peer"

	logs "github.com/danmuck/smplog"
)

// ----------------------------------------------------------------------------
// Reference pair: one controller driving one robot on the simulated air
// ----------------------------------------------------------------------------

func main() {
	logs.Configure(logcfg.Load(""))

	air := network.NewAir()
	ctrlRadio, err := air.Attach(config.DefaultControllerAddress, mesh.CreateCoordinates(0, 0))
	if err != nil {
		logs.Fatal(err, "attach controller")
	}
	robotRadio, err := air.Attach(config.DefaultRobotAddress, mesh.CreateCoordinates(20, 0))
	if err != nil {
		logs.Fatal(err, "attach robot")
	}

	snapshot := control.NewSnapshot(message.Control{X1: 1, Y1: 2, X2: 3, Y2: 4}, true)
	status := control.NewStatus(1, 0)
	interval := 500 * time.Millisecond

	ctrl := node.New(node.Config{
		Role:     node.RoleController,
		Address:  config.DefaultControllerAddress,
		Interval: interval,
		Peers:    []peer.Peer{peer.New(config.DefaultRobotAddress)},
	}, ctrlRadio, node.WithControlSource(snapshot))
	robot := node.New(node.Config{
		Role:     node.RoleRobot,
		Address:  config.DefaultRobotAddress,
		Interval: interval,
		Peers:    []peer.Peer{peer.New(config.DefaultControllerAddress)},
	}, robotRadio, node.WithStatusSource(status))

	for _, n := range []*node.Node{ctrl, robot} {
		if err := n.Setup(); err != nil {
			logs.Fatal(err, "setup")
		}
		defer n.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	go ctrl.Run(ctx)
	go robot.Run(ctx)

	time.Sleep(2 * time.Second)
	logs.Info("Steering: p 50 0 0 -50")
	if cmd, err := control.ParseCommand("p 50 0 0 -50"); err == nil {
		snapshot.Apply(cmd)
	}

	time.Sleep(2 * time.Second)
	logs.Info("Robot reports lost...")
	status.SetFlag(message.FlagLost)

	time.Sleep(2 * time.Second)
	if c, ok := robot.LatestControl(); ok {
		logs.Infof("Robot last heard %s", c.Control)
	}
	for _, s := range ctrl.LatestStatuses() {
		logs.Infof("Controller last heard %s from %s", s.Status, s.From)
	}

	logs.Info("Shutting down simulation.")
	cancel()
	time.Sleep(100 * time.Millisecond)
}
