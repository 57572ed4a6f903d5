package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"robot-link/internal/config"
	"robot-link/internal/control"
	eb "robot-link/internal/eventBus"
	"robot-link/internal/logcfg"
	"robot-link/internal/mesh"
	"robot-link/internal/metrics"
	"robot-link/internal/mqtt"
	"robot-link/internal/network"
	"robot-link/internal/node"
	"robot-link/internal/peer"
	"robot-link/internal/server"
	"robot-link/internal/utils"

	logs "github.com/danmuck/smplog"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfgPath := flag.String("config", "", "YAML, TOML or JSON node config; empty runs the reference controller")
	robot := flag.Bool("robot", false, "without -config, run the reference robot instead of the controller")
	readStdin := flag.Bool("stdin", true, "controller: read command lines (p x1 y1 x2 y2 | stop | go) from stdin")
	monitor := flag.Duration("monitor", 0, "log goroutine and heap usage at this interval; 0 disables")
	flag.Parse()

	logs.Configure(logcfg.Load(""))

	cfg := config.Default()
	if *robot {
		cfg = config.DefaultRobot()
	}
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			logs.Errorf(err, "loading config")
			os.Exit(1)
		}
		cfg = *loaded
	}
	if cfg.Logging.Config != "" {
		logs.Configure(logcfg.Load(cfg.Logging.Config))
	}
	if err := cfg.Validate(); err != nil {
		logs.Errorf(err, "invalid config")
		os.Exit(1)
	}

	if err := run(cfg, *readStdin, *monitor); err != nil {
		logs.Errorf(err, "node exited")
		os.Exit(1)
	}
}

func run(cfg config.Config, readStdin bool, monitor time.Duration) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := eb.NewEventBus()
	coll := metrics.NewCollector()
	sub := bus.Subscribe()
	consumed := make(chan struct{})
	go func() {
		coll.Consume(sub)
		close(consumed)
	}()

	snapshot := control.NewSnapshot(cfg.Control.Control(), cfg.Control.Active)
	status := control.NewStatus(cfg.Robot.ID, cfg.Robot.Flags)
	isController := cfg.Role == node.RoleController

	var (
		transport mesh.ITransport
		simulated []*node.Node
	)
	switch cfg.Transport.Kind {
	case config.TransportUDP:
		udp := network.NewUDPTransport(cfg.Address, cfg.Transport.Listen)
		for _, p := range cfg.Peers {
			if err := udp.SetEndpoint(p.Address, p.Endpoint); err != nil {
				return fmt.Errorf("peer %s: %w", p.Address, err)
			}
		}
		transport = udp
	default:
		radio, peers, err := simulatedAir(cfg)
		if err != nil {
			return err
		}
		transport, simulated = radio, peers
	}

	n := node.New(cfg.NodeConfig(), transport,
		node.WithEventBus(bus),
		node.WithControlSource(snapshot),
		node.WithStatusSource(status),
	)
	if err := n.Setup(); err != nil {
		transport.Close()
		return err
	}
	defer n.Close()
	for _, sn := range simulated {
		if err := sn.Setup(); err != nil {
			return fmt.Errorf("simulated peer %s: %w", sn.Address(), err)
		}
		defer sn.Close()
	}

	var bridge *mqtt.Bridge
	if cfg.MQTT.Broker != "" {
		clientID := cfg.MQTT.ClientID
		if clientID == "" {
			clientID = "robot-link-" + n.ID().String()[:8]
		}
		mgr, err := mqtt.New(cfg.MQTT.Broker, clientID)
		if err != nil {
			return err
		}
		defer mgr.Disconnect()
		bridge = mqtt.NewBridge(mgr, bus, cfg.MQTT.TopicPrefix, cfg.Address.String(), cfg.MQTT.Encoding)
		if isController {
			if err := bridge.AcceptControl(snapshot); err != nil {
				return fmt.Errorf("mqtt subscribe: %w", err)
			}
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return n.Run(ctx) })
	for _, sn := range simulated {
		g.Go(func() error { return sn.Run(ctx) })
	}
	if cfg.HTTP.Listen != "" {
		deps := server.Deps{Bus: bus, Node: n, Collector: coll}
		if isController {
			deps.Snapshot = snapshot
		} else {
			deps.Status = status
		}
		srv := server.New(cfg.HTTP.Listen, deps)
		g.Go(func() error { return srv.Run(ctx) })
	}
	if bridge != nil {
		g.Go(func() error { return bridge.Run(ctx) })
	}
	if monitor > 0 {
		g.Go(func() error {
			utils.MonitorResources(ctx, monitor)
			return nil
		})
	}
	if readStdin && isController {
		// stdin cannot be interrupted, so the reader stays outside the group
		go func() {
			if err := control.ReadCommands(os.Stdin, snapshot); err != nil {
				logs.Warnf("[Control] stdin: %v", err)
			}
		}()
	}

	logs.Infof("%s %s up on %s transport with %d peers", cfg.Role, cfg.Address, cfg.Transport.Kind, len(cfg.Peers))
	err := g.Wait()

	bus.Unsubscribe(sub)
	<-consumed
	// always flush metrics before exit
	if file := cfg.Logging.MetricsFile; file != "" {
		if ferr := coll.Flush(file); ferr != nil {
			logs.Warnf("flush-metrics: %v", ferr)
		} else {
			logs.Infof("stats written to %s", file)
		}
	}
	return err
}

// simulatedAir puts this node on an in-process air together with a
// simulated counterpart for every configured peer, so a node can be tried
// without hardware.
func simulatedAir(cfg config.Config) (*network.Radio, []*node.Node, error) {
	air := network.NewAir()
	radio, err := air.Attach(cfg.Address, mesh.CreateCoordinates(0, 0))
	if err != nil {
		return nil, nil, err
	}

	counterpart := node.RoleRobot
	if cfg.Role == node.RoleRobot {
		counterpart = node.RoleController
	}
	var nodes []*node.Node
	for i, p := range cfg.Peers {
		r, err := air.Attach(p.Address, mesh.CreateCoordinates(10*float64(i+1), 0))
		if err != nil {
			return nil, nil, err
		}
		nodes = append(nodes, node.New(node.Config{
			Role:     counterpart,
			Address:  p.Address,
			Interval: cfg.Interval.Std(),
			Peers:    []peer.Peer{peer.New(cfg.Address)},
		}, r, node.WithStatusSource(control.NewStatus(int32(i+1), 0))))
	}
	return radio, nodes, nil
}
