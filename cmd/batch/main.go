package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	eb "robot-link/internal/eventBus"
	"robot-link/internal/logcfg"
	"robot-link/internal/metrics"
	"robot-link/internal/sim"

	logs "github.com/danmuck/smplog"
)

func main() {
	logs.Configure(logcfg.Load(""))

	// 1. Pick scenario file
	cfg := flag.String("scenario", "scenario.yaml", "YAML or JSON scenario description")
	flag.Parse()

	logs.Info("Starting simulation...")

	sc, err := sim.LoadScenario(*cfg)
	if err != nil {
		logs.Errorf(err, "scenario")
		os.Exit(1)
	}

	bus := eb.NewEventBus()
	coll := metrics.NewCollector()
	runner := sim.NewRunner(sc, bus, coll)

	// 2) catch Ctrl-C / SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	// 3) run the simulation in its own goroutine
	runErr := make(chan error, 1)
	go func() {
		runErr <- runner.Run()
	}()

	exit := 0
	select {
	case err := <-runErr:
		if err != nil {
			logs.Errorf(err, "runner error")
			exit = 1
		}
	case s := <-sigCh:
		logs.Warnf("received signal %v: shutting down early", s)
		runner.Stop()
		if err := <-runErr; err != nil {
			logs.Errorf(err, "runner stopped with error")
			exit = 1
		}
	}

	// 4) always flush metrics before exit
	if file := sc.Logging.MetricsFile; file != "" {
		if err := coll.Flush(file); err != nil {
			logs.Warnf("flush-metrics: %v", err)
		} else {
			logs.Infof("run complete, stats written to %s", file)
		}
	}
	os.Exit(exit)
}
