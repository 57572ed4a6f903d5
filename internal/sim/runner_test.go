package sim

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	eb "robot-link/internal/eventBus"
	"robot-link/internal/message"
	"robot-link/internal/metrics"
)

func TestLoadScenario(t *testing.T) {
	yamlBody := `
duration: 2s
seed: 7
interval: 100ms
robots:
  count: 3
  spacing: 25
air:
  range: 120
  air_time: 2ms
  loss: 0.1
  carrier_sense: true
control: {x1: 1, y1: 2, x2: 3, y2: 4}
logging:
  metrics_file: out.json
`
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.yaml")
	if err := os.WriteFile(path, []byte(yamlBody), 0o644); err != nil {
		t.Fatal(err)
	}
	sc, err := LoadScenario(path)
	if err != nil {
		t.Fatal(err)
	}
	if sc.Duration != 2*time.Second || sc.Interval != 100*time.Millisecond || sc.Seed != 7 {
		t.Errorf("timing = %+v", sc)
	}
	if sc.Robots.Count != 3 || sc.Robots.Spacing != 25 {
		t.Errorf("robots = %+v", sc.Robots)
	}
	if sc.Air != (AirCfg{Range: 120, AirTime: 2 * time.Millisecond, Loss: 0.1, CarrierSense: true}) {
		t.Errorf("air = %+v", sc.Air)
	}
	if sc.Control != (ControlCfg{X1: 1, Y1: 2, X2: 3, Y2: 4}) || sc.Logging.MetricsFile != "out.json" {
		t.Errorf("control/logging = %+v %+v", sc.Control, sc.Logging)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("duration: 1s\nrobots: {count: 21}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadScenario(bad); err == nil {
		t.Error("scenario with 21 robots accepted")
	}
}

func run(t *testing.T, sc *Scenario) (*Runner, *metrics.Collector) {
	t.Helper()
	coll := metrics.NewCollector()
	r := NewRunner(sc, eb.NewEventBus(), coll)
	if err := r.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return r, coll
}

func TestRunnerRespectsRange(t *testing.T) {
	r, coll := run(t, &Scenario{
		Duration: 150 * time.Millisecond,
		Interval: 10 * time.Millisecond,
		Robots:   RobotsCfg{Count: 2, Spacing: 150},
		Air:      AirCfg{Range: 200},
		Control:  ControlCfg{X1: 1, Y1: 2, X2: 3, Y2: 4},
	})

	statuses := r.Controller().LatestStatuses()
	if len(statuses) != 1 || statuses[0].From != RobotAddress(0) || statuses[0].Status.RobotID != 1 {
		t.Errorf("controller heard %+v, want only the robot in range", statuses)
	}

	near, ok := r.Robots()[0].LatestControl()
	if !ok || near.Control != (message.Control{X1: 1, Y1: 2, X2: 3, Y2: 4}) {
		t.Errorf("near robot control = %+v, %v", near, ok)
	}
	if _, ok := r.Robots()[1].LatestControl(); ok {
		t.Error("far robot received control out of range")
	}

	snap := coll.Snapshot()
	if snap.TotalSent == 0 || snap.TotalReceived == 0 {
		t.Errorf("counters = %+v", snap)
	}
	if snap.ReceivedByPeer[RobotAddress(1).String()] != 0 {
		t.Errorf("received from far robot: %+v", snap.ReceivedByPeer)
	}
}

func TestRunnerLostRobotStopsControls(t *testing.T) {
	r, coll := run(t, &Scenario{
		Duration: 200 * time.Millisecond,
		Interval: 10 * time.Millisecond,
		Robots:   RobotsCfg{Count: 1, Spacing: 10, LostAfter: 30 * time.Millisecond},
		Control:  ControlCfg{X1: 1, Y1: 1, X2: 1, Y2: 1},
	})

	if coll.Snapshot().TotalRobotLost == 0 {
		t.Error("no ROBOT_LOST recorded")
	}
	got, ok := r.Robots()[0].LatestControl()
	if !ok || got.Control != (message.Control{}) {
		t.Errorf("robot last control = %+v, want zero after lost", got)
	}
}

func TestRunnerStop(t *testing.T) {
	r := NewRunner(&Scenario{
		Duration: 10 * time.Second,
		Interval: 10 * time.Millisecond,
		Robots:   RobotsCfg{Count: 1, Spacing: 10},
	}, eb.NewEventBus(), metrics.NewCollector())

	done := make(chan error, 1)
	start := time.Now()
	go func() { done <- r.Run() }()
	time.Sleep(50 * time.Millisecond)
	r.Stop()
	r.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
	if time.Since(start) > 2*time.Second {
		t.Error("Run ignored Stop")
	}
}

func TestRunnerWithCarrierSense(t *testing.T) {
	r, coll := run(t, &Scenario{
		Duration: 300 * time.Millisecond,
		Interval: 20 * time.Millisecond,
		Robots:   RobotsCfg{Count: 3, Spacing: 10},
		Air:      AirCfg{Range: 100, AirTime: time.Millisecond, CarrierSense: true},
		Control:  ControlCfg{X1: 1, Y1: 2, X2: 3, Y2: 4},
	})

	if got := len(r.Controller().LatestStatuses()); got != 3 {
		t.Errorf("controller heard %d robots, want 3", got)
	}
	for i, robot := range r.Robots() {
		if _, ok := robot.LatestControl(); !ok {
			t.Errorf("robot %d never heard the controller", i)
		}
	}
	if c := coll.Snapshot(); c.TotalSent == 0 {
		t.Error("nothing sent")
	}
}

func TestRunnerDetachesStationsOnSetupFailure(t *testing.T) {
	r := NewRunner(&Scenario{
		Duration: time.Second,
		Interval: 10 * time.Millisecond,
		Robots:   RobotsCfg{Count: 21, Spacing: 1},
	}, eb.NewEventBus(), metrics.NewCollector())

	if err := r.Run(); err == nil {
		t.Fatal("Run with a full peer table succeeded")
	}
	if got := r.air.Stations(); len(got) != 0 {
		t.Errorf("%d stations still attached", len(got))
	}
}

func TestCloseNodesAfterBuild(t *testing.T) {
	r := NewRunner(&Scenario{Interval: 10 * time.Millisecond, Robots: RobotsCfg{Count: 3, Spacing: 1}}, eb.NewEventBus(), metrics.NewCollector())
	if err := r.build(); err != nil {
		t.Fatal(err)
	}
	if got := len(r.air.Stations()); got != 4 {
		t.Fatalf("stations = %d, want 4", got)
	}
	r.closeNodes()
	if got := r.air.Stations(); len(got) != 0 {
		t.Errorf("%d stations still attached", len(got))
	}
}
