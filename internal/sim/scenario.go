package sim

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"robot-link/internal/mesh"

	"gopkg.in/yaml.v3"
)

type RobotsCfg struct {
	Count int `yaml:"count" json:"count"`
	// Spacing is the distance in metres between consecutive robots, laid out
	// on a line away from the controller.
	Spacing float64 `yaml:"spacing" json:"spacing"`
	// LostAfter, when set, makes the first robot report itself lost once
	// this much time has passed.
	LostAfter time.Duration `yaml:"lost_after" json:"lost_after"`
}

type AirCfg struct {
	Range   float64       `yaml:"range" json:"range"`
	AirTime time.Duration `yaml:"air_time" json:"air_time"` // 0 delivers instantly, no collisions
	Loss    float64       `yaml:"loss" json:"loss"`
	// CarrierSense turns on listen-before-talk with the default backoff.
	CarrierSense bool `yaml:"carrier_sense" json:"carrier_sense"`
}

type ControlCfg struct {
	X1 float32 `yaml:"x1" json:"x1"`
	Y1 float32 `yaml:"y1" json:"y1"`
	X2 float32 `yaml:"x2" json:"x2"`
	Y2 float32 `yaml:"y2" json:"y2"`
}

type LogCfg struct {
	MetricsFile string `yaml:"metrics_file" json:"metrics_file"`
}

type Scenario struct {
	Duration     time.Duration `yaml:"duration" json:"duration"`
	Seed         int64         `yaml:"seed" json:"seed"`
	Interval     time.Duration `yaml:"interval" json:"interval"`
	DrainTimeout time.Duration `yaml:"drain_timeout" json:"drain_timeout"`
	Robots       RobotsCfg     `yaml:"robots" json:"robots"`
	Air          AirCfg        `yaml:"air" json:"air"`
	Control      ControlCfg    `yaml:"control" json:"control"`
	Logging      LogCfg        `yaml:"logging" json:"logging"`
}

func LoadScenario(path string) (*Scenario, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sc := &Scenario{}
	if yaml.Unmarshal(f, sc) == nil {
		return sc, sc.Validate()
	}
	// fallback JSON
	sc = &Scenario{}
	if err := json.Unmarshal(f, sc); err != nil {
		return nil, err
	}
	return sc, sc.Validate()
}

func (sc *Scenario) Validate() error {
	var errs []error
	if sc.Duration <= 0 {
		errs = append(errs, errors.New("duration must be positive"))
	}
	if sc.Interval < 0 {
		errs = append(errs, errors.New("interval must not be negative"))
	}
	if sc.Robots.Count < 1 || sc.Robots.Count > mesh.MaxPeers {
		errs = append(errs, fmt.Errorf("robots.count must be 1..%d, got %d", mesh.MaxPeers, sc.Robots.Count))
	}
	if sc.Air.Loss < 0 || sc.Air.Loss > 1 {
		errs = append(errs, fmt.Errorf("air.loss must be within [0,1], got %g", sc.Air.Loss))
	}
	return errors.Join(errs...)
}
