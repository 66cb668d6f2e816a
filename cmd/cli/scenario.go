package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"plushie_arm/sim"
)

// Scenario is one simulated run. Exactly one of Deliver and Reposition is set.
type Scenario struct {
	Sim        sim.Config          `yaml:"sim"`
	MaxTicks   int                 `yaml:"max_ticks"`
	Deliver    *DeliverScenario    `yaml:"deliver"`
	Reposition *RepositionScenario `yaml:"reposition"`
}

// DeliverScenario hands the object over. The recipient takes it TakeAfter ticks in; PressAfter
// presses the override button instead.
type DeliverScenario struct {
	Left       bool      `yaml:"left"`
	HeadPan    float64   `yaml:"head_pan"`
	Start      []float64 `yaml:"start"`
	TakeAfter  int       `yaml:"take_after"`
	PressAfter int       `yaml:"press_after"`
}

// RepositionScenario moves a hand to a point, optionally above a floor that blocks it.
type RepositionScenario struct {
	Left             bool      `yaml:"left"`
	X                float64   `yaml:"x"`
	Y                float64   `yaml:"y"`
	Z                float64   `yaml:"z"`
	Yaw              float64   `yaml:"yaw"`
	Frame            string    `yaml:"frame"`
	Euler            string    `yaml:"euler"`
	Start            []float64 `yaml:"start"`
	Floor            *float64  `yaml:"floor"`
	NeedsConsistency bool      `yaml:"needs_consistency"`
}

func loadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading scenario")
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, errors.Wrapf(err, "parsing scenario %s", path)
	}
	if err := sc.validate(); err != nil {
		return nil, errors.Wrapf(err, "scenario %s", path)
	}
	return &sc, nil
}

func (sc *Scenario) validate() error {
	if (sc.Deliver == nil) == (sc.Reposition == nil) {
		return fmt.Errorf("exactly one of deliver or reposition must be set")
	}
	for _, start := range [][]float64{startOf(sc.Deliver), startOfReposition(sc.Reposition)} {
		if len(start) != 0 && len(start) != 7 {
			return fmt.Errorf("start must list 7 joint values, got %d", len(start))
		}
	}
	if sc.MaxTicks < 0 {
		return fmt.Errorf("max_ticks must not be negative")
	}
	return nil
}

func startOf(d *DeliverScenario) []float64 {
	if d == nil {
		return nil
	}
	return d.Start
}

func startOfReposition(r *RepositionScenario) []float64 {
	if r == nil {
		return nil
	}
	return r.Start
}
