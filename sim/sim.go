// Package sim is an in-process stand-in for a dual 7-joint arm, its grippers, and an IK solver.
//
// Its kinematics are trivial: the first three joints of a side are the hand position
// and the last four its orientation quaternion, so an IK solution is the target pose itself. A
// floor height can be set to obstruct the hand; while pressed against it the shoulder effort
// settles at a constant load.
package sim

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/golang/geo/r3"

	"plushie_arm/control"
)

const (
	restEffort    = 0.3
	blockedEffort = 2.5

	// zJoint carries the hand height.
	zJoint = 2
)

// Config sets up an Arm.
type Config struct {
	// MaxStep is the largest change of one joint per Step, in radians.
	MaxStep float64 `yaml:"max_step"`
	// Tick is how far the clock advances per Step.
	Tick  time.Duration `yaml:"tick"`
	Start time.Time     `yaml:"-"`
}

type limbState struct {
	joints    [control.JointsPerSide]float64
	command   []float64
	effort    float64
	publishes int
}

// Arm simulates both sides.
type Arm struct {
	mu     sync.Mutex
	cfg    Config
	now    time.Time
	floor  float64
	floorZ bool
	limbs  map[control.Side]*limbState
}

// New returns an arm at rest with every joint at zero.
func New(cfg Config) *Arm {
	if cfg.MaxStep <= 0 {
		cfg.MaxStep = 0.25
	}
	if cfg.Tick <= 0 {
		cfg.Tick = 100 * time.Millisecond
	}
	if cfg.Start.IsZero() {
		cfg.Start = time.Unix(0, 0).UTC()
	}
	return &Arm{
		cfg: cfg,
		now: cfg.Start,
		limbs: map[control.Side]*limbState{
			control.Left:  {effort: restEffort},
			control.Right: {effort: restEffort},
		},
	}
}

// Limb returns the handle for one side.
func (a *Arm) Limb(side control.Side) *Limb {
	return &Limb{arm: a, side: side}
}

// Now is the simulated clock.
func (a *Arm) Now() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.now
}

// SetJoints places a side without commanding it.
func (a *Arm) SetJoints(side control.Side, joints []float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	copy(a.limbs[side].joints[:], joints)
}

// Joints returns a side's current joint positions.
func (a *Arm) Joints(side control.Side) []float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	j := a.limbs[side].joints
	return j[:]
}

// SetFloor blocks both hands from going below z.
func (a *Arm) SetFloor(z float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.floor = z
	a.floorZ = true
}

// ClearFloor removes the obstruction.
func (a *Arm) ClearFloor() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.floorZ = false
}

// Publishes is how many commands a side has received.
func (a *Arm) Publishes(side control.Side) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.limbs[side].publishes
}

// Step advances the clock one tick and moves every commanded joint toward its command.
func (a *Arm) Step() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.now = a.now.Add(a.cfg.Tick)
	for _, l := range a.limbs {
		if l.command == nil {
			l.effort = restEffort
			continue
		}
		moved := 0.0
		blocked := false
		for i, want := range l.command {
			next := approach(l.joints[i], want, a.cfg.MaxStep)
			if i == zJoint && a.floorZ && next < a.floor {
				if l.joints[i] >= a.floor {
					next = a.floor
				} else {
					next = l.joints[i]
				}
				blocked = want < a.floor
			}
			moved = math.Max(moved, math.Abs(next-l.joints[i]))
			l.joints[i] = next
		}
		switch {
		case blocked:
			l.effort = blockedEffort
		default:
			l.effort = restEffort + 4*moved
		}
	}
}

func approach(cur, want, step float64) float64 {
	switch d := want - cur; {
	case d > step:
		return cur + step
	case d < -step:
		return cur - step
	default:
		return want
	}
}

// Limb is one side of the simulated arm.
type Limb struct {
	arm  *Arm
	side control.Side
}

// Publish stores cmd as the side's command; the names must be the side's joints.
func (l *Limb) Publish(_ context.Context, cmd control.JointCommand) error {
	values := make([]float64, control.JointsPerSide)
	names := control.JointNames(l.side)
	if len(cmd.Names) != len(names) {
		return fmt.Errorf("sim: %v command has %d joints", l.side, len(cmd.Names))
	}
	if len(cmd.Positions) != len(names) {
		return fmt.Errorf("sim: %v command has %d positions for %d joints", l.side, len(cmd.Positions), len(names))
	}
	for i, n := range names {
		if cmd.Names[i] != n {
			return fmt.Errorf("sim: unexpected joint %q for %v", cmd.Names[i], l.side)
		}
		values[i] = cmd.Positions[i]
	}

	l.arm.mu.Lock()
	defer l.arm.mu.Unlock()
	state := l.arm.limbs[l.side]
	state.command = values
	state.publishes++
	return nil
}

func (l *Limb) JointSample(context.Context) (control.FeedbackSample, error) {
	l.arm.mu.Lock()
	defer l.arm.mu.Unlock()
	j := l.arm.limbs[l.side].joints
	return control.NewJointSample(l.arm.now, j[:]), nil
}

func (l *Limb) EndpointSample(context.Context) (control.FeedbackSample, error) {
	l.arm.mu.Lock()
	defer l.arm.mu.Unlock()
	return control.NewPoseSample(l.arm.now, forward(l.arm.limbs[l.side].joints[:])), nil
}

func (l *Limb) Effort(context.Context) (float64, error) {
	l.arm.mu.Lock()
	defer l.arm.mu.Unlock()
	return l.arm.limbs[l.side].effort, nil
}

func forward(j []float64) control.CartesianPose {
	return control.CartesianPose{
		Position:    r3.Vector{X: j[0], Y: j[1], Z: j[2]},
		Orientation: control.Quaternion{X: j[3], Y: j[4], Z: j[5], W: j[6]},
	}
}

func inverse(p control.CartesianPose) []float64 {
	return []float64{
		p.Position.X, p.Position.Y, p.Position.Z,
		p.Orientation.X, p.Orientation.Y, p.Orientation.Z, p.Orientation.W,
	}
}
