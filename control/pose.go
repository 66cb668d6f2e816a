package control

import (
	"fmt"

	"github.com/golang/geo/r3"
)

// MaxReach is the largest x a Cartesian target may request; anything beyond is clamped.
const MaxReach = 0.84

// PoseKind distinguishes joint-space targets from Cartesian endpoint targets.
type PoseKind int

const (
	JointSpace PoseKind = iota
	Cartesian
)

func (k PoseKind) String() string {
	switch k {
	case JointSpace:
		return "joint_space"
	case Cartesian:
		return "cartesian"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Quaternion is an orientation in x, y, z, w order.
type Quaternion struct {
	X, Y, Z, W float64
}

// CartesianPose is an endpoint position plus orientation.
type CartesianPose struct {
	Position    r3.Vector
	Orientation Quaternion
}

// ControlMode tags a joint command with how the limb should interpret it.
type ControlMode int

// PositionMode commands joint angles directly.
const PositionMode ControlMode = 1

// JointCommand is what a CommandSink receives: co-indexed names and values plus a mode.
type JointCommand struct {
	Names     []string
	Positions []float64
	Mode      ControlMode
}

// Clone returns a deep copy so callers cannot mutate a stored command.
func (c JointCommand) Clone() JointCommand {
	return JointCommand{
		Names:     append([]string(nil), c.Names...),
		Positions: append([]float64(nil), c.Positions...),
		Mode:      c.Mode,
	}
}

// Empty reports whether the command carries no joints.
func (c JointCommand) Empty() bool {
	return len(c.Names) == 0
}

// PoseTarget is an immutable desired configuration. Exactly one of the joint targets or the
// Cartesian target is populated, matching Kind.
type PoseTarget struct {
	kind      PoseKind
	side      Side
	names     []string
	values    []float64
	cartesian CartesianPose
}

// NewJointTarget builds a joint-space target. names and values are co-indexed.
func NewJointTarget(side Side, names []string, values []float64) (PoseTarget, error) {
	if !side.Valid() {
		return PoseTarget{}, fmt.Errorf("%w: unknown side %v", ErrInvalidTarget, side)
	}
	if len(names) == 0 || len(names) != len(values) {
		return PoseTarget{}, fmt.Errorf("%w: %d joint names for %d values", ErrInvalidTarget, len(names), len(values))
	}
	return PoseTarget{
		kind:   JointSpace,
		side:   side,
		names:  append([]string(nil), names...),
		values: append([]float64(nil), values...),
	}, nil
}

// NewCartesianTarget builds a Cartesian target, clamping x to MaxReach.
func NewCartesianTarget(side Side, pose CartesianPose) PoseTarget {
	if pose.Position.X > MaxReach {
		pose.Position.X = MaxReach
	}
	return PoseTarget{
		kind:      Cartesian,
		side:      side,
		cartesian: pose,
	}
}

func (t PoseTarget) Kind() PoseKind { return t.kind }

func (t PoseTarget) Side() Side { return t.side }

// JointNames returns a copy of the joint names of a joint-space target.
func (t PoseTarget) JointNames() []string {
	return append([]string(nil), t.names...)
}

// JointValues returns a copy of the joint angles of a joint-space target.
func (t PoseTarget) JointValues() []float64 {
	return append([]float64(nil), t.values...)
}

// Joint returns the target angle for a joint name.
func (t PoseTarget) Joint(name string) (float64, bool) {
	for i, n := range t.names {
		if n == name {
			return t.values[i], true
		}
	}
	return 0, false
}

// CartesianPose returns the endpoint pose of a Cartesian target.
func (t PoseTarget) CartesianPose() CartesianPose {
	return t.cartesian
}

// Command derives the position-mode command for a joint-space target.
func (t PoseTarget) Command() JointCommand {
	if t.kind != JointSpace {
		return JointCommand{}
	}
	return JointCommand{
		Names:     t.JointNames(),
		Positions: t.JointValues(),
		Mode:      PositionMode,
	}
}

func (t PoseTarget) String() string {
	if t.kind == Cartesian {
		p := t.cartesian
		return fmt.Sprintf("%v cartesian pos=(%.3f, %.3f, %.3f) ori=(%.3f, %.3f, %.3f, %.3f)",
			t.side, p.Position.X, p.Position.Y, p.Position.Z,
			p.Orientation.X, p.Orientation.Y, p.Orientation.Z, p.Orientation.W)
	}
	return fmt.Sprintf("%v joints %v=%v", t.side, t.names, t.values)
}
