// Package control drives an arm toward a joint-space or Cartesian target by comparing live feedback
// against the target on every sensor tick, re-issuing the motion command until the arm converges or a
// torque/pose consistency heuristic decides it is stuck.
package control

import "fmt"

// Side selects which 7-joint limb a target, command or sample belongs to.
type Side int

const (
	Left Side = iota
	Right
)

// JointsPerSide is the number of joints in one limb.
const JointsPerSide = 7

// jointSuffixes is the fixed joint order for a limb: elbow 0/1, shoulder 0/1, wrist 0/1/2.
var jointSuffixes = [JointsPerSide]string{"e0", "e1", "s0", "s1", "w0", "w1", "w2"}

// Indices into the joint order.
const (
	JointE0 = iota
	JointE1
	JointS0
	JointS1
	JointW0
	JointW1
	JointW2
)

func (s Side) String() string {
	switch s {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return fmt.Sprintf("side(%d)", int(s))
	}
}

// SideFromLeft maps the boolean used by callers ("is_left") to a Side.
func SideFromLeft(isLeft bool) Side {
	if isLeft {
		return Left
	}
	return Right
}

// Valid reports whether s is Left or Right.
func (s Side) Valid() bool {
	return s == Left || s == Right
}

// LimbName is the namespace used for a side's channels ("left" / "right").
func LimbName(s Side) string {
	return s.String()
}

// JointNames returns the ordered joint names for a side, e.g. left_e0 ... left_w2.
func JointNames(s Side) []string {
	names := make([]string, JointsPerSide)
	for i, suffix := range jointSuffixes {
		names[i] = s.String() + "_" + suffix
	}
	return names
}

// EffortJoint is the shoulder joint whose effort feeds the torque-consistency window.
func EffortJoint(s Side) string {
	return s.String() + "_" + jointSuffixes[JointS1]
}

// mirror returns v for the left side and -v for the right side.
func mirror(s Side, v float64) float64 {
	if s == Right {
		return -v
	}
	return v
}
