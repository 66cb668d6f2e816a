package control

import "math"

// Fixed absolute tolerances for "arrived".
const (
	JointTolerance       = 0.1   // radians, inclusive
	PositionTolerance    = 0.007 // length units, exclusive
	OrientationTolerance = 0.05  // quaternion component, exclusive
)

// ConvergenceDetector decides whether feedback is close enough to a target.
type ConvergenceDetector struct {
	Joint       float64
	Position    float64
	Orientation float64
}

// DefaultConvergence uses the fixed tolerances above.
var DefaultConvergence = ConvergenceDetector{
	Joint:       JointTolerance,
	Position:    PositionTolerance,
	Orientation: OrientationTolerance,
}

// IsConverged reports whether sample satisfies every tracked dimension of target. A sample lacking
// the feedback the target kind needs is never converged.
func (d ConvergenceDetector) IsConverged(target PoseTarget, sample FeedbackSample) bool {
	switch target.Kind() {
	case JointSpace:
		if len(sample.Joints) != len(target.values) {
			return false
		}
		for i, want := range target.values {
			if math.Abs(sample.Joints[i]-want) > d.Joint {
				return false
			}
		}
		return true
	case Cartesian:
		if sample.Pose == nil {
			return false
		}
		return posesWithin(*sample.Pose, target.cartesian, d.Position, d.Orientation)
	default:
		return false
	}
}

// posesWithin checks all seven components strictly inside the given tolerances.
func posesWithin(a, b CartesianPose, pos, ori float64) bool {
	return math.Abs(a.Position.X-b.Position.X) < pos &&
		math.Abs(a.Position.Y-b.Position.Y) < pos &&
		math.Abs(a.Position.Z-b.Position.Z) < pos &&
		math.Abs(a.Orientation.X-b.Orientation.X) < ori &&
		math.Abs(a.Orientation.Y-b.Orientation.Y) < ori &&
		math.Abs(a.Orientation.Z-b.Orientation.Z) < ori &&
		math.Abs(a.Orientation.W-b.Orientation.W) < ori
}
