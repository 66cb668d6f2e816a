package control

import (
	"context"
	"sync/atomic"
	"time"
)

// GripperActuator sends a command to a gripper, keyed by a numeric command id and a command name.
type GripperActuator interface {
	Command(ctx context.Context, id int, command string) error
}

// HoldingSensor reports whether a gripper currently holds something.
type HoldingSensor interface {
	IsHolding(ctx context.Context) (bool, error)
}

// IKRequest asks for joint angles that put a side's hand at Pose in Frame.
type IKRequest struct {
	Side  Side
	Frame string
	Stamp time.Time
	Pose  CartesianPose
}

// IKSolution is an IK answer. When Valid is false the pose cannot be reached and the other fields
// are empty.
type IKSolution struct {
	Valid     bool
	Names     []string
	Positions []float64
}

// Command turns a valid solution into a position-mode command.
func (s IKSolution) Command() JointCommand {
	return JointCommand{
		Names:     append([]string(nil), s.Names...),
		Positions: append([]float64(nil), s.Positions...),
		Mode:      PositionMode,
	}
}

// IKSolver is a synchronous request/response solver. An error means the solver could not be
// asked; an unreachable pose is a nil error with Valid false.
type IKSolver interface {
	Solve(ctx context.Context, req IKRequest) (IKSolution, error)
}

// Latch is a manual override that stays set until cleared.
type Latch struct {
	set atomic.Bool
}

// Press sets the latch.
func (l *Latch) Press() { l.set.Store(true) }

// Pressed reports whether the latch is set.
func (l *Latch) Pressed() bool { return l.set.Load() }

// Clear resets the latch.
func (l *Latch) Clear() { l.set.Store(false) }
