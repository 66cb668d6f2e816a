package control

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/geo/r3"
	"go.viam.com/rdk/logging"
)

// DefaultFrame is the frame IK requests are expressed in when none is given.
const DefaultFrame = "base"

// RepositionRequest moves a hand, pointing down, to a point with a given yaw.
type RepositionRequest struct {
	Side             Side
	X, Y, Z          float64
	Yaw              float64
	Frame            string
	NeedsConsistency bool
}

// Repositioner solves IK for a hand-down pose and hands the result to a MotionController.
type Repositioner struct {
	ctrl   *MotionController
	solver IKSolver
	euler  EulerConverter
	logger logging.Logger
	now    func() time.Time
}

// NewRepositioner wires a controller to a solver. A nil converter means LegacyEuler.
func NewRepositioner(ctrl *MotionController, solver IKSolver, euler EulerConverter, logger logging.Logger) *Repositioner {
	if euler == nil {
		euler = LegacyEuler{}
	}
	if logger == nil {
		logger = logging.NewLogger("reposition")
	}
	return &Repositioner{ctrl: ctrl, solver: solver, euler: euler, logger: logger, now: time.Now}
}

// Target builds the clamped Cartesian target for req.
func (r *Repositioner) Target(req RepositionRequest) PoseTarget {
	return NewCartesianTarget(req.Side, CartesianPose{
		Position:    r3.Vector{X: req.X, Y: req.Y, Z: req.Z},
		Orientation: r.euler.Quaternion(0, HandDownPitch, req.Yaw),
	})
}

// Reposition asks the solver once. An invalid solution leaves the controller Stuck with
// ReasonUnreachable; a solver error is returned and the controller is left as it was.
func (r *Repositioner) Reposition(ctx context.Context, req RepositionRequest) error {
	if !req.Side.Valid() {
		return fmt.Errorf("%w: unknown side %v", ErrInvalidTarget, req.Side)
	}
	frame := req.Frame
	if frame == "" {
		frame = DefaultFrame
	}
	target := r.Target(req)

	sol, err := r.solver.Solve(ctx, IKRequest{
		Side:  req.Side,
		Frame: frame,
		Stamp: r.now(),
		Pose:  target.CartesianPose(),
	})
	if err != nil {
		return fmt.Errorf("calling IK solver: %w", err)
	}
	if !sol.Valid || len(sol.Names) == 0 || len(sol.Names) != len(sol.Positions) {
		r.logger.Warnf("no IK solution for %v", target)
		r.ctrl.Fail(target, ReasonUnreachable)
		return nil
	}
	r.logger.Debugf("IK solution %v=%v", sol.Names, sol.Positions)
	return r.ctrl.Accept(Request{
		Target:      target,
		Command:     sol.Command(),
		DetectStall: req.NeedsConsistency,
		Approach:    Descend,
	})
}

// Progress reports the controller's progress.
func (r *Repositioner) Progress() Progress {
	return r.ctrl.Progress()
}

// Controller returns the controller driven by r.
func (r *Repositioner) Controller() *MotionController {
	return r.ctrl
}

// IKCommand adapts solver to Phase.Solve. Requests are stamped with now and expressed in frame, or
// DefaultFrame when frame is empty.
func IKCommand(solver IKSolver, frame string, now func() time.Time) func(context.Context, PoseTarget) (JointCommand, error) {
	if frame == "" {
		frame = DefaultFrame
	}
	return func(ctx context.Context, target PoseTarget) (JointCommand, error) {
		if target.Kind() != Cartesian {
			return target.Command(), nil
		}
		sol, err := solver.Solve(ctx, IKRequest{
			Side:  target.Side(),
			Frame: frame,
			Stamp: now(),
			Pose:  target.CartesianPose(),
		})
		if err != nil {
			return JointCommand{}, fmt.Errorf("calling IK solver: %w", err)
		}
		if !sol.Valid || len(sol.Names) == 0 || len(sol.Names) != len(sol.Positions) {
			return JointCommand{}, fmt.Errorf("%w for %v", ErrNoSolution, target)
		}
		return sol.Command(), nil
	}
}
