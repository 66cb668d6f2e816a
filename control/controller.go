package control

import (
	"context"
	"fmt"
	"sync"

	"go.viam.com/rdk/logging"
)

// State is the lifecycle of one accepted target.
type State int

const (
	Idle State = iota
	Moving
	Converged
	Stuck
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Moving:
		return "moving"
	case Converged:
		return "converged"
	case Stuck:
		return "stuck"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no more commands will be issued for the current target.
func (s State) Terminal() bool {
	return s == Converged || s == Stuck
}

// Reason says why a controller ended up Stuck.
type Reason int

const (
	ReasonNone Reason = iota
	// ReasonStall means the stall detector fired.
	ReasonStall
	// ReasonUnreachable means no joint solution exists for the target.
	ReasonUnreachable
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonStall:
		return "stall"
	case ReasonUnreachable:
		return "unreachable"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// CommandSink receives joint commands. Re-sending the same command must be safe; the latest command
// wins.
type CommandSink interface {
	Publish(ctx context.Context, cmd JointCommand) error
}

// CommandSinkFunc adapts a function to a CommandSink.
type CommandSinkFunc func(ctx context.Context, cmd JointCommand) error

func (f CommandSinkFunc) Publish(ctx context.Context, cmd JointCommand) error {
	return f(ctx, cmd)
}

// Request is one target handed to a MotionController. Joint-space targets may leave Command empty
// and have it derived; Cartesian targets need the command produced by an IK solve.
type Request struct {
	Target      PoseTarget
	Command     JointCommand
	DetectStall bool
	Approach    Approach
}

// Progress is a consistent snapshot of a controller.
type Progress struct {
	State  State
	Reason Reason
	Target PoseTarget
}

// Moving reports whether the controller is still commanding the arm.
func (p Progress) Moving() bool { return p.State == Moving }

// Stuck reports whether the motion was abandoned as stalled or unreachable.
func (p Progress) Stuck() bool { return p.State == Stuck }

// Complete is true whenever the controller is not moving.
func (p Progress) Complete() bool { return p.State != Moving }

// TransitionFunc is called, outside any lock, after every state change.
type TransitionFunc func(from, to State, p Progress)

// MotionController drives one arm side toward one target at a time.
type MotionController struct {
	sink        CommandSink
	logger      logging.Logger
	convergence ConvergenceDetector
	onChange    TransitionFunc

	// tickMu serializes Accept, Fail and OnFeedback so each sample is processed to completion.
	tickMu sync.Mutex

	mu      sync.RWMutex
	state   State
	reason  Reason
	target  PoseTarget
	command JointCommand
	stall   *StallDetector
}

// Option configures a MotionController.
type Option func(*MotionController)

// WithLogger sets the logger; transitions log at Info, republishes at Debug.
func WithLogger(logger logging.Logger) Option {
	return func(c *MotionController) { c.logger = logger }
}

// WithStallPolicy replaces DefaultStallPolicy.
func WithStallPolicy(policy StallPolicy) Option {
	return func(c *MotionController) { c.stall = NewStallDetector(policy) }
}

// WithConvergence replaces DefaultConvergence.
func WithConvergence(d ConvergenceDetector) Option {
	return func(c *MotionController) { c.convergence = d }
}

// WithTransitionFunc registers an observer for state changes.
func WithTransitionFunc(fn TransitionFunc) Option {
	return func(c *MotionController) { c.onChange = fn }
}

// NewMotionController returns an Idle controller publishing through sink.
func NewMotionController(sink CommandSink, opts ...Option) *MotionController {
	c := &MotionController{
		sink:        sink,
		convergence: DefaultConvergence,
		stall:       NewStallDetector(DefaultStallPolicy),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.NewLogger("motion")
	}
	return c
}

// Accept stores a new target, clears both consistency windows and starts moving. A target that
// is still moving is dropped without notice.
func (c *MotionController) Accept(req Request) error {
	cmd := req.Command
	if cmd.Empty() {
		if req.Target.Kind() == Cartesian {
			return ErrNoCommand
		}
		cmd = req.Target.Command()
	}
	if cmd.Empty() {
		return ErrInvalidTarget
	}

	c.tickMu.Lock()
	defer c.tickMu.Unlock()

	c.mu.Lock()
	from := c.state
	if from == Moving {
		c.logger.Debugf("abandoning %v for new target", c.target)
	}
	c.target = req.Target
	c.command = cmd.Clone()
	c.reason = ReasonNone
	c.stall.Reset(req.DetectStall && req.Target.Kind() == Cartesian, req.Approach)
	c.state = Moving
	p := c.progressLocked()
	c.mu.Unlock()

	c.logger.Infof("accepted %v (stall detection %v)", req.Target, req.DetectStall)
	c.notify(from, Moving, p)
	return nil
}

// Fail records target as not reachable, for instance when the IK solver has no solution. Nothing
// is published.
func (c *MotionController) Fail(target PoseTarget, reason Reason) {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()

	c.mu.Lock()
	from := c.state
	c.target = target
	c.command = JointCommand{}
	c.reason = reason
	c.stall.Reset(false, Descend)
	c.state = Stuck
	p := c.progressLocked()
	c.mu.Unlock()

	c.logger.Warnf("cannot move to %v: %v", target, reason)
	c.notify(from, Stuck, p)
}

// OnFeedback processes one sample and returns the resulting state. Outside Moving it is a no-op. A
// publish error is returned to the caller but leaves the state Moving; the next tick tries again.
func (c *MotionController) OnFeedback(ctx context.Context, sample FeedbackSample) (State, error) {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()

	c.mu.Lock()
	if c.state != Moving {
		st := c.state
		c.mu.Unlock()
		return st, nil
	}

	c.stall.Update(sample)
	var to State
	switch {
	case c.convergence.IsConverged(c.target, sample):
		to = Converged
	case c.stall.IsStuck(c.target, sample):
		to = Stuck
		c.reason = ReasonStall
	default:
		cmd := c.command.Clone()
		c.mu.Unlock()
		c.logger.Debugf("republishing %v", cmd.Names)
		if err := c.sink.Publish(ctx, cmd); err != nil {
			return Moving, fmt.Errorf("publishing joint command: %w", err)
		}
		return Moving, nil
	}
	c.state = to
	p := c.progressLocked()
	c.mu.Unlock()

	if to == Stuck {
		c.logger.Warnf("stalled short of %v (torque count %d, pose count %d)",
			p.Target, c.stall.TorqueCount(), c.stall.PoseCount())
	} else {
		c.logger.Infof("reached %v", p.Target)
	}
	c.notify(Moving, to, p)
	return to, nil
}

// State returns the last completed state.
func (c *MotionController) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsMoving reports whether commands are still being issued.
func (c *MotionController) IsMoving() bool {
	return c.State() == Moving
}

// IsStuck reports whether the last target was abandoned.
func (c *MotionController) IsStuck() bool {
	return c.State() == Stuck
}

// Progress returns a snapshot of state, reason and target taken under one lock.
func (c *MotionController) Progress() Progress {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.progressLocked()
}

// Target returns the current target.
func (c *MotionController) Target() PoseTarget {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.target
}

// Command returns a copy of the stored command.
func (c *MotionController) Command() JointCommand {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.command.Clone()
}

func (c *MotionController) progressLocked() Progress {
	return Progress{State: c.state, Reason: c.reason, Target: c.target}
}

func (c *MotionController) notify(from, to State, p Progress) {
	if c.onChange != nil {
		c.onChange(from, to, p)
	}
}
