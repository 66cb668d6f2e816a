package plushie_arm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.viam.com/rdk/logging"

	"plushie_arm/control"
)

// RepositionOptions tunes a Reposition.
type RepositionOptions struct {
	Stall control.StallPolicy
	Euler control.EulerConverter
	Frame string
}

// Reposition moves a hand, pointing down, to a Cartesian point. Each side has its own
// controller and every moving side is polled. Progress follows the side of the latest
// accepted request.
type Reposition struct {
	endpoints map[control.Side]EndpointReader
	efforts   map[control.Side]EffortReader
	reps      map[control.Side]*control.Repositioner
	frame     string
	logger    logging.Logger

	mu     sync.RWMutex
	side   control.Side
	active bool
	fatal  error
}

// NewReposition builds one controller per side that has both a limb and an endpoint reader.
func NewReposition(
	limbs map[control.Side]JointLimb,
	endpoints map[control.Side]EndpointReader,
	efforts map[control.Side]EffortReader,
	solver control.IKSolver,
	opts RepositionOptions,
	logger logging.Logger,
) *Reposition {
	if opts.Stall.MinTicks == 0 {
		opts.Stall = control.DefaultStallPolicy
	}
	r := &Reposition{
		endpoints: endpoints,
		efforts:   efforts,
		reps:      map[control.Side]*control.Repositioner{},
		frame:     opts.Frame,
		logger:    logger,
	}
	for side, limb := range limbs {
		if _, ok := endpoints[side]; !ok {
			continue
		}
		ctrl := control.NewMotionController(limb,
			control.WithLogger(logger.Sublogger(side.String())),
			control.WithStallPolicy(opts.Stall),
		)
		r.reps[side] = control.NewRepositioner(ctrl, solver, opts.Euler, logger)
	}
	return r
}

// Reposition solves IK for req and starts moving. An unreachable point is reported through
// Progress, not as an error.
func (r *Reposition) Reposition(ctx context.Context, req control.RepositionRequest) error {
	if err := r.Err(); err != nil {
		return err
	}
	rep, ok := r.reps[req.Side]
	if !ok {
		return fmt.Errorf("no arm configured for %v side", req.Side)
	}
	if req.Frame == "" {
		req.Frame = r.frame
	}

	if err := rep.Reposition(ctx, req); err != nil {
		return err
	}

	r.mu.Lock()
	r.side = req.Side
	r.active = true
	r.mu.Unlock()
	return nil
}

// Tick reads endpoint pose and shoulder effort for every moving side and feeds its controller.
// A ConfigurationError stops the tick; other read errors are collected.
func (r *Reposition) Tick(ctx context.Context) error {
	if err := r.Err(); err != nil {
		return err
	}
	var errs error
	for _, side := range []control.Side{control.Left, control.Right} {
		rep, ok := r.reps[side]
		if !ok || !rep.Controller().IsMoving() {
			continue
		}
		if err := r.tickSide(ctx, side, rep.Controller()); err != nil {
			if control.IsConfigurationError(err) {
				return err
			}
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (r *Reposition) tickSide(ctx context.Context, side control.Side, ctrl *control.MotionController) error {
	sample, err := r.endpoints[side].EndpointSample(ctx)
	if err != nil {
		return err
	}
	if effort, ok := r.efforts[side]; ok {
		v, err := effort.Effort(ctx)
		switch {
		case err == nil:
			sample = sample.WithEffort(v)
		case control.IsConfigurationError(err):
			r.setFatal(err)
			return err
		default:
			r.logger.Debugf("reading %v effort: %v", side, err)
		}
	}

	_, err = ctrl.OnFeedback(ctx, sample)
	return err
}

func (r *Reposition) setFatal(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fatal = err
}

// Run ticks every interval until ctx ends or a ConfigurationError stops the loop.
func (r *Reposition) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.Tick(ctx); err != nil {
				if control.IsConfigurationError(err) {
					r.logger.Errorf("stopping reposition loop: %v", err)
					return err
				}
				r.logger.Debugf("reposition tick: %v", err)
			}
		}
	}
}

// Progress reports the side of the latest accepted request. Before any request it is Idle.
func (r *Reposition) Progress() control.Progress {
	r.mu.RLock()
	side, active := r.side, r.active
	r.mu.RUnlock()
	if !active {
		return control.Progress{State: control.Idle}
	}
	return r.reps[side].Progress()
}

// Err returns the ConfigurationError that stopped the runner, if any.
func (r *Reposition) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fatal
}
