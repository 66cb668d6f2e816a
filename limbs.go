package plushie_arm

import (
	"context"
	"sync"

	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"

	"plushie_arm/control"
)

// JointLimb is one arm side driven by joint commands.
type JointLimb interface {
	control.CommandSink
	// JointSample returns the side's joint positions in control.JointNames order.
	JointSample(ctx context.Context) (control.FeedbackSample, error)
}

// EndpointReader reports where a side's hand is.
type EndpointReader interface {
	EndpointSample(ctx context.Context) (control.FeedbackSample, error)
}

// EffortReader reports the designated shoulder effort for a side.
type EffortReader interface {
	Effort(ctx context.Context) (float64, error)
}

// Hand is a gripper that can be commanded and asked whether it holds something.
type Hand interface {
	control.GripperActuator
	control.HoldingSensor
}

// ButtonReader reads a manual override button.
type ButtonReader interface {
	Pressed(ctx context.Context) (bool, error)
}

// commandPump turns a blocking move call into a last-write-wins command sink. Publish never
// blocks: it replaces whatever command is pending and a single worker executes the latest one.
type commandPump struct {
	move   func(ctx context.Context, cmd control.JointCommand) error
	logger logging.Logger

	mu      sync.Mutex
	pending *control.JointCommand
	lastErr error
	wake    chan struct{}
	done    chan struct{}
}

func newCommandPump(ctx context.Context, move func(context.Context, control.JointCommand) error, logger logging.Logger) *commandPump {
	p := &commandPump{
		move:   move,
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go p.run(ctx)
	return p
}

// Publish queues cmd, replacing any command not yet started. The error is the one returned by the
// previous move, if any.
func (p *commandPump) Publish(_ context.Context, cmd control.JointCommand) error {
	c := cmd.Clone()
	p.mu.Lock()
	p.pending = &c
	err := p.lastErr
	p.lastErr = nil
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
	return err
}

func (p *commandPump) run(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
		}

		p.mu.Lock()
		cmd := p.pending
		p.pending = nil
		p.mu.Unlock()
		if cmd == nil {
			continue
		}

		if err := p.move(ctx, *cmd); err != nil && ctx.Err() == nil {
			p.logger.Debugf("move failed: %v", err)
			p.mu.Lock()
			p.lastErr = err
			p.mu.Unlock()
		}
	}
}

// Wait blocks until the worker has exited after its context ended.
func (p *commandPump) Wait() {
	<-p.done
}

// sideBackend is one JointLimb per configured side. rdk arms also serve as endpoint readers;
// bus grippers become hands.
type sideBackend struct {
	limbs     map[control.Side]JointLimb
	endpoints map[control.Side]EndpointReader
	hands     map[control.Side]Hand
	// cleanup stops background workers and releases the bus.
	cleanup func()
}

// sideLimbs resolves the configured backend, either a servo bus or a pair of rdk arms.
func sideLimbs(
	ctx context.Context,
	deps resource.Dependencies,
	armLeft, armRight string,
	bus *ServoBusConfig,
	registry *BusRegistry,
	logger logging.Logger,
) (*sideBackend, error) {
	b := &sideBackend{
		limbs:     map[control.Side]JointLimb{},
		endpoints: map[control.Side]EndpointReader{},
		hands:     map[control.Side]Hand{},
	}

	if bus != nil {
		cfg := *bus
		if cfg.Port == AutoPort {
			port, err := detectServoPort(ctx, cfg, logger)
			if err != nil {
				return nil, err
			}
			cfg.Port = port
		}
		servos, err := servoLimbs(ctx, registry, &cfg, logger)
		if err != nil {
			return nil, err
		}
		for side, l := range servos.limbs {
			b.limbs[side] = l
		}
		for side, g := range servos.grippers {
			b.hands[side] = g
		}
		b.cleanup = servos.release
		return b, nil
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	var pumps []*commandPump
	b.cleanup = func() {
		cancel()
		for _, p := range pumps {
			p.Wait()
		}
	}
	for side, name := range map[control.Side]string{control.Left: armLeft, control.Right: armRight} {
		if name == "" {
			continue
		}
		a, err := lookupArm(deps, name)
		if err != nil {
			b.cleanup()
			return nil, err
		}
		l := newArmLimb(pumpCtx, a, side, logger)
		pumps = append(pumps, l.pump)
		b.limbs[side] = l
		b.endpoints[side] = l
	}
	return b, nil
}
