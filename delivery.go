package plushie_arm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"

	"plushie_arm/control"
)

// ErrDeliveryReplaced aborts a running delivery that a forced Deliver replaces.
var ErrDeliveryReplaced = errors.New("replaced by new delivery")

// DeliveryOptions tunes a Delivery.
type DeliveryOptions struct {
	Settle           time.Duration
	ReleaseCommandID int
	Sleep            control.SleepFunc
	OnEvent          control.EventFunc
}

// DeliveryStatus is what the delivery service reports.
type DeliveryStatus struct {
	Status  control.SequenceStatus
	Phase   string
	Side    control.Side
	Err     error
	Fatal   error
	Started bool
}

// Complete is true when no delivery is running.
func (s DeliveryStatus) Complete() bool {
	return s.Status != control.SequenceRunning
}

// Delivery hands a held object over: stretch toward the detected head, release once the object
// is taken (or the button is pressed), then return to where the arm started.
type Delivery struct {
	limbs   map[control.Side]JointLimb
	hands   map[control.Side]Hand
	buttons map[control.Side]ButtonReader
	opts    DeliveryOptions
	logger  logging.Logger
	seq     *control.Sequencer
	latch   control.Latch

	deliverMu sync.Mutex

	mu      sync.RWMutex
	side    control.Side
	started bool
	fatal   error
}

// NewDelivery builds a delivery runner. Hands and buttons are optional per side.
func NewDelivery(
	limbs map[control.Side]JointLimb,
	hands map[control.Side]Hand,
	buttons map[control.Side]ButtonReader,
	opts DeliveryOptions,
	logger logging.Logger,
) *Delivery {
	d := &Delivery{
		limbs:   limbs,
		hands:   hands,
		buttons: buttons,
		opts:    opts,
		logger:  logger,
	}
	sink := control.CommandSinkFunc(func(ctx context.Context, cmd control.JointCommand) error {
		limb, ok := d.limbs[d.activeSide()]
		if !ok {
			return fmt.Errorf("no arm for %v", d.activeSide())
		}
		return limb.Publish(ctx, cmd)
	})
	ctrl := control.NewMotionController(sink, control.WithLogger(logger))

	seqOpts := []control.SequencerOption{control.WithSequencerLogger(logger)}
	if opts.Sleep != nil {
		seqOpts = append(seqOpts, control.WithSleep(opts.Sleep))
	}
	if opts.OnEvent != nil {
		seqOpts = append(seqOpts, control.WithEventFunc(opts.OnEvent))
	}
	d.seq = control.NewSequencer(ctrl, seqOpts...)
	return d
}

func (d *Delivery) activeSide() control.Side {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.side
}

// Deliver starts a delivery with the given arm toward headPan. With force, a running delivery
// is aborted first; without it, ErrSequenceActive is returned.
func (d *Delivery) Deliver(side control.Side, headPan float64, force bool) error {
	if err := d.Err(); err != nil {
		return err
	}
	if _, ok := d.limbs[side]; !ok {
		return fmt.Errorf("no arm configured for %v side", side)
	}
	d.deliverMu.Lock()
	defer d.deliverMu.Unlock()
	if force {
		d.seq.Abort(ErrDeliveryReplaced)
	}

	plan := control.DeliveryPlan{
		Side:      side,
		HeadPan:   headPan,
		Button:    &d.latch,
		CommandID: d.opts.ReleaseCommandID,
		Settle:    d.opts.Settle,
	}
	if hand, ok := d.hands[side]; ok {
		plan.Gripper = hand
		plan.Holding = hand
	}

	// side is switched before Start so the first tick publishes to the right limb
	if d.seq.Status() == control.SequenceRunning {
		return control.ErrSequenceActive
	}
	d.mu.Lock()
	d.side = side
	d.started = true
	d.mu.Unlock()
	d.latch.Clear()

	if err := d.seq.Start(plan.Phases()); err != nil {
		return err
	}
	d.logger.Infof("delivering with %v arm toward head pan %.3f", side, headPan)
	return nil
}

// PressButton latches the manual release override.
func (d *Delivery) PressButton() {
	d.latch.Press()
}

// Tick reads one round of feedback for the active side and advances the sequence. A
// ConfigurationError aborts the sequence and is kept; every later call returns it.
func (d *Delivery) Tick(ctx context.Context) error {
	if err := d.Err(); err != nil {
		return err
	}
	if d.seq.Status() != control.SequenceRunning {
		return nil
	}
	side := d.activeSide()

	if button, ok := d.buttons[side]; ok {
		pressed, err := button.Pressed(ctx)
		if err != nil {
			d.logger.Debugf("reading %v button: %v", side, err)
		} else if pressed {
			d.latch.Press()
		}
	}

	sample, err := d.limbs[side].JointSample(ctx)
	if err == nil {
		err = d.seq.OnFeedback(ctx, sample)
	}
	if err != nil && control.IsConfigurationError(err) {
		d.mu.Lock()
		d.fatal = err
		d.mu.Unlock()
		d.seq.Abort(err)
	}
	return err
}

// Run ticks every interval until ctx ends or a ConfigurationError stops the loop.
func (d *Delivery) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := d.Tick(ctx); err != nil {
				if control.IsConfigurationError(err) {
					d.logger.Errorf("stopping delivery loop: %v", err)
					return err
				}
				d.logger.Debugf("delivery tick: %v", err)
			}
		}
	}
}

// Status reports the current delivery.
func (d *Delivery) Status() DeliveryStatus {
	snap := d.seq.Snapshot()
	d.mu.RLock()
	defer d.mu.RUnlock()
	return DeliveryStatus{
		Status:  snap.Status,
		Phase:   snap.Phase,
		Side:    d.side,
		Err:     snap.Err,
		Fatal:   d.fatal,
		Started: d.started,
	}
}

// Err returns the ConfigurationError that stopped the runner, if any.
func (d *Delivery) Err() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.fatal
}

// Progress reports the active arm's controller.
func (d *Delivery) Progress() control.Progress {
	return d.seq.Controller().Progress()
}
