package plushie_arm

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"

	"plushie_arm/control"
)

// STS3215 position encoding: 4096 counts per revolution, centered at 2048.
const (
	stsCenter       = 2048
	stsCountsPerRev = 4096
)

func radiansToRaw(rad float64) int {
	return stsCenter + int(math.Round(rad*stsCountsPerRev/(2*math.Pi)))
}

func rawToRadians(raw int) float64 {
	return float64(raw-stsCenter) * 2 * math.Pi / stsCountsPerRev
}

// servoLimb drives one side's seven servos directly over a shared feetech bus. Servo ids are
// listed in control.JointNames order.
type servoLimb struct {
	shared *SharedBus
	group  *feetech.ServoGroup
	ids    []int
	side   control.Side
	now    func() time.Time
}

func newServoLimb(shared *SharedBus, side control.Side, ids []int) *servoLimb {
	return &servoLimb{
		shared: shared,
		group:  feetech.NewServoGroupByIDs(shared.Bus, ids...),
		ids:    append([]int(nil), ids...),
		side:   side,
		now:    time.Now,
	}
}

// Enable turns on torque for the side.
func (l *servoLimb) Enable(ctx context.Context) error {
	l.shared.mu.Lock()
	defer l.shared.mu.Unlock()
	return l.group.EnableAll(ctx)
}

func (l *servoLimb) Publish(ctx context.Context, cmd control.JointCommand) error {
	positions, err := orderCommand(l.side, cmd)
	if err != nil {
		return err
	}
	raw := make(feetech.PositionMap, len(l.ids))
	for i, id := range l.ids {
		raw[id] = radiansToRaw(positions[i])
	}

	l.shared.mu.Lock()
	defer l.shared.mu.Unlock()
	return errors.Wrapf(l.group.SetPositions(ctx, raw), "writing %v positions", l.side)
}

func (l *servoLimb) JointSample(ctx context.Context) (control.FeedbackSample, error) {
	l.shared.mu.Lock()
	raw, err := l.group.Positions(ctx)
	l.shared.mu.Unlock()
	if err != nil {
		return control.FeedbackSample{}, errors.Wrapf(err, "reading %v positions", l.side)
	}

	names := control.JointNames(l.side)
	positions := make([]float64, len(l.ids))
	for i, id := range l.ids {
		v, ok := raw[id]
		if !ok {
			return control.FeedbackSample{}, fmt.Errorf("servo %d (%s) did not report a position", id, names[i])
		}
		positions[i] = rawToRadians(v)
	}
	return control.NewJointSample(l.now(), positions), nil
}

// servoBackend is everything built on one shared bus.
type servoBackend struct {
	limbs    map[control.Side]*servoLimb
	grippers map[control.Side]*servoGripper
	release  func()
}

// servoLimbs acquires the configured bus and builds a limb per side, plus a gripper for each
// side with a gripper id.
func servoLimbs(ctx context.Context, registry *BusRegistry, cfg *ServoBusConfig, logger logging.Logger) (*servoBackend, error) {
	shared, err := registry.Acquire(*cfg)
	if err != nil {
		return nil, err
	}
	b := &servoBackend{
		limbs: map[control.Side]*servoLimb{
			control.Left:  newServoLimb(shared, control.Left, cfg.ServoIDsLeft),
			control.Right: newServoLimb(shared, control.Right, cfg.ServoIDsRight),
		},
		grippers: map[control.Side]*servoGripper{},
		release:  func() { registry.Release(cfg.Port) },
	}
	for side, id := range map[control.Side]int{control.Left: cfg.GripperIDLeft, control.Right: cfg.GripperIDRight} {
		if id != 0 {
			b.grippers[side] = newServoGripper(shared, side, id, logger)
		}
	}

	for side, limb := range b.limbs {
		if err := limb.Enable(ctx); err != nil {
			b.release()
			return nil, errors.Wrapf(err, "enabling %v servos", side)
		}
	}
	for side, g := range b.grippers {
		if err := g.Enable(ctx); err != nil {
			b.release()
			return nil, errors.Wrapf(err, "enabling %v gripper", side)
		}
	}
	return b, nil
}
