package plushie_arm

import (
	"context"
	"fmt"
	"math"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"

	"plushie_arm/control"
)

// Gripper travel, in percent of the servo's range.
const (
	gripperOpenPercent   = 95.0
	gripperClosedPercent = 0.0

	// A gripper that stopped more than this short of closed has something in it.
	gripperHoldMargin = 5.0
)

// servoGripper is a gripper servo on the same bus as the arm joints. A release opens it; any
// other command closes it onto whatever is in the hand.
type servoGripper struct {
	shared *SharedBus
	group  *feetech.ServoGroup
	id     int
	side   control.Side
	logger logging.Logger
}

func newServoGripper(shared *SharedBus, side control.Side, id int, logger logging.Logger) *servoGripper {
	return &servoGripper{
		shared: shared,
		group:  feetech.NewServoGroupByIDs(shared.Bus, id),
		id:     id,
		side:   side,
		logger: logger,
	}
}

func (g *servoGripper) Enable(ctx context.Context) error {
	g.shared.mu.Lock()
	defer g.shared.mu.Unlock()
	return g.group.EnableAll(ctx)
}

func (g *servoGripper) Command(ctx context.Context, id int, command string) error {
	target := gripperClosedPercent
	if command == control.ReleaseCommand {
		target = gripperOpenPercent
	}
	g.logger.Debugf("%v gripper command %d %q, moving to %.1f%%", g.side, id, command, target)

	g.shared.mu.Lock()
	defer g.shared.mu.Unlock()
	err := g.group.SetPositions(ctx, feetech.PositionMap{g.id: percentToRaw(target)})
	return errors.Wrapf(err, "moving %v gripper", g.side)
}

// IsHolding is true when the gripper rests between closed and open, i.e. it closed onto
// something and stopped early.
func (g *servoGripper) IsHolding(ctx context.Context) (bool, error) {
	g.shared.mu.Lock()
	raw, err := g.group.Positions(ctx)
	g.shared.mu.Unlock()
	if err != nil {
		return false, errors.Wrapf(err, "reading %v gripper", g.side)
	}
	v, ok := raw[g.id]
	if !ok {
		return false, fmt.Errorf("gripper servo %d did not report a position", g.id)
	}
	return holdingAt(rawToPercent(v)), nil
}

func holdingAt(percent float64) bool {
	return percent-gripperClosedPercent > gripperHoldMargin &&
		gripperOpenPercent-percent > gripperHoldMargin
}

func percentToRaw(percent float64) int {
	return int(math.Round(percent / 100 * (stsCountsPerRev - 1)))
}

func rawToPercent(raw int) float64 {
	percent := float64(raw) / (stsCountsPerRev - 1) * 100
	return math.Max(0, math.Min(100, percent))
}
