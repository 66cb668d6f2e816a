package control

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Delivery defaults.
const (
	ReleaseCommandID = 65538
	ReleaseCommand   = "release"
	DefaultSettle    = time.Second

	// reachOffset is how far the shoulder pans past the detected head angle.
	reachOffset = 0.8
)

// Names of the delivery phases.
const (
	PhaseStretch = "stretch"
	PhaseRelease = "release"
	PhaseReturn  = "return"
)

// ReachPan maps a detected head pan angle to the shoulder pan that reaches toward it. A head
// turned toward the arm's own side pins the pan at ±0.8; otherwise the arm reaches 0.8 beyond the
// head angle, mirrored per side.
func ReachPan(side Side, headPan float64) float64 {
	switch {
	case side == Left && headPan < 0:
		return -reachOffset
	case side == Right && headPan > 0:
		return reachOffset
	default:
		return headPan - mirror(side, reachOffset)
	}
}

// StretchTarget is the outstretched pose that offers the held object at the head angle.
func StretchTarget(side Side, headPan float64) PoseTarget {
	values := make([]float64, JointsPerSide)
	values[JointE0] = mirror(side, -1.5)
	values[JointE1] = 0.2
	values[JointS0] = ReachPan(side, headPan)
	values[JointS1] = 0
	values[JointW0] = mirror(side, 1.5)
	values[JointW1] = 0.3
	values[JointW2] = 0
	t, _ := NewJointTarget(side, JointNames(side), values)
	return t
}

// DeliveryPlan holds what a delivery needs beyond the arm itself.
type DeliveryPlan struct {
	Side      Side
	HeadPan   float64
	Gripper   GripperActuator
	Holding   HoldingSensor
	Button    *Latch
	CommandID int
	Settle    time.Duration
}

// Phases builds stretch, release and return. Release waits until the gripper no longer holds
// anything or the button latch is set, then sends the release command and clears the latch.
// Return goes back to the joint positions of the origin sample.
func (p DeliveryPlan) Phases() []Phase {
	id := p.CommandID
	if id == 0 {
		id = ReleaseCommandID
	}
	settle := p.Settle
	if settle == 0 {
		settle = DefaultSettle
	}
	side := p.Side
	headPan := p.HeadPan

	return []Phase{
		{
			Name: PhaseStretch,
			Kind: MovePhase,
			Target: func(FeedbackSample) (PoseTarget, error) {
				return StretchTarget(side, headPan), nil
			},
		},
		{
			Name:   PhaseRelease,
			Kind:   ActionPhase,
			Settle: settle,
			Ready: func(ctx context.Context) (bool, error) {
				if p.Button != nil && p.Button.Pressed() {
					return true, nil
				}
				if p.Holding == nil {
					return true, nil
				}
				holding, err := p.Holding.IsHolding(ctx)
				if err != nil {
					return false, err
				}
				return !holding, nil
			},
			Do: func(ctx context.Context) error {
				if p.Button != nil {
					p.Button.Clear()
				}
				if p.Gripper == nil {
					return nil
				}
				return errors.Wrap(p.Gripper.Command(ctx, id, ReleaseCommand), "releasing gripper")
			},
		},
		{
			Name: PhaseReturn,
			Kind: MovePhase,
			Target: func(origin FeedbackSample) (PoseTarget, error) {
				if len(origin.Joints) != JointsPerSide {
					return PoseTarget{}, errors.Errorf("origin sample has %d joints, want %d", len(origin.Joints), JointsPerSide)
				}
				return NewJointTarget(side, JointNames(side), origin.Joints)
			},
		},
	}
}
