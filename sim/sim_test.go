package sim

import (
	"context"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plushie_arm/control"
)

func TestStepApproachesCommand(t *testing.T) {
	ctx := context.Background()
	arm := New(Config{MaxStep: 0.5})
	limb := arm.Limb(control.Left)

	target := control.StretchTarget(control.Left, -0.5)
	require.NoError(t, limb.Publish(ctx, target.Command()))

	start := arm.Now()
	for i := 0; i < 10; i++ {
		arm.Step()
	}
	s, err := limb.JointSample(ctx)
	require.NoError(t, err)
	assert.Equal(t, target.JointValues(), s.Joints)
	assert.Equal(t, start.Add(10*arm.cfg.Tick), s.Time)
	assert.Equal(t, make([]float64, control.JointsPerSide), arm.Joints(control.Right))
	assert.Equal(t, 1, arm.Publishes(control.Left))
}

func TestPublishRejectsOtherSide(t *testing.T) {
	err := New(Config{}).Limb(control.Right).Publish(context.Background(), control.StretchTarget(control.Left, 0).Command())
	assert.Error(t, err)
}

func TestPublishRejectsShortCommand(t *testing.T) {
	arm := New(Config{})
	cmd := control.StretchTarget(control.Left, 0).Command()
	cmd.Positions = cmd.Positions[:3]

	err := arm.Limb(control.Left).Publish(context.Background(), cmd)
	assert.ErrorContains(t, err, "3 positions for 7 joints")
	assert.Equal(t, 0, arm.Publishes(control.Left))
}

func TestFloorBlocksHand(t *testing.T) {
	ctx := context.Background()
	arm := New(Config{})
	arm.SetJoints(control.Left, []float64{0.5, 0.1, 0.4, 0, 1, 0, 0})
	arm.SetFloor(0.2)
	limb := arm.Limb(control.Left)

	cmd := control.JointCommand{
		Names:     control.JointNames(control.Left),
		Positions: []float64{0.5, 0.1, 0.0, 0, 1, 0, 0},
		Mode:      control.PositionMode,
	}
	require.NoError(t, limb.Publish(ctx, cmd))
	for i := 0; i < 5; i++ {
		arm.Step()
	}

	s, err := limb.EndpointSample(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.2, s.Pose.Position.Z)
	effort, err := limb.Effort(ctx)
	require.NoError(t, err)
	assert.Equal(t, blockedEffort, effort)

	arm.ClearFloor()
	for i := 0; i < 5; i++ {
		arm.Step()
	}
	s, err = limb.EndpointSample(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.0, s.Pose.Position.Z)
}

func TestIK(t *testing.T) {
	ctx := context.Background()
	ik := NewIK()

	pose := control.CartesianPose{Position: r3.Vector{X: 0.5, Y: 0.1, Z: 0.2}, Orientation: control.Quaternion{Y: 1}}
	sol, err := ik.Solve(ctx, control.IKRequest{Side: control.Right, Pose: pose})
	require.NoError(t, err)
	assert.True(t, sol.Valid)
	assert.Equal(t, control.JointNames(control.Right), sol.Names)
	assert.Equal(t, pose, forward(sol.Positions))

	far := control.CartesianPose{Position: r3.Vector{X: 0.84, Y: 0.5, Z: 0.2}}
	sol, err = ik.Solve(ctx, control.IKRequest{Side: control.Right, Pose: far})
	require.NoError(t, err)
	assert.False(t, sol.Valid)
	assert.Len(t, ik.Requests(), 2)
}

func TestHand(t *testing.T) {
	ctx := context.Background()
	h := NewHand()
	holding, _ := h.IsHolding(ctx)
	assert.True(t, holding)

	require.NoError(t, h.Command(ctx, 65538, "release"))
	holding, _ = h.IsHolding(ctx)
	assert.False(t, holding)
	assert.Equal(t, []string{"65538:release"}, h.Commands())
}
