package plushie_arm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.viam.com/rdk/components/arm"
	"go.viam.com/rdk/components/gripper"
	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/referenceframe"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/spatialmath"

	"plushie_arm/control"
)

type fakeArm struct {
	arm.Arm

	joints []float64
	pose   spatialmath.Pose
	moves  chan []float64
}

func (a *fakeArm) JointPositions(context.Context, map[string]interface{}) ([]referenceframe.Input, error) {
	return append([]referenceframe.Input(nil), a.joints...), nil
}

func (a *fakeArm) MoveToJointPositions(_ context.Context, in []referenceframe.Input, _ map[string]interface{}) error {
	a.moves <- append([]float64(nil), in...)
	return nil
}

func (a *fakeArm) EndPosition(context.Context, map[string]interface{}) (spatialmath.Pose, error) {
	return a.pose, nil
}

func TestOrderCommand(t *testing.T) {
	names := control.JointNames(control.Right)
	reversed := make([]string, len(names))
	values := make([]float64, len(names))
	for i := range names {
		reversed[i] = names[len(names)-1-i]
		values[i] = float64(len(names) - 1 - i)
	}

	got, err := orderCommand(control.Right, control.JointCommand{Names: reversed, Positions: values})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 2, 3, 4, 5, 6}, got)

	_, err = orderCommand(control.Left, control.JointCommand{Names: reversed, Positions: values})
	assert.ErrorContains(t, err, "no value for")
}

func TestArmLimb(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fake := &fakeArm{
		joints: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 9},
		pose:   spatialmath.NewPoseFromPoint(r3.Vector{X: 1, Y: 2, Z: 3}),
		moves:  make(chan []float64, 1),
	}
	limb := newArmLimb(ctx, fake, control.Left, logging.NewTestLogger(t))

	sample, err := limb.JointSample(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7}, sample.Joints)

	ep, err := limb.EndpointSample(ctx)
	require.NoError(t, err)
	require.NotNil(t, ep.Pose)
	assert.Equal(t, r3.Vector{X: 1, Y: 2, Z: 3}, ep.Pose.Position)
	assert.InDelta(t, 1.0, ep.Pose.Orientation.W, 1e-9)

	want := []float64{1, 2, 3, 4, 5, 6, 7}
	require.NoError(t, limb.Publish(ctx, control.JointCommand{Names: control.JointNames(control.Left), Positions: want}))
	select {
	case got := <-fake.moves:
		assert.Equal(t, want, got)
	case <-time.After(time.Second):
		t.Fatal("command never reached the arm")
	}

	fake.joints = []float64{0.1, 0.2}
	_, err = limb.JointSample(ctx)
	assert.True(t, control.IsConfigurationError(err))
}

func TestCommandPumpLastWriteWins(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	unblock := make(chan struct{})
	var mu sync.Mutex
	var seen []float64
	move := func(_ context.Context, cmd control.JointCommand) error {
		mu.Lock()
		seen = append(seen, cmd.Positions[0])
		first := len(seen) == 1
		mu.Unlock()
		if first {
			close(started)
			<-unblock
			return errors.New("servo fault")
		}
		return nil
	}
	pump := newCommandPump(ctx, move, logging.NewTestLogger(t))
	publish := func(v float64) error {
		return pump.Publish(ctx, control.JointCommand{Names: []string{"j"}, Positions: []float64{v}})
	}

	require.NoError(t, publish(1))
	<-started
	for _, v := range []float64{2, 3, 4} {
		require.NoError(t, publish(v))
	}
	close(unblock)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, []float64{1, 4}, seen)
	mu.Unlock()

	// the failed first move surfaces on the next publish, once
	assert.ErrorContains(t, publish(5), "servo fault")
	assert.NoError(t, publish(6))

	cancel()
	pump.Wait()
}

type fakeSensor struct {
	sensor.Sensor
	readings map[string]interface{}
}

func (s *fakeSensor) Readings(context.Context, map[string]interface{}) (map[string]interface{}, error) {
	return s.readings, nil
}

func TestSensorEffort(t *testing.T) {
	ctx := context.Background()
	joint := control.EffortJoint(control.Left)
	sens := &fakeSensor{readings: map[string]interface{}{joint: float32(1.5), "other": "x"}}

	v, err := (&sensorEffort{sensor: sens, joint: joint}).Effort(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1.5, v)

	_, err = (&sensorEffort{sensor: sens, joint: "missing"}).Effort(ctx)
	assert.True(t, control.IsConfigurationError(err))

	_, err = (&sensorEffort{sensor: sens, joint: "other"}).Effort(ctx)
	assert.ErrorContains(t, err, "expected a number")
}

func TestToFloat(t *testing.T) {
	for _, v := range []interface{}{2.0, float32(2), 2, int64(2)} {
		got, err := toFloat(v)
		require.NoError(t, err)
		assert.Equal(t, 2.0, got)
	}
	_, err := toFloat("2")
	assert.Error(t, err)
}

func TestParseIKResponse(t *testing.T) {
	sol, err := parseIKResponse(map[string]interface{}{
		"valid":     true,
		"names":     []interface{}{"left_s0", "left_s1"},
		"positions": []interface{}{0.5, 1},
	})
	require.NoError(t, err)
	assert.Equal(t, control.IKSolution{Valid: true, Names: []string{"left_s0", "left_s1"}, Positions: []float64{0.5, 1}}, sol)

	sol, err = parseIKResponse(map[string]interface{}{"valid": false, "names": []interface{}{"x"}})
	require.NoError(t, err)
	assert.False(t, sol.Valid)

	_, err = parseIKResponse(map[string]interface{}{"valid": true, "names": []interface{}{"a"}, "positions": []interface{}{}})
	assert.ErrorContains(t, err, "1 names for 0 positions")

	_, err = parseIKResponse(map[string]interface{}{"valid": true, "names": []interface{}{7}, "positions": []interface{}{1.0}})
	assert.ErrorContains(t, err, "not a string")

	_, err = parseIKResponse(map[string]interface{}{"valid": true, "names": []interface{}{"a"}, "positions": []interface{}{"1"}})
	assert.ErrorContains(t, err, "IK position for a")
}

type fakeIKResource struct {
	resource.Resource
	got map[string]interface{}
}

func (f *fakeIKResource) DoCommand(_ context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	f.got = cmd
	return map[string]interface{}{"valid": true, "names": []interface{}{"right_e0"}, "positions": []interface{}{0.25}}, nil
}

func TestIKServiceSolve(t *testing.T) {
	res := &fakeIKResource{}
	stamp := time.Unix(12, 34)
	sol, err := (&ikService{svc: res}).Solve(context.Background(), control.IKRequest{
		Side:  control.Right,
		Frame: "base",
		Stamp: stamp,
		Pose: control.CartesianPose{
			Position:    r3.Vector{X: 0.5, Y: -0.2, Z: 0.1},
			Orientation: control.Quaternion{W: 1},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.25}, sol.Positions)

	assert.Equal(t, "solve_ik", res.got["command"])
	assert.Equal(t, control.LimbName(control.Right), res.got["limb"])
	assert.Equal(t, "base", res.got["frame"])
	assert.Equal(t, stamp.UnixNano(), res.got["stamp"])
	pose := res.got["pose"].(map[string]interface{})
	assert.Equal(t, 0.5, pose["x"])
	assert.Equal(t, 1.0, pose["ow"])
}

type fakeGripper struct {
	gripper.Gripper
	calls   []string
	holding bool
}

func (g *fakeGripper) Open(_ context.Context, extra map[string]interface{}) error {
	g.calls = append(g.calls, "open")
	return nil
}

func (g *fakeGripper) Grab(context.Context, map[string]interface{}) (bool, error) {
	g.calls = append(g.calls, "grab")
	return true, nil
}

func (g *fakeGripper) IsHoldingSomething(context.Context, map[string]interface{}) (gripper.HoldingStatus, error) {
	return gripper.HoldingStatus{IsHoldingSomething: g.holding}, nil
}

func TestGripperHand(t *testing.T) {
	ctx := context.Background()
	g := &fakeGripper{holding: true}
	hand := &gripperHand{gripper: g}

	require.NoError(t, hand.Command(ctx, control.ReleaseCommandID, control.ReleaseCommand))
	require.NoError(t, hand.Command(ctx, 1, "grip"))
	assert.Equal(t, []string{"open", "grab"}, g.calls)

	holding, err := hand.IsHolding(ctx)
	require.NoError(t, err)
	assert.True(t, holding)
}
