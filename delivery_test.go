package plushie_arm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.viam.com/rdk/logging"

	"plushie_arm/control"
	"plushie_arm/sim"
)

type deliveryRig struct {
	arm      *sim.Arm
	hand     *sim.Hand
	button   *sim.Button
	delivery *Delivery
	events   []control.Event
	slept    []time.Duration
}

func newDeliveryRig(t *testing.T) *deliveryRig {
	rig := &deliveryRig{
		arm:    sim.New(sim.Config{MaxStep: 0.3}),
		hand:   sim.NewHand(),
		button: &sim.Button{},
	}
	rig.delivery = NewDelivery(
		map[control.Side]JointLimb{
			control.Left:  rig.arm.Limb(control.Left),
			control.Right: rig.arm.Limb(control.Right),
		},
		map[control.Side]Hand{control.Left: rig.hand},
		map[control.Side]ButtonReader{control.Left: rig.button},
		DeliveryOptions{
			Settle: time.Second,
			Sleep: func(_ context.Context, d time.Duration) bool {
				rig.slept = append(rig.slept, d)
				return true
			},
			OnEvent: func(ev control.Event) { rig.events = append(rig.events, ev) },
		},
		logging.NewTestLogger(t),
	)
	return rig
}

func (rig *deliveryRig) run(t *testing.T, ticks int, until func() bool) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < ticks; i++ {
		require.NoError(t, rig.delivery.Tick(ctx))
		if until != nil && until() {
			return
		}
		rig.arm.Step()
	}
}

func TestDeliveryEndToEnd(t *testing.T) {
	rig := newDeliveryRig(t)
	origin := []float64{0.1, 0.5, 0.0, -0.2, 0.3, 0.9, 0.0}
	rig.arm.SetJoints(control.Left, origin)

	require.NoError(t, rig.delivery.Deliver(control.Left, -0.5, false))
	assert.False(t, rig.delivery.Status().Complete())
	assert.ErrorIs(t, rig.delivery.Deliver(control.Left, 0.2, false), control.ErrSequenceActive)

	rig.run(t, 50, func() bool { return rig.delivery.Status().Phase == control.PhaseRelease })
	stretch := control.StretchTarget(control.Left, -0.5).JointValues()
	assert.InDeltaSlice(t, stretch, rig.arm.Joints(control.Left), 0.1)

	// still holding, nobody pressed the button
	rig.run(t, 5, nil)
	assert.Equal(t, control.PhaseRelease, rig.delivery.Status().Phase)
	assert.Empty(t, rig.hand.Commands())

	rig.hand.Take()
	rig.run(t, 50, func() bool { return rig.delivery.Status().Complete() })

	st := rig.delivery.Status()
	assert.Equal(t, control.SequenceFinished, st.Status)
	assert.Equal(t, []string{"65538:release"}, rig.hand.Commands())
	assert.Equal(t, []time.Duration{time.Second}, rig.slept)
	assert.InDeltaSlice(t, origin, rig.arm.Joints(control.Left), 0.1)
	assert.Equal(t, 0, rig.arm.Publishes(control.Right))

	var kinds []control.EventKind
	for _, ev := range rig.events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []control.EventKind{
		control.PhaseStarted, control.PhaseConverged,
		control.PhaseStarted, control.ActionPerformed,
		control.PhaseStarted, control.PhaseConverged,
		control.SequenceDone,
	}, kinds)
}

func TestDeliveryButtonOverride(t *testing.T) {
	rig := newDeliveryRig(t)
	require.NoError(t, rig.delivery.Deliver(control.Left, 0.4, false))
	rig.run(t, 50, func() bool { return rig.delivery.Status().Phase == control.PhaseRelease })

	rig.button.Set(true)
	rig.run(t, 1, nil)
	rig.button.Set(false)
	assert.Equal(t, []string{"65538:release"}, rig.hand.Commands())
	assert.Equal(t, control.PhaseReturn, rig.delivery.Status().Phase)
}

func TestDeliveryForceRestart(t *testing.T) {
	rig := newDeliveryRig(t)
	require.NoError(t, rig.delivery.Deliver(control.Left, 0.4, false))
	rig.run(t, 2, nil)

	require.NoError(t, rig.delivery.Deliver(control.Right, 0.4, true))
	require.NotEmpty(t, rig.events)
	replaced := rig.events[len(rig.events)-1]
	assert.Equal(t, control.SequenceFailed, replaced.Kind)
	assert.ErrorIs(t, replaced.Err, ErrDeliveryReplaced)

	st := rig.delivery.Status()
	assert.Equal(t, control.Right, st.Side)
	assert.Equal(t, control.SequenceRunning, st.Status)

	rig.run(t, 50, func() bool { return rig.delivery.Status().Phase == control.PhaseRelease })
	// the right side has no gripper, so release goes straight through
	rig.run(t, 50, func() bool { return rig.delivery.Status().Complete() })
	assert.Equal(t, control.SequenceFinished, rig.delivery.Status().Status)
	assert.Greater(t, rig.arm.Publishes(control.Right), 0)
	assert.Empty(t, rig.hand.Commands())
}

type brokenLimb struct {
	*sim.Limb
}

func (brokenLimb) JointSample(context.Context) (control.FeedbackSample, error) {
	return control.JointStateSample(control.Left, []string{"left_e0"}, []float64{0}, time.Time{})
}

func TestDeliveryConfigurationErrorIsFatal(t *testing.T) {
	arm := sim.New(sim.Config{})
	d := NewDelivery(
		map[control.Side]JointLimb{control.Left: brokenLimb{arm.Limb(control.Left)}},
		nil, nil, DeliveryOptions{}, logging.NewTestLogger(t),
	)
	require.NoError(t, d.Deliver(control.Left, 0, false))

	err := d.Tick(context.Background())
	require.Error(t, err)
	assert.True(t, control.IsConfigurationError(err))
	assert.Equal(t, control.SequenceAborted, d.Status().Status)

	assert.True(t, control.IsConfigurationError(d.Deliver(control.Left, 0, false)))
	assert.True(t, control.IsConfigurationError(d.Tick(context.Background())))

	runErr := d.Run(context.Background(), time.Millisecond)
	assert.True(t, control.IsConfigurationError(runErr))

	svc := &deliveryService{delivery: d, logger: logging.NewTestLogger(t)}
	_, err = svc.DoCommand(context.Background(), map[string]interface{}{"command": "status"})
	assert.True(t, control.IsConfigurationError(err))
}

func TestDeliveryDoCommand(t *testing.T) {
	ctx := context.Background()
	rig := newDeliveryRig(t)
	svc := &deliveryService{delivery: rig.delivery, logger: logging.NewTestLogger(t)}

	resp, err := svc.DoCommand(ctx, map[string]interface{}{"command": "is_complete"})
	require.NoError(t, err)
	assert.Equal(t, true, resp["is_complete"])

	_, err = svc.DoCommand(ctx, map[string]interface{}{"command": "deliver", "head_pos": 0.1})
	assert.ErrorContains(t, err, "is_left")

	resp, err = svc.DoCommand(ctx, map[string]interface{}{"command": "deliver", "is_left": true, "head_pos": -0.5})
	require.NoError(t, err)
	assert.Equal(t, -0.8, resp["reach"])

	resp, err = svc.DoCommand(ctx, map[string]interface{}{"command": "status"})
	require.NoError(t, err)
	assert.Equal(t, "running", resp["status"])
	assert.Equal(t, "left", resp["side"])
	assert.Equal(t, false, resp["is_complete"])

	_, err = svc.DoCommand(ctx, map[string]interface{}{"command": "press_button"})
	require.NoError(t, err)

	_, err = svc.DoCommand(ctx, map[string]interface{}{"command": "dance"})
	assert.ErrorContains(t, err, "unknown command")
}
