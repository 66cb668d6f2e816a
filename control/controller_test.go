package control

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.viam.com/rdk/logging"
)

func newTestController(t *testing.T, sink CommandSink, opts ...Option) *MotionController {
	return NewMotionController(sink, append([]Option{WithLogger(logging.NewTestLogger(t))}, opts...)...)
}

func TestAcceptRequiresCommandForCartesian(t *testing.T) {
	c := newTestController(t, &recordingSink{})
	err := c.Accept(Request{Target: NewCartesianTarget(Left, handDown(0.5, 0, 0.2))})
	assert.ErrorIs(t, err, ErrNoCommand)
	assert.Equal(t, Idle, c.State())
}

func TestIdempotentRepublish(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	c := newTestController(t, sink)

	target := StretchTarget(Left, -0.5)
	require.NoError(t, c.Accept(Request{Target: target}))
	assert.True(t, c.IsMoving())

	for i := 0; i < 10; i++ {
		st, err := c.OnFeedback(ctx, NewJointSample(tick(i), zeroJoints()))
		require.NoError(t, err)
		assert.Equal(t, Moving, st)
	}

	cmds := sink.commands()
	require.Len(t, cmds, 10)
	for _, cmd := range cmds {
		assert.Equal(t, cmds[0], cmd)
		assert.Equal(t, JointNames(Left), cmd.Names)
		assert.Equal(t, target.JointValues(), cmd.Positions)
	}

	// mutating a published command must not leak into the stored target
	cmds[0].Positions[0] = 42
	assert.Equal(t, target.JointValues(), c.Target().JointValues())
	assert.Equal(t, target.JointValues(), c.Command().Positions)
}

func TestConvergedIsTerminal(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	var transitions []State
	c := newTestController(t, sink, WithTransitionFunc(func(_, to State, _ Progress) {
		transitions = append(transitions, to)
	}))

	target := StretchTarget(Right, 0.3)
	require.NoError(t, c.Accept(Request{Target: target}))

	st, err := c.OnFeedback(ctx, NewJointSample(tick(0), target.JointValues()))
	require.NoError(t, err)
	assert.Equal(t, Converged, st)
	assert.Empty(t, sink.commands())

	st, err = c.OnFeedback(ctx, NewJointSample(tick(1), zeroJoints()))
	require.NoError(t, err)
	assert.Equal(t, Converged, st)
	assert.Empty(t, sink.commands())

	p := c.Progress()
	assert.True(t, p.Complete())
	assert.False(t, p.Stuck())
	assert.Equal(t, []State{Moving, Converged}, transitions)
}

func TestStallStopsCommanding(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	c := newTestController(t, sink)

	target := NewCartesianTarget(Left, handDown(0.5, 0.1, 0.1))
	cmd := JointCommand{Names: JointNames(Left), Positions: zeroJoints(), Mode: PositionMode}
	require.NoError(t, c.Accept(Request{Target: target, Command: cmd, DetectStall: true}))

	var st State
	for i := 0; i < 30 && st != Stuck; i++ {
		var err error
		st, err = c.OnFeedback(ctx, NewPoseSample(tick(i), handDown(0.5, 0.1, 0.25)).WithEffort(0.8))
		require.NoError(t, err)
	}
	assert.Equal(t, Stuck, st)
	assert.Equal(t, ReasonStall, c.Progress().Reason)
	// priming sample plus 16 matches; the 17th tick declares the stall without publishing
	assert.Len(t, sink.commands(), 16)

	_, err := c.OnFeedback(ctx, NewPoseSample(tick(40), handDown(0.5, 0.1, 0.25)).WithEffort(0.8))
	require.NoError(t, err)
	assert.Len(t, sink.commands(), 16)
	assert.True(t, c.IsStuck())
}

func TestStallOptOut(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	c := newTestController(t, sink)

	target := NewCartesianTarget(Left, handDown(0.5, 0.1, 0.1))
	cmd := JointCommand{Names: JointNames(Left), Positions: zeroJoints(), Mode: PositionMode}
	require.NoError(t, c.Accept(Request{Target: target, Command: cmd}))

	for i := 0; i < 1000; i++ {
		st, err := c.OnFeedback(ctx, NewPoseSample(tick(i), handDown(0.5, 0.1, 0.25)).WithEffort(0.8))
		require.NoError(t, err)
		require.Equal(t, Moving, st)
	}
	assert.Len(t, sink.commands(), 1000)
}

func TestAcceptResetsWindows(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t, &recordingSink{})

	target := NewCartesianTarget(Left, handDown(0.5, 0.1, 0.1))
	cmd := JointCommand{Names: JointNames(Left), Positions: zeroJoints(), Mode: PositionMode}
	require.NoError(t, c.Accept(Request{Target: target, Command: cmd, DetectStall: true}))
	for i := 0; i < 15; i++ {
		_, err := c.OnFeedback(ctx, NewPoseSample(tick(i), handDown(0.5, 0.1, 0.25)).WithEffort(0.8))
		require.NoError(t, err)
	}

	// a new target while moving silently replaces the old one and starts counting again
	require.NoError(t, c.Accept(Request{Target: target, Command: cmd, DetectStall: true}))
	for i := 15; i < 31; i++ {
		st, err := c.OnFeedback(ctx, NewPoseSample(tick(i), handDown(0.5, 0.1, 0.25)).WithEffort(0.8))
		require.NoError(t, err)
		require.Equal(t, Moving, st, "tick %d", i)
	}
	st, err := c.OnFeedback(ctx, NewPoseSample(tick(31), handDown(0.5, 0.1, 0.25)).WithEffort(0.8))
	require.NoError(t, err)
	assert.Equal(t, Stuck, st)
}

func TestPublishErrorKeepsMoving(t *testing.T) {
	sink := &recordingSink{err: errors.New("link down")}
	c := newTestController(t, sink)
	require.NoError(t, c.Accept(Request{Target: StretchTarget(Left, 0)}))

	st, err := c.OnFeedback(context.Background(), NewJointSample(tick(0), zeroJoints()))
	assert.ErrorContains(t, err, "link down")
	assert.Equal(t, Moving, st)
	assert.True(t, c.IsMoving())
}

func TestFail(t *testing.T) {
	sink := &recordingSink{}
	c := newTestController(t, sink)
	target := NewCartesianTarget(Left, handDown(0.9, 0, 0))

	c.Fail(target, ReasonUnreachable)
	p := c.Progress()
	assert.True(t, p.Stuck())
	assert.True(t, p.Complete())
	assert.Equal(t, ReasonUnreachable, p.Reason)

	st, err := c.OnFeedback(context.Background(), NewPoseSample(tick(0), handDown(0, 0, 0)))
	require.NoError(t, err)
	assert.Equal(t, Stuck, st)
	assert.Empty(t, sink.commands())
}
