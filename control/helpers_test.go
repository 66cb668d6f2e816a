package control

import (
	"context"
	"sync"
	"time"

	"github.com/golang/geo/r3"
)

type recordingSink struct {
	mu   sync.Mutex
	cmds []JointCommand
	err  error
}

func (s *recordingSink) Publish(_ context.Context, cmd JointCommand) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.cmds = append(s.cmds, cmd)
	return nil
}

func (s *recordingSink) commands() []JointCommand {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]JointCommand(nil), s.cmds...)
}

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func tick(i int) time.Time {
	return epoch.Add(time.Duration(i) * 100 * time.Millisecond)
}

func handDown(x, y, z float64) CartesianPose {
	return CartesianPose{
		Position:    r3.Vector{X: x, Y: y, Z: z},
		Orientation: Quaternion{Y: 1},
	}
}

func zeroJoints() []float64 {
	return make([]float64, JointsPerSide)
}
