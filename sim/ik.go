package sim

import (
	"context"
	"sync"

	"plushie_arm/control"
)

// IK solves for the simulated arm. Points farther than Reach from the shoulder or below MinZ are
// unreachable.
type IK struct {
	Reach float64
	MinZ  float64

	mu       sync.Mutex
	requests []control.IKRequest
}

// NewIK returns a solver with a 0.9 reach and no floor below -0.5.
func NewIK() *IK {
	return &IK{Reach: 0.9, MinZ: -0.5}
}

func (s *IK) Solve(_ context.Context, req control.IKRequest) (control.IKSolution, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	p := req.Pose.Position
	if p.Norm() > s.Reach || p.Z < s.MinZ {
		return control.IKSolution{}, nil
	}
	return control.IKSolution{
		Valid:     true,
		Names:     control.JointNames(req.Side),
		Positions: inverse(req.Pose),
	}, nil
}

// Requests returns every request seen so far.
func (s *IK) Requests() []control.IKRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]control.IKRequest(nil), s.requests...)
}
