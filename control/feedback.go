package control

import "time"

// FeedbackSample is one sensor observation. Joint-space controllers read Joints (ordered like the
// target's joint names); Cartesian controllers read Pose and, when HasEffort is set, Effort from the
// designated shoulder joint. Effort and pose arrive on separate channels, so a sample may carry only
// one of them.
type FeedbackSample struct {
	Time      time.Time
	Joints    []float64
	Pose      *CartesianPose
	Effort    float64
	HasEffort bool
}

// NewJointSample builds a joint-position sample, copying positions.
func NewJointSample(t time.Time, positions []float64) FeedbackSample {
	return FeedbackSample{Time: t, Joints: append([]float64(nil), positions...)}
}

// NewPoseSample builds an endpoint sample.
func NewPoseSample(t time.Time, pose CartesianPose) FeedbackSample {
	return FeedbackSample{Time: t, Pose: &pose}
}

// NewEffortSample builds an effort-only sample.
func NewEffortSample(t time.Time, effort float64) FeedbackSample {
	return FeedbackSample{Time: t, Effort: effort, HasEffort: true}
}

// WithEffort returns a copy of s carrying an effort reading.
func (s FeedbackSample) WithEffort(effort float64) FeedbackSample {
	s.Effort = effort
	s.HasEffort = true
	return s
}

// JointStateSample extracts a side's 7 joint positions, in JointNames order, from a full joint
// state message. A missing joint is a *ConfigurationError.
func JointStateSample(side Side, names []string, positions []float64, t time.Time) (FeedbackSample, error) {
	index := make(map[string]int, len(names))
	for i, n := range names {
		index[n] = i
	}
	want := JointNames(side)
	out := make([]float64, len(want))
	for i, name := range want {
		j, ok := index[name]
		if !ok {
			return FeedbackSample{}, &ConfigurationError{Joint: name, Reason: "not found in joint state"}
		}
		if j >= len(positions) {
			return FeedbackSample{}, &ConfigurationError{Joint: name, Reason: "has no position value"}
		}
		out[i] = positions[j]
	}
	return FeedbackSample{Time: t, Joints: out}, nil
}

// EffortSample extracts the designated shoulder effort for a side from a joint state message.
func EffortSample(side Side, names []string, efforts []float64, t time.Time) (FeedbackSample, error) {
	joint := EffortJoint(side)
	for i, n := range names {
		if n != joint {
			continue
		}
		if i >= len(efforts) {
			return FeedbackSample{}, &ConfigurationError{Joint: joint, Reason: "has no effort value"}
		}
		return NewEffortSample(t, efforts[i]), nil
	}
	return FeedbackSample{}, &ConfigurationError{Joint: joint, Reason: "not found in joint state"}
}
