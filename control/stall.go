package control

import (
	"math"
	"time"
)

// StallPolicy holds the consistency tolerances and how long both windows must stay consistent.
// A window is consistent once its count exceeds MinTicks and, when MinDuration is positive, the
// sample timestamps it has spanned reach MinDuration. The duration gate keeps the real-time threshold
// stable when the feedback rate changes.
type StallPolicy struct {
	MinTicks             int
	MinDuration          time.Duration
	TorqueTolerance      float64
	PositionTolerance    float64
	OrientationTolerance float64
}

// DefaultStallPolicy declares a stall after more than 15 consistent samples.
var DefaultStallPolicy = StallPolicy{
	MinTicks:             15,
	TorqueTolerance:      0.15,
	PositionTolerance:    0.001,
	OrientationTolerance: 0.05,
}

// Approach is the vertical direction a Cartesian move is expected to travel. It gates stall
// detection: an arm that has already passed the target height is not stuck.
type Approach int

const (
	// Descend expects the hand to move down onto the target (the zero value).
	Descend Approach = iota
	// Ascend expects the hand to move up to the target.
	Ascend
	// AutoApproach infers the direction from the first endpoint sample after the target is accepted.
	AutoApproach
)

// tally is the bookkeeping shared by both consistency windows.
type tally struct {
	count  int
	primed bool
	since  time.Time
	latest time.Time
}

func (t *tally) match(ts time.Time) {
	t.count++
	t.latest = ts
}

func (t *tally) rebase(ts time.Time) {
	t.count = 0
	t.primed = true
	t.since = ts
	t.latest = ts
}

// Count is the number of strictly consecutive samples that matched the reference.
func (t *tally) Count() int { return t.count }

// Elapsed is the sample-time span covered by the current run of matches.
func (t *tally) Elapsed() time.Duration {
	if t.since.IsZero() || t.latest.IsZero() {
		return 0
	}
	return t.latest.Sub(t.since)
}

func (t *tally) consistent(p StallPolicy) bool {
	if t.count <= p.MinTicks {
		return false
	}
	return p.MinDuration <= 0 || t.Elapsed() >= p.MinDuration
}

// TorqueWindow tracks how long a scalar effort reading has stayed near its reference value.
type TorqueWindow struct {
	tally
	Reference float64
	Tolerance float64
}

// Observe counts v as a match if it is within tolerance of the reference, otherwise it resets the
// count and makes v the new reference.
func (w *TorqueWindow) Observe(v float64, ts time.Time) {
	if w.primed && math.Abs(v-w.Reference) < w.Tolerance {
		w.match(ts)
		return
	}
	w.Reference = v
	w.rebase(ts)
}

// PoseWindow tracks how long the endpoint pose has stayed near its reference pose.
type PoseWindow struct {
	tally
	Reference            CartesianPose
	PositionTolerance    float64
	OrientationTolerance float64
}

// Observe works like TorqueWindow.Observe on all seven pose components.
func (w *PoseWindow) Observe(p CartesianPose, ts time.Time) {
	if w.primed && posesWithin(p, w.Reference, w.PositionTolerance, w.OrientationTolerance) {
		w.match(ts)
		return
	}
	w.Reference = p
	w.rebase(ts)
}

// StallDetector decides whether a Cartesian move is physically blocked: effort steady, endpoint
// steady, and the hand still short of the target height.
type StallDetector struct {
	policy   StallPolicy
	enabled  bool
	approach Approach

	torque    TorqueWindow
	pose      PoseWindow
	startZ    float64
	haveStart bool
}

// NewStallDetector returns a detector with empty windows.
func NewStallDetector(policy StallPolicy) *StallDetector {
	d := &StallDetector{policy: policy}
	d.Reset(false, Descend)
	return d
}

// Reset clears both windows and arms (or disarms) detection for a new target.
func (d *StallDetector) Reset(enabled bool, approach Approach) {
	d.enabled = enabled
	d.approach = approach
	d.torque = TorqueWindow{Tolerance: d.policy.TorqueTolerance}
	d.pose = PoseWindow{
		PositionTolerance:    d.policy.PositionTolerance,
		OrientationTolerance: d.policy.OrientationTolerance,
	}
	d.startZ = 0
	d.haveStart = false
}

// Update feeds whatever channels the sample carries into the windows.
func (d *StallDetector) Update(sample FeedbackSample) {
	if sample.HasEffort {
		d.torque.Observe(sample.Effort, sample.Time)
	}
	if sample.Pose != nil {
		if !d.haveStart {
			d.startZ = sample.Pose.Position.Z
			d.haveStart = true
		}
		d.pose.Observe(*sample.Pose, sample.Time)
	}
}

// IsStuck reports a stall. It is always false when detection is disabled, for joint-space
// targets, and for samples without an endpoint pose.
func (d *StallDetector) IsStuck(target PoseTarget, sample FeedbackSample) bool {
	if !d.enabled || target.Kind() != Cartesian || sample.Pose == nil {
		return false
	}
	if !d.torque.consistent(d.policy) || !d.pose.consistent(d.policy) {
		return false
	}
	return d.shortOfTarget(target.cartesian.Position.Z, sample.Pose.Position.Z)
}

func (d *StallDetector) shortOfTarget(targetZ, currentZ float64) bool {
	ascending := d.approach == Ascend
	if d.approach == AutoApproach && d.haveStart {
		ascending = targetZ > d.startZ
	}
	if ascending {
		return currentZ <= targetZ
	}
	return currentZ >= targetZ
}

// Enabled reports whether detection is armed for the current target.
func (d *StallDetector) Enabled() bool { return d.enabled }

// TorqueCount is the current torque-consistency count.
func (d *StallDetector) TorqueCount() int { return d.torque.Count() }

// PoseCount is the current pose-consistency count.
func (d *StallDetector) PoseCount() int { return d.pose.Count() }
