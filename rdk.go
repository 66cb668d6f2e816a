package plushie_arm

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/rdk/components/arm"
	"go.viam.com/rdk/components/board"
	"go.viam.com/rdk/components/gripper"
	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/services/generic"
	"go.viam.com/rdk/spatialmath"

	"plushie_arm/control"
)

// armLimb drives one side through an rdk arm whose joints are ordered like control.JointNames.
type armLimb struct {
	arm  arm.Arm
	side control.Side
	pump *commandPump
	now  func() time.Time
}

func newArmLimb(ctx context.Context, a arm.Arm, side control.Side, logger logging.Logger) *armLimb {
	l := &armLimb{arm: a, side: side, now: time.Now}
	l.pump = newCommandPump(ctx, l.move, logger)
	return l
}

func (l *armLimb) Publish(ctx context.Context, cmd control.JointCommand) error {
	return l.pump.Publish(ctx, cmd)
}

func (l *armLimb) move(ctx context.Context, cmd control.JointCommand) error {
	positions, err := orderCommand(l.side, cmd)
	if err != nil {
		return err
	}
	return l.arm.MoveToJointPositions(ctx, positions, nil)
}

func (l *armLimb) JointSample(ctx context.Context) (control.FeedbackSample, error) {
	inputs, err := l.arm.JointPositions(ctx, nil)
	if err != nil {
		return control.FeedbackSample{}, errors.Wrap(err, "reading joint positions")
	}
	return control.JointStateSample(l.side, control.JointNames(l.side), limbJoints(inputs), l.now())
}

// limbJoints trims an arm's positional joint vector to one limb. A short vector leaves trailing
// names without values so JointStateSample reports them.
func limbJoints(positions []float64) []float64 {
	if len(positions) > control.JointsPerSide {
		return positions[:control.JointsPerSide]
	}
	return positions
}

func (l *armLimb) EndpointSample(ctx context.Context) (control.FeedbackSample, error) {
	pose, err := l.arm.EndPosition(ctx, nil)
	if err != nil {
		return control.FeedbackSample{}, errors.Wrap(err, "reading end position")
	}
	return control.NewPoseSample(l.now(), fromSpatialPose(pose)), nil
}

// orderCommand lays out cmd in the side's joint order, rejecting commands for other joints.
func orderCommand(side control.Side, cmd control.JointCommand) ([]float64, error) {
	byName := make(map[string]float64, len(cmd.Names))
	for i, n := range cmd.Names {
		if i < len(cmd.Positions) {
			byName[n] = cmd.Positions[i]
		}
	}
	names := control.JointNames(side)
	out := make([]float64, len(names))
	for i, n := range names {
		v, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("command for %v has no value for %s", side, n)
		}
		out[i] = v
	}
	return out, nil
}

func fromSpatialPose(p spatialmath.Pose) control.CartesianPose {
	q := p.Orientation().Quaternion()
	return control.CartesianPose{
		Position:    p.Point(),
		Orientation: control.Quaternion{X: q.Imag, Y: q.Jmag, Z: q.Kmag, W: q.Real},
	}
}

// gripperHand adapts an rdk gripper. A release opens it; any other command closes it.
type gripperHand struct {
	gripper gripper.Gripper
}

func (h *gripperHand) Command(ctx context.Context, id int, command string) error {
	extra := map[string]interface{}{"command_id": id}
	if command == control.ReleaseCommand {
		return h.gripper.Open(ctx, extra)
	}
	_, err := h.gripper.Grab(ctx, extra)
	return err
}

func (h *gripperHand) IsHolding(ctx context.Context) (bool, error) {
	status, err := h.gripper.IsHoldingSomething(ctx, nil)
	if err != nil {
		return false, err
	}
	return status.IsHoldingSomething, nil
}

// pinButton reads a manual override button wired to a board GPIO pin.
type pinButton struct {
	pin board.GPIOPin
}

func (b *pinButton) Pressed(ctx context.Context) (bool, error) {
	return b.pin.Get(ctx, nil)
}

// sensorEffort reads the shoulder effort from a sensor whose readings are keyed by joint name.
type sensorEffort struct {
	sensor sensor.Sensor
	joint  string
}

func (s *sensorEffort) Effort(ctx context.Context) (float64, error) {
	readings, err := s.sensor.Readings(ctx, nil)
	if err != nil {
		return 0, err
	}
	raw, ok := readings[s.joint]
	if !ok {
		return 0, &control.ConfigurationError{Joint: s.joint, Reason: "not found in effort readings"}
	}
	return toFloat(raw)
}

func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}

// ikService asks a generic service for IK solutions through DoCommand:
//
//	{"command": "solve_ik", "limb": "left", "frame": "base", "stamp": <unix nanos>,
//	 "pose": {"x", "y", "z", "ox", "oy", "oz", "ow"}}
//
// and expects {"valid": bool, "names": [...], "positions": [...]}.
type ikService struct {
	svc resource.Resource
}

func (s *ikService) Solve(ctx context.Context, req control.IKRequest) (control.IKSolution, error) {
	p := req.Pose
	resp, err := s.svc.DoCommand(ctx, map[string]interface{}{
		"command": "solve_ik",
		"limb":    control.LimbName(req.Side),
		"frame":   req.Frame,
		"stamp":   req.Stamp.UnixNano(),
		"pose": map[string]interface{}{
			"x": p.Position.X, "y": p.Position.Y, "z": p.Position.Z,
			"ox": p.Orientation.X, "oy": p.Orientation.Y, "oz": p.Orientation.Z, "ow": p.Orientation.W,
		},
	})
	if err != nil {
		return control.IKSolution{}, err
	}
	return parseIKResponse(resp)
}

func parseIKResponse(resp map[string]interface{}) (control.IKSolution, error) {
	valid, _ := resp["valid"].(bool)
	if !valid {
		return control.IKSolution{}, nil
	}
	rawNames, _ := resp["names"].([]interface{})
	rawPositions, _ := resp["positions"].([]interface{})
	if len(rawNames) != len(rawPositions) {
		return control.IKSolution{}, fmt.Errorf("IK response has %d names for %d positions", len(rawNames), len(rawPositions))
	}
	sol := control.IKSolution{Valid: true}
	for i := range rawNames {
		name, ok := rawNames[i].(string)
		if !ok {
			return control.IKSolution{}, fmt.Errorf("IK joint name %v is not a string", rawNames[i])
		}
		v, err := toFloat(rawPositions[i])
		if err != nil {
			return control.IKSolution{}, errors.Wrapf(err, "IK position for %s", name)
		}
		sol.Names = append(sol.Names, name)
		sol.Positions = append(sol.Positions, v)
	}
	return sol, nil
}

func lookupArm(deps resource.Dependencies, name string) (arm.Arm, error) {
	res, err := deps.Lookup(resource.NewName(arm.API, name))
	if err != nil {
		return nil, errors.Wrapf(err, "arm %q", name)
	}
	a, ok := res.(arm.Arm)
	if !ok {
		return nil, fmt.Errorf("%q is not an arm", name)
	}
	return a, nil
}

func lookupGripper(deps resource.Dependencies, name string) (gripper.Gripper, error) {
	res, err := deps.Lookup(resource.NewName(gripper.API, name))
	if err != nil {
		return nil, errors.Wrapf(err, "gripper %q", name)
	}
	g, ok := res.(gripper.Gripper)
	if !ok {
		return nil, fmt.Errorf("%q is not a gripper", name)
	}
	return g, nil
}

func lookupButton(deps resource.Dependencies, boardName, pinName string) (*pinButton, error) {
	res, err := deps.Lookup(resource.NewName(board.API, boardName))
	if err != nil {
		return nil, errors.Wrapf(err, "board %q", boardName)
	}
	b, ok := res.(board.Board)
	if !ok {
		return nil, fmt.Errorf("%q is not a board", boardName)
	}
	pin, err := b.GPIOPinByName(pinName)
	if err != nil {
		return nil, errors.Wrapf(err, "pin %q on board %q", pinName, boardName)
	}
	return &pinButton{pin: pin}, nil
}

func lookupSensor(deps resource.Dependencies, name string) (sensor.Sensor, error) {
	res, err := deps.Lookup(resource.NewName(sensor.API, name))
	if err != nil {
		return nil, errors.Wrapf(err, "sensor %q", name)
	}
	s, ok := res.(sensor.Sensor)
	if !ok {
		return nil, fmt.Errorf("%q is not a sensor", name)
	}
	return s, nil
}

func lookupIKService(deps resource.Dependencies, name string) (*ikService, error) {
	res, err := deps.Lookup(resource.NewName(generic.API, name))
	if err != nil {
		return nil, errors.Wrapf(err, "IK service %q", name)
	}
	return &ikService{svc: res}, nil
}
