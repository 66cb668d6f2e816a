package plushie_arm

import (
	"fmt"
	"time"

	"plushie_arm/control"
)

// AutoPort asks the module to find the servo bus among the candidate serial ports.
const AutoPort = "auto"

// ServoBusConfig describes a feetech bus carrying both arms.
type ServoBusConfig struct {
	Port     string `json:"port,omitempty"`
	Baudrate int    `json:"baudrate,omitempty"`

	// Servo ids in joint order e0 e1 s0 s1 w0 w1 w2. Default 1-7 and 8-14.
	ServoIDsLeft  []int `json:"servo_ids_left,omitempty"`
	ServoIDsRight []int `json:"servo_ids_right,omitempty"`

	// Optional gripper servos on the same bus. Zero means no gripper on that side.
	GripperIDLeft  int `json:"gripper_id_left,omitempty"`
	GripperIDRight int `json:"gripper_id_right,omitempty"`

	Timeout time.Duration `json:"timeout,omitempty"`
}

func (cfg *ServoBusConfig) validate(path string) error {
	if cfg.Port == "" {
		return fmt.Errorf("%s: servo_bus must specify port (or %q)", path, AutoPort)
	}
	if cfg.Baudrate == 0 {
		cfg.Baudrate = 1000000
	}
	if len(cfg.ServoIDsLeft) == 0 {
		cfg.ServoIDsLeft = []int{1, 2, 3, 4, 5, 6, 7}
	}
	if len(cfg.ServoIDsRight) == 0 {
		cfg.ServoIDsRight = []int{8, 9, 10, 11, 12, 13, 14}
	}
	if len(cfg.ServoIDsLeft) != control.JointsPerSide || len(cfg.ServoIDsRight) != control.JointsPerSide {
		return fmt.Errorf("%s: servo_ids_left and servo_ids_right need %d ids each", path, control.JointsPerSide)
	}
	seen := make(map[int]bool, 2*control.JointsPerSide)
	ids := append(append([]int(nil), cfg.ServoIDsLeft...), cfg.ServoIDsRight...)
	for _, id := range []int{cfg.GripperIDLeft, cfg.GripperIDRight} {
		if id != 0 {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		if id < 1 || id > 253 {
			return fmt.Errorf("%s: servo id %d out of range 1-253", path, id)
		}
		if seen[id] {
			return fmt.Errorf("%s: servo id %d used twice", path, id)
		}
		seen[id] = true
	}
	return nil
}

// armsConfig selects how both sides are driven: a pair of rdk arms or a direct servo bus.
type armsConfig struct {
	ArmLeft  string
	ArmRight string
	ServoBus *ServoBusConfig
}

func (cfg armsConfig) validate(path string) ([]string, error) {
	if cfg.ServoBus != nil {
		if cfg.ArmLeft != "" || cfg.ArmRight != "" {
			return nil, fmt.Errorf("%s: use either arm_left/arm_right or servo_bus, not both", path)
		}
		return nil, cfg.ServoBus.validate(path)
	}
	if cfg.ArmLeft == "" && cfg.ArmRight == "" {
		return nil, fmt.Errorf("%s: must specify arm_left, arm_right or servo_bus", path)
	}
	var deps []string
	for _, name := range []string{cfg.ArmLeft, cfg.ArmRight} {
		if name != "" {
			deps = append(deps, name)
		}
	}
	return deps, nil
}

// DeliveryConfig configures the delivery service.
type DeliveryConfig struct {
	ArmLeft  string          `json:"arm_left,omitempty"`
	ArmRight string          `json:"arm_right,omitempty"`
	ServoBus *ServoBusConfig `json:"servo_bus,omitempty"`

	GripperLeft  string `json:"gripper_left,omitempty"`
	GripperRight string `json:"gripper_right,omitempty"`

	ButtonBoard    string `json:"button_board,omitempty"`
	ButtonPinLeft  string `json:"button_pin_left,omitempty"`
	ButtonPinRight string `json:"button_pin_right,omitempty"`

	PollHz           float64 `json:"poll_hz,omitempty"`
	Settle           string  `json:"settle,omitempty"`
	ReleaseCommandID int     `json:"release_command_id,omitempty"`
}

// Validate fills defaults and returns the required dependencies.
func (cfg *DeliveryConfig) Validate(path string) ([]string, []string, error) {
	deps, err := armsConfig{cfg.ArmLeft, cfg.ArmRight, cfg.ServoBus}.validate(path)
	if err != nil {
		return nil, nil, err
	}
	for _, name := range []string{cfg.GripperLeft, cfg.GripperRight} {
		if name != "" {
			deps = append(deps, name)
		}
	}
	if bus := cfg.ServoBus; bus != nil {
		if (cfg.GripperLeft != "" && bus.GripperIDLeft != 0) || (cfg.GripperRight != "" && bus.GripperIDRight != 0) {
			return nil, nil, fmt.Errorf("%s: a side can use a gripper component or a bus gripper id, not both", path)
		}
	}
	if cfg.ButtonPinLeft != "" || cfg.ButtonPinRight != "" {
		if cfg.ButtonBoard == "" {
			return nil, nil, fmt.Errorf("%s: button pins need button_board", path)
		}
		deps = append(deps, cfg.ButtonBoard)
	}

	if cfg.PollHz == 0 {
		cfg.PollHz = 10
	}
	if cfg.PollHz < 0 || cfg.PollHz > 500 {
		return nil, nil, fmt.Errorf("%s: poll_hz must be between 0 and 500, got %.1f", path, cfg.PollHz)
	}
	if cfg.Settle == "" {
		cfg.Settle = control.DefaultSettle.String()
	}
	if _, err := time.ParseDuration(cfg.Settle); err != nil {
		return nil, nil, fmt.Errorf("%s: invalid settle %q: %w", path, cfg.Settle, err)
	}
	if cfg.ReleaseCommandID == 0 {
		cfg.ReleaseCommandID = control.ReleaseCommandID
	}
	return deps, nil, nil
}

// SettleDuration is the parsed settle delay.
func (cfg *DeliveryConfig) SettleDuration() time.Duration {
	d, err := time.ParseDuration(cfg.Settle)
	if err != nil || d <= 0 {
		return control.DefaultSettle
	}
	return d
}

// RepositionConfig configures the reposition-hand service.
type RepositionConfig struct {
	ArmLeft  string `json:"arm_left,omitempty"`
	ArmRight string `json:"arm_right,omitempty"`

	EffortSensor string `json:"effort_sensor,omitempty"`
	IKService    string `json:"ik_service"`

	PollHz           float64 `json:"poll_hz,omitempty"`
	StallTicks       int     `json:"stall_ticks,omitempty"`
	StallMinDuration string  `json:"stall_min_duration,omitempty"`
	Euler            string  `json:"euler,omitempty"`
	Frame            string  `json:"frame,omitempty"`
}

// Validate fills defaults and returns the required dependencies.
func (cfg *RepositionConfig) Validate(path string) ([]string, []string, error) {
	deps, err := armsConfig{ArmLeft: cfg.ArmLeft, ArmRight: cfg.ArmRight}.validate(path)
	if err != nil {
		return nil, nil, err
	}
	if cfg.IKService == "" {
		return nil, nil, fmt.Errorf("%s: must specify ik_service", path)
	}
	deps = append(deps, cfg.IKService)
	if cfg.EffortSensor != "" {
		deps = append(deps, cfg.EffortSensor)
	}

	if cfg.PollHz == 0 {
		cfg.PollHz = 20
	}
	if cfg.PollHz < 0 || cfg.PollHz > 500 {
		return nil, nil, fmt.Errorf("%s: poll_hz must be between 0 and 500, got %.1f", path, cfg.PollHz)
	}
	if cfg.StallTicks == 0 {
		cfg.StallTicks = control.DefaultStallPolicy.MinTicks
	}
	if cfg.StallTicks < 1 {
		return nil, nil, fmt.Errorf("%s: stall_ticks must be positive, got %d", path, cfg.StallTicks)
	}
	if cfg.StallMinDuration == "" {
		cfg.StallMinDuration = "0s"
	}
	if _, err := time.ParseDuration(cfg.StallMinDuration); err != nil {
		return nil, nil, fmt.Errorf("%s: invalid stall_min_duration %q: %w", path, cfg.StallMinDuration, err)
	}
	if cfg.Euler == "" {
		cfg.Euler = "legacy"
	}
	if _, err := control.EulerConverterByName(cfg.Euler); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	if cfg.Frame == "" {
		cfg.Frame = control.DefaultFrame
	}
	return deps, nil, nil
}

// StallPolicy builds the stall policy from the configured tick count and minimum duration.
func (cfg *RepositionConfig) StallPolicy() control.StallPolicy {
	policy := control.DefaultStallPolicy
	if cfg.StallTicks > 0 {
		policy.MinTicks = cfg.StallTicks
	}
	if d, err := time.ParseDuration(cfg.StallMinDuration); err == nil {
		policy.MinDuration = d
	}
	return policy
}

func pollInterval(hz float64) time.Duration {
	if hz <= 0 {
		hz = 10
	}
	return time.Duration(float64(time.Second) / hz)
}
