package control

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTarget is returned when a target is malformed (wrong kind, mismatched names and values).
	ErrInvalidTarget = errors.New("invalid pose target")
	// ErrNoCommand is returned when a Cartesian target is accepted without a joint command to publish.
	ErrNoCommand = errors.New("no joint command for target")
	// ErrNoSolution is returned by IKCommand when the solver finds the pose unreachable.
	ErrNoSolution = errors.New("no IK solution")
	// ErrSequenceActive is returned when a sequence is started while another is still running.
	ErrSequenceActive = errors.New("sequence already running")
)

// ConfigurationError reports a sensor-schema mismatch, such as a required joint missing from a joint
// state message. It is not recoverable by the controller; hosts treat it as fatal.
type ConfigurationError struct {
	Joint  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: joint %q %s", e.Joint, e.Reason)
}

// IsConfigurationError reports whether err is or wraps a *ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}
