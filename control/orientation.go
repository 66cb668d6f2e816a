package control

import (
	"fmt"
	"math"

	"go.viam.com/rdk/spatialmath"
)

// HandDownPitch points the hand at the table.
const HandDownPitch = 3.14

// EulerConverter turns roll, pitch and yaw (radians) into a quaternion.
type EulerConverter interface {
	Quaternion(roll, pitch, yaw float64) Quaternion
}

// LegacyEuler reproduces the conversion the hand controller has always used. Its terms do not
// match the textbook formula, but existing IK calibrations depend on it.
type LegacyEuler struct{}

func (LegacyEuler) Quaternion(roll, pitch, yaw float64) Quaternion {
	c1, s1 := math.Cos(pitch), math.Sin(pitch)
	c2, s2 := math.Cos(yaw), math.Sin(yaw)
	c3, s3 := math.Cos(roll), math.Sin(roll)

	w := math.Sqrt(1.0+c1*c2+c1*c3-s1*s2*s3+c2*c3) / 2.0
	w4 := 4.0 * w
	return Quaternion{
		X: (c2*s3 + c1*s3 + s1*s2*c3) / w4,
		Y: (s1*c2 + s1*c3 + c1*s2*s3) / w4,
		Z: (-s1*s3 + c1*s2*c3 + s2) / w4,
		W: w,
	}
}

// StandardEuler uses the rdk spatialmath conversion.
type StandardEuler struct{}

func (StandardEuler) Quaternion(roll, pitch, yaw float64) Quaternion {
	q := (&spatialmath.EulerAngles{Roll: roll, Pitch: pitch, Yaw: yaw}).Quaternion()
	return Quaternion{X: q.Imag, Y: q.Jmag, Z: q.Kmag, W: q.Real}
}

// EulerConverterByName returns "legacy" (also the default for "") or "standard".
func EulerConverterByName(name string) (EulerConverter, error) {
	switch name {
	case "", "legacy":
		return LegacyEuler{}, nil
	case "standard":
		return StandardEuler{}, nil
	default:
		return nil, fmt.Errorf("unknown euler convention %q", name)
	}
}
