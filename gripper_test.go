package plushie_arm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGripperPercentConversion(t *testing.T) {
	assert.Equal(t, 0, percentToRaw(0))
	assert.Equal(t, 4095, percentToRaw(100))
	assert.InDelta(t, gripperOpenPercent, rawToPercent(percentToRaw(gripperOpenPercent)), 0.05)
	assert.Equal(t, 100.0, rawToPercent(5000))
	assert.Equal(t, 0.0, rawToPercent(-10))
}

func TestHoldingAt(t *testing.T) {
	for _, tc := range []struct {
		percent float64
		holding bool
	}{
		{0, false},
		{5, false},
		{5.5, true},
		{40, true},
		{89.5, true},
		{90, false},
		{95, false},
	} {
		assert.Equal(t, tc.holding, holdingAt(tc.percent), "at %.1f%%", tc.percent)
	}
}
