// discovery_test.go
package plushie_arm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/services/generic"
)

func TestFilterCandidatePorts(t *testing.T) {
	tests := []struct {
		name     string
		ports    []string
		expected []string
	}{
		{
			name:     "Linux USB ports",
			ports:    []string{"/dev/ttyUSB0", "/dev/ttyS0", "/dev/ttyACM0", "/dev/null"},
			expected: []string{"/dev/ttyUSB0", "/dev/ttyACM0"},
		},
		{
			name:     "macOS USB ports",
			ports:    []string{"/dev/tty.usbmodem123", "/dev/tty.Bluetooth", "/dev/cu.usbserial-AB"},
			expected: []string{"/dev/tty.usbmodem123", "/dev/cu.usbserial-AB"},
		},
		{
			name:     "Windows COM ports",
			ports:    []string{"COM3", "COM10", "LPT1"},
			expected: []string{"COM3", "COM10"},
		},
		{
			name:     "No matching ports",
			ports:    []string{"/dev/null", "/dev/zero"},
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, filterCandidatePorts(tt.ports))
		})
	}
}

func TestExtractPortSuffix(t *testing.T) {
	assert.Equal(t, "ttyUSB0", extractPortSuffix("/dev/ttyUSB0"))
	assert.Equal(t, "usbmodem123", extractPortSuffix("/dev/tty.usbmodem123"))
	assert.Equal(t, "usbserial-AB", extractPortSuffix("/dev/cu.usbserial-AB"))
	assert.Equal(t, "COM3", extractPortSuffix("COM3"))
}

func seq(from, to int) []int {
	var ids []int
	for i := from; i <= to; i++ {
		ids = append(ids, i)
	}
	return ids
}

type fakeScanner map[string][]int

func (f fakeScanner) scan(_ context.Context, port string, _ int) ([]int, error) {
	ids, ok := f[port]
	if !ok {
		return nil, errors.New("timeout")
	}
	return ids, nil
}

func TestFindServoPort(t *testing.T) {
	logger := logging.NewTestLogger(t)
	cfg := testBusConfig(AutoPort)
	ports := []string{"/dev/ttyS0", "/dev/ttyUSB0", "/dev/ttyUSB1", "/dev/ttyACM0"}
	scanner := fakeScanner{
		"/dev/ttyS0":   seq(1, 14),
		"/dev/ttyUSB0": seq(1, 6),
		"/dev/ttyACM0": seq(1, 14),
	}

	port, err := findServoPort(context.Background(), cfg, ports, scanner.scan, logger)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyACM0", port)

	_, err = findServoPort(context.Background(), cfg, ports[:2], scanner.scan, logger)
	assert.ErrorContains(t, err, "no serial port")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = findServoPort(ctx, cfg, ports, scanner.scan, logger)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDiscoverResources(t *testing.T) {
	dis := &servoBusDiscovery{
		logger:   logging.NewTestLogger(t),
		baudrate: 1000000,
		scan: fakeScanner{
			"/dev/ttyUSB0": seq(1, 14),
			"/dev/ttyUSB1": append(seq(1, 7), 9),
		}.scan,
		ports: func() []string { return []string{"/dev/ttyUSB0", "/dev/ttyUSB1", "/dev/ttyUSB2"} },
	}

	configs, err := dis.DiscoverResources(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, "delivery-ttyUSB0", configs[0].Name)
	assert.Equal(t, generic.API, configs[0].API)
	assert.Equal(t, DeliveryModel, configs[0].Model)
	bus, ok := configs[0].Attributes["servo_bus"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "/dev/ttyUSB0", bus["port"])
}

func TestIsDualArmBus(t *testing.T) {
	assert.True(t, isDualArmBus(seq(1, 14)))
	assert.True(t, isDualArmBus(seq(1, 20)))
	assert.False(t, isDualArmBus(seq(2, 14)))
	assert.False(t, isDualArmBus(nil))
}
