// discovery.go
package plushie_arm

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"go.bug.st/serial/enumerator"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/services/discovery"
	"go.viam.com/rdk/services/generic"
)

var DiscoveryModel = resource.NewModel("plushie", "arm", "discovery")

func init() {
	resource.RegisterService(
		discovery.API,
		DiscoveryModel,
		resource.Registration[discovery.Service, *DiscoveryConfig]{
			Constructor: newServoBusDiscovery,
		})
}

// DiscoveryConfig is the configuration for the discovery service
type DiscoveryConfig struct {
	Baudrate int `json:"baudrate,omitempty"`
}

// Validate ensures the config is valid
func (cfg *DiscoveryConfig) Validate(path string) ([]string, []string, error) {
	if cfg.Baudrate == 0 {
		cfg.Baudrate = 1000000
	}
	return nil, nil, nil
}

// portScanner lists the servo ids answering on a port.
type portScanner func(ctx context.Context, port string, baudrate int) ([]int, error)

func scanFeetechPort(ctx context.Context, port string, baudrate int) ([]int, error) {
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: baudrate,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return nil, err
	}
	defer bus.Close()

	found, err := bus.Scan(ctx, 1, 14)
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(found))
	for _, s := range found {
		ids = append(ids, s.ID)
	}
	sort.Ints(ids)
	return ids, nil
}

// servoBusDiscovery finds dual-arm servo buses and proposes services for them
type servoBusDiscovery struct {
	resource.Named
	resource.AlwaysRebuild
	resource.TriviallyCloseable
	logger   logging.Logger
	baudrate int
	scan     portScanner
	ports    func() []string
}

func newServoBusDiscovery(
	ctx context.Context,
	deps resource.Dependencies,
	conf resource.Config,
	logger logging.Logger,
) (discovery.Service, error) {
	cfg, err := resource.NativeConfig[*DiscoveryConfig](conf)
	if err != nil {
		return nil, err
	}

	return &servoBusDiscovery{
		Named:    conf.ResourceName().AsNamed(),
		logger:   logger,
		baudrate: cfg.Baudrate,
		scan:     scanFeetechPort,
		ports:    enumerateSerialPorts,
	}, nil
}

// DiscoverResources scans candidate serial ports for a bus carrying both arms and returns a
// delivery service config for each
func (dis *servoBusDiscovery) DiscoverResources(ctx context.Context, extra map[string]any) ([]resource.Config, error) {
	dis.logger.Info("Starting servo bus discovery")

	candidates := filterCandidatePorts(dis.ports())
	dis.logger.Debugf("Filtered to %d candidate ports", len(candidates))

	var configs []resource.Config
	for _, portPath := range candidates {
		select {
		case <-ctx.Done():
			dis.logger.Info("Discovery cancelled")
			return configs, ctx.Err()
		default:
		}

		ids, err := dis.scan(ctx, portPath, dis.baudrate)
		if err != nil {
			dis.logger.Debugf("Failed to scan %s: %v", portPath, err)
			continue
		}
		if !isDualArmBus(ids) {
			dis.logger.Debugf("Port %s has servos %v, not a dual-arm bus", portPath, ids)
			continue
		}
		dis.logger.Infof("Discovered dual-arm servo bus on %s", portPath)
		configs = append(configs, deliveryConfigFor(portPath, dis.baudrate))
	}

	if len(configs) == 0 {
		dis.logger.Info("No servo buses discovered")
	}
	return configs, nil
}

func deliveryConfigFor(portPath string, baudrate int) resource.Config {
	return resource.Config{
		Name:  "delivery-" + extractPortSuffix(portPath),
		API:   generic.API,
		Model: DeliveryModel,
		Attributes: map[string]interface{}{
			"servo_bus": map[string]interface{}{
				"port":     portPath,
				"baudrate": baudrate,
			},
		},
	}
}

// isDualArmBus reports whether ids covers 1 through 14.
func isDualArmBus(ids []int) bool {
	present := make(map[int]bool, len(ids))
	for _, id := range ids {
		present[id] = true
	}
	for id := 1; id <= 14; id++ {
		if !present[id] {
			return false
		}
	}
	return true
}

// detectServoPort resolves the "auto" port: the first candidate port where every configured
// servo id answers.
func detectServoPort(ctx context.Context, cfg ServoBusConfig, logger logging.Logger) (string, error) {
	return findServoPort(ctx, cfg, enumerateSerialPorts(), scanFeetechPort, logger)
}

func findServoPort(ctx context.Context, cfg ServoBusConfig, ports []string, scan portScanner, logger logging.Logger) (string, error) {
	want := append(append([]int(nil), cfg.ServoIDsLeft...), cfg.ServoIDsRight...)
	for _, port := range filterCandidatePorts(ports) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		ids, err := scan(ctx, port, cfg.Baudrate)
		if err != nil {
			logger.Debugf("Failed to scan %s: %v", port, err)
			continue
		}
		if containsAll(ids, want) {
			logger.Infof("Using servo bus on %s", port)
			return port, nil
		}
	}
	return "", fmt.Errorf("no serial port has servos %v", want)
}

func containsAll(have, want []int) bool {
	set := make(map[int]bool, len(have))
	for _, id := range have {
		set[id] = true
	}
	for _, id := range want {
		if !set[id] {
			return false
		}
	}
	return true
}

// filterCandidatePorts filters serial ports by platform-specific naming patterns
func filterCandidatePorts(ports []string) []string {
	candidates := []string{}
	for _, port := range ports {
		if isCandidatePort(port) {
			candidates = append(candidates, port)
		}
	}
	return candidates
}

// isCandidatePort checks if a port looks like a USB serial adapter
func isCandidatePort(port string) bool {
	// Linux: /dev/ttyUSB*, /dev/ttyACM*
	if strings.HasPrefix(port, "/dev/ttyUSB") || strings.HasPrefix(port, "/dev/ttyACM") {
		return true
	}
	// macOS: /dev/tty.usbmodem*, /dev/tty.usbserial*, /dev/cu.usbmodem*, /dev/cu.usbserial*
	if strings.HasPrefix(port, "/dev/tty.usbmodem") || strings.HasPrefix(port, "/dev/tty.usbserial") || strings.HasPrefix(port, "/dev/cu.usbmodem") || strings.HasPrefix(port, "/dev/cu.usbserial") {
		return true
	}
	// Windows: COM*
	if strings.HasPrefix(port, "COM") {
		return true
	}
	return false
}

// extractPortSuffix extracts a friendly suffix from port path for naming
// /dev/ttyUSB0 -> "ttyUSB0"
// COM3 -> "COM3"
// /dev/tty.usbmodem123 -> "usbmodem123"
func extractPortSuffix(portPath string) string {
	base := filepath.Base(portPath)

	if strings.HasPrefix(base, "tty.usb") {
		return strings.TrimPrefix(base, "tty.")
	}
	if strings.HasPrefix(base, "cu.usb") {
		return strings.TrimPrefix(base, "cu.")
	}

	return base
}

// enumerateSerialPorts returns a list of all serial ports on the system
func enumerateSerialPorts() []string {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return []string{}
	}

	var portPaths []string
	for _, port := range ports {
		portPaths = append(portPaths, port.Name)
	}
	return portPaths
}
