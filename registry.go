package plushie_arm

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"go.viam.com/rdk/logging"
)

var errBusClosed = errors.New("servo bus closed")

// BusOpener opens a servo bus and returns it with the function that closes it.
type BusOpener func(cfg ServoBusConfig) (*feetech.Bus, func() error, error)

func openFeetechBus(cfg ServoBusConfig) (*feetech.Bus, func() error, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = time.Second
	}
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     cfg.Port,
		BaudRate: cfg.Baudrate,
		Protocol: feetech.ProtocolSTS,
		Timeout:  timeout,
	})
	if err != nil {
		return nil, nil, err
	}
	return bus, bus.Close, nil
}

// SharedBus is a servo bus shared by every service configured on the same port. Callers hold mu
// around bus transactions.
type SharedBus struct {
	Bus    *feetech.Bus
	Config ServoBusConfig

	mu sync.Mutex
}

type busEntry struct {
	shared    *SharedBus
	close     func() error
	refCount  int64
	lastError error
	mu        sync.RWMutex
}

// BusRegistry hands out one SharedBus per serial port and closes it when the last user releases
// it.
type BusRegistry struct {
	entries map[string]*busEntry
	mu      sync.RWMutex
	open    BusOpener
	logger  logging.Logger
}

// NewBusRegistry returns an empty registry. A nil opener opens real feetech buses.
func NewBusRegistry(open BusOpener, logger logging.Logger) *BusRegistry {
	if open == nil {
		open = openFeetechBus
	}
	if logger == nil {
		logger = logging.NewLogger("bus-registry")
	}
	return &BusRegistry{
		entries: make(map[string]*busEntry),
		open:    open,
		logger:  logger,
	}
}

var defaultBusRegistry = NewBusRegistry(nil, nil)

// Acquire returns the shared bus for cfg.Port, opening it on first use. A second caller asking for
// the same port with a different baud rate or timeout is refused.
func (r *BusRegistry) Acquire(cfg ServoBusConfig) (*SharedBus, error) {
	r.mu.RLock()
	entry, exists := r.entries[cfg.Port]
	r.mu.RUnlock()

	if exists && entry.isOpen() {
		shared, err := r.acquireExisting(entry, cfg)
		if !errors.Is(err, errBusClosed) {
			return shared, err
		}
	}
	// a failed open is retried; its error stays visible through Status until then
	return r.create(cfg)
}

func (e *busEntry) isOpen() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.shared != nil
}

func (r *BusRegistry) acquireExisting(entry *busEntry, cfg ServoBusConfig) (*SharedBus, error) {
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.shared == nil {
		return nil, errBusClosed
	}
	if !busConfigsEqual(entry.shared.Config, cfg) {
		return nil, fmt.Errorf("conflict: port %s already open with a different config (refCount: %d)",
			cfg.Port, atomic.LoadInt64(&entry.refCount))
	}

	atomic.AddInt64(&entry.refCount, 1)
	return entry.shared, nil
}

func (r *BusRegistry) create(cfg ServoBusConfig) (*SharedBus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, exists := r.entries[cfg.Port]; exists && entry.isOpen() {
		return r.acquireExisting(entry, cfg)
	}

	entry := &busEntry{}
	bus, closeFn, err := r.open(cfg)
	if err != nil {
		entry.lastError = err
		r.entries[cfg.Port] = entry
		return nil, fmt.Errorf("failed to open servo bus on %s: %w", cfg.Port, err)
	}
	entry.shared = &SharedBus{Bus: bus, Config: cfg}
	entry.close = closeFn
	atomic.StoreInt64(&entry.refCount, 1)
	r.entries[cfg.Port] = entry

	r.logger.Infof("opened servo bus on %s at %d baud", cfg.Port, cfg.Baudrate)
	return entry.shared, nil
}

// Release drops one reference to the bus on port, closing it after the last one.
func (r *BusRegistry) Release(port string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.entries[port]
	if !exists {
		return
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if atomic.AddInt64(&entry.refCount, -1) > 0 {
		return
	}
	if entry.close != nil {
		if err := entry.close(); err != nil {
			r.logger.Warnf("error closing servo bus on %s: %v", port, err)
		}
	}
	delete(r.entries, port)

	entry.shared = nil
	entry.close = nil
	entry.lastError = nil
	atomic.StoreInt64(&entry.refCount, 0)
}

// ForceClose closes the bus on port regardless of outstanding references.
func (r *BusRegistry) ForceClose(port string) error {
	r.mu.Lock()
	entry, exists := r.entries[port]
	if exists {
		delete(r.entries, port)
	}
	r.mu.Unlock()

	if !exists {
		return nil
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	var err error
	if entry.close != nil {
		err = entry.close()
	}
	entry.shared = nil
	entry.close = nil
	entry.lastError = nil
	atomic.StoreInt64(&entry.refCount, 0)
	return err
}

// Status reports the reference count, whether a bus is open, and a short description.
func (r *BusRegistry) Status(port string) (int64, bool, string) {
	r.mu.RLock()
	entry, exists := r.entries[port]
	r.mu.RUnlock()

	if !exists {
		return 0, false, ""
	}

	entry.mu.RLock()
	defer entry.mu.RUnlock()

	summary := ""
	if entry.shared != nil {
		summary = fmt.Sprintf("Serial: %s@%d", entry.shared.Config.Port, entry.shared.Config.Baudrate)
	} else if entry.lastError != nil {
		summary = "error: " + entry.lastError.Error()
	}
	return atomic.LoadInt64(&entry.refCount), entry.shared != nil, summary
}

func busConfigsEqual(a, b ServoBusConfig) bool {
	return a.Port == b.Port &&
		a.Baudrate == b.Baudrate &&
		a.Timeout == b.Timeout
}
