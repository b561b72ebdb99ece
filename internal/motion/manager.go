package motion

import (
	"context"
	"sort"
	"sync"

	"github.com/stagecraft-systems/motion-core/internal/infrastructure/config"
	"github.com/stagecraft-systems/motion-core/internal/motion/transport"
)

// Manager owns every controller of one family. It is constructed with the
// family it manages, the transport dialer its controllers use, and the
// configuration source device records come from. A process runs one
// manager per family, both sharing a dialer and sink.
type Manager struct {
	family Family
	dialer transport.Dialer
	source ConfigSource
	timing Timing
	log    Logger
	sink   StateSink

	mu          sync.RWMutex
	devices     map[string]Controller
	initialized bool
}

// NewManager builds an empty manager. Call Initialize (or LoadFromConfig)
// before use.
func NewManager(family Family, dialer transport.Dialer, source ConfigSource, timing Timing, log Logger, sink StateSink) *Manager {
	if log == nil {
		log = nopLogger{}
	}
	return &Manager{
		family:  family,
		dialer:  dialer,
		source:  source,
		timing:  timing,
		log:     log,
		sink:    sink,
		devices: make(map[string]Controller),
	}
}

// Family returns the family this manager owns.
func (m *Manager) Family() Family { return m.family }

// defaultRecords is the built-in device list used when the configuration
// source cannot produce records. Matches the lab's standing installation.
func defaultRecords(family Family) []config.DeviceRecord {
	switch family {
	case FamilyGantry:
		return []config.DeviceRecord{
			{Name: "gantry-1", Host: "192.168.1.110", Port: 701, Enabled: true, Family: "gantry"},
		}
	default:
		return []config.DeviceRecord{
			{Name: "stage-left", Host: "192.168.1.100", Port: 50000, Enabled: true, Family: "stage"},
			{Name: "stage-right", Host: "192.168.1.101", Port: 50000, Enabled: true, Family: "stage"},
			{Name: "stage-bottom", Host: "192.168.1.102", Port: 50000, Enabled: true, Family: "stage"},
		}
	}
}

// LoadFromConfig replaces the device registry from the configuration
// source, keeping only enabled records of this manager's family. When the
// source fails the built-in defaults are loaded instead so the system
// stays operable. Connected controllers from the previous registry are
// disconnected so no poll loop or session outlives its registration.
func (m *Manager) LoadFromConfig() {
	recs, err := m.source.MotionDevices()
	fallback := false
	if err != nil {
		m.log.Warn("device configuration unavailable, using defaults",
			"family", string(m.family), "fallback", true, "error", err)
		recs = defaultRecords(m.family)
		fallback = true
	}

	devices := make(map[string]Controller)
	for _, rec := range recs {
		dc, err := DeviceConfigFromRecord(rec)
		if err != nil {
			m.log.Warn("skipping invalid device record", "device", rec.Name, "error", err)
			continue
		}
		if dc.Family != m.family || !dc.Enabled {
			continue
		}
		devices[dc.Name] = m.newController(dc)
	}

	m.mu.Lock()
	old := m.devices
	m.devices = devices
	m.mu.Unlock()

	// Controllers in the outgoing registry may still own a poll loop and a
	// live session. Stop them before they become unreachable; Disconnect
	// logs its own failures.
	for name, dev := range old {
		if !dev.IsConnected() {
			continue
		}
		m.log.Info("stopping controller replaced by registry reload",
			"family", string(m.family), "device", name)
		dev.Disconnect()
	}

	m.log.Info("device registry loaded",
		"family", string(m.family), "devices", len(devices), "fallback", fallback)
}

func (m *Manager) newController(dc DeviceConfig) Controller {
	if m.family == FamilyGantry {
		return NewGantryController(dc, m.timing, m.dialer, m.log, m.sink)
	}
	return NewStageController(dc, m.timing, m.dialer, m.log, m.sink)
}

// Initialize loads the registry and marks the manager ready. Safe to call
// more than once; each call reloads from configuration.
func (m *Manager) Initialize() bool {
	m.LoadFromConfig()

	m.mu.Lock()
	m.initialized = true
	m.mu.Unlock()
	return true
}

// ConnectAll connects every registered device sequentially. A failing
// device is logged and skipped; the return value is true only when every
// device connected.
func (m *Manager) ConnectAll(ctx context.Context) bool {
	ok := true
	for _, name := range m.GetDeviceNames() {
		if !m.ConnectDevice(ctx, name) {
			ok = false
		}
	}
	return ok
}

// DisconnectAll disconnects every registered device. Failures are logged
// and do not stop the sweep.
func (m *Manager) DisconnectAll() bool {
	ok := true
	for _, name := range m.GetDeviceNames() {
		if !m.DisconnectDevice(name) {
			ok = false
		}
	}
	return ok
}

// ConnectDevice connects one device by name.
func (m *Manager) ConnectDevice(ctx context.Context, name string) bool {
	dev := m.GetDevice(name)
	if dev == nil {
		m.log.Warn("connect requested for unknown device",
			"family", string(m.family), "device", name)
		return false
	}
	return dev.Connect(ctx)
}

// DisconnectDevice disconnects one device by name.
func (m *Manager) DisconnectDevice(name string) bool {
	dev := m.GetDevice(name)
	if dev == nil {
		m.log.Warn("disconnect requested for unknown device",
			"family", string(m.family), "device", name)
		return false
	}
	return dev.Disconnect()
}

// IsDeviceConnected reports one device's connection state. Unknown names
// report false.
func (m *Manager) IsDeviceConnected(name string) bool {
	dev := m.GetDevice(name)
	if dev == nil {
		return false
	}
	return dev.IsConnected()
}

// GetDevice returns a borrowed controller handle, or nil for unknown
// names. Callers must not retain the handle across a registry reload.
func (m *Manager) GetDevice(name string) Controller {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.devices[name]
}

// GetDeviceNames returns all registered device names in sorted order.
func (m *Manager) GetDeviceNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.devices))
	for name := range m.devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetDeviceCount returns the number of registered devices.
func (m *Manager) GetDeviceCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.devices)
}
