package motion

import (
	"fmt"
	"strings"
	"time"

	"github.com/stagecraft-systems/motion-core/internal/infrastructure/config"
)

// Family identifies a controller hardware family.
type Family string

const (
	// FamilyStage is the six-axis positioning stage family.
	FamilyStage Family = "stage"

	// FamilyGantry is the three-axis gantry family.
	FamilyGantry Family = "gantry"
)

// ParseFamily converts a configuration string into a Family.
func ParseFamily(s string) (Family, error) {
	switch Family(strings.ToLower(strings.TrimSpace(s))) {
	case FamilyStage:
		return FamilyStage, nil
	case FamilyGantry:
		return FamilyGantry, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFamily, s)
	}
}

// DefaultAxes returns the axis set a family exposes when configuration
// does not name the installed axes explicitly.
func (f Family) DefaultAxes() []string {
	switch f {
	case FamilyGantry:
		return []string{"X", "Y", "Z"}
	default:
		return []string{"X", "Y", "Z", "U", "V", "W"}
	}
}

// Timing holds the poll and freshness intervals shared by all controllers
// of a manager. Zero fields are replaced with family defaults.
type Timing struct {
	PollInterval    time.Duration
	StalenessWindow time.Duration
	WaitInterval    time.Duration
	MoveTimeout     time.Duration

	// SystemVelocity, when positive, is applied to every axis at connect
	// time. Stage rigs use it to cap travel speed system-wide.
	SystemVelocity float64
}

// Default timing values. Stage hardware answers quickly so it polls at
// 50ms; gantry links are slower and poll at 200ms. Status flags are
// trusted for 200ms before a direct re-query.
const (
	DefaultStagePollInterval  = 50 * time.Millisecond
	DefaultGantryPollInterval = 200 * time.Millisecond
	DefaultStalenessWindow    = 200 * time.Millisecond
	DefaultWaitInterval       = 50 * time.Millisecond
	DefaultMoveTimeout        = 30 * time.Second
)

func (t Timing) withDefaults(f Family) Timing {
	if t.PollInterval <= 0 {
		if f == FamilyGantry {
			t.PollInterval = DefaultGantryPollInterval
		} else {
			t.PollInterval = DefaultStagePollInterval
		}
	}
	if t.StalenessWindow <= 0 {
		t.StalenessWindow = DefaultStalenessWindow
	}
	if t.WaitInterval <= 0 {
		t.WaitInterval = DefaultWaitInterval
	}
	if t.MoveTimeout <= 0 {
		t.MoveTimeout = DefaultMoveTimeout
	}
	return t
}

// TimingFromConfig builds a family's timing from the loaded configuration.
func TimingFromConfig(mc config.MotionConfig, f Family) Timing {
	t := Timing{
		StalenessWindow: mc.StalenessWindow,
		WaitInterval:    mc.WaitPollInterval,
	}
	if f == FamilyGantry {
		t.PollInterval = mc.GantryPollInterval
	} else {
		t.PollInterval = mc.StagePollInterval
		t.SystemVelocity = mc.SystemVelocity
	}
	return t.withDefaults(f)
}

// DeviceConfig describes one controller to construct.
type DeviceConfig struct {
	Name    string
	Host    string
	Port    int
	Axes    []string
	Enabled bool
	Family  Family
}

// DeviceConfigFromRecord converts a configuration record. The installed
// axes field is space separated; an empty field means the family default
// axis set.
func DeviceConfigFromRecord(rec config.DeviceRecord) (DeviceConfig, error) {
	fam, err := ParseFamily(rec.Family)
	if err != nil {
		return DeviceConfig{}, fmt.Errorf("device %s: %w", rec.Name, err)
	}

	dc := DeviceConfig{
		Name:    rec.Name,
		Host:    rec.Host,
		Port:    rec.Port,
		Enabled: rec.Enabled,
		Family:  fam,
	}
	if axes := strings.Fields(rec.InstalledAxes); len(axes) > 0 {
		dc.Axes = axes
	} else {
		dc.Axes = fam.DefaultAxes()
	}
	return dc, nil
}

// AxisState is one axis' cached view. LastUpdated records when any field
// was last written, whether from a poll cycle or a direct query.
type AxisState struct {
	Position     float64   `json:"position"`
	Moving       bool      `json:"moving"`
	ServoEnabled bool      `json:"servo_enabled"`
	LastUpdated  time.Time `json:"last_updated"`
}

// Logger is the subset of the logging package controllers need. Kept as a
// local interface so the package stays testable without a real logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// StateSink receives controller state changes for telemetry fan-out.
// Implementations must not block; controllers call these from the poll
// loop.
type StateSink interface {
	DeviceState(device string, family Family, states map[string]AxisState)
	DeviceEvent(device string, event string, detail map[string]any)
}

// ConfigSource supplies device records for a manager's LoadFromConfig.
type ConfigSource interface {
	MotionDevices() ([]config.DeviceRecord, error)
}

// StaticSource is a ConfigSource backed by an in-memory slice. The main
// binary wraps the loaded configuration file in one of these.
type StaticSource []config.DeviceRecord

// MotionDevices returns the wrapped records.
func (s StaticSource) MotionDevices() ([]config.DeviceRecord, error) {
	return []config.DeviceRecord(s), nil
}
