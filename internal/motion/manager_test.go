package motion

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/stagecraft-systems/motion-core/internal/infrastructure/config"
	"github.com/stagecraft-systems/motion-core/internal/motion/sim"
	"github.com/stagecraft-systems/motion-core/internal/motion/transport"
)

type failingSource struct{}

func (failingSource) MotionDevices() ([]config.DeviceRecord, error) {
	return nil, errors.New("config store unavailable")
}

// hostFailDialer fails dials to specific hosts and delegates the rest.
type hostFailDialer struct {
	inner *sim.Dialer
	fail  map[string]bool
}

func (d *hostFailDialer) Dial(ctx context.Context, host string, port int) (transport.Session, error) {
	if d.fail[host] {
		return nil, fmt.Errorf("%w: %s:%d refused", transport.ErrDialFailed, host, port)
	}
	return d.inner.Dial(ctx, host, port)
}

func testRecords() []config.DeviceRecord {
	return []config.DeviceRecord{
		{Name: "stage-a", Host: "10.1.0.1", Port: 50000, Enabled: true, Family: "stage"},
		{Name: "stage-b", Host: "10.1.0.2", Port: 50000, Enabled: true, Family: "stage", InstalledAxes: "X Y Z"},
		{Name: "stage-dark", Host: "10.1.0.3", Port: 50000, Enabled: false, Family: "stage"},
		{Name: "gantry-a", Host: "10.1.0.4", Port: 701, Enabled: true, Family: "gantry"},
		{Name: "mystery", Host: "10.1.0.5", Port: 1, Enabled: true, Family: "hexapod"},
	}
}

func newTestManager(t *testing.T, family Family, dialer transport.Dialer, source ConfigSource) *Manager {
	t.Helper()
	m := NewManager(family, dialer, source, fastTiming(), nil, nil)
	t.Cleanup(func() { m.DisconnectAll() })
	return m
}

func TestLoadFromConfigFiltersFamilyAndEnabled(t *testing.T) {
	m := newTestManager(t, FamilyStage, &sim.Dialer{}, StaticSource(testRecords()))

	if !m.Initialize() {
		t.Fatal("Initialize failed")
	}

	want := []string{"stage-a", "stage-b"}
	if got := m.GetDeviceNames(); !reflect.DeepEqual(got, want) {
		t.Errorf("GetDeviceNames() = %v, want %v", got, want)
	}
	if got := m.GetDeviceCount(); got != 2 {
		t.Errorf("GetDeviceCount() = %d, want 2", got)
	}
}

func TestLoadFromConfigGantryFamily(t *testing.T) {
	m := newTestManager(t, FamilyGantry, &sim.Dialer{}, StaticSource(testRecords()))
	m.LoadFromConfig()

	want := []string{"gantry-a"}
	if got := m.GetDeviceNames(); !reflect.DeepEqual(got, want) {
		t.Errorf("GetDeviceNames() = %v, want %v", got, want)
	}
}

func TestLoadFromConfigFallsBackToDefaults(t *testing.T) {
	t.Run("stage", func(t *testing.T) {
		m := newTestManager(t, FamilyStage, &sim.Dialer{}, failingSource{})
		m.LoadFromConfig()

		want := []string{"stage-bottom", "stage-left", "stage-right"}
		if got := m.GetDeviceNames(); !reflect.DeepEqual(got, want) {
			t.Errorf("GetDeviceNames() = %v, want %v", got, want)
		}
	})

	t.Run("gantry", func(t *testing.T) {
		m := newTestManager(t, FamilyGantry, &sim.Dialer{}, failingSource{})
		m.LoadFromConfig()

		want := []string{"gantry-1"}
		if got := m.GetDeviceNames(); !reflect.DeepEqual(got, want) {
			t.Errorf("GetDeviceNames() = %v, want %v", got, want)
		}
	})
}

func TestInstalledAxesOverride(t *testing.T) {
	m := newTestManager(t, FamilyStage, &sim.Dialer{}, StaticSource(testRecords()))
	m.LoadFromConfig()

	full := m.GetDevice("stage-a")
	if full == nil {
		t.Fatal("stage-a missing")
	}
	if got := len(full.Axes()); got != 6 {
		t.Errorf("stage-a axes = %d, want the family default 6", got)
	}

	trimmed := m.GetDevice("stage-b")
	if trimmed == nil {
		t.Fatal("stage-b missing")
	}
	if want := []string{"X", "Y", "Z"}; !reflect.DeepEqual(trimmed.Axes(), want) {
		t.Errorf("stage-b axes = %v, want %v", trimmed.Axes(), want)
	}
}

func TestConnectAllReportsAggregateResult(t *testing.T) {
	dialer := &hostFailDialer{
		inner: &sim.Dialer{},
		fail:  map[string]bool{"10.1.0.2": true},
	}
	m := newTestManager(t, FamilyStage, dialer, StaticSource(testRecords()))
	m.LoadFromConfig()

	if m.ConnectAll(context.Background()) {
		t.Error("ConnectAll should report failure when any device fails")
	}

	// The failing device must not stop the others from connecting.
	if !m.IsDeviceConnected("stage-a") {
		t.Error("stage-a should have connected despite stage-b failing")
	}
	if m.IsDeviceConnected("stage-b") {
		t.Error("stage-b should be disconnected")
	}
}

func TestConnectAllAllHealthy(t *testing.T) {
	m := newTestManager(t, FamilyStage, &sim.Dialer{}, StaticSource(testRecords()))
	m.LoadFromConfig()

	if !m.ConnectAll(context.Background()) {
		t.Fatal("ConnectAll failed with healthy devices")
	}
	for _, name := range m.GetDeviceNames() {
		if !m.IsDeviceConnected(name) {
			t.Errorf("device %s not connected", name)
		}
	}

	if !m.DisconnectAll() {
		t.Error("DisconnectAll failed")
	}
	for _, name := range m.GetDeviceNames() {
		if m.IsDeviceConnected(name) {
			t.Errorf("device %s still connected after DisconnectAll", name)
		}
	}
}

func TestConnectDeviceUnknownName(t *testing.T) {
	m := newTestManager(t, FamilyStage, &sim.Dialer{}, StaticSource(testRecords()))
	m.LoadFromConfig()

	if m.ConnectDevice(context.Background(), "no-such-device") {
		t.Error("connecting an unknown device should fail")
	}
	if m.DisconnectDevice("no-such-device") {
		t.Error("disconnecting an unknown device should fail")
	}
	if m.IsDeviceConnected("no-such-device") {
		t.Error("unknown device should report disconnected")
	}
	if m.GetDevice("no-such-device") != nil {
		t.Error("GetDevice for unknown name should return nil")
	}
}

func TestSingleDeviceLifecycle(t *testing.T) {
	m := newTestManager(t, FamilyStage, &sim.Dialer{}, StaticSource(testRecords()))
	m.LoadFromConfig()

	if !m.ConnectDevice(context.Background(), "stage-a") {
		t.Fatal("ConnectDevice failed")
	}
	if !m.IsDeviceConnected("stage-a") {
		t.Error("stage-a should report connected")
	}
	if m.IsDeviceConnected("stage-b") {
		t.Error("stage-b should remain disconnected")
	}

	if !m.DisconnectDevice("stage-a") {
		t.Fatal("DisconnectDevice failed")
	}
	if m.IsDeviceConnected("stage-a") {
		t.Error("stage-a should report disconnected")
	}
}

func TestManagerEndToEnd(t *testing.T) {
	dialer := &sim.Dialer{Velocity: 100000}
	m := newTestManager(t, FamilyStage, dialer, StaticSource(testRecords()))

	if !m.Initialize() {
		t.Fatal("Initialize failed")
	}
	ctx := context.Background()
	if !m.ConnectAll(ctx) {
		t.Fatal("ConnectAll failed")
	}

	dev := m.GetDevice("stage-a")
	if dev == nil {
		t.Fatal("stage-a missing")
	}
	if !dev.MoveAbsolute(ctx, "X", 12.0, true) {
		t.Fatal("blocking move failed")
	}
	if moving, ok := dev.IsMoving("X"); !ok || moving {
		t.Errorf("IsMoving after settle = (%v, %v), want (false, true)", moving, ok)
	}

	deadline := time.Now().Add(time.Second)
	for {
		pos, ok := dev.GetPosition("X")
		if ok && pos == 12.0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("cached position = %v, want 12.0", pos)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if !m.DisconnectAll() {
		t.Error("DisconnectAll failed")
	}
}

func TestParseFamily(t *testing.T) {
	tests := []struct {
		in      string
		want    Family
		wantErr bool
	}{
		{"stage", FamilyStage, false},
		{"GANTRY", FamilyGantry, false},
		{"  stage ", FamilyStage, false},
		{"hexapod", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseFamily(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrUnknownFamily) {
				t.Errorf("ParseFamily(%q) error = %v, want ErrUnknownFamily", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseFamily(%q) = (%v, %v), want (%v, nil)", tt.in, got, err, tt.want)
		}
	}
}

func TestInitializeReloadStopsReplacedControllers(t *testing.T) {
	d := &sim.Dialer{}
	m := newTestManager(t, FamilyStage, d, StaticSource(testRecords()))
	if !m.Initialize() {
		t.Fatal("Initialize failed")
	}
	if !m.ConnectDevice(context.Background(), "stage-a") {
		t.Fatal("ConnectDevice failed")
	}
	old := m.GetDevice("stage-a")

	if !m.Initialize() {
		t.Fatal("second Initialize failed")
	}

	if old.IsConnected() {
		t.Error("controller from the previous registry is still connected after reload")
	}
	if m.IsDeviceConnected("stage-a") {
		t.Error("reloaded registry should start disconnected")
	}
	sessions := d.Sessions()
	if len(sessions) != 1 {
		t.Fatalf("sessions dialed = %d, want 1", len(sessions))
	}
	if !sessions[0].Closed() {
		t.Error("session of the replaced controller should be closed")
	}
}
