package motion

import (
	"context"
	"testing"
	"time"

	"github.com/stagecraft-systems/motion-core/internal/motion/sim"
	"github.com/stagecraft-systems/motion-core/internal/motion/transport"
)

func fastTiming() Timing {
	return Timing{
		PollInterval:    5 * time.Millisecond,
		StalenessWindow: 50 * time.Millisecond,
		WaitInterval:    5 * time.Millisecond,
		MoveTimeout:     2 * time.Second,
	}
}

func newTestStage(t *testing.T, d *sim.Dialer, timing Timing) *StageController {
	t.Helper()
	c := NewStageController(DeviceConfig{
		Name: "stage-test", Host: "10.0.0.1", Port: 50000,
		Axes: []string{"X", "Y", "Z", "U", "V", "W"}, Enabled: true,
	}, timing, d, nil, nil)
	t.Cleanup(func() { c.Disconnect() })
	return c
}

func newTestGantry(t *testing.T, d *sim.Dialer, timing Timing) *GantryController {
	t.Helper()
	c := NewGantryController(DeviceConfig{
		Name: "gantry-test", Host: "10.0.0.2", Port: 701,
		Axes: []string{"X", "Y", "Z"}, Enabled: true,
	}, timing, d, nil, nil)
	t.Cleanup(func() { c.Disconnect() })
	return c
}

func TestConnectIsIdempotent(t *testing.T) {
	d := &sim.Dialer{}
	c := newTestStage(t, d, fastTiming())
	ctx := context.Background()

	if !c.Connect(ctx) {
		t.Fatal("first Connect failed")
	}
	if !c.Connect(ctx) {
		t.Fatal("second Connect should be a no-op success")
	}
	if got := len(d.Sessions()); got != 1 {
		t.Errorf("sessions dialed = %d, want 1", got)
	}
	if !c.IsConnected() {
		t.Error("controller should report connected")
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	d := &sim.Dialer{}
	c := newTestStage(t, d, fastTiming())

	if !c.Disconnect() {
		t.Error("Disconnect before Connect should succeed")
	}

	if !c.Connect(context.Background()) {
		t.Fatal("Connect failed")
	}
	if !c.Disconnect() {
		t.Error("first Disconnect failed")
	}
	if !c.Disconnect() {
		t.Error("second Disconnect should be a no-op success")
	}
	if c.IsConnected() {
		t.Error("controller should report disconnected")
	}
	if !d.Sessions()[0].Closed() {
		t.Error("session should be closed after Disconnect")
	}
}

func TestConnectFailure(t *testing.T) {
	d := &sim.Dialer{FailDial: true}
	c := newTestStage(t, d, fastTiming())

	if c.Connect(context.Background()) {
		t.Error("Connect should fail when the dial fails")
	}
	if c.IsConnected() {
		t.Error("failed connect must not leave the controller connected")
	}
}

func TestConnectEnablesServoAndSeedsCache(t *testing.T) {
	d := &sim.Dialer{}
	c := newTestStage(t, d, fastTiming())

	if !c.Connect(context.Background()) {
		t.Fatal("Connect failed")
	}

	sess := d.Sessions()[0]
	if sess.ExecCount(transport.OpEnableServo) == 0 {
		t.Error("Connect should enable servo on all axes")
	}
	if sess.ExecCount(transport.OpPositions) == 0 {
		t.Error("Connect should perform an initial position read")
	}

	servo, ok := c.IsServoEnabled("X")
	if !ok || !servo {
		t.Errorf("IsServoEnabled = (%v, %v), want (true, true)", servo, ok)
	}
}

func TestConnectAppliesSystemVelocity(t *testing.T) {
	d := &sim.Dialer{}
	timing := fastTiming()
	timing.SystemVelocity = 500
	c := newTestStage(t, d, timing)

	if !c.Connect(context.Background()) {
		t.Fatal("Connect failed")
	}

	sess := d.Sessions()[0]
	if got := sess.ExecCount(transport.OpVelocitySet); got != len(c.Axes()) {
		t.Errorf("velocity set count = %d, want one per axis (%d)", got, len(c.Axes()))
	}
}

func TestDisconnectStopsAllAxes(t *testing.T) {
	d := &sim.Dialer{}
	c := newTestStage(t, d, fastTiming())

	if !c.Connect(context.Background()) {
		t.Fatal("Connect failed")
	}
	sess := d.Sessions()[0]

	if !c.Disconnect() {
		t.Fatal("Disconnect failed")
	}
	if sess.ExecCount(transport.OpStopAll) == 0 {
		t.Error("Disconnect should issue a stop-all before closing the session")
	}
}

func TestOperationsOnDisconnectedController(t *testing.T) {
	d := &sim.Dialer{}
	c := newTestStage(t, d, fastTiming())
	ctx := context.Background()

	if c.MoveAbsolute(ctx, "X", 1.0, false) {
		t.Error("move on disconnected controller should fail")
	}
	if _, ok := c.GetPosition("X"); ok {
		t.Error("position read on disconnected controller should fail")
	}
	if _, ok := c.GetPositions(); ok {
		t.Error("batch position read on disconnected controller should fail")
	}
	if _, ok := c.IsMoving("X"); ok {
		t.Error("moving query on disconnected controller should fail")
	}
	if c.QueueMove("X", CommandMoveAbsolute, 1.0) {
		t.Error("queue on disconnected controller should fail")
	}
}

func TestStageRejectsQueuedMoves(t *testing.T) {
	d := &sim.Dialer{}
	c := newTestStage(t, d, fastTiming())
	if !c.Connect(context.Background()) {
		t.Fatal("Connect failed")
	}

	if c.QueueMove("X", CommandMoveAbsolute, 1.0) {
		t.Error("stage controllers should reject queued moves")
	}
}

func TestUnknownAxisRejected(t *testing.T) {
	d := &sim.Dialer{}
	c := newTestStage(t, d, fastTiming())
	ctx := context.Background()
	if !c.Connect(ctx) {
		t.Fatal("Connect failed")
	}

	if c.MoveAbsolute(ctx, "Q", 1.0, false) {
		t.Error("move on unknown axis should fail")
	}
	if _, ok := c.GetPosition("Q"); ok {
		t.Error("position read on unknown axis should fail")
	}
	if c.WaitForMotionCompletion(ctx, "Q", time.Second) {
		t.Error("wait on unknown axis should fail")
	}
	if c.Home(ctx, "Q") {
		t.Error("home on unknown axis should fail")
	}
}

func TestMoveSetsOptimisticMovingFlag(t *testing.T) {
	// Slow axis so the move is guaranteed still in flight when queried.
	d := &sim.Dialer{Velocity: 1}
	c := newTestStage(t, d, fastTiming())
	ctx := context.Background()
	if !c.Connect(ctx) {
		t.Fatal("Connect failed")
	}

	if !c.MoveAbsolute(ctx, "X", 500, false) {
		t.Fatal("move failed")
	}
	moving, ok := c.IsMoving("X")
	if !ok || !moving {
		t.Errorf("IsMoving right after move = (%v, %v), want (true, true)", moving, ok)
	}
}

func TestBlockingMoveCompletes(t *testing.T) {
	d := &sim.Dialer{Velocity: 100000}
	c := newTestStage(t, d, fastTiming())
	ctx := context.Background()
	if !c.Connect(ctx) {
		t.Fatal("Connect failed")
	}

	if !c.MoveAbsolute(ctx, "X", 25.0, true) {
		t.Fatal("blocking move failed")
	}
	moving, ok := c.IsMoving("X")
	if !ok || moving {
		t.Errorf("IsMoving after blocking move = (%v, %v), want (false, true)", moving, ok)
	}

	// The poll loop refreshes positions continuously; the settled target
	// lands in the cache within a cycle or two.
	deadline := time.Now().Add(time.Second)
	for {
		pos, ok := c.GetPosition("X")
		if ok && pos == 25.0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("cached position = %v, want 25.0", pos)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMoveRelative(t *testing.T) {
	d := &sim.Dialer{Velocity: 100000}
	c := newTestStage(t, d, fastTiming())
	ctx := context.Background()
	if !c.Connect(ctx) {
		t.Fatal("Connect failed")
	}

	if !c.MoveAbsolute(ctx, "Y", 10.0, true) {
		t.Fatal("absolute move failed")
	}
	if !c.MoveRelative(ctx, "Y", -4.0, true) {
		t.Fatal("relative move failed")
	}

	deadline := time.Now().Add(time.Second)
	for {
		pos, ok := c.GetPosition("Y")
		if ok && pos == 6.0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("cached position = %v, want 6.0", pos)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWaitTimeout(t *testing.T) {
	d := &sim.Dialer{HoldMoving: true}
	c := newTestStage(t, d, fastTiming())
	ctx := context.Background()
	if !c.Connect(ctx) {
		t.Fatal("Connect failed")
	}

	start := time.Now()
	if c.WaitForMotionCompletion(ctx, "X", 40*time.Millisecond) {
		t.Error("wait should time out while the axis keeps moving")
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("wait returned after %v, before the timeout", elapsed)
	}
}

func TestWaitRejectsNonPositiveTimeout(t *testing.T) {
	d := &sim.Dialer{}
	c := newTestStage(t, d, fastTiming())
	ctx := context.Background()
	if !c.Connect(ctx) {
		t.Fatal("Connect failed")
	}

	if c.WaitForMotionCompletion(ctx, "X", 0) {
		t.Error("zero timeout must be rejected")
	}
	if c.WaitForMotionCompletion(ctx, "X", -time.Second) {
		t.Error("negative timeout must be rejected")
	}
}

func TestWaitHonoursContextCancel(t *testing.T) {
	d := &sim.Dialer{HoldMoving: true}
	c := newTestStage(t, d, fastTiming())
	if !c.Connect(context.Background()) {
		t.Fatal("Connect failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	if c.WaitForMotionCompletion(ctx, "X", 10*time.Second) {
		t.Error("cancelled wait should report failure")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("cancel took %v to unblock the wait", elapsed)
	}
}

func TestStaleStatusTriggersRequery(t *testing.T) {
	// Poll loop effectively disabled so only direct queries refresh.
	timing := Timing{
		PollInterval:    time.Hour,
		StalenessWindow: 50 * time.Millisecond,
		WaitInterval:    5 * time.Millisecond,
	}
	d := &sim.Dialer{Velocity: 1}
	c := newTestStage(t, d, timing)
	ctx := context.Background()
	if !c.Connect(ctx) {
		t.Fatal("Connect failed")
	}

	sess := d.Sessions()[0]
	before := sess.ExecCount(transport.OpMoving)

	time.Sleep(60 * time.Millisecond)
	if _, ok := c.IsMoving("X"); !ok {
		t.Fatal("IsMoving failed")
	}
	if after := sess.ExecCount(transport.OpMoving); after <= before {
		t.Error("stale status should force a hardware re-query")
	}

	// Immediately after the re-query the status is fresh again and no
	// further hardware read happens.
	mid := sess.ExecCount(transport.OpMoving)
	if _, ok := c.IsMoving("X"); !ok {
		t.Fatal("IsMoving failed")
	}
	if final := sess.ExecCount(transport.OpMoving); final != mid {
		t.Error("fresh status should be served from cache")
	}
}

func TestGantryDrainsQueuedMoves(t *testing.T) {
	timing := fastTiming()
	d := &sim.Dialer{Velocity: 100000}
	c := newTestGantry(t, d, timing)
	ctx := context.Background()
	if !c.Connect(ctx) {
		t.Fatal("Connect failed")
	}

	if !c.QueueMove("X", CommandMoveAbsolute, 7.0) {
		t.Fatal("QueueMove failed")
	}
	if !c.QueueMove("X", CommandMoveRelative, 3.0) {
		t.Fatal("QueueMove failed")
	}

	if !c.WaitForMotionCompletion(ctx, "X", 2*time.Second) {
		t.Fatal("queued moves did not settle")
	}

	deadline := time.Now().Add(time.Second)
	for {
		pos, ok := c.GetPosition("X")
		if ok && pos == 10.0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("cached position = %v, want 10.0", pos)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStageDefineHome(t *testing.T) {
	d := &sim.Dialer{Velocity: 100000}
	c := newTestStage(t, d, fastTiming())
	ctx := context.Background()
	if !c.Connect(ctx) {
		t.Fatal("Connect failed")
	}

	if !c.MoveAbsolute(ctx, "Z", 5.0, true) {
		t.Fatal("move failed")
	}
	if !c.DefineHome(ctx, "Z") {
		t.Fatal("DefineHome failed")
	}
	pos, ok := c.GetPosition("Z")
	if !ok || pos != 0 {
		t.Errorf("position after DefineHome = (%v, %v), want (0, true)", pos, ok)
	}
}

func TestHomeReturnsToZero(t *testing.T) {
	d := &sim.Dialer{Velocity: 100000}
	c := newTestStage(t, d, fastTiming())
	ctx := context.Background()
	if !c.Connect(ctx) {
		t.Fatal("Connect failed")
	}

	if !c.MoveAbsolute(ctx, "X", 50.0, true) {
		t.Fatal("move failed")
	}
	if !c.Home(ctx, "X") {
		t.Fatal("Home failed")
	}

	deadline := time.Now().Add(time.Second)
	for {
		pos, ok := c.GetPosition("X")
		if ok && pos == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("cached position after home = %v, want 0", pos)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStageIdentification(t *testing.T) {
	d := &sim.Dialer{Ident: "ACME STAGE-6 FW 2.4"}
	c := newTestStage(t, d, fastTiming())
	if !c.Connect(context.Background()) {
		t.Fatal("Connect failed")
	}

	id, ok := c.GetIdentification(context.Background())
	if !ok || id != "ACME STAGE-6 FW 2.4" {
		t.Errorf("GetIdentification = (%q, %v), want (%q, true)", id, ok, "ACME STAGE-6 FW 2.4")
	}
}

func TestGantryIdentificationConcat(t *testing.T) {
	d := &sim.Dialer{Ident: "GNT-3 FW 1.7", Serial: "SN-4471"}
	c := newTestGantry(t, d, fastTiming())
	ctx := context.Background()
	if !c.Connect(ctx) {
		t.Fatal("Connect failed")
	}

	id, ok := c.GetIdentification(ctx)
	if !ok || id != "GNT-3 FW 1.7 SN-4471" {
		t.Errorf("GetIdentification = (%q, %v), want firmware and serial joined", id, ok)
	}
}

func TestGantryIdentificationPartial(t *testing.T) {
	d := &sim.Dialer{
		Ident:   "GNT-3 FW 1.7",
		FailOps: map[transport.OpCode]bool{transport.OpSerial: true},
	}
	c := newTestGantry(t, d, fastTiming())
	ctx := context.Background()
	if !c.Connect(ctx) {
		t.Fatal("Connect failed")
	}

	id, ok := c.GetIdentification(ctx)
	if !ok || id != "GNT-3 FW 1.7" {
		t.Errorf("GetIdentification = (%q, %v), want firmware only", id, ok)
	}

	d.FailOps[transport.OpIdent] = true
	if _, ok := c.GetIdentification(ctx); ok {
		t.Error("identification should fail when both queries fail")
	}
}

func TestStopAxis(t *testing.T) {
	d := &sim.Dialer{Velocity: 1}
	c := newTestStage(t, d, fastTiming())
	ctx := context.Background()
	if !c.Connect(ctx) {
		t.Fatal("Connect failed")
	}

	if !c.MoveAbsolute(ctx, "X", 1000, false) {
		t.Fatal("move failed")
	}
	if !c.StopAxis("X") {
		t.Fatal("StopAxis failed")
	}
	if !c.WaitForMotionCompletion(ctx, "X", time.Second) {
		t.Error("axis should settle after stop")
	}
}

func TestVelocityRoundTrip(t *testing.T) {
	d := &sim.Dialer{Velocity: 250}
	c := newTestStage(t, d, fastTiming())
	if !c.Connect(context.Background()) {
		t.Fatal("Connect failed")
	}

	if !c.SetVelocity("X", 250) {
		t.Error("SetVelocity failed")
	}
	v, ok := c.GetVelocity("X")
	if !ok || v != 250 {
		t.Errorf("GetVelocity = (%v, %v), want (250, true)", v, ok)
	}
}

func TestGetPositionServedFromCache(t *testing.T) {
	// Poll loop effectively disabled so the exec counter stays still.
	timing := Timing{
		PollInterval:    time.Hour,
		StalenessWindow: 50 * time.Millisecond,
		WaitInterval:    5 * time.Millisecond,
	}
	d := &sim.Dialer{}
	c := newTestStage(t, d, timing)
	if !c.Connect(context.Background()) {
		t.Fatal("Connect failed")
	}

	sess := d.Sessions()[0]
	before := sess.ExecCount(transport.OpPositions)
	for i := 0; i < 3; i++ {
		if _, ok := c.GetPosition("X"); !ok {
			t.Fatal("GetPosition failed for an installed axis")
		}
	}
	if got := sess.ExecCount(transport.OpPositions); got != before {
		t.Errorf("GetPosition issued %d hardware reads, want 0", got-before)
	}
}

// callbackSink calls back into its controller from the event path, the way
// a telemetry recorder that checks connection state would.
type callbackSink struct {
	dev      Controller
	events   []string
	observed []bool
}

func (s *callbackSink) DeviceState(string, Family, map[string]AxisState) {}

func (s *callbackSink) DeviceEvent(_ string, event string, _ map[string]any) {
	s.events = append(s.events, event)
	s.observed = append(s.observed, s.dev.IsConnected())
}

func TestConnectEventEmittedOutsideLock(t *testing.T) {
	sink := &callbackSink{}
	c := NewStageController(DeviceConfig{
		Name: "stage-test", Host: "10.0.0.1", Port: 50000,
		Axes: []string{"X", "Y", "Z"}, Enabled: true,
	}, fastTiming(), &sim.Dialer{}, nil, sink)
	sink.dev = c
	t.Cleanup(func() { c.Disconnect() })

	done := make(chan bool, 1)
	go func() { done <- c.Connect(context.Background()) }()
	select {
	case ok := <-done:
		if !ok {
			t.Fatal("Connect failed")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Connect blocked emitting the connected event")
	}

	if len(sink.events) != 1 || sink.events[0] != "connected" {
		t.Fatalf("events = %v, want [connected]", sink.events)
	}
	if !sink.observed[0] {
		t.Error("connected event should observe IsConnected() == true")
	}
}
