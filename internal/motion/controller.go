package motion

import (
	"context"
	"sync"
	"time"

	"github.com/stagecraft-systems/motion-core/internal/motion/transport"
)

// Controller is the capability surface a motion device exposes. Both
// hardware families implement it; callers obtain instances from a Manager
// and must not retain them past DisconnectAll.
//
// Command methods report success as a boolean. Failures are logged by the
// controller with the vendor detail; callers only branch on the outcome.
type Controller interface {
	Name() string
	Family() Family
	Axes() []string

	Connect(ctx context.Context) bool
	Disconnect() bool
	IsConnected() bool

	GetPosition(axis string) (float64, bool)
	GetPositions() (map[string]float64, bool)
	GetState() map[string]AxisState
	IsMoving(axis string) (bool, bool)
	IsServoEnabled(axis string) (bool, bool)
	EnableServo(ctx context.Context, axis string) bool

	MoveAbsolute(ctx context.Context, axis string, target float64, blocking bool) bool
	MoveRelative(ctx context.Context, axis string, delta float64, blocking bool) bool
	QueueMove(axis string, kind CommandKind, value float64) bool
	Home(ctx context.Context, axis string) bool
	StopAxis(axis string) bool
	StopAll() bool

	GetVelocity(axis string) (float64, bool)
	SetVelocity(axis string, velocity float64) bool
	GetIdentification(ctx context.Context) (string, bool)

	WaitForMotionCompletion(ctx context.Context, axis string, timeout time.Duration) bool
}

// baseController carries the machinery shared by both families: session
// lifecycle, the state cache, the pending-command queue, cache-first reads
// with staleness re-query, and motion-completion waiting. Family types
// embed it and supply the poll cycle.
type baseController struct {
	cfg    DeviceConfig
	timing Timing
	dialer transport.Dialer
	log    Logger
	sink   StateSink

	cache *stateCache
	queue commandQueue

	// mu guards session lifecycle state. Exec calls take a session
	// reference under the lock and release it before the network round
	// trip so the poll loop and callers do not serialize on I/O.
	mu        sync.Mutex
	session   transport.Session
	connected bool
	done      chan struct{}
	wg        sync.WaitGroup

	// cycle runs one poll iteration. Set by the family constructor.
	cycle func(n uint64)
}

func newBaseController(cfg DeviceConfig, timing Timing, dialer transport.Dialer, log Logger, sink StateSink) *baseController {
	if log == nil {
		log = nopLogger{}
	}
	return &baseController{
		cfg:    cfg,
		timing: timing.withDefaults(cfg.Family),
		dialer: dialer,
		log:    log,
		sink:   sink,
		cache:  newStateCache(cfg.Axes),
	}
}

func (c *baseController) Name() string   { return c.cfg.Name }
func (c *baseController) Family() Family { return c.cfg.Family }

func (c *baseController) Axes() []string {
	out := make([]string, len(c.cfg.Axes))
	copy(out, c.cfg.Axes)
	return out
}

func (c *baseController) hasAxis(axis string) bool {
	for _, a := range c.cfg.Axes {
		if a == axis {
			return true
		}
	}
	return false
}

// Connect dials the device, seeds the cache with a fresh state read, and
// starts the poll loop. Connecting an already connected controller is a
// no-op that returns true.
func (c *baseController) Connect(ctx context.Context) bool {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return true
	}

	sess, err := c.dialer.Dial(ctx, c.cfg.Host, c.cfg.Port)
	if err != nil {
		c.mu.Unlock()
		c.log.Error("device connect failed",
			"device", c.cfg.Name, "host", c.cfg.Host, "port", c.cfg.Port, "error", err)
		return false
	}

	c.session = sess
	c.cache.reset()

	// Servo on for all installed axes, then an initial batch read so the
	// cache holds real values before the first poll tick.
	if _, err := sess.Exec(ctx, transport.Request{Op: transport.OpEnableServo, Axes: c.cfg.Axes}); err != nil {
		c.log.Warn("initial servo enable failed", "device", c.cfg.Name, "error", err)
	}
	if v := c.timing.SystemVelocity; v > 0 {
		for _, axis := range c.cfg.Axes {
			if _, err := sess.Exec(ctx, transport.Request{Op: transport.OpVelocitySet, Axes: []string{axis}, Values: []float64{v}}); err != nil {
				c.log.Warn("system velocity apply failed",
					"device", c.cfg.Name, "axis", axis, "velocity", v, "error", err)
			}
		}
	}
	c.refreshPositions(ctx, sess)
	c.refreshStatus(ctx, sess)

	c.done = make(chan struct{})
	c.connected = true
	c.wg.Add(1)
	go c.pollLoop(c.done)
	c.mu.Unlock()

	// The sink may journal synchronously or call back into the controller,
	// so the event is emitted after the lock is released.
	c.log.Info("device connected",
		"device", c.cfg.Name, "family", string(c.cfg.Family),
		"host", c.cfg.Host, "port", c.cfg.Port, "axes", len(c.cfg.Axes))
	c.emitEvent("connected", nil)
	return true
}

// Disconnect stops the poll loop, waits for it to exit, then closes the
// session. Disconnecting an already disconnected controller is a no-op
// that returns true.
func (c *baseController) Disconnect() bool {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return true
	}
	done := c.done
	sess := c.session
	c.connected = false
	c.session = nil
	c.done = nil
	c.mu.Unlock()

	close(done)
	c.wg.Wait()

	// Best-effort halt before the link goes away so nothing keeps moving
	// unsupervised.
	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	if _, err := sess.Exec(stopCtx, transport.Request{Op: transport.OpStopAll}); err != nil {
		c.log.Debug("stop-all on disconnect failed", "device", c.cfg.Name, "error", err)
	}
	cancel()

	ok := true
	if err := sess.Close(); err != nil {
		c.log.Warn("session close failed", "device", c.cfg.Name, "error", err)
		ok = false
	}

	c.log.Info("device disconnected", "device", c.cfg.Name)
	c.emitEvent("disconnected", nil)
	return ok
}

func (c *baseController) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// currentSession returns the live session, or nil when disconnected.
func (c *baseController) currentSession() transport.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil
	}
	return c.session
}

// exec runs one request against the live session with the poll interval as
// an upper bound on how long a single round trip may take.
func (c *baseController) exec(ctx context.Context, req transport.Request) (transport.Response, bool) {
	sess := c.currentSession()
	if sess == nil {
		c.log.Debug("command on disconnected device", "device", c.cfg.Name, "op", string(req.Op))
		return transport.Response{}, false
	}

	resp, err := sess.Exec(ctx, req)
	if err != nil {
		c.log.Warn("hardware command failed",
			"device", c.cfg.Name, "op", string(req.Op), "error", err)
		return transport.Response{}, false
	}
	return resp, true
}

func (c *baseController) pollLoop(done chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.timing.PollInterval)
	defer ticker.Stop()

	var n uint64
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			n++
			c.cycle(n)
			c.publishState()
		}
	}
}

// refreshPositions batch-reads every axis position into the cache.
func (c *baseController) refreshPositions(ctx context.Context, sess transport.Session) {
	resp, err := sess.Exec(ctx, transport.Request{Op: transport.OpPositions, Axes: c.cfg.Axes})
	if err != nil {
		c.log.Debug("position poll failed", "device", c.cfg.Name, "error", err)
		return
	}
	if len(resp.Values) != len(c.cfg.Axes) {
		c.log.Warn("position poll returned short response",
			"device", c.cfg.Name, "got", len(resp.Values), "want", len(c.cfg.Axes))
		return
	}
	positions := make(map[string]float64, len(c.cfg.Axes))
	for i, axis := range c.cfg.Axes {
		positions[axis] = resp.Values[i]
	}
	c.cache.setPositions(positions)
}

// refreshStatus batch-reads moving and servo flags into the cache and
// stamps status freshness.
func (c *baseController) refreshStatus(ctx context.Context, sess transport.Session) {
	moving := c.readFlags(ctx, sess, transport.OpMoving)
	servo := c.readFlags(ctx, sess, transport.OpServo)
	if moving == nil && servo == nil {
		return
	}
	c.cache.setStatus(moving, servo)
}

// refreshMoving batch-reads only the moving flags.
func (c *baseController) refreshMoving(ctx context.Context, sess transport.Session) {
	moving := c.readFlags(ctx, sess, transport.OpMoving)
	if moving == nil {
		return
	}
	c.cache.setStatus(moving, nil)
}

func (c *baseController) readFlags(ctx context.Context, sess transport.Session, op transport.OpCode) map[string]bool {
	resp, err := sess.Exec(ctx, transport.Request{Op: op, Axes: c.cfg.Axes})
	if err != nil {
		c.log.Debug("status poll failed", "device", c.cfg.Name, "op", string(op), "error", err)
		return nil
	}
	if len(resp.Flags) != len(c.cfg.Axes) {
		return nil
	}
	out := make(map[string]bool, len(c.cfg.Axes))
	for i, axis := range c.cfg.Axes {
		out[axis] = resp.Flags[i]
	}
	return out
}

func (c *baseController) publishState() {
	if c.sink == nil {
		return
	}
	c.sink.DeviceState(c.cfg.Name, c.cfg.Family, c.cache.snapshot())
}

func (c *baseController) emitEvent(event string, detail map[string]any) {
	if c.sink == nil {
		return
	}
	c.sink.DeviceEvent(c.cfg.Name, event, detail)
}

// GetPosition serves from cache, never the hardware. The cache holds an
// entry for every installed axis from construction onward, seeded on
// connect and refreshed every poll cycle, so a cached value always exists.
func (c *baseController) GetPosition(axis string) (float64, bool) {
	if !c.hasAxis(axis) {
		c.log.Warn("unknown axis", "device", c.cfg.Name, "axis", axis)
		return 0, false
	}
	if !c.IsConnected() {
		return 0, false
	}
	st, _ := c.cache.get(axis)
	return st.Position, true
}

// GetPositions returns all cached positions.
func (c *baseController) GetPositions() (map[string]float64, bool) {
	if !c.IsConnected() {
		return nil, false
	}
	snap := c.cache.snapshot()
	out := make(map[string]float64, len(snap))
	for axis, st := range snap {
		out[axis] = st.Position
	}
	return out, true
}

// GetState returns a copy of the full cached axis state.
func (c *baseController) GetState() map[string]AxisState {
	return c.cache.snapshot()
}

// IsMoving answers from cache while the last status read is within the
// staleness window, and re-queries the hardware otherwise. The second
// return is false when the answer could not be determined.
func (c *baseController) IsMoving(axis string) (bool, bool) {
	if !c.hasAxis(axis) {
		c.log.Warn("unknown axis", "device", c.cfg.Name, "axis", axis)
		return false, false
	}
	sess := c.currentSession()
	if sess == nil {
		return false, false
	}

	if !c.cache.statusFresh(c.timing.StalenessWindow) {
		c.refreshStatus(context.Background(), sess)
	}
	st, ok := c.cache.get(axis)
	if !ok {
		return false, false
	}
	return st.Moving, true
}

// IsServoEnabled follows the same staleness policy as IsMoving.
func (c *baseController) IsServoEnabled(axis string) (bool, bool) {
	if !c.hasAxis(axis) {
		c.log.Warn("unknown axis", "device", c.cfg.Name, "axis", axis)
		return false, false
	}
	sess := c.currentSession()
	if sess == nil {
		return false, false
	}

	if !c.cache.statusFresh(c.timing.StalenessWindow) {
		c.refreshStatus(context.Background(), sess)
	}
	st, ok := c.cache.get(axis)
	if !ok {
		return false, false
	}
	return st.ServoEnabled, true
}

// EnableServo switches the servo loop on for one axis.
func (c *baseController) EnableServo(ctx context.Context, axis string) bool {
	if !c.hasAxis(axis) {
		c.log.Warn("unknown axis", "device", c.cfg.Name, "axis", axis)
		return false
	}
	_, ok := c.exec(ctx, transport.Request{Op: transport.OpEnableServo, Axes: []string{axis}})
	return ok
}

// move issues one move command, optimistically marks the axis moving, and
// optionally blocks until motion settles.
func (c *baseController) move(ctx context.Context, op transport.OpCode, axis string, value float64, blocking bool) bool {
	if !c.hasAxis(axis) {
		c.log.Warn("unknown axis", "device", c.cfg.Name, "axis", axis)
		return false
	}

	_, ok := c.exec(ctx, transport.Request{Op: op, Axes: []string{axis}, Values: []float64{value}})
	if !ok {
		return false
	}
	c.cache.markMoving(axis)
	c.log.Debug("move issued",
		"device", c.cfg.Name, "axis", axis, "op", string(op), "value", value, "blocking", blocking)

	if !blocking {
		return true
	}
	return c.WaitForMotionCompletion(ctx, axis, c.timing.MoveTimeout)
}

// MoveAbsolute commands an axis to an absolute target.
func (c *baseController) MoveAbsolute(ctx context.Context, axis string, target float64, blocking bool) bool {
	return c.move(ctx, transport.OpMoveAbs, axis, target, blocking)
}

// MoveRelative commands an axis by a signed offset.
func (c *baseController) MoveRelative(ctx context.Context, axis string, delta float64, blocking bool) bool {
	return c.move(ctx, transport.OpMoveRel, axis, delta, blocking)
}

// QueueMove enqueues a move for the poll loop to execute at the start of
// its next cycle. The axis is optimistically marked moving on enqueue so
// completion waits started immediately afterwards do not race the drain.
func (c *baseController) QueueMove(axis string, kind CommandKind, value float64) bool {
	if !c.hasAxis(axis) {
		c.log.Warn("unknown axis", "device", c.cfg.Name, "axis", axis)
		return false
	}
	if !c.IsConnected() {
		return false
	}
	c.queue.push(PendingCommand{Axis: axis, Kind: kind, Value: value})
	c.cache.markMoving(axis)
	c.log.Debug("move queued", "device", c.cfg.Name, "axis", axis, "value", value, "depth", c.queue.len())
	return true
}

// drainQueue executes all pending moves in FIFO order.
func (c *baseController) drainQueue(ctx context.Context, sess transport.Session) {
	for _, cmd := range c.queue.drain() {
		op := transport.OpMoveAbs
		if cmd.Kind == CommandMoveRelative {
			op = transport.OpMoveRel
		}
		if _, err := sess.Exec(ctx, transport.Request{Op: op, Axes: []string{cmd.Axis}, Values: []float64{cmd.Value}}); err != nil {
			c.log.Warn("queued move failed",
				"device", c.cfg.Name, "axis", cmd.Axis, "error", err)
			continue
		}
		c.cache.markMoving(cmd.Axis)
	}
}

// Home drives one axis to its reference position and blocks until the
// homing move settles.
func (c *baseController) Home(ctx context.Context, axis string) bool {
	if !c.hasAxis(axis) {
		c.log.Warn("unknown axis", "device", c.cfg.Name, "axis", axis)
		return false
	}
	_, ok := c.exec(ctx, transport.Request{Op: transport.OpHome, Axes: []string{axis}})
	if !ok {
		return false
	}
	c.cache.markMoving(axis)
	c.emitEvent("homing", map[string]any{"axis": axis})
	return c.WaitForMotionCompletion(ctx, axis, c.timing.MoveTimeout)
}

// StopAxis halts one axis immediately.
func (c *baseController) StopAxis(axis string) bool {
	if !c.hasAxis(axis) {
		c.log.Warn("unknown axis", "device", c.cfg.Name, "axis", axis)
		return false
	}
	_, ok := c.exec(context.Background(), transport.Request{Op: transport.OpStop, Axes: []string{axis}})
	if ok {
		c.emitEvent("stopped", map[string]any{"axis": axis})
	}
	return ok
}

// StopAll halts every axis immediately.
func (c *baseController) StopAll() bool {
	_, ok := c.exec(context.Background(), transport.Request{Op: transport.OpStopAll})
	if ok {
		c.emitEvent("stopped", nil)
	}
	return ok
}

// GetVelocity reads one axis' commanded velocity directly from hardware.
func (c *baseController) GetVelocity(axis string) (float64, bool) {
	if !c.hasAxis(axis) {
		c.log.Warn("unknown axis", "device", c.cfg.Name, "axis", axis)
		return 0, false
	}
	resp, ok := c.exec(context.Background(), transport.Request{Op: transport.OpVelocityGet, Axes: []string{axis}})
	if !ok || len(resp.Values) < 1 {
		return 0, false
	}
	return resp.Values[0], true
}

// SetVelocity sets one axis' commanded velocity.
func (c *baseController) SetVelocity(axis string, velocity float64) bool {
	if !c.hasAxis(axis) {
		c.log.Warn("unknown axis", "device", c.cfg.Name, "axis", axis)
		return false
	}
	_, ok := c.exec(context.Background(), transport.Request{Op: transport.OpVelocitySet, Axes: []string{axis}, Values: []float64{velocity}})
	return ok
}

// WaitForMotionCompletion polls the moving flag until the axis settles,
// the timeout elapses, or the context is cancelled. A non-positive timeout
// is rejected; every wait must be bounded.
func (c *baseController) WaitForMotionCompletion(ctx context.Context, axis string, timeout time.Duration) bool {
	if !c.hasAxis(axis) {
		c.log.Warn("unknown axis", "device", c.cfg.Name, "axis", axis)
		return false
	}
	if timeout <= 0 {
		c.log.Error("motion wait requires a positive timeout", "device", c.cfg.Name, "axis", axis)
		return false
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(c.timing.WaitInterval)
	defer ticker.Stop()

	for {
		moving, ok := c.IsMoving(axis)
		if !ok {
			return false
		}
		if !moving {
			return true
		}

		select {
		case <-ctx.Done():
			c.log.Warn("motion wait cancelled", "device", c.cfg.Name, "axis", axis)
			return false
		case <-deadline.C:
			c.log.Warn("motion wait timed out",
				"device", c.cfg.Name, "axis", axis, "timeout", timeout)
			return false
		case <-ticker.C:
		}
	}
}
