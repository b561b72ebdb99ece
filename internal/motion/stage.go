package motion

import (
	"context"

	"github.com/stagecraft-systems/motion-core/internal/motion/transport"
)

// StageController drives a six-axis positioning stage. The link is fast,
// so the poll loop refreshes positions and moving flags every cycle and
// servo flags every third cycle.
type StageController struct {
	*baseController
}

var _ Controller = (*StageController)(nil)

// NewStageController builds a controller for one stage device.
func NewStageController(cfg DeviceConfig, timing Timing, dialer transport.Dialer, log Logger, sink StateSink) *StageController {
	cfg.Family = FamilyStage
	c := &StageController{newBaseController(cfg, timing, dialer, log, sink)}
	c.cycle = c.pollCycle
	return c
}

func (c *StageController) pollCycle(n uint64) {
	sess := c.currentSession()
	if sess == nil {
		return
	}
	ctx := context.Background()

	c.refreshPositions(ctx, sess)
	if n%3 == 0 {
		c.refreshStatus(ctx, sess)
	} else {
		c.refreshMoving(ctx, sess)
	}
}

// QueueMove is a gantry facility. Stage moves execute synchronously on
// the caller; there is no pending queue to defer them to.
func (c *StageController) QueueMove(axis string, _ CommandKind, _ float64) bool {
	c.log.Warn("queued moves are not supported on stage controllers",
		"device", c.cfg.Name, "axis", axis)
	return false
}

// DefineHome declares the current position of an axis as its new zero.
// Stage hardware supports redefining the reference in place; gantries must
// re-home instead.
func (c *StageController) DefineHome(ctx context.Context, axis string) bool {
	if !c.hasAxis(axis) {
		c.log.Warn("unknown axis", "device", c.cfg.Name, "axis", axis)
		return false
	}
	_, ok := c.exec(ctx, transport.Request{Op: transport.OpDefineHome, Axes: []string{axis}})
	if ok {
		c.cache.setPosition(axis, 0)
		c.emitEvent("home_defined", map[string]any{"axis": axis})
	}
	return ok
}

// GetIdentification returns the controller's identification string.
func (c *StageController) GetIdentification(ctx context.Context) (string, bool) {
	resp, ok := c.exec(ctx, transport.Request{Op: transport.OpIdent})
	if !ok {
		return "", false
	}
	return resp.Text, true
}
