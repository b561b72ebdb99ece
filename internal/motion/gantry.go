package motion

import (
	"context"
	"strings"

	"github.com/stagecraft-systems/motion-core/internal/motion/transport"
)

// GantryController drives a three-axis gantry over a slow serial bridge.
// Each poll cycle drains the pending-command queue before reading state so
// queued moves are never starved by status traffic, refreshes positions
// every cycle, and refreshes moving and servo flags every third cycle.
type GantryController struct {
	*baseController
}

var _ Controller = (*GantryController)(nil)

// NewGantryController builds a controller for one gantry device.
func NewGantryController(cfg DeviceConfig, timing Timing, dialer transport.Dialer, log Logger, sink StateSink) *GantryController {
	cfg.Family = FamilyGantry
	c := &GantryController{newBaseController(cfg, timing, dialer, log, sink)}
	c.cycle = c.pollCycle
	return c
}

func (c *GantryController) pollCycle(n uint64) {
	sess := c.currentSession()
	if sess == nil {
		return
	}
	ctx := context.Background()

	c.drainQueue(ctx, sess)
	c.refreshPositions(ctx, sess)
	if n%3 == 0 {
		c.refreshStatus(ctx, sess)
	}
}

// GetIdentification concatenates the firmware banner and serial number.
// Either query may fail on older firmware; the result is usable as long
// as at least one answered.
func (c *GantryController) GetIdentification(ctx context.Context) (string, bool) {
	var parts []string

	if resp, ok := c.exec(ctx, transport.Request{Op: transport.OpIdent}); ok && resp.Text != "" {
		parts = append(parts, resp.Text)
	}
	if resp, ok := c.exec(ctx, transport.Request{Op: transport.OpSerial}); ok && resp.Text != "" {
		parts = append(parts, resp.Text)
	}

	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, " "), true
}
