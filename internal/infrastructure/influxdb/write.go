package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteAxisPosition records one position sample for an axis. This is the
// hot path, called from the poll loops, so it is fire-and-forget: the
// point lands in the batch buffer and the call returns.
func (c *Client) WriteAxisPosition(device, axis string, position float64) {
	c.writePoint("axis_position",
		map[string]string{"device": device, "axis": axis},
		map[string]interface{}{"position": position},
		time.Now())
}

// WriteAxisStatus records the moving and servo flags for an axis.
// Booleans go in as 0/1 so dashboards can plot activity bands under the
// position traces.
func (c *Client) WriteAxisStatus(device, axis string, moving, servoEnabled bool) {
	c.writePoint("axis_status",
		map[string]string{"device": device, "axis": axis},
		map[string]interface{}{
			"moving": boolField(moving),
			"servo":  boolField(servoEnabled),
		},
		time.Now())
}

// WriteMotionEvent records a completed move: the commanded target and
// the wall time from command acceptance to settle.
func (c *Client) WriteMotionEvent(device, axis string, target, durationMs float64) {
	c.writePoint("motion_event",
		map[string]string{"device": device, "axis": axis},
		map[string]interface{}{
			"target":      target,
			"duration_ms": durationMs,
		},
		time.Now())
}

// WritePoint records a custom measurement. Keep tags low-cardinality;
// high-cardinality values belong in fields.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.writePoint(measurement, tags, fields, time.Now())
}

// WritePointWithTime is WritePoint with an explicit timestamp, for data
// that arrives late.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, ts time.Time) {
	c.writePoint(measurement, tags, fields, ts)
}

func (c *Client) writePoint(measurement string, tags map[string]string, fields map[string]interface{}, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(write.NewPoint(measurement, tags, fields, ts))
}

func boolField(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
