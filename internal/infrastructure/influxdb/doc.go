// Package influxdb stores Motion Core's time-series telemetry.
//
// Three measurements cover the motion domain: axis_position traces
// sampled by the controller poll loops, axis_status flags (moving, servo)
// for dashboard overlays, and motion_event records with per-move settle
// durations. WritePoint and WritePointWithTime exist for anything that
// does not fit those shapes.
//
// All writes are non-blocking: points are batched per the yaml settings
// (batch_size, flush_interval) and shipped in the background, so a slow
// or absent database never stalls a 50ms poll cycle. Batch failures are
// delivered through SetOnError; there is nothing to check at the call
// site.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteAxisPosition("stage-left", "X", 12.503)
package influxdb
