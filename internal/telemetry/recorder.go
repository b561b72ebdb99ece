// Package telemetry fans controller state out to the MQTT bus, the time
// series store, and the motion journal.
//
// Controllers publish through the motion.StateSink interface; the Recorder
// here is the production implementation. Every sink is optional so the
// system degrades gracefully when a backend is down or disabled.
package telemetry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/stagecraft-systems/motion-core/internal/infrastructure/logging"
	"github.com/stagecraft-systems/motion-core/internal/infrastructure/mqtt"
	"github.com/stagecraft-systems/motion-core/internal/journal"
	"github.com/stagecraft-systems/motion-core/internal/motion"
)

// Publisher is the slice of the MQTT client the recorder uses.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// MetricsWriter is the slice of the InfluxDB client the recorder uses.
// Writes are fire-and-forget; the client batches them in the background.
type MetricsWriter interface {
	WriteAxisPosition(device, axis string, position float64)
	WriteAxisStatus(device, axis string, moving, servoEnabled bool)
	WriteMotionEvent(device, axis string, target float64, durationMs float64)
	IsConnected() bool
}

// Recorder implements motion.StateSink. Nil backends are skipped, so a
// deployment without InfluxDB or a broker still runs.
type Recorder struct {
	publisher Publisher
	metrics   MetricsWriter
	journal   journal.Repository
	log       *logging.Logger
}

// NewRecorder wires the available backends. Any of them may be nil.
func NewRecorder(publisher Publisher, metrics MetricsWriter, repo journal.Repository, log *logging.Logger) *Recorder {
	if log == nil {
		log = logging.Default()
	}
	return &Recorder{
		publisher: publisher,
		metrics:   metrics,
		journal:   repo,
		log:       log,
	}
}

var _ motion.StateSink = (*Recorder)(nil)

// statePayload is the JSON document published on the device state topic.
type statePayload struct {
	Device    string                      `json:"device"`
	Family    string                      `json:"family"`
	Axes      map[string]motion.AxisState `json:"axes"`
	Timestamp time.Time                   `json:"timestamp"`
}

// DeviceState publishes a retained state document and records axis
// metrics. Called from controller poll loops, so all work here is
// non-blocking.
func (r *Recorder) DeviceState(device string, family motion.Family, states map[string]motion.AxisState) {
	if r.publisher != nil && r.publisher.IsConnected() {
		payload, err := json.Marshal(statePayload{
			Device:    device,
			Family:    string(family),
			Axes:      states,
			Timestamp: time.Now().UTC(),
		})
		if err == nil {
			if err := r.publisher.Publish(mqtt.Topics{}.DeviceState(device), payload, 0, true); err != nil {
				r.log.Debug("state publish failed", "device", device, "error", err)
			}
		}
	}

	if r.metrics != nil && r.metrics.IsConnected() {
		for axis, st := range states {
			r.metrics.WriteAxisPosition(device, axis, st.Position)
			r.metrics.WriteAxisStatus(device, axis, st.Moving, st.ServoEnabled)
		}
	}
}

// eventPayload is the JSON document published on device event topics.
type eventPayload struct {
	Device    string         `json:"device"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// DeviceEvent publishes the event and appends it to the journal.
func (r *Recorder) DeviceEvent(device string, event string, detail map[string]any) {
	if r.publisher != nil && r.publisher.IsConnected() {
		payload, err := json.Marshal(eventPayload{
			Device:    device,
			Event:     event,
			Detail:    detail,
			Timestamp: time.Now().UTC(),
		})
		if err == nil {
			if err := r.publisher.Publish(mqtt.Topics{}.DeviceEvent(device, event), payload, 1, false); err != nil {
				r.log.Debug("event publish failed", "device", device, "event", event, "error", err)
			}
		}
	}

	if r.journal != nil {
		axis, _ := detail["axis"].(string)
		entry := &journal.Entry{
			Action: event,
			Device: device,
			Axis:   axis,
			Detail: detail,
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := r.journal.Create(ctx, entry); err != nil {
			r.log.Warn("journal write failed", "device", device, "event", event, "error", err)
		}
	}
}

// RecordMove writes a completed motion command to the metrics store and
// the journal. Called by the API layer after a commanded move.
func (r *Recorder) RecordMove(device, axis string, target float64, duration time.Duration, ok bool) {
	if r.metrics != nil && r.metrics.IsConnected() {
		r.metrics.WriteMotionEvent(device, axis, target, float64(duration.Milliseconds()))
	}
	r.DeviceEvent(device, "move", map[string]any{
		"axis":        axis,
		"target":      target,
		"duration_ms": duration.Milliseconds(),
		"ok":          ok,
	})
}
