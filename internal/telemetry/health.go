package telemetry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/stagecraft-systems/motion-core/internal/infrastructure/logging"
	"github.com/stagecraft-systems/motion-core/internal/infrastructure/mqtt"
	"github.com/stagecraft-systems/motion-core/internal/motion"
)

// HealthReporter periodically publishes per-family connection health on
// the manager health topic.
type HealthReporter struct {
	publisher Publisher
	managers  []*motion.Manager
	interval  time.Duration
	log       *logging.Logger
}

// DefaultHealthInterval is how often health documents are published.
const DefaultHealthInterval = 30 * time.Second

// NewHealthReporter builds a reporter for the given managers.
func NewHealthReporter(publisher Publisher, managers []*motion.Manager, interval time.Duration, log *logging.Logger) *HealthReporter {
	if interval <= 0 {
		interval = DefaultHealthInterval
	}
	if log == nil {
		log = logging.Default()
	}
	return &HealthReporter{
		publisher: publisher,
		managers:  managers,
		interval:  interval,
		log:       log,
	}
}

// healthPayload is the JSON document published per family.
type healthPayload struct {
	Family    string          `json:"family"`
	Devices   map[string]bool `json:"devices"`
	Connected int             `json:"connected"`
	Total     int             `json:"total"`
	Timestamp time.Time       `json:"timestamp"`
}

// Run publishes until the context is cancelled. An immediate report goes
// out on startup so dashboards are not blind for the first interval.
func (h *HealthReporter) Run(ctx context.Context) {
	h.publishAll()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.publishAll()
		}
	}
}

func (h *HealthReporter) publishAll() {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return
	}

	for _, m := range h.managers {
		doc := healthPayload{
			Family:    string(m.Family()),
			Devices:   make(map[string]bool),
			Timestamp: time.Now().UTC(),
		}
		for _, name := range m.GetDeviceNames() {
			connected := m.IsDeviceConnected(name)
			doc.Devices[name] = connected
			if connected {
				doc.Connected++
			}
			doc.Total++
		}

		payload, err := json.Marshal(doc)
		if err != nil {
			continue
		}
		if err := h.publisher.Publish(mqtt.Topics{}.ManagerHealth(string(m.Family())), payload, 0, true); err != nil {
			h.log.Debug("health publish failed", "family", string(m.Family()), "error", err)
		}
	}
}
