// Package mqtt is Motion Core's telemetry bus client.
//
// Controllers publish retained axis-state snapshots and non-retained
// lifecycle events; dashboards, recorders, and lab tooling subscribe
// without touching the HTTP API:
//
//	Motion Core -> broker -> dashboards / recorders / probes
//
// The client reconnects automatically with backoff, restores tracked
// subscriptions after a reconnect, and announces presence on
// motioncore/system/status. A Last Will and Testament on the same topic
// marks an unexpected disconnect, so a missing "offline/graceful_shutdown"
// message means the process died rather than shut down.
//
// Topic names are built through Topics, never by hand:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.Subscribe(mqtt.Topics{}.AllDeviceStates(), 0,
//	    func(topic string, payload []byte) error {
//	        // fan out to websocket clients, etc.
//	        return nil
//	    })
//
// TLS (1.2 minimum) and broker credentials come from the yaml config;
// anonymous plaintext is for local development only.
package mqtt
