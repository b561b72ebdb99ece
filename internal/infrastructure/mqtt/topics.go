package mqtt

import "fmt"

// Topic prefixes for Motion Core's MQTT surface.
//
// All device topics use the flat scheme: motioncore/{category}/{device}[/{axis}]
const (
	// TopicPrefix is the base for all Motion Core topics.
	TopicPrefix = "motioncore"

	// TopicPrefixDevice is the base for per-device topics.
	TopicPrefixDevice = "motioncore/device"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "motioncore/system"
)

// Topics provides builders for Motion Core MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.DeviceState("stage-left")
//	// Returns: "motioncore/device/stage-left/state"
type Topics struct{}

// DeviceState returns the topic for a device's cached axis-state snapshot.
//
// Example: motioncore/device/stage-left/state
func (Topics) DeviceState(device string) string {
	return fmt.Sprintf("%s/%s/state", TopicPrefixDevice, device)
}

// DeviceEvent returns the topic for device lifecycle events
// (connected, disconnected, fault).
//
// Example: motioncore/device/stage-left/event/connected
func (Topics) DeviceEvent(device, event string) string {
	return fmt.Sprintf("%s/%s/event/%s", TopicPrefixDevice, device, event)
}

// DeviceMotion returns the topic for motion command notifications.
//
// Example: motioncore/device/stage-left/motion/X
func (Topics) DeviceMotion(device, axis string) string {
	return fmt.Sprintf("%s/%s/motion/%s", TopicPrefixDevice, device, axis)
}

// ManagerHealth returns the topic for a family manager's health report.
//
// Example: motioncore/manager/stage/health
func (Topics) ManagerHealth(family string) string {
	return fmt.Sprintf("%s/manager/%s/health", TopicPrefix, family)
}

// SystemStatus returns the system status topic.
// This topic also carries the Last Will and Testament message.
//
// Example: motioncore/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllDeviceStates returns a pattern matching all device state snapshots.
//
// Pattern: motioncore/device/+/state
func (Topics) AllDeviceStates() string {
	return fmt.Sprintf("%s/+/state", TopicPrefixDevice)
}

// AllDeviceEvents returns a pattern matching all device lifecycle events.
//
// Pattern: motioncore/device/+/event/+
func (Topics) AllDeviceEvents() string {
	return fmt.Sprintf("%s/+/event/+", TopicPrefixDevice)
}

// AllManagerHealth returns a pattern matching all manager health reports.
//
// Pattern: motioncore/manager/+/health
func (Topics) AllManagerHealth() string {
	return fmt.Sprintf("%s/manager/+/health", TopicPrefix)
}

// AllTopics returns a pattern matching all Motion Core topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: motioncore/#
func (Topics) AllTopics() string {
	return "motioncore/#"
}
