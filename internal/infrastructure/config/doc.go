// Package config loads Motion Core's yaml configuration.
//
// Three layers, later wins: compiled-in defaults, the config file, then
// MOTIONCORE_* environment variables. The file carries structure (device
// inventory, motion timing, CORS lists); the environment carries what
// changes between deployments and what must never sit in a file on disk
// (MOTIONCORE_JWT_SECRET, MOTIONCORE_MQTT_PASSWORD,
// MOTIONCORE_INFLUXDB_TOKEN).
//
// Load validates before returning: a config that would start the API
// without a strong JWT secret, or register a device in an unknown
// family, is rejected with every problem listed at once.
package config
