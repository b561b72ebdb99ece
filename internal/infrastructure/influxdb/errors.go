package influxdb

import "errors"

// Sentinel errors, matchable with errors.Is. Batch write failures do not
// appear here: they are asynchronous and reach callers only through the
// SetOnError callback.
var (
	ErrNotConnected     = errors.New("influxdb: not connected")
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrDisabled means the integration is switched off in config;
	// callers should treat metrics as optional rather than fail startup.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
