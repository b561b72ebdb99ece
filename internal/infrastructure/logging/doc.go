// Package logging configures structured logging for Motion Core on top
// of log/slog.
//
// JSON output is the default and what production deployments ship to log
// collectors; text output exists for reading a dev rig's console. Every
// entry carries service and version attributes, and subsystems attach
// their own context with With:
//
//	log := logging.New(cfg.Logging, version)
//	poll := log.With("device", "gantry-1", "family", "gantry")
//	poll.Info("connected", "axes", 3)
//
// The level, format, and destination come from the logging section of
// config.yaml. Before the config file is read, use Default().
//
// Never log credentials, JWT secrets, or broker passwords. Controller
// loops log at debug; keep info and above for state transitions an
// operator cares about.
package logging
