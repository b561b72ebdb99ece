// Package motion implements device controllers and the device manager for
// the motion-control layer.
//
// # Architecture
//
// Two controller families are supported. Stage controllers drive six-axis
// positioning stages over a fast link and poll at a short interval. Gantry
// controllers drive three-axis gantries over a slower link, poll less
// often, and batch caller moves through a pending-command queue that the
// poll loop drains.
//
// Both families present the same Controller interface. Callers read axis
// state from a per-device cache that the background poll loop keeps fresh;
// status flags older than the staleness window trigger a direct hardware
// re-query, positions are served from cache unconditionally because every
// poll cycle refreshes them.
//
// A Manager owns all controllers of one family. It loads device definitions
// from configuration (falling back to built-in defaults when the source
// fails), connects and disconnects devices individually or in bulk, and
// hands out borrowed controller handles.
//
// Hardware access goes through the transport.Dialer injected at
// construction. Production wiring uses vendorlink; tests and simulation
// mode use sim.
package motion
