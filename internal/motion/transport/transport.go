// Package transport defines the boundary between motion controllers and the
// vendor hardware link.
//
// Controllers never speak a vendor wire protocol directly. They issue
// Requests against a Session obtained from a Dialer and interpret the
// Response. The production implementation lives in vendorlink; tests and
// simulation deployments use the sim package.
package transport

import (
	"context"
	"fmt"
)

// OpCode identifies a hardware operation.
type OpCode string

// Operations understood by a Session. Both controller families use the same
// op set; the Session implementation maps them onto the vendor's own
// instruction encoding.
const (
	OpMoveAbs     OpCode = "move_abs"
	OpMoveRel     OpCode = "move_rel"
	OpHome        OpCode = "home"
	OpDefineHome  OpCode = "define_home"
	OpStop        OpCode = "stop"
	OpStopAll     OpCode = "stop_all"
	OpPositions   OpCode = "positions"
	OpMoving      OpCode = "moving"
	OpServo       OpCode = "servo"
	OpEnableServo OpCode = "enable_servo"
	OpVelocityGet OpCode = "velocity_get"
	OpVelocitySet OpCode = "velocity_set"
	OpIdent       OpCode = "ident"
	OpSerial      OpCode = "serial"
)

// Request is a single synchronous instruction to the hardware.
//
// Axes and Values are parallel where the op carries per-axis values
// (moves, velocity set). Query ops carry Axes only.
type Request struct {
	Op     OpCode
	Axes   []string
	Values []float64
}

// Response carries the hardware's answer to a Request.
//
// Values is parallel to the request's Axes for numeric queries
// (positions, velocities). Flags is parallel to Axes for boolean
// queries (moving, servo). Text carries identification strings.
type Response struct {
	Values []float64
	Flags  []bool
	Text   string
}

// Session is one open hardware connection.
//
// Exec is synchronous: it blocks until the hardware acknowledges or the
// context is cancelled. Implementations must be safe for concurrent use;
// the poll loop and caller-issued commands share one session.
type Session interface {
	Exec(ctx context.Context, req Request) (Response, error)
	Close() error
}

// Dialer opens hardware sessions. Injected into controllers at
// construction time so tests can substitute a fake.
type Dialer interface {
	Dial(ctx context.Context, host string, port int) (Session, error)
}

// VendorError is a command failure reported by the hardware with a
// vendor-specific numeric code. Controllers log the code and surface the
// failure as a boolean result.
type VendorError struct {
	Op   OpCode
	Code int
}

func (e *VendorError) Error() string {
	return fmt.Sprintf("transport: op %s failed with vendor code %d", e.Op, e.Code)
}
