// Package sim provides an in-memory transport implementation that models
// axis motion. It backs simulation deployments and the motion package's
// tests; no hardware or network is touched.
package sim

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/stagecraft-systems/motion-core/internal/motion/transport"
)

// Dialer hands out simulated sessions. Fault injection fields may be set
// before dialing; they apply to every session the dialer creates.
type Dialer struct {
	// Velocity is the simulated axis speed in units per second. Zero
	// means DefaultVelocity.
	Velocity float64

	// FailDial makes every Dial attempt fail.
	FailDial bool

	// FailOps lists op codes that fail with a vendor error.
	FailOps map[transport.OpCode]bool

	// HoldMoving keeps every axis reporting motion forever. Used to
	// exercise wait timeouts.
	HoldMoving bool

	// Ident and Serial are returned for the identification queries.
	Ident  string
	Serial string

	mu       sync.Mutex
	sessions []*Session
}

// DefaultVelocity is fast enough that test moves settle within a couple
// of wait polls.
const DefaultVelocity = 1000.0

// Dial creates a new simulated session for the given endpoint.
func (d *Dialer) Dial(_ context.Context, host string, port int) (transport.Session, error) {
	if d.FailDial {
		return nil, fmt.Errorf("%w: %s:%d unreachable", transport.ErrDialFailed, host, port)
	}

	s := &Session{
		dialer: d,
		addr:   fmt.Sprintf("%s:%d", host, port),
		axes:   make(map[string]*axisModel),
	}
	d.mu.Lock()
	d.sessions = append(d.sessions, s)
	d.mu.Unlock()
	return s, nil
}

// Sessions returns every session this dialer has created, open or closed.
func (d *Dialer) Sessions() []*Session {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]*Session, len(d.sessions))
	copy(out, d.sessions)
	return out
}

type axisModel struct {
	position float64
	target   float64
	servo    bool
	movedAt  time.Time
	origin   float64
}

// Session is one simulated hardware connection. Axis models are created
// lazily on first reference, so the session serves whatever axis set the
// controller is configured with.
type Session struct {
	dialer *Dialer
	addr   string

	mu     sync.Mutex
	axes   map[string]*axisModel
	closed bool

	// ExecCount counts Exec calls per op, for assertions on poll cadence.
	execCount map[transport.OpCode]int
}

func (s *Session) velocity() float64 {
	if s.dialer.Velocity > 0 {
		return s.dialer.Velocity
	}
	return DefaultVelocity
}

func (s *Session) axis(name string) *axisModel {
	a, ok := s.axes[name]
	if !ok {
		a = &axisModel{}
		s.axes[name] = a
	}
	return a
}

// advance moves an axis toward its target based on elapsed wall time.
func (s *Session) advance(a *axisModel, now time.Time) {
	if a.movedAt.IsZero() {
		return
	}
	travelled := s.velocity() * now.Sub(a.movedAt).Seconds()
	total := math.Abs(a.target - a.origin)
	if travelled >= total {
		a.position = a.target
		a.movedAt = time.Time{}
		return
	}
	if a.target > a.origin {
		a.position = a.origin + travelled
	} else {
		a.position = a.origin - travelled
	}
}

func (s *Session) moving(a *axisModel, now time.Time) bool {
	if s.dialer.HoldMoving {
		return true
	}
	s.advance(a, now)
	return !a.movedAt.IsZero()
}

// Exec dispatches one simulated hardware request.
func (s *Session) Exec(ctx context.Context, req transport.Request) (transport.Response, error) {
	if err := ctx.Err(); err != nil {
		return transport.Response{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return transport.Response{}, transport.ErrSessionClosed
	}
	if s.dialer.FailOps[req.Op] {
		return transport.Response{}, &transport.VendorError{Op: req.Op, Code: 7}
	}

	if s.execCount == nil {
		s.execCount = make(map[transport.OpCode]int)
	}
	s.execCount[req.Op]++

	now := time.Now()
	switch req.Op {
	case transport.OpMoveAbs:
		for i, axis := range req.Axes {
			a := s.axis(axis)
			s.advance(a, now)
			a.origin = a.position
			a.target = req.Values[i]
			a.movedAt = now
		}
		return transport.Response{}, nil

	case transport.OpMoveRel:
		for i, axis := range req.Axes {
			a := s.axis(axis)
			s.advance(a, now)
			a.origin = a.position
			a.target = a.position + req.Values[i]
			a.movedAt = now
		}
		return transport.Response{}, nil

	case transport.OpHome:
		for _, axis := range req.Axes {
			a := s.axis(axis)
			s.advance(a, now)
			a.origin = a.position
			a.target = 0
			a.movedAt = now
		}
		return transport.Response{}, nil

	case transport.OpDefineHome:
		for _, axis := range req.Axes {
			a := s.axis(axis)
			s.advance(a, now)
			a.position = 0
			a.target = 0
			a.movedAt = time.Time{}
		}
		return transport.Response{}, nil

	case transport.OpStop:
		for _, axis := range req.Axes {
			a := s.axis(axis)
			s.advance(a, now)
			a.target = a.position
			a.movedAt = time.Time{}
		}
		return transport.Response{}, nil

	case transport.OpStopAll:
		for _, a := range s.axes {
			s.advance(a, now)
			a.target = a.position
			a.movedAt = time.Time{}
		}
		return transport.Response{}, nil

	case transport.OpPositions:
		resp := transport.Response{Values: make([]float64, len(req.Axes))}
		for i, axis := range req.Axes {
			a := s.axis(axis)
			s.advance(a, now)
			resp.Values[i] = a.position
		}
		return resp, nil

	case transport.OpMoving:
		resp := transport.Response{Flags: make([]bool, len(req.Axes))}
		for i, axis := range req.Axes {
			resp.Flags[i] = s.moving(s.axis(axis), now)
		}
		return resp, nil

	case transport.OpServo:
		resp := transport.Response{Flags: make([]bool, len(req.Axes))}
		for i, axis := range req.Axes {
			resp.Flags[i] = s.axis(axis).servo
		}
		return resp, nil

	case transport.OpEnableServo:
		for _, axis := range req.Axes {
			s.axis(axis).servo = true
		}
		return transport.Response{}, nil

	case transport.OpVelocityGet:
		resp := transport.Response{Values: make([]float64, len(req.Axes))}
		for i := range req.Axes {
			resp.Values[i] = s.velocity()
		}
		return resp, nil

	case transport.OpVelocitySet:
		// Velocity is a dialer-level property in the model; accept and
		// ignore per-axis settings.
		return transport.Response{}, nil

	case transport.OpIdent:
		text := s.dialer.Ident
		if text == "" {
			text = "SIM-CONTROLLER FW 1.0"
		}
		return transport.Response{Text: text}, nil

	case transport.OpSerial:
		text := s.dialer.Serial
		if text == "" {
			text = "SN-000001"
		}
		return transport.Response{Text: text}, nil

	default:
		return transport.Response{}, &transport.VendorError{Op: req.Op, Code: 2}
	}
}

// Close marks the session closed. Further Exec calls fail.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// ExecCount returns how many times an op has been executed.
func (s *Session) ExecCount(op transport.OpCode) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.execCount[op]
}

// SetPosition places an axis directly, bypassing motion.
func (s *Session) SetPosition(axis string, pos float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.axis(axis)
	a.position = pos
	a.target = pos
	a.movedAt = time.Time{}
}
