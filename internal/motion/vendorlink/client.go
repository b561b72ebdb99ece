// Package vendorlink implements the transport boundary over the vendor's
// TCP line protocol. One session holds one TCP connection; requests are
// serialized on the wire because the hardware answers strictly in order.
package vendorlink

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/stagecraft-systems/motion-core/internal/motion/transport"
)

const (
	// DefaultDialTimeout bounds connection establishment.
	DefaultDialTimeout = 5 * time.Second

	// DefaultRequestTimeout bounds a single command round trip when the
	// caller's context carries no deadline.
	DefaultRequestTimeout = 2 * time.Second
)

// Dialer opens TCP sessions to vendor controllers.
type Dialer struct {
	// DialTimeout bounds Dial. Zero means DefaultDialTimeout.
	DialTimeout time.Duration

	// RequestTimeout bounds each Exec round trip. Zero means
	// DefaultRequestTimeout.
	RequestTimeout time.Duration
}

// Dial connects to a controller endpoint.
func (d *Dialer) Dial(ctx context.Context, host string, port int) (transport.Session, error) {
	dialTimeout := d.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = DefaultDialTimeout
	}

	nd := net.Dialer{Timeout: dialTimeout}
	conn, err := nd.DialContext(ctx, "tcp", net.JoinHostPort(host, fmt.Sprintf("%d", port)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s:%d: %v", transport.ErrDialFailed, host, port, err)
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		// Keepalive detects a controller that dropped off the network
		// without closing the connection.
		_ = tc.SetKeepAlive(true)
		_ = tc.SetKeepAlivePeriod(30 * time.Second)
		_ = tc.SetNoDelay(true)
	}

	timeout := d.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &session{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		timeout: timeout,
	}, nil
}

// session is one open TCP connection to a controller.
type session struct {
	// mu serializes request/response pairs on the wire.
	mu      sync.Mutex
	conn    net.Conn
	reader  *bufio.Reader
	timeout time.Duration

	closeOnce sync.Once
	closed    bool
	closeErr  error
}

// Exec writes one command line and reads one response line. The deadline
// comes from the context when it carries one, otherwise from the session's
// request timeout.
func (s *session) Exec(ctx context.Context, req transport.Request) (transport.Response, error) {
	line, err := encodeRequest(req)
	if err != nil {
		return transport.Response{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return transport.Response{}, transport.ErrSessionClosed
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(s.timeout)
	}
	if err := s.conn.SetDeadline(deadline); err != nil {
		return transport.Response{}, fmt.Errorf("vendorlink: set deadline: %w", err)
	}

	if _, err := s.conn.Write(line); err != nil {
		return transport.Response{}, fmt.Errorf("vendorlink: write %s: %w", req.Op, err)
	}

	resp, err := s.reader.ReadString('\n')
	if err != nil {
		return transport.Response{}, fmt.Errorf("vendorlink: read %s: %w", req.Op, err)
	}
	return decodeResponse(req.Op, resp)
}

// Close shuts the connection down. Safe to call more than once.
func (s *session) Close() error {
	s.closeOnce.Do(func() {
		// Close the socket first so an Exec blocked in a read unblocks
		// and releases the lock.
		s.closeErr = s.conn.Close()
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
	})
	return s.closeErr
}
