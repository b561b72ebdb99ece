package vendorlink

import (
	"bufio"
	"context"
	"errors"
	"net"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/stagecraft-systems/motion-core/internal/motion/transport"
)

func TestEncodeRequest(t *testing.T) {
	tests := []struct {
		name string
		req  transport.Request
		want string
	}{
		{
			name: "move absolute",
			req:  transport.Request{Op: transport.OpMoveAbs, Axes: []string{"X"}, Values: []float64{12.5}},
			want: "MOV X 12.5\n",
		},
		{
			name: "batch positions",
			req:  transport.Request{Op: transport.OpPositions, Axes: []string{"X", "Y", "Z"}},
			want: "POS X,Y,Z -\n",
		},
		{
			name: "stop all",
			req:  transport.Request{Op: transport.OpStopAll},
			want: "STP - -\n",
		},
		{
			name: "identification",
			req:  transport.Request{Op: transport.OpIdent},
			want: "IDN? - -\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := encodeRequest(tt.req)
			if err != nil {
				t.Fatalf("encodeRequest() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("encodeRequest() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEncodeRequestUnknownOp(t *testing.T) {
	if _, err := encodeRequest(transport.Request{Op: "bogus"}); err == nil {
		t.Error("unknown op should fail to encode")
	}
}

func TestDecodeResponse(t *testing.T) {
	t.Run("bare ok", func(t *testing.T) {
		resp, err := decodeResponse(transport.OpStop, "OK\n")
		if err != nil {
			t.Fatalf("decodeResponse() error = %v", err)
		}
		if resp.Values != nil || resp.Flags != nil || resp.Text != "" {
			t.Errorf("bare OK should decode empty, got %+v", resp)
		}
	})

	t.Run("values", func(t *testing.T) {
		resp, err := decodeResponse(transport.OpPositions, "OK V 1.5,-2,0\r\n")
		if err != nil {
			t.Fatalf("decodeResponse() error = %v", err)
		}
		if want := []float64{1.5, -2, 0}; !reflect.DeepEqual(resp.Values, want) {
			t.Errorf("Values = %v, want %v", resp.Values, want)
		}
	})

	t.Run("flags", func(t *testing.T) {
		resp, err := decodeResponse(transport.OpMoving, "OK F 1,0,1\n")
		if err != nil {
			t.Fatalf("decodeResponse() error = %v", err)
		}
		if want := []bool{true, false, true}; !reflect.DeepEqual(resp.Flags, want) {
			t.Errorf("Flags = %v, want %v", resp.Flags, want)
		}
	})

	t.Run("text", func(t *testing.T) {
		resp, err := decodeResponse(transport.OpIdent, "OK T ACME STAGE-6 FW 2.4\n")
		if err != nil {
			t.Fatalf("decodeResponse() error = %v", err)
		}
		if resp.Text != "ACME STAGE-6 FW 2.4" {
			t.Errorf("Text = %q", resp.Text)
		}
	})

	t.Run("vendor error", func(t *testing.T) {
		_, err := decodeResponse(transport.OpHome, "ERR 23\n")
		var verr *transport.VendorError
		if !errors.As(err, &verr) {
			t.Fatalf("error = %v, want VendorError", err)
		}
		if verr.Code != 23 || verr.Op != transport.OpHome {
			t.Errorf("VendorError = %+v, want code 23 op home", verr)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		for _, line := range []string{"WHAT\n", "OK Q 1\n", "OK F 2\n", "OK V abc\n", "ERR xx\n"} {
			if _, err := decodeResponse(transport.OpPositions, line); err == nil {
				t.Errorf("line %q should fail to decode", line)
			}
		}
	})
}

// fakeController answers the line protocol on a loopback listener.
func fakeController(t *testing.T, handler func(line string) string) (host string, port int) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				r := bufio.NewReader(c)
				for {
					line, err := r.ReadString('\n')
					if err != nil {
						return
					}
					if _, err := c.Write([]byte(handler(strings.TrimRight(line, "\n")))); err != nil {
						return
					}
				}
			}(conn)
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port
}

func TestSessionRoundTrip(t *testing.T) {
	host, port := fakeController(t, func(line string) string {
		switch {
		case strings.HasPrefix(line, "POS"):
			return "OK V 1.0,2.0,3.0\n"
		case strings.HasPrefix(line, "MOV"):
			return "OK\n"
		case strings.HasPrefix(line, "IDN?"):
			return "OK T FAKE-CTRL 1.0\n"
		default:
			return "ERR 1\n"
		}
	})

	d := &Dialer{}
	sess, err := d.Dial(context.Background(), host, port)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer sess.Close()
	ctx := context.Background()

	resp, err := sess.Exec(ctx, transport.Request{Op: transport.OpPositions, Axes: []string{"X", "Y", "Z"}})
	if err != nil {
		t.Fatalf("positions failed: %v", err)
	}
	if want := []float64{1, 2, 3}; !reflect.DeepEqual(resp.Values, want) {
		t.Errorf("Values = %v, want %v", resp.Values, want)
	}

	if _, err := sess.Exec(ctx, transport.Request{Op: transport.OpMoveAbs, Axes: []string{"X"}, Values: []float64{5}}); err != nil {
		t.Errorf("move failed: %v", err)
	}

	resp, err = sess.Exec(ctx, transport.Request{Op: transport.OpIdent})
	if err != nil {
		t.Fatalf("ident failed: %v", err)
	}
	if resp.Text != "FAKE-CTRL 1.0" {
		t.Errorf("Text = %q", resp.Text)
	}

	_, err = sess.Exec(ctx, transport.Request{Op: transport.OpHome, Axes: []string{"X"}})
	var verr *transport.VendorError
	if !errors.As(err, &verr) {
		t.Errorf("error = %v, want VendorError", err)
	}
}

func TestDialRefused(t *testing.T) {
	// Grab a port and close it so nothing is listening.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	d := &Dialer{DialTimeout: 500 * time.Millisecond}
	if _, err := d.Dial(context.Background(), "127.0.0.1", port); !errors.Is(err, transport.ErrDialFailed) {
		t.Errorf("Dial error = %v, want ErrDialFailed", err)
	}
}

func TestExecAfterClose(t *testing.T) {
	host, port := fakeController(t, func(string) string { return "OK\n" })

	d := &Dialer{}
	sess, err := d.Dial(context.Background(), host, port)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}

	if err := sess.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}

	if _, err := sess.Exec(context.Background(), transport.Request{Op: transport.OpStopAll}); !errors.Is(err, transport.ErrSessionClosed) {
		t.Errorf("Exec after close = %v, want ErrSessionClosed", err)
	}
}

func TestExecTimeout(t *testing.T) {
	// Controller reads but never answers.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 256)
		for {
			if _, err := conn.Read(buf); err != nil {
				return
			}
		}
	}()
	addr := ln.Addr().(*net.TCPAddr)

	d := &Dialer{RequestTimeout: 50 * time.Millisecond}
	sess, err := d.Dial(context.Background(), "127.0.0.1", addr.Port)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer sess.Close()

	start := time.Now()
	_, err = sess.Exec(context.Background(), transport.Request{Op: transport.OpPositions, Axes: []string{"X"}})
	if err == nil {
		t.Fatal("Exec should time out against a silent controller")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout took %v", elapsed)
	}
}
