package influxdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/stagecraft-systems/motion-core/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 // seconds
)

// Client records motion telemetry into an InfluxDB v2 bucket. Writes go
// through the non-blocking batched write API, so controller poll loops
// never wait on the database; failed batches surface through the error
// callback instead of a return value.
//
// Safe for concurrent use.
type Client struct {
	cli    influxdb2.Client
	writer api.WriteAPI
	cfg    config.InfluxDBConfig

	mu        sync.Mutex
	connected bool
	onError   func(err error)
}

// Connect builds a token-authenticated client, confirms the server is
// reachable with a bounded ping, and starts draining async write errors.
// Returns ErrDisabled when the config has the integration switched off.
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	cli := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, batchOptions(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	healthy, err := cli.Ping(ctx)
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("%w: ping: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		cli.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	c := &Client{
		cli:       cli,
		writer:    cli.WriteAPI(cfg.Org, cfg.Bucket),
		cfg:       cfg,
		connected: true,
	}

	go c.drainWriteErrors(c.writer.Errors())

	return c, nil
}

// batchOptions maps the yaml batch settings onto client options, falling
// back to defaults for zero or negative values.
func batchOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	flush := cfg.FlushInterval
	if flush <= 0 {
		flush = defaultFlushInterval
	}

	// #nosec G115 -- both values normalised to positive above
	return influxdb2.DefaultOptions().
		SetBatchSize(uint(batch)).
		SetFlushInterval(uint(flush) * 1000) // the API takes milliseconds
}

// drainWriteErrors forwards batch failures to the registered callback.
// The channel closes when the underlying client closes.
func (c *Client) drainWriteErrors(errs <-chan error) {
	for err := range errs {
		c.mu.Lock()
		cb := c.onError
		c.mu.Unlock()

		if cb != nil {
			cb(err)
		}
	}
}

// Close flushes pending points and shuts the client down. The underlying
// library's Close never fails, so neither does this.
func (c *Client) Close() error {
	if c.cli == nil {
		return nil
	}

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	c.writer.Flush()
	c.cli.Close()

	return nil
}

// HealthCheck pings the server with a bounded deadline.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	healthy, err := c.cli.Ping(pingCtx)
	if err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	if !healthy {
		return fmt.Errorf("influxdb health check: server not healthy")
	}
	return nil
}

// IsConnected reports the last known state. Use HealthCheck for an
// active probe.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// SetOnError registers a callback for asynchronous write failures.
// Writes are fire-and-forget, so this is the only place batch errors
// become visible.
func (c *Client) SetOnError(cb func(err error)) {
	c.mu.Lock()
	c.onError = cb
	c.mu.Unlock()
}

// Flush blocks until buffered points are written. No-op after Close.
func (c *Client) Flush() {
	if c.writer == nil || !c.IsConnected() {
		return
	}
	c.writer.Flush()
}
