// Package client is the composition root of the telemetry core. It owns the
// bridge connection manager, the recent-sample window, the optional
// short-range fallback source, and the derived link-quality judgement.
package client

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wayfinder-io/wayfinder/internal/mqttsource"
	"github.com/wayfinder-io/wayfinder/internal/telemetry/bus"
	"github.com/wayfinder-io/wayfinder/internal/telemetry/conn"
	"github.com/wayfinder-io/wayfinder/internal/telemetry/history"
	"github.com/wayfinder-io/wayfinder/internal/telemetry/quality"
	"github.com/wayfinder-io/wayfinder/internal/telemetry/record"
	"github.com/wayfinder-io/wayfinder/pkg/log"
)

// Config assembles the client from the per-component settings.
type Config struct {
	ClientID string
	Policy   conn.Policy

	// HistorySize is the capacity of the recent-sample window.
	HistorySize int

	// FreshnessThreshold is the maximum sample age still considered live
	// data. Adjustable at runtime via SetFreshnessThreshold.
	FreshnessThreshold time.Duration

	// Fallback enables the short-range MQTT link when non-nil.
	Fallback *mqttsource.Config
}

const defaultHistorySize = 64

// Client wires the telemetry components together behind one façade.
type Client struct {
	manager  *conn.Manager
	window   *history.Window
	fallback *mqttsource.Source

	freshness atomic.Int64 // nanoseconds
}

// New builds a client from the config. Nothing connects until Run.
func New(cfg *Config) (*Client, error) {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}
	if cfg.FreshnessThreshold <= 0 {
		cfg.FreshnessThreshold = quality.DefaultFreshnessThreshold
	}

	var opts []conn.ManagerOption
	if cfg.ClientID != "" {
		opts = append(opts, conn.WithClientID(cfg.ClientID))
	}
	mgr, err := conn.NewManager(cfg.Policy, opts...)
	if err != nil {
		return nil, fmt.Errorf("build connection manager: %w", err)
	}

	c := &Client{
		manager: mgr,
		window:  history.NewWindow(cfg.HistorySize),
	}
	c.freshness.Store(int64(cfg.FreshnessThreshold))

	if cfg.Fallback != nil {
		src, err := mqttsource.New(cfg.Fallback, mgr.Records(), mgr.Stats())
		if err != nil {
			return nil, fmt.Errorf("build fallback source: %w", err)
		}
		c.fallback = src
	}

	return c, nil
}

// Run connects the configured links and blocks until ctx is cancelled,
// then tears everything down. The returned error is the first hard
// failure from any component; backoff-covered connect errors are not
// hard failures.
func (c *Client) Run(ctx context.Context, serverURL string) error {
	g, gctx := errgroup.WithContext(ctx)

	// Feed the history window from the shared record stream.
	records, stop := c.manager.Records().Listen("history", 16)
	g.Go(func() error {
		defer stop()
		for {
			select {
			case rec, ok := <-records:
				if !ok {
					return nil
				}
				c.window.Push(rec)
			case <-gctx.Done():
				return nil
			}
		}
	})

	if serverURL != "" {
		if err := c.manager.Connect(gctx, serverURL); err != nil {
			// Dial failures are retried by the manager itself; only a
			// rejected transition is fatal here.
			log.Warn("Initial bridge connection failed, retrying in background", "err", err)
		}
	}

	if c.fallback != nil {
		if err := c.fallback.Start(gctx); err != nil {
			return fmt.Errorf("start fallback source: %w", err)
		}
	}

	<-gctx.Done()

	if c.fallback != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		c.fallback.Stop(stopCtx)
		cancel()
	}
	c.manager.Close()

	return g.Wait()
}

// Connect starts (or restarts) the bridge link.
func (c *Client) Connect(ctx context.Context, url string) error {
	return c.manager.Connect(ctx, url)
}

// Disconnect closes the bridge link without touching the fallback.
func (c *Client) Disconnect() { c.manager.Disconnect() }

// Send writes a JSON payload to the bridge.
func (c *Client) Send(payload any) error { return c.manager.Send(payload) }

// ResetReconnectAttempts clears the backoff counter so a later Connect
// starts a fresh attempt budget.
func (c *Client) ResetReconnectAttempts() { c.manager.ResetReconnectAttempts() }

// States exposes the connection-state stream.
func (c *Client) States() *bus.Stream[conn.State] { return c.manager.States() }

// Records exposes the decoded sensor record stream.
func (c *Client) Records() *bus.Stream[record.SensorRecord] { return c.manager.Records() }

// History returns the recent samples, oldest first.
func (c *Client) History() []record.SensorRecord { return c.window.Snapshot() }

// SetFreshnessThreshold adjusts the live-data age limit at runtime.
func (c *Client) SetFreshnessThreshold(d time.Duration) {
	if d <= 0 {
		return
	}
	c.freshness.Store(int64(d))
	log.Info("Freshness threshold updated", "threshold", d)
}

// Quality derives the current link quality from connection state and
// sample freshness.
func (c *Client) Quality() quality.Level {
	last, ok := c.manager.Stats().LastSampleAt()
	threshold := time.Duration(c.freshness.Load())
	return quality.Derive(c.manager.CurrentState(), last, ok, threshold, time.Now())
}

// Report is the stats document served over the debug API.
type Report struct {
	conn.Snapshot
	Quality      quality.Level        `json:"quality"`
	ClientID     string               `json:"client_id"`
	HistoryCount int                  `json:"history_count"`
	Latest       *record.SensorRecord `json:"latest,omitempty"`
}

// Report assembles a point-in-time view across the components.
func (c *Client) Report() Report {
	r := Report{
		Snapshot:     c.manager.Snapshot(),
		Quality:      c.Quality(),
		ClientID:     c.manager.ClientID(),
		HistoryCount: c.window.Len(),
	}
	if latest, ok := c.window.Latest(); ok {
		r.Latest = &latest
	}
	return r
}
