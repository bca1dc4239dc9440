package options

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/pflag"

	"github.com/wayfinder-io/wayfinder/internal/telemetry/conn"
)

var _ IOptions = (*WebSocketOptions)(nil)

// WebSocketOptions contains configuration for the bridge WebSocket link.
type WebSocketOptions struct {
	// ServerURL is the bridge endpoint (ws:// or wss://).
	ServerURL string `json:"server-url" mapstructure:"server-url"`

	// ClientID identifies this device to the bridge. Generated when empty.
	ClientID string `json:"client-id" mapstructure:"client-id"`

	BaseDelay         time.Duration `json:"base-delay" mapstructure:"base-delay"`
	MaxDelay          time.Duration `json:"max-delay" mapstructure:"max-delay"`
	MaxAttempts       int           `json:"max-attempts" mapstructure:"max-attempts"`
	HeartbeatInterval time.Duration `json:"heartbeat-interval" mapstructure:"heartbeat-interval"`
	ConnectTimeout    time.Duration `json:"connect-timeout" mapstructure:"connect-timeout"`
}

// NewWebSocketOptions creates a WebSocketOptions object with default parameters.
func NewWebSocketOptions() *WebSocketOptions {
	p := conn.DefaultPolicy()
	return &WebSocketOptions{
		BaseDelay:         p.BaseDelay,
		MaxDelay:          p.MaxDelay,
		MaxAttempts:       p.MaxAttempts,
		HeartbeatInterval: p.HeartbeatInterval,
		ConnectTimeout:    p.ConnectTimeout,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *WebSocketOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if o.ServerURL != "" {
		u, err := url.Parse(o.ServerURL)
		if err != nil {
			errors = append(errors, fmt.Errorf("invalid server url: %w", err))
		} else if u.Scheme != "ws" && u.Scheme != "wss" {
			errors = append(errors, fmt.Errorf("server url scheme must be ws or wss, got %q", u.Scheme))
		}
	}

	if err := o.ToPolicy().Validate(); err != nil {
		errors = append(errors, err)
	}

	return errors
}

// AddFlags adds flags for the WebSocket link to the specified FlagSet.
func (o *WebSocketOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.ServerURL, "ws.server-url", o.ServerURL, "The bridge WebSocket endpoint (ws:// or wss://).")
	fs.StringVar(&o.ClientID, "ws.client-id", o.ClientID, "Explicit client ID (optional, usually generated).")
	fs.DurationVar(&o.BaseDelay, "ws.base-delay", o.BaseDelay, "Initial reconnect backoff delay.")
	fs.DurationVar(&o.MaxDelay, "ws.max-delay", o.MaxDelay, "Reconnect backoff delay ceiling.")
	fs.IntVar(&o.MaxAttempts, "ws.max-attempts", o.MaxAttempts, "Reconnect attempts before giving up (0 means unlimited).")
	fs.DurationVar(&o.HeartbeatInterval, "ws.heartbeat-interval", o.HeartbeatInterval, "Interval between outbound heartbeats.")
	fs.DurationVar(&o.ConnectTimeout, "ws.connect-timeout", o.ConnectTimeout, "Timeout for establishing the WebSocket connection.")
}

// ToPolicy converts the options to the manager's reconnect policy.
func (o *WebSocketOptions) ToPolicy() conn.Policy {
	return conn.Policy{
		BaseDelay:         o.BaseDelay,
		MaxDelay:          o.MaxDelay,
		MaxAttempts:       o.MaxAttempts,
		HeartbeatInterval: o.HeartbeatInterval,
		ConnectTimeout:    o.ConnectTimeout,
	}
}
