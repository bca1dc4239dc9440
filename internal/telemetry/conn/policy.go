package conn

import (
	"errors"
	"time"
)

// Policy holds the reconnect and liveness tuning for a session. All values
// come from configuration; nothing here is hard-coded into the manager.
type Policy struct {
	// BaseDelay is the first reconnect delay. Doubles per attempt.
	BaseDelay time.Duration

	// MaxDelay caps the exponential growth.
	MaxDelay time.Duration

	// MaxAttempts is the reconnect cap. Once exceeded, auto-reconnect stays
	// off until ResetReconnectAttempts. Zero means unlimited.
	MaxAttempts int

	// HeartbeatInterval is the outbound heartbeat period while connected.
	HeartbeatInterval time.Duration

	// ConnectTimeout bounds a single dial attempt.
	ConnectTimeout time.Duration
}

// DefaultPolicy matches the bridge deployment defaults.
func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:         3 * time.Second,
		MaxDelay:          30 * time.Second,
		MaxAttempts:       10,
		HeartbeatInterval: 15 * time.Second,
		ConnectTimeout:    10 * time.Second,
	}
}

// Validate checks the policy for values the manager cannot run with.
func (p Policy) Validate() error {
	if p.BaseDelay <= 0 {
		return errors.New("base delay must be positive")
	}
	if p.MaxDelay < p.BaseDelay {
		return errors.New("max delay must be at least the base delay")
	}
	if p.HeartbeatInterval <= 0 {
		return errors.New("heartbeat interval must be positive")
	}
	if p.ConnectTimeout <= 0 {
		return errors.New("connect timeout must be positive")
	}
	return nil
}

// Delay returns the backoff before reconnect attempt n (1-based):
// clamp(base * 2^(n-1), base, max). Monotonically non-decreasing in n.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d < p.BaseDelay {
		return p.BaseDelay
	}
	return d
}
