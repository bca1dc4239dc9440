package mqttsource

import (
	"errors"
	"net/url"
	"time"
)

// Config holds the settings for the short-range fallback link. The fallback
// publishes the same JSON payload shapes as the bridge, so the whole config
// is about reaching the local broker.
type Config struct {
	// BrokerURL of the local MQTT broker (e.g. tcp://127.0.0.1:1883).
	BrokerURL string

	// Topic filter carrying sensor payloads. Wildcards are allowed.
	Topic string

	ClientID string
	Username string
	Password string

	// KeepAlive in seconds. Default is 60.
	KeepAlive uint16

	// ConnectTimeout for the initial connection. Default is 5s.
	ConnectTimeout time.Duration

	// InsecureSkipVerify disables TLS certificate verification for brokers
	// with self-signed certificates.
	InsecureSkipVerify bool
}

func setDefaultConfig(cfg *Config) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = 60
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.BrokerURL == "" {
		return errors.New("broker url is required")
	}
	if _, err := url.Parse(c.BrokerURL); err != nil {
		return err
	}
	if c.Topic == "" {
		return errors.New("topic is required")
	}
	return nil
}
