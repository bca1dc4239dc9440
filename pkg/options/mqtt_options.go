package options

import (
	"errors"
	"time"

	"github.com/spf13/pflag"

	"github.com/wayfinder-io/wayfinder/internal/mqttsource"
)

var _ IOptions = (*MqttOptions)(nil)

// MqttOptions contains configuration for the short-range fallback link.
type MqttOptions struct {
	// Enabled turns the fallback link on.
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	Broker   string `json:"broker" mapstructure:"broker"`
	Topic    string `json:"topic" mapstructure:"topic"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	ClientID string `json:"client-id" mapstructure:"client-id"`

	KeepAlive      time.Duration `json:"keep-alive" mapstructure:"keep-alive"`
	ConnectTimeout time.Duration `json:"connect-timeout" mapstructure:"connect-timeout"`

	// InsecureSkipVerify disables TLS certificate verification. This should
	// be used only for testing.
	InsecureSkipVerify bool `json:"insecure-skip-verify" mapstructure:"insecure-skip-verify"`
}

// NewMqttOptions creates a new MqttOptions with default values.
func NewMqttOptions() *MqttOptions {
	return &MqttOptions{
		Broker:         "tcp://127.0.0.1:1883",
		Topic:          "wayfinder/sensor",
		KeepAlive:      60 * time.Second,
		ConnectTimeout: 5 * time.Second,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *MqttOptions) Validate() []error {
	if o == nil || !o.Enabled {
		return nil
	}

	errs := []error{}

	if o.Broker == "" {
		errs = append(errs, errors.New("mqtt broker is required when the fallback link is enabled"))
	}
	if o.Topic == "" {
		errs = append(errs, errors.New("mqtt topic is required when the fallback link is enabled"))
	}

	return errs
}

// AddFlags adds flags for MqttOptions to the specified FlagSet.
func (o *MqttOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.BoolVar(&o.Enabled, "mqtt.enabled", o.Enabled, "Enable the short-range MQTT fallback link.")
	fs.StringVar(&o.Broker, "mqtt.broker", o.Broker, "The URL of the MQTT broker.")
	fs.StringVar(&o.Topic, "mqtt.topic", o.Topic, "Topic filter carrying sensor payloads.")
	fs.StringVar(&o.Username, "mqtt.username", o.Username, "The username for MQTT authentication.")
	fs.StringVar(&o.Password, "mqtt.password", o.Password, "The password for MQTT authentication.")
	fs.StringVar(&o.ClientID, "mqtt.client-id", o.ClientID, "Explicit client ID (optional, usually generated).")
	fs.DurationVar(&o.KeepAlive, "mqtt.keep-alive", o.KeepAlive, "MQTT keep alive interval.")
	fs.DurationVar(&o.ConnectTimeout, "mqtt.connect-timeout", o.ConnectTimeout, "Timeout for establishing the MQTT connection.")
	fs.BoolVar(&o.InsecureSkipVerify, "mqtt.insecure-skip-verify", o.InsecureSkipVerify, "If true, skips the TLS certificate verification.")
}

// ToSourceConfig converts the options to the fallback source config. Returns
// nil when the fallback link is disabled.
func (o *MqttOptions) ToSourceConfig() *mqttsource.Config {
	if o == nil || !o.Enabled {
		return nil
	}
	return &mqttsource.Config{
		BrokerURL:          o.Broker,
		Topic:              o.Topic,
		ClientID:           o.ClientID,
		Username:           o.Username,
		Password:           o.Password,
		KeepAlive:          uint16(o.KeepAlive.Seconds()),
		ConnectTimeout:     o.ConnectTimeout,
		InsecureSkipVerify: o.InsecureSkipVerify,
	}
}
