package options

import (
	"errors"

	"github.com/spf13/pflag"

	"github.com/wayfinder-io/wayfinder/internal/client"
	"github.com/wayfinder-io/wayfinder/pkg/log"
	"github.com/wayfinder-io/wayfinder/pkg/options"
)

// ClientOptions aggregates every option group of the wayfinder client.
type ClientOptions struct {
	WebSocket *options.WebSocketOptions `json:"ws" mapstructure:"ws"`
	Mqtt      *options.MqttOptions      `json:"mqtt" mapstructure:"mqtt"`
	Http      *options.HttpOptions      `json:"http" mapstructure:"http"`
	Telemetry *options.TelemetryOptions `json:"telemetry" mapstructure:"telemetry"`
	Log       *log.Options              `json:"log" mapstructure:"log"`
}

// NewClientOptions creates a ClientOptions object with default parameters.
func NewClientOptions() *ClientOptions {
	return &ClientOptions{
		WebSocket: options.NewWebSocketOptions(),
		Mqtt:      options.NewMqttOptions(),
		Http:      options.NewHttpOptions(),
		Telemetry: options.NewTelemetryOptions(),
		Log:       log.NewOptions(),
	}
}

// AddFlags binds all option groups to the given flag set.
func (o *ClientOptions) AddFlags(fs *pflag.FlagSet) {
	o.WebSocket.AddFlags(fs)
	o.Mqtt.AddFlags(fs)
	o.Http.AddFlags(fs)
	o.Telemetry.AddFlags(fs)
	o.Log.AddFlags(fs)
}

// Validate checks every option group and aggregates the problems found.
func (o *ClientOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.WebSocket.Validate()...)
	errs = append(errs, o.Mqtt.Validate()...)
	errs = append(errs, o.Http.Validate()...)
	errs = append(errs, o.Telemetry.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return errors.Join(errs...)
}

// ClientConfig converts the options to the client configuration.
func (o *ClientOptions) ClientConfig() *client.Config {
	return &client.Config{
		ClientID:           o.WebSocket.ClientID,
		Policy:             o.WebSocket.ToPolicy(),
		HistorySize:        o.Telemetry.HistorySize,
		FreshnessThreshold: o.Telemetry.FreshnessThreshold,
		Fallback:           o.Mqtt.ToSourceConfig(),
	}
}
