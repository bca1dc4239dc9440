package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/wayfinder-io/wayfinder/internal/telemetry/quality"
)

var _ IOptions = (*TelemetryOptions)(nil)

// TelemetryOptions contains configuration for the sensor record pipeline.
type TelemetryOptions struct {
	// HistorySize is the capacity of the recent-sample window.
	HistorySize int `json:"history-size" mapstructure:"history-size"`

	// FreshnessThreshold is the maximum sample age still considered live
	// data. Reloadable from the config file at runtime.
	FreshnessThreshold time.Duration `json:"freshness-threshold" mapstructure:"freshness-threshold"`
}

// NewTelemetryOptions creates a TelemetryOptions object with default parameters.
func NewTelemetryOptions() *TelemetryOptions {
	return &TelemetryOptions{
		HistorySize:        64,
		FreshnessThreshold: quality.DefaultFreshnessThreshold,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *TelemetryOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if o.HistorySize < 1 {
		errors = append(errors, fmt.Errorf("history size must be at least 1, got %d", o.HistorySize))
	}
	if o.FreshnessThreshold <= 0 {
		errors = append(errors, fmt.Errorf("freshness threshold must be positive, got %v", o.FreshnessThreshold))
	}

	return errors
}

// AddFlags adds flags for TelemetryOptions to the specified FlagSet.
func (o *TelemetryOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.IntVar(&o.HistorySize, "telemetry.history-size", o.HistorySize, "Number of recent samples kept in memory.")
	fs.DurationVar(&o.FreshnessThreshold, "telemetry.freshness-threshold", o.FreshnessThreshold, "Maximum sample age still considered live data.")
}
