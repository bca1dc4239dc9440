// Package quality derives the three-way link quality consumers act on. An
// open socket and useful data flowing are materially different states for a
// real-time assistive feature, so "connected" alone is never reported.
package quality

import (
	"time"

	"github.com/wayfinder-io/wayfinder/internal/telemetry/conn"
)

// Level is the derived connection quality.
type Level string

const (
	// Disconnected means the socket is not connected.
	Disconnected Level = "disconnected"
	// ConnectedNoData means the socket is up but no fresh sample has arrived.
	ConnectedNoData Level = "connected_no_data"
	// ActiveWithData means the socket is up and samples are fresh.
	ActiveWithData Level = "active_with_data"
)

// DefaultFreshnessThreshold is the default maximum sample age still
// considered live.
const DefaultFreshnessThreshold = 10 * time.Second

// Derive computes the quality level from the connection state, the arrival
// time of the most recent sample (hasSample false when none ever arrived),
// and the configured freshness threshold. A sample exactly at the threshold
// still counts as fresh.
func Derive(state conn.State, lastSample time.Time, hasSample bool, threshold time.Duration, now time.Time) Level {
	if state != conn.StateConnected {
		return Disconnected
	}
	if !hasSample {
		return ConnectedNoData
	}
	if now.Sub(lastSample) <= threshold {
		return ActiveWithData
	}
	return ConnectedNoData
}
