package quality

import (
	"testing"
	"time"

	"github.com/wayfinder-io/wayfinder/internal/telemetry/conn"
)

func TestDerive(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	threshold := 10 * time.Second

	tests := []struct {
		name      string
		state     conn.State
		sampleAge time.Duration
		hasSample bool
		want      Level
	}{
		{"socket down", conn.StateDisconnected, time.Second, true, Disconnected},
		{"reconnecting counts as down", conn.StateReconnecting, time.Second, true, Disconnected},
		{"error counts as down", conn.StateError, time.Second, true, Disconnected},
		{"connecting counts as down", conn.StateConnecting, time.Second, true, Disconnected},
		{"up, never sampled", conn.StateConnected, 0, false, ConnectedNoData},
		{"up, fresh sample", conn.StateConnected, time.Second, true, ActiveWithData},
		{"up, exactly at threshold", conn.StateConnected, threshold, true, ActiveWithData},
		{"up, just past threshold", conn.StateConnected, threshold + time.Millisecond, true, ConnectedNoData},
		{"up, long stale", conn.StateConnected, time.Hour, true, ConnectedNoData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Derive(tt.state, now.Add(-tt.sampleAge), tt.hasSample, threshold, now)
			if got != tt.want {
				t.Errorf("Derive() = %v, want %v", got, tt.want)
			}
		})
	}
}
