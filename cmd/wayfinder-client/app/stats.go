package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/wayfinder-io/wayfinder/cmd/wayfinder-client/app/options"
	"github.com/wayfinder-io/wayfinder/internal/client"
)

func newStatsCommand(opts *options.ClientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print the stats of a running client",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := fetchReport(opts.Http.Addr, opts.Http.Timeout)
			if err != nil {
				return err
			}
			cmd.Println(renderReport(report))
			return nil
		},
	}
}

func fetchReport(addr string, timeout time.Duration) (*client.Report, error) {
	httpClient := &http.Client{Timeout: timeout}
	resp, err := httpClient.Get(fmt.Sprintf("http://%s/stats", addr))
	if err != nil {
		return nil, fmt.Errorf("is the client running? fetch stats from %s: %w", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stats endpoint returned %s", resp.Status)
	}

	var report client.Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("decode stats document: %w", err)
	}
	return &report, nil
}

func renderReport(r *client.Report) string {
	table := uitable.New()
	table.MaxColWidth = 60

	table.AddRow("CLIENT ID:", r.ClientID)
	table.AddRow("SERVER:", r.ServerURL)
	table.AddRow("STATE:", string(r.State))
	table.AddRow("QUALITY:", string(r.Quality))
	table.AddRow("FRAMES RECEIVED:", fmt.Sprintf("%d", r.FramesReceived))
	table.AddRow("FRAMES DECODED:", fmt.Sprintf("%d", r.FramesDecoded))
	table.AddRow("FRAMES FAILED:", fmt.Sprintf("%d", r.FramesFailed))
	table.AddRow("RECONNECT ATTEMPTS:", fmt.Sprintf("%d", r.ReconnectAttempts))
	table.AddRow("HISTORY:", fmt.Sprintf("%d samples", r.HistoryCount))

	if !r.LastSampleAt.IsZero() {
		table.AddRow("LAST SAMPLE:", r.LastSampleAt.Format("2006-01-02 15:04:05 MST"))
	}
	if !r.LastHeartbeatAt.IsZero() {
		table.AddRow("LAST HEARTBEAT:", r.LastHeartbeatAt.Format("2006-01-02 15:04:05 MST"))
	}
	if r.LastError != "" {
		table.AddRow("LAST ERROR:", r.LastError)
	}
	if r.Latest != nil {
		table.AddRow("LATEST COLOR:", r.Latest.Hex())
		if r.Latest.HasDistance {
			table.AddRow("LATEST DISTANCE:", fmt.Sprintf("%.0f cm (%s)", r.Latest.DistanceCm, r.Latest.Zone()))
		}
	}

	return strings.TrimRight(table.String(), "\n")
}
