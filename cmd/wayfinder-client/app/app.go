// Package app wires the wayfinder client binary: flag and file
// configuration, the telemetry client, the debug HTTP surface, and the
// stats subcommand.
package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wayfinder-io/wayfinder/cmd/wayfinder-client/app/options"
	"github.com/wayfinder-io/wayfinder/internal/client"
	"github.com/wayfinder-io/wayfinder/internal/config"
	"github.com/wayfinder-io/wayfinder/internal/httpapi"
	"github.com/wayfinder-io/wayfinder/pkg/log"
)

const commandDesc = `The wayfinder client maintains the telemetry link of an assistive
wearable: it connects to the sensor bridge over WebSocket, reconnects with
bounded backoff, decodes incoming sensor frames into canonical records, and
serves a local debug surface with stats and metrics.`

// NewWayfinderClientCommand builds the root command with its subcommands.
func NewWayfinderClientCommand() *cobra.Command {
	opts := options.NewClientOptions()
	var configFile string

	cmd := &cobra.Command{
		Use:          "wayfinder-client",
		Short:        "Run the wearable telemetry client",
		Long:         commandDesc,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to the config file (YAML). File values override flag defaults.")
	opts.AddFlags(cmd.PersistentFlags())

	cmd.AddCommand(newRunCommand(opts, &configFile))
	cmd.AddCommand(newStatsCommand(opts))

	return cmd
}

func newRunCommand(opts *options.ClientOptions, configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to the bridge and serve the debug surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := config.NewLoader(*configFile)
			if *configFile != "" {
				if err := loader.Load(opts); err != nil {
					return err
				}
			}

			log.Init(opts.Log)

			if err := opts.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, opts, loader)
		},
	}
}

func run(ctx context.Context, opts *options.ClientOptions, loader *config.Loader) error {
	cli, err := client.New(opts.ClientConfig())
	if err != nil {
		return err
	}

	server := httpapi.NewServer(opts.Http.Addr, httpapi.ReporterFunc(func() any {
		return cli.Report()
	}))

	// Only the freshness threshold is adjustable without a restart; the
	// link settings need a reconnect and keep their startup values.
	loader.Watch(func() {
		fresh := options.NewClientOptions()
		if err := loader.Load(fresh); err != nil {
			log.Error(err, "Config reload failed, keeping current settings")
			return
		}
		if errs := fresh.Telemetry.Validate(); len(errs) > 0 {
			log.Error(errs[0], "Reloaded telemetry settings invalid, keeping current settings")
			return
		}
		cli.SetFreshnessThreshold(fresh.Telemetry.FreshnessThreshold)
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return cli.Run(gctx, opts.WebSocket.ServerURL) })
	g.Go(func() error { return server.Start(gctx) })

	log.Info("Wayfinder client started", "server", opts.WebSocket.ServerURL, "debugAddr", opts.Http.Addr)

	err = g.Wait()
	log.Info("Wayfinder client stopped")
	return err
}
