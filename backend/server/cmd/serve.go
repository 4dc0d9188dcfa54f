package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/govdir/govdir/backend/server/internal/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the background daily reset",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		defer e.db.Close()

		policy, err := e.cfg.QuotaPolicy()
		if err != nil {
			return err
		}
		if e.cfg.IsProduction() && e.cfg.ReleaseVersion == "UNKNOWN" {
			e.logger.Warn("server was built without a release version")
		}

		options := []server.Option{
			server.WithLogger(e.logger),
			server.WithQuotaPolicy(policy),
			server.WithJWTSecret(e.cfg.JWTSecret),
			server.WithCronSecret(e.cfg.CronSecret),
			server.WithCronInterval(e.cfg.CronInterval),
			server.WithReleaseVersion(e.cfg.ReleaseVersion),
			server.IsProductionEnvironment(e.cfg.IsProduction()),
			server.IsTestEnvironment(e.cfg.IsTest()),
		}
		if e.cfg.StatsdAddr != "" {
			statsdClient, err := statsd.New(e.cfg.StatsdAddr)
			if err != nil {
				return fmt.Errorf("failed to create statsd client: %w", err)
			}
			defer statsdClient.Close()
			options = append(options, server.WithStatsd(statsdClient))
		}
		srv := server.NewServer(e.db, options...)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return srv.Run(ctx, e.cfg.ListenAddr)
		})
		g.Go(func() error {
			return srv.RunCron(ctx)
		})
		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
