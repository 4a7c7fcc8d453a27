package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/plotbeam/renderauth/internal/config"
	"github.com/plotbeam/renderauth/internal/health"
)

func NewServeCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the health and metrics listener",
		Long: `Start the HTTP listener exposing /healthz and the Prometheus metrics
endpoint. In store mode /healthz pings the backing store and reports pool
usage.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(); err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			// Force the listener on for this command regardless of config.
			healthCfg := cfg.Definition.Health
			healthCfg.Enabled = true

			_, connector, err := buildVerifier(cfg)
			if err != nil {
				return err
			}
			if connector != nil {
				defer func() { _ = connector.Close() }()
			}

			var pinger health.Pinger
			if connector != nil {
				pinger = connector
			}

			server := health.NewServer(healthCfg, pinger, cfg.Logger)
			if err := server.Start(); err != nil {
				return fmt.Errorf("failed to start health server: %w", err)
			}
			cfg.Logger.Info("health server listening on %s", server.Addr())

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop

			cfg.Logger.Info("shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Stop(ctx)
		},
	}

	return cmd
}
