package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/plotbeam/renderauth/internal/config"
	"github.com/plotbeam/renderauth/internal/secrets"
	"github.com/plotbeam/renderauth/internal/store"
)

func NewDoctorCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and backend connectivity",
		Long: `Verify that renderauth is properly configured and its backend reachable.

This command checks:
- Configuration file validity
- Secret resolution (store mode)
- Backing store connectivity and pool construction (store mode)
- Authorization service configuration (remote mode)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Logger.Info("Checking renderauth configuration...")
			if err := cfg.Load(); err != nil {
				cfg.Logger.Error("Configuration error: %v", err)
				return fmt.Errorf("failed to load config: %w", err)
			}
			cfg.Logger.Info("Configuration loaded (mode: %s)", cfg.Definition.Mode)

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			switch cfg.Definition.Mode {
			case "store":
				return checkStoreBackend(ctx, cfg)
			case "remote":
				cfg.Logger.Info("Authorization endpoint: %s (product: %s)",
					cfg.Definition.Authz.Endpoint, cfg.Definition.Authz.Product)
				cfg.Logger.Info("Remote mode performs no local checks; the service is consulted per call")
				return nil
			default:
				return fmt.Errorf("unknown mode %q", cfg.Definition.Mode)
			}
		},
	}

	return cmd
}

func checkStoreBackend(ctx context.Context, cfg *config.Config) error {
	resolver, err := secrets.NewResolver(cfg.Definition.Secrets, cfg.Logger)
	if err != nil {
		cfg.Logger.Error("Secret resolver error: %v", err)
		return err
	}

	params, err := resolver.Resolve(ctx)
	if err != nil {
		cfg.Logger.Error("Secret resolution failed: %v", err)
		return err
	}
	cfg.Logger.Info("Resolved connection parameters: %s", params)

	connector := store.NewConnector(cfg.Definition.Store, resolver, cfg.Logger)
	defer func() { _ = connector.Close() }()

	if err := connector.Ping(ctx); err != nil {
		cfg.Logger.Error("Backing store unreachable: %v", err)
		return err
	}

	if stats, ok := connector.Stats(); ok {
		cfg.Logger.Info("Backing store reachable (pool: %d open, max %d)",
			stats.OpenConnections, stats.MaxOpenConnections)
	}
	return nil
}
