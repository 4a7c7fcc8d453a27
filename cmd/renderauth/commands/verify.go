package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/plotbeam/renderauth/internal/config"
	"github.com/plotbeam/renderauth/internal/logging"
	"github.com/plotbeam/renderauth/pkg/verifier"
)

func NewVerifyCommand(cfg *config.Config) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "verify <credential>",
		Short: "Verify a single client credential",
		Long: `Check a credential against the configured verification backend.

Exit codes distinguish the outcome:
  0  credential is valid
  2  credential rejected
  3  rate limited
  4  backend unavailable (retry may succeed)`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(); err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			v, connector, err := buildVerifier(cfg)
			if err != nil {
				return err
			}
			if connector != nil {
				defer func() { _ = connector.Close() }()
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			credential := args[0]
			result, err := v.Verify(ctx, credential)
			if err != nil {
				cfg.Logger.Debug("verification of %s failed: %v",
					logging.Fingerprint(credential), err)
				cfg.Logger.Error("%s", verifier.PublicReason(err))
				return err
			}

			cfg.Logger.Info("credential valid (owner: %s)", result.OwnerID)
			if result.ExpiresAt != nil {
				cfg.Logger.Info("expires at %s", result.ExpiresAt.Format(time.RFC3339))
			}
			if result.RemainingQuota != nil {
				cfg.Logger.Info("remaining quota: %d", *result.RemainingQuota)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Overall verification timeout")

	return cmd
}
