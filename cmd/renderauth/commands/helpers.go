package commands

import (
	"fmt"

	"github.com/plotbeam/renderauth/internal/authz"
	"github.com/plotbeam/renderauth/internal/config"
	"github.com/plotbeam/renderauth/internal/secrets"
	"github.com/plotbeam/renderauth/internal/store"
	"github.com/plotbeam/renderauth/internal/verify"
	"github.com/plotbeam/renderauth/pkg/verifier"
)

// buildVerifier wires the configured verification backend. The mode switch
// lives here, once; call sites only ever see the verifier.Verifier
// interface. The returned connector is nil in remote mode.
func buildVerifier(cfg *config.Config) (verifier.Verifier, *store.Connector, error) {
	def := cfg.Definition

	switch def.Mode {
	case "store":
		resolver, err := secrets.NewResolver(def.Secrets, cfg.Logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to build secret resolver: %w", err)
		}
		connector := store.NewConnector(def.Store, resolver, cfg.Logger)
		return verify.NewStoreVerifier(def.Cache, connector, cfg.Logger), connector, nil

	case "remote":
		return authz.NewRemoteVerifier(def.Authz, cfg.Logger), nil, nil

	default:
		return nil, nil, config.ConfigError{
			Field:   "mode",
			Value:   def.Mode,
			Message: "unknown verification mode",
		}
	}
}
