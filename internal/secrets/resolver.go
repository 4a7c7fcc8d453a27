package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/plotbeam/renderauth/internal/config"
	"github.com/plotbeam/renderauth/internal/logging"
	"github.com/plotbeam/renderauth/internal/secure"
	"github.com/plotbeam/renderauth/pkg/verifier"
)

// Source fetches the raw connection-parameter document from a secret store.
type Source interface {
	// Name returns a stable identifier used in errors and logs
	Name() string

	// Fetch retrieves the JSON payload. Called at most once per process
	// under normal operation; the Resolver memoizes the parsed result.
	Fetch(ctx context.Context) ([]byte, error)
}

// Resolver resolves and memoizes the backing-store connection parameters.
// The first successful resolution is kept for the process lifetime; a
// secret rotation requires a fresh process.
type Resolver struct {
	source Source
	log    *logging.Logger

	mu     sync.Mutex
	cached *ConnectionParams
}

// NewResolver builds a resolver for the configured secret source.
func NewResolver(cfg config.SecretsConfig, log *logging.Logger) (*Resolver, error) {
	var source Source
	switch cfg.Source {
	case "aws.secretsmanager":
		source = newAWSSource(cfg)
	case "env":
		source = envSource{}
	default:
		return nil, verifier.ConfigurationError{
			Message: fmt.Sprintf("unknown secret source %q", cfg.Source),
		}
	}

	return &Resolver{source: source, log: log}, nil
}

// NewResolverWithSource builds a resolver around an explicit source. Used by
// tests and by callers that construct sources themselves.
func NewResolverWithSource(source Source, log *logging.Logger) *Resolver {
	return &Resolver{source: source, log: log}
}

// Resolve returns the connection parameters, fetching them on first call
// and serving the memoized value afterwards. Failures are not memoized; the
// next call fetches again.
func (r *Resolver) Resolve(ctx context.Context) (*ConnectionParams, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cached != nil {
		return r.cached, nil
	}

	payload, err := r.source.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	if err := validatePayload(r.source.Name(), payload); err != nil {
		return nil, err
	}

	params, err := parsePayload(payload)
	if err != nil {
		return nil, MalformedSecretError{
			Source:  r.source.Name(),
			Reasons: []string{err.Error()},
		}
	}

	r.log.Debug("resolved store connection parameters from %s: %s", r.source.Name(), params)
	r.cached = params
	return params, nil
}

// parsePayload converts a validated secret document into ConnectionParams
func parsePayload(payload []byte) (*ConnectionParams, error) {
	var doc connectionPayload
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}

	password, err := secure.NewBuffer([]byte(doc.Password))
	if err != nil {
		return nil, fmt.Errorf("failed to protect password: %w", err)
	}

	driver := doc.Driver
	if driver == "" {
		driver = "postgres"
	}

	return &ConnectionParams{
		Driver:   driver,
		Host:     doc.Host,
		Port:     doc.Port.String(),
		Database: doc.Database,
		User:     doc.User,
		SSLMode:  doc.SSLMode,
		password: password,
	}, nil
}
