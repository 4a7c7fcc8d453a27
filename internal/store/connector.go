// Package store provides the lazily initialized, pooled connection to the
// credential backing store.
//
// The pool is a process-wide singleton built on first use. Concurrent first
// callers all observe the same in-flight initialization attempt: exactly one
// secret resolution and one pool construction happen no matter how many
// verification calls race on a cold process. Initialization failure is never
// cached; the next caller retries from scratch. A connection-level runtime
// error clears the singleton so the next call rebuilds it.
package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	// SQL drivers for the supported backing stores
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"github.com/plotbeam/renderauth/internal/config"
	"github.com/plotbeam/renderauth/internal/logging"
	"github.com/plotbeam/renderauth/internal/secrets"
	"github.com/plotbeam/renderauth/pkg/verifier"
)

// SecretResolver resolves the backing-store connection parameters. Satisfied
// by *secrets.Resolver.
type SecretResolver interface {
	Resolve(ctx context.Context) (*secrets.ConnectionParams, error)
}

// QueryError indicates a query failed to execute after a connection was
// acquired. Distinct from verifier.StoreUnavailableError, which covers pool
// acquisition failures.
type QueryError struct {
	Err error
}

func (e QueryError) Error() string {
	return "query execution failed: " + e.Err.Error()
}

func (e QueryError) Unwrap() error { return e.Err }

// initAttempt is the shared pending result of an in-flight pool
// construction. Waiters block on done; db/err are set before done closes.
type initAttempt struct {
	done chan struct{}
	db   *sql.DB
	err  error
}

// Connector owns the pooled backing-store connection.
//
// The guard moves through uninitialized → initializing (pending set) →
// ready (db set) on success, or back to uninitialized on failure. All state
// transitions happen under mu; initialization itself runs unlocked so
// waiters and unrelated work are never blocked behind the dial.
type Connector struct {
	cfg      config.StoreConfig
	resolver SecretResolver
	log      *logging.Logger
	open     func(driverName, dsn string) (*sql.DB, error)

	mu      sync.Mutex
	db      *sql.DB
	driver  string
	pending *initAttempt
}

// Option is a functional option for configuring the connector
type Option func(*Connector)

// WithOpenFunc replaces sql.Open (for testing with sqlmock)
func WithOpenFunc(open func(driverName, dsn string) (*sql.DB, error)) Option {
	return func(c *Connector) {
		c.open = open
	}
}

// NewConnector creates a connector. No I/O happens until the first DB call.
func NewConnector(cfg config.StoreConfig, resolver SecretResolver, log *logging.Logger, opts ...Option) *Connector {
	c := &Connector{
		cfg:      cfg,
		resolver: resolver,
		log:      log,
		open:     sql.Open,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DB returns the pooled connection, building it on first use. Concurrent
// callers during initialization wait for the same attempt; its failure
// propagates to all of them and leaves the connector ready to retry.
func (c *Connector) DB(ctx context.Context) (*sql.DB, error) {
	c.mu.Lock()
	if c.db != nil {
		db := c.db
		c.mu.Unlock()
		return db, nil
	}

	if att := c.pending; att != nil {
		c.mu.Unlock()
		select {
		case <-att.done:
			return att.db, att.err
		case <-ctx.Done():
			return nil, verifier.StoreUnavailableError{Err: ctx.Err()}
		}
	}

	att := &initAttempt{done: make(chan struct{})}
	c.pending = att
	c.mu.Unlock()

	db, driverName, err := c.initialize(ctx)

	c.mu.Lock()
	if err == nil {
		c.db = db
		c.driver = driverName
	}
	c.pending = nil
	c.mu.Unlock()

	att.db, att.err = db, err
	close(att.done)
	return db, err
}

// initialize resolves the secret, opens the pool and verifies connectivity.
func (c *Connector) initialize(ctx context.Context) (*sql.DB, string, error) {
	params, err := c.resolver.Resolve(ctx)
	if err != nil {
		return nil, "", err
	}

	dsn, err := params.DSN()
	if err != nil {
		return nil, "", verifier.ConfigurationError{
			Message: "failed to build connection string",
			Err:     err,
		}
	}

	db, err := c.open(params.Driver, dsn)
	if err != nil {
		return nil, "", verifier.StoreUnavailableError{
			Err: fmt.Errorf("failed to open pool: %w", err),
		}
	}

	db.SetMaxOpenConns(c.cfg.MaxOpenConns)
	db.SetMaxIdleConns(c.cfg.MaxIdleConns)
	db.SetConnMaxIdleTime(c.cfg.ConnMaxIdleTime())

	pingCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout())
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, "", verifier.StoreUnavailableError{
			Err: fmt.Errorf("failed to connect to %s: %w", params, err),
		}
	}

	c.log.Debug("backing store pool ready: %s (max_open=%d)", params, c.cfg.MaxOpenConns)
	return db, params.Driver, nil
}

// invalidate clears the singleton iff it still is the given pool, so a
// stale failure report cannot tear down a pool that was already rebuilt.
func (c *Connector) invalidate(db *sql.DB) {
	c.mu.Lock()
	current := c.db == db
	if current {
		c.db = nil
	}
	c.mu.Unlock()

	if current {
		c.log.Warn("backing store pool invalidated; next call rebuilds it")
		_ = db.Close()
	}
}

// Query executes a read against the backing store. Pool acquisition
// failures surface as verifier.StoreUnavailableError, execution failures as
// QueryError. Connection-class execution errors invalidate the pool.
//
// The query timeout context must outlive row iteration, so the caller gets
// a cleanup alongside the rows and must run it once done iterating.
func (c *Connector) Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, func(), error) {
	db, err := c.DB(ctx)
	if err != nil {
		return nil, nil, asUnavailable(err)
	}

	queryCtx, cancel := context.WithTimeout(ctx, c.cfg.QueryTimeout())

	rows, err := db.QueryContext(queryCtx, query, args...)
	if err != nil {
		cancel()
		if isConnErr(err) {
			c.invalidate(db)
		}
		return nil, nil, QueryError{Err: err}
	}

	cleanup := func() {
		_ = rows.Close()
		cancel()
	}
	return rows, cleanup, nil
}

// Ping verifies connectivity for health checks. A failed ping invalidates
// the pool so the next verification call rebuilds it.
func (c *Connector) Ping(ctx context.Context) error {
	db, err := c.DB(ctx)
	if err != nil {
		return asUnavailable(err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout())
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		c.invalidate(db)
		return verifier.StoreUnavailableError{Err: err}
	}
	return nil
}

// Stats reports pool statistics. ok is false while the pool has not been
// built.
func (c *Connector) Stats() (stats sql.DBStats, ok bool) {
	c.mu.Lock()
	db := c.db
	c.mu.Unlock()

	if db == nil {
		return sql.DBStats{}, false
	}
	return db.Stats(), true
}

// Close tears down the pool on shutdown. Safe to call with no pool built.
func (c *Connector) Close() error {
	c.mu.Lock()
	db := c.db
	c.db = nil
	c.mu.Unlock()

	if db == nil {
		return nil
	}
	return db.Close()
}

// asUnavailable wraps pool acquisition failures that are not already part
// of the verifier taxonomy.
func asUnavailable(err error) error {
	if verifier.IsInfrastructure(err) {
		return err
	}
	return verifier.StoreUnavailableError{Err: err}
}

// isConnErr reports whether err indicates the connection (not the query)
// went bad.
func isConnErr(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.EOF) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"bad connection",
		"no such host",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// credentialQueries holds the per-driver lookup statement. Same columns,
// different placeholder syntax.
var credentialQueries = map[string]string{
	"postgres": `SELECT owner_id, expires_at, is_active, created_at FROM api_credentials WHERE credential_value = $1`,
	"mysql":    `SELECT owner_id, expires_at, is_active, created_at FROM api_credentials WHERE credential_value = ?`,
}

// CredentialRecord is the backing-store row for a client credential.
type CredentialRecord struct {
	OwnerID   string
	ExpiresAt *time.Time // nil means the credential never expires
	IsActive  bool
	CreatedAt time.Time
}

// LookupCredential reads at most one credential record. Returns
// verifier.NotFoundError when no row matches.
func (c *Connector) LookupCredential(ctx context.Context, credential string) (*CredentialRecord, error) {
	db, err := c.DB(ctx)
	if err != nil {
		return nil, asUnavailable(err)
	}

	c.mu.Lock()
	query, ok := credentialQueries[c.driver]
	c.mu.Unlock()
	if !ok {
		query = credentialQueries["postgres"]
	}

	queryCtx, cancel := context.WithTimeout(ctx, c.cfg.QueryTimeout())
	defer cancel()

	var (
		ownerID   string
		expiresAt sql.NullTime
		isActive  bool
		createdAt time.Time
	)
	err = db.QueryRowContext(queryCtx, query, credential).
		Scan(&ownerID, &expiresAt, &isActive, &createdAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, verifier.NotFoundError{Credential: credential}
	case err != nil:
		if isConnErr(err) {
			c.invalidate(db)
		}
		return nil, QueryError{Err: err}
	}

	record := &CredentialRecord{
		OwnerID:   ownerID,
		IsActive:  isActive,
		CreatedAt: createdAt,
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		record.ExpiresAt = &t
	}
	return record, nil
}
