// Package verify implements the store-backed credential verifier: an
// in-process TTL cache in front of the relational backing store.
package verify

import (
	"context"
	"time"
	"unicode"

	"github.com/plotbeam/renderauth/internal/config"
	"github.com/plotbeam/renderauth/internal/logging"
	"github.com/plotbeam/renderauth/internal/store"
	"github.com/plotbeam/renderauth/pkg/verifier"
)

// maxCredentialLength rejects absurd inputs before they reach the cache or
// the store.
const maxCredentialLength = 512

// CredentialStore reads credential records from the backing store.
// Satisfied by *store.Connector.
type CredentialStore interface {
	LookupCredential(ctx context.Context, credential string) (*store.CredentialRecord, error)
}

// StoreVerifier verifies credentials against the backing store, caching
// successful decisions in process. It implements verifier.Verifier.
type StoreVerifier struct {
	store CredentialStore
	cache *decisionCache
	log   *logging.Logger
	now   func() time.Time
}

// StoreOption is a functional option for configuring the verifier
type StoreOption func(*StoreVerifier)

// WithClock replaces the time source (for testing TTL behavior)
func WithClock(now func() time.Time) StoreOption {
	return func(v *StoreVerifier) {
		v.now = now
	}
}

// NewStoreVerifier creates a store-backed verifier
func NewStoreVerifier(cfg config.CacheConfig, credentials CredentialStore, log *logging.Logger, opts ...StoreOption) *StoreVerifier {
	v := &StoreVerifier{
		store: credentials,
		cache: newDecisionCache(cfg.TTL(), cfg.MaxEntries),
		log:   log,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify implements verifier.Verifier.
//
// Malformed credentials are rejected without touching the cache or the
// store. A cached valid decision within TTL whose record is still unexpired
// is served without store access. Everything else queries the store once:
// inactive is checked before expiry so the reported reason is deterministic,
// and only valid results are written back to the cache.
func (v *StoreVerifier) Verify(ctx context.Context, credential string) (verifier.Result, error) {
	if reason, ok := malformed(credential); ok {
		recordVerification("malformed")
		return verifier.Result{Reason: "validation failed"},
			verifier.ValidationError{Message: reason}
	}

	now := v.now()

	if result, ok := v.cache.Lookup(credential, now); ok {
		recordCacheHit()
		recordVerification("cache_hit")
		return result, nil
	}
	recordCacheMiss()

	recordStoreQuery()
	record, err := v.store.LookupCredential(ctx, credential)
	if err != nil {
		return v.rejectOrFail(credential, err)
	}

	if !record.IsActive {
		recordVerification("inactive")
		return verifier.Result{Reason: "inactive"}, verifier.InactiveError{}
	}

	if record.ExpiresAt != nil && !now.Before(*record.ExpiresAt) {
		recordVerification("expired")
		return verifier.Result{Reason: "expired"}, verifier.ExpiredError{}
	}

	result := verifier.Result{
		Valid:     true,
		OwnerID:   record.OwnerID,
		ExpiresAt: record.ExpiresAt,
	}
	v.cache.Store(credential, result, now)
	recordVerification("valid")
	return result, nil
}

// rejectOrFail maps store lookup errors to the verifier taxonomy. Lookup
// misses stay a rejection; everything else is an infrastructure failure
// reported generically so store internals never leak.
func (v *StoreVerifier) rejectOrFail(credential string, err error) (verifier.Result, error) {
	if verifier.IsCredentialRejection(err) {
		recordVerification("not_found")
		return verifier.Result{Reason: "not found"}, err
	}

	v.log.Error("credential lookup failed for %s: %v",
		logging.Fingerprint(credential), err)
	recordVerification("store_error")

	if verifier.IsInfrastructure(err) {
		return verifier.Result{Reason: "verification failed"}, err
	}
	return verifier.Result{Reason: "verification failed"},
		verifier.StoreUnavailableError{Err: err}
}

// CacheLen reports the current number of cached decisions (health surface)
func (v *StoreVerifier) CacheLen() int {
	return v.cache.Len()
}

// malformed reports whether the credential fails local validation, with the
// reason. No I/O is performed for these.
func malformed(credential string) (string, bool) {
	if credential == "" {
		return "credential is empty", true
	}
	if len(credential) > maxCredentialLength {
		return "credential exceeds maximum length", true
	}
	for _, r := range credential {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return "credential contains whitespace or control characters", true
		}
	}
	return "", false
}
