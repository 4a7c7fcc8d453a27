// Package verifier defines the core interface and types for credential
// verification backends in renderauth.
//
// renderauth sits in front of a compute-heavy rendering pipeline and decides,
// per request, whether an opaque client credential may proceed. Two backends
// implement this package's Verifier interface:
//
//   - the store-backed verifier (internal/verify), which consults an
//     in-process TTL cache and falls back to a relational backing store
//   - the remote verifier (internal/authz), which delegates validation and
//     quota accounting to an external authorization service
//
// Exactly one backend is active in a deployment; the choice is made at
// configuration time, not per call site.
//
// # Error Handling
//
// Backends report failures with the typed errors in this package. Callers
// must never string-match: use IsCredentialRejection, IsInfrastructure and
// IsRateLimited to classify, and PublicReason to obtain the message that may
// be shown to an external caller. Credential rejections and infrastructure
// failures map to distinct caller-visible statuses because clients rely on
// the distinction to decide whether a retry makes sense.
//
// # Concurrency
//
// Implementations must be safe for concurrent use. Many verification calls
// may be in flight in one process, all sharing the same cache and pool
// state.
package verifier

import (
	"context"
	"time"
)

// Verifier decides whether a client credential may proceed.
//
// Verify never panics on malformed input; an absent or malformed credential
// is reported as a ValidationError without touching any backend.
type Verifier interface {
	// Verify checks a single credential and returns the decision.
	//
	// On success Result.Valid is true and Result.OwnerID identifies the
	// credential owner. On rejection or failure Result.Valid is false and
	// the returned error carries the classification. Implementations must
	// honor context cancellation and apply their own per-call timeouts.
	Verify(ctx context.Context, credential string) (Result, error)
}

// Result is the outcome of a verification call.
type Result struct {
	// Valid reports whether the request may proceed.
	Valid bool

	// OwnerID identifies the owner of the credential. Empty when Valid is
	// false.
	OwnerID string

	// ExpiresAt is the credential's own expiry, when the backend knows it.
	// Nil means the credential never expires or the backend does not report
	// expiry.
	ExpiresAt *time.Time

	// RemainingQuota is the quota left for this credential as reported by
	// the remote authorization service. Nil for the store-backed path,
	// which does no quota accounting.
	RemainingQuota *int64

	// Reason is a short internal description of a rejection ("not found",
	// "inactive", "expired", "verification failed"). It is for logs and
	// metrics only; use PublicReason for anything caller-visible.
	Reason string
}
