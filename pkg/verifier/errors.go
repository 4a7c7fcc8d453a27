package verifier

import "errors"

// Caller-visible messages. Credential-state rejections intentionally share
// one message so callers cannot tell a missing credential from a revoked or
// expired one.
const (
	PublicInvalid     = "invalid credential"
	PublicUnavailable = "service temporarily unavailable"
	PublicRateLimited = "rate limit exceeded"
)

// ValidationError indicates the credential was absent or malformed. No
// backend I/O was performed.
type ValidationError struct {
	Message string
}

func (e ValidationError) Error() string {
	return "credential validation failed: " + e.Message
}

// NotFoundError indicates no record exists for the credential.
type NotFoundError struct {
	Credential string
}

func (e NotFoundError) Error() string {
	return "credential not found"
}

// InactiveError indicates the credential record exists but has been
// deactivated. Inactive wins over expiry when both apply.
type InactiveError struct{}

func (e InactiveError) Error() string {
	return "credential is inactive"
}

// ExpiredError indicates the credential record's own expiry has passed.
type ExpiredError struct{}

func (e ExpiredError) Error() string {
	return "credential has expired"
}

// RejectedError is the generic rejection reported by the remote
// authorization service. It deliberately carries no detail about why the
// credential was refused.
type RejectedError struct{}

func (e RejectedError) Error() string {
	return PublicInvalid
}

// StoreUnavailableError indicates the backing store could not be reached or
// the connection pool could not be built.
type StoreUnavailableError struct {
	Err error
}

func (e StoreUnavailableError) Error() string {
	if e.Err != nil {
		return "backing store unavailable: " + e.Err.Error()
	}
	return "backing store unavailable"
}

func (e StoreUnavailableError) Unwrap() error { return e.Err }

// ConfigurationError indicates the verifier could not be set up: a missing
// secret identifier, an unreachable secret source, or invalid settings.
type ConfigurationError struct {
	Message string
	Err     error
}

func (e ConfigurationError) Error() string {
	if e.Err != nil {
		return "configuration error: " + e.Message + ": " + e.Err.Error()
	}
	return "configuration error: " + e.Message
}

func (e ConfigurationError) Unwrap() error { return e.Err }

// ServiceError indicates the remote authorization service failed, timed out
// or returned an unintelligible response.
type ServiceError struct {
	Err error
}

func (e ServiceError) Error() string {
	if e.Err != nil {
		return "authorization service unavailable: " + e.Err.Error()
	}
	return "authorization service unavailable"
}

func (e ServiceError) Unwrap() error { return e.Err }

// RateLimitError indicates the caller has exhausted its quota or is being
// rate limited. Surfaced distinctly so callers can back off instead of
// treating the credential as invalid.
type RateLimitError struct {
	Message string
}

func (e RateLimitError) Error() string {
	if e.Message != "" {
		return "rate limited: " + e.Message
	}
	return "rate limited"
}

// IsCredentialRejection reports whether err is a terminal credential-state
// rejection (validation, not found, inactive, expired, or a generic remote
// rejection). These are never retried.
func IsCredentialRejection(err error) bool {
	var (
		validation ValidationError
		notFound   NotFoundError
		inactive   InactiveError
		expired    ExpiredError
		rejected   RejectedError
	)
	return errors.As(err, &validation) ||
		errors.As(err, &notFound) ||
		errors.As(err, &inactive) ||
		errors.As(err, &expired) ||
		errors.As(err, &rejected)
}

// IsInfrastructure reports whether err is an infrastructure failure (store,
// configuration or remote-service trouble). Callers may retry these at a
// higher layer; this core never retries on its own.
func IsInfrastructure(err error) bool {
	var (
		store   StoreUnavailableError
		conf    ConfigurationError
		service ServiceError
	)
	return errors.As(err, &store) || errors.As(err, &conf) || errors.As(err, &service)
}

// IsRateLimited reports whether err is a rate-limit signal.
func IsRateLimited(err error) bool {
	var rl RateLimitError
	return errors.As(err, &rl)
}

// PublicReason maps an error to the message safe to show external callers.
// Every credential rejection collapses to PublicInvalid and every
// infrastructure failure to PublicUnavailable, so the response never leaks
// which internal check failed.
func PublicReason(err error) string {
	switch {
	case err == nil:
		return ""
	case IsRateLimited(err):
		return PublicRateLimited
	case IsCredentialRejection(err):
		return PublicInvalid
	default:
		return PublicUnavailable
	}
}
