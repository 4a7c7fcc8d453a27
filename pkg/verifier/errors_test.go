package verifier_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/plotbeam/renderauth/pkg/verifier"
)

func TestErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		err            error
		rejection      bool
		infrastructure bool
		rateLimited    bool
	}{
		{
			name:      "validation",
			err:       verifier.ValidationError{Message: "credential is empty"},
			rejection: true,
		},
		{
			name:      "not_found",
			err:       verifier.NotFoundError{Credential: "tok_missing"},
			rejection: true,
		},
		{
			name:      "inactive",
			err:       verifier.InactiveError{},
			rejection: true,
		},
		{
			name:      "expired",
			err:       verifier.ExpiredError{},
			rejection: true,
		},
		{
			name:      "remote_rejection",
			err:       verifier.RejectedError{},
			rejection: true,
		},
		{
			name:           "store_unavailable",
			err:            verifier.StoreUnavailableError{Err: errors.New("connection refused")},
			infrastructure: true,
		},
		{
			name:           "configuration",
			err:            verifier.ConfigurationError{Message: "secret identifier is not set"},
			infrastructure: true,
		},
		{
			name:           "service",
			err:            verifier.ServiceError{Err: errors.New("timeout")},
			infrastructure: true,
		},
		{
			name:        "rate_limit",
			err:         verifier.RateLimitError{Message: "quota exhausted"},
			rateLimited: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.rejection, verifier.IsCredentialRejection(tt.err))
			assert.Equal(t, tt.infrastructure, verifier.IsInfrastructure(tt.err))
			assert.Equal(t, tt.rateLimited, verifier.IsRateLimited(tt.err))
		})
	}
}

func TestClassificationSurvivesWrapping(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("verify: %w", verifier.InactiveError{})
	assert.True(t, verifier.IsCredentialRejection(wrapped))
	assert.False(t, verifier.IsInfrastructure(wrapped))

	wrapped = fmt.Errorf("verify: %w", verifier.StoreUnavailableError{Err: errors.New("down")})
	assert.True(t, verifier.IsInfrastructure(wrapped))
	assert.False(t, verifier.IsCredentialRejection(wrapped))
}

func TestPublicReasonHidesFailureDetail(t *testing.T) {
	t.Parallel()

	// All credential-state rejections collapse to one message so callers
	// cannot probe which check failed.
	for _, err := range []error{
		verifier.ValidationError{Message: "credential is empty"},
		verifier.NotFoundError{Credential: "tok_missing"},
		verifier.InactiveError{},
		verifier.ExpiredError{},
		verifier.RejectedError{},
	} {
		assert.Equal(t, verifier.PublicInvalid, verifier.PublicReason(err))
	}

	for _, err := range []error{
		verifier.StoreUnavailableError{Err: errors.New("connection refused")},
		verifier.ConfigurationError{Message: "bad secret"},
		verifier.ServiceError{Err: errors.New("status 502")},
	} {
		assert.Equal(t, verifier.PublicUnavailable, verifier.PublicReason(err))
	}

	assert.Equal(t, verifier.PublicRateLimited,
		verifier.PublicReason(verifier.RateLimitError{}))
	assert.Empty(t, verifier.PublicReason(nil))
}
