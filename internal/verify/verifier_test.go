package verify_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plotbeam/renderauth/internal/config"
	"github.com/plotbeam/renderauth/internal/logging"
	"github.com/plotbeam/renderauth/internal/store"
	"github.com/plotbeam/renderauth/internal/verify"
	"github.com/plotbeam/renderauth/pkg/verifier"
)

// fakeStore serves canned records keyed by credential and counts lookups.
type fakeStore struct {
	mu      sync.Mutex
	lookups int
	records map[string]*store.CredentialRecord
	err     error
}

func (f *fakeStore) LookupCredential(ctx context.Context, credential string) (*store.CredentialRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.err != nil {
		return nil, f.err
	}
	record, ok := f.records[credential]
	if !ok {
		return nil, verifier.NotFoundError{Credential: credential}
	}
	return record, nil
}

func (f *fakeStore) lookupCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookups
}

// clock is a settable time source for TTL tests.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newVerifier(t *testing.T, credentials *fakeStore) (*verify.StoreVerifier, *clock) {
	t.Helper()
	clk := &clock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	v := verify.NewStoreVerifier(
		config.CacheConfig{TTLSeconds: 300, MaxEntries: 4096},
		credentials,
		logging.New(false, true),
		verify.WithClock(clk.Now),
	)
	return v, clk
}

func TestVerifyValidCredential(t *testing.T) {
	t.Parallel()

	expires := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	credentials := &fakeStore{records: map[string]*store.CredentialRecord{
		"tok_abc": {OwnerID: "u1", IsActive: true, ExpiresAt: &expires},
	}}
	v, _ := newVerifier(t, credentials)

	result, err := v.Verify(context.Background(), "tok_abc")
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, "u1", result.OwnerID)
	require.NotNil(t, result.ExpiresAt)
	assert.True(t, result.ExpiresAt.Equal(expires))
}

func TestVerifyCachesValidDecisions(t *testing.T) {
	t.Parallel()

	credentials := &fakeStore{records: map[string]*store.CredentialRecord{
		"tok_abc": {OwnerID: "u1", IsActive: true},
	}}
	v, clk := newVerifier(t, credentials)

	for i := 0; i < 5; i++ {
		result, err := v.Verify(context.Background(), "tok_abc")
		require.NoError(t, err)
		assert.True(t, result.Valid)
		clk.Advance(30 * time.Second)
	}

	// One store round trip serves all calls within the TTL.
	assert.Equal(t, 1, credentials.lookupCount())
	assert.Equal(t, 1, v.CacheLen())
}

func TestVerifyRevalidatesAfterTTL(t *testing.T) {
	t.Parallel()

	credentials := &fakeStore{records: map[string]*store.CredentialRecord{
		"tok_abc": {OwnerID: "u1", IsActive: true},
	}}
	v, clk := newVerifier(t, credentials)

	_, err := v.Verify(context.Background(), "tok_abc")
	require.NoError(t, err)

	clk.Advance(301 * time.Second)

	_, err = v.Verify(context.Background(), "tok_abc")
	require.NoError(t, err)
	assert.Equal(t, 2, credentials.lookupCount())
}

func TestVerifyCachedRecordExpiryWinsOverTTL(t *testing.T) {
	t.Parallel()

	credentials := &fakeStore{records: map[string]*store.CredentialRecord{}}
	v, clk := newVerifier(t, credentials)

	// Expires 60s from the first check, well inside the 300s TTL.
	expires := clk.Now().Add(60 * time.Second)
	credentials.records["tok_short"] = &store.CredentialRecord{
		OwnerID: "u1", IsActive: true, ExpiresAt: &expires,
	}

	_, err := v.Verify(context.Background(), "tok_short")
	require.NoError(t, err)

	clk.Advance(90 * time.Second)

	// The cache entry is still within TTL but the credential itself has
	// expired, so the store is consulted again and reports expiry.
	_, err = v.Verify(context.Background(), "tok_short")
	require.Error(t, err)
	assert.ErrorAs(t, err, &verifier.ExpiredError{})
	assert.Equal(t, 2, credentials.lookupCount())
}

func TestVerifyInactiveBeatsExpired(t *testing.T) {
	t.Parallel()

	credentials := &fakeStore{records: map[string]*store.CredentialRecord{}}
	v, clk := newVerifier(t, credentials)
	past := clk.Now().Add(-time.Hour)
	credentials.records["tok_dead"] = &store.CredentialRecord{
		OwnerID: "u1", IsActive: false, ExpiresAt: &past,
	}

	// Both inactive and expired: the inactive check runs first.
	result, err := v.Verify(context.Background(), "tok_dead")
	require.Error(t, err)
	assert.ErrorAs(t, err, &verifier.InactiveError{})
	assert.Equal(t, "inactive", result.Reason)
}

func TestVerifyRejectionsAreNotCached(t *testing.T) {
	t.Parallel()

	credentials := &fakeStore{records: map[string]*store.CredentialRecord{
		"tok_off": {OwnerID: "u1", IsActive: false},
	}}
	v, _ := newVerifier(t, credentials)

	for i := 0; i < 3; i++ {
		_, err := v.Verify(context.Background(), "tok_off")
		assert.ErrorAs(t, err, &verifier.InactiveError{})
	}
	_, err := v.Verify(context.Background(), "tok_unknown")
	assert.ErrorAs(t, err, &verifier.NotFoundError{})

	// Every rejected call went back to the store; nothing was cached.
	assert.Equal(t, 4, credentials.lookupCount())
	assert.Equal(t, 0, v.CacheLen())
}

func TestVerifyMalformedSkipsStore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		credential string
	}{
		{name: "empty", credential: ""},
		{name: "whitespace", credential: "tok abc"},
		{name: "control", credential: "tok\x00abc"},
		{name: "oversized", credential: strings.Repeat("a", 513)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			credentials := &fakeStore{}
			v, _ := newVerifier(t, credentials)

			_, err := v.Verify(context.Background(), tt.credential)
			require.Error(t, err)
			assert.ErrorAs(t, err, &verifier.ValidationError{})
			assert.Equal(t, 0, credentials.lookupCount())
		})
	}
}

func TestVerifyStoreFailureIsGeneric(t *testing.T) {
	t.Parallel()

	credentials := &fakeStore{
		err: store.QueryError{Err: errors.New("permission denied for table api_credentials")},
	}
	v, _ := newVerifier(t, credentials)

	result, err := v.Verify(context.Background(), "tok_abc")
	require.Error(t, err)
	assert.True(t, verifier.IsInfrastructure(err))
	assert.False(t, verifier.IsCredentialRejection(err))
	assert.Equal(t, "verification failed", result.Reason)

	// Failures are never cached: the next call tries the store again.
	_, _ = v.Verify(context.Background(), "tok_abc")
	assert.Equal(t, 2, credentials.lookupCount())
	assert.Equal(t, 0, v.CacheLen())
}
