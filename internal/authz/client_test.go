package authz_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plotbeam/renderauth/internal/authz"
	"github.com/plotbeam/renderauth/internal/config"
	"github.com/plotbeam/renderauth/internal/logging"
	"github.com/plotbeam/renderauth/pkg/verifier"
)

func newClient(endpoint string) *authz.RemoteVerifier {
	return authz.NewRemoteVerifier(config.AuthzConfig{
		Endpoint:  endpoint,
		Product:   "render-api",
		TimeoutMs: 5000,
	}, logging.New(false, true))
}

func respond(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestVerifyAccepted(t *testing.T) {
	t.Parallel()

	var seen struct {
		Credential string `json:"credential"`
		Scope      string `json:"scopeIdentifier"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&seen))
		_, _ = w.Write([]byte(`{"valid":true,"ownerId":"u1","remainingQuota":42}`))
	}))
	t.Cleanup(server.Close)

	result, err := newClient(server.URL).Verify(context.Background(), "tok_abc")
	require.NoError(t, err)

	assert.Equal(t, "tok_abc", seen.Credential)
	assert.Equal(t, "render-api", seen.Scope)
	assert.True(t, result.Valid)
	assert.Equal(t, "u1", result.OwnerID)
	require.NotNil(t, result.RemainingQuota)
	assert.Equal(t, int64(42), *result.RemainingQuota)
}

func TestVerifyDeniedInBody(t *testing.T) {
	t.Parallel()

	// A 200 can still carry a negative decision.
	server := respond(t, http.StatusOK, `{"valid":false,"error":"key revoked"}`)

	result, err := newClient(server.URL).Verify(context.Background(), "tok_abc")
	require.Error(t, err)
	assert.ErrorAs(t, err, &verifier.RejectedError{})
	assert.True(t, verifier.IsCredentialRejection(err))
	assert.False(t, result.Valid)
}

func TestVerifyUnauthorized(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		body        string
		rateLimited bool
	}{
		{name: "invalid_key", body: `{"valid":false,"error":"unknown api key"}`},
		{name: "revoked_key", body: `{"valid":false,"error":"key disabled"}`},
		{name: "empty_body", body: ``},
		{name: "garbage_body", body: `<html>unauthorized</html>`},
		{name: "quota_exhausted", body: `{"valid":false,"error":"monthly quota exceeded"}`, rateLimited: true},
		{name: "too_many_requests", body: `{"valid":false,"error":"too many requests"}`, rateLimited: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := respond(t, http.StatusUnauthorized, tt.body)
			_, err := newClient(server.URL).Verify(context.Background(), "tok_abc")
			require.Error(t, err)

			if tt.rateLimited {
				assert.True(t, verifier.IsRateLimited(err))
				assert.Equal(t, verifier.PublicRateLimited, verifier.PublicReason(err))
			} else {
				// Missing and revoked keys are indistinguishable to the caller.
				assert.ErrorAs(t, err, &verifier.RejectedError{})
				assert.Equal(t, verifier.PublicInvalid, verifier.PublicReason(err))
			}
		})
	}
}

func TestVerifyThrottled(t *testing.T) {
	t.Parallel()

	server := respond(t, http.StatusTooManyRequests, ``)
	_, err := newClient(server.URL).Verify(context.Background(), "tok_abc")
	require.Error(t, err)
	assert.True(t, verifier.IsRateLimited(err))
}

func TestVerifyServerErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "internal_error", status: http.StatusInternalServerError, body: `boom`},
		{name: "bad_gateway", status: http.StatusBadGateway, body: ``},
		{name: "unparseable_200", status: http.StatusOK, body: `{"valid":`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := respond(t, tt.status, tt.body)
			_, err := newClient(server.URL).Verify(context.Background(), "tok_abc")
			require.Error(t, err)
			assert.True(t, verifier.IsInfrastructure(err))
			assert.Equal(t, verifier.PublicUnavailable, verifier.PublicReason(err))
		})
	}
}

func TestVerifyTimeout(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(server.Close)

	client := authz.NewRemoteVerifier(config.AuthzConfig{
		Endpoint:  server.URL,
		Product:   "render-api",
		TimeoutMs: 10,
	}, logging.New(false, true))

	_, err := client.Verify(context.Background(), "tok_abc")
	require.Error(t, err)
	assert.True(t, verifier.IsInfrastructure(err))
}

func TestVerifyUnreachableService(t *testing.T) {
	t.Parallel()

	// Grab a port nobody is listening on.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := server.URL
	server.Close()

	_, err := newClient(endpoint).Verify(context.Background(), "tok_abc")
	require.Error(t, err)
	assert.ErrorAs(t, err, &verifier.ServiceError{})
}

func TestVerifyEmptyCredential(t *testing.T) {
	t.Parallel()

	// No request is made for a locally invalid credential.
	client := newClient("http://127.0.0.1:0")
	_, err := client.Verify(context.Background(), "")
	require.Error(t, err)
	assert.ErrorAs(t, err, &verifier.ValidationError{})
}
