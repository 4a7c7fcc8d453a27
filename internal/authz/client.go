// Package authz implements the remote verification backend: validation and
// quota accounting are delegated to an external authorization service over
// HTTP. This path does no local caching; quota state lives entirely on the
// remote side.
package authz

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/plotbeam/renderauth/internal/config"
	"github.com/plotbeam/renderauth/internal/logging"
	"github.com/plotbeam/renderauth/pkg/verifier"
)

// maxResponseBytes caps how much of a response body is read. The decision
// documents are tiny; anything larger is garbage.
const maxResponseBytes = 1 << 20

// RemoteVerifier validates credentials against the external authorization
// service. It implements verifier.Verifier.
type RemoteVerifier struct {
	httpClient *http.Client
	endpoint   string
	product    string
	log        *logging.Logger
}

// NewRemoteVerifier creates a client for the configured service endpoint.
// Every call carries the configured timeout.
func NewRemoteVerifier(cfg config.AuthzConfig, log *logging.Logger) *RemoteVerifier {
	return &RemoteVerifier{
		httpClient: &http.Client{Timeout: cfg.Timeout()},
		endpoint:   cfg.Endpoint,
		product:    cfg.Product,
		log:        log,
	}
}

// validateRequest is the wire request to the authorization service
type validateRequest struct {
	Credential string `json:"credential"`
	Scope      string `json:"scopeIdentifier"`
}

// validateResponse is the wire response
type validateResponse struct {
	Valid          bool   `json:"valid"`
	OwnerID        string `json:"ownerId"`
	RemainingQuota *int64 `json:"remainingQuota"`
	Error          string `json:"error"`
}

// Verify implements verifier.Verifier.
//
// 200 responses carry the decision in the body. 401 bodies are classified:
// quota exhaustion becomes a rate-limit signal, everything else collapses
// into one generic rejection — callers deliberately cannot tell a missing
// key from a revoked one. 429 surfaces as rate limiting. Any other status,
// unparseable body, timeout or connection failure is a service error.
func (v *RemoteVerifier) Verify(ctx context.Context, credential string) (verifier.Result, error) {
	if credential == "" {
		return verifier.Result{Reason: "validation failed"},
			verifier.ValidationError{Message: "credential is empty"}
	}

	body, err := json.Marshal(validateRequest{
		Credential: credential,
		Scope:      v.product,
	})
	if err != nil {
		return verifier.Result{Reason: "request failed"},
			verifier.ServiceError{Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewReader(body))
	if err != nil {
		return verifier.Result{Reason: "request failed"},
			verifier.ServiceError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		// Timeouts, refused connections, DNS failures all land here.
		v.log.Warn("authorization service unreachable: %v", err)
		return verifier.Result{Reason: "service unavailable"},
			verifier.ServiceError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return verifier.Result{Reason: "service unavailable"},
			verifier.ServiceError{Err: fmt.Errorf("failed to read response: %w", err)}
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return v.decodeDecision(payload)

	case http.StatusUnauthorized:
		return v.classifyUnauthorized(payload)

	case http.StatusTooManyRequests:
		return verifier.Result{Reason: "rate limited"},
			verifier.RateLimitError{Message: "authorization service throttled the request"}

	default:
		return verifier.Result{Reason: "service unavailable"},
			verifier.ServiceError{
				Err: fmt.Errorf("unexpected status %d from authorization service", resp.StatusCode),
			}
	}
}

// decodeDecision handles a 200 response: the decision lives in the body.
func (v *RemoteVerifier) decodeDecision(payload []byte) (verifier.Result, error) {
	var decision validateResponse
	if err := json.Unmarshal(payload, &decision); err != nil {
		return verifier.Result{Reason: "service unavailable"},
			verifier.ServiceError{Err: fmt.Errorf("unparseable response body: %w", err)}
	}

	if !decision.Valid {
		return verifier.Result{Reason: "rejected"}, verifier.RejectedError{}
	}

	return verifier.Result{
		Valid:          true,
		OwnerID:        decision.OwnerID,
		RemainingQuota: decision.RemainingQuota,
	}, nil
}

// classifyUnauthorized distinguishes quota exhaustion from a plain invalid
// credential in a 401 body. An unparseable body still counts as a generic
// rejection: the service made a decision, it just did not explain it.
func (v *RemoteVerifier) classifyUnauthorized(payload []byte) (verifier.Result, error) {
	var decision validateResponse
	_ = json.Unmarshal(payload, &decision)

	if isQuotaMessage(decision.Error) {
		return verifier.Result{Reason: "rate limited"},
			verifier.RateLimitError{Message: "credential quota exhausted"}
	}

	return verifier.Result{Reason: "rejected"}, verifier.RejectedError{}
}

func isQuotaMessage(message string) bool {
	msg := strings.ToLower(message)
	for _, pattern := range []string{"quota", "exceeded", "too many requests"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
