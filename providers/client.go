// ABOUTME: Shared HTTP plumbing for provider REST calls
// ABOUTME: Bounded timeouts, rate limiting, auth headers, and status classification
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/harperreed/revos/models"
)

const requestTimeout = 30 * time.Second

// apiClient is the shared REST helper behind the CRM adapters. Each
// adapter owns one instance with its provider's rate limiter; nothing is
// global, so tests can point baseURL at a local server.
type apiClient struct {
	provider string
	client   *http.Client
	limiter  *RateLimiter

	// baseURL overrides the provider API host, for tests. When empty the
	// adapter derives the host from the credential or its default.
	baseURL string
}

func newAPIClient(provider string) *apiClient {
	return &apiClient{
		provider: provider,
		client:   &http.Client{Timeout: requestTimeout},
		limiter:  NewRateLimiter(provider),
	}
}

// authorize sets the provider's auth header shape. Zoho is the odd one
// out with its own scheme; everyone else is a standard Bearer token.
func (c *apiClient) authorize(req *http.Request, cred *models.Credential) {
	if c.provider == models.ProviderZoho {
		req.Header.Set("Authorization", "Zoho-oauthtoken "+cred.AccessToken)
		return
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
}

// getJSON performs a rate-limited GET and decodes the JSON response.
func (c *apiClient) getJSON(ctx context.Context, cred *models.Credential, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return NewError(KindFatal, c.provider, "failed to build request", err)
	}
	return c.doJSON(req, cred, out)
}

// postJSON performs a rate-limited POST with a JSON body and decodes the
// JSON response.
func (c *apiClient) postJSON(ctx context.Context, cred *models.Credential, url string, body any, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return NewError(KindFatal, c.provider, "failed to encode request body", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return NewError(KindFatal, c.provider, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doJSON(req, cred, out)
}

func (c *apiClient) doJSON(req *http.Request, cred *models.Credential, out any) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return NewError(KindTransientNetwork, c.provider, "rate limiter wait interrupted", err)
	}

	c.authorize(req, cred)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return NewError(ClassifyTransport(err), c.provider, "request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		c.limiter.RecordRateLimitError(retryAfter)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return NewError(ClassifyStatus(resp.StatusCode), c.provider,
			fmt.Sprintf("%s %s returned HTTP %d", req.Method, req.URL.Path, resp.StatusCode), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return NewError(KindTransientNetwork, c.provider, "failed to read response", err)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return NewError(KindSchemaMismatch, c.provider, "malformed response body", err)
	}

	return nil
}
