// ABOUTME: Token refresher for expired provider credentials
// ABOUTME: Runs the refresh-token grant, persisting rotated refresh tokens atomically
package providers

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/harperreed/revos/db"
	"github.com/harperreed/revos/models"
)

const refreshTimeout = 30 * time.Second

// expirySkew refreshes tokens slightly before they actually expire so a
// long page fetch doesn't straddle the boundary.
const expirySkew = 2 * time.Minute

// Refresher exchanges refresh tokens for new access tokens and persists
// the result. Construct one per process and inject it where needed.
type Refresher struct {
	database *sql.DB
	client   *http.Client

	// tokenURL overrides the provider token endpoint, for tests.
	tokenURL func(provider string) (string, error)
}

// NewRefresher creates a token refresher backed by the credential store.
func NewRefresher(database *sql.DB) *Refresher {
	return &Refresher{
		database: database,
		client:   &http.Client{Timeout: refreshTimeout},
		tokenURL: providerTokenURL,
	}
}

func providerTokenURL(provider string) (string, error) {
	spec, ok := oauthSpecs[provider]
	if !ok {
		return "", NewError(KindFatal, provider, "unknown provider", nil)
	}
	return spec.endpoint.TokenURL, nil
}

// tokenResponse is the near-universal OAuth2 token endpoint shape.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope"`
	APIDomain    string `json:"api_domain"`    // Zoho
	InstanceURL  string `json:"instance_url"`  // Salesforce
	ErrorCode    string `json:"error"`
	ErrorDesc    string `json:"error_description"`
}

// EnsureFresh returns a credential whose access token is usable, running
// a refresh when the stored one is expired or about to expire.
func (r *Refresher) EnsureFresh(ctx context.Context, cred *models.Credential) (*models.Credential, error) {
	if !cred.Expired(expirySkew) {
		return cred, nil
	}
	return r.Refresh(ctx, cred)
}

// Refresh exchanges the credential's refresh token for a new access
// token. If the provider rotates the refresh token, the rotated value
// replaces the stored one; failing to persist the rotation would
// invalidate every future refresh, so the upsert happens before the new
// credential is returned to the caller.
func (r *Refresher) Refresh(ctx context.Context, cred *models.Credential) (*models.Credential, error) {
	provider := cred.Provider

	if !Refreshable(provider) {
		return nil, NewError(KindNeedsReconnect, provider, "provider tokens cannot be refreshed; reconnect required", nil)
	}
	if cred.RefreshToken == "" {
		return nil, NewError(KindNeedsReconnect, provider, "no refresh token stored; reconnect required", nil)
	}

	config, err := OAuthConfig(provider)
	if err != nil {
		return nil, err
	}
	endpoint, err := r.tokenURL(provider)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", cred.RefreshToken)
	form.Set("client_id", config.ClientID)
	form.Set("client_secret", config.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, NewError(KindFatal, provider, "failed to build refresh request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, NewError(ClassifyTransport(err), provider, "token endpoint unreachable", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, NewError(KindTransientNetwork, provider, "failed to read token response", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
		// The stored refresh token is permanently invalid.
		return nil, NewError(KindNeedsReconnect, provider,
			fmt.Sprintf("token endpoint rejected refresh (HTTP %d)", resp.StatusCode), nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, NewError(KindRateLimited, provider, "token endpoint rate limited", nil)
	default:
		return nil, NewError(KindTransientNetwork, provider,
			fmt.Sprintf("token endpoint error (HTTP %d)", resp.StatusCode), nil)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, NewError(KindSchemaMismatch, provider, "malformed token response", err)
	}
	if tr.ErrorCode != "" {
		// Zoho in particular returns HTTP 200 with an error body.
		return nil, NewError(KindNeedsReconnect, provider,
			fmt.Sprintf("token endpoint error: %s %s", tr.ErrorCode, tr.ErrorDesc), nil)
	}
	if tr.AccessToken == "" {
		return nil, NewError(KindSchemaMismatch, provider, "token response missing access_token", nil)
	}

	refreshed := *cred
	refreshed.AccessToken = tr.AccessToken
	refreshed.ExpiresAt = expiryFromSeconds(time.Now(), tr.ExpiresIn)

	// Some providers rotate refresh tokens; a returned value replaces the
	// stored one, otherwise the original stays valid.
	if tr.RefreshToken != "" {
		refreshed.RefreshToken = tr.RefreshToken
	}
	if tr.Scope != "" {
		refreshed.Scope = strings.Fields(strings.ReplaceAll(tr.Scope, ",", " "))
	}
	if tr.APIDomain != "" {
		refreshed.APIDomain = tr.APIDomain
	}
	if tr.InstanceURL != "" {
		refreshed.APIDomain = tr.InstanceURL
	}

	if err := db.UpsertCredential(r.database, &refreshed); err != nil {
		return nil, NewError(KindFatal, provider, "failed to persist refreshed credential", err)
	}

	return &refreshed, nil
}
