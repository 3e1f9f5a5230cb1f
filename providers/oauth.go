// ABOUTME: OAuth configuration and authorization-code exchange per provider
// ABOUTME: Builds oauth2 configs from env credentials and stores exchanged tokens
package providers

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/harperreed/revos/models"
)

// oauthSpec describes one provider's OAuth endpoints and behavior.
type oauthSpec struct {
	envPrefix   string // <PREFIX>_CLIENT_ID / <PREFIX>_CLIENT_SECRET
	endpoint    oauth2.Endpoint
	scopes      []string
	refreshable bool // false for providers issuing fixed-lifetime tokens
}

var oauthSpecs = map[string]oauthSpec{
	models.ProviderGmail: {
		envPrefix: "GOOGLE",
		endpoint:  google.Endpoint,
		scopes: []string{
			"https://www.googleapis.com/auth/gmail.readonly",
		},
		refreshable: true,
	},
	models.ProviderHubSpot: {
		envPrefix: "HUBSPOT",
		endpoint: oauth2.Endpoint{
			AuthURL:  "https://app.hubspot.com/oauth/authorize",
			TokenURL: "https://api.hubapi.com/oauth/v1/token",
		},
		scopes:      []string{"crm.objects.deals.read", "crm.objects.contacts.read"},
		refreshable: true,
	},
	models.ProviderPipedrive: {
		envPrefix: "PIPEDRIVE",
		endpoint: oauth2.Endpoint{
			AuthURL:  "https://oauth.pipedrive.com/oauth/authorize",
			TokenURL: "https://oauth.pipedrive.com/oauth/token",
		},
		scopes:      []string{"deals:read", "contacts:read"},
		refreshable: true,
	},
	models.ProviderSalesforce: {
		envPrefix: "SALESFORCE",
		endpoint: oauth2.Endpoint{
			AuthURL:  "https://login.salesforce.com/services/oauth2/authorize",
			TokenURL: "https://login.salesforce.com/services/oauth2/token",
		},
		scopes:      []string{"api", "refresh_token"},
		refreshable: true,
	},
	models.ProviderZoho: {
		envPrefix: "ZOHO",
		endpoint: oauth2.Endpoint{
			AuthURL:  "https://accounts.zoho.com/oauth/v2/auth",
			TokenURL: "https://accounts.zoho.com/oauth/v2/token",
		},
		scopes:      []string{"ZohoCRM.modules.deals.READ", "ZohoCRM.modules.contacts.READ"},
		refreshable: true,
	},
	models.ProviderFolk: {
		envPrefix: "FOLK",
		endpoint: oauth2.Endpoint{
			AuthURL:  "https://app.folk.app/oauth/authorize",
			TokenURL: "https://api.folk.app/oauth/token",
		},
		scopes:      []string{"people:read"},
		refreshable: false,
	},
	models.ProviderSlack: {
		envPrefix: "SLACK",
		endpoint: oauth2.Endpoint{
			AuthURL:  "https://slack.com/oauth/v2/authorize",
			TokenURL: "https://slack.com/api/oauth.v2.access",
		},
		scopes:      []string{"chat:write"},
		refreshable: false,
	},
}

// OAuthConfig builds the oauth2 config for a provider from environment
// credentials (<PREFIX>_CLIENT_ID / <PREFIX>_CLIENT_SECRET).
func OAuthConfig(provider string) (*oauth2.Config, error) {
	spec, ok := oauthSpecs[provider]
	if !ok {
		return nil, NewError(KindFatal, provider, "unknown provider", nil)
	}

	clientID := os.Getenv(spec.envPrefix + "_CLIENT_ID")
	clientSecret := os.Getenv(spec.envPrefix + "_CLIENT_SECRET")
	if clientID == "" || clientSecret == "" {
		return nil, NewError(KindFatal, provider,
			fmt.Sprintf("OAuth credentials not configured. Set %s_CLIENT_ID and %s_CLIENT_SECRET environment variables", spec.envPrefix, spec.envPrefix), nil)
	}

	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  "http://localhost:8080/oauth/callback",
		Scopes:       spec.scopes,
		Endpoint:     spec.endpoint,
	}, nil
}

// Refreshable reports whether a provider supports the refresh-token
// grant. Providers issuing fixed-lifetime tokens must be reconnected.
func Refreshable(provider string) bool {
	spec, ok := oauthSpecs[provider]
	return ok && spec.refreshable
}

// Exchange trades an authorization code for tokens and builds the
// credential to store. Tenant-specific base URLs (Zoho api_domain,
// Salesforce instance_url) are captured from the token response.
func Exchange(ctx context.Context, accountID, provider, code string) (*models.Credential, error) {
	config, err := OAuthConfig(provider)
	if err != nil {
		return nil, err
	}

	token, err := config.Exchange(ctx, code)
	if err != nil {
		return nil, NewError(KindNeedsReconnect, provider, "authorization code exchange failed", err)
	}

	return credentialFromToken(accountID, provider, token), nil
}

// credentialFromToken maps an oauth2 token (plus provider extras) onto
// the stored credential shape.
func credentialFromToken(accountID, provider string, token *oauth2.Token) *models.Credential {
	cred := &models.Credential{
		AccountID:    accountID,
		Provider:     provider,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}

	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		cred.ExpiresAt = &expiry
	}

	if scope, ok := token.Extra("scope").(string); ok && scope != "" {
		cred.Scope = strings.Fields(strings.ReplaceAll(scope, ",", " "))
	}

	// Multi-region providers return the tenant base URL alongside tokens.
	if domain, ok := token.Extra("api_domain").(string); ok && domain != "" {
		cred.APIDomain = domain
	}
	if instance, ok := token.Extra("instance_url").(string); ok && instance != "" {
		cred.APIDomain = instance
	}

	metadata := map[string]string{}
	for _, key := range []string{"hub_id", "hub_domain", "team_id", "bot_user_id", "id", "token_type"} {
		if v, ok := token.Extra(key).(string); ok && v != "" {
			metadata[key] = v
		}
	}
	if len(metadata) > 0 {
		cred.Metadata = metadata
	}

	return cred
}

// expiryFromSeconds converts a token-endpoint expires_in value to an
// absolute timestamp.
func expiryFromSeconds(now time.Time, seconds int64) *time.Time {
	if seconds <= 0 {
		return nil
	}
	t := now.Add(time.Duration(seconds) * time.Second)
	return &t
}
