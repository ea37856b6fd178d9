package msauth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/mailbridge/mailbridge/internal/config"
	"github.com/mailbridge/mailbridge/pkg/logger"
)

// exchange calls share one explicit timeout so a slow token endpoint cannot
// block a request path longer than this.
const httpTimeout = 15 * time.Second

// ClaimsVerifier verifies a raw ID token and returns its claim set.
// Satisfied by *oidc.Verifier; nil means unverified parsing (dev only).
type ClaimsVerifier interface {
	Claims(ctx context.Context, rawIDToken string) (map[string]interface{}, error)
}

// TokenSet is the material returned by the authorization-code exchange.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Claims       map[string]interface{}
}

// Client drives the authorization-code and refresh-token exchanges against
// the identity platform.
type Client struct {
	oauth    *oauth2.Config
	verifier ClaimsVerifier
	http     *http.Client
}

// NewClient builds a client from the Azure app registration config. The
// verifier may be nil, in which case ID-token claims are parsed without
// signature verification (suitable for local development only).
func NewClient(cfg *config.AzureConfig, verifier ClaimsVerifier) *Client {
	endpoint := microsoft.AzureADEndpoint(cfg.TenantID)
	if authority := strings.TrimRight(cfg.Authority, "/"); authority != "https://login.microsoftonline.com/"+cfg.TenantID {
		endpoint = oauth2.Endpoint{
			AuthURL:  authority + "/oauth2/v2.0/authorize",
			TokenURL: authority + "/oauth2/v2.0/token",
		}
	}
	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
		},
		verifier: verifier,
		http:     &http.Client{Timeout: httpTimeout},
	}
}

// AuthCodeURL returns the provider authorization URL carrying the anti-forgery
// state value.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account"))
}

// Exchange trades an authorization code for token material and the identity
// claims carried in the id_token.
func (c *Client) Exchange(ctx context.Context, code string) (*TokenSet, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("authorization code exchange: %w", err)
	}
	ts := &TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry.UTC(),
	}
	if tok.Expiry.IsZero() {
		// provider omitted expires_in; assume the usual hour
		ts.ExpiresAt = time.Now().UTC().Add(time.Hour)
	}
	if raw, ok := tok.Extra("id_token").(string); ok && raw != "" {
		claims, err := c.parseClaims(ctx, raw)
		if err != nil {
			logger.Warnf("id_token claims unavailable: %v", err)
		} else {
			ts.Claims = claims
		}
	}
	return ts, nil
}

// Refresh exchanges a refresh token for a new access token. One round trip,
// no retries; the caller decides what a failure means.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (string, time.Time, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	src := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("refresh token exchange: %w", err)
	}
	exp := tok.Expiry.UTC()
	if tok.Expiry.IsZero() {
		exp = time.Now().UTC().Add(time.Hour)
	}
	return tok.AccessToken, exp, nil
}

func (c *Client) parseClaims(ctx context.Context, raw string) (map[string]interface{}, error) {
	if c.verifier != nil {
		return c.verifier.Claims(ctx, raw)
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, err
	}
	return map[string]interface{}(claims), nil
}
