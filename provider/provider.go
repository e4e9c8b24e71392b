// Package provider talks to the external OAuth2 authorization server that
// owns the user's resources.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	apperr "github.com/jrsteele09/go-spotify-link/internal/errors"
	"golang.org/x/oauth2"
)

const (
	DefaultAuthURL  = "https://accounts.spotify.com/authorize"
	DefaultTokenURL = "https://accounts.spotify.com/api/token"
	defaultTimeout  = 10 * time.Second
)

// Settings configures a Client.
type Settings struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	Scopes       []string
	Timeout      time.Duration
}

// Grant is the useful part of a token endpoint response.
type Grant struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// Client performs the authorization-code and refresh-token exchanges.
// Client credentials are only ever sent in the Authorization header.
type Client struct {
	conf       *oauth2.Config
	httpClient *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for token requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithEndpoint overrides the endpoint from Settings, e.g. with one found by
// Discover.
func WithEndpoint(ep oauth2.Endpoint) Option {
	return func(c *Client) {
		c.conf.Endpoint = ep
	}
}

func New(settings Settings, opts ...Option) (*Client, error) {
	if settings.ClientID == "" || settings.ClientSecret == "" {
		return nil, fmt.Errorf("provider.New: client id and secret are required")
	}
	if settings.RedirectURL == "" {
		return nil, fmt.Errorf("provider.New: redirect url is required")
	}
	if settings.AuthURL == "" {
		settings.AuthURL = DefaultAuthURL
	}
	if settings.TokenURL == "" {
		settings.TokenURL = DefaultTokenURL
	}
	if settings.Timeout <= 0 {
		settings.Timeout = defaultTimeout
	}

	c := &Client{
		conf: &oauth2.Config{
			ClientID:     settings.ClientID,
			ClientSecret: settings.ClientSecret,
			RedirectURL:  settings.RedirectURL,
			Scopes:       settings.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  settings.AuthURL,
				TokenURL: settings.TokenURL,
			},
		},
		httpClient: &http.Client{Timeout: settings.Timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.conf.Endpoint.AuthStyle = oauth2.AuthStyleInHeader
	return c, nil
}

// Discover reads the authorization and token endpoints from an OIDC issuer.
func Discover(ctx context.Context, issuer string, hc *http.Client) (oauth2.Endpoint, error) {
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	p, err := oidc.NewProvider(oidc.ClientContext(ctx, hc), issuer)
	if err != nil {
		return oauth2.Endpoint{}, fmt.Errorf("provider.Discover %s: %w", issuer, err)
	}
	ep := p.Endpoint()
	ep.AuthStyle = oauth2.AuthStyleInHeader
	return ep, nil
}

// AuthCodeURL builds the URL the user agent is sent to for consent.
func (c *Client) AuthCodeURL(state string) string {
	return c.conf.AuthCodeURL(state)
}

// Exchange trades an authorization code for a token pair. Rejections are
// reported as a *errors.ProviderError of kind ErrInvalidAuthorizationGrant.
func (c *Client) Exchange(ctx context.Context, code string) (*Grant, error) {
	tok, err := c.conf.Exchange(c.clientContext(ctx), code)
	if err != nil {
		return nil, classify(err, apperr.ErrInvalidAuthorizationGrant)
	}
	if tok.RefreshToken == "" {
		return nil, &apperr.ProviderError{Kind: apperr.ErrInvalidAuthorizationGrant, StatusCode: http.StatusBadGateway, Code: "missing_refresh_token"}
	}
	return grantFrom(tok), nil
}

// Refresh exchanges a refresh token for a new access token. When the
// provider does not rotate the refresh token the grant carries the one
// passed in.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Grant, error) {
	src := c.conf.TokenSource(c.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, classify(err, apperr.ErrRefreshFailed)
	}
	g := grantFrom(tok)
	if g.RefreshToken == "" {
		g.RefreshToken = refreshToken
	}
	return g, nil
}

func (c *Client) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func grantFrom(tok *oauth2.Token) *Grant {
	return &Grant{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    expiresIn(tok),
	}
}

// expiresIn reads the raw expires_in field; a missing or malformed value is
// treated as already expired.
func expiresIn(tok *oauth2.Token) time.Duration {
	var secs int64
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		secs = int64(v)
	case int64:
		secs = v
	case int:
		secs = int64(v)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0
		}
		secs = n
	}
	if secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func classify(err error, kind error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		if status >= http.StatusInternalServerError || status == http.StatusTooManyRequests {
			return &apperr.ProviderError{Kind: apperr.ErrProviderUnavailable, StatusCode: status, Code: re.ErrorCode}
		}
		return &apperr.ProviderError{Kind: kind, StatusCode: status, Code: re.ErrorCode}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &apperr.ProviderError{Kind: apperr.ErrProviderUnavailable, StatusCode: http.StatusGatewayTimeout}
	}
	return &apperr.ProviderError{Kind: kind, StatusCode: http.StatusBadGateway}
}
