package config

import "time"

// DefaultScopes is the fixed permission set requested from the provider.
var DefaultScopes = []string{
	"user-read-private",
	"user-read-email",
	"playlist-read-private",
	"playlist-read-collaborative",
	"user-read-recently-played",
	"user-top-read",
	"user-library-read",
}

type ProviderConfig interface {
	GetClientID() string
	GetClientSecret() string
	GetRedirectURI() string
	GetProviderAuthURL() string
	GetProviderTokenURL() string
	GetProviderIssuerURL() string
	GetProviderScopes() []string
	GetProviderTimeout() time.Duration
	GetTokenExpiryLeeway() time.Duration
}

var _ ProviderConfig = EnvVars{}

func (e EnvVars) GetClientID() string {
	return e.ClientID
}

func (e EnvVars) GetClientSecret() string {
	return e.ClientSecret
}

func (e EnvVars) GetRedirectURI() string {
	return e.RedirectURI
}

func (e EnvVars) GetProviderAuthURL() string {
	return e.ProviderAuthURL
}

func (e EnvVars) GetProviderTokenURL() string {
	return e.ProviderTokenURL
}

// GetProviderIssuerURL returns the OIDC issuer used for endpoint discovery.
// Empty means the static auth/token URLs are used.
func (e EnvVars) GetProviderIssuerURL() string {
	return e.ProviderIssuerURL
}

func (e EnvVars) GetProviderScopes() []string {
	if len(e.ProviderScopes) == 0 {
		return append([]string(nil), DefaultScopes...)
	}
	return append([]string(nil), e.ProviderScopes...)
}

func (e EnvVars) GetProviderTimeout() time.Duration {
	if e.ProviderTimeout <= 0 {
		return 10 * time.Second
	}
	return e.ProviderTimeout
}

// GetTokenExpiryLeeway is how long before the declared expiry a provider
// access token is already treated as expired.
func (e EnvVars) GetTokenExpiryLeeway() time.Duration {
	return e.TokenExpiryLeeway
}
