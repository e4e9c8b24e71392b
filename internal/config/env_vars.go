package config

import (
	"strings"
	"time"
)

// EnvVars holds every value read from the environment.
type EnvVars struct {
	Port           string `env:"PORT" envDefault:"4000"`
	AppName        string `env:"APP_NAME" envDefault:"Spotify Link"`
	Env            string `env:"ENV" envDefault:"DEV"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	AppRedirectURL string `env:"APP_REDIRECT_URL" envDefault:"/"`

	ClientID          string        `env:"CLIENT_ID"`
	ClientSecret      string        `env:"CLIENT_SECRET"`
	RedirectURI       string        `env:"REDIRECT_URI"`
	ProviderAuthURL   string        `env:"PROVIDER_AUTH_URL" envDefault:"https://accounts.spotify.com/authorize"`
	ProviderTokenURL  string        `env:"PROVIDER_TOKEN_URL" envDefault:"https://accounts.spotify.com/api/token"`
	ProviderIssuerURL string        `env:"PROVIDER_ISSUER_URL"`
	ProviderScopes    []string      `env:"PROVIDER_SCOPES" envSeparator:" "`
	ProviderTimeout   time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"10s"`
	TokenExpiryLeeway time.Duration `env:"TOKEN_EXPIRY_LEEWAY" envDefault:"30s"`

	Secret        string        `env:"SECRET"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"0s"`
	StateTTL      time.Duration `env:"STATE_TTL" envDefault:"5m"`
	RevocationTTL time.Duration `env:"REVOCATION_TTL" envDefault:"720h"`
	AdminEmail    string        `env:"ADMIN_EMAIL"`
	AdminPassword string        `env:"ADMIN_PASSWORD"`

	DatabaseURL string `env:"DATABASE_URL" envDefault:"./data/link.db"`
	RedisURL    string `env:"REDIS_URL"`

	AllowedOriginList []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173"`
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	port := e.Port
	if port == "" {
		port = "4000"
	}
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}
	return port
}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

func (e EnvVars) GetEnv() string {
	if e.Env == "" {
		return "DEV"
	}
	return strings.ToUpper(e.Env)
}

func (e EnvVars) GetLogLevel() string {
	return e.LogLevel
}

// GetAppRedirectURL is where the browser is sent once the provider callback
// has been handled.
func (e EnvVars) GetAppRedirectURL() string {
	return e.AppRedirectURL
}
