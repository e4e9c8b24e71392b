package config

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"
)

type Config interface {
	EnvConfig
	CorsConfig
	ProviderConfig
	SecurityConfig
	StoreConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetAppRedirectURL() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
}

var _ Config = mainConfig{}

// Load reads the configuration from the environment once. The returned value
// is immutable and safe to share.
func Load() (Config, error) {
	var vars EnvVars
	if err := env.Parse(&vars); err != nil {
		return nil, fmt.Errorf("config.Load env.Parse: %w", err)
	}
	return FromVars(vars)
}

// FromVars builds a Config from already populated variables.
func FromVars(vars EnvVars) (Config, error) {
	if err := vars.validate(); err != nil {
		return nil, err
	}
	return mainConfig{EnvVars: vars}, nil
}

func (e EnvVars) validate() error {
	var errs []error
	if e.ClientID == "" {
		errs = append(errs, errors.New("CLIENT_ID is required"))
	}
	if e.ClientSecret == "" {
		errs = append(errs, errors.New("CLIENT_SECRET is required"))
	}
	if e.RedirectURI == "" {
		errs = append(errs, errors.New("REDIRECT_URI is required"))
	}
	if e.Secret == "" {
		errs = append(errs, errors.New("SECRET is required"))
	}
	if e.TokenExpiryLeeway < 0 {
		errs = append(errs, errors.New("TOKEN_EXPIRY_LEEWAY must not be negative"))
	}
	return errors.Join(errs...)
}
