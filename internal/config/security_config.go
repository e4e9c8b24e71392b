package config

import "time"

type SecurityConfig interface {
	GetSigningSecret() string
	GetSessionTTL() time.Duration
	GetStateTTL() time.Duration
	GetRevocationTTL() time.Duration
	GetSecureCookies() bool
	GetAdminEmail() string
	GetAdminPassword() string
}

var _ SecurityConfig = EnvVars{}

func (e EnvVars) GetSigningSecret() string {
	return e.Secret
}

// GetSessionTTL returns the lifetime of issued session credentials. Zero
// means credentials carry no expiry claim.
func (e EnvVars) GetSessionTTL() time.Duration {
	return e.SessionTTL
}

func (e EnvVars) GetStateTTL() time.Duration {
	if e.StateTTL <= 0 {
		return 5 * time.Minute
	}
	return e.StateTTL
}

// GetRevocationTTL bounds how long a revoked credential without an expiry
// claim is remembered.
func (e EnvVars) GetRevocationTTL() time.Duration {
	return e.RevocationTTL
}

// GetSecureCookies forces the Secure cookie attribute outside development.
func (e EnvVars) GetSecureCookies() bool {
	return e.GetEnv() != "DEV"
}

// GetAdminEmail names the administrator identity created at startup. Empty
// disables the bootstrap.
func (e EnvVars) GetAdminEmail() string {
	return e.AdminEmail
}

// GetAdminPassword is the bootstrap administrator's password. Empty means one
// is generated and logged once.
func (e EnvVars) GetAdminPassword() string {
	return e.AdminPassword
}
