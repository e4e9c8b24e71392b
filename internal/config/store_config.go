package config

import "strings"

type StoreConfig interface {
	GetDatabaseURL() string
	UsePostgres() bool
	GetRedisURL() string
}

var _ StoreConfig = EnvVars{}

func (e EnvVars) GetDatabaseURL() string {
	return e.DatabaseURL
}

// UsePostgres reports whether the database URL points at PostgreSQL rather
// than a SQLite file.
func (e EnvVars) UsePostgres() bool {
	return strings.HasPrefix(e.DatabaseURL, "postgres://") || strings.HasPrefix(e.DatabaseURL, "postgresql://")
}

func (e EnvVars) GetRedisURL() string {
	return e.RedisURL
}
