package config

import (
	"strings"
)

var _ CorsConfig = EnvVars{}

type AllowedOrigins map[string]struct{}
type nullValue = struct{}

func (a AllowedOrigins) IsAllowedOrigin(origin string) bool {
	_, ok := a[origin]
	return ok
}

func (a AllowedOrigins) String() string {
	var origins []string
	for k := range a {
		origins = append(origins, k)
	}
	return strings.Join(origins, ", ")
}

func (e EnvVars) GetAllowedOrigins() AllowedOrigins {
	origins := AllowedOrigins{}
	for _, o := range e.AllowedOriginList {
		if o = strings.TrimSpace(o); o != "" {
			origins[o] = nullValue{}
		}
	}
	return origins
}

func (EnvVars) GetAllowedMethods() string {
	return "GET, POST, OPTIONS"
}

func (EnvVars) GetAllowedHeaders() string {
	return "Content-Type, Authorization"
}
