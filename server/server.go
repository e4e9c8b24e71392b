package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/go-spotify-link/auth"
	"github.com/jrsteele09/go-spotify-link/internal/config"
	"github.com/jrsteele09/go-spotify-link/sessions"
	"github.com/jrsteele09/go-spotify-link/token"
	"github.com/jrsteele09/go-spotify-link/token/refresh"
	"github.com/jrsteele09/go-spotify-link/users"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Deps holds the services the HTTP layer drives.
type Deps struct {
	Users    users.Repo
	Accounts *auth.AccountService
	Links    *auth.LinkService
	Sessions *token.Manager
	Tokens   *refresh.Manager
	Gatherer prometheus.Gatherer // nil disables /metrics
}

type Server struct {
	env    string // Environment (e.g., "DEV", "PROD")
	mux    *http.ServeMux
	routes []string
	config config.Config
	deps   Deps
	cookie sessions.CookieOptions

	nowFunc func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithNowFunc sets the clock used for expiry figures in responses (primarily
// for testing)
func WithNowFunc(now func() time.Time) Option {
	return func(s *Server) {
		s.nowFunc = now
	}
}

func New(cfg config.Config, deps Deps, opts ...Option) (*Server, error) {
	if deps.Users == nil || deps.Accounts == nil || deps.Links == nil || deps.Sessions == nil || deps.Tokens == nil {
		return nil, errors.New("[Server New] users, accounts, links, sessions and tokens are required")
	}

	s := &Server{
		env:    cfg.GetEnv(),
		mux:    http.NewServeMux(),
		config: cfg,
		deps:   deps,
		cookie: sessions.CookieOptions{
			Secure:     cfg.GetSecureCookies(),
			SessionTTL: cfg.GetSessionTTL(),
			StateTTL:   cfg.GetStateTTL(),
		},
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.InitialiseSystem(context.Background()); err != nil {
		return nil, fmt.Errorf("[Server New] Failed to initialise the system: %w", err)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	log.Debug().Msgf("[%s] %s", colourMethod(method), path)
}
