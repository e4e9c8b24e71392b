package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jrsteele09/go-spotify-link/auth"
	"github.com/jrsteele09/go-spotify-link/internal/config"
	"github.com/jrsteele09/go-spotify-link/internal/metrics"
	"github.com/jrsteele09/go-spotify-link/provider"
	"github.com/jrsteele09/go-spotify-link/server"
	"github.com/jrsteele09/go-spotify-link/token"
	"github.com/jrsteele09/go-spotify-link/token/redisrevoke"
	"github.com/jrsteele09/go-spotify-link/token/refresh"
	"github.com/jrsteele09/go-spotify-link/users"
	"github.com/jrsteele09/go-spotify-link/users/pgstore"
	"github.com/jrsteele09/go-spotify-link/users/sqlitestore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
)

const connectTimeout = 10 * time.Second

// app owns the process wide resources behind the HTTP server.
type app struct {
	deps    server.Deps
	closers []func()
}

func newApp(ctx context.Context, c config.Config) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mt := metrics.New(reg)

	repo, err := a.openStore(ctx, c)
	if err != nil {
		return nil, err
	}

	revoked, err := a.openRevocationCache(ctx, c)
	if err != nil {
		return nil, err
	}

	client, err := newProviderClient(ctx, c)
	if err != nil {
		return nil, err
	}

	sessionTokens := token.New(token.NewHMACSigner(c.GetSigningSecret()),
		token.WithTTL(c.GetSessionTTL()),
		token.WithIssuer(c.GetAppName()),
		token.WithRevokedTokenCache(revoked),
		token.WithRevocationTTL(c.GetRevocationTTL()),
		token.WithMetrics(mt),
		token.WithLogger(log.Logger),
	)

	refresher := refresh.NewManager(repo, client,
		refresh.WithLeeway(c.GetTokenExpiryLeeway()),
		refresh.WithTimeout(c.GetProviderTimeout()+5*time.Second),
		refresh.WithMetrics(mt),
		refresh.WithLogger(log.Logger),
	)

	accounts, err := auth.NewAccountService(repo, sessionTokens)
	if err != nil {
		return nil, err
	}
	links, err := auth.NewLinkService(repo, client,
		auth.WithLogger(log.Logger),
		auth.WithMetrics(mt),
		auth.WithTokenWriter(refresher),
		auth.WithExchangeTimeout(c.GetProviderTimeout()+5*time.Second),
	)
	if err != nil {
		return nil, err
	}

	a.deps = server.Deps{
		Users:    repo,
		Accounts: accounts,
		Links:    links,
		Sessions: sessionTokens,
		Tokens:   refresher,
		Gatherer: reg,
	}
	ok = true
	return a, nil
}

func (a *app) openStore(ctx context.Context, c config.Config) (users.Repo, error) {
	if c.UsePostgres() {
		ctx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		store, pool, err := pgstore.Connect(ctx, c.GetDatabaseURL())
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		log.Info().Msg("using postgres identity store")
		return store, nil
	}

	store, err := sqlitestore.Open(c.GetDatabaseURL())
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = store.Close() })
	log.Info().Str("path", c.GetDatabaseURL()).Msg("using sqlite identity store")
	return store, nil
}

func (a *app) openRevocationCache(ctx context.Context, c config.Config) (token.RevokedTokenCache, error) {
	if c.GetRedisURL() == "" {
		return token.NewInMemoryRevokedTokenCache(), nil
	}
	cache, client, err := redisrevoke.Connect(ctx, c.GetRedisURL())
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = client.Close() })
	log.Info().Msg("using redis revocation registry")
	return cache, nil
}

func newProviderClient(ctx context.Context, c config.Config) (*provider.Client, error) {
	settings := provider.Settings{
		ClientID:     c.GetClientID(),
		ClientSecret: c.GetClientSecret(),
		RedirectURL:  c.GetRedirectURI(),
		AuthURL:      c.GetProviderAuthURL(),
		TokenURL:     c.GetProviderTokenURL(),
		Scopes:       c.GetProviderScopes(),
		Timeout:      c.GetProviderTimeout(),
	}

	var opts []provider.Option
	if issuer := c.GetProviderIssuerURL(); issuer != "" {
		ctx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		ep, err := provider.Discover(ctx, issuer, &http.Client{Timeout: c.GetProviderTimeout()})
		if err != nil {
			return nil, fmt.Errorf("provider discovery: %w", err)
		}
		opts = append(opts, provider.WithEndpoint(ep))
		log.Info().Str("issuer", issuer).Msg("provider endpoints discovered")
	}
	return provider.New(settings, opts...)
}

func (a *app) cleanupLoop(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.deps.Sessions.Cleanup()
			if n := a.deps.Tokens.Pending(); n > 0 {
				log.Warn().Int("pending", n).Msg("provider tokens still waiting to be stored")
			}
		}
	}
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
