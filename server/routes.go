package server

import "net/http"

func (s *Server) initRoutes() {
	// USERS
	s.RegisterRouteHandler("POST "+RouteRegister, ChainMiddleware(s.RegisterHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteLogin, ChainMiddleware(s.LoginHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteLogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware()...))

	// PROVIDER LINK
	s.RegisterRouteHandler("GET "+RouteSpotifyAuthorize, ChainMiddleware(s.AuthorizeHandler(), s.APIMiddleware(s.RequireSession())...))
	// The callback resolves the session itself so a missing one is reported
	// back to the app through the redirect.
	s.RegisterRouteHandler("GET "+RouteSpotifyCallback, ChainMiddleware(s.CallbackHandler(), s.APIMiddleware(s.OptionalSession())...))
	s.RegisterRouteHandler("GET "+RouteSpotifyRefreshToken, ChainMiddleware(s.RefreshTokenHandler(), s.APIMiddleware(s.RequireSession())...))

	// CORS preflight for the JSON endpoints
	for _, path := range []string{RouteRegister, RouteLogin, RouteLogout, RouteSpotifyRefreshToken} {
		s.RegisterRouteHandler("OPTIONS "+path, ChainMiddleware(preflight, s.APIMiddleware()...))
	}

	// SYSTEM
	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())
	if s.deps.Gatherer != nil {
		s.RegisterRouteHandler("GET "+RouteMetrics, ChainMiddleware(s.MetricsHandler(), s.APIMiddleware(s.RequireSession(), s.RequireAdmin())...))
	}
}

// preflight answers OPTIONS requests that CorsMiddleware let through.
func preflight(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
