package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// User Routes
	RouteRegister = "/users/register"
	RouteLogin    = "/users/login"
	RouteLogout   = "/users/logout"

	// Provider link Routes
	RouteSpotifyAuthorize    = "/auth/spotify"
	RouteSpotifyCallback     = "/auth/spotify/callback"
	RouteSpotifyRefreshToken = "/auth/spotify/refresh-token"

	// System Routes
	RouteHealth  = "/healthz"
	RouteMetrics = "/metrics"
)
