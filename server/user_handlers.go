package server

import (
	"net/http"

	"github.com/jrsteele09/go-spotify-link/sessions"
	"github.com/rs/zerolog/log"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err)
			return
		}

		u, err := s.deps.Accounts.Register(r.Context(), req.Username, req.Email, req.Password)
		if err != nil {
			writeError(w, err)
			return
		}

		log.Info().Str("identity", u.ID).Msg("identity registered")
		writeJSON(w, http.StatusCreated, map[string]string{
			"message":  "User registered successfully",
			"username": u.Username,
		})
	}
}

func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err)
			return
		}

		credential, claims, err := s.deps.Accounts.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			writeError(w, err)
			return
		}

		sessions.SetCookie(w, r, credential, s.cookie)
		log.Info().Str("identity", claims.IdentityID()).Msg("session opened")
		writeJSON(w, http.StatusOK, map[string]string{"access": credential})
	}
}

// LogoutHandler always succeeds. A still valid credential is revoked.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if credential, err := sessions.Extract(r); err == nil {
			if err := s.deps.Accounts.Logout(r.Context(), credential); err != nil {
				log.Warn().Err(err).Msg("failed to revoke session credential")
			}
		}
		sessions.ClearCookie(w, r, s.cookie)
		writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
	}
}
