package server

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/coursekit/coursekit/authority"
	"github.com/coursekit/coursekit/users"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeyUser stores the authenticated principal
	ContextKeyUser ContextKey = "user"
)

// userFrom returns the authenticated user injected by SessionState, or nil.
func userFrom(r *http.Request) *users.User {
	user, _ := r.Context().Value(ContextKeyUser).(*users.User)
	return user
}

// SessionState is the navigation trigger of the session guard, rendered
// server-side: every page load revalidates the held-token cookie against the
// registry. The auth surface is excluded, the post-login grace window skips
// validation entirely, registry errors fail open, a missing record is an
// ordinary logout with no message, and only a replaced session renders the
// blocking overlay.
func (s *Server) SessionState(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if isAuthSurface(r.URL.Path) {
			next(w, r)
			return
		}

		cookie, err := r.Cookie(s.config.Session.CookieName)
		if err != nil || cookie.Value == "" {
			next(w, r) // Anonymous
			return
		}
		heldToken := cookie.Value

		user, err := s.provider.UserFromToken(r.Context(), heldToken)
		if err != nil {
			// Expired or garbage token: quietly back to anonymous
			s.clearSessionCookie(w)
			next(w, r)
			return
		}

		// A validation fired before the login's registry write is visible
		// would wrongly read the previous record. Skip it for the grace
		// window instead of racing it.
		if graceCookie, err := r.Cookie(s.config.Session.CookieName + "_grace"); err == nil && graceCookie.Value != "" {
			next(w, r.WithContext(context.WithValue(r.Context(), ContextKeyUser, user)))
			return
		}

		vctx, cancel := context.WithTimeout(r.Context(), s.config.Session.CallTimeout)
		result := s.authority.Validate(vctx, user.ID, heldToken)
		cancel()

		switch result.Reason {
		case authority.ReasonSessionReplaced:
			// The only condition that blocks the UI. The cookie survives
			// until the user acknowledges, so every route keeps showing
			// the same episode's overlay.
			s.renderBlockedOverlay(w)
			return
		case authority.ReasonNotFound:
			// Logged out elsewhere, no message
			s.clearSessionCookie(w)
			next(w, r)
			return
		case authority.ReasonLookupError:
			log.Err(result.Err).Msg("Session validation inconclusive, failing open")
		}

		next(w, r.WithContext(context.WithValue(r.Context(), ContextKeyUser, user)))
	}
}

// RequireUser redirects anonymous requests to the login surface. Must run
// after SessionState.
func (s *Server) RequireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if userFrom(r) == nil {
			http.Redirect(w, r, RouteLogin, http.StatusSeeOther)
			return
		}
		next(w, r)
	}
}

// renderBlockedOverlay serves the full-screen must-acknowledge modal. The
// acknowledge form is the only actionable control on the page.
func (s *Server) renderBlockedOverlay(w http.ResponseWriter) {
	w.Header().Set("Content-Type", contentTypeHTML)
	w.WriteHeader(http.StatusConflict)
	if err := pageTemplates.ExecuteTemplate(w, "blocked", map[string]any{
		"AcknowledgePath": RouteSessionAcknowledge,
	}); err != nil {
		log.Err(err).Msg("Failed to render blocked overlay")
	}
}
