package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"

	"github.com/coursekit/coursekit/authority"
	"github.com/coursekit/coursekit/identity"
	"github.com/coursekit/coursekit/users"
)

const (
	contentTypeHTML = "text/html; charset=utf-8"
	contentTypeJSON = "application/json; charset=utf-8"
)

// LoginPageHandler renders the login form.
func (s *Server) LoginPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.renderPage(w, "login", map[string]any{
			"Error": r.URL.Query().Get("error"),
		})
	}
}

// LoginSubmissionHandler signs the user in and registers the fresh token as
// the session of record, superseding any other device's session.
func (s *Server) LoginSubmissionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Redirect(w, r, RouteLogin+"?error="+url.QueryEscape("invalid form"), http.StatusSeeOther)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), s.config.Session.CallTimeout)
		cred, err := s.provider.SignIn(ctx, identity.Credentials{
			Email:    r.FormValue("email"),
			Password: r.FormValue("password"),
		})
		cancel()
		if err != nil {
			log.Err(err).Msg("Login failed")
			http.Redirect(w, r, RouteLogin+"?error="+url.QueryEscape("invalid email or password"), http.StatusSeeOther)
			return
		}

		// Non-fatal: login proceeds locally even if the registry write
		// failed, uniqueness is simply unenforced until the next write.
		s.sessions.Register(r.Context(), cred.User.ID, cred.Token)

		s.setSessionCookie(w, cred.Token)
		http.Redirect(w, r, RouteCourses, http.StatusSeeOther)
	}
}

// SignupPageHandler renders the signup form.
func (s *Server) SignupPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.renderPage(w, "signup", map[string]any{
			"Error": r.URL.Query().Get("error"),
		})
	}
}

// SignupSubmissionHandler creates a user and logs the new account in.
func (s *Server) SignupSubmissionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Redirect(w, r, RouteSignup+"?error="+url.QueryEscape("invalid form"), http.StatusSeeOther)
			return
		}

		role := users.RoleType(r.FormValue("role"))
		if role == "" {
			role = users.RoleStudent
		}

		ctx, cancel := context.WithTimeout(r.Context(), s.config.Session.CallTimeout)
		cred, err := s.provider.SignUp(ctx, identity.Credentials{
			Email:    r.FormValue("email"),
			Password: r.FormValue("password"),
		}, r.FormValue("name"), role)
		cancel()
		if err != nil {
			log.Err(err).Msg("Signup failed")
			http.Redirect(w, r, RouteSignup+"?error="+url.QueryEscape(err.Error()), http.StatusSeeOther)
			return
		}

		s.sessions.Register(r.Context(), cred.User.ID, cred.Token)
		s.setSessionCookie(w, cred.Token)
		http.Redirect(w, r, RouteCourses, http.StatusSeeOther)
	}
}

// LogoutHandler deletes the session record and clears the cookie. Every
// remote step is best effort; the browser always ends up logged out.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie(s.config.Session.CookieName); err == nil && cookie.Value != "" {
			if user, err := s.provider.UserFromToken(r.Context(), cookie.Value); err == nil {
				s.sessions.Invalidate(r.Context(), user.ID)
			}
			if err := s.provider.SignOut(r.Context(), cookie.Value); err != nil {
				log.Err(err).Msg("Provider sign-out failed")
			}
		}
		s.clearSessionCookie(w)
		http.Redirect(w, r, RouteLogin, http.StatusSeeOther)
	}
}

// AcknowledgeHandler is the blocking overlay's single affordance: confirm
// the replaced-session message, clear local credentials, back to login.
func (s *Server) AcknowledgeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.clearSessionCookie(w)
		http.Redirect(w, r, RouteLogin, http.StatusSeeOther)
	}
}

// heartbeatResponse mirrors the reactive value the client library exposes.
type heartbeatResponse struct {
	Phase  string `json:"phase"`
	Reason string `json:"reason,omitempty"`
}

// HeartbeatHandler serves the visibility-regained trigger: the page calls it
// when the tab returns to the foreground and reloads when the phase says the
// session is gone. Grace window and fail-open semantics match SessionState.
func (s *Server) HeartbeatHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentTypeJSON)

		writephase := func(phase, reason string) {
			if err := json.NewEncoder(w).Encode(heartbeatResponse{Phase: phase, Reason: reason}); err != nil {
				log.Err(err).Msg("Failed to encode heartbeat response")
			}
		}

		cookie, err := r.Cookie(s.config.Session.CookieName)
		if err != nil || cookie.Value == "" {
			writephase("anonymous", "")
			return
		}

		user, err := s.provider.UserFromToken(r.Context(), cookie.Value)
		if err != nil {
			writephase("anonymous", "")
			return
		}

		if graceCookie, err := r.Cookie(s.config.Session.CookieName + "_grace"); err == nil && graceCookie.Value != "" {
			writephase("authenticated", "")
			return
		}

		vctx, cancel := context.WithTimeout(r.Context(), s.config.Session.CallTimeout)
		result := s.authority.Validate(vctx, user.ID, cookie.Value)
		cancel()

		switch result.Reason {
		case authority.ReasonSessionReplaced:
			writephase("invalid", "replaced_elsewhere")
		case authority.ReasonNotFound:
			writephase("anonymous", "")
		case authority.ReasonLookupError:
			log.Err(result.Err).Msg("Heartbeat validation inconclusive, failing open")
			writephase("authenticated", "")
		default:
			writephase("authenticated", "")
		}
	}
}
