package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/coursekit/coursekit/authority"
	"github.com/coursekit/coursekit/client"
	"github.com/coursekit/coursekit/courses"
	"github.com/coursekit/coursekit/identity"
	"github.com/coursekit/coursekit/internal/config"
	"github.com/coursekit/coursekit/users"
)

// Repos holds all repository dependencies for the Server.
type Repos struct {
	Users   users.UserRepo
	Courses courses.Repo
}

// Server is the marketplace HTTP surface. Its session middleware is the
// server-rendered counterpart of the device-side guard: it revalidates the
// held-token cookie on navigation, renders the blocking overlay when the
// session was replaced elsewhere, and fails open on registry errors.
type Server struct {
	env       string
	mux       *http.ServeMux
	routes    []string
	config    config.Config
	provider  identity.Provider
	authority *authority.Authority
	sessions  *client.SessionManager
	repos     Repos
}

// New creates a Server with all routes registered.
func New(cfg config.Config, provider identity.Provider, auth *authority.Authority, sessions *client.SessionManager, repos Repos) (*Server, error) {
	if provider == nil {
		return nil, fmt.Errorf("[server.New] identity provider is required")
	}
	if auth == nil {
		return nil, fmt.Errorf("[server.New] authority is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("[server.New] session manager is required")
	}
	if repos.Users == nil {
		return nil, fmt.Errorf("[server.New] users repo is required")
	}
	if repos.Courses == nil {
		return nil, fmt.Errorf("[server.New] courses repo is required")
	}

	s := &Server{
		env:       cfg.Env,
		mux:       http.NewServeMux(),
		config:    cfg,
		provider:  provider,
		authority: auth,
		sessions:  sessions,
		repos:     repos,
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
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)
		if len(parts) > 1 {
			log.Debug().Str("method", parts[0]).Str("path", parts[1]).Msg("route")
		} else {
			log.Debug().Str("path", parts[0]).Msg("route")
		}
	}
}

// setSessionCookie stores the held token in the browser. The grace cookie
// marks the post-login window during which the middleware skips validation,
// sidestepping the read-after-write race against the registry.
func (s *Server) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.Session.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.Session.CookieName + "_grace",
		Value:    "1",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.config.Session.GraceWindow/time.Second) + 1,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.Session.CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}
