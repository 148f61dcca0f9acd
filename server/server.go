// Package server is the portal web server: sign-in and sign-out forms,
// role dashboards and the route guard in front of them.
package server

import (
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"sync"

	"github.com/jrsteele09/transcript-portal/api"
	"github.com/jrsteele09/transcript-portal/guard"
	"github.com/jrsteele09/transcript-portal/internal/config"
	"github.com/jrsteele09/transcript-portal/session"
	"github.com/rs/zerolog/log"
)

type Server struct {
	env       string // Environment (e.g., "DEV", "PROD")
	mux       *http.ServeMux
	routes    []string
	config    config.Config
	auth      session.AuthAPI
	names     session.Names
	guard     *guard.Guard
	limiter   *signInLimiter
	broadcast session.Channel // optional, shared with terminal tabs
	records   *api.Client     // token bound per request, see recordsFor
	pages     map[string]*template.Template

	background sync.WaitGroup
}

// ServerOption defines a function type to modify the Server instance.
type ServerOption func(*Server)

// WithGuard replaces the default route guard.
func WithGuard(g *guard.Guard) ServerOption {
	return func(s *Server) {
		s.guard = g
	}
}

// WithBroadcastChannel makes sign-out also publish a force logout on ch, so
// coordinators sharing the same durable store sign out too.
func WithBroadcastChannel(ch session.Channel) ServerOption {
	return func(s *Server) {
		s.broadcast = ch
	}
}

// WithRecordsAPI replaces the records API client built from API_BASE_URL.
func WithRecordsAPI(client *api.Client) ServerOption {
	return func(s *Server) {
		s.records = client
	}
}

func New(config config.Config, authAPI session.AuthAPI, options ...ServerOption) (*Server, error) {
	if config == nil {
		return nil, fmt.Errorf("[Server New] config is required")
	}
	if authAPI == nil {
		return nil, fmt.Errorf("[Server New] auth API is required")
	}

	s := &Server{
		env:    config.GetEnv(),
		mux:    http.NewServeMux(),
		config: config,
		auth:   authAPI,
		names:  session.NamesFromConfig(config),
		pages:  make(map[string]*template.Template),
	}
	for _, opt := range options {
		opt(s)
	}

	if s.guard == nil {
		opts := guard.DefaultOptions()
		opts.TokenCookie = s.names.TokenCookie
		opts.UserCookie = s.names.UserCookie
		opts.SignInPath = s.names.SignInPath
		s.guard = guard.New(opts)
	}
	if s.records == nil {
		s.records = api.NewClient(config.GetAPIBaseURL(), nil)
	}
	if config.GetEnableRateLimiting() {
		s.limiter = newSignInLimiter(config.GetSignInRate(), config.GetSignInBurst())
	}

	for _, name := range []string{"index.html", "sign_in.html", "dashboard.html", "schools.html", "student_records.html"} {
		tmpl, err := ParseTemplate(name)
		if err != nil {
			return nil, fmt.Errorf("[Server New] parse %s: %w", name, err)
		}
		s.pages[name] = tmpl
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

// WaitBackground blocks until background remote logout calls have returned.
func (s *Server) WaitBackground() {
	s.background.Wait()
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		method, path, found := strings.Cut(route, " ")
		if !found {
			method, path = "", route
		}
		log.Debug().Msgf("[%s] %s", colourMethod(method), path)
	}
}
