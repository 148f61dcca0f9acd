package server

import (
	"context"
	"net/http"
	"path"
	"strings"

	"github.com/jrsteele09/transcript-portal/authapi"
	"github.com/jrsteele09/transcript-portal/internal/metrics"
	"github.com/jrsteele09/transcript-portal/session"
	"github.com/jrsteele09/transcript-portal/users"
	"github.com/rs/zerolog/log"
)

const contentTypeHTML = "text/html; charset=utf-8"

type pageUser struct {
	Name string
	Role users.Role
}

type pageData struct {
	AppName   string
	Title     string
	User      *pageUser
	Dashboard string
}

type signInPage struct {
	pageData
	Error    string
	Email    string
	Redirect string
}

// currentUser reads the session cookies. Both must be present.
func (s *Server) currentUser(r *http.Request) *pageUser {
	if _, ok := session.ReadCookie(r, s.names.TokenCookie); !ok {
		return nil
	}
	raw, ok := session.ReadCookie(r, s.names.UserCookie)
	if !ok {
		return nil
	}
	record, err := users.ParseRecord([]byte(raw))
	if err != nil {
		return nil
	}
	return &pageUser{Name: record.String("name"), Role: record.Role()}
}

func (s *Server) render(w http.ResponseWriter, status int, page string, data any) {
	w.Header().Set("Content-Type", contentTypeHTML)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := s.pages[page].ExecuteTemplate(w, "layout", data); err != nil {
		log.Err(err).Str("page", page).Msg("Failed to render template")
	}
}

func (s *Server) renderSignIn(w http.ResponseWriter, status int, data signInPage) {
	data.AppName = s.config.GetAppName()
	data.Title = "Sign In"
	s.render(w, status, "sign_in.html", data)
}

// IndexHandler renders the landing page
func (s *Server) IndexHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := pageData{AppName: s.config.GetAppName(), Title: "Home", User: s.currentUser(r)}
		if data.User != nil {
			data.Dashboard = data.User.Role.DashboardPath()
		}
		s.render(w, http.StatusOK, "index.html", data)
	}
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	}
}

// SignInPageHandler serves the sign-in form (GET /auth/sign-in). Signed-in
// users never get here; the guard sends them to their dashboard.
func (s *Server) SignInPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.renderSignIn(w, http.StatusOK, signInPage{Redirect: r.URL.Query().Get("redirect")})
	}
}

// SignInSubmitHandler processes the sign-in form (POST /auth/sign-in).
func (s *Server) SignInSubmitHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		email := strings.TrimSpace(r.PostFormValue("email"))
		redirect := r.PostFormValue("redirect")

		resp, err := s.auth.Login(r.Context(), authapi.Credentials{Email: email, Password: r.PostFormValue("password")})
		if err != nil {
			log.Warn().Err(err).Msg("sign-in request failed")
		}
		out := session.InterpretLogin(resp, err)
		if !out.Success {
			s.renderSignIn(w, http.StatusUnauthorized, signInPage{Error: out.Message, Email: email, Redirect: redirect})
			return
		}

		jar := session.NewHTTPJar(w, r, session.IsSecureRequest(r))
		jar.SetSessionCookie(s.names.TokenCookie, out.Token)
		jar.SetSessionCookie(s.names.UserCookie, out.UserJSON)

		role := out.User.Role()
		target := out.Redirect
		if within(redirect, role) {
			target = redirect
		}
		log.Info().Str("role", string(role)).Str("to", target).Msg("signed in")
		http.Redirect(w, r, target, http.StatusSeeOther)
	}
}

// within reports whether target is a local path inside role's area.
func within(target string, role users.Role) bool {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.Contains(target, `\`) {
		return false
	}
	clean := path.Clean(target)
	area := "/student"
	if role.IsAdmin() {
		area = "/admin"
	}
	return clean == area || strings.HasPrefix(clean, area+"/")
}

// SignOutHandler deletes the session cookies and sends the user to sign-in
// at once. The remote logout runs in the background and its outcome is
// only logged.
func (s *Server) SignOutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jar := session.NewHTTPJar(w, r, session.IsSecureRequest(r))
		token, _ := jar.Get(s.names.TokenCookie)
		jar.Delete(s.names.TokenCookie)
		jar.Delete(s.names.UserCookie)
		metrics.LogoutsTotal.WithLabelValues("explicit").Inc()

		if s.broadcast != nil {
			if err := s.broadcast.Publish(session.Message{}); err != nil {
				log.Debug().Err(err).Msg("force logout broadcast failed")
			} else {
				metrics.BroadcastsTotal.Inc()
			}
		}

		if token != "" {
			ctx := context.WithoutCancel(r.Context())
			s.background.Add(1)
			go func() {
				defer s.background.Done()
				if err := s.auth.Logout(ctx, token); err != nil {
					metrics.RemoteLogoutFailures.Inc()
					log.Debug().Err(err).Msg("remote logout failed")
				}
			}()
		}
		http.Redirect(w, r, s.names.SignInPath, http.StatusSeeOther)
	}
}

// DashboardHandler renders a role dashboard. The guard has already checked
// the role.
func (s *Server) DashboardHandler(title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := s.currentUser(r)
		if user == nil {
			user = &pageUser{}
		}
		s.render(w, http.StatusOK, "dashboard.html", pageData{AppName: s.config.GetAppName(), Title: title, User: user})
	}
}
