// Package guard redirects requests for protected pages based on the session
// cookies before the page handler runs.
package guard

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/transcript-portal/internal/metrics"
	"github.com/jrsteele09/transcript-portal/session"
	"github.com/jrsteele09/transcript-portal/users"
	"github.com/rs/zerolog/log"
)

// Area is a path prefix and the roles allowed inside it.
type Area struct {
	Prefix string
	Roles  []users.Role
}

func (a Area) allows(role users.Role) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (a Area) matches(path string) bool {
	return path == a.Prefix || strings.HasPrefix(path, a.Prefix+"/")
}

type Options struct {
	TokenCookie string
	UserCookie  string
	SignInPath  string
	AuthPrefix  string // pages only for signed-out users, e.g. /auth
	Areas       []Area
}

func DefaultOptions() Options {
	names := session.DefaultNames()
	return Options{
		TokenCookie: names.TokenCookie,
		UserCookie:  names.UserCookie,
		SignInPath:  names.SignInPath,
		AuthPrefix:  "/auth",
		Areas: []Area{
			{Prefix: "/admin", Roles: users.AdminRoles},
			{Prefix: "/student", Roles: users.StudentRoles},
		},
	}
}

// Decision is the outcome of Evaluate.
type Decision struct {
	Redirect      string // empty means let the request through
	ClearSession  bool
	Reason        string
	Authenticated bool
	Role          users.Role
}

type Guard struct {
	opts Options
}

func New(opts Options) *Guard {
	return &Guard{opts: opts}
}

// Evaluate decides what to do with a request for path given the session
// cookies on r. It never mutates anything.
func (g *Guard) Evaluate(r *http.Request) Decision {
	path := r.URL.Path
	token, hasToken := session.ReadCookie(r, g.opts.TokenCookie)
	role := g.role(r)

	d := Decision{Authenticated: hasToken && token != "", Role: role}
	area, protected := g.area(path)

	if protected && !d.Authenticated {
		q := url.Values{}
		q.Set("redirect", path)
		d.Redirect = g.opts.SignInPath + "?" + q.Encode()
		d.Reason = "unauthenticated"
		return d
	}

	// An unreadable user cookie leaves the role empty and skips the role gate.
	if protected && role != "" && !area.allows(role) {
		d.Redirect = g.opts.SignInPath
		d.ClearSession = true
		d.Reason = "role_mismatch"
		return d
	}

	// Any role other than student lands on the admin dashboard; an unknown
	// role is then cleared by the admin area's role gate.
	if g.isAuthPage(path) && d.Authenticated && role != "" {
		d.Redirect = users.AdminDashboardPath
		if role == users.RoleStudent {
			d.Redirect = users.StudentDashboardPath
		}
		d.Reason = "already_signed_in"
	}
	return d
}

// Middleware wraps next with the guard.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := g.Evaluate(r)
		if d.Redirect == "" {
			next.ServeHTTP(w, r)
			return
		}
		if d.ClearSession {
			secure := session.IsSecureRequest(r)
			http.SetCookie(w, session.ExpiredCookie(g.opts.TokenCookie, secure))
			http.SetCookie(w, session.ExpiredCookie(g.opts.UserCookie, secure))
		}
		metrics.GuardRedirectsTotal.WithLabelValues(d.Reason).Inc()
		log.Debug().Str("path", r.URL.Path).Str("reason", d.Reason).Str("to", d.Redirect).Msg("guard redirect")
		http.Redirect(w, r, d.Redirect, http.StatusSeeOther)
	})
}

func (g *Guard) role(r *http.Request) users.Role {
	raw, ok := session.ReadCookie(r, g.opts.UserCookie)
	if !ok {
		return ""
	}
	record, err := users.ParseRecord([]byte(raw))
	if err != nil {
		return ""
	}
	return record.Role()
}

func (g *Guard) area(path string) (Area, bool) {
	for _, a := range g.opts.Areas {
		if a.matches(path) {
			return a, true
		}
	}
	return Area{}, false
}

func (g *Guard) isAuthPage(path string) bool {
	return g.opts.AuthPrefix != "" && (path == g.opts.AuthPrefix || strings.HasPrefix(path, g.opts.AuthPrefix+"/"))
}
