package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("GET "+RouteIndex+"{$}", ChainMiddleware(s.IndexHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())
	s.RegisterRouteHandler("GET "+RouteMetrics, promhttp.Handler())

	// Guarded pages
	s.RegisterRouteFunc("GET "+RouteSignIn, ChainMiddleware(s.SignInPageHandler(), s.HTMLMiddleWare(s.GuardMiddleware)...))
	s.RegisterRouteFunc("POST "+RouteSignIn, ChainMiddleware(s.SignInSubmitHandler(), s.HTMLMiddleWare(s.RateLimitMiddleware)...))
	s.RegisterRouteFunc("POST "+RouteSignOut, ChainMiddleware(s.SignOutHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteFunc("GET "+RouteAdminDashboard, ChainMiddleware(s.DashboardHandler("Admin Dashboard"), s.HTMLMiddleWare(s.GuardMiddleware)...))
	s.RegisterRouteFunc("GET "+RouteStudentDashboard, ChainMiddleware(s.DashboardHandler("Student Dashboard"), s.HTMLMiddleWare(s.GuardMiddleware)...))
	s.RegisterRouteFunc("GET "+RouteAdminSchools, ChainMiddleware(s.SchoolsHandler(), s.HTMLMiddleWare(s.GuardMiddleware)...))
	s.RegisterRouteFunc("GET "+RouteAdminStudentRecords, ChainMiddleware(s.StudentRecordsHandler(), s.HTMLMiddleWare(s.GuardMiddleware)...))

	// Everything else under the protected prefixes is guarded, then 404s.
	for _, prefix := range []string{"/admin/", "/student/", "/auth/"} {
		s.RegisterRouteFunc(prefix, ChainMiddleware(http.NotFound, s.HTMLMiddleWare(s.GuardMiddleware)...))
	}
}
