package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	RouteIndex = "/"

	// Auth Routes - sign-in pages are only for signed-out users
	RouteSignIn  = "/auth/sign-in"
	RouteSignOut = "/auth/logout"

	// Dashboards
	RouteAdminDashboard   = "/admin/dashboard"
	RouteStudentDashboard = "/student/dashboard"

	// Records pages, backed by the records API
	RouteAdminSchools        = "/admin/schools"
	RouteAdminStudentRecords = "/admin/student-records"

	RouteMetrics = "/metrics"
	RouteHealth  = "/healthz"
)
