package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Auth surface - never guarded, never blocked
	RouteLogin  = "/login"
	RouteSignup = "/signup"

	// Session subsystem
	RouteSessionHeartbeat   = "/session/heartbeat"
	RouteSessionAcknowledge = "/session/acknowledge"
	RouteLogout             = "/logout"

	// Marketplace
	RouteCourses      = "/courses"
	RouteCourseDetail = "/courses/{id}"
	RouteEnroll       = "/courses/{id}/enroll"
	RouteMyCourses    = "/my/courses"

	RouteIndex = "/"
)

// isAuthSurface reports whether a path belongs to the login/signup surface,
// which is excluded from validation and never blocked - the user must always
// be able to reach the page they recover on.
func isAuthSurface(path string) bool {
	return path == RouteLogin || path == RouteSignup
}
