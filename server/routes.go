package server

// initRoutes registers all of the application's routes. Every page route runs
// through SessionState so navigation revalidates the held token; the auth
// surface is excluded inside the middleware itself.
func (s *Server) initRoutes() {
	s.RegisterRouteFunc("GET "+RouteIndex, s.IndexHandler())

	// Auth surface
	s.RegisterRouteFunc("GET "+RouteLogin, s.LoginPageHandler())
	s.RegisterRouteFunc("POST "+RouteLogin, s.LoginSubmissionHandler())
	s.RegisterRouteFunc("GET "+RouteSignup, s.SignupPageHandler())
	s.RegisterRouteFunc("POST "+RouteSignup, s.SignupSubmissionHandler())
	s.RegisterRouteFunc("GET "+RouteLogout, s.LogoutHandler())

	// Session subsystem
	s.RegisterRouteFunc("GET "+RouteSessionHeartbeat, s.HeartbeatHandler())
	s.RegisterRouteFunc("POST "+RouteSessionAcknowledge, s.AcknowledgeHandler())

	// Marketplace pages
	s.RegisterRouteHandler("GET "+RouteCourses, ChainMiddleware(s.CourseListHandler(), s.PageMiddleware(s.SessionState)...))
	s.RegisterRouteHandler("GET "+RouteCourseDetail, ChainMiddleware(s.CourseDetailHandler(), s.PageMiddleware(s.SessionState)...))
	s.RegisterRouteHandler("POST "+RouteEnroll, ChainMiddleware(s.EnrollHandler(), s.PageMiddleware(s.SessionState, s.RequireUser)...))
	s.RegisterRouteHandler("GET "+RouteMyCourses, ChainMiddleware(s.MyCoursesHandler(), s.PageMiddleware(s.SessionState, s.RequireUser)...))
}
