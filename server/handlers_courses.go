package server

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/coursekit/coursekit/courses"
	apperrors "github.com/coursekit/coursekit/internal/errors"
)

// IndexHandler redirects to the course catalogue.
func (s *Server) IndexHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != RouteIndex {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, RouteCourses, http.StatusSeeOther)
	}
}

// CourseListHandler renders the published catalogue. Browsable anonymously.
func (s *Server) CourseListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := s.repos.Courses.ListPublished(0, 100)
		if err != nil {
			log.Err(err).Msg("Failed to list courses")
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		s.renderPage(w, "courses", map[string]any{
			"User":    userFrom(r),
			"Courses": list,
		})
	}
}

// CourseDetailHandler renders a single course page.
func (s *Server) CourseDetailHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		course, err := s.repos.Courses.GetCourse(r.PathValue("id"))
		if err != nil {
			http.NotFound(w, r)
			return
		}

		enrolled := false
		if user := userFrom(r); user != nil {
			enrolled, _ = s.repos.Courses.IsEnrolled(course.ID, user.ID)
		}
		s.renderPage(w, "course", map[string]any{
			"User":     userFrom(r),
			"Course":   course,
			"Enrolled": enrolled,
		})
	}
}

// EnrollHandler enrolls the authenticated user in a course.
func (s *Server) EnrollHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := userFrom(r)
		courseID := r.PathValue("id")

		err := s.repos.Courses.Enroll(courses.Enrollment{
			CourseID:   courseID,
			UserID:     user.ID,
			EnrolledAt: time.Now(),
		})
		switch {
		case apperrors.Is(err, apperrors.ErrCourseNotFound):
			http.NotFound(w, r)
			return
		case apperrors.Is(err, apperrors.ErrAlreadyEnrolled):
			// Idempotent from the user's perspective
		case err != nil:
			log.Err(err).Str("course_id", courseID).Msg("Enrollment failed")
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, RouteCourses+"/"+courseID, http.StatusSeeOther)
	}
}

// MyCoursesHandler lists the authenticated user's enrollments.
func (s *Server) MyCoursesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := userFrom(r)

		enrollments, err := s.repos.Courses.ListEnrollments(user.ID)
		if err != nil {
			log.Err(err).Msg("Failed to list enrollments")
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		enrolled := make([]*courses.Course, 0, len(enrollments))
		for _, e := range enrollments {
			if course, err := s.repos.Courses.GetCourse(e.CourseID); err == nil {
				enrolled = append(enrolled, course)
			}
		}
		s.renderPage(w, "mycourses", map[string]any{
			"User":    user,
			"Courses": enrolled,
		})
	}
}
