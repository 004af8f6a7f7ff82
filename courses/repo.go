package courses

// Repo defines the interface for course and enrollment storage. These are
// conventional request/response operations with no concurrency hazards of
// their own; the session subsystem never touches them.
type Repo interface {
	UpsertCourse(course *Course) error
	GetCourse(courseID string) (*Course, error)
	ListPublished(offset, limit int) ([]*Course, error)

	Enroll(enrollment Enrollment) error
	ListEnrollments(userID string) ([]Enrollment, error)
	IsEnrolled(courseID, userID string) (bool, error)
}
