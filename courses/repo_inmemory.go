package courses

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	apperrors "github.com/coursekit/coursekit/internal/errors"
)

var _ Repo = (*InMemoryRepo)(nil)

// InMemoryRepo is an in-memory implementation of Repo for tests and dev.
type InMemoryRepo struct {
	mu          sync.RWMutex
	courses     map[string]*Course
	enrollments map[string]map[string]Enrollment // courseID -> userID -> enrollment
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		courses:     make(map[string]*Course),
		enrollments: make(map[string]map[string]Enrollment),
	}
}

func (r *InMemoryRepo) UpsertCourse(course *Course) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if course.ID == "" {
		course.ID = uuid.New().String()
	}
	r.courses[course.ID] = course
	return nil
}

func (r *InMemoryRepo) GetCourse(courseID string) (*Course, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	course, ok := r.courses[courseID]
	if !ok {
		return nil, apperrors.ErrCourseNotFound
	}
	return course, nil
}

func (r *InMemoryRepo) ListPublished(offset, limit int) ([]*Course, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	published := make([]*Course, 0, len(r.courses))
	for _, c := range r.courses {
		if c.Published {
			published = append(published, c)
		}
	}
	sort.Slice(published, func(i, j int) bool { return published[i].Title < published[j].Title })

	if offset >= len(published) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(published) {
		end = len(published)
	}
	return published[offset:end], nil
}

func (r *InMemoryRepo) Enroll(enrollment Enrollment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	course, ok := r.courses[enrollment.CourseID]
	if !ok {
		return apperrors.ErrCourseNotFound
	}
	if !course.Published {
		return apperrors.ErrCourseNotForSale
	}

	if _, ok := r.enrollments[enrollment.CourseID]; !ok {
		r.enrollments[enrollment.CourseID] = make(map[string]Enrollment)
	}
	if _, ok := r.enrollments[enrollment.CourseID][enrollment.UserID]; ok {
		return apperrors.ErrAlreadyEnrolled
	}
	r.enrollments[enrollment.CourseID][enrollment.UserID] = enrollment
	return nil
}

func (r *InMemoryRepo) ListEnrollments(userID string) ([]Enrollment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Enrollment
	for _, byUser := range r.enrollments {
		if e, ok := byUser[userID]; ok {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CourseID < result[j].CourseID })
	return result, nil
}

func (r *InMemoryRepo) IsEnrolled(courseID, userID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byUser, ok := r.enrollments[courseID]
	if !ok {
		return false, nil
	}
	_, ok = byUser[userID]
	return ok, nil
}
