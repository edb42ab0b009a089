package course

import (
	"context"
	"errors"
	"strings"

	"geoattend/internal/apperr"
)

var (
	ErrNotFound  = errors.New("course not found")
	ErrDuplicate = errors.New("course code already exists")
)

// Course is catalogue metadata shown next to attendance windows.
type Course struct {
	ID         int64  `json:"id"`
	Code       string `json:"code"`
	Name       string `json:"name"`
	LecturerID int64  `json:"lecturer_id"`
}

// Store persists courses.
type Store interface {
	Courses(ctx context.Context) ([]Course, error)
	Course(ctx context.Context, id int64) (Course, error)
	CoursesByLecturer(ctx context.Context, lecturerID int64) ([]Course, error)
	CreateCourse(ctx context.Context, c Course) (Course, error)
}

// Service exposes the course catalogue.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

func (s *Service) List(ctx context.Context) ([]Course, error) {
	out, err := s.store.Courses(ctx)
	if err != nil {
		return nil, apperr.Internalf(err, "list courses")
	}
	return out, nil
}

func (s *Service) ForLecturer(ctx context.Context, lecturerID int64) ([]Course, error) {
	out, err := s.store.CoursesByLecturer(ctx, lecturerID)
	if err != nil {
		return nil, apperr.Internalf(err, "list lecturer courses")
	}
	return out, nil
}

// Create adds a course owned by lecturerID. Codes are stored upper-cased.
func (s *Service) Create(ctx context.Context, lecturerID int64, code, name string) (Course, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	name = strings.TrimSpace(name)
	if code == "" || name == "" {
		return Course{}, apperr.New(apperr.ValidationError, "course code and name are required")
	}
	c, err := s.store.CreateCourse(ctx, Course{Code: code, Name: name, LecturerID: lecturerID})
	if errors.Is(err, ErrDuplicate) {
		return Course{}, apperr.New(apperr.ValidationError, "course code %s already exists", code)
	}
	if err != nil {
		return Course{}, apperr.Internalf(err, "create course")
	}
	return c, nil
}
