package store

import (
	"context"
	"database/sql"
	"errors"

	"geoattend/internal/course"
)

// CourseRepository persists courses in Postgres.
type CourseRepository struct {
	db *sql.DB
}

func NewCourseRepository(db *sql.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

func (r *CourseRepository) Courses(ctx context.Context) ([]course.Course, error) {
	return r.list(ctx, `SELECT id, code, name, lecturer_id FROM courses ORDER BY id`)
}

func (r *CourseRepository) CoursesByLecturer(ctx context.Context, lecturerID int64) ([]course.Course, error) {
	return r.list(ctx, `SELECT id, code, name, lecturer_id FROM courses WHERE lecturer_id = $1 ORDER BY id`, lecturerID)
}

func (r *CourseRepository) list(ctx context.Context, query string, args ...any) ([]course.Course, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []course.Course{}
	for rows.Next() {
		var c course.Course
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.LecturerID); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *CourseRepository) Course(ctx context.Context, id int64) (course.Course, error) {
	var c course.Course
	err := r.db.QueryRowContext(ctx, `SELECT id, code, name, lecturer_id FROM courses WHERE id = $1`, id).
		Scan(&c.ID, &c.Code, &c.Name, &c.LecturerID)
	if errors.Is(err, sql.ErrNoRows) {
		return course.Course{}, course.ErrNotFound
	}
	return c, err
}

func (r *CourseRepository) CreateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO courses (code, name, lecturer_id) VALUES ($1, $2, $3) RETURNING id
	`, c.Code, c.Name, c.LecturerID).Scan(&c.ID)
	if isUniqueViolation(err) {
		return course.Course{}, course.ErrDuplicate
	}
	if err != nil {
		return course.Course{}, err
	}
	return c, nil
}
