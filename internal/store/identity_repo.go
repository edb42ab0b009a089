package store

import (
	"context"
	"database/sql"
	"errors"

	"geoattend/internal/identity"
)

// IdentityRepository persists students and lecturers in Postgres.
type IdentityRepository struct {
	db *sql.DB
}

// NewIdentityRepository creates a repo.
func NewIdentityRepository(db *sql.DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

const studentColumns = `id, index_number, name, password_hash, is_registered, created_at`

func scanStudent(row interface{ Scan(...any) error }) (identity.Student, error) {
	var s identity.Student
	var hash sql.NullString
	if err := row.Scan(&s.ID, &s.IndexNumber, &s.Name, &hash, &s.IsRegistered, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return identity.Student{}, identity.ErrNotFound
		}
		return identity.Student{}, err
	}
	if hash.Valid {
		s.PasswordHash = &hash.String
	}
	return s, nil
}

// StudentByIndex looks a student up by index number.
func (r *IdentityRepository) StudentByIndex(ctx context.Context, indexNumber string) (identity.Student, error) {
	return scanStudent(r.db.QueryRowContext(ctx, `SELECT `+studentColumns+` FROM students WHERE index_number = $1`, indexNumber))
}

// StudentByID looks a student up by id.
func (r *IdentityRepository) StudentByID(ctx context.Context, id int64) (identity.Student, error) {
	return scanStudent(r.db.QueryRowContext(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id))
}

// CreateStudent inserts a student.
func (r *IdentityRepository) CreateStudent(ctx context.Context, s identity.Student) (identity.Student, error) {
	created, err := scanStudent(r.db.QueryRowContext(ctx, `
		INSERT INTO students (index_number, name, password_hash, is_registered)
		VALUES ($1, $2, $3, $4)
		RETURNING `+studentColumns,
		s.IndexNumber, s.Name, s.PasswordHash, s.IsRegistered))
	if isUniqueViolation(err) {
		return identity.Student{}, identity.ErrDuplicate
	}
	return created, err
}

// UpsertStudent inserts a roster row or renames an existing student.
func (r *IdentityRepository) UpsertStudent(ctx context.Context, indexNumber, name string) (identity.UpsertOutcome, error) {
	// xmax = 0 only for freshly inserted rows. The WHERE on DO UPDATE
	// suppresses no-op updates, which then return no row.
	var inserted bool
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO students (index_number, name)
		VALUES ($1, $2)
		ON CONFLICT (index_number) DO UPDATE SET name = EXCLUDED.name
		WHERE students.name IS DISTINCT FROM EXCLUDED.name
		RETURNING (xmax = 0)
	`, indexNumber, name).Scan(&inserted)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.Skipped, nil
	}
	if err != nil {
		return "", err
	}
	if inserted {
		return identity.Added, nil
	}
	return identity.Updated, nil
}

// ActivateStudent sets the first password of an unregistered student.
func (r *IdentityRepository) ActivateStudent(ctx context.Context, id int64, passwordHash string) (identity.Student, error) {
	s, err := scanStudent(r.db.QueryRowContext(ctx, `
		UPDATE students SET password_hash = $2, is_registered = TRUE
		WHERE id = $1 AND NOT is_registered
		RETURNING `+studentColumns, id, passwordHash))
	if errors.Is(err, identity.ErrNotFound) {
		if _, lookupErr := r.StudentByID(ctx, id); lookupErr != nil {
			return identity.Student{}, lookupErr
		}
		return identity.Student{}, identity.ErrAlreadyActivated
	}
	return s, err
}

const lecturerColumns = `id, username, name, password_hash, created_at`

func scanLecturer(row interface{ Scan(...any) error }) (identity.Lecturer, error) {
	var l identity.Lecturer
	if err := row.Scan(&l.ID, &l.Username, &l.Name, &l.PasswordHash, &l.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return identity.Lecturer{}, identity.ErrNotFound
		}
		return identity.Lecturer{}, err
	}
	return l, nil
}

// LecturerByUsername looks a lecturer up by username.
func (r *IdentityRepository) LecturerByUsername(ctx context.Context, username string) (identity.Lecturer, error) {
	return scanLecturer(r.db.QueryRowContext(ctx, `SELECT `+lecturerColumns+` FROM lecturers WHERE username = $1`, username))
}

// LecturerByID looks a lecturer up by id.
func (r *IdentityRepository) LecturerByID(ctx context.Context, id int64) (identity.Lecturer, error) {
	return scanLecturer(r.db.QueryRowContext(ctx, `SELECT `+lecturerColumns+` FROM lecturers WHERE id = $1`, id))
}

// CreateLecturer inserts a lecturer.
func (r *IdentityRepository) CreateLecturer(ctx context.Context, l identity.Lecturer) (identity.Lecturer, error) {
	created, err := scanLecturer(r.db.QueryRowContext(ctx, `
		INSERT INTO lecturers (username, name, password_hash)
		VALUES ($1, $2, $3)
		RETURNING `+lecturerColumns, l.Username, l.Name, l.PasswordHash))
	if isUniqueViolation(err) {
		return identity.Lecturer{}, identity.ErrDuplicate
	}
	return created, err
}
