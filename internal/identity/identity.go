package identity

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Role tags which variant an Identity holds.
type Role string

const (
	RoleStudent  Role = "student"
	RoleLecturer Role = "lecturer"
)

// ParseRole validates a role tag.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleStudent, RoleLecturer:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

var (
	ErrNotFound  = errors.New("identity not found")
	ErrDuplicate = errors.New("identity already exists")
	// ErrAlreadyActivated is returned by ActivateStudent when the account
	// already has a password.
	ErrAlreadyActivated = errors.New("student already registered")
)

// Ref addresses one identity. Student and lecturer IDs come from separate
// sequences, so the role is part of the key.
type Ref struct {
	ID   int64 `json:"id"`
	Role Role  `json:"role"`
}

func (r Ref) String() string {
	return string(r.Role) + ":" + strconv.FormatInt(r.ID, 10)
}

// Student is a pre-provisioned learner account. PasswordHash is nil until onboarding.
type Student struct {
	ID           int64     `json:"id"`
	IndexNumber  string    `json:"index_number"`
	Name         string    `json:"name"`
	PasswordHash *string   `json:"-"`
	IsRegistered bool      `json:"is_registered"`
	CreatedAt    time.Time `json:"created_at"`
}

// Lecturer is an account allowed to run attendance windows.
type Lecturer struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Identity is either a Student or a Lecturer, selected by Role.
// Exactly one of Student and Lecturer is non-nil.
type Identity struct {
	Role     Role      `json:"role"`
	Student  *Student  `json:"student,omitempty"`
	Lecturer *Lecturer `json:"lecturer,omitempty"`
}

func FromStudent(s Student) Identity  { return Identity{Role: RoleStudent, Student: &s} }
func FromLecturer(l Lecturer) Identity { return Identity{Role: RoleLecturer, Lecturer: &l} }

// Ref returns the identity's key.
func (i Identity) Ref() Ref {
	switch i.Role {
	case RoleStudent:
		return Ref{ID: i.Student.ID, Role: RoleStudent}
	case RoleLecturer:
		return Ref{ID: i.Lecturer.ID, Role: RoleLecturer}
	}
	return Ref{}
}

// Name is the display name.
func (i Identity) Name() string {
	switch i.Role {
	case RoleStudent:
		return i.Student.Name
	case RoleLecturer:
		return i.Lecturer.Name
	}
	return ""
}

func (i Identity) IsStudent() bool  { return i.Role == RoleStudent }
func (i Identity) IsLecturer() bool { return i.Role == RoleLecturer }

// StudentImport is one roster row.
type StudentImport struct {
	IndexNumber string `json:"index_number" binding:"required"`
	Name        string `json:"name" binding:"required"`
}

// UpsertOutcome says what an import did to a single row.
type UpsertOutcome string

const (
	Added   UpsertOutcome = "added"
	Updated UpsertOutcome = "updated"
	Skipped UpsertOutcome = "skipped"
)

// ImportResult summarises a roster import.
type ImportResult struct {
	Added   int      `json:"added"`
	Updated int      `json:"updated"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors"`
}
