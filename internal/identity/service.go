package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"geoattend/internal/apperr"
	"geoattend/internal/password"
)

// MinPasswordLen is the shortest secret accepted at onboarding and lecturer creation.
const MinPasswordLen = 6

// Store persists students and lecturers.
type Store interface {
	StudentByIndex(ctx context.Context, indexNumber string) (Student, error)
	StudentByID(ctx context.Context, id int64) (Student, error)
	CreateStudent(ctx context.Context, s Student) (Student, error)
	UpsertStudent(ctx context.Context, indexNumber, name string) (UpsertOutcome, error)
	// ActivateStudent sets the first password. It must fail with
	// ErrAlreadyActivated when the student is already registered, atomically.
	ActivateStudent(ctx context.Context, id int64, passwordHash string) (Student, error)

	LecturerByUsername(ctx context.Context, username string) (Lecturer, error)
	LecturerByID(ctx context.Context, id int64) (Lecturer, error)
	CreateLecturer(ctx context.Context, l Lecturer) (Lecturer, error)
}

// Service authenticates identities and handles student activation.
type Service struct {
	store Store
}

// NewService creates a service backed by store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Authenticate checks username and secret for the given role. Students log
// in with their index number.
func (s *Service) Authenticate(ctx context.Context, username, secret string, role Role) (Identity, error) {
	username = strings.TrimSpace(username)
	switch role {
	case RoleStudent:
		st, err := s.store.StudentByIndex(ctx, username)
		if errors.Is(err, ErrNotFound) {
			return Identity{}, apperr.New(apperr.InvalidCredentials, "invalid credentials")
		}
		if err != nil {
			return Identity{}, apperr.Internalf(err, "load student")
		}
		if !st.IsRegistered || st.PasswordHash == nil {
			return Identity{}, apperr.New(apperr.InvalidCredentials, "account not activated, use first-time onboarding")
		}
		if err := checkSecret(*st.PasswordHash, secret); err != nil {
			return Identity{}, err
		}
		return FromStudent(st), nil

	case RoleLecturer:
		lec, err := s.store.LecturerByUsername(ctx, username)
		if errors.Is(err, ErrNotFound) {
			return Identity{}, apperr.New(apperr.InvalidCredentials, "invalid credentials")
		}
		if err != nil {
			return Identity{}, apperr.Internalf(err, "load lecturer")
		}
		if err := checkSecret(lec.PasswordHash, secret); err != nil {
			return Identity{}, err
		}
		return FromLecturer(lec), nil
	}
	return Identity{}, apperr.New(apperr.ValidationError, "unknown role %q", role)
}

func checkSecret(stored, supplied string) error {
	ok, err := password.Verify(stored, supplied)
	if err != nil {
		log.Error().Err(err).Msg("stored password hash is unusable")
		return apperr.Internalf(err, "verify credentials")
	}
	if !ok {
		return apperr.New(apperr.InvalidCredentials, "invalid credentials")
	}
	return nil
}

// Get loads the identity behind ref.
func (s *Service) Get(ctx context.Context, ref Ref) (Identity, error) {
	var (
		id  Identity
		err error
	)
	switch ref.Role {
	case RoleStudent:
		var st Student
		st, err = s.store.StudentByID(ctx, ref.ID)
		id = FromStudent(st)
	case RoleLecturer:
		var lec Lecturer
		lec, err = s.store.LecturerByID(ctx, ref.ID)
		id = FromLecturer(lec)
	default:
		return Identity{}, apperr.New(apperr.ValidationError, "unknown role %q", ref.Role)
	}
	if errors.Is(err, ErrNotFound) {
		return Identity{}, apperr.New(apperr.IdentityNotFound, "%s not found", ref)
	}
	if err != nil {
		return Identity{}, apperr.Internalf(err, "load %s", ref)
	}
	return id, nil
}

// Onboard sets the first password of a pre-provisioned student.
func (s *Service) Onboard(ctx context.Context, indexNumber, newPassword string) (Student, error) {
	indexNumber = strings.TrimSpace(indexNumber)
	if indexNumber == "" {
		return Student{}, apperr.New(apperr.ValidationError, "index number is required")
	}
	if len(newPassword) < MinPasswordLen {
		return Student{}, apperr.New(apperr.ValidationError, "password must be at least %d characters", MinPasswordLen)
	}

	st, err := s.store.StudentByIndex(ctx, indexNumber)
	if errors.Is(err, ErrNotFound) {
		return Student{}, apperr.New(apperr.IdentityNotFound, "index number %s not found", indexNumber)
	}
	if err != nil {
		return Student{}, apperr.Internalf(err, "load student")
	}
	if st.IsRegistered {
		return Student{}, apperr.New(apperr.AlreadyRegistered, "account already registered, please log in")
	}

	hash, err := password.Hash(newPassword)
	if err != nil {
		return Student{}, apperr.Internalf(err, "hash password")
	}
	updated, err := s.store.ActivateStudent(ctx, st.ID, hash)
	if errors.Is(err, ErrAlreadyActivated) {
		return Student{}, apperr.New(apperr.AlreadyRegistered, "account already registered, please log in")
	}
	if err != nil {
		return Student{}, apperr.Internalf(err, "activate student")
	}
	log.Info().Int64("identity_id", updated.ID).Str("index_number", updated.IndexNumber).Msg("student onboarded")
	return updated, nil
}

// ImportStudents adds or renames roster entries. Row failures are collected,
// not fatal.
func (s *Service) ImportStudents(ctx context.Context, rows []StudentImport) ImportResult {
	res := ImportResult{Errors: []string{}}
	for _, row := range rows {
		index := strings.TrimSpace(row.IndexNumber)
		name := strings.TrimSpace(row.Name)
		if index == "" || name == "" {
			res.Errors = append(res.Errors, "row with empty index number or name")
			continue
		}
		outcome, err := s.store.UpsertStudent(ctx, index, name)
		if err != nil {
			res.Errors = append(res.Errors, "failed to import "+index+": "+err.Error())
			continue
		}
		switch outcome {
		case Added:
			res.Added++
		case Updated:
			res.Updated++
		default:
			res.Skipped++
		}
	}
	log.Info().Int("added", res.Added).Int("updated", res.Updated).Int("skipped", res.Skipped).
		Int("failed", len(res.Errors)).Msg("student roster imported")
	return res
}

// CreateLecturer registers a lecturer account.
func (s *Service) CreateLecturer(ctx context.Context, username, name, secret string) (Lecturer, error) {
	username = strings.TrimSpace(username)
	name = strings.TrimSpace(name)
	if username == "" || name == "" {
		return Lecturer{}, apperr.New(apperr.ValidationError, "username and name are required")
	}
	if len(secret) < MinPasswordLen {
		return Lecturer{}, apperr.New(apperr.ValidationError, "password must be at least %d characters", MinPasswordLen)
	}
	hash, err := password.Hash(secret)
	if err != nil {
		return Lecturer{}, apperr.Internalf(err, "hash password")
	}
	lec, err := s.store.CreateLecturer(ctx, Lecturer{Username: username, Name: name, PasswordHash: hash})
	if errors.Is(err, ErrDuplicate) {
		return Lecturer{}, apperr.New(apperr.ValidationError, "username %s already exists", username)
	}
	if err != nil {
		return Lecturer{}, apperr.Internalf(err, "create lecturer")
	}
	return lec, nil
}
